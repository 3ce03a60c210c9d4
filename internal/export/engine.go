package export

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/internal/privacy"
	"github.com/inferloop/anonkl/internal/reporting"
	"github.com/inferloop/anonkl/pkg/errors"
	"github.com/inferloop/anonkl/pkg/interfaces"
)

// ExportEngine renders run results and writes them to an artifact store.
type ExportEngine struct {
	logger    *logrus.Logger
	config    *ExportConfig
	mu        sync.RWMutex
	exporters map[ExportFormat]Exporter
}

// ExportConfig configures the export engine
type ExportConfig struct {
	// Prefix is prepended to every artifact key
	Prefix string `json:"prefix" mapstructure:"prefix"`

	// Formats lists the table/report formats written by ExportRun
	Formats []ExportFormat `json:"formats" mapstructure:"formats"`

	EnableCharts      bool `json:"enable_charts" mapstructure:"enable_charts"`
	EnableCompression bool `json:"enable_compression" mapstructure:"enable_compression"`
	TopClasses        int  `json:"top_classes" mapstructure:"top_classes"`
	Separator         rune `json:"separator" mapstructure:"separator"`
	Pretty            bool `json:"pretty" mapstructure:"pretty"`
}

// ExportFormat defines supported export formats
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
	FormatPNG  ExportFormat = "png"
)

// ExportOptions contains export-specific options
type ExportOptions struct {
	Separator  rune `json:"separator"`
	Pretty     bool `json:"pretty"`
	TopClasses int  `json:"top_classes"`
}

// Exporter renders a result in one format.
type Exporter interface {
	Name() string
	Format() ExportFormat
	ContentType() string
	Export(ctx context.Context, writer io.Writer, result *privacy.Result, options ExportOptions) error
}

// ExportedFile is one artifact written by ExportRun.
type ExportedFile struct {
	Key         string `json:"key"`
	Location    string `json:"location"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// NewExportEngine creates a new export engine
func NewExportEngine(config *ExportConfig, logger *logrus.Logger) (*ExportEngine, error) {
	if config == nil {
		config = getDefaultExportConfig()
	}

	if logger == nil {
		logger = logrus.New()
	}

	for _, format := range config.Formats {
		if format != FormatCSV && format != FormatJSON {
			return nil, errors.NewConfigurationError(errors.CodeInvalidInput,
				fmt.Sprintf("unsupported output format %q", format))
		}
	}

	engine := &ExportEngine{
		logger:    logger,
		config:    config,
		exporters: make(map[ExportFormat]Exporter),
	}

	engine.registerDefaultExporters()

	return engine, nil
}

// RegisterExporter adds or replaces the exporter for its format.
func (ee *ExportEngine) RegisterExporter(exporter Exporter) {
	ee.mu.Lock()
	defer ee.mu.Unlock()

	ee.exporters[exporter.Format()] = exporter
	ee.logger.WithField("exporter", exporter.Name()).Debug("Registered exporter")
}

// GetSupportedFormats returns the registered formats in name order.
func (ee *ExportEngine) GetSupportedFormats() []ExportFormat {
	ee.mu.RLock()
	defer ee.mu.RUnlock()

	formats := make([]ExportFormat, 0, len(ee.exporters))
	for format := range ee.exporters {
		formats = append(formats, format)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}

// Export renders result to writer in the given format.
func (ee *ExportEngine) Export(ctx context.Context, result *privacy.Result, format ExportFormat, writer io.Writer) error {
	exporter, ok := ee.findExporterForFormat(format)
	if !ok {
		return errors.NewValidationError(errors.CodeInvalidFormat, fmt.Sprintf("unsupported export format: %s", format))
	}

	return exporter.Export(ctx, writer, result, ee.options())
}

// ExportRun writes every configured artifact of a run to store and returns
// what was written. Charts are skipped when the run left no classes.
func (ee *ExportEngine) ExportRun(ctx context.Context, store interfaces.ArtifactStore, result *privacy.Result) ([]ExportedFile, error) {
	if store == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidInput, "no artifact store configured")
	}

	logger := ee.logger.WithFields(logrus.Fields{
		"run_id": result.RunID,
		"k":      result.Config.K,
		"l":      result.Config.L,
		"store":  store.Name(),
	})

	var files []ExportedFile
	for _, format := range ee.config.Formats {
		exporter, ok := ee.findExporterForFormat(format)
		if !ok {
			return files, errors.NewValidationError(errors.CodeInvalidFormat, fmt.Sprintf("unsupported export format: %s", format))
		}

		var buf bytes.Buffer
		if err := exporter.Export(ctx, &buf, result, ee.options()); err != nil {
			return files, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError,
				fmt.Sprintf("failed to render %s output", format))
		}

		key := ee.key(FileName(result.Config.K, result.Config.L, format))
		contentType := exporter.ContentType()
		body := buf.Bytes()
		if ee.config.EnableCompression {
			compressed, err := gzipBytes(body)
			if err != nil {
				return files, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to compress output")
			}
			body = compressed
			key += ".gz"
			contentType = "application/gzip"
		}

		file, err := ee.put(ctx, store, key, body, contentType)
		if err != nil {
			return files, err
		}
		files = append(files, file)
	}

	if ee.config.EnableCharts && len(result.Classes) > 0 {
		charts, err := ee.exportCharts(ctx, store, result)
		files = append(files, charts...)
		if err != nil {
			return files, err
		}
	}

	logger.WithField("artifacts", len(files)).Info("Run exported")
	return files, nil
}

func (ee *ExportEngine) exportCharts(ctx context.Context, store interfaces.ArtifactStore, result *privacy.Result) ([]ExportedFile, error) {
	base := fmt.Sprintf("k%d_l%d", result.Config.K, result.Config.L)
	top := ee.config.TopClasses
	if top <= 0 {
		top = reporting.DefaultTopClasses
	}

	var files []ExportedFile

	var sizes bytes.Buffer
	title := fmt.Sprintf("Top %d equivalence classes (k=%d, l=%d)", top, result.Config.K, result.Config.L)
	if err := reporting.RenderClassSizeChart(&sizes, result.Classes, top, title); err != nil {
		return files, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to render class size chart")
	}
	file, err := ee.put(ctx, store, ee.key("class_sizes_"+base+".png"), sizes.Bytes(), "image/png")
	if err != nil {
		return files, err
	}
	files = append(files, file)

	var diversity bytes.Buffer
	title = fmt.Sprintf("Sensitive diversity per class (k=%d, l=%d)", result.Config.K, result.Config.L)
	if err := reporting.RenderDiversityHistogram(&diversity, result.DiversityHistogram, title); err != nil {
		return files, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to render diversity histogram")
	}
	file, err = ee.put(ctx, store, ee.key("diversity_"+base+".png"), diversity.Bytes(), "image/png")
	if err != nil {
		return files, err
	}
	return append(files, file), nil
}

func (ee *ExportEngine) put(ctx context.Context, store interfaces.ArtifactStore, key string, body []byte, contentType string) (ExportedFile, error) {
	location, err := store.Put(ctx, key, bytes.NewReader(body), contentType)
	if err != nil {
		return ExportedFile{}, err
	}

	ee.logger.WithFields(logrus.Fields{
		"key":      key,
		"location": location,
		"size":     len(body),
	}).Debug("Artifact written")

	return ExportedFile{
		Key:         key,
		Location:    location,
		ContentType: contentType,
		Size:        int64(len(body)),
	}, nil
}

// FileName returns the artifact name of a run: dados_anonimizados_k{K}_l{L}
// for the table, relatorio_k{K}_l{L} for the report.
func FileName(k, l int, format ExportFormat) string {
	if format == FormatJSON {
		return fmt.Sprintf("relatorio_k%d_l%d.json", k, l)
	}
	return fmt.Sprintf("dados_anonimizados_k%d_l%d.%s", k, l, format)
}

func (ee *ExportEngine) key(name string) string {
	if ee.config.Prefix == "" {
		return name
	}
	return path.Join(ee.config.Prefix, name)
}

func (ee *ExportEngine) options() ExportOptions {
	return ExportOptions{
		Separator:  ee.config.Separator,
		Pretty:     ee.config.Pretty,
		TopClasses: ee.config.TopClasses,
	}
}

func (ee *ExportEngine) findExporterForFormat(format ExportFormat) (Exporter, bool) {
	ee.mu.RLock()
	defer ee.mu.RUnlock()

	exporter, ok := ee.exporters[format]
	return exporter, ok
}

func (ee *ExportEngine) registerDefaultExporters() {
	ee.RegisterExporter(&CSVExporter{})
	ee.RegisterExporter(&JSONExporter{})
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func getDefaultExportConfig() *ExportConfig {
	return &ExportConfig{
		Formats:      []ExportFormat{FormatCSV, FormatJSON},
		EnableCharts: true,
		TopClasses:   reporting.DefaultTopClasses,
		Separator:    ';',
		Pretty:       true,
	}
}

// DefaultExportConfig returns CSV and JSON output with charts.
func DefaultExportConfig() *ExportConfig {
	return getDefaultExportConfig()
}
