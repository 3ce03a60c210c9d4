package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/anonkl/internal/config"
	"github.com/inferloop/anonkl/internal/export"
	"github.com/inferloop/anonkl/internal/ingest"
	"github.com/inferloop/anonkl/internal/privacy"
	"github.com/inferloop/anonkl/internal/storage"
	"github.com/inferloop/anonkl/pkg/interfaces"
	"github.com/inferloop/anonkl/pkg/models"
)

// RunOptions are the flags shared by the commands that run the anonymizer.
// A flag only overrides the configuration when set explicitly.
type RunOptions struct {
	MaxLevelLocation  int
	MaxLevelBirthDate int
	Suppress          bool
	OutputDir         string
	Formats           []string
	Separator         string
	Duplicate         int
	NoCharts          bool
	Compress          bool
	DryRun            bool
}

func (o *RunOptions) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.MaxLevelLocation, "max-level-localidade", 0, "Maximum generalization level for localidade (0-3)")
	cmd.Flags().IntVar(&o.MaxLevelBirthDate, "max-level-data-nascimento", 0, "Maximum generalization level for data_nascimento (0-3)")
	cmd.Flags().BoolVar(&o.Suppress, "suppress", false, "Suppress the records of classes still violating k or l when the search is exhausted")
	cmd.Flags().StringVarP(&o.OutputDir, "output", "o", "", "Output directory for the anonymized artifacts")
	cmd.Flags().StringSliceVarP(&o.Formats, "format", "f", nil, "Artifact formats (csv, json)")
	cmd.Flags().StringVarP(&o.Separator, "separator", "s", "", "CSV separator for input and output (default ';')")
	cmd.Flags().IntVar(&o.Duplicate, "duplicate", 0, "Replicate every input row this many times")
	cmd.Flags().BoolVar(&o.NoCharts, "no-charts", false, "Do not render PNG charts")
	cmd.Flags().BoolVar(&o.Compress, "compress", false, "Gzip the artifacts")
	cmd.Flags().BoolVar(&o.DryRun, "dry-run", false, "Run without writing artifacts")
}

func (o *RunOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if cfg.MaxLevel == nil {
		cfg.MaxLevel = make(map[string]int)
	}
	if flags.Changed("max-level-localidade") {
		cfg.MaxLevel[string(models.AttributeLocation)] = o.MaxLevelLocation
	}
	if flags.Changed("max-level-data-nascimento") {
		cfg.MaxLevel[string(models.AttributeBirthDate)] = o.MaxLevelBirthDate
	}
	if flags.Changed("suppress") {
		cfg.SuppressViolations = o.Suppress
	}
	if flags.Changed("output") {
		cfg.Output.Directory = o.OutputDir
	}
	if flags.Changed("format") {
		cfg.Output.Format = strings.Join(o.Formats, ",")
	}
	if flags.Changed("separator") {
		cfg.Input.Separator = o.Separator
	}
	if flags.Changed("duplicate") {
		cfg.Input.Duplicate = o.Duplicate
	}
	if flags.Changed("no-charts") {
		cfg.Output.Charts = !o.NoCharts
	}
	if flags.Changed("compress") {
		cfg.Output.Compress = o.Compress
	}
}

// session bundles the components a command run needs.
type session struct {
	logger     *logrus.Logger
	loader     *ingest.Loader
	anonymizer *privacy.Anonymizer
	exporter   *export.ExportEngine
	artifacts  interfaces.ArtifactStore
	reports    interfaces.ReportStore
}

// openSession builds the loader, anonymizer and exporter and, unless
// dryRun, connects the artifact store and the optional report store.
func openSession(ctx context.Context, cfg *config.Config, logger *logrus.Logger, dryRun bool) (*session, error) {
	load, err := cfg.LoadOptions()
	if err != nil {
		return nil, err
	}
	exportConfig, err := cfg.ExportConfig()
	if err != nil {
		return nil, err
	}
	exporter, err := export.NewExportEngine(exportConfig, logger)
	if err != nil {
		return nil, err
	}

	s := &session{
		logger:     logger,
		loader:     ingest.NewLoader(load, logger),
		anonymizer: privacy.NewAnonymizer(nil, logger),
		exporter:   exporter,
	}
	if dryRun {
		return s, nil
	}

	factory := storage.NewFactory(logger)
	storageConfig := cfg.StorageConfig()

	s.artifacts, err = factory.CreateArtifactStore(ctx, storageConfig)
	if err != nil {
		return nil, err
	}
	s.reports, err = factory.CreateReportStore(ctx, storageConfig)
	if err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// publish writes the artifacts of a successful run and records every run in
// the report store.
func (s *session) publish(ctx context.Context, result *privacy.Result) (*models.RunReport, error) {
	artifacts := s.artifacts
	if !result.Succeeded() {
		artifacts = nil
	}
	return s.exporter.Publish(ctx, artifacts, s.reports, result)
}

func (s *session) Close() {
	if s.artifacts != nil {
		if err := s.artifacts.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close artifact store")
		}
	}
	if s.reports != nil {
		if err := s.reports.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close report store")
		}
	}
}

func formatPrecision(defined bool, precision float64) string {
	if !defined {
		return "undefined"
	}
	return fmt.Sprintf("%.4f", precision)
}

func printResult(w io.Writer, result *privacy.Result, report *models.RunReport) {
	fmt.Fprintf(w, "Anonymization k=%d l=%d: %s\n", result.Config.K, result.Config.L, result.Status)
	fmt.Fprintf(w, "Run ID:           %s\n", result.RunID)
	fmt.Fprintf(w, "Level:            %d\n", result.Level)
	fmt.Fprintf(w, "k-anonymity:      %t\n", result.KSatisfied)
	fmt.Fprintf(w, "l-diversity:      %t\n", result.LSatisfied)
	fmt.Fprintf(w, "Records:          %d\n", result.Dataset.Len())
	fmt.Fprintf(w, "Classes:          %d (average size %.2f)\n", len(result.Classes), result.Precision.AverageClassSize)
	fmt.Fprintf(w, "Precision:        %s\n", formatPrecision(result.Precision.Defined, result.Precision.Precision))
	fmt.Fprintf(w, "Suppressed:       %d\n", result.SuppressedRecords)
	fmt.Fprintf(w, "Malformed values: %d\n", result.Quality.TotalMalformed())

	if report != nil && len(report.Artifacts) > 0 {
		fmt.Fprintln(w, "Artifacts:")
		for _, location := range report.Artifacts {
			fmt.Fprintf(w, "  - %s\n", location)
		}
	}
}
