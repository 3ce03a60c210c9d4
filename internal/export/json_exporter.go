package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/inferloop/anonkl/internal/privacy"
	"github.com/inferloop/anonkl/internal/reporting"
)

// JSONExporter writes the run report: the result metadata plus the class
// summary.
type JSONExporter struct{}

// RunDocument is the JSON layout of an exported run.
type RunDocument struct {
	*privacy.Result
	Summary reporting.Summary `json:"summary"`
	Error   string            `json:"error,omitempty"`
}

func (je *JSONExporter) Name() string {
	return "json"
}

func (je *JSONExporter) Format() ExportFormat {
	return FormatJSON
}

func (je *JSONExporter) ContentType() string {
	return "application/json"
}

func (je *JSONExporter) Export(ctx context.Context, writer io.Writer, result *privacy.Result, options ExportOptions) error {
	if result == nil {
		return fmt.Errorf("no result to export")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	encoder := json.NewEncoder(writer)
	if options.Pretty {
		encoder.SetIndent("", "  ")
	}

	if err := encoder.Encode(NewRunDocument(result, options.TopClasses)); err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}
	return nil
}

// NewRunDocument builds the exported form of a result.
func NewRunDocument(result *privacy.Result, top int) *RunDocument {
	if top <= 0 {
		top = reporting.DefaultTopClasses
	}
	doc := &RunDocument{
		Result:  result,
		Summary: reporting.Summarize(result, top),
	}
	if err := result.Err(); err != nil {
		doc.Error = err.Error()
	}
	return doc
}
