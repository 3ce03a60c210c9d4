package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/inferloop/anonkl/internal/privacy"
	"github.com/inferloop/anonkl/pkg/models"
)

// CSVExporter writes the anonymized table in the input column order, with
// the class columns appended.
type CSVExporter struct{}

func (ce *CSVExporter) Name() string {
	return "csv"
}

func (ce *CSVExporter) Format() ExportFormat {
	return FormatCSV
}

func (ce *CSVExporter) ContentType() string {
	return "text/csv"
}

// Export writes one row per remaining record.
func (ce *CSVExporter) Export(ctx context.Context, writer io.Writer, result *privacy.Result, options ExportOptions) error {
	if result == nil || result.Dataset == nil {
		return fmt.Errorf("no dataset to export")
	}

	separator := options.Separator
	if separator == 0 {
		separator = ';'
	}

	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = separator

	columns := Columns(result.Dataset)
	if err := csvWriter.Write(columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, record := range result.Dataset.Records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := csvWriter.Write(Row(record, columns)); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", record.Index, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Columns returns the dataset columns followed by class_size and
// class_sensitive_diversity when they are not already present.
func Columns(dataset *models.Dataset) []string {
	columns := make([]string, 0, len(dataset.Columns)+2)
	seen := make(map[string]bool, len(dataset.Columns))
	for _, column := range dataset.Columns {
		columns = append(columns, column)
		seen[column] = true
	}
	for _, derived := range []string{models.ColumnClassSize, models.ColumnClassDiversity} {
		if !seen[derived] {
			columns = append(columns, derived)
		}
	}
	return columns
}

// Row renders a record for the given column order.
func Row(record *models.Record, columns []string) []string {
	row := make([]string, len(columns))
	for i, column := range columns {
		switch column {
		case models.ColumnName:
			row[i] = record.Name
		case models.ColumnCPF:
			row[i] = record.CPF
		case models.ColumnClassSize:
			row[i] = strconv.Itoa(record.ClassSize)
		case models.ColumnClassDiversity:
			row[i] = strconv.Itoa(record.ClassDiversity)
		case string(models.AttributeLocation), string(models.AttributeBirthDate), string(models.AttributeRaceColor):
			row[i] = record.Value(models.Attribute(column))
		default:
			row[i] = record.Extra[column]
		}
	}
	return row
}
