package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/pkg/constants"
	"github.com/inferloop/anonkl/pkg/errors"
	"github.com/inferloop/anonkl/pkg/models"
)

// LoadOptions configures CSV loading.
type LoadOptions struct {
	Separator rune `json:"separator" mapstructure:"separator"`

	// Duplicate replicates every row this many times, for exercising larger k
	// on small samples.
	Duplicate int `json:"duplicate" mapstructure:"duplicate"`
}

// DefaultLoadOptions returns ';'-separated loading without duplication.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Separator: constants.DefaultSeparator,
		Duplicate: constants.DefaultDuplicate,
	}
}

var requiredColumns = []string{
	string(models.AttributeLocation),
	string(models.AttributeBirthDate),
	string(models.AttributeRaceColor),
}

// dateInputLayouts are accepted for date of birth and rewritten as dd/mm/aaaa.
var dateInputLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2/1/2006",
}

// Loader reads health records from CSV.
type Loader struct {
	options LoadOptions
	logger  *logrus.Logger
}

func NewLoader(options LoadOptions, logger *logrus.Logger) *Loader {
	if options.Separator == 0 {
		options.Separator = constants.DefaultSeparator
	}
	if options.Duplicate < 1 {
		options.Duplicate = 1
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Loader{options: options, logger: logger}
}

// LoadFile opens path and loads it.
func (l *Loader) LoadFile(ctx context.Context, path string) (*models.Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeReadFailed,
			fmt.Sprintf("couldn't open the csv file %q", path))
	}
	defer file.Close()

	dataset, err := l.Load(ctx, file)
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"file":    path,
		"records": dataset.Len(),
	}).Info("Dataset loaded")

	return dataset, nil
}

// Load reads a header row followed by data rows. Header names are normalized
// (trimmed, lower-cased, spaces replaced by underscores) and must include
// localidade, data_nascimento and raca_cor.
func (l *Loader) Load(ctx context.Context, reader io.Reader) (*models.Dataset, error) {
	r := csv.NewReader(reader)
	r.Comma = l.options.Separator
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "csv input is empty").
			WithDetails("a header row is required")
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidFormat, "couldn't read csv header")
	}

	columns := make([]string, len(header))
	position := make(map[string]int, len(header))
	for i, name := range header {
		columns[i] = NormalizeColumn(name)
		position[columns[i]] = i
	}
	for _, required := range requiredColumns {
		if _, ok := position[required]; !ok {
			err := errors.NewValidationError(errors.CodeMissingField, fmt.Sprintf("missing required column %q", required))
			err.Cause = errors.ErrMissingColumn
			return nil, err
		}
	}

	dataset := &models.Dataset{Columns: columns}
	line := 1
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidFormat,
				fmt.Sprintf("couldn't read csv line %d", line))
		}

		record := l.toRecord(row, columns)
		for i := 0; i < l.options.Duplicate; i++ {
			copied := record.Clone()
			copied.Index = len(dataset.Records)
			dataset.Records = append(dataset.Records, copied)
		}
	}

	return dataset, nil
}

func (l *Loader) toRecord(row []string, columns []string) *models.Record {
	record := &models.Record{Extra: make(map[string]string)}

	for i, column := range columns {
		value := ""
		if i < len(row) {
			value = strings.TrimSpace(row[i])
		}

		switch column {
		case models.ColumnName:
			record.Name = value
		case models.ColumnCPF:
			record.CPF = value
		case string(models.AttributeLocation):
			record.Location = value
		case string(models.AttributeBirthDate):
			record.BirthDate = NormalizeDate(value)
		case string(models.AttributeRaceColor):
			record.RaceColor = value
		default:
			record.Extra[column] = value
		}
	}

	return record
}

// NormalizeColumn trims, lower-cases and replaces spaces with underscores.
func NormalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// NormalizeDate rewrites ISO and non-padded dates as dd/mm/aaaa. Values it
// cannot parse are returned unchanged so the hierarchy can flag them.
func NormalizeDate(value string) string {
	if _, err := time.Parse("02/01/2006", value); err == nil {
		return value
	}
	for _, layout := range dateInputLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("02/01/2006")
		}
	}
	return value
}

// LoadCSV loads reader with a default logger.
func LoadCSV(ctx context.Context, reader io.Reader, options LoadOptions) (*models.Dataset, error) {
	return NewLoader(options, nil).Load(ctx, reader)
}
