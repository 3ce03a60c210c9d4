package helpers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/pkg/models"
)

// TestEnvironment provides a test environment with common utilities
type TestEnvironment struct {
	Logger  *logrus.Logger
	Context context.Context
	Cancel  context.CancelFunc
	TempDir string
	T       *testing.T
}

// NewTestEnvironment creates a new test environment. The context is
// cancelled when the test finishes.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	return &TestEnvironment{
		Logger:  NewTestLogger(),
		Context: ctx,
		Cancel:  cancel,
		TempDir: t.TempDir(),
		T:       t,
	}
}

// NewTestLogger returns a logger that discards its output.
func NewTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

// NewRecord builds a record with a generated name and CPF.
func NewRecord(index int, location, birthDate, raceColor string) *models.Record {
	return &models.Record{
		Index:     index,
		Name:      fmt.Sprintf("Pessoa %d", index),
		CPF:       fmt.Sprintf("%011d", 10000000000+index),
		Location:  location,
		BirthDate: birthDate,
		RaceColor: raceColor,
	}
}

// Row is a compact record description used by NewDataset.
type Row struct {
	Location  string
	BirthDate string
	RaceColor string
}

// NewDataset builds a dataset from rows, indexing records from zero.
func NewDataset(rows ...Row) *models.Dataset {
	dataset := &models.Dataset{
		Columns: []string{models.ColumnName, models.ColumnCPF,
			string(models.AttributeLocation), string(models.AttributeBirthDate), string(models.AttributeRaceColor)},
	}
	for i, row := range rows {
		dataset.Records = append(dataset.Records, NewRecord(i, row.Location, row.BirthDate, row.RaceColor))
	}
	return dataset
}

// ScenarioDataset returns ten records: three share Centro/Fortaleza/CE and
// 01/01/1990, the other seven are distinct at level 0 but collapse into
// groups of at least three once generalized to city and month.
func ScenarioDataset() *models.Dataset {
	return NewDataset(
		Row{"Centro/Fortaleza/CE", "01/01/1990", "PARDA"},
		Row{"Centro/Fortaleza/CE", "01/01/1990", "BRANCA"},
		Row{"Centro/Fortaleza/CE", "01/01/1990", "PRETA"},
		Row{"Aldeota/Fortaleza/CE", "03/05/1985", "PARDA"},
		Row{"Meireles/Fortaleza/CE", "17/05/1985", "BRANCA"},
		Row{"Benfica/Fortaleza/CE", "29/05/1985", "PARDA"},
		Row{"Centro/Sobral/CE", "02/11/1972", "AMARELA"},
		Row{"Junco/Sobral/CE", "14/11/1972", "PARDA"},
		Row{"Derby/Sobral/CE", "21/11/1972", "PRETA"},
		Row{"Dom Expedito/Sobral/CE", "30/11/1972", "BRANCA"},
	)
}

// ScenarioCSV renders ScenarioDataset as ';'-separated CSV with a header.
func ScenarioCSV() string {
	var b strings.Builder
	dataset := ScenarioDataset()
	b.WriteString(strings.Join(dataset.Columns, ";"))
	b.WriteString("\n")
	for _, record := range dataset.Records {
		b.WriteString(strings.Join([]string{record.Name, record.CPF, record.Location, record.BirthDate, record.RaceColor}, ";"))
		b.WriteString("\n")
	}
	return b.String()
}
