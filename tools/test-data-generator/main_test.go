package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/anonkl/internal/ingest"
	"github.com/inferloop/anonkl/internal/privacy"
	"github.com/inferloop/anonkl/tests/helpers"
)

func newTestGenerator(records int, malformed float64) *Generator {
	config := getDefaultConfig()
	config.Records = records
	config.Seed = 42
	config.MalformedRate = malformed
	return NewGenerator(config, helpers.NewTestLogger())
}

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	first, err := newTestGenerator(50, 0).Generate(context.Background())
	require.NoError(t, err)
	second, err := newTestGenerator(50, 0).Generate(context.Background())
	require.NoError(t, err)

	require.Equal(t, 50, first.Len())
	assert.Equal(t, first.Records, second.Records)
}

func TestGeneratedRecordsAreWellFormed(t *testing.T) {
	generator := newTestGenerator(200, 0)
	dataset, err := generator.Generate(context.Background())
	require.NoError(t, err)

	hierarchies := privacy.DefaultHierarchies()
	for _, record := range dataset.Records {
		for _, attr := range privacy.DefaultQuasiIdentifiers() {
			g := hierarchies.Generalize(attr, record.Raw(attr), 0)
			assert.False(t, g.Malformed, "record %d %s=%q", record.Index, attr, record.Raw(attr))
			assert.Equal(t, 0, g.Level)
		}
	}
}

func TestGeneratedCSVLoads(t *testing.T) {
	generator := newTestGenerator(100, 0.1)
	dataset, err := generator.Generate(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.Write(&buf, dataset))

	loaded, err := ingest.NewLoader(ingest.DefaultLoadOptions(), helpers.NewTestLogger()).Load(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 100, loaded.Len())

	result, err := privacy.NewAnonymizer(nil, helpers.NewTestLogger()).Run(context.Background(), loaded, privacy.RunConfig{K: 2})
	require.NoError(t, err)
	assert.Positive(t, result.Quality.TotalMalformed())
	assert.Equal(t, "*", result.Dataset.Records[0].Name)
}

func TestGenerateRejectsInvalidConfig(t *testing.T) {
	config := getDefaultConfig()
	config.MaxBirthYear = 1900
	_, err := NewGenerator(config, helpers.NewTestLogger()).Generate(context.Background())
	assert.Error(t, err)

	config = getDefaultConfig()
	config.Places = nil
	_, err = NewGenerator(config, helpers.NewTestLogger()).Generate(context.Background())
	assert.Error(t, err)
}
