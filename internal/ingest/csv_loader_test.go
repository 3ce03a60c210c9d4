package ingest

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/anonkl/pkg/errors"
	"github.com/inferloop/anonkl/tests/helpers"
)

const sampleCSV = `Nome;CPF;Localidade;Data Nascimento;Raca Cor;Resultado
Maria;111;Centro/Fortaleza/CE;01/01/1990;PARDA;Positivo
João;222;Aldeota/Fortaleza/CE;1985-05-03;;Negativo
`

func TestLoadNormalizesColumnsAndDates(t *testing.T) {
	loader := NewLoader(DefaultLoadOptions(), helpers.NewTestLogger())

	dataset, err := loader.Load(context.Background(), strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Equal(t, 2, dataset.Len())

	assert.Equal(t, []string{"nome", "cpf", "localidade", "data_nascimento", "raca_cor", "resultado"}, dataset.Columns)

	first := dataset.Records[0]
	assert.Equal(t, "Maria", first.Name)
	assert.Equal(t, "111", first.CPF)
	assert.Equal(t, "Centro/Fortaleza/CE", first.Location)
	assert.Equal(t, "01/01/1990", first.BirthDate)
	assert.Equal(t, "PARDA", first.RaceColor)
	assert.Equal(t, "Positivo", first.Extra["resultado"])

	second := dataset.Records[1]
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, "03/05/1985", second.BirthDate)
	assert.Equal(t, "", second.RaceColor)
}

func TestLoadDuplicatesRows(t *testing.T) {
	loader := NewLoader(LoadOptions{Separator: ';', Duplicate: 3}, helpers.NewTestLogger())

	dataset, err := loader.Load(context.Background(), strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Equal(t, 6, dataset.Len())

	for i, record := range dataset.Records {
		assert.Equal(t, i, record.Index)
	}
	assert.Equal(t, dataset.Records[0].Location, dataset.Records[2].Location)

	dataset.Records[0].Extra["resultado"] = "changed"
	assert.Equal(t, "Positivo", dataset.Records[1].Extra["resultado"])
}

func TestLoadRequiresColumns(t *testing.T) {
	loader := NewLoader(DefaultLoadOptions(), helpers.NewTestLogger())

	_, err := loader.Load(context.Background(), strings.NewReader("nome;localidade\nMaria;Centro/Fortaleza/CE\n"))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrMissingColumn))
	assert.Contains(t, err.Error(), "data_nascimento")

	_, err = loader.Load(context.Background(), strings.NewReader(""))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	env := helpers.NewTestEnvironment(t)
	path := filepath.Join(env.TempDir, "dados.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	dataset, err := NewLoader(DefaultLoadOptions(), env.Logger).LoadFile(env.Context, path)
	require.NoError(t, err)
	assert.Equal(t, 2, dataset.Len())

	_, err = NewLoader(DefaultLoadOptions(), env.Logger).LoadFile(env.Context, filepath.Join(env.TempDir, "missing.csv"))
	assert.Error(t, err)
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "01/02/2003", NormalizeDate("01/02/2003"))
	assert.Equal(t, "01/02/2003", NormalizeDate("2003-02-01"))
	assert.Equal(t, "01/02/2003", NormalizeDate("1/2/2003"))
	assert.Equal(t, "sem data", NormalizeDate("sem data"))
}

func TestNormalizeColumn(t *testing.T) {
	assert.Equal(t, "data_nascimento", NormalizeColumn(" Data Nascimento "))
	assert.Equal(t, "nome", NormalizeColumn("\ufeffNome"))
}

func TestLoadCSV(t *testing.T) {
	dataset, err := LoadCSV(context.Background(), strings.NewReader(helpers.ScenarioCSV()), DefaultLoadOptions())
	require.NoError(t, err)
	assert.Equal(t, 10, dataset.Len())
	assert.Equal(t, "Dom Expedito/Sobral/CE", dataset.Records[9].Location)
}
