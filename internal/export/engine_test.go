package export

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/anonkl/internal/privacy"
	"github.com/inferloop/anonkl/pkg/models"
	"github.com/inferloop/anonkl/tests/helpers"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memoryStore) Name() string { return "memory" }

func (m *memoryStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return "memory://" + key, nil
}

func (m *memoryStore) Close() error { return nil }

func runScenario(t *testing.T, config privacy.RunConfig) *privacy.Result {
	t.Helper()
	env := helpers.NewTestEnvironment(t)

	result, err := privacy.NewAnonymizer(nil, env.Logger).Run(env.Context, helpers.ScenarioDataset(), config)
	require.NoError(t, err)
	return result
}

func TestNewExportEngine(t *testing.T) {
	engine, err := NewExportEngine(nil, helpers.NewTestLogger())
	require.NoError(t, err)
	require.NotNil(t, engine)

	assert.Equal(t, []ExportFormat{FormatCSV, FormatJSON}, engine.GetSupportedFormats())
	assert.True(t, engine.config.EnableCharts)
}

func TestNewExportEngineInvalidFormat(t *testing.T) {
	_, err := NewExportEngine(&ExportConfig{Formats: []ExportFormat{"parquet"}}, helpers.NewTestLogger())
	assert.Error(t, err)
}

func TestExportCSV(t *testing.T) {
	engine, err := NewExportEngine(nil, helpers.NewTestLogger())
	require.NoError(t, err)

	result := runScenario(t, privacy.RunConfig{K: 3})

	var buf bytes.Buffer
	require.NoError(t, engine.Export(context.Background(), result, FormatCSV, &buf))

	reader := csv.NewReader(strings.NewReader(buf.String()))
	reader.Comma = ';'
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 11)

	assert.Equal(t, []string{"nome", "cpf", "localidade", "data_nascimento", "raca_cor",
		"class_size", "class_sensitive_diversity"}, rows[0])
	assert.Equal(t, []string{"*", "*", "Centro/Fortaleza/CE", "01/01/1990", "PARDA", "3", "3"}, rows[1])
	assert.Equal(t, []string{"*", "*", "Fortaleza/CE", "05/1985", "PARDA", "3", "2"}, rows[4])
	assert.Equal(t, []string{"*", "*", "Sobral/CE", "11/1972", "BRANCA", "4", "4"}, rows[10])
}

func TestExportCSVKeepsExtraColumns(t *testing.T) {
	dataset := helpers.ScenarioDataset()
	dataset.Columns = append(dataset.Columns, "unidade")
	for _, record := range dataset.Records {
		record.Extra = map[string]string{"unidade": "UBS 1"}
	}

	env := helpers.NewTestEnvironment(t)
	result, err := privacy.NewAnonymizer(nil, env.Logger).Run(env.Context, dataset, privacy.RunConfig{K: 3})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, (&CSVExporter{}).Export(env.Context, &buf, result, ExportOptions{Separator: ','}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "nome,cpf,localidade,data_nascimento,raca_cor,unidade,class_size,class_sensitive_diversity", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",UBS 1,3,3"))
}

func TestExportJSON(t *testing.T) {
	engine, err := NewExportEngine(nil, helpers.NewTestLogger())
	require.NoError(t, err)

	result := runScenario(t, privacy.RunConfig{K: 4})

	var buf bytes.Buffer
	require.NoError(t, engine.Export(context.Background(), result, FormatJSON, &buf))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "success", doc["status"])
	assert.Equal(t, float64(3), doc["level"])
	assert.Equal(t, result.RunID, doc["run_id"])
	assert.NotContains(t, doc, "error")

	summary, ok := doc["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(10), summary["records"])
}

func TestExportJSONCarriesFailure(t *testing.T) {
	dataset := helpers.NewDataset(
		helpers.Row{Location: "Centro/Fortaleza/CE", BirthDate: "01/01/1990", RaceColor: "PARDA"},
		helpers.Row{Location: "Centro/Fortaleza/CE", BirthDate: "01/01/1990", RaceColor: "PARDA"},
	)
	env := helpers.NewTestEnvironment(t)
	result, err := privacy.NewAnonymizer(nil, env.Logger).Run(env.Context, dataset, privacy.RunConfig{K: 2, L: 2})
	require.NoError(t, err)
	require.Equal(t, privacy.StatusFailure, result.Status)

	var buf bytes.Buffer
	require.NoError(t, (&JSONExporter{}).Export(env.Context, &buf, result, ExportOptions{}))
	assert.Contains(t, buf.String(), "l-diversity not reached")
}

func TestExportUnsupportedFormat(t *testing.T) {
	engine, err := NewExportEngine(nil, helpers.NewTestLogger())
	require.NoError(t, err)

	var buf bytes.Buffer
	err = engine.Export(context.Background(), runScenario(t, privacy.RunConfig{K: 2}), FormatPNG, &buf)
	assert.Error(t, err)
}

func TestExportRun(t *testing.T) {
	engine, err := NewExportEngine(&ExportConfig{
		Prefix:       "runs",
		Formats:      []ExportFormat{FormatCSV, FormatJSON},
		EnableCharts: true,
	}, helpers.NewTestLogger())
	require.NoError(t, err)

	store := newMemoryStore()
	files, err := engine.ExportRun(context.Background(), store, runScenario(t, privacy.RunConfig{K: 3}))
	require.NoError(t, err)
	require.Len(t, files, 4)

	assert.Equal(t, "runs/dados_anonimizados_k3_l1.csv", files[0].Key)
	assert.Equal(t, "memory://runs/dados_anonimizados_k3_l1.csv", files[0].Location)
	assert.Equal(t, "runs/relatorio_k3_l1.json", files[1].Key)
	assert.Equal(t, "runs/class_sizes_k3_l1.png", files[2].Key)
	assert.Equal(t, "runs/diversity_k3_l1.png", files[3].Key)

	assert.Equal(t, "text/csv", store.types["runs/dados_anonimizados_k3_l1.csv"])
	assert.True(t, bytes.HasPrefix(store.objects["runs/class_sizes_k3_l1.png"], []byte("\x89PNG")))
	for _, file := range files {
		assert.Equal(t, int64(len(store.objects[file.Key])), file.Size)
	}
}

func TestExportRunCompressed(t *testing.T) {
	engine, err := NewExportEngine(&ExportConfig{
		Formats:           []ExportFormat{FormatCSV},
		EnableCompression: true,
	}, helpers.NewTestLogger())
	require.NoError(t, err)

	store := newMemoryStore()
	files, err := engine.ExportRun(context.Background(), store, runScenario(t, privacy.RunConfig{K: 3}))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "dados_anonimizados_k3_l1.csv.gz", files[0].Key)

	gz, err := gzip.NewReader(bytes.NewReader(store.objects[files[0].Key]))
	require.NoError(t, err)
	plain, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(plain), "nome;cpf;localidade"))
}

func TestExportRunWithoutStore(t *testing.T) {
	engine, err := NewExportEngine(nil, helpers.NewTestLogger())
	require.NoError(t, err)

	_, err = engine.ExportRun(context.Background(), nil, runScenario(t, privacy.RunConfig{K: 2}))
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "dados_anonimizados_k4_l3.csv", FileName(4, 3, FormatCSV))
	assert.Equal(t, "relatorio_k4_l3.json", FileName(4, 3, FormatJSON))
}

type memoryReports struct {
	saved []*models.RunReport
}

func (m *memoryReports) SaveRun(ctx context.Context, report *models.RunReport) error {
	m.saved = append(m.saved, report)
	return nil
}

func (m *memoryReports) ListRuns(ctx context.Context, limit int) ([]*models.RunReport, error) {
	return m.saved, nil
}

func (m *memoryReports) Close() error { return nil }

func TestPublish(t *testing.T) {
	engine, err := NewExportEngine(&ExportConfig{Formats: []ExportFormat{FormatCSV}}, helpers.NewTestLogger())
	require.NoError(t, err)

	store := newMemoryStore()
	reports := &memoryReports{}
	result := runScenario(t, privacy.RunConfig{K: 3})

	report, err := engine.Publish(context.Background(), store, reports, result)
	require.NoError(t, err)

	assert.Equal(t, result.RunID, report.RunID)
	assert.Equal(t, []string{"memory://dados_anonimizados_k3_l1.csv"}, report.Artifacts)
	require.Len(t, reports.saved, 1)
	assert.Equal(t, "success", reports.saved[0].Status)
	assert.Equal(t, 10, reports.saved[0].Records)
}

func TestPublishWithoutStores(t *testing.T) {
	engine, err := NewExportEngine(nil, helpers.NewTestLogger())
	require.NoError(t, err)

	report, err := engine.Publish(context.Background(), nil, nil, runScenario(t, privacy.RunConfig{K: 2}))
	require.NoError(t, err)
	assert.Empty(t, report.Artifacts)
}
