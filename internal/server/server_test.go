package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/anonkl/internal/observability/metrics"
	"github.com/inferloop/anonkl/pkg/constants"
	"github.com/inferloop/anonkl/pkg/models"
	"github.com/inferloop/anonkl/tests/helpers"
)

type memoryStore struct {
	mu   sync.Mutex
	keys []string
}

func (m *memoryStore) Name() string { return "memory" }

func (m *memoryStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return "memory://" + key, nil
}

func (m *memoryStore) Close() error { return nil }

type memoryReports struct {
	mu   sync.Mutex
	runs []*models.RunReport
}

func (m *memoryReports) SaveRun(ctx context.Context, report *models.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, report)
	return nil
}

func (m *memoryReports) ListRuns(ctx context.Context, limit int) ([]*models.RunReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs, nil
}

func (m *memoryReports) Close() error { return nil }

func newTestServer(t *testing.T, deps Dependencies) *Server {
	t.Helper()

	config := DefaultConfig()
	config.MetricsPort = config.Port

	s, err := NewServer(config, deps, helpers.NewTestLogger())
	require.NoError(t, err)
	return s
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthAndVersion(t *testing.T) {
	s := newTestServer(t, Dependencies{Build: BuildInfo{Version: "1.2.3"}})

	rec := do(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderRequestID))

	rec = do(s, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.2.3", decode(t, rec)["version"])
}

func TestAnonymizeCSV(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	rec := do(s, http.MethodPost, "/api/v1/anonymize?k=3", helpers.ScenarioCSV())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "success", rec.Header().Get(constants.HeaderRunStatus))
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderRunID))
	assert.Equal(t, "0.766667", rec.Header().Get(constants.HeaderPrecision))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "dados_anonimizados_k3_l1.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 11)
	assert.Equal(t, "nome;cpf;localidade;data_nascimento;raca_cor;class_size;class_sensitive_diversity", lines[0])
	assert.Equal(t, "*;*;Centro/Fortaleza/CE;01/01/1990;PARDA;3;3", lines[1])
	assert.Equal(t, "*;*;Fortaleza/CE;05/1985;PARDA;3;2", lines[4])
}

func TestAnonymizeJSON(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	rec := do(s, http.MethodPost, "/api/v1/anonymize?k=4&format=json", helpers.ScenarioCSV())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, float64(3), body["level"])
	assert.Contains(t, body, "summary")
}

func TestAnonymizeUnreachable(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	csv := "localidade;data_nascimento;raca_cor\n" +
		"Centro/Fortaleza/CE;01/01/1990;PARDA\n" +
		"Centro/Fortaleza/CE;01/01/1990;PARDA\n"
	rec := do(s, http.MethodPost, "/api/v1/anonymize?k=2&l=2", csv)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "failure", body["status"])
	assert.Equal(t, false, body["l_satisfied"])
	assert.Contains(t, body["error"], "l-diversity not reached")
}

func TestAnonymizeBadRequests(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	tests := []struct {
		name   string
		target string
		body   string
		code   string
	}{
		{"non-numeric k", "/api/v1/anonymize?k=abc", helpers.ScenarioCSV(), "INVALID_INPUT"},
		{"l above categories", "/api/v1/anonymize?k=2&l=7", helpers.ScenarioCSV(), "OUT_OF_RANGE"},
		{"missing column", "/api/v1/anonymize", "localidade;raca_cor\nCentro/Fortaleza/CE;PARDA\n", "MISSING_FIELD"},
		{"empty body", "/api/v1/anonymize", "", "INVALID_INPUT"},
		{"unknown format", "/api/v1/anonymize?format=xml", helpers.ScenarioCSV(), "INVALID_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			body := decode(t, rec)
			appErr, ok := body["error"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, tt.code, appErr["code"])
		})
	}
}

func TestSweepDefaultGrid(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	rec := do(s, http.MethodPost, "/api/v1/sweep", helpers.ScenarioCSV())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(7), decode(t, rec)["count"])
}

func TestSweepCustomGrid(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	rec := do(s, http.MethodPost, "/api/v1/sweep?k=2,3&l=1,2", helpers.ScenarioCSV())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, float64(4), body["count"])

	runs := body["runs"].([]interface{})
	first := runs[0].(map[string]interface{})
	config := first["config"].(map[string]interface{})
	assert.Equal(t, float64(2), config["k"])
	assert.Equal(t, float64(1), config["l"])
}

func TestSweepKeepsLAboveK(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	rec := do(s, http.MethodPost, "/api/v1/sweep?k=2&l=3", helpers.ScenarioCSV())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	require.Equal(t, float64(1), body["count"])

	run := body["runs"].([]interface{})[0].(map[string]interface{})
	assert.Contains(t, []interface{}{"success", "failure"}, run["status"])
}

func TestListRunsWithoutStore(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	rec := do(s, http.MethodGet, "/api/v1/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPersistAndListRuns(t *testing.T) {
	store := &memoryStore{}
	reports := &memoryReports{}
	s := newTestServer(t, Dependencies{Artifacts: store, Reports: reports})

	rec := do(s, http.MethodPost, "/api/v1/anonymize?k=3&format=json&persist=true", helpers.ScenarioCSV())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	artifacts := body["artifacts"].([]interface{})
	assert.Contains(t, artifacts, "memory://dados_anonimizados_k3_l1.csv")
	assert.Contains(t, store.keys, "relatorio_k3_l1.json")

	rec = do(s, http.MethodGet, "/api/v1/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode(t, rec)
	assert.Equal(t, float64(1), listed["count"])

	rec = do(s, http.MethodGet, "/api/v1/runs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPersistWithoutStorage(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	rec := do(s, http.MethodPost, "/api/v1/anonymize?k=3&persist=true", helpers.ScenarioCSV())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	pm, err := metrics.NewPrometheusMetrics(nil, helpers.NewTestLogger())
	require.NoError(t, err)
	s := newTestServer(t, Dependencies{Metrics: pm})

	rec := do(s, http.MethodPost, "/api/v1/anonymize?k=3", helpers.ScenarioCSV())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `anonkl_runs_total{status="success"} 1`)
	assert.Contains(t, rec.Body.String(), `anonkl_http_requests_total{method="POST",path="/api/v1/anonymize",status="200"} 1`)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	rec := do(s, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	config := DefaultConfig()
	config.MetricsPort = config.Port
	config.CORS.AllowedOrigins = []string{"https://painel.example.org"}

	s, err := NewServer(config, Dependencies{}, helpers.NewTestLogger())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/anonymize", nil)
	req.Header.Set("Origin", "https://painel.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://painel.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://other.example.org")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
