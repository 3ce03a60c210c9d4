package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/internal/export"
	"github.com/inferloop/anonkl/internal/ingest"
	"github.com/inferloop/anonkl/internal/observability/metrics"
	"github.com/inferloop/anonkl/internal/privacy"
	"github.com/inferloop/anonkl/pkg/constants"
	"github.com/inferloop/anonkl/pkg/errors"
	"github.com/inferloop/anonkl/pkg/interfaces"
	"github.com/inferloop/anonkl/pkg/models"
)

// BuildInfo is reported by GET /version.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Dependencies wires the handlers to the anonymization pipeline. Artifacts,
// Reports and Metrics are optional.
type Dependencies struct {
	Anonymizer *privacy.Anonymizer
	Exporter   *export.ExportEngine
	Artifacts  interfaces.ArtifactStore
	Reports    interfaces.ReportStore
	Metrics    *metrics.PrometheusMetrics

	// Defaults fill in k, l and maximum levels missing from a request
	Defaults privacy.RunConfig
	Load     ingest.LoadOptions
	Build    BuildInfo
}

// Handlers serves the anonymization API
type Handlers struct {
	anonymizer *privacy.Anonymizer
	exporter   *export.ExportEngine
	artifacts  interfaces.ArtifactStore
	reports    interfaces.ReportStore
	metrics    *metrics.PrometheusMetrics
	defaults   privacy.RunConfig
	load       ingest.LoadOptions
	build      BuildInfo
	logger     *logrus.Logger
	startTime  time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Dependencies, logger *logrus.Logger) (*Handlers, error) {
	if logger == nil {
		logger = logrus.New()
	}

	anonymizer := deps.Anonymizer
	if anonymizer == nil {
		anonymizer = privacy.NewAnonymizer(nil, logger)
	}
	if deps.Metrics != nil {
		anonymizer.WithObserver(deps.Metrics)
	}

	exporter := deps.Exporter
	if exporter == nil {
		var err error
		if exporter, err = export.NewExportEngine(nil, logger); err != nil {
			return nil, err
		}
	}

	if deps.Defaults.K == 0 {
		deps.Defaults.K = constants.DefaultK
	}
	if deps.Defaults.L == 0 {
		deps.Defaults.L = constants.DefaultL
	}

	if deps.Build.Version == "" {
		deps.Build = BuildInfo{
			Version:   constants.AppVersion,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		}
	}

	return &Handlers{
		anonymizer: anonymizer,
		exporter:   exporter,
		artifacts:  deps.Artifacts,
		reports:    deps.Reports,
		metrics:    deps.Metrics,
		defaults:   deps.Defaults,
		load:       deps.Load,
		build:      deps.Build,
		logger:     logger,
		startTime:  time.Now(),
	}, nil
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   h.build.Version,
		"uptime":    time.Since(h.startTime).String(),
	})
}

// Version handles GET /version
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.build)
}

// NotFound handles unmatched routes
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	err := errors.NewValidationError("NOT_FOUND", fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
	err.HTTPStatus = http.StatusNotFound
	writeError(w, r, err)
}

// Anonymize handles POST /api/v1/anonymize. The body is a CSV file; k, l,
// suppress, max_level_<attribute>, separator, format and persist are read
// from the query string. A run that cannot reach its constraints answers
// 422 with the JSON report.
func (h *Handlers) Anonymize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	config, err := h.runConfig(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	dataset, err := h.loadBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.anonymizer.Run(ctx, dataset, config)
	if err != nil {
		writeError(w, r, err)
		return
	}

	artifacts, err := h.publish(r, result)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set(constants.HeaderRunID, result.RunID)
	w.Header().Set(constants.HeaderRunStatus, string(result.Status))
	if result.Precision.Defined {
		w.Header().Set(constants.HeaderPrecision, strconv.FormatFloat(result.Precision.Precision, 'f', 6, 64))
	}

	if !result.Succeeded() {
		writeJSON(w, http.StatusUnprocessableEntity, newRunResponse(result, artifacts))
		return
	}

	switch r.URL.Query().Get("format") {
	case "", constants.FormatCSV:
		var buf bytes.Buffer
		if err := h.exporter.Export(ctx, result, export.FormatCSV, &buf); err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set(constants.HeaderContentType, constants.ContentTypeCSV)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", export.FileName(result.Config.K, result.Config.L, export.FormatCSV)))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	case constants.FormatJSON:
		writeJSON(w, http.StatusOK, newRunResponse(result, artifacts))
	default:
		writeError(w, r, errors.NewValidationError(errors.CodeInvalidFormat,
			fmt.Sprintf("unsupported format %q", r.URL.Query().Get("format"))))
	}
}

// Sweep handles POST /api/v1/sweep. Lists of k and l are read from the k and
// l query parameters (comma separated); without them the default grid runs.
func (h *Handlers) Sweep(w http.ResponseWriter, r *http.Request) {
	base, err := h.runConfig(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	configs, err := sweepConfigs(r, base)
	if err != nil {
		writeError(w, r, err)
		return
	}

	dataset, err := h.loadBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	results, err := h.anonymizer.Sweep(r.Context(), dataset, configs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	runs := make([]*runResponse, 0, len(results))
	for _, result := range results {
		artifacts, err := h.publish(r, result)
		if err != nil {
			writeError(w, r, err)
			return
		}
		runs = append(runs, newRunResponse(result, artifacts))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// ListRuns handles GET /api/v1/runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		err := errors.NewStorageError(errors.CodeStorageError, "run report store not configured")
		err.HTTPStatus = http.StatusServiceUnavailable
		writeError(w, r, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, errors.NewValidationError(errors.CodeOutOfRange, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	runs, err := h.reports.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*models.RunReport{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// runResponse is the JSON form of a run returned by the API.
type runResponse struct {
	*export.RunDocument
	Artifacts []string `json:"artifacts,omitempty"`
}

func newRunResponse(result *privacy.Result, artifacts []string) *runResponse {
	return &runResponse{
		RunDocument: export.NewRunDocument(result, 0),
		Artifacts:   artifacts,
	}
}

// publish writes artifacts and the run report when persist=true.
func (h *Handlers) publish(r *http.Request, result *privacy.Result) ([]string, error) {
	persist, _ := strconv.ParseBool(r.URL.Query().Get("persist"))
	if !persist {
		return nil, nil
	}
	if h.artifacts == nil && h.reports == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidInput, "persist requested but no storage is configured")
	}

	report, err := h.exporter.Publish(r.Context(), h.artifacts, h.reports, result)
	status := "ok"
	if err != nil {
		status = "error"
	}
	if h.metrics != nil && h.artifacts != nil {
		h.metrics.RecordStorageOperation(h.artifacts.Name(), "put", status)
	}
	if h.metrics != nil && h.reports != nil {
		h.metrics.RecordStorageOperation("postgres", "save_run", status)
	}
	if err != nil {
		return nil, err
	}
	return report.Artifacts, nil
}

func (h *Handlers) loadBody(r *http.Request) (*models.Dataset, error) {
	options := h.load
	if sep := r.URL.Query().Get("separator"); sep != "" {
		runes := []rune(sep)
		if len(runes) != 1 {
			return nil, errors.NewValidationError(errors.CodeInvalidInput, "separator must be a single character")
		}
		options.Separator = runes[0]
	}

	return ingest.NewLoader(options, h.logger).Load(r.Context(), r.Body)
}

// runConfig merges the query string over the configured defaults.
func (h *Handlers) runConfig(r *http.Request) (privacy.RunConfig, error) {
	query := r.URL.Query()
	config := h.defaults
	config.MaxLevels = make(map[models.Attribute]int, len(h.defaults.MaxLevels))
	for attr, level := range h.defaults.MaxLevels {
		config.MaxLevels[attr] = level
	}

	var err error
	if config.K, err = intParam(query.Get("k"), config.K, "k"); err != nil {
		return config, err
	}
	if config.L, err = intParam(query.Get("l"), config.L, "l"); err != nil {
		return config, err
	}
	if raw := query.Get("suppress"); raw != "" {
		if config.SuppressViolations, err = strconv.ParseBool(raw); err != nil {
			return config, errors.NewValidationError(errors.CodeInvalidInput, "suppress must be a boolean")
		}
	}
	for _, attr := range []models.Attribute{models.AttributeLocation, models.AttributeBirthDate} {
		key := "max_level_" + string(attr)
		raw := query.Get(key)
		if raw == "" {
			continue
		}
		level, err := intParam(raw, 0, key)
		if err != nil {
			return config, err
		}
		config.MaxLevels[attr] = level
	}

	return config, nil
}

func sweepConfigs(r *http.Request, base privacy.RunConfig) ([]privacy.RunConfig, error) {
	query := r.URL.Query()
	if query.Get("k") == "" && query.Get("l") == "" {
		configs := privacy.DefaultGrid()
		for i := range configs {
			configs[i].MaxLevels = base.MaxLevels
			configs[i].SuppressViolations = base.SuppressViolations
		}
		return configs, nil
	}

	ks, err := intList(query.Get("k"), []int{base.K}, "k")
	if err != nil {
		return nil, err
	}
	ls, err := intList(query.Get("l"), []int{base.L}, "l")
	if err != nil {
		return nil, err
	}

	configs := privacy.Grid(ks, ls)
	for i := range configs {
		configs[i].MaxLevels = base.MaxLevels
		configs[i].SuppressViolations = base.SuppressViolations
	}
	return configs, nil
}

func intParam(raw string, fallback int, name string) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, errors.NewValidationError(errors.CodeInvalidInput, fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}

func intList(raw string, fallback []int, name string) ([]int, error) {
	if raw == "" {
		return fallback, nil
	}
	var values []int
	for _, part := range strings.Split(raw, ",") {
		n, err := intParam(part, 0, name)
		if err != nil {
			return nil, err
		}
		values = append(values, n)
	}
	return values, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := errors.IsAppError(err)
	if !ok {
		appErr = errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, err.Error())
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, errors.ErrorResponse{
		Error:     appErr,
		RequestID: getRequestID(r),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}
