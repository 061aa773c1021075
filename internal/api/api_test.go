package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"counterfact/adapters/excel"
	"counterfact/adapters/memory"
	"counterfact/app"
	"counterfact/domain/run"
	"counterfact/internal/metrics"
	"counterfact/internal/testkit"
	"counterfact/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const specYAML = `
id: S4_top_uplift
intervention:
  type: policy
  rule: uplift_score
  coverage: 0.25
time_window:
  horizon_days: 30
value_mapping:
  value_per_y: 1
`

type fixture struct {
	handler http.Handler
	metrics *metrics.Metrics
	mapping json.RawMessage
}

func newFixture(t *testing.T, ping func(context.Context) error) *fixture {
	t.Helper()
	dir := t.TempDir()

	gen := testkit.DefaultLoggedConfig()
	gen.Rows = 800
	ds := testkit.NewLoggedDataGenerator(gen).MustGenerate()
	var buf bytes.Buffer
	require.NoError(t, excel.WriteCSV(&buf, ds))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logged.csv"), buf.Bytes(), 0o644))

	loader, err := excel.NewLoader(excel.LoaderConfig{BaseDir: dir, CacheSize: 2}, nil)
	require.NoError(t, err)

	cfg := app.DefaultEvaluationConfig()
	cfg.GComp.Bootstrap = 10
	cfg.GComp.CVFolds = 2
	met := metrics.New()
	svc, err := app.NewEvaluationService(cfg, memory.NewEvaluationRepository(), met, nil)
	require.NoError(t, err)

	mapping, err := json.Marshal(excel.MappingFor(ds))
	require.NoError(t, err)

	return &fixture{
		handler: NewRouter(Deps{Service: svc, Loader: loader, Metrics: met, Ping: ping}),
		metrics: met,
		mapping: mapping,
	}
}

func (f *fixture) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) evaluationBody(t *testing.T, extra map[string]any) []byte {
	t.Helper()
	body := map[string]any{
		"spec":    specYAML,
		"dataset": "logged.csv",
		"mapping": f.mapping,
	}
	for k, v := range extra {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down := newFixture(t, func(context.Context) error { return errors.New("connection refused") })
	rec = down.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestValidateScenario(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/scenarios/validate", "application/yaml", []byte(specYAML))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ok validateResp
	decode(t, rec, &ok)
	assert.True(t, ok.Valid)
	assert.Equal(t, "S4_top_uplift", ok.ScenarioID)

	bad := strings.Replace(specYAML, "coverage: 0.25", "coverage: 1.5", 1)
	rec = f.do(t, http.MethodPost, "/v1/scenarios/validate", "application/yaml", []byte(bad))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var e errResp
	decode(t, rec, &e)
	assert.Equal(t, "SPEC_VALIDATION", e.Code)
	assert.Contains(t, e.Field, "coverage")

	rec = f.do(t, http.MethodPost, "/v1/scenarios/validate", "image/png", []byte(specYAML))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestEvaluationLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/evaluations", "application/json", f.evaluationBody(t, nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var report run.Report
	decode(t, rec, &report)
	assert.Equal(t, "S4_top_uplift", report.Manifest.ScenarioID.String())
	assert.Equal(t, 200, report.Assignment.Treated)
	assert.NotEmpty(t, report.Gates.Decision)
	assert.Equal(t, "/v1/evaluations/"+report.ID().String(), rec.Header().Get("Location"))

	rec = f.do(t, http.MethodGet, "/v1/evaluations/"+report.ID().String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched run.Report
	decode(t, rec, &fetched)
	assert.Equal(t, report.ID(), fetched.ID())
	assert.Equal(t, report.Gates.Decision, fetched.Gates.Decision)

	rec = f.do(t, http.MethodGet, "/v1/evaluations?scenario_id=S4_top_uplift", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Evaluations []ports.EvaluationSummary `json:"evaluations"`
		Count       int                       `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)

	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "counterfact_evaluations_total")
	assert.Contains(t, rec.Body.String(), `route="/v1/evaluations"`)
}

func TestEvaluationAcceptsJSONObjectSpec(t *testing.T) {
	f := newFixture(t, nil)
	spec := map[string]any{
		"id":            "S5_all_in",
		"intervention":  map[string]any{"type": "do", "value": 1},
		"time_window":   map[string]any{"horizon_days": 7},
		"value_mapping": map[string]any{"value_per_y": 2},
	}
	rec := f.do(t, http.MethodPost, "/v1/evaluations", "application/json", f.evaluationBody(t, map[string]any{
		"spec":      spec,
		"estimator": "ips",
		"model":     "rf",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var report run.Report
	decode(t, rec, &report)
	assert.Equal(t, "ips", report.PrimaryMethod)
	assert.Equal(t, 800, report.Assignment.Treated)
}

func TestEvaluationErrors(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name   string
		body   []byte
		status int
		code   string
	}{
		{"malformed json", []byte(`{"spec":`), http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown field", []byte(`{"spec":"x","dataset":"logged.csv","bogus":1}`), http.StatusBadRequest, "INVALID_INPUT"},
		{"missing dataset", []byte(`{"spec":"x"}`), http.StatusBadRequest, "INVALID_INPUT"},
		{"bad estimator", f.evaluationBody(t, map[string]any{"estimator": "ipw"}), http.StatusBadRequest, "INVALID_INPUT"},
		{"bad model", f.evaluationBody(t, map[string]any{"model": "xgb"}), http.StatusBadRequest, "INVALID_INPUT"},
		{"invalid spec", f.evaluationBody(t, map[string]any{"spec": "id: nope"}), http.StatusBadRequest, "SPEC_VALIDATION"},
		{"dataset not found", f.evaluationBody(t, map[string]any{"dataset": "other.csv"}), http.StatusNotFound, "NOT_FOUND"},
		{"dataset outside dir", f.evaluationBody(t, map[string]any{"dataset": "../logged.csv"}), http.StatusUnprocessableEntity, "DATA_CONTRACT"},
		{"mapping names missing column", f.evaluationBody(t, map[string]any{"mapping": map[string]any{
			"treatment": "treatment", "outcome": "revenue", "log_propensity": "log_propensity",
		}}), http.StatusUnprocessableEntity, "DATA_CONTRACT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/evaluations", "application/json", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			var e errResp
			decode(t, rec, &e)
			assert.Equal(t, tt.code, e.Code)
		})
	}
}

func TestGetEvaluationErrors(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/evaluations/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/evaluations/0190c3f4-1d2e-7a00-8000-000000000000", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/evaluations?limit=-3", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/evaluations?decision=MAYBE", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
