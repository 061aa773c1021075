package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"counterfact/domain/verdict"
	"counterfact/internal/cache"
	"counterfact/ports"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.MetricsRecorder = (*Metrics)(nil)

func TestRecorderCounters(t *testing.T) {
	m := New()

	m.ObserveEvaluation(verdict.DecisionGo, verdict.GradeGreen, 150*time.Millisecond)
	m.ObserveEvaluation(verdict.DecisionGo, verdict.GradeGreen, 90*time.Millisecond)
	m.ObserveEvaluation(verdict.DecisionHold, verdict.GradeRed, time.Second)
	m.SpecRejected()
	m.DegenerateEstimate("ips")
	m.GateStatus("ESS", verdict.StatusPass)
	m.GateStatus("ESS", verdict.StatusPass)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("GO", "green")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("HOLD", "red")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpecRejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DegenerateEstimates.WithLabelValues("ips")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateStatuses.WithLabelValues("ESS", "PASS")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.EvaluationDuration))
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.SpecRejected()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.SpecRejections))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SpecRejections))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveRequest("/v1/evaluations", http.StatusOK, 20*time.Millisecond)
	m.RegisterCacheStats(func() cache.Stats { return cache.Stats{Hits: 3, Misses: 1, Size: 2} })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `counterfact_http_requests_total{code="200",route="/v1/evaluations"} 1`), body)
	assert.Contains(t, body, "counterfact_dataset_cache_hits 3")
	assert.Contains(t, body, "go_goroutines")
}
