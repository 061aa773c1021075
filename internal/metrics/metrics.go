package metrics

import (
	"net/http"
	"strconv"
	"time"

	"counterfact/domain/verdict"
	"counterfact/internal/cache"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the system. Each instance owns
// its registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	EvaluationsTotal    *prometheus.CounterVec
	EvaluationDuration  prometheus.Histogram
	SpecRejections      prometheus.Counter
	DegenerateEstimates *prometheus.CounterVec
	GateStatuses        *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates and registers all metrics
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		EvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "counterfact_evaluations_total",
				Help: "Completed evaluations by decision and assurance grade",
			},
			[]string{"decision", "grade"},
		),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "counterfact_evaluation_duration_seconds",
			Help:    "Wall time of one full evaluation",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		SpecRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "counterfact_spec_rejections_total",
			Help: "Scenario documents rejected by validation",
		}),
		DegenerateEstimates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "counterfact_degenerate_estimates_total",
				Help: "Estimator calls that returned the degenerate result",
			},
			[]string{"estimator"},
		),
		GateStatuses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "counterfact_gate_status_total",
				Help: "Quality gate outcomes by gate and status",
			},
			[]string{"gate", "status"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "counterfact_http_requests_total",
				Help: "HTTP requests by route pattern and status code",
			},
			[]string{"route", "code"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "counterfact_http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// ObserveEvaluation implements ports.MetricsRecorder
func (m *Metrics) ObserveEvaluation(decision verdict.Decision, grade verdict.Grade, elapsed time.Duration) {
	m.EvaluationsTotal.WithLabelValues(string(decision), string(grade)).Inc()
	m.EvaluationDuration.Observe(elapsed.Seconds())
}

// SpecRejected implements ports.MetricsRecorder
func (m *Metrics) SpecRejected() {
	m.SpecRejections.Inc()
}

// DegenerateEstimate implements ports.MetricsRecorder
func (m *Metrics) DegenerateEstimate(estimator string) {
	m.DegenerateEstimates.WithLabelValues(estimator).Inc()
}

// GateStatus implements ports.MetricsRecorder
func (m *Metrics) GateStatus(gate string, status verdict.Status) {
	m.GateStatuses.WithLabelValues(gate, string(status)).Inc()
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RegisterCacheStats exposes dataset cache counters as gauges read at scrape time
func (m *Metrics) RegisterCacheStats(stats func() cache.Stats) {
	m.Registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "counterfact_dataset_cache_hits",
			Help: "Dataset cache hits since start",
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "counterfact_dataset_cache_misses",
			Help: "Dataset cache misses since start",
		}, func() float64 { return float64(stats().Misses) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "counterfact_dataset_cache_entries",
			Help: "Datasets currently cached",
		}, func() float64 { return float64(stats().Size) }),
	)
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
