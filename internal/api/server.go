package api

import (
	"context"
	"net/http"
	"time"

	"counterfact/app"
	"counterfact/internal"
	"counterfact/internal/metrics"
	"counterfact/ports"

	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes bounds request bodies; datasets are referenced by path, never uploaded
const maxBodyBytes = 1 << 20

// Deps are the collaborators the HTTP layer calls into
type Deps struct {
	Service *app.EvaluationService
	Loader  ports.DatasetLoader
	// Metrics is optional; /metrics is only mounted when set
	Metrics *metrics.Metrics
	// Ping reports backing-store health for /healthz, optional
	Ping   func(ctx context.Context) error
	Logger *internal.Logger
}

// Server is the thin HTTP surface over the evaluation service
type Server struct {
	svc     *app.EvaluationService
	loader  ports.DatasetLoader
	metrics *metrics.Metrics
	ping    func(ctx context.Context) error
	log     *internal.Logger
}

// NewRouter wires routes and middleware
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = internal.NopLogger()
	}
	s := &Server{
		svc:     d.Service,
		loader:  d.Loader,
		metrics: d.Metrics,
		ping:    d.Ping,
		log:     logger.With("api"),
	}

	r := chi.NewRouter()
	r.Use(m.RequestID, m.RealIP, s.requestLogger, m.Recoverer)
	if s.metrics != nil {
		r.Use(s.instrument)
	}

	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(m.AllowContentType("application/json", "application/yaml", "application/x-yaml", "text/yaml", "text/plain"))
		r.Post("/scenarios/validate", s.validateScenario)
		r.Post("/evaluations", s.createEvaluation)
		r.Get("/evaluations", s.listEvaluations)
		r.Get("/evaluations/{id}", s.getEvaluation)
	})

	return r
}

// NewServer wraps the router in an http.Server with conservative timeouts
func NewServer(addr string, d Deps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(d),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := m.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("%s %s -> %d in %s [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(started), m.GetReqID(r.Context()))
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := m.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(route, status, time.Since(started))
	})
}
