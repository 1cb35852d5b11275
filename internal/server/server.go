package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/cpusched/internal/config"
	"github.com/me/cpusched/internal/metrics"
	"github.com/me/cpusched/internal/store"
	"github.com/me/cpusched/internal/workload"
)

// maxWorkloadBytes bounds the size of a submitted workload document.
const maxWorkloadBytes = 1 << 20

// Server is the cpusched REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	root      *slog.Logger // handed to per-run simulators
	config    config.ServerConfig
	startTime time.Time
	loader    *workload.Loader
	store     store.Store
	metrics   *metrics.Collector // optional; nil disables /metrics
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithMetrics exposes c on /metrics and reports simulations to it.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = c
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, st store.Store, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		root:      logger,
		config:    cfg,
		startTime: time.Now(),
		loader:    workload.NewLoader(logger),
		store:     st,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Post("/", s.handleCreateRun)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Delete("/", s.handleDeleteRun)
				r.Get("/timeline", s.handleGetTimeline)
			})
		})
	})
}
