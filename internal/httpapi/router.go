// Package httpapi exposes attribution queries and touchpoint ingestion over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"attribution-engine/internal/analytics"
	"attribution-engine/internal/ingestion"
	"attribution-engine/internal/observability"
)

// Defaults for request limits.
const (
	DefaultMaxBodyBytes = 1 << 20
	DefaultMaxBatch     = 500
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	analytics *analytics.Service
	ingestor  *ingestion.Ingestor
	ready     func(ctx context.Context) error
	logger    *slog.Logger
	maxBatch  int
}

// Options configures the router.
type Options struct {
	Analytics *analytics.Service
	Ingestor  *ingestion.Ingestor
	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
	// JWTSecret enables bearer-token tenant auth. Empty trusts X-Shop-Domain.
	JWTSecret    []byte
	MaxBodyBytes int64
	MaxBatch     int
}

// NewRouter builds the API router.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	maxBatch := opts.MaxBatch
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}

	s := &Server{
		analytics: opts.Analytics,
		ingestor:  opts.Ingestor,
		ready:     opts.Ready,
		logger:    logger,
		maxBatch:  maxBatch,
	}

	mux := chi.NewRouter()
	mux.Use(RequestID)
	mux.Use(Logger(logger))
	mux.Use(Metrics)
	mux.Use(middleware.Recoverer)
	mux.Use(BodyLimit(maxBody))

	mux.Get("/healthz", s.handleHealthz)
	mux.Get("/readyz", s.handleReadyz)
	mux.Method(http.MethodGet, "/metrics", observability.Handler())

	mux.Route("/analytics", func(r chi.Router) {
		r.Use(TenantAuth(opts.JWTSecret))

		r.Get("/attribution", s.handleAttribution)
		r.Post("/attribution/touchpoint", s.handleTouchpoint)
		r.Get("/journey", s.handleJourney)
		r.Get("/journey/customer/{customerID}", s.handleCustomerJourney)
		r.Get("/paths", s.handlePaths)
		r.Post("/initialize", s.handleInitialize)
	})

	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteProblem(w, r, http.StatusNotFound, "not found", "no route for "+r.URL.Path, nil)
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteProblem(w, r, http.StatusMethodNotAllowed, "method not allowed", r.Method+" is not supported for "+r.URL.Path, nil)
	})

	return mux
}
