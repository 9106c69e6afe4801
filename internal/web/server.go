// Package web serves the fraud check form, the JSON scoring API and the
// operational endpoints (health, model info, Prometheus metrics).
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"fraud-detector/internal/ml"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// Metrics is the subset of the metrics wrapper used by the web layer.
type Metrics interface {
	UnknownTypeInc()
	InvalidInputInc()
	HTTPObserve(route, method string, status int, seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) UnknownTypeInc()                            {}
func (noopMetrics) InvalidInputInc()                           {}
func (noopMetrics) HTTPObserve(string, string, int, float64) {}

// Config holds the HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MetricsHandler is mounted on /metrics; nil leaves the route out.
	MetricsHandler http.Handler
}

// Server is the HTTP front end over a classification service.
type Server struct {
	svc     *ml.Service
	metrics Metrics
	page    *template.Template
	router  *mux.Router
	server  *http.Server
}

// NewServer builds the router and the underlying http.Server. metrics may be nil.
func NewServer(cfg Config, svc *ml.Service, metrics Metrics) (*Server, error) {
	if svc == nil {
		return nil, errors.New("web: nil classification service")
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	page, err := template.New("page").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}

	s := &Server{
		svc:     svc,
		metrics: metrics,
		page:    page,
	}

	r := mux.NewRouter()
	r.Use(RequestID, Logger(log.Logger), Instrument(metrics), Recovery(log.Logger))

	// mux skips middleware for requests no route matched
	unmatched := func(h http.HandlerFunc) http.Handler {
		return RequestID(Logger(log.Logger)(Instrument(metrics)(h)))
	}
	r.NotFoundHandler = unmatched(handleNotFound)
	r.MethodNotAllowedHandler = unmatched(handleMethodNotAllowed)

	r.HandleFunc("/", s.handleForm).Methods(http.MethodGet)
	r.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	api.HandleFunc("/model", s.handleModel).Methods(http.MethodGet)
	api.HandleFunc("/drift", s.handleDrift).Methods(http.MethodGet)
	api.HandleFunc("/drift/reset", s.handleDriftReset).Methods(http.MethodPost)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler).Methods(http.MethodGet)
	}

	s.router = r
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		log.Info().
			Str("address", s.server.Addr).
			Msg("Starting fraud detection server")

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown HTTP server")
		return err
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}
