// Package api exposes the management surface: rule CRUD, alert history,
// monitor control, pair analysis, and latest prices.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pairwatch/internal/cache"
	"pairwatch/internal/monitor"
	"pairwatch/internal/storage"
)

// MonitorControl is the lifecycle surface the API drives.
type MonitorControl interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() monitor.State
	Status(ctx context.Context) (monitor.Status, error)
	CheckNow(ctx context.Context) (monitor.CycleSummary, error)
}

// Options configure the HTTP server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// AnalysisWindow is the default rolling window for ad hoc analysis
	// requests that do not pass one.
	AnalysisWindow int
	// AnalysisLookback caps how many bars an analysis request loads.
	AnalysisLookback int
}

// Server hosts the management API.
type Server struct {
	rules    storage.RuleStore
	bars     storage.BarStore
	latest   cache.LatestCache
	monitor  MonitorControl
	registry prometheus.Gatherer
	opts     Options
	logger   zerolog.Logger

	httpServer *http.Server
}

func NewServer(rules storage.RuleStore, bars storage.BarStore, latest cache.LatestCache, mc MonitorControl, registry prometheus.Gatherer, opts Options, logger zerolog.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.AnalysisWindow <= 0 {
		opts.AnalysisWindow = 20
	}
	if opts.AnalysisLookback <= 0 {
		opts.AnalysisLookback = 500
	}
	return &Server{
		rules:    rules,
		bars:     bars,
		latest:   latest,
		monitor:  mc,
		registry: registry,
		opts:     opts,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the route table. Exposed for tests.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/rules", s.handleListRules).Methods(http.MethodGet)
	v1.HandleFunc("/rules", s.handleCreateRule).Methods(http.MethodPost)
	v1.HandleFunc("/rules/{id}", s.handleGetRule).Methods(http.MethodGet)
	v1.HandleFunc("/rules/{id}", s.handleUpdateRule).Methods(http.MethodPut)
	v1.HandleFunc("/rules/{id}", s.handleDeleteRule).Methods(http.MethodDelete)

	v1.HandleFunc("/history", s.handleListHistory).Methods(http.MethodGet)
	v1.HandleFunc("/history/{id}/ack", s.handleAcknowledge).Methods(http.MethodPost)

	v1.HandleFunc("/monitor/status", s.handleMonitorStatus).Methods(http.MethodGet)
	v1.HandleFunc("/monitor/start", s.handleMonitorStart).Methods(http.MethodPost)
	v1.HandleFunc("/monitor/stop", s.handleMonitorStop).Methods(http.MethodPost)
	v1.HandleFunc("/monitor/check", s.handleMonitorCheck).Methods(http.MethodPost)

	v1.HandleFunc("/analysis", s.handleAnalysis).Methods(http.MethodGet)
	v1.HandleFunc("/prices", s.handlePrices).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("api listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storageStatus maps storage sentinels onto HTTP codes.
func storageStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrUnknownSeries):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, storage.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
