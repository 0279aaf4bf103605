// Package web serves the daemon-mode HTTP surface: a health probe, a JSON
// status endpoint describing the last sync run, and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mbtacal/internal/log"
)

// Status describes the most recent sync run.
type Status struct {
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	ActiveAlerts int        `json:"active_alerts"`
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	Deleted      int        `json:"deleted"`
}

// Server provides the daemon HTTP endpoints. The sync loop pushes run
// results in via SetStatus; handlers only read the cached copy.
type Server struct {
	mux *http.ServeMux

	statusMu sync.RWMutex
	status   Status
}

// NewServer constructs a Server and registers its routes on reg.
func NewServer(reg *prometheus.Registry) (*Server, error) {
	if err := RegisterMetrics(reg); err != nil {
		return nil, err
	}

	s := &Server{mux: http.NewServeMux()}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return s, nil
}

// SetStatus replaces the cached run status.
func (s *Server) SetStatus(st Status) {
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:    listen,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP shutdown failed", err)
		}
	}()

	log.Info("starting HTTP server", "listen", "http://"+listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.statusMu.RLock()
	st := s.status
	s.statusMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		log.Error("status encode failed", err)
	}
}
