// Package statusapi exposes /health, /ready, /metrics and /stats over
// plain HTTP, adapted from the teacher's health-check server with the
// distributed-cluster readiness checks (raft leadership, storage) swapped
// for this engine's own single-process concerns.
package statusapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/rpkivet/pkg/events"
	"github.com/cuemby/rpkivet/pkg/metrics"
	"github.com/cuemby/rpkivet/pkg/model"
)

// Server serves the status endpoints over a given address. It holds the
// most recently completed run's Stats so /stats can answer without
// coordinating with an in-progress run.
type Server struct {
	mu    sync.RWMutex
	stats model.Stats
	ran   bool

	broker *events.Broker
	mux    *http.ServeMux
}

// New builds a Server holding broker. Readiness depends only on whether
// SetStats has been called; the broker is not consulted.
func New(broker *events.Broker) *Server {
	s := &Server{broker: broker, mux: http.NewServeMux()}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.Handle("/metrics", metrics.Handler())
	return s
}

// SetStats records the outcome of a completed validation run.
func (s *Server) SetStats(stats model.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	s.ran = true
}

// Handler returns the http.Handler to mount or serve directly.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe starts the status server on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
}

type readyResponse struct {
	Status string `json:"status"`
	Ran    bool   `json:"ran_at_least_once"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ran := s.ran
	s.mu.RUnlock()
	status := "ready"
	code := http.StatusOK
	if !ran {
		status = "not ready"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, readyResponse{Status: status, Ran: ran})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	stats := s.stats
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
