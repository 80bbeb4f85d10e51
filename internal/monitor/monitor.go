// Package monitor serves the counters of a running recording over HTTP.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/andresmejia3/jetstreamer/internal/pipeline"
	"github.com/gorilla/mux"
)

// Server exposes GET /metrics and GET /healthz.
type Server struct {
	runID   string
	stats   *pipeline.Stats
	started time.Time
	srv     *http.Server
	log     *slog.Logger
}

func New(addr, runID string, stats *pipeline.Stats, log *slog.Logger) *Server {
	s := &Server{runID: runID, stats: stats, started: time.Now(), log: log}
	s.srv = &http.Server{
		Handler:      s.Router(),
		Addr:         addr,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	return s
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	return r
}

type metricsResponse struct {
	RunID         string  `json:"run_id"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	pipeline.StatsSnapshot
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	response := metricsResponse{
		RunID:         s.runID,
		UptimeSeconds: time.Since(s.started).Seconds(),
		StatsSnapshot: s.stats.Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Start listens on the configured address and serves in the background.
// Listen errors are returned; serve errors after that are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.log.Info("serving metrics", "addr", ln.Addr().String())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
