// Package monitor serves operational endpoints while a fit runs.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halfcourt/matchfit/pkg/logger"
	"github.com/halfcourt/matchfit/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// ProgressProvider reports pipeline progress for /progress. Implementations
// are polled concurrently with the run and must be safe for concurrent use.
type ProgressProvider interface {
	Progress() map[string]any
}

// Server exposes /metrics, /healthz and /progress on one address. A Server
// constructed with an empty address is disabled: Start and Stop are no-ops.
// The monitor is observability only, never part of the data path.
type Server struct {
	addr     string
	provider ProgressProvider
	srv      *http.Server
	log      logger.Logger
}

// New creates a monitor server. provider may be nil; /progress then serves
// an empty object.
func New(addr string, provider ProgressProvider) *Server {
	return &Server{
		addr:     addr,
		provider: provider,
		log:      logger.Get().Named("monitor"),
	}
}

// Register attaches the monitor routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/progress", s.handleProgress)
}

// Start begins serving in the background. Serve errors are logged, not
// returned: a broken monitor must not take the fit down with it.
func (s *Server) Start(ctx context.Context) {
	if s.addr == "" {
		return
	}

	mux := http.NewServeMux()
	s.Register(mux)

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		s.log.Info(ctx, "monitor listening", logger.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(ctx, "monitor server failed", logger.Error(err))
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("monitor shutdown: %w", err)
	}
	return nil
}

// handleMetrics serves the custom prometheus registry.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// handleHealth handles GET /healthz requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProgress handles GET /progress requests.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	progress := map[string]any{}
	if s.provider != nil {
		progress = s.provider.Progress()
	}
	writeJSON(w, http.StatusOK, progress)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
