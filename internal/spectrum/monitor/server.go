// Package monitor serves a DiffCollector over HTTP: an echarts dashboard,
// the raw series as JSON, a sample budget control, PNG plots and the
// Prometheus metrics of the sweeps.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/banshee-data/distance.spectrum/internal/monitoring"
	"github.com/banshee-data/distance.spectrum/internal/spectrum"
	"github.com/banshee-data/distance.spectrum/internal/spectrum/store"
	"github.com/banshee-data/distance.spectrum/internal/version"
)

// echartsAssetsPrefix is where rendered pages load the echarts scripts from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Server is the HTTP front end of one DiffCollector.
type Server struct {
	address   string
	collector *spectrum.DiffCollector
	store     *store.Store
	server    *http.Server
}

// ServerConfig contains configuration options for the server.
type ServerConfig struct {
	Address   string
	Collector *spectrum.DiffCollector
	// Store is optional; without it /spectrum/workspaces answers 404.
	Store *store.Store
}

// NewServer creates a server for the given collector.
func NewServer(config ServerConfig) *Server {
	s := &Server{
		address:   config.Address,
		collector: config.Collector,
		store:     config.Store,
	}
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully. It
// returns early with the listen error if the server cannot start.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("[monitor] starting HTTP server on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	monitoring.Logf("[monitor] shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[monitor] HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("[monitor] HTTP server force close error: %v", err)
		}
	}
	monitoring.Logf("[monitor] HTTP server routine stopped")
	return nil
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/spectrum", s.handleSpectrum)
	mux.HandleFunc("/spectrum/series", s.handleSeries)
	mux.HandleFunc("/spectrum/samples", s.handleSamples)
	mux.HandleFunc("/spectrum/trigger", s.handleTrigger)
	mux.HandleFunc("/spectrum/plot.png", s.handlePlotPNG)
	mux.HandleFunc("/spectrum/workspaces", s.handleWorkspaces)
	mux.Handle("/metrics", monitoring.MetricsHandler())
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("[monitor] failed to encode response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"version":   version.String(),
		"completed": s.collector.Completed(),
	})
}
