// Package ops serves the operational HTTP surface: liveness and metrics.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthReporter summarizes pipeline health for the /healthz payload.
type HealthReporter func() map[string]any

// Server is the ops HTTP server.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer builds the ops server. metricsHandler serves /metrics; health
// (optional) enriches the /healthz payload.
func NewServer(host string, port int, logger *slog.Logger, metricsHandler http.Handler, health HealthReporter) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		payload := map[string]any{"status": "ok"}
		if health != nil {
			for k, v := range health() {
				payload[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the router for testing purposes.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting ops server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ops server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping ops server")
	return s.server.Shutdown(ctx)
}
