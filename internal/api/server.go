package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/podmatch/internal/config"
)

// Server is the HTTP front of the matching functions.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer wires handlers and the health checker into a router and builds
// the listener for cfg's host and port.
func NewServer(cfg config.ServerConfig, h *Handlers, hc *HealthChecker) *Server {
	handler := SetupRoutes(h, hc)

	// Write timeout leaves room past the per-invocation budget so a run
	// that hits its deadline can still report.
	write := cfg.InvocationTimeout() + 10*time.Second
	if write < 30*time.Second {
		write = 30 * time.Second
	}
	return &Server{
		handler: handler,
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.GetHost(), cfg.Port),
			Handler:           handler,
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      write,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Addr is the address the server listens on.
func (s *Server) Addr() string { return s.server.Addr }

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
