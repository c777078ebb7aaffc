// Package core provides the HTTP chassis for the TestPulse template API. It
// builds the chi router, applies the cross-cutting middleware (panic
// recovery, request IDs, logging, security headers) and leaves domain routes
// to handler packages registered through RouteRegistrars.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"testpulse/internal/config"
)

// RouteRegistrar mounts a handler group under /v1.
type RouteRegistrar func(r chi.Router)

// Server holds the dependencies shared by every request.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	HealthProbes []HealthProbe

	// RouteRegistrars are applied by MountRoutes. Handlers live in their own
	// packages so core never imports them.
	RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer validates the required dependencies. Routes are mounted by a
// separate MountRoutes call so tests can add registrars first.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server resources. The DynamoDB client holds no pooled
// state beyond the shared HTTP transport, so this only logs.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.Logger.Info("server shutdown complete")
	return nil
}
