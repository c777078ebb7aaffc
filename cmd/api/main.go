// Package main is the entry point for the TestPulse template API server.
//
// It loads configuration, connects the template repository to DynamoDB,
// builds the HTTP server with the core chassis (middleware, routing, health
// checks) and serves the /v1/templates and /v1/history routes until SIGINT
// or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"testpulse/internal/api/handlers"
	"testpulse/internal/config"
	"testpulse/internal/core"
	"testpulse/internal/sanitize"
	"testpulse/internal/store"
	"testpulse/internal/templates"
	"testpulse/internal/types"
)

// slogAdapter wraps *slog.Logger to implement types.Logger for the template
// service.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// templateStore is what the API needs from DynamoDB.
type templateStore interface {
	store.DynamoAPI
	store.TableDescriber
}

var _ templateStore = (*dynamodb.Client)(nil)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.DefaultProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	redactor, err := sanitize.NewRedactorFromJSON(cfg.Redaction.LogRulesJSON, sanitize.DefaultLogRules)
	if err != nil {
		return fmt.Errorf("log redaction rules: %w", err)
	}
	logger := sanitize.NewLogger(os.Stdout, cfg.LogLevel, redactor)
	logger.Info("testpulse API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	awsCfg, err := config.LoadAWSConfig(context.Background(), cfg.AWS)
	if err != nil {
		return err
	}

	srv, err := buildServer(cfg, logger, dynamodb.NewFromConfig(awsCfg))
	if err != nil {
		return err
	}
	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires the template service and the history reader into the
// chassis and mounts routes.
func buildServer(cfg *config.Config, logger *slog.Logger, ddb templateStore) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	repo := store.NewTemplateRepository(ddb, cfg.Tables.Templates, cfg.Tables.EventTypeChannelIndex)
	service := templates.NewService(repo, types.RealClock{}, &slogAdapter{logger: logger})
	templateHandler := handlers.NewTemplateHandler(service, srv.Validator, logger)
	historyHandler := handlers.NewHistoryHandler(store.NewHistoryRepository(ddb, cfg.Tables.History), logger)

	srv.RouteRegistrars = append(srv.RouteRegistrars, templateHandler.RegisterRoutes, historyHandler.RegisterRoutes)
	srv.HealthProbes = append(srv.HealthProbes,
		store.NewTableProbe(ddb, cfg.Tables.Templates),
		store.NewTableProbe(ddb, cfg.Tables.History),
	)
	srv.MountRoutes()
	return srv, nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		// Leave headroom over the request context deadline so the timeout
		// response can still be written.
		WriteTimeout: cfg.Server.WriteTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown", "timeout", cfg.Server.ShutdownTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
