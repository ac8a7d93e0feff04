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

	"github.com/nyashahama/lab-diagnostic-assistant/internal/ai"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/api"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/config"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/logging"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/scoring"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, logfmt in development. Config errors are logged
	// before ENV from .env is known, so the process env decides until then.
	logger := logging.New(os.Getenv("ENV"), os.Stdout)
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Default().Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Rebuild now that Env may have come from .env.
	logger = logging.New(cfg.Env, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port)

	// ── Rules ─────────────────────────────────────────────────────────────────
	evaluator, err := scoring.Load(cfg.RulesFile)
	if err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	source := "built-in"
	if cfg.RulesFile != "" {
		source = cfg.RulesFile
	}
	logger.Info("rules loaded", "source", source, "count", len(evaluator.Rules()))

	// ── AI ────────────────────────────────────────────────────────────────────
	narrator, err := ai.NewGroqClient(ai.GroqConfig{
		APIKey:      cfg.GroqAPIKey,
		BaseURL:     cfg.GroqBaseURL,
		Model:       cfg.GroqModel,
		Temperature: cfg.GroqTemperature,
		Timeout:     cfg.GroqTimeout,
	})
	if err != nil {
		return fmt.Errorf("ai: %w", err)
	}
	logger.Info("ai: using Groq", "model", narrator.Model())

	// ── HTTP server ───────────────────────────────────────────────────────────
	// Each request may wait on one narrative call, so the write deadline and
	// the per-request timeout sit above the Groq timeout.
	requestTimeout := cfg.GroqTimeout + 15*time.Second

	handler := api.NewServer(
		evaluator,
		narrator,
		api.Config{
			AllowedOrigins: cfg.AllowedOrigins,
			RequestTimeout: requestTimeout,
		},
		logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until either a signal arrives or the server dies unexpectedly.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	// Give in-flight requests up to 20 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
