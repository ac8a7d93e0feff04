// Package api implements the HTTP layer for the lab diagnostic assistant.
// Handlers are methods on *Server. Each handler file is responsible for one
// resource group and only imports the dependencies it actually uses.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/nyashahama/lab-diagnostic-assistant/internal/ai"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/scoring"
)

// defaultRequestTimeout leaves room for the narrative call, which may take up
// to the Groq client timeout on its own.
const defaultRequestTimeout = 2 * time.Minute

// Config holds values read from environment variables at startup.
type Config struct {
	// AllowedOrigins lists the CORS origins. Empty means "*".
	AllowedOrigins []string

	// RequestTimeout bounds every request. Zero means two minutes.
	RequestTimeout time.Duration
}

// Server holds all shared dependencies. Each handler file attaches methods to
// this type and uses only the fields it needs.
type Server struct {
	// evaluator applies the rule set to every submitted report.
	evaluator *scoring.Evaluator

	// narrator produces the diagnostic narrative for /api/analyze.
	narrator ai.Narrator

	metrics *metrics
	cfg     Config
	logger  *slog.Logger
}

// NewServer constructs the Server and wires the chi router. The returned
// http.Handler is ready to pass to http.ListenAndServe.
func NewServer(
	evaluator *scoring.Evaluator,
	narrator ai.Narrator,
	cfg Config,
	logger *slog.Logger,
) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	s := &Server{
		evaluator: evaluator,
		narrator:  narrator,
		metrics:   newMetrics(),
		cfg:       cfg,
		logger:    logger,
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	})

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	// ── Health & metrics ──────────────────────────────────────────────────────
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	// ── API ───────────────────────────────────────────────────────────────────
	r.Route("/api", func(r chi.Router) {
		// Static catalog and rule set, for building the intake form.
		r.Get("/fields", s.handleListFields)
		r.Get("/rules", s.handleListRules)

		// Evaluation.
		r.Post("/risks", s.handleRisks)
		r.Post("/analyze", s.handleAnalyze)
	})

	return r
}
