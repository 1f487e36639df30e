package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/CodeLink-Engine/internal/interfaces/http/handlers"
	"github.com/turtacn/CodeLink-Engine/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware of the route tree.
// Nil handlers leave their routes unmounted.
type RouterConfig struct {
	EngineHandler *handlers.EngineHandler
	GraphHandler  *handlers.GraphHandler
	HealthHandler *handlers.HealthHandler

	// CORS is applied when it lists at least one origin.
	CORS middleware.CORSConfig
	// RateLimiter is optional.
	RateLimiter *middleware.KeyedLimiter
	RateLimit   middleware.RateLimitConfig

	Logger           logging.Logger
	Metrics          *prometheus.EngineMetrics
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter constructs the complete HTTP route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogging(cfg.Logger.Named("http"), cfg.Metrics, middleware.DefaultLoggingConfig()))
	r.Use(chimw.Recoverer)
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORS))
	}
	if cfg.RateLimiter != nil {
		r.Use(middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit))
	}

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/healthz/detail", cfg.HealthHandler.Detailed)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		r.Handle("/metrics", cfg.MetricsCollector.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.EngineHandler != nil {
			cfg.EngineHandler.RegisterRoutes(api)
		}
		if cfg.GraphHandler != nil {
			cfg.GraphHandler.RegisterRoutes(api)
		}
	})

	return r
}
