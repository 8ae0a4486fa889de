package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Rrens/bi-genie/internal/api/handler"
	customMiddleware "github.com/Rrens/bi-genie/internal/api/middleware"
	"github.com/Rrens/bi-genie/internal/config"
	"github.com/Rrens/bi-genie/internal/llm"
)

// Dependencies are the collaborators the HTTP layer serves.
// RateLimiter and Cache are optional.
type Dependencies struct {
	Dashboards  handler.DashboardService
	Providers   *llm.Router
	Readiness   map[string]handler.Pinger
	RateLimiter customMiddleware.Limiter
	Cache       handler.CacheFlusher
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg config.ServerConfig, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.MiddlewareTimeout > 0 {
		r.Use(middleware.Timeout(cfg.MiddlewareTimeout))
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	dashboardHandler := handler.NewDashboardHandler(deps.Dashboards)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Readiness))

		// Routes acting on behalf of a Superset user
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.BearerToken)

			r.Get("/llm-providers", handler.ListLLMProviders(deps.Providers))
			r.Get("/rounds", dashboardHandler.Rounds)

			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Get("/history", dashboardHandler.History)
				r.Post("/reset", dashboardHandler.Reset)
				r.Delete("/", dashboardHandler.Reset)
			})

			if deps.Cache != nil {
				r.Post("/cache/flush", handler.FlushCache(deps.Cache))
			}

			// Generation is the expensive call, so only it is rate limited
			r.Group(func(r chi.Router) {
				if deps.RateLimiter != nil {
					r.Use(customMiddleware.NewRateLimitMiddleware(deps.RateLimiter).Limit)
				}
				r.Post("/dashboards", dashboardHandler.Submit)
			})
		})
	})

	return r
}
