package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/podiumhq/podium/internal/database"
	"github.com/podiumhq/podium/internal/events"
	mw "github.com/podiumhq/podium/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Reservation protocol
	Reserve  http.HandlerFunc
	Complete http.HandlerFunc
	Release  http.HandlerFunc
	GetUsage http.HandlerFunc

	// Metered AI pipeline
	Chat    http.HandlerFunc
	Analyze http.HandlerFunc

	// Response records
	GetResponse    http.HandlerFunc
	ResponseEvents http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AIRateLimiter      func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, eventsClient *events.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe: checks DB and NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if eventsClient != nil && !eventsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if eventsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/ai", func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			if cfg.AIRateLimiter != nil {
				r.Use(cfg.AIRateLimiter)
			}

			r.Post("/reserve", h.Reserve)
			r.Post("/complete", h.Complete)
			r.Post("/release", h.Release)
			r.Get("/usage", h.GetUsage)

			r.Post("/chat", h.Chat)
			r.Post("/analyze", h.Analyze)

			r.Route("/responses/{responseID}", func(r chi.Router) {
				r.Get("/", h.GetResponse)
				r.Get("/events", h.ResponseEvents)
			})
		})
	})

	return r
}
