package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lingoloop/lingoloop/internal/database"
	mw "github.com/lingoloop/lingoloop/internal/middleware"
	inats "github.com/lingoloop/lingoloop/internal/nats"
	iredis "github.com/lingoloop/lingoloop/internal/redis"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Quota handlers
	GetQuota      http.HandlerFunc
	ConsumeQuota  http.HandlerFunc
	RecordAttempt http.HandlerFunc
	QuotaHistory  http.HandlerFunc
	QuotaGate     func(http.Handler) http.Handler

	// Audit
	ListAuditLogs http.HandlerFunc

	// Admin handlers
	AdminResetUser    http.HandlerFunc
	AdminTriggerReset http.HandlerFunc
	SchedulerStatus   http.HandlerFunc

	// Middleware
	AuthMiddleware  func(http.Handler) http.Handler
	AdminMiddleware func(http.Handler) http.Handler

	// Scheduler health; nil when the scheduler is disabled.
	SchedulerHealthy func() bool
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AdminRateLimiter   func(http.Handler) http.Handler
	// Redis is nil when the rate limiter and reset lock are disabled.
	Redis *goredis.Client
}

// NewRouter builds the HTTP surface. pool is nil with the memory store and
// natsClient is nil when events are disabled.
func NewRouter(pool *pgxpool.Pool, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":    "healthy",
			"database":  "healthy",
			"nats":      "healthy",
			"redis":     "healthy",
			"scheduler": "healthy",
		}

		status := http.StatusOK

		if pool == nil {
			health["database"] = "not configured"
		} else if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		// Redis only backs rate limiting and the reset lock.
		if cfg.Redis == nil {
			health["redis"] = "not configured"
		} else if err := iredis.HealthCheck(r.Context(), cfg.Redis); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
		}

		// A failing reset streak degrades but does not fail readiness:
		// requests can still be served.
		if h.SchedulerHealthy != nil {
			if !h.SchedulerHealthy() {
				health["scheduler"] = "reset failing"
				health["status"] = "degraded"
			}
		} else {
			health["scheduler"] = "disabled"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Learner routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Route("/quota", func(r chi.Router) {
				r.Get("/", h.GetQuota)
				r.Post("/consume", h.ConsumeQuota)
				r.Get("/history", h.QuotaHistory)
				r.Get("/audit", h.ListAuditLogs)

				r.Group(func(r chi.Router) {
					r.Use(h.QuotaGate)
					r.Post("/attempts", h.RecordAttempt)
				})
			})
		})

		// Operator routes
		r.Route("/admin/quota", func(r chi.Router) {
			if cfg.AdminRateLimiter != nil {
				r.Use(cfg.AdminRateLimiter)
			}
			r.Use(h.AdminMiddleware)

			r.Post("/users/{userID}/reset", h.AdminResetUser)
			r.Post("/reset", h.AdminTriggerReset)
			r.Get("/scheduler", h.SchedulerStatus)
		})
	})

	return r
}
