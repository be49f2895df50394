package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	_ "time/tzdata"

	"github.com/lingoloop/lingoloop/internal/api"
	"github.com/lingoloop/lingoloop/internal/audit"
	"github.com/lingoloop/lingoloop/internal/auth"
	"github.com/lingoloop/lingoloop/internal/config"
	"github.com/lingoloop/lingoloop/internal/database"
	mw "github.com/lingoloop/lingoloop/internal/middleware"
	inats "github.com/lingoloop/lingoloop/internal/nats"
	"github.com/lingoloop/lingoloop/internal/quota"
	iredis "github.com/lingoloop/lingoloop/internal/redis"
	"github.com/lingoloop/lingoloop/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	// Quota store
	var (
		pool  *pgxpool.Pool
		store quota.Store
	)
	switch cfg.Quota.Store {
	case config.StoreMemory:
		store = quota.NewMemoryStore(clock)
	default:
		pool, err = database.NewPostgresPool(ctx, cfg.DB)
		if err != nil {
			slog.Error("connecting to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
			slog.Error("running migrations", "error", err)
			os.Exit(1)
		}
		store = quota.NewRepository(pool)
	}

	// Redis is optional: it backs the admin rate limiter and the reset lock.
	var redisClient *goredis.Client
	if rc, err := iredis.NewClient(ctx, cfg.Redis); err != nil {
		slog.Warn("redis unavailable, admin rate limiting and reset lock disabled", "error", err)
	} else {
		redisClient = rc
		defer redisClient.Close()
	}

	// NATS is optional: it carries audit events and alerts.
	var (
		natsClient *inats.Client
		events     quota.EventPublisher
		alerter    quota.Alerter = quota.LogAlerter{}
	)
	if cfg.NATS.URL != "" {
		nc, err := inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Warn("nats unavailable, audit events disabled", "error", err)
		} else {
			natsClient = nc
			defer natsClient.Close()
			publisher := inats.NewPublisher(natsClient.JetStream())
			events = publisher
			alerter = quota.NewEventAlerter(publisher)
		}
	}

	// Quota
	loc := cfg.Quota.Location()
	schedule := quota.NewSchedule(cfg.Scheduler, loc)
	quotaSvc := quota.NewService(store, clock, cfg.Quota, schedule, events)
	gate := quota.NewGate(quotaSvc)

	var lock quota.Locker
	if redisClient != nil {
		lock = quota.NewRedisLock(redisClient, quota.ResetLockKey, cfg.Scheduler.LockTTL)
	}
	scheduler := quota.NewScheduler(quotaSvc, clock, schedule, cfg.Scheduler, alerter, lock)
	quotaHandler := quota.NewHandler(quotaSvc, gate, scheduler)

	// Audit
	var listAudit = notConfigured
	var auditConsumer *audit.Consumer
	if pool != nil {
		auditRepo := audit.NewRepository(pool)
		listAudit = audit.NewHandler(auditRepo).List
		if natsClient != nil {
			auditConsumer = audit.NewConsumer(auditRepo, inats.NewConsumerManager(natsClient.JetStream()))
		}
	}

	// Router
	routerCfg := api.RouterConfig{CORSAllowedOrigins: cfg.CORS.AllowedOrigins, Redis: redisClient}
	if redisClient != nil {
		limiter := mw.NewRateLimiter(redisClient, "admin", cfg.RateLimit.AdminMaxRequests, cfg.RateLimit.AdminWindowSec)
		routerCfg.AdminRateLimiter = limiter.Middleware
	}

	handlers := api.HandlerSet{
		GetQuota:      quotaHandler.GetStatus,
		ConsumeQuota:  quotaHandler.Consume,
		RecordAttempt: quotaHandler.RecordAttempt,
		QuotaHistory:  quotaHandler.History,
		QuotaGate:     gate.Middleware,

		ListAuditLogs: listAudit,

		AdminResetUser:    quotaHandler.AdminResetUser,
		AdminTriggerReset: quotaHandler.AdminTriggerReset,
		SchedulerStatus:   quotaHandler.SchedulerStatus,

		AuthMiddleware:  auth.Middleware(auth.NewJWTManager(cfg.JWT.AccessSecret)),
		AdminMiddleware: auth.AdminMiddleware(cfg.Admin.APIKeyHash),
	}
	if cfg.Scheduler.Enabled {
		handlers.SchedulerHealthy = scheduler.Healthy
	}

	router := api.NewRouter(pool, natsClient, routerCfg, handlers)
	srv := server.New(cfg.Server, router)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gCtx) })
	if cfg.Scheduler.Enabled {
		g.Go(func() error { return scheduler.Start(gCtx) })
	} else {
		slog.Warn("quota scheduler disabled, resets only run when triggered by an operator")
	}
	if auditConsumer != nil {
		g.Go(func() error { return auditConsumer.Start(gCtx) })
	}

	if err := g.Wait(); err != nil {
		slog.Error("shutting down", "error", err)
		os.Exit(1)
	}
}

func notConfigured(w http.ResponseWriter, r *http.Request) {
	api.HandleError(w, api.NewNotFoundError("audit log requires the postgres store"))
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		})
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
}
