package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/podiumhq/podium/internal/api"
	"github.com/podiumhq/podium/internal/auth"
	"github.com/podiumhq/podium/internal/billing"
	"github.com/podiumhq/podium/internal/config"
	"github.com/podiumhq/podium/internal/database"
	"github.com/podiumhq/podium/internal/events"
	mw "github.com/podiumhq/podium/internal/middleware"
	"github.com/podiumhq/podium/internal/pipeline"
	"github.com/podiumhq/podium/internal/provider"
	iredis "github.com/podiumhq/podium/internal/redis"
	"github.com/podiumhq/podium/internal/responses"
	"github.com/podiumhq/podium/internal/server"
	"github.com/podiumhq/podium/internal/stream"
	"github.com/podiumhq/podium/internal/usage"
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

	ctx := context.Background()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS is optional: without it response records still persist, but the
	// live events endpoint reports 503.
	var (
		eventsClient *events.Client
		publisher    *events.Publisher
		subscriber   *events.Subscriber
	)
	eventsClient, err = events.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Warn("NATS unavailable, event streaming disabled", "error", err)
		eventsClient = nil
	} else {
		defer eventsClient.Close()
		publisher = events.NewPublisher(eventsClient.JetStream())
		subscriber = events.NewSubscriber(eventsClient.JetStream())
	}

	// Usage ledger and entitlement gate
	billingClient := billing.NewClient(cfg.Billing)
	usageStore := usage.NewPostgresStore(pool)
	usageSvc := usage.NewService(usageStore, billingClient, cfg.AI.FreeMessageLimit)
	usageHandler := usage.NewHandler(usageSvc)

	// Response records
	responseStore := responses.NewRecorder(responses.NewPostgresStore(pool), publisher)
	responseHandler := responses.NewHandler(responseStore, subscriber)

	// Metered pipeline
	providerClient := provider.NewOpenAIClient(cfg.Provider)
	pipelineSvc := pipeline.NewService(usageSvc, responseStore, providerClient, stream.Config{
		Threshold: cfg.AI.FlushThreshold,
		Interval:  cfg.AI.FlushInterval,
	})
	pipelineHandler := pipeline.NewHandler(pipelineSvc)

	// Auth
	verifier := auth.NewVerifier(cfg.JWT.AccessSecret)

	// Per-user rate limiter on the AI surface
	aiLimiter := mw.NewRateLimiter(redisClient, cfg.AI.RateLimitPerMin, 60, func(r *http.Request) string {
		return auth.UserID(r.Context())
	})

	// Router
	router := api.NewRouter(pool, eventsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		AIRateLimiter:      aiLimiter.Middleware,
	}, api.HandlerSet{
		Reserve:  usageHandler.Reserve,
		Complete: usageHandler.Complete,
		Release:  usageHandler.Release,
		GetUsage: usageHandler.GetUsage,

		Chat:    pipelineHandler.Chat,
		Analyze: pipelineHandler.Analyze,

		GetResponse:    responseHandler.Get,
		ResponseEvents: responseHandler.Events,

		AuthMiddleware: auth.Middleware(verifier),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
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

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
