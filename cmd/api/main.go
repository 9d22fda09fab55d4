package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/echoes-app/demo-relay/internal/api"
	"github.com/echoes-app/demo-relay/internal/config"
	"github.com/echoes-app/demo-relay/internal/gate"
	"github.com/echoes-app/demo-relay/internal/provider"
	"github.com/echoes-app/demo-relay/internal/quota"
	iredis "github.com/echoes-app/demo-relay/internal/redis"
	"github.com/echoes-app/demo-relay/internal/relay"
	"github.com/echoes-app/demo-relay/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("validating config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Redis backs the per-IP rate-limit windows
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Upstream provider
	var prov provider.Provider
	switch cfg.Provider.Name {
	case config.ProviderHuggingFace:
		prov = provider.NewHuggingFace(cfg.Provider)
	default:
		prov = provider.NewAnthropic(cfg.Provider)
	}
	slog.Info("upstream provider selected", "provider", prov.Label(), "daily_limit", cfg.Demo.DailyLimit)

	// Daily quota
	store := quota.NewStore(cfg.Demo.DailyLimit)

	// Gates
	rateLimiter := gate.NewRateLimiter(
		redisClient,
		cfg.Demo.RateLimitMax,
		cfg.Demo.RateLimitWindow,
		cfg.Server.TrustProxy,
	)

	handler := relay.NewHandler(prov, store, cfg.Demo)

	router := api.NewRouter(api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.AllowedOrigins,
		PasswordAuth:       gate.PasswordAuth(cfg.Demo.Password),
		RateLimiter:        rateLimiter.Middleware,
	}, api.HandlerSet{
		Health: handler.Health,
		Verify: handler.Verify,
		Chat:   handler.Chat,
	})

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
