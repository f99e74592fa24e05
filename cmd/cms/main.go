package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-cms/odyssey-cms/internal/app"
	"github.com/odyssey-cms/odyssey-cms/internal/auth"
	"github.com/odyssey-cms/odyssey-cms/internal/events"
	"github.com/odyssey-cms/odyssey-cms/internal/gateway"
	"github.com/odyssey-cms/odyssey-cms/internal/observability"
	"github.com/odyssey-cms/odyssey-cms/internal/platform/cache"
	"github.com/odyssey-cms/odyssey-cms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "cms")

	store, release, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		logger.Error("open storage", slog.String("driver", cfg.StorageDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer release()

	// Without Redis the node runs standalone: tokens live in memory and
	// events are neither relayed nor logged.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			logger.Warn("redis unavailable, running standalone", slog.Any("error", err))
			redisClient = nil
		}
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	params := app.CoreParams{Config: cfg, Logger: logger, Store: store, Metrics: metrics}
	var relay *events.Relay
	if redisClient != nil {
		relay = events.NewRelay(redisClient, cfg.EventsChannel, cfg.NodeID, logger)
		params.Relay = relay
	}
	core, err := app.NewCore(params)
	if err != nil {
		logger.Error("register services", slog.Any("error", err))
		os.Exit(1)
	}

	var tokenStore auth.TokenStore = auth.NewMemoryStore()
	var jobHandler *jobs.Handler
	if redisClient != nil {
		tokenStore = auth.NewRedisStore(redisClient)

		go func() {
			if err := relay.Run(ctx, core.Broker, nil); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event relay stopped", slog.Any("error", err))
			}
		}()

		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		jobs.NewEventEnqueuer(jobClient, relay.Node(), logger, metrics.Jobs()).Subscribe(core.Broker)

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	core.Preload(ctx, logger)

	authService := auth.NewService(core.Broker, tokenStore, cfg.TokenTTL, logger)
	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		AuthHandler:    auth.NewHandler(logger, authService),
		GatewayHandler: gateway.NewHandler(core.Broker, logger),
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
