package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-cms/odyssey-cms/internal/app"
	jobmetrics "github.com/odyssey-cms/odyssey-cms/internal/jobs"
	"github.com/odyssey-cms/odyssey-cms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "worker")

	store, release, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		logger.Error("open storage", slog.String("driver", cfg.StorageDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer release()

	// The worker writes through its own broker so the events log keeps the
	// entity service semantics. Its events are not relayed.
	core, err := app.NewCore(app.CoreParams{Config: cfg, Logger: logger, Store: store})
	if err != nil {
		logger.Error("register services", slog.Any("error", err))
		os.Exit(1)
	}

	eventsJob := jobs.NewEventsLogJob(core.Broker, logger, jobmetrics.NewMetrics(nil))

	pruneTask, err := jobs.NewEventsPruneTask(cfg.EventsRetentionDays)
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskEventsLog, Handler: eventsJob.Handle},
			{Type: jobs.TaskEventsPrune, Handler: eventsJob.HandlePrune},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.EventsPruneCron, Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
