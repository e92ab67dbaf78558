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

	"github.com/munesh14/first-exchange-hub-sub000/internal/app"
	"github.com/munesh14/first-exchange-hub-sub000/internal/assets"
	jobmetrics "github.com/munesh14/first-exchange-hub-sub000/internal/jobs"
	"github.com/munesh14/first-exchange-hub-sub000/internal/observability"
	"github.com/munesh14/first-exchange-hub-sub000/internal/platform/db"
	"github.com/munesh14/first-exchange-hub-sub000/internal/platform/messaging"
	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
	"github.com/munesh14/first-exchange-hub-sub000/jobs"
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

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, ApplicationName: "hub-worker"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	var sender jobs.VendorSender = jobs.LogSender{Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		vendorTopic, err := messaging.NewPublisher(messaging.Config{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaVendorTopic,
			ClientID: "hub-worker",
		}, logger)
		if err != nil {
			logger.Error("init vendor publisher", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := vendorTopic.Close(); err != nil {
				logger.Warn("vendor publisher close", slog.Any("error", err))
			}
		}()
		sender = jobs.TopicSender{Publisher: vendorTopic}
	}

	dispatchJob := jobs.NewVendorDispatchJob(sender, logger, jobMetrics)
	reminderJob := jobs.NewAssetReminderJob(assets.NewRepository(pool), logger, jobMetrics)
	cleanupJob := &jobs.IdempotencyCleanupJob{Keys: shared.NewIdempotencyStore(pool), Logger: logger, Metrics: jobMetrics}

	reminderTask, err := jobs.NewAssetReminderTask(cfg.AssetReminderAge)
	if err != nil {
		logger.Error("build reminder task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskVendorDispatch, Handler: dispatchJob.Handle},
			{Type: jobs.TaskAssetPendingReminder, Handler: reminderJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.AssetReminderCron, Task: reminderTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
