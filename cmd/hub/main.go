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
	"github.com/munesh14/first-exchange-hub-sub000/internal/lpo"
	"github.com/munesh14/first-exchange-hub-sub000/internal/observability"
	"github.com/munesh14/first-exchange-hub-sub000/internal/platform/cache"
	"github.com/munesh14/first-exchange-hub-sub000/internal/platform/db"
	"github.com/munesh14/first-exchange-hub-sub000/internal/platform/messaging"
	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
	"github.com/munesh14/first-exchange-hub-sub000/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	if len(os.Args) > 1 {
		code := runCommand(context.Background(), os.Args[1:])
		os.Exit(code)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, ApplicationName: "hub-api"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	events, err := messaging.NewPublisher(messaging.Config{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		ClientID: "hub-api",
	}, logger)
	if err != nil {
		logger.Error("init event publisher", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := events.Close(); err != nil {
			logger.Warn("event publisher close", slog.Any("error", err))
		}
	}()

	jobClient, err := jobs.NewClient(redisOpts(cfg))
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	policy, err := cfg.LPOPolicy()
	if err != nil {
		logger.Error("lpo policy", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	engineMetrics := observability.NewEngineMetrics(metrics.Registerer())
	locks := shared.NewRedisLocker(redisClient, cfg.LPOLockTTL)
	auditLogger := shared.NewAuditLogger(dbpool)

	registrar := assets.NewRegistrar(
		assets.NewRepository(dbpool),
		locks,
		auditLogger,
		events,
		logger,
		assets.Config{LockWait: cfg.LPOLockWait},
	)
	approvals := shared.NewApprovalRecorder(dbpool, logger)
	service := lpo.NewService(lpo.NewRepository(dbpool), registrar, lpo.Deps{
		Locks:       locks,
		Approvals:   approvals,
		Audit:       auditLogger,
		Idempotency: shared.NewIdempotencyStore(dbpool),
		Notifier:    jobClient,
		Events:      events,
		Metrics:     engineMetrics,
		Logger:      logger,

		ApprovalTrail: approvals,
		AuditTrail:    auditLogger,
	}, lpo.Config{Policy: policy, LockWait: cfg.LPOLockWait})

	inspector := asynq.NewInspector(redisOpts(cfg))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		LPOHandler:   lpo.NewHandler(logger, service),
		AssetHandler: assets.NewHandler(logger, registrar),
		JobHandler:   jobs.NewHandler(inspector, logger),
		Metrics:      metrics,
		Readiness: map[string]app.Pinger{
			"postgres": dbpool,
			"redis": app.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
