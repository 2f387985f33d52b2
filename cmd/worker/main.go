package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/app"
	jobmetrics "github.com/meridian-pos/meridian/internal/jobs"
	"github.com/meridian-pos/meridian/internal/lots"
	"github.com/meridian-pos/meridian/internal/observability"
	"github.com/meridian-pos/meridian/internal/platform/cache"
	"github.com/meridian-pos/meridian/internal/platform/db"
	"github.com/meridian-pos/meridian/internal/replenish"
	"github.com/meridian-pos/meridian/internal/shared"
	"github.com/meridian-pos/meridian/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	// Job metrics register on the worker's own scraped registry.
	promMetrics := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(promMetrics.Registerer())

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promMetrics.Handler())
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metricsMux}
	go func() {
		logger.Info("starting metrics listener", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", slog.Any("error", err))
		}
	}()

	lotsRepo := lots.NewRepository(pool)
	lotsService := lots.NewService(lotsRepo, auditLogger)

	replenishRepo := replenish.NewRepository(pool)
	replenishCache := replenish.NewCache(redisClient, cfg.ReplenishCacheTTL)
	replenishService := replenish.NewService(replenishRepo, replenishCache, replenish.Params{
		SafetyDays:      cfg.ReplenishSafetyDays,
		LeadTimeDays:    cfg.ReplenishLeadTimeDays,
		LookbackDays:    cfg.ReplenishLookbackDays,
		OrderingCost:    decimal.NewFromFloat(cfg.ReplenishOrderingCost),
		HoldingCostRate: decimal.NewFromFloat(cfg.ReplenishHoldingCostRate),
		CacheTTL:        cfg.ReplenishCacheTTL,
	})

	now := time.Now().UTC()
	refreshTask, err := jobs.NewReplenishRefreshTask(now)
	if err != nil {
		logger.Error("build refresh task", slog.Any("error", err))
		os.Exit(1)
	}
	expiryTask, err := jobs.NewLotExpiryScanTask(now)
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(now)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReplenishRefresh, Handler: jobs.NewReplenishRefreshHandler(logger, metrics, replenishService)},
			{Type: jobs.TaskLotExpiryScan, Handler: jobs.NewLotExpiryScanHandler(logger, metrics, lotsService)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(logger, metrics, idempotencyStore, cfg.IdempotencyRetention)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 1 * * *", Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * *", Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * 0", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
