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
	"github.com/meridian-pos/meridian/internal/ledger"
	"github.com/meridian-pos/meridian/internal/lots"
	"github.com/meridian-pos/meridian/internal/observability"
	"github.com/meridian-pos/meridian/internal/platform/cache"
	"github.com/meridian-pos/meridian/internal/platform/db"
	"github.com/meridian-pos/meridian/internal/replenish"
	"github.com/meridian-pos/meridian/internal/shared"
	"github.com/meridian-pos/meridian/internal/transfer"
	"github.com/meridian-pos/meridian/internal/valuation"
	"github.com/meridian-pos/meridian/jobs"
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
	metrics := observability.NewMetrics()

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, idempotencyStore, metrics)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	lotsRepo := lots.NewRepository(pool)
	lotsService := lots.NewService(lotsRepo, auditLogger)
	lotsHandler := lots.NewHandler(logger, lotsService)

	transferRepo := transfer.NewRepository(pool)
	transferService := transfer.NewService(transferRepo, auditLogger, metrics)
	transferHandler := transfer.NewHandler(logger, transferService)

	valuationRepo := valuation.NewRepository(pool)
	valuationService := valuation.NewService(valuationRepo)
	valuationHandler := valuation.NewHandler(logger, valuationService)

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
	replenishHandler := replenish.NewHandler(logger, replenishService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		LedgerHandler:    ledgerHandler,
		LotsHandler:      lotsHandler,
		TransferHandler:  transferHandler,
		ValuationHandler: valuationHandler,
		ReplenishHandler: replenishHandler,
		JobHandler:       jobHandler,
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
