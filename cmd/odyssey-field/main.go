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

	"github.com/odyssey-erp/odyssey-field/internal/app"
	"github.com/odyssey-erp/odyssey-field/internal/delivery"
	"github.com/odyssey-erp/odyssey-field/internal/dispatch"
	"github.com/odyssey-erp/odyssey-field/internal/inventory"
	"github.com/odyssey-erp/odyssey-field/internal/observability"
	"github.com/odyssey-erp/odyssey-field/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-field/internal/platform/db"
	"github.com/odyssey-erp/odyssey-field/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-field/internal/reporting"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
	"github.com/odyssey-erp/odyssey-field/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	ledgerMetrics := observability.NewLedgerMetrics(metrics.Registerer())
	locker := lock.New(redisClient, cfg.LockOptions())
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	deliveryService := delivery.NewService(delivery.NewRepository(dbpool), locker, cfg.DeliveryConfig(), logger, ledgerMetrics)
	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), idempotencyStore, locker, cfg.InventoryConfig(), logger, ledgerMetrics)
	reportCache := reporting.NewCache(redisClient, cfg.ReportCacheTTL)
	reportingService := reporting.NewService(reporting.NewRepository(dbpool), reportCache, cfg.ReportingConfig(), logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
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
	dispatchService := dispatch.NewService(deliveryService, reportingService, inventoryService, jobClient, cfg.DispatchConfig(), logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DeliveryHandler:  delivery.NewHandler(logger, deliveryService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		ReportingHandler: reporting.NewHandler(logger, reportingService),
		DispatchHandler:  dispatch.NewHandler(logger, dispatchService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
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
