package main

import (
	"context"
	"net/http"
	"os"

	"github.com/fleetops/dispatch-backend/api/routes"
	"github.com/fleetops/dispatch-backend/internal/drivers"
	"github.com/fleetops/dispatch-backend/internal/inventory"
	"github.com/fleetops/dispatch-backend/internal/loads"
	"github.com/fleetops/dispatch-backend/internal/orders"
	"github.com/fleetops/dispatch-backend/internal/replication"
	"github.com/fleetops/dispatch-backend/internal/sequence"
	"github.com/fleetops/dispatch-backend/internal/tracker"
	"github.com/fleetops/dispatch-backend/pkg/config"
	"github.com/fleetops/dispatch-backend/pkg/db"
	"github.com/fleetops/dispatch-backend/pkg/logger"
	"github.com/fleetops/dispatch-backend/pkg/metrics"
	"github.com/fleetops/dispatch-backend/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	registry := prometheus.NewRegistry()
	dispatchMetrics := metrics.NewDispatchMetrics(registry)

	clientOpts := db.Options{
		StatementTimeout: cfg.Dispatch.StatementTimeout,
		RetryAttempts:    cfg.Dispatch.RetryAttempts,
		RetryBackoffBase: cfg.Dispatch.RetryBackoffBase,
		RetryBackoffCap:  cfg.Dispatch.RetryBackoffCap,
		OnRetry:          dispatchMetrics.IncStatementRetry,
	}

	coreOpts := clientOpts
	coreOpts.Instance = db.InstanceCore
	coreOpts.AcquireTimeout = cfg.Core.AcquireTimeout
	coreClient, err := db.New(context.Background(), cfg.Core, coreOpts, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap core database", err)
		os.Exit(1)
	}
	defer func() {
		if err := coreClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing core database", err)
		}
	}()

	replicaOpts := clientOpts
	replicaOpts.Instance = db.InstanceReplica
	replicaOpts.AcquireTimeout = cfg.Replica.AcquireTimeout
	replicaClient, err := db.New(context.Background(), cfg.Replica, replicaOpts, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap replica database", err)
		os.Exit(1)
	}
	defer func() {
		if err := replicaClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing replica database", err)
		}
	}()

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	allocator := sequence.NewAllocator(coreClient, dispatchMetrics)
	transferService := inventory.NewService(coreClient, allocator,
		cfg.Dispatch.SequenceNamespace, cfg.Dispatch.SequenceAttempts, logg)
	loadTracker := tracker.New(redisClient)
	loadService := loads.NewService(
		drivers.NewRepository(coreClient),
		orders.NewRepository(coreClient),
		replication.NewRepository(replicaClient),
		transferService,
		loadTracker,
		logg,
		dispatchMetrics,
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg,
			coreClient, replicaClient, redisClient,
			loadService, loadTracker, registry),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
