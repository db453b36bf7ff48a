package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fleetops/dispatch-backend/pkg/config"
	"github.com/fleetops/dispatch-backend/pkg/db"
	"github.com/fleetops/dispatch-backend/pkg/logger"
	"github.com/fleetops/dispatch-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status")
	instance := flag.String("instance", "core", "target database: core|replica")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	var (
		dbCfg config.DBConfig
		dir   string
		opts  db.Options
	)
	switch *instance {
	case "core":
		dbCfg, dir = cfg.Core, migrate.CoreDir
		opts.Instance = db.InstanceCore
	case "replica":
		dbCfg, dir = cfg.Replica, migrate.ReplicaDir
		opts.Instance = db.InstanceReplica
	default:
		fmt.Fprintln(os.Stderr, "unknown -instance value:", *instance)
		os.Exit(1)
	}

	ctx = logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"cmd":      *cmd,
		"instance": *instance,
		"dir":      dir,
	})

	dbClient, err := db.New(context.Background(), dbCfg, opts, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up":
		if err := migrate.Up(ctx, sqlDB, dir); err != nil {
			fmt.Fprintf(os.Stderr, "goose up failed: %v\n", err)
			os.Exit(1)
		}
	case "down":
		if err := migrate.Down(ctx, sqlDB, dir); err != nil {
			fmt.Fprintf(os.Stderr, "goose down failed: %v\n", err)
			os.Exit(1)
		}
	case "status":
		if err := migrate.Status(ctx, sqlDB, dir); err != nil {
			fmt.Fprintf(os.Stderr, "goose status failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
