package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

const (
	// CoreDir holds the DB-A schema: orders, drivers, counters, documents.
	CoreDir = "migrations/core"
	// ReplicaDir holds the DB-B schema: replicated and consolidated lines.
	ReplicaDir = "migrations/replica"
)

// Run executes a goose command against the given database handle.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	// both instances are Postgres
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Status prints the migration status for the directory.
func Status(ctx context.Context, db *sql.DB, dir string) error {
	return Run(ctx, db, dir, "status")
}

// Up applies all pending migrations in the directory.
func Up(ctx context.Context, db *sql.DB, dir string) error {
	return Run(ctx, db, dir, "up")
}

// Down rolls back the most recent migration in the directory.
func Down(ctx context.Context, db *sql.DB, dir string) error {
	return Run(ctx, db, dir, "down")
}
