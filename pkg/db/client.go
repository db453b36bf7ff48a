package db

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/fleetops/dispatch-backend/pkg/config"
	pkgerrors "github.com/fleetops/dispatch-backend/pkg/errors"
	"github.com/fleetops/dispatch-backend/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Instance names one of the two relational databases the service talks to.
type Instance string

const (
	// InstanceCore is DB-A: orders, drivers, counters, inventory documents.
	InstanceCore Instance = "core"
	// InstanceReplica is DB-B: replicated and consolidated load lines.
	InstanceReplica Instance = "replica"
)

// Options tunes statement execution for a client.
type Options struct {
	Instance         Instance
	StatementTimeout time.Duration
	AcquireTimeout   time.Duration
	RetryAttempts    int
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration

	// OnRetry is invoked once per retried attempt, before the backoff wait.
	OnRetry func()
}

func (o Options) withDefaults() Options {
	if o.StatementTimeout <= 0 {
		o.StatementTimeout = 60 * time.Second
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = 5 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBackoffBase <= 0 {
		o.RetryBackoffBase = time.Second
	}
	if o.RetryBackoffCap <= 0 {
		o.RetryBackoffCap = 10 * time.Second
	}
	return o
}

// ExecResult is the typed outcome of a write statement. RowsAffectedUnknown
// signals a driver that could not report a count; callers needing an exact
// count must fall back to an explicit re-query.
type ExecResult struct {
	RowsAffected int64
}

// RowsAffectedUnknown marks an unreliable driver-reported count.
const RowsAffectedUnknown int64 = -1

// Client wraps one instance's pooled GORM connection.
type Client struct {
	conn *gorm.DB
	opts Options
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New boots a postgres-backed client using the provided configuration.
func New(ctx context.Context, cfg config.DBConfig, opts Options, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	})

	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	opts = opts.withDefaults()
	if cfg.AcquireTimeout > 0 {
		opts.AcquireTimeout = cfg.AcquireTimeout
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "instance", string(opts.Instance)), "database connection established")
	}

	return &Client{conn: conn, opts: opts}, nil
}

// NewFromGorm wraps an already-open GORM connection. Tests use this to run
// the client against in-memory sqlite.
func NewFromGorm(conn *gorm.DB, opts Options) *Client {
	return &Client{conn: conn, opts: opts.withDefaults()}
}

// Instance returns which database this client fronts.
func (c *Client) Instance() Instance {
	return c.opts.Instance
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Ping verifies the datasource is reachable.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close shuts down the pooled connections.
func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// acquire verifies a pooled connection can be obtained within the bounded
// wait. The connection is returned to the pool immediately; the statement
// that follows draws from the same pool.
func (c *Client) acquire(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeConnectivity, err, "sql handle unavailable")
	}
	acquireCtx, cancel := context.WithTimeout(ctx, c.opts.AcquireTimeout)
	defer cancel()

	conn, err := sqlDB.Conn(acquireCtx)
	if err != nil {
		if acquireCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return pkgerrors.Wrap(pkgerrors.CodePoolExhausted, err,
				fmt.Sprintf("no %s connection within %s", c.opts.Instance, c.opts.AcquireTimeout))
		}
		return pkgerrors.Wrap(pkgerrors.CodeConnectivity, err, "acquire connection")
	}
	return conn.Close()
}

// Do runs fn against a statement-scoped session. Each attempt gets the
// per-statement timeout; transient failures are retried with exponential
// backoff up to the retry budget. A statement that hits its timeout is
// treated as failed and never retried: the side effect may already be in
// flight. Non-transient failures propagate immediately.
func (c *Client) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	backoff := c.opts.RetryBackoffBase
	var last error

	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		if err := c.acquire(ctx); err != nil {
			return err
		}

		stmtCtx, cancel := context.WithTimeout(ctx, c.opts.StatementTimeout)
		err := fn(c.conn.WithContext(stmtCtx))
		timedOut := stmtCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
		cancel()

		if err == nil {
			return nil
		}
		if timedOut {
			return pkgerrors.Wrap(pkgerrors.CodeConnectivity, err,
				fmt.Sprintf("statement exceeded %s on %s", c.opts.StatementTimeout, c.opts.Instance))
		}
		if !IsTransient(err) {
			return err
		}
		last = err

		if attempt == c.opts.RetryAttempts {
			break
		}
		if c.opts.OnRetry != nil {
			c.opts.OnRetry()
		}
		select {
		case <-ctx.Done():
			return pkgerrors.Wrap(pkgerrors.CodeConnectivity, ctx.Err(), "caller cancelled during retry wait")
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.opts.RetryBackoffCap {
			backoff = c.opts.RetryBackoffCap
		}
	}

	return pkgerrors.Wrap(pkgerrors.CodeConnectivity, last,
		fmt.Sprintf("retry budget exhausted after %d attempts on %s", c.opts.RetryAttempts, c.opts.Instance))
}

// Exec runs a single write statement with typed parameter binding and
// returns the typed result. Parameters are always bound, never interpolated
// into the statement text.
func (c *Client) Exec(ctx context.Context, query string, args ...any) (ExecResult, error) {
	result := ExecResult{RowsAffected: RowsAffectedUnknown}
	err := c.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Exec(query, args...)
		if res.Error != nil {
			return res.Error
		}
		result.RowsAffected = res.RowsAffected
		return nil
	})
	return result, err
}

// WithTx executes fn inside a transaction on this instance, rolling back on
// error/panic. Transactions never span instances.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	stmtCtx, cancel := context.WithTimeout(ctx, c.opts.StatementTimeout)
	defer cancel()

	tx := c.conn.WithContext(stmtCtx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

var _ Pinger = (*Client)(nil)
