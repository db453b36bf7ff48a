package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleetops/dispatch-backend/pkg/config"
	"github.com/fleetops/dispatch-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace = "dsp"
	loadPrefix   = "load"
	indexPrefix  = "loads"
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	ZAdd(context.Context, string, ...redis.Z) *redis.IntCmd
	ZRevRange(context.Context, string, int64, int64) *redis.StringSliceCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client wraps the redis connection helpers the tracking store needs.
type Client struct {
	store cmdable
	raw   *redis.Client
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// New bootstraps a Redis client with pooling/timeouts and verifies
// connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}
	return &Client{store: raw, raw: raw}, nil
}

// NewFromCmdable wraps a caller-provided command surface. Tests use this to
// run the tracker against an in-memory fake.
func NewFromCmdable(store cmdable) *Client {
	return &Client{store: store}
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Set stores a string value with an optional TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// Get returns a string value stored at key. Missing keys surface
// redis.Nil untouched so callers can branch on it.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", errors.New("redis client not initialized")
	}
	return c.store.Get(ctx, key).Result()
}

// IsNil reports whether err is a redis key-miss.
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// ZAdd inserts a scored member into a sorted set.
func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// ZRevRange returns members from a sorted set, highest score first.
func (c *Client) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if c.store == nil {
		return nil, errors.New("redis client not initialized")
	}
	return c.store.ZRevRange(ctx, key, start, stop).Result()
}

// Del removes the provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Del(ctx, keys...).Err()
}

// LoadKey returns the namespaced key for one load's tracking document.
func (c *Client) LoadKey(loadID string) string {
	return c.buildKey(loadPrefix, loadID)
}

// LoadIndexKey returns the namespaced key of the sorted-set listing index.
func (c *Client) LoadIndexKey() string {
	return c.buildKey(indexPrefix, "index")
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying connection when one exists.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) buildKey(parts ...string) string {
	segments := append([]string{keyNamespace}, parts...)
	return strings.Join(segments, ":")
}
