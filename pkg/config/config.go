package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "DISPATCH"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	Core     DBConfig `envconfig:"CORE"`
	Replica  DBConfig `envconfig:"REPLICA"`
	Redis    RedisConfig
	Dispatch DispatchConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Core.ensureDSN("core"); err != nil {
		return nil, err
	}
	if err := cfg.Replica.ensureDSN("replica"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DISPATCH_APP_ENV" required:"true"`
	Port         string `envconfig:"DISPATCH_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DISPATCH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DISPATCH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// DBConfig describes one relational instance. The service talks to two:
// the core instance owning orders and inventory documents, and the replica
// instance receiving replicated load lines.
type DBConfig struct {
	DSN string `envconfig:"DB_DSN"`

	Host     string `envconfig:"DB_HOST"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASSWORD"`
	Name     string `envconfig:"DB_NAME"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// AcquireTimeout bounds how long a caller waits on a saturated pool
	// before the attempt fails with POOL_EXHAUSTED.
	AcquireTimeout time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DISPATCH_REDIS_URL"`
	Address      string        `envconfig:"DISPATCH_REDIS_ADDR"`
	Password     string        `envconfig:"DISPATCH_REDIS_PASSWORD"`
	DB           int           `envconfig:"DISPATCH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DISPATCH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DISPATCH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DISPATCH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DISPATCH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DISPATCH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// DispatchConfig tunes the orchestration core.
type DispatchConfig struct {
	StatementTimeout time.Duration `envconfig:"DISPATCH_STATEMENT_TIMEOUT" default:"60s"`
	RetryAttempts    int           `envconfig:"DISPATCH_RETRY_ATTEMPTS" default:"3"`
	RetryBackoffBase time.Duration `envconfig:"DISPATCH_RETRY_BACKOFF_BASE" default:"1s"`
	RetryBackoffCap  time.Duration `envconfig:"DISPATCH_RETRY_BACKOFF_CAP" default:"10s"`

	// SequenceAttempts bounds fresh-read retries after a lost counter race.
	SequenceAttempts int `envconfig:"DISPATCH_SEQUENCE_ATTEMPTS" default:"5"`

	// SequenceNamespace prefixes inventory transfer document ids.
	SequenceNamespace string `envconfig:"DISPATCH_SEQUENCE_NAMESPACE" default:"TRA"`
}

func (db *DBConfig) ensureDSN(instance string) error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for name, value := range map[string]string{
		"host": db.Host,
		"user": db.User,
		"name": db.Name,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s db: either a DSN or %s are required", instance, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
