// Package config loads the client's configuration from the environment.
//
// Values are read with github.com/caarlos0/env from variables prefixed with
// BALLOTBOX_, after an optional .env file has been loaded with
// github.com/joho/godotenv. Command line flags override them afterwards.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "BALLOTBOX_"

const (
	defaultHTTPTimeout = 15 * time.Second
	maxHTTPTimeout     = 5 * time.Minute
	boltFileName       = "session.db"
)

// StoreKind selects the session storage backend.
type StoreKind string

const (
	StoreBolt     StoreKind = "bolt"
	StoreMemory   StoreKind = "memory"
	StoreRedis    StoreKind = "redis"
	StorePostgres StoreKind = "postgres"
)

// Config is the complete client configuration.
type Config struct {
	// APIBaseURL is the backend root including the /api prefix.
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://127.0.0.1:5000/api"`

	// StateDir holds the bolt database. Defaults to the user config dir.
	StateDir string `env:"STATE_DIR"`

	// Store is one of bolt, memory, redis or postgres.
	Store StoreKind `env:"STORE" envDefault:"bolt"`

	Redis RedisConfig `envPrefix:"REDIS_"`

	// PostgresDSN is used by the postgres store, for clients that share a
	// database with other services.
	PostgresDSN string `env:"POSTGRES_DSN"`

	// SealSecret enables encryption of the stored session when set.
	SealSecret string `env:"SEAL_SECRET"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`
}

// RedisConfig configures the redis store.
type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"ballotbox:"`
}

// Load reads a .env file (the given paths, or ./.env) when present, parses
// the environment and applies Sanitize. A missing .env file is not an error.
func Load(dotenv ...string) (Config, error) {
	if err := godotenv.Load(dotenv...); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize applies guardrails and fills derived defaults.
func (c *Config) Sanitize() {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	c.Store = StoreKind(strings.ToLower(strings.TrimSpace(string(c.Store))))
	switch c.Store {
	case "", "bbolt":
		c.Store = StoreBolt
	case "pg", "postgresql":
		c.Store = StorePostgres
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.HTTPTimeout > maxHTTPTimeout {
		c.HTTPTimeout = maxHTTPTimeout
	}
	if c.StateDir == "" {
		c.StateDir = defaultStateDir()
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// Validate reports configuration that cannot be used.
func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("api base url is required")
	}
	switch c.Store {
	case StoreBolt:
		if c.StateDir == "" {
			return errors.New("state dir is required for the bolt store")
		}
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis addr is required for the redis store")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q (want bolt, memory, redis or postgres)", c.Store)
	}
	return nil
}

// BoltPath is the location of the bolt session database.
func (c Config) BoltPath() string {
	return filepath.Join(c.StateDir, boltFileName)
}

// SlogLevel maps LogLevel to a slog level; unknown values mean warn.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ballotbox")
	}
	return ".ballotbox"
}
