// Package config loads service settings from an optional .env file and the
// process environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/MagnunAVF/shorturls/internal/shortener"
)

type Config struct {
	Port      string `env:"API_SERVICE_PORT" env-default:":8080"`
	AppDomain string `env:"APP_DOMAIN"       env-default:"http://localhost:8080"`

	DBDriver     string `env:"DB_DRIVER"      env-default:"postgres"`
	DBURL        string `env:"DB_URL"`
	GormLogLevel string `env:"GORM_LOG_LEVEL"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB"       env-default:"0"`
	CacheTTL      time.Duration `env:"CACHE_TTL"      env-default:"1h"`

	RabbitMQURL string `env:"RABBITMQ_URL"`
	ClickQueue  string `env:"CLICK_QUEUE_NAME" env-default:"click_events"`

	CodeLength             int   `env:"CODE_LENGTH"              env-default:"6"`
	DefaultValidityMinutes int64 `env:"DEFAULT_VALIDITY_MINUTES" env-default:"30"`
	MaxAttempts            int   `env:"MAX_ALLOCATION_ATTEMPTS"  env-default:"256"`

	BatchSize     int           `env:"BATCH_SIZE"     env-default:"100"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" env-default:"2s"`
	Prefetch      int           `env:"PREFETCH"       env-default:"100"`

	// DefaultValidity is derived from DefaultValidityMinutes.
	DefaultValidity time.Duration
}

// Load reads .env when present and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		slog.Warn(".env file not found, relying on env vars", "err", err)
	}
	return FromEnv()
}

// FromEnv reads the environment only. Malformed values are reported instead of
// silently replaced by defaults.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.AppDomain = strings.TrimRight(cfg.AppDomain, "/")
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	switch cfg.DBDriver {
	case "postgres", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("config: unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	validity, err := shortener.ValidityFromMinutes(cfg.DefaultValidityMinutes)
	if err != nil {
		return nil, fmt.Errorf("config: DEFAULT_VALIDITY_MINUTES: %w", err)
	}
	cfg.DefaultValidity = validity
	return &cfg, nil
}
