package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultDSN         = "host=localhost user=postgres password=postgres dbname=warehouse port=5432 sslmode=disable"
	defaultCORSOrigins = "http://localhost:5173"
)

type Config struct {
	HTTPPort    string        `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseDSN string        `env:"DATABASE_DSN" envDefault:"host=localhost user=postgres password=postgres dbname=warehouse port=5432 sslmode=disable"`
	JWTSecret   string        `env:"JWT_SECRET"`
	JWTTTL      time.Duration `env:"JWT_TTL" envDefault:"24h"`
	CORSOrigins string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173"`

	// Used by the low-stock query when neither the request nor the item sets one.
	LowStockThreshold int64 `env:"LOW_STOCK_THRESHOLD" envDefault:"10"`
	// Attempts for a unit of work aborted by a serialization failure or deadlock.
	TxMaxRetries int `env:"TX_MAX_RETRIES" envDefault:"3"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"APP_ENV" envDefault:"development"`
}

var (
	ErrMissingJWTSecret = errors.New("JWT_SECRET is not set")
	ErrShortJWTSecret   = errors.New("JWT_SECRET must be at least 32 characters")
)

// Load reads the configuration from the environment and runs the
// production safety checks. Non-fatal findings are returned as warnings.
func Load() (*Config, []string, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, cfg.Warnings(), nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(c.JWTSecret) < 32 {
		return ErrShortJWTSecret
	}
	if c.LowStockThreshold < 0 {
		return fmt.Errorf("LOW_STOCK_THRESHOLD must not be negative, got %d", c.LowStockThreshold)
	}
	if c.TxMaxRetries < 1 {
		return fmt.Errorf("TX_MAX_RETRIES must be at least 1, got %d", c.TxMaxRetries)
	}
	return nil
}

func (c *Config) Warnings() []string {
	var warnings []string
	if c.DatabaseDSN == defaultDSN {
		warnings = append(warnings, "DATABASE_DSN uses the default value, set your own Postgres connection for production")
	}
	if c.CORSOrigins == defaultCORSOrigins {
		warnings = append(warnings, "CORS_ALLOWED_ORIGINS uses the default value, set your own domain for production")
	}
	return warnings
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
