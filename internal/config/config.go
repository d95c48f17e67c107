// Package config loads ports, database strings, worker tuning and executor definitions
// from defaults, an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"actionplane/internal/executor/webhook"
	"actionplane/internal/scheduler"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string, required for the postgres driver
	DatabaseURL string `mapstructure:"database_url"`

	// Backing store: postgres or memory
	StoreDriver string `mapstructure:"store_driver"`

	// HTTP server port for the controller
	HTTPPort int `mapstructure:"http_port"`

	LogLevel string `mapstructure:"log_level"`

	// Worker-specific configuration
	WorkerConcurrency         int           `mapstructure:"worker_concurrency"`
	WorkerPollInterval        time.Duration `mapstructure:"worker_poll_interval"`
	WorkerMaxBackoff          time.Duration `mapstructure:"worker_max_backoff"`
	WorkerCancelCheckInterval time.Duration `mapstructure:"worker_cancel_check_interval"`
	WorkerRetryBackoff        time.Duration `mapstructure:"worker_retry_backoff"`
	WorkerOwnerID             string        `mapstructure:"worker_owner_id"`

	// Number of agents the controller runs in-process
	EmbeddedWorkers int `mapstructure:"embedded_workers"`

	// Cron spec for the reprioritization sweep, empty disables it
	ReprioritizeSchedule string `mapstructure:"reprioritize_schedule"`

	// Per-owner enqueue limiter (requests per second), 0 disables it
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	// OpenTelemetry collector endpoint
	OTELEndpoint    string  `mapstructure:"otel_endpoint"`
	OTELSampleRatio float64 `mapstructure:"otel_sample_ratio"`

	// Bearer token guarding operator endpoints, empty leaves them open
	AdminToken string `mapstructure:"admin_token"`

	// Port serving /metrics for the worker binary
	MetricsPort int `mapstructure:"metrics_port"`

	Executors []webhook.Config `mapstructure:"executors"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("store_driver", DriverPostgres)
	v.SetDefault("http_port", 6161)
	v.SetDefault("log_level", "info")
	v.SetDefault("worker_concurrency", 1)
	v.SetDefault("worker_poll_interval", "1s")
	v.SetDefault("worker_max_backoff", "30s")
	v.SetDefault("worker_cancel_check_interval", "5s")
	v.SetDefault("worker_retry_backoff", "10s")
	v.SetDefault("worker_owner_id", "")
	v.SetDefault("embedded_workers", 0)
	v.SetDefault("reprioritize_schedule", "@every 5m")
	v.SetDefault("rate_limit", 0)
	v.SetDefault("rate_limit_burst", 10)
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("otel_sample_ratio", 1.0)
	v.SetDefault("admin_token", "")
	v.SetDefault("metrics_port", 6162)
}

// Load reads configuration from defaults, then the YAML file at path (or
// actionplane.yaml in the working directory when path is empty), then
// environment variables. Environment wins.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	// Conventional names that don't follow the KEY -> ENV mapping
	_ = v.BindEnv("http_port", "HTTP_PORT", "PORT")
	_ = v.BindEnv("otel_endpoint", "OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("actionplane")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the binaries cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required (env: DATABASE_URL)")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid store_driver %q (supported: postgres, memory)", c.StoreDriver)
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.HTTPPort)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("worker_concurrency must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.EmbeddedWorkers < 0 {
		return fmt.Errorf("embedded_workers must not be negative, got %d", c.EmbeddedWorkers)
	}
	for name, d := range map[string]time.Duration{
		"worker_poll_interval":         c.WorkerPollInterval,
		"worker_max_backoff":           c.WorkerMaxBackoff,
		"worker_cancel_check_interval": c.WorkerCancelCheckInterval,
		"worker_retry_backoff":         c.WorkerRetryBackoff,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("rate_limit_burst must be at least 1 when rate_limit is set")
	}
	if c.OTELSampleRatio < 0 || c.OTELSampleRatio > 1 {
		return fmt.Errorf("otel_sample_ratio must be within [0, 1], got %v", c.OTELSampleRatio)
	}
	if c.ReprioritizeSchedule != "" {
		if err := scheduler.ParseSchedule(c.ReprioritizeSchedule); err != nil {
			return fmt.Errorf("invalid reprioritize_schedule: %w", err)
		}
	}
	for i, e := range c.Executors {
		if e.Name == "" || e.URL == "" {
			return fmt.Errorf("executors[%d]: name and url are required", i)
		}
	}
	return nil
}
