// Package config defines the environment-driven configuration for the
// worker binary. All variables carry the TASKPULSE_ prefix.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/taskpulse/taskpulse/internal/env"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `env:"TASKPULSE_POSTGRES_DSN"`
	MaxOpenConns    int           `env:"TASKPULSE_POSTGRES_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"TASKPULSE_POSTGRES_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"TASKPULSE_POSTGRES_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `env:"TASKPULSE_POSTGRES_CONN_MAX_IDLE_TIME"`
}

// Validate implements env.Validator.
func (c *DatabaseConfig) Validate() error {
	if c.DSN == "" {
		return errors.New("TASKPULSE_POSTGRES_DSN is required")
	}
	return nil
}

// RedisConfig holds event-log broker settings.
type RedisConfig struct {
	Address    string `env:"TASKPULSE_REDIS_ADDRESS"`
	Partitions int    `env:"TASKPULSE_REDIS_PARTITIONS"`
}

// Validate implements env.Validator.
func (c *RedisConfig) Validate() error {
	if c.Address == "" {
		return errors.New("TASKPULSE_REDIS_ADDRESS is required")
	}
	if c.Partitions < 0 {
		return errors.New("TASKPULSE_REDIS_PARTITIONS must be positive")
	}
	return nil
}

// SchedulerConfig holds durable timer store settings.
type SchedulerConfig struct {
	TimerDBPath string        `env:"TASKPULSE_TIMER_DB_PATH"`
	Tick        time.Duration `env:"TASKPULSE_TIMER_TICK"`
}

// ConsumerConfig bounds the recurring-task consumer's retry budget.
type ConsumerConfig struct {
	MaxRetries int           `env:"TASKPULSE_CONSUMER_MAX_RETRIES"`
	BaseDelay  time.Duration `env:"TASKPULSE_CONSUMER_BASE_DELAY"`
	MaxDelay   time.Duration `env:"TASKPULSE_CONSUMER_MAX_DELAY"`
}

// ObservabilityConfig holds OpenTelemetry settings.
type ObservabilityConfig struct {
	OTelEnabled   bool   `env:"TASKPULSE_OTEL_ENABLED"`
	OTelCollector string `env:"TASKPULSE_OTEL_COLLECTOR"`
}

// WorkerConfig holds all configuration for the worker binary.
type WorkerConfig struct {
	Database      DatabaseConfig
	Redis         RedisConfig
	Scheduler     SchedulerConfig
	Consumer      ConsumerConfig
	Observability ObservabilityConfig
}

// LoadWorkerConfig loads and validates worker configuration from the
// environment, filling in defaults for anything unset.
func LoadWorkerConfig() (*WorkerConfig, error) {
	cfg := &WorkerConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load worker config: %w", err)
	}

	if cfg.Scheduler.TimerDBPath == "" {
		cfg.Scheduler.TimerDBPath = "taskpulse-timers.db"
	}
	if cfg.Observability.OTelCollector == "" {
		cfg.Observability.OTelCollector = "localhost:4317"
	}

	return cfg, nil
}
