// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath     string `env:"RESERVO_DB_PATH" envDefault:"./data/reservo.db"`
	ServerHost string `env:"RESERVO_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"RESERVO_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"RESERVO_ENV" envDefault:"development"`
	LogLevel   string `env:"RESERVO_LOG_LEVEL" envDefault:"info"`

	// Audit log maintenance configuration
	MaintenanceSchedule string `env:"RESERVO_MAINTENANCE_SCHEDULE" envDefault:"0 3 * * *"` // daily at 03:00
	AuditLogToStderr    bool   `env:"RESERVO_AUDIT_LOG_TO_STDERR" envDefault:"true"`      // fallback sink for failed audit writes
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// SlogLevel maps the configured log level onto slog's level type.
// Unknown values fall back to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Validate the maintenance schedule up front so a bad value fails at
	// startup rather than when the scheduler registers the job.
	if _, err := cron.ParseStandard(cfg.MaintenanceSchedule); err != nil {
		return nil, fmt.Errorf("RESERVO_MAINTENANCE_SCHEDULE %q is not a valid cron expression: %w",
			cfg.MaintenanceSchedule, err)
	}

	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		return nil, fmt.Errorf("RESERVO_SERVER_PORT must be between 1 and 65535, got %d", cfg.ServerPort)
	}

	return cfg, nil
}
