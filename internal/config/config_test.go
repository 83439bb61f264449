// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"log/slog"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "./data/reservo.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.ServerAddr() != "localhost:8080" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr())
	}
	if !cfg.IsDevelopment() {
		t.Error("default env should be development")
	}
	if cfg.MaintenanceSchedule != "0 3 * * *" {
		t.Errorf("MaintenanceSchedule = %q", cfg.MaintenanceSchedule)
	}
	if !cfg.AuditLogToStderr {
		t.Error("AuditLogToStderr should default to true")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("RESERVO_DB_PATH", "/var/lib/reservo/audit.db")
	t.Setenv("RESERVO_SERVER_PORT", "9090")
	t.Setenv("RESERVO_ENV", "production")
	t.Setenv("RESERVO_MAINTENANCE_SCHEDULE", "30 2 * * *")
	t.Setenv("RESERVO_AUDIT_LOG_TO_STDERR", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "/var/lib/reservo/audit.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.ServerPort != 9090 {
		t.Errorf("ServerPort = %d", cfg.ServerPort)
	}
	if cfg.IsDevelopment() {
		t.Error("production env reported as development")
	}
	if cfg.AuditLogToStderr {
		t.Error("AuditLogToStderr = true, expected override to false")
	}
}

func TestLoadRejectsBadSchedule(t *testing.T) {
	t.Setenv("RESERVO_MAINTENANCE_SCHEDULE", "not a cron expression")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("RESERVO_SERVER_PORT", "70000")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := Config{LogLevel: tt.in}
		if got := cfg.SlogLevel(); got != tt.expected {
			t.Errorf("SlogLevel(%q) = %v, expected %v", tt.in, got, tt.expected)
		}
	}
}
