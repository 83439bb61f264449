// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/olegiv/reservo/internal/model"
	"github.com/olegiv/reservo/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecuteRetentionPoliciesDeletesExpired(t *testing.T) {
	db := setupAuditTestDB(t)
	queries := store.New(db)
	recorder := NewRecorder(queries)
	m := NewMaintainer(queries, recorder, NewQueryService(queries), DefaultPolicySet(), discardLogger())

	now := time.Now().UTC()
	// Debug retention is 7 days; one expired, one fresh.
	insertLog(t, db, model.LevelDebug, model.CategoryAPIRequest, "trace", "expired debug", now.AddDate(0, 0, -10))
	insertLog(t, db, model.LevelDebug, model.CategoryAPIRequest, "trace", "fresh debug", now.AddDate(0, 0, -2))
	// Info retention is 30 days.
	insertLog(t, db, model.LevelInfo, model.CategoryEmail, "sent", "expired info", now.AddDate(0, 0, -45))

	summary, err := m.ExecuteRetentionPolicies(context.Background())
	if err != nil {
		t.Fatalf("ExecuteRetentionPolicies failed: %v", err)
	}

	if summary.RowsDeleted != 2 {
		t.Errorf("rows_deleted = %d, expected 2", summary.RowsDeleted)
	}
	if summary.PoliciesFailed != 0 {
		t.Errorf("policies_failed = %d, expected 0", summary.PoliciesFailed)
	}
	if summary.PoliciesProcessed != len(DefaultPolicySet().All()) {
		t.Errorf("policies_processed = %d, expected %d", summary.PoliciesProcessed, len(DefaultPolicySet().All()))
	}
	if summary.BytesFreedEstimate != 2*bytesPerRowEstimate {
		t.Errorf("bytes_freed_estimate = %d, expected %d", summary.BytesFreedEstimate, 2*bytesPerRowEstimate)
	}

	if n := countLogs(t, db, "message = ?", "expired debug"); n != 0 {
		t.Error("expired debug entry survived cleanup")
	}
	if n := countLogs(t, db, "message = ?", "fresh debug"); n != 1 {
		t.Error("fresh debug entry was deleted")
	}
	if n := countLogs(t, db, "message = ?", "expired info"); n != 0 {
		t.Error("expired info entry survived cleanup")
	}

	// Lifecycle events were recorded.
	if n := countLogs(t, db, "event_type = ?", "log_retention_start"); n != 1 {
		t.Errorf("log_retention_start events = %d, expected 1", n)
	}
	if n := countLogs(t, db, "event_type = ?", "log_retention_complete"); n != 1 {
		t.Errorf("log_retention_complete events = %d, expected 1", n)
	}
}

func TestExecuteRetentionPoliciesNeverDeletesCritical(t *testing.T) {
	db := setupAuditTestDB(t)
	queries := store.New(db)
	recorder := NewRecorder(queries)
	m := NewMaintainer(queries, recorder, NewQueryService(queries), DefaultPolicySet(), discardLogger())

	// Ten years old, far past every retention period including critical's 365.
	now := time.Now().UTC()
	insertLog(t, db, model.LevelCritical, model.CategorySecurity, "breach", "ancient critical", now.AddDate(-10, 0, 0))

	if _, err := m.ExecuteRetentionPolicies(context.Background()); err != nil {
		t.Fatalf("ExecuteRetentionPolicies failed: %v", err)
	}

	if n := countLogs(t, db, "message = ?", "ancient critical"); n != 1 {
		t.Error("critical entry was deleted; critical-level rows must never expire")
	}
}

// selectiveFailPruner fails deletes for one level and delegates the rest.
type selectiveFailPruner struct {
	inner     LogPruner
	failLevel string
}

func (p selectiveFailPruner) DeleteExpiredAuditLogs(ctx context.Context, arg store.DeleteExpiredParams) (int64, error) {
	if arg.Level == p.failLevel && !arg.Category.Valid {
		return 0, errors.New("simulated delete failure")
	}
	return p.inner.DeleteExpiredAuditLogs(ctx, arg)
}

func TestExecuteRetentionPoliciesContainsPolicyFailure(t *testing.T) {
	db := setupAuditTestDB(t)
	queries := store.New(db)
	recorder := NewRecorder(queries)
	pruner := selectiveFailPruner{inner: queries, failLevel: model.LevelDebug}
	m := NewMaintainer(pruner, recorder, NewQueryService(queries), DefaultPolicySet(), discardLogger())

	now := time.Now().UTC()
	insertLog(t, db, model.LevelInfo, model.CategoryEmail, "sent", "expired info", now.AddDate(0, 0, -45))

	summary, err := m.ExecuteRetentionPolicies(context.Background())
	if err != nil {
		t.Fatalf("a failing policy must not fail the run: %v", err)
	}

	if summary.PoliciesFailed != 1 {
		t.Errorf("policies_failed = %d, expected 1", summary.PoliciesFailed)
	}
	expected := len(DefaultPolicySet().All()) - 1
	if summary.PoliciesProcessed != expected {
		t.Errorf("policies_processed = %d, expected %d", summary.PoliciesProcessed, expected)
	}

	// Later policies still ran: the expired info entry is gone.
	if n := countLogs(t, db, "message = ?", "expired info"); n != 0 {
		t.Error("info policy did not run after the debug policy failed")
	}

	// The failure is visible as an error event.
	if n := countLogs(t, db, "event_type = ? AND level = ?", "log_retention_policy_error", model.LevelError); n != 1 {
		t.Errorf("log_retention_policy_error events = %d, expected 1", n)
	}
	if n := countLogs(t, db, "event_type = ?", "log_retention_complete"); n != 1 {
		t.Error("completion event missing after contained failure")
	}
}

func TestExecuteRetentionPoliciesCancelledContextIsFatal(t *testing.T) {
	db := setupAuditTestDB(t)
	queries := store.New(db)
	recorder := NewRecorder(queries)
	m := NewMaintainer(queries, recorder, NewQueryService(queries), DefaultPolicySet(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.ExecuteRetentionPolicies(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if n := countLogs(t, db, "event_type = ?", "log_retention_start"); n != 0 {
		t.Error("retention started despite cancelled context")
	}
	// The failure itself must still reach the store as a critical event.
	if n := countLogs(t, db, "event_type = ? AND level = ?", "log_retention_error", model.LevelCritical); n != 1 {
		t.Errorf("log_retention_error events = %d, expected 1", n)
	}
}

// stubStats returns a fixed snapshot.
type stubStats struct {
	stats model.Statistics
	err   error
}

func (s stubStats) Statistics(context.Context, model.Timeframe) (model.Statistics, error) {
	return s.stats, s.err
}

func zeroFilledStats() model.Statistics {
	stats := model.Statistics{
		ByLevel:    make(map[string]int64),
		ByCategory: make(map[string]int64),
	}
	for _, level := range model.AllLevels() {
		stats.ByLevel[level] = 0
	}
	for _, category := range model.AllCategories() {
		stats.ByCategory[category] = 0
	}
	return stats
}

func TestMonitorLogGrowthAlertsOnHighErrorRate(t *testing.T) {
	db := setupAuditTestDB(t)
	queries := store.New(db)
	recorder := NewRecorder(queries)

	stats := zeroFilledStats()
	stats.RecentErrors = 1001
	m := NewMaintainer(queries, recorder, stubStats{stats: stats}, DefaultPolicySet(), discardLogger())

	m.MonitorLogGrowth(context.Background())

	if n := countLogs(t, db, "event_type = ? AND level = ?", "high_error_rate", model.LevelWarn); n != 1 {
		t.Errorf("high_error_rate events = %d, expected 1", n)
	}
	// Other thresholds were not breached.
	if n := countLogs(t, db, "event_type IN (?, ?, ?)",
		"critical_alert_volume", "log_volume_high", "slow_response_time"); n != 0 {
		t.Errorf("unexpected alerts = %d, expected 0", n)
	}
}

func TestMonitorLogGrowthQuietAtThreshold(t *testing.T) {
	db := setupAuditTestDB(t)
	queries := store.New(db)
	recorder := NewRecorder(queries)

	// Exactly at the limits, no alert fires.
	stats := zeroFilledStats()
	stats.RecentErrors = maxRecentErrorsPerDay
	stats.CriticalAlerts = maxCriticalAlertsPerDay
	stats.TotalLogs = maxTotalLogs
	stats.AverageResponseTime = maxAvgResponseTimeMs
	m := NewMaintainer(queries, recorder, stubStats{stats: stats}, DefaultPolicySet(), discardLogger())

	m.MonitorLogGrowth(context.Background())

	if n := countLogs(t, db, ""); n != 0 {
		t.Errorf("alerts at exact thresholds = %d, expected 0", n)
	}
}

func TestMonitorLogGrowthCriticalAlertVolume(t *testing.T) {
	db := setupAuditTestDB(t)
	queries := store.New(db)
	recorder := NewRecorder(queries)

	stats := zeroFilledStats()
	stats.CriticalAlerts = 11
	m := NewMaintainer(queries, recorder, stubStats{stats: stats}, DefaultPolicySet(), discardLogger())

	m.MonitorLogGrowth(context.Background())

	if n := countLogs(t, db, "event_type = ? AND level = ?", "critical_alert_volume", model.LevelCritical); n != 1 {
		t.Errorf("critical_alert_volume events = %d, expected 1", n)
	}
}

func TestMonitorLogGrowthStatsFailureIsContained(t *testing.T) {
	db := setupAuditTestDB(t)
	queries := store.New(db)
	recorder := NewRecorder(queries)
	m := NewMaintainer(queries, recorder, stubStats{err: errors.New("snapshot failed")}, DefaultPolicySet(), discardLogger())

	m.MonitorLogGrowth(context.Background())

	if n := countLogs(t, db, "event_type = ? AND level = ? AND category = ?",
		"log_monitoring_error", model.LevelError, model.CategorySystemError); n != 1 {
		t.Errorf("log_monitoring_error events = %d, expected 1", n)
	}
}

func TestOptimizeLogStorageRecommendsOnDebugShare(t *testing.T) {
	db := setupAuditTestDB(t)
	queries := store.New(db)
	recorder := NewRecorder(queries)

	stats := zeroFilledStats()
	stats.TotalLogs = 100
	stats.ByLevel[model.LevelDebug] = 60
	m := NewMaintainer(queries, recorder, stubStats{stats: stats}, DefaultPolicySet(), discardLogger())

	m.OptimizeLogStorage(context.Background())

	if n := countLogs(t, db, "event_type = ? AND level = ?", "log_optimization_check", model.LevelInfo); n != 1 {
		t.Fatalf("log_optimization_check events = %d, expected 1", n)
	}

	var metadata string
	err := db.QueryRow(`SELECT metadata FROM audit_logs WHERE event_type = 'log_optimization_check'`).Scan(&metadata)
	if err != nil {
		t.Fatalf("reading optimization metadata: %v", err)
	}
	if !containsAll(metadata, "Debug logs are 60%", "debug verbosity") {
		t.Errorf("metadata missing debug share recommendation: %s", metadata)
	}
}

func TestRunMaintenanceWeekday(t *testing.T) {
	db := setupAuditTestDB(t)
	queries := store.New(db)
	recorder := NewRecorder(queries)
	m := NewMaintainer(queries, recorder, stubStats{stats: zeroFilledStats()}, DefaultPolicySet(), discardLogger())

	weekday := time.Now().UTC()
	for weekday.Weekday() == time.Sunday {
		weekday = weekday.AddDate(0, 0, 1)
	}
	m.now = func() time.Time { return weekday }

	if err := m.RunMaintenance(context.Background()); err != nil {
		t.Fatalf("RunMaintenance failed: %v", err)
	}

	if n := countLogs(t, db, "event_type = ?", "log_retention_start"); n != 0 {
		t.Error("retention ran on a weekday; it should only run on Sunday")
	}
	if n := countLogs(t, db, "event_type = ?", "log_optimization_check"); n != 0 {
		t.Error("optimization ran on a weekday; it should only run on Sunday")
	}

	var message string
	err := db.QueryRow(`SELECT message FROM audit_logs WHERE event_type = 'log_maintenance_complete'`).Scan(&message)
	if err != nil {
		t.Fatalf("reading completion event: %v", err)
	}
	if !containsAll(message, taskGrowthMonitoring) || containsAll(message, taskRetentionCleanup) {
		t.Errorf("unexpected completion message: %s", message)
	}
}

func TestRunMaintenanceSunday(t *testing.T) {
	db := setupAuditTestDB(t)
	queries := store.New(db)
	recorder := NewRecorder(queries)
	m := NewMaintainer(queries, recorder, stubStats{stats: zeroFilledStats()}, DefaultPolicySet(), discardLogger())

	// Advance to the next Sunday so the weekly branch runs; staying within a
	// week of real time keeps freshly recorded events inside every retention
	// window.
	sunday := time.Now().UTC()
	for sunday.Weekday() != time.Sunday {
		sunday = sunday.AddDate(0, 0, 1)
	}
	m.now = func() time.Time { return sunday }

	if err := m.RunMaintenance(context.Background()); err != nil {
		t.Fatalf("RunMaintenance failed: %v", err)
	}

	if n := countLogs(t, db, "event_type = ?", "log_retention_start"); n != 1 {
		t.Error("retention did not run on Sunday")
	}
	if n := countLogs(t, db, "event_type = ?", "log_optimization_check"); n != 1 {
		t.Error("optimization did not run on Sunday")
	}

	var message string
	err := db.QueryRow(`SELECT message FROM audit_logs WHERE event_type = 'log_maintenance_complete'`).Scan(&message)
	if err != nil {
		t.Fatalf("reading completion event: %v", err)
	}
	if !containsAll(message, taskGrowthMonitoring, taskRetentionCleanup, taskStorageOptimization) {
		t.Errorf("completion message missing tasks: %s", message)
	}
}

func TestRunMaintenanceCancelledContext(t *testing.T) {
	db := setupAuditTestDB(t)
	queries := store.New(db)
	recorder := NewRecorder(queries)
	m := NewMaintainer(queries, recorder, stubStats{stats: zeroFilledStats()}, DefaultPolicySet(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.RunMaintenance(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if n := countLogs(t, db, "event_type = ? AND level = ?", "log_maintenance_error", model.LevelCritical); n != 1 {
		t.Errorf("log_maintenance_error events = %d, expected 1", n)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
