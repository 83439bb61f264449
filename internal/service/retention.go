// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/olegiv/reservo/internal/model"
	"github.com/olegiv/reservo/internal/store"
	"github.com/olegiv/reservo/internal/util"
)

// Growth monitoring thresholds over a one-day window.
const (
	maxRecentErrorsPerDay   = 1000
	maxCriticalAlertsPerDay = 10
	maxTotalLogs            = 50000
	maxAvgResponseTimeMs    = 5000
)

// Storage optimization heuristics over a one-week window.
const (
	debugShareLimit      = 0.5
	apiRequestShareLimit = 0.7
)

// bytesPerRowEstimate is a rough per-row size used for the bytes-freed figure
// in the retention summary. It is an estimate, not accounting.
const bytesPerRowEstimate = 512

// LogPruner is the slice of the store the retention loop needs.
type LogPruner interface {
	DeleteExpiredAuditLogs(ctx context.Context, arg store.DeleteExpiredParams) (int64, error)
}

// StatsProvider supplies the statistics snapshots the monitoring and
// optimization workflows read. *QueryService satisfies it.
type StatsProvider interface {
	Statistics(ctx context.Context, timeframe model.Timeframe) (model.Statistics, error)
}

// Maintainer runs the unattended retention, monitoring and optimization
// workflows. Each workflow is idempotent and safe to re-run; the whole
// Maintainer is safe to invoke concurrently since every constituent step is
// either an idempotent bulk delete, a re-computed read, or an append.
type Maintainer struct {
	pruner   LogPruner
	recorder *Recorder
	stats    StatsProvider
	policies PolicySet
	logger   *slog.Logger
	now      func() time.Time
}

// NewMaintainer creates a Maintainer.
func NewMaintainer(pruner LogPruner, recorder *Recorder, stats StatsProvider, policies PolicySet, logger *slog.Logger) *Maintainer {
	return &Maintainer{
		pruner:   pruner,
		recorder: recorder,
		stats:    stats,
		policies: policies,
		logger:   logger,
		now:      utcNow,
	}
}

// RetentionSummary describes one retention cleanup run. BytesFreedEstimate
// and AverageRetentionDays are rough estimates.
type RetentionSummary struct {
	PoliciesProcessed    int   `json:"policies_processed"`
	PoliciesFailed       int   `json:"policies_failed"`
	RowsDeleted          int64 `json:"rows_deleted"`
	BytesFreedEstimate   int64 `json:"bytes_freed_estimate"`
	AverageRetentionDays int   `json:"average_retention_days"`
}

// ExecuteRetentionPolicies deletes expired rows for every configured policy.
// Critical-level rows are never deleted, regardless of which policy expires
// them. A failing policy is logged as an error event and the loop continues;
// only a failure outside the per-policy loop is fatal and returned.
func (m *Maintainer) ExecuteRetentionPolicies(ctx context.Context) (RetentionSummary, error) {
	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("retention run aborted before start: %w", err)
		// The context that made this path fatal cannot carry the event itself.
		m.record(context.WithoutCancel(ctx), model.LevelCritical, model.CategoryAuditTrail, "log_retention_error",
			"Audit log retention run failed to start", map[string]any{"error": err.Error()})
		return RetentionSummary{}, err
	}

	start := m.now()
	m.record(ctx, model.LevelInfo, model.CategoryAuditTrail, "log_retention_start",
		"Starting audit log retention cleanup", nil)

	// The 30-day figure is a fixed rough average across policies, kept for
	// operator dashboards.
	summary := RetentionSummary{AverageRetentionDays: 30}

	for _, policy := range m.policies.All() {
		cutoff := m.now().AddDate(0, 0, -policy.RetentionDays)
		deleted, err := m.pruner.DeleteExpiredAuditLogs(ctx, store.DeleteExpiredParams{
			Level:        policy.Level,
			Category:     util.NullStringFromValue(policy.Category),
			Cutoff:       cutoff,
			ExcludeLevel: model.LevelCritical,
		})
		if err != nil {
			summary.PoliciesFailed++
			m.logger.Error("retention policy failed",
				"level", policy.Level, "category", policy.Category, "error", err)
			m.record(ctx, model.LevelError, model.CategoryAuditTrail, "log_retention_policy_error",
				fmt.Sprintf("Retention policy for %s failed", policyName(policy)),
				map[string]any{
					"policy_level":    policy.Level,
					"policy_category": policy.Category,
					"retention_days":  policy.RetentionDays,
					"error":           err.Error(),
				})
			continue
		}
		summary.PoliciesProcessed++
		summary.RowsDeleted += deleted
	}

	summary.BytesFreedEstimate = summary.RowsDeleted * bytesPerRowEstimate

	m.record(ctx, model.LevelInfo, model.CategoryAuditTrail, "log_retention_complete",
		fmt.Sprintf("Audit log retention cleanup removed %d entries", summary.RowsDeleted),
		map[string]any{
			"policies_processed":     summary.PoliciesProcessed,
			"policies_failed":        summary.PoliciesFailed,
			"rows_deleted":           summary.RowsDeleted,
			"bytes_freed_estimate":   summary.BytesFreedEstimate,
			"average_retention_days": summary.AverageRetentionDays,
			"duration_ms":            m.now().Sub(start).Milliseconds(),
		})

	return summary, nil
}

// growthCheck is one threshold comparison in the monitoring pass.
type growthCheck struct {
	eventType string
	level     string
	observed  float64
	threshold float64
	message   string
}

// MonitorLogGrowth compares a one-day statistics snapshot against the fixed
// growth thresholds and emits one alert event per breach. Failures are logged
// as error events and never returned: monitoring is advisory.
func (m *Maintainer) MonitorLogGrowth(ctx context.Context) {
	stats, err := m.stats.Statistics(ctx, model.TimeframeDay)
	if err != nil {
		m.logger.Error("log growth monitoring failed", "error", err)
		m.record(ctx, model.LevelError, model.CategorySystemError, "log_monitoring_error",
			"Log growth monitoring failed", map[string]any{"error": err.Error()})
		return
	}

	checks := []growthCheck{
		{
			eventType: "high_error_rate",
			level:     model.LevelWarn,
			observed:  float64(stats.RecentErrors),
			threshold: maxRecentErrorsPerDay,
			message:   fmt.Sprintf("High error rate: %d errors in the last day (threshold %d)", stats.RecentErrors, maxRecentErrorsPerDay),
		},
		{
			eventType: "critical_alert_volume",
			level:     model.LevelCritical,
			observed:  float64(stats.CriticalAlerts),
			threshold: maxCriticalAlertsPerDay,
			message:   fmt.Sprintf("Excessive critical alerts: %d in the last day (threshold %d)", stats.CriticalAlerts, maxCriticalAlertsPerDay),
		},
		{
			eventType: "log_volume_high",
			level:     model.LevelWarn,
			observed:  float64(stats.TotalLogs),
			threshold: maxTotalLogs,
			message:   fmt.Sprintf("High log volume: %d entries in the last day (threshold %d)", stats.TotalLogs, maxTotalLogs),
		},
		{
			eventType: "slow_response_time",
			level:     model.LevelWarn,
			observed:  stats.AverageResponseTime,
			threshold: maxAvgResponseTimeMs,
			message:   fmt.Sprintf("Slow average response time: %.0fms in the last day (threshold %dms)", stats.AverageResponseTime, maxAvgResponseTimeMs),
		},
	}

	for _, c := range checks {
		if c.observed <= c.threshold {
			continue
		}
		m.record(ctx, c.level, model.CategorySystemError, c.eventType, c.message, map[string]any{
			"observed":   c.observed,
			"threshold":  c.threshold,
			"statistics": statsMetadata(stats),
		})
	}
}

// Recommendation is one storage optimization suggestion.
type Recommendation struct {
	Description    string `json:"description"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
}

// OptimizeLogStorage evaluates a one-week snapshot against the storage
// heuristics and records the resulting recommendations as a single info
// event. Failures are logged as error events and never returned.
func (m *Maintainer) OptimizeLogStorage(ctx context.Context) {
	stats, err := m.stats.Statistics(ctx, model.TimeframeWeek)
	if err != nil {
		m.logger.Error("log storage optimization failed", "error", err)
		m.record(ctx, model.LevelError, model.CategorySystemError, "log_optimization_error",
			"Log storage optimization failed", map[string]any{"error": err.Error()})
		return
	}

	var recommendations []Recommendation

	if stats.TotalLogs > 0 {
		debugShare := float64(stats.ByLevel[model.LevelDebug]) / float64(stats.TotalLogs)
		if debugShare > debugShareLimit {
			recommendations = append(recommendations, Recommendation{
				Description:    fmt.Sprintf("Debug logs are %.0f%% of the last week's volume", debugShare*100),
				Impact:         "high",
				Recommendation: "Lower debug verbosity or shorten the debug retention period",
			})
		}
		apiShare := float64(stats.ByCategory[model.CategoryAPIRequest]) / float64(stats.TotalLogs)
		if apiShare > apiRequestShareLimit {
			recommendations = append(recommendations, Recommendation{
				Description:    fmt.Sprintf("API request logs are %.0f%% of the last week's volume", apiShare*100),
				Impact:         "medium",
				Recommendation: "Sample request logging or restrict it to non-2xx responses",
			})
		}
	}
	for _, category := range model.AllCategories() {
		if stats.ByCategory[category] == 0 {
			recommendations = append(recommendations, Recommendation{
				Description:    fmt.Sprintf("No %s logs recorded in the last week", category),
				Impact:         "low",
				Recommendation: fmt.Sprintf("Verify that %s instrumentation is still wired up", category),
			})
		}
	}

	recList := make([]map[string]any, 0, len(recommendations))
	for _, rec := range recommendations {
		recList = append(recList, map[string]any{
			"description":    rec.Description,
			"impact":         rec.Impact,
			"recommendation": rec.Recommendation,
		})
	}

	m.record(ctx, model.LevelInfo, model.CategoryAuditTrail, "log_optimization_check",
		fmt.Sprintf("Log storage optimization produced %d recommendations", len(recommendations)),
		map[string]any{"recommendations": recList})
}

// Maintenance sub-task names as reported in the completion event.
const (
	taskGrowthMonitoring    = "growth_monitoring"
	taskRetentionCleanup    = "retention_cleanup"
	taskStorageOptimization = "storage_optimization"
)

// RunMaintenance is the scheduled entry point. Growth monitoring runs on
// every invocation; retention cleanup and storage optimization additionally
// run at the start of the week (Sunday). A fatal failure is recorded as
// critical and returned so the invoking scheduler can surface it.
func (m *Maintainer) RunMaintenance(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("maintenance aborted before start: %w", err)
		m.record(context.WithoutCancel(ctx), model.LevelCritical, model.CategoryAuditTrail, "log_maintenance_error",
			"Scheduled log maintenance failed", map[string]any{"error": err.Error()})
		return err
	}

	executed := []string{taskGrowthMonitoring}
	m.MonitorLogGrowth(ctx)

	if m.now().Weekday() == time.Sunday {
		if _, err := m.ExecuteRetentionPolicies(ctx); err != nil {
			err = fmt.Errorf("running retention policies: %w", err)
			m.record(context.WithoutCancel(ctx), model.LevelCritical, model.CategoryAuditTrail, "log_maintenance_error",
				"Scheduled log maintenance failed", map[string]any{
					"error":    err.Error(),
					"executed": executed,
				})
			return err
		}
		executed = append(executed, taskRetentionCleanup)

		m.OptimizeLogStorage(ctx)
		executed = append(executed, taskStorageOptimization)
	}

	m.record(ctx, model.LevelInfo, model.CategoryAuditTrail, "log_maintenance_complete",
		fmt.Sprintf("Scheduled log maintenance finished: %s", strings.Join(executed, ", ")),
		map[string]any{"executed": executed})

	return nil
}

// record funnels orchestrator events through the recorder.
func (m *Maintainer) record(ctx context.Context, level, category, eventType, message string, metadata map[string]any) {
	m.recorder.Record(ctx, model.LogEntry{
		Level:     level,
		Category:  category,
		EventType: eventType,
		Message:   message,
		Metadata:  metadata,
	})
}

func policyName(p model.RetentionPolicy) string {
	if p.Category != "" {
		return p.Level + "/" + p.Category
	}
	return p.Level
}

// statsMetadata flattens a snapshot for event metadata.
func statsMetadata(stats model.Statistics) map[string]any {
	byLevel := make(map[string]any, len(stats.ByLevel))
	for k, v := range stats.ByLevel {
		byLevel[k] = v
	}
	byCategory := make(map[string]any, len(stats.ByCategory))
	for k, v := range stats.ByCategory {
		byCategory[k] = v
	}
	return map[string]any{
		"total_logs":            stats.TotalLogs,
		"by_level":              byLevel,
		"by_category":           byCategory,
		"recent_errors":         stats.RecentErrors,
		"critical_alerts":       stats.CriticalAlerts,
		"average_response_time": stats.AverageResponseTime,
	}
}
