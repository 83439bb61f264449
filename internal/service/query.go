// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olegiv/reservo/internal/model"
	"github.com/olegiv/reservo/internal/store"
)

// DefaultQueryLimit is the page size used when the caller does not set one.
const DefaultQueryLimit = 50

// MaxExportRows caps a CSV export regardless of the requested limit.
const MaxExportRows = 10000

// LogReader is the slice of the store the query engine needs.
type LogReader interface {
	ListAuditLogs(ctx context.Context, filter store.AuditLogFilter, limit, offset int64) ([]store.AuditLog, error)
	CountAuditLogs(ctx context.Context, filter store.AuditLogFilter) (int64, error)
	CountByLevelSince(ctx context.Context, since time.Time) (map[string]int64, error)
	CountByCategorySince(ctx context.Context, since time.Time) (map[string]int64, error)
	AverageDurationSince(ctx context.Context, since time.Time) (float64, error)
}

// QueryService serves filtered reads, statistics and CSV exports over the
// audit log.
type QueryService struct {
	queries LogReader
	now     func() time.Time
}

// NewQueryService creates a QueryService.
func NewQueryService(queries LogReader) *QueryService {
	return &QueryService{
		queries: queries,
		now:     utcNow,
	}
}

// utcNow keeps every engine timestamp in UTC so window cutoffs compare
// consistently against stored created_at values.
func utcNow() time.Time {
	return time.Now().UTC()
}

// QueryParams combines the row filter with 1-based pagination.
type QueryParams struct {
	store.AuditLogFilter
	Page  int
	Limit int
}

// QueryResult is one page of filtered audit log entries, newest first.
type QueryResult struct {
	Entries    []store.AuditLog
	Total      int64
	Page       int
	TotalPages int
	HasMore    bool
}

// Query returns one page of entries matching the filter.
func (s *QueryService) Query(ctx context.Context, params QueryParams) (QueryResult, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	if limit < 1 {
		limit = DefaultQueryLimit
	}

	total, err := s.queries.CountAuditLogs(ctx, params.AuditLogFilter)
	if err != nil {
		return QueryResult{}, fmt.Errorf("counting matching entries: %w", err)
	}

	offset := int64(page-1) * int64(limit)
	entries, err := s.queries.ListAuditLogs(ctx, params.AuditLogFilter, int64(limit), offset)
	if err != nil {
		return QueryResult{}, fmt.Errorf("listing entries: %w", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	return QueryResult{
		Entries:    entries,
		Total:      total,
		Page:       page,
		TotalPages: totalPages,
		HasMore:    int64(page)*int64(limit) < total,
	}, nil
}

// Statistics computes an aggregate snapshot over the trailing timeframe
// window. ByLevel and ByCategory always carry every known level and category,
// zero-filled when absent from the window.
func (s *QueryService) Statistics(ctx context.Context, timeframe model.Timeframe) (model.Statistics, error) {
	cutoff := timeframe.Cutoff(s.now())

	levelCounts, err := s.queries.CountByLevelSince(ctx, cutoff)
	if err != nil {
		return model.Statistics{}, fmt.Errorf("counting by level: %w", err)
	}
	categoryCounts, err := s.queries.CountByCategorySince(ctx, cutoff)
	if err != nil {
		return model.Statistics{}, fmt.Errorf("counting by category: %w", err)
	}
	avgDuration, err := s.queries.AverageDurationSince(ctx, cutoff)
	if err != nil {
		return model.Statistics{}, fmt.Errorf("averaging response time: %w", err)
	}

	stats := model.Statistics{
		ByLevel:             make(map[string]int64, len(model.AllLevels())),
		ByCategory:          make(map[string]int64, len(model.AllCategories())),
		AverageResponseTime: avgDuration,
	}
	for _, level := range model.AllLevels() {
		stats.ByLevel[level] = levelCounts[level]
		stats.TotalLogs += levelCounts[level]
	}
	for _, category := range model.AllCategories() {
		stats.ByCategory[category] = categoryCounts[category]
	}
	stats.RecentErrors = stats.ByLevel[model.LevelError] + stats.ByLevel[model.LevelCritical]
	stats.CriticalAlerts = stats.ByLevel[model.LevelCritical]

	return stats, nil
}

// csvColumns is the fixed export column order.
var csvColumns = []string{
	"Timestamp", "Level", "Category", "Event Type", "Message",
	"User Email", "User Role", "Resource Type", "Resource ID",
	"IP Address", "Status Code", "Duration", "Error Message",
}

// ExportCSV renders the filtered entries as CSV, capped at MaxExportRows.
// Every field is quoted and embedded quotes are doubled; missing optional
// fields render as empty strings.
func (s *QueryService) ExportCSV(ctx context.Context, filter store.AuditLogFilter) (string, error) {
	entries, err := s.queries.ListAuditLogs(ctx, filter, MaxExportRows, 0)
	if err != nil {
		return "", fmt.Errorf("listing entries for export: %w", err)
	}

	var b strings.Builder
	writeCSVRow(&b, csvColumns)

	for _, e := range entries {
		statusCode := ""
		if e.StatusCode.Valid {
			statusCode = strconv.FormatInt(e.StatusCode.Int64, 10)
		}
		duration := ""
		if e.DurationMs.Valid {
			duration = strconv.FormatInt(e.DurationMs.Int64, 10)
		}
		writeCSVRow(&b, []string{
			e.CreatedAt.Format(time.RFC3339),
			e.Level,
			e.Category,
			e.EventType,
			e.Message,
			e.UserEmail.String,
			e.UserRole.String,
			e.ResourceType.String,
			e.ResourceID.String,
			e.IPAddress.String,
			statusCode,
			duration,
			e.ErrorMessage.String,
		})
	}

	return b.String(), nil
}

// writeCSVRow writes one line with every field quoted. encoding/csv is not
// used here because it only quotes fields that need it, and the export format
// requires unconditional quoting.
func writeCSVRow(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}
