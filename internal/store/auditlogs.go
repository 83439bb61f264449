// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DBTX is the subset of *sql.DB / *sql.Tx used by Queries.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries provides typed access to the audit_logs table.
type Queries struct {
	db DBTX
}

// New creates a Queries instance bound to the given database handle.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// AuditLog is one persisted audit log row.
type AuditLog struct {
	ID           int64
	Level        string
	Category     string
	EventType    string
	Message      string
	UserID       sql.NullString
	UserName     sql.NullString
	UserEmail    sql.NullString
	UserRole     sql.NullString
	IPAddress    sql.NullString
	UserAgent    sql.NullString
	RequestID    sql.NullString
	SessionID    sql.NullString
	ResourceType sql.NullString
	ResourceID   sql.NullString
	DurationMs   sql.NullInt64
	StatusCode   sql.NullInt64
	OldValues    sql.NullString // JSON
	NewValues    sql.NullString // JSON
	Metadata     sql.NullString // JSON
	ErrorCode    sql.NullString
	ErrorMessage sql.NullString
	StackTrace   sql.NullString
	CreatedAt    time.Time
}

// CreateAuditLogParams holds the insertable columns of an audit log row.
// CreatedAt is assigned by the store at insert time.
type CreateAuditLogParams struct {
	Level        string
	Category     string
	EventType    string
	Message      string
	UserID       sql.NullString
	UserName     sql.NullString
	UserEmail    sql.NullString
	UserRole     sql.NullString
	IPAddress    sql.NullString
	UserAgent    sql.NullString
	RequestID    sql.NullString
	SessionID    sql.NullString
	ResourceType sql.NullString
	ResourceID   sql.NullString
	DurationMs   sql.NullInt64
	StatusCode   sql.NullInt64
	OldValues    sql.NullString
	NewValues    sql.NullString
	Metadata     sql.NullString
	ErrorCode    sql.NullString
	ErrorMessage sql.NullString
	StackTrace   sql.NullString
}

const auditLogColumns = `id, level, category, event_type, message,
	user_id, user_name, user_email, user_role,
	ip_address, user_agent, request_id, session_id,
	resource_type, resource_id, duration_ms, status_code,
	old_values, new_values, metadata,
	error_code, error_message, stack_trace, created_at`

// CreateAuditLog inserts one audit log row and returns it with its assigned
// ID and timestamp.
func (q *Queries) CreateAuditLog(ctx context.Context, arg CreateAuditLogParams) (AuditLog, error) {
	now := time.Now().UTC()

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			level, category, event_type, message,
			user_id, user_name, user_email, user_role,
			ip_address, user_agent, request_id, session_id,
			resource_type, resource_id, duration_ms, status_code,
			old_values, new_values, metadata,
			error_code, error_message, stack_trace, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.Level, arg.Category, arg.EventType, arg.Message,
		arg.UserID, arg.UserName, arg.UserEmail, arg.UserRole,
		arg.IPAddress, arg.UserAgent, arg.RequestID, arg.SessionID,
		arg.ResourceType, arg.ResourceID, arg.DurationMs, arg.StatusCode,
		arg.OldValues, arg.NewValues, arg.Metadata,
		arg.ErrorCode, arg.ErrorMessage, arg.StackTrace, now,
	)
	if err != nil {
		return AuditLog{}, fmt.Errorf("inserting audit log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return AuditLog{}, fmt.Errorf("reading insert id: %w", err)
	}

	row := AuditLog{
		ID:           id,
		Level:        arg.Level,
		Category:     arg.Category,
		EventType:    arg.EventType,
		Message:      arg.Message,
		UserID:       arg.UserID,
		UserName:     arg.UserName,
		UserEmail:    arg.UserEmail,
		UserRole:     arg.UserRole,
		IPAddress:    arg.IPAddress,
		UserAgent:    arg.UserAgent,
		RequestID:    arg.RequestID,
		SessionID:    arg.SessionID,
		ResourceType: arg.ResourceType,
		ResourceID:   arg.ResourceID,
		DurationMs:   arg.DurationMs,
		StatusCode:   arg.StatusCode,
		OldValues:    arg.OldValues,
		NewValues:    arg.NewValues,
		Metadata:     arg.Metadata,
		ErrorCode:    arg.ErrorCode,
		ErrorMessage: arg.ErrorMessage,
		StackTrace:   arg.StackTrace,
		CreatedAt:    now,
	}
	return row, nil
}

// AuditLogFilter describes the optional query dimensions. All set fields are
// combined with AND; Levels and Categories are OR-matched within themselves,
// and Search is OR-matched across message, user email and event type.
type AuditLogFilter struct {
	Levels       []string
	Categories   []string
	EventType    string // substring, case-insensitive
	UserID       string // exact
	ResourceType string // substring
	ResourceID   string // exact
	DateFrom     *time.Time
	DateTo       *time.Time
	Search       string
}

// where renders the filter as a SQL condition with bind args. An empty filter
// yields "1=1" so callers can always append it after WHERE.
func (f AuditLogFilter) where() (string, []any) {
	conds := []string{"1=1"}
	var args []any

	if len(f.Levels) > 0 {
		conds = append(conds, "level IN ("+placeholders(len(f.Levels))+")")
		for _, l := range f.Levels {
			args = append(args, l)
		}
	}
	if len(f.Categories) > 0 {
		conds = append(conds, "category IN ("+placeholders(len(f.Categories))+")")
		for _, c := range f.Categories {
			args = append(args, c)
		}
	}
	if f.EventType != "" {
		conds = append(conds, "LOWER(event_type) LIKE '%' || LOWER(?) || '%'")
		args = append(args, f.EventType)
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ResourceType != "" {
		conds = append(conds, "LOWER(resource_type) LIKE '%' || LOWER(?) || '%'")
		args = append(args, f.ResourceType)
	}
	if f.ResourceID != "" {
		conds = append(conds, "resource_id = ?")
		args = append(args, f.ResourceID)
	}
	if f.DateFrom != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *f.DateFrom)
	}
	if f.DateTo != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *f.DateTo)
	}
	if f.Search != "" {
		conds = append(conds, "(LOWER(message) LIKE '%' || LOWER(?) || '%'"+
			" OR LOWER(user_email) LIKE '%' || LOWER(?) || '%'"+
			" OR LOWER(event_type) LIKE '%' || LOWER(?) || '%')")
		args = append(args, f.Search, f.Search, f.Search)
	}

	return strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// ListAuditLogs returns filtered rows ordered newest-first.
func (q *Queries) ListAuditLogs(ctx context.Context, filter AuditLogFilter, limit, offset int64) ([]AuditLog, error) {
	where, args := filter.where()
	query := "SELECT " + auditLogColumns + " FROM audit_logs WHERE " + where +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []AuditLog
	for rows.Next() {
		var l AuditLog
		if err := rows.Scan(
			&l.ID, &l.Level, &l.Category, &l.EventType, &l.Message,
			&l.UserID, &l.UserName, &l.UserEmail, &l.UserRole,
			&l.IPAddress, &l.UserAgent, &l.RequestID, &l.SessionID,
			&l.ResourceType, &l.ResourceID, &l.DurationMs, &l.StatusCode,
			&l.OldValues, &l.NewValues, &l.Metadata,
			&l.ErrorCode, &l.ErrorMessage, &l.StackTrace, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning audit log: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// CountAuditLogs returns the number of rows matching the filter.
func (q *Queries) CountAuditLogs(ctx context.Context, filter AuditLogFilter) (int64, error) {
	where, args := filter.where()

	var count int64
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs WHERE "+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting audit logs: %w", err)
	}
	return count, nil
}

// CountByLevelSince returns per-level row counts for rows created at or after
// since. Levels absent from the window are absent from the map.
func (q *Queries) CountByLevelSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	return q.groupedCountSince(ctx, "level", since)
}

// CountByCategorySince returns per-category row counts for rows created at or
// after since.
func (q *Queries) CountByCategorySince(ctx context.Context, since time.Time) (map[string]int64, error) {
	return q.groupedCountSince(ctx, "category", since)
}

func (q *Queries) groupedCountSince(ctx context.Context, column string, since time.Time) (map[string]int64, error) {
	// column is always one of the two fixed identifiers above, never user input.
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM audit_logs WHERE created_at >= ? GROUP BY "+column, since)
	if err != nil {
		return nil, fmt.Errorf("counting audit logs by %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scanning %s count: %w", column, err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// AverageDurationSince returns the mean duration_ms over rows created at or
// after since, ignoring rows without a duration. Returns 0 when no row has one.
func (q *Queries) AverageDurationSince(ctx context.Context, since time.Time) (float64, error) {
	var avg sql.NullFloat64
	err := q.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM audit_logs WHERE created_at >= ? AND duration_ms IS NOT NULL",
		since).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("averaging duration: %w", err)
	}
	return avg.Float64, nil
}

// DeleteExpiredParams selects the rows removed by one retention policy run.
type DeleteExpiredParams struct {
	Level        string
	Category     sql.NullString // restricts the delete when the policy is category-scoped
	Cutoff       time.Time
	ExcludeLevel string // rows at this level are never deleted
}

// DeleteExpiredAuditLogs removes rows older than the cutoff matching the
// policy scope, as a single bulk statement. Returns the number of rows deleted.
func (q *Queries) DeleteExpiredAuditLogs(ctx context.Context, arg DeleteExpiredParams) (int64, error) {
	query := "DELETE FROM audit_logs WHERE level = ? AND created_at < ? AND level <> ?"
	args := []any{arg.Level, arg.Cutoff, arg.ExcludeLevel}
	if arg.Category.Valid {
		query += " AND category = ?"
		args = append(args, arg.Category.String)
	}

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting expired audit logs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return deleted, nil
}
