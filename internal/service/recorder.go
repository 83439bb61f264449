// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service implements the audit logging engine: event recording,
// filtered queries and statistics, and the retention maintenance workflows.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/olegiv/reservo/internal/model"
	"github.com/olegiv/reservo/internal/sanitize"
	"github.com/olegiv/reservo/internal/store"
	"github.com/olegiv/reservo/internal/util"
)

// LogWriter is the slice of the store the recorder needs. *store.Queries
// satisfies it; tests swap in failing implementations.
type LogWriter interface {
	CreateAuditLog(ctx context.Context, arg store.CreateAuditLogParams) (store.AuditLog, error)
}

// Actor identifies who performed an action.
type Actor struct {
	ID    string
	Name  string
	Email string
	Role  string
}

// RequestInfo carries the HTTP request context of an event.
type RequestInfo struct {
	IPAddress string
	UserAgent string
	RequestID string
	SessionID string
}

// Recorder writes audit log entries. Record never reports failure to the
// caller: a broken audit log must not break the operation being audited, so
// persistence errors go to the fallback sink only.
type Recorder struct {
	queries  LogWriter
	fallback *slog.Logger
}

// NewRecorder creates a Recorder whose fallback sink writes to stderr.
func NewRecorder(queries LogWriter) *Recorder {
	return NewRecorderWithFallback(queries, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// NewRecorderWithFallback creates a Recorder with a custom fallback sink.
func NewRecorderWithFallback(queries LogWriter, fallback *slog.Logger) *Recorder {
	return &Recorder{
		queries:  queries,
		fallback: fallback,
	}
}

// Record sanitizes, truncates and persists one entry. It never returns an
// error: invalid entries are dropped and persistence failures are reported to
// the fallback sink only.
func (r *Recorder) Record(ctx context.Context, e model.LogEntry) {
	if err := validateEntry(e); err != nil {
		r.fallback.Error("dropping invalid audit log entry",
			"event_type", e.EventType,
			"error", err,
		)
		return
	}

	params := store.CreateAuditLogParams{
		Level:        e.Level,
		Category:     e.Category,
		EventType:    e.EventType,
		Message:      e.Message,
		UserID:       util.NullStringFromValue(e.UserID),
		UserName:     util.NullStringFromValue(e.UserName),
		UserEmail:    util.NullStringFromValue(e.UserEmail),
		UserRole:     util.NullStringFromValue(e.UserRole),
		IPAddress:    util.NullStringFromValue(e.IPAddress),
		UserAgent:    util.NullStringFromValue(truncate(e.UserAgent, model.MaxUserAgentLen)),
		RequestID:    util.NullStringFromValue(e.RequestID),
		SessionID:    util.NullStringFromValue(e.SessionID),
		ResourceType: util.NullStringFromValue(e.ResourceType),
		ResourceID:   util.NullStringFromValue(e.ResourceID),
		DurationMs:   util.NullInt64FromPtr(e.Duration),
		StatusCode:   nullInt64FromIntPtr(e.StatusCode),
		OldValues:    sanitizedJSON(e.OldValues),
		NewValues:    sanitizedJSON(e.NewValues),
		Metadata:     sanitizedJSON(e.Metadata),
		ErrorCode:    util.NullStringFromValue(e.ErrorCode),
		ErrorMessage: util.NullStringFromValue(truncate(e.ErrorMessage, model.MaxErrorMessageLen)),
		StackTrace:   util.NullStringFromValue(truncate(e.StackTrace, model.MaxStackTraceLen)),
	}

	if _, err := r.queries.CreateAuditLog(ctx, params); err != nil {
		r.fallback.Error("failed to persist audit log entry",
			"level", e.Level,
			"category", e.Category,
			"event_type", e.EventType,
			"error", err,
		)
	}
}

// validateEntry checks the four required fields.
func validateEntry(e model.LogEntry) error {
	if !model.ValidLevel(e.Level) {
		return fmt.Errorf("invalid level %q", e.Level)
	}
	if !model.ValidCategory(e.Category) {
		return fmt.Errorf("invalid category %q", e.Category)
	}
	if e.EventType == "" {
		return fmt.Errorf("event type is required")
	}
	if e.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

// sanitizedJSON redacts sensitive fields and renders the payload as a JSON
// column value. Nil payloads are stored as NULL.
func sanitizedJSON(m map[string]any) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	clean := sanitize.Sanitize(m)
	b, err := json.Marshal(clean)
	if err != nil {
		// Non-serializable payloads degrade to an empty object rather than
		// blocking the write.
		return sql.NullString{String: "{}", Valid: true}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// truncate caps s at maxLen bytes, backing off to a rune boundary so the
// stored value stays valid UTF-8.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func nullInt64FromIntPtr(ptr *int) sql.NullInt64 {
	if ptr != nil {
		return sql.NullInt64{Int64: int64(*ptr), Valid: true}
	}
	return sql.NullInt64{}
}

// LogAuth records an authentication event. Successful attempts are info/200,
// failed attempts warn/401.
func (r *Recorder) LogAuth(ctx context.Context, eventType, message string, success bool, actor Actor, req RequestInfo, metadata map[string]any) {
	level, status := model.LevelInfo, 200
	if !success {
		level, status = model.LevelWarn, 401
	}
	r.Record(ctx, model.LogEntry{
		Level:      level,
		Category:   model.CategoryAuthentication,
		EventType:  eventType,
		Message:    message,
		UserID:     actor.ID,
		UserName:   actor.Name,
		UserEmail:  actor.Email,
		UserRole:   actor.Role,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		RequestID:  req.RequestID,
		SessionID:  req.SessionID,
		StatusCode: &status,
		Metadata:   metadata,
	})
}

// LogAdminAction records an administrative change with its before/after state.
func (r *Recorder) LogAdminAction(ctx context.Context, action, message string, actor Actor, resourceType, resourceID string, oldValues, newValues map[string]any) {
	r.Record(ctx, model.LogEntry{
		Level:        model.LevelInfo,
		Category:     model.CategoryAdminAction,
		EventType:    action,
		Message:      message,
		UserID:       actor.ID,
		UserName:     actor.Name,
		UserEmail:    actor.Email,
		UserRole:     actor.Role,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
	})
}

// LogPayment records a payment processing event. Failures are errors: money
// was involved.
func (r *Recorder) LogPayment(ctx context.Context, eventType, message string, success bool, actor Actor, paymentID string, metadata map[string]any) {
	level, status := model.LevelInfo, 200
	if !success {
		level, status = model.LevelError, 400
	}
	r.Record(ctx, model.LogEntry{
		Level:        level,
		Category:     model.CategoryPayment,
		EventType:    eventType,
		Message:      message,
		UserID:       actor.ID,
		UserName:     actor.Name,
		UserEmail:    actor.Email,
		UserRole:     actor.Role,
		ResourceType: "payment",
		ResourceID:   paymentID,
		StatusCode:   &status,
		Metadata:     metadata,
	})
}

// LogAPIRequest records one handled HTTP request. 5xx responses are errors,
// 4xx warnings, everything else info.
func (r *Recorder) LogAPIRequest(ctx context.Context, method, path string, statusCode int, durationMs int64, actor Actor, req RequestInfo, metadata map[string]any) {
	level := model.LevelInfo
	switch {
	case statusCode >= 500:
		level = model.LevelError
	case statusCode >= 400:
		level = model.LevelWarn
	}
	r.Record(ctx, model.LogEntry{
		Level:      level,
		Category:   model.CategoryAPIRequest,
		EventType:  "api_request",
		Message:    fmt.Sprintf("%s %s", method, path),
		UserID:     actor.ID,
		UserEmail:  actor.Email,
		UserRole:   actor.Role,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		RequestID:  req.RequestID,
		SessionID:  req.SessionID,
		Duration:   &durationMs,
		StatusCode: &statusCode,
		Metadata:   metadata,
	})
}

// LogEmail records an outbound email attempt.
func (r *Recorder) LogEmail(ctx context.Context, eventType, recipient, message string, success bool, errorMessage string) {
	level := model.LevelInfo
	if !success {
		level = model.LevelError
	}
	r.Record(ctx, model.LogEntry{
		Level:        level,
		Category:     model.CategoryEmail,
		EventType:    eventType,
		Message:      message,
		ErrorMessage: errorMessage,
		Metadata:     map[string]any{"recipient": recipient},
	})
}

// LogSecurity records a security incident. The caller-reported severity
// (low, medium, high, critical) decides the log level.
func (r *Recorder) LogSecurity(ctx context.Context, eventType, message, severity string, actor Actor, req RequestInfo, metadata map[string]any) {
	r.Record(ctx, model.LogEntry{
		Level:     model.LevelForSeverity(severity),
		Category:  model.CategorySecurity,
		EventType: eventType,
		Message:   message,
		UserID:    actor.ID,
		UserEmail: actor.Email,
		UserRole:  actor.Role,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		RequestID: req.RequestID,
		SessionID: req.SessionID,
		Metadata:  metadata,
	})
}

// LogDatabase records a routine data mutation (create/update/delete).
func (r *Recorder) LogDatabase(ctx context.Context, operation, resourceType, resourceID string, actor Actor, oldValues, newValues map[string]any) {
	r.Record(ctx, model.LogEntry{
		Level:        model.LevelInfo,
		Category:     model.CategoryDatabase,
		EventType:    operation,
		Message:      fmt.Sprintf("%s %s %s", operation, resourceType, resourceID),
		UserID:       actor.ID,
		UserEmail:    actor.Email,
		UserRole:     actor.Role,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
	})
}

// LogPerformance records a performance measurement. Values above the optional
// threshold are warnings.
func (r *Recorder) LogPerformance(ctx context.Context, metric string, value int64, threshold *int64, metadata map[string]any) {
	level := model.LevelInfo
	if threshold != nil && value > *threshold {
		level = model.LevelWarn
	}
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["value"] = value
	if threshold != nil {
		metadata["threshold"] = *threshold
	}
	r.Record(ctx, model.LogEntry{
		Level:     level,
		Category:  model.CategoryPerformance,
		EventType: metric,
		Message:   fmt.Sprintf("%s measured at %dms", metric, value),
		Duration:  &value,
		Metadata:  metadata,
	})
}
