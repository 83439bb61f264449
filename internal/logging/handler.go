// Package logging provides a custom slog handler that integrates with the
// audit log engine. It forwards application log records at WARN level and
// above into the audit log so operational problems show up next to the
// domain events they relate to.
package logging

import (
	"context"
	"log/slog"

	"github.com/olegiv/reservo/internal/model"
	"github.com/olegiv/reservo/internal/service"
)

// AuditHandler is a slog.Handler that wraps another handler and also records
// WARN and ERROR level logs as audit log entries.
type AuditHandler struct {
	inner    slog.Handler
	recorder *service.Recorder
	level    slog.Level // minimum level forwarded to the audit log
	attrs    []slog.Attr
}

// NewAuditHandler creates an AuditHandler that wraps the given handler.
// Records at WARN level and above go to both the wrapped handler and the
// audit log.
func NewAuditHandler(inner slog.Handler, recorder *service.Recorder) *AuditHandler {
	return &AuditHandler{
		inner:    inner,
		recorder: recorder,
		level:    slog.LevelWarn,
	}
}

// NewAuditHandlerWithLevel creates an AuditHandler with a custom minimum level.
func NewAuditHandlerWithLevel(inner slog.Handler, recorder *service.Recorder, level slog.Level) *AuditHandler {
	return &AuditHandler{
		inner:    inner,
		recorder: recorder,
		level:    level,
	}
}

// Enabled implements slog.Handler.
func (h *AuditHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *AuditHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always forward to the inner handler first
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level {
		h.recordAuditEntry(r)
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (h *AuditHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &AuditHandler{
		inner:    h.inner.WithAttrs(attrs),
		recorder: h.recorder,
		level:    h.level,
		attrs:    combined,
	}
}

// WithGroup implements slog.Handler.
func (h *AuditHandler) WithGroup(name string) slog.Handler {
	return &AuditHandler{
		inner:    h.inner.WithGroup(name),
		recorder: h.recorder,
		level:    h.level,
		attrs:    h.attrs,
	}
}

// recordAuditEntry writes a log record into the audit log. A background
// context is used so the entry is recorded even if the originating request
// context is already cancelled.
func (h *AuditHandler) recordAuditEntry(r slog.Record) {
	h.recorder.Record(context.Background(), model.LogEntry{
		Level:     auditLevel(r.Level),
		Category:  model.CategorySystemError,
		EventType: "application_log",
		Message:   r.Message,
		Metadata:  h.extractMetadata(r),
	})
}

// auditLevel converts a slog.Level to an audit log level.
func auditLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return model.LevelError
	case level >= slog.LevelWarn:
		return model.LevelWarn
	case level >= slog.LevelInfo:
		return model.LevelInfo
	default:
		return model.LevelDebug
	}
}

// extractMetadata collects pre-bound and per-record attributes.
func (h *AuditHandler) extractMetadata(r slog.Record) map[string]any {
	if len(h.attrs) == 0 && r.NumAttrs() == 0 {
		return nil
	}

	metadata := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		metadata[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		metadata[a.Key] = a.Value.Any()
		return true
	})
	return metadata
}
