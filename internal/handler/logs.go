// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler exposes the audit log query surface over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/olegiv/reservo/internal/model"
	"github.com/olegiv/reservo/internal/service"
	"github.com/olegiv/reservo/internal/store"
)

// LogsHandler serves filtered log queries, statistics and CSV exports to the
// admin UI.
type LogsHandler struct {
	query  *service.QueryService
	logger *slog.Logger
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(query *service.QueryService, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{
		query:  query,
		logger: logger,
	}
}

// logEntryResponse is the JSON view of one audit log row. Optional fields are
// omitted when absent.
type logEntryResponse struct {
	ID           int64  `json:"id"`
	Level        string `json:"level"`
	Category     string `json:"category"`
	EventType    string `json:"event_type"`
	Message      string `json:"message"`
	UserID       string `json:"user_id,omitempty"`
	UserName     string `json:"user_name,omitempty"`
	UserEmail    string `json:"user_email,omitempty"`
	UserRole     string `json:"user_role,omitempty"`
	IPAddress    string `json:"ip_address,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	DurationMs   *int64 `json:"duration_ms,omitempty"`
	StatusCode   *int64 `json:"status_code,omitempty"`
	Metadata     string `json:"metadata,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toLogEntryResponse(l store.AuditLog) logEntryResponse {
	resp := logEntryResponse{
		ID:           l.ID,
		Level:        l.Level,
		Category:     l.Category,
		EventType:    l.EventType,
		Message:      l.Message,
		UserID:       l.UserID.String,
		UserName:     l.UserName.String,
		UserEmail:    l.UserEmail.String,
		UserRole:     l.UserRole.String,
		IPAddress:    l.IPAddress.String,
		RequestID:    l.RequestID.String,
		ResourceType: l.ResourceType.String,
		ResourceID:   l.ResourceID.String,
		Metadata:     l.Metadata.String,
		ErrorCode:    l.ErrorCode.String,
		ErrorMessage: l.ErrorMessage.String,
		CreatedAt:    l.CreatedAt.Format(time.RFC3339),
	}
	if l.DurationMs.Valid {
		resp.DurationMs = &l.DurationMs.Int64
	}
	if l.StatusCode.Valid {
		resp.StatusCode = &l.StatusCode.Int64
	}
	return resp
}

// parseFilter reads the common filter parameters from the query string.
// Levels and categories may be repeated; unknown values are rejected so a
// typo does not silently return an empty result set.
func parseFilter(r *http.Request) (store.AuditLogFilter, string) {
	q := r.URL.Query()
	filter := store.AuditLogFilter{
		EventType:    q.Get("event_type"),
		UserID:       q.Get("user_id"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Search:       q.Get("search"),
	}

	for _, level := range q["level"] {
		if !model.ValidLevel(level) {
			return filter, "unknown level: " + level
		}
		filter.Levels = append(filter.Levels, level)
	}
	for _, category := range q["category"] {
		if !model.ValidCategory(category) {
			return filter, "unknown category: " + category
		}
		filter.Categories = append(filter.Categories, category)
	}

	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, "date_from must be RFC3339"
		}
		filter.DateFrom = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, "date_to must be RFC3339"
		}
		filter.DateTo = &t
	}

	return filter, ""
}

// List handles GET /admin/api/logs - one page of filtered entries.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, errMsg := parseFilter(r)
	if errMsg != "" {
		writeJSONError(w, http.StatusBadRequest, errMsg)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.query.Query(r.Context(), service.QueryParams{
		AuditLogFilter: filter,
		Page:           page,
		Limit:          limit,
	})
	if err != nil {
		h.logger.Error("failed to query audit logs", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to query logs")
		return
	}

	entries := make([]logEntryResponse, 0, len(result.Entries))
	for _, e := range result.Entries {
		entries = append(entries, toLogEntryResponse(e))
	}

	writeJSON(w, map[string]any{
		"success":     true,
		"entries":     entries,
		"total":       result.Total,
		"page":        result.Page,
		"total_pages": result.TotalPages,
		"has_more":    result.HasMore,
	})
}

// Stats handles GET /admin/api/logs/stats - a statistics snapshot over the
// requested timeframe (hour, day, week, month; default day).
func (h *LogsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	timeframe := model.Timeframe(r.URL.Query().Get("timeframe"))
	switch timeframe {
	case "":
		timeframe = model.TimeframeDay
	case model.TimeframeHour, model.TimeframeDay, model.TimeframeWeek, model.TimeframeMonth:
	default:
		writeJSONError(w, http.StatusBadRequest, "timeframe must be one of hour, day, week, month")
		return
	}

	stats, err := h.query.Statistics(r.Context(), timeframe)
	if err != nil {
		h.logger.Error("failed to compute audit log statistics", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	writeJSON(w, map[string]any{
		"success":    true,
		"timeframe":  timeframe,
		"statistics": stats,
	})
}

// Export handles GET /admin/api/logs/export - the filtered entries as a CSV
// download, capped at the export row limit.
func (h *LogsHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, errMsg := parseFilter(r)
	if errMsg != "" {
		writeJSONError(w, http.StatusBadRequest, errMsg)
		return
	}

	csv, err := h.query.ExportCSV(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to export audit logs", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to export logs")
		return
	}

	filename := "audit-logs-" + time.Now().Format("2006-01-02") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write([]byte(csv))
}
