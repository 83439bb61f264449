package model

import "time"

// Log levels, ordered by severity.
const (
	LevelDebug    = "debug"
	LevelInfo     = "info"
	LevelWarn     = "warn"
	LevelError    = "error"
	LevelCritical = "critical"
)

// Log categories.
const (
	CategoryAuthentication = "authentication"
	CategoryAdminAction    = "admin_action"
	CategoryPayment        = "payment_processing"
	CategoryAPIRequest     = "api_request"
	CategoryEmail          = "email_service"
	CategorySecurity       = "security_event"
	CategoryDatabase       = "database_operation"
	CategoryPerformance    = "performance"
	CategorySystemError    = "system_error"
	CategoryAuditTrail     = "audit_trail"
)

// Field length caps applied before persistence.
const (
	MaxUserAgentLen    = 1000
	MaxErrorMessageLen = 2000
	MaxStackTraceLen   = 5000
)

// AllLevels returns every known log level.
func AllLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError, LevelCritical}
}

// AllCategories returns every known log category.
func AllCategories() []string {
	return []string{
		CategoryAuthentication,
		CategoryAdminAction,
		CategoryPayment,
		CategoryAPIRequest,
		CategoryEmail,
		CategorySecurity,
		CategoryDatabase,
		CategoryPerformance,
		CategorySystemError,
		CategoryAuditTrail,
	}
}

// ValidLevel reports whether level is a known log level.
func ValidLevel(level string) bool {
	switch level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelCritical:
		return true
	}
	return false
}

// ValidCategory reports whether category is a known log category.
func ValidCategory(category string) bool {
	for _, c := range AllCategories() {
		if c == category {
			return true
		}
	}
	return false
}

// LogEntry describes one operational event before persistence. Level, Category,
// EventType and Message are required; everything else is optional. Empty strings
// and nil pointers are stored as NULL.
type LogEntry struct {
	Level     string
	Category  string
	EventType string
	Message   string

	// Actor context.
	UserID    string
	UserName  string
	UserEmail string
	UserRole  string

	// Request context.
	IPAddress string
	UserAgent string
	RequestID string
	SessionID string

	// Subject of the event.
	ResourceType string
	ResourceID   string

	// Outcome.
	Duration   *int64 // milliseconds
	StatusCode *int

	// Nested payloads, sanitized before storage.
	OldValues map[string]any
	NewValues map[string]any
	Metadata  map[string]any

	// Error details.
	ErrorCode    string
	ErrorMessage string
	StackTrace   string
}

// RetentionPolicy maps a level (and optionally a category) to a maximum age
// in days before deletion.
type RetentionPolicy struct {
	Level         string
	Category      string // empty for level-only policies
	RetentionDays int
	Description   string
}

// Timeframe selects a trailing statistics window.
type Timeframe string

// Statistics timeframes.
const (
	TimeframeHour  Timeframe = "hour"
	TimeframeDay   Timeframe = "day"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
)

// Cutoff returns the start of the window measured backward from now.
// Unknown timeframes fall back to one day.
func (t Timeframe) Cutoff(now time.Time) time.Time {
	switch t {
	case TimeframeHour:
		return now.Add(-time.Hour)
	case TimeframeWeek:
		return now.AddDate(0, 0, -7)
	case TimeframeMonth:
		return now.AddDate(0, 0, -30)
	default:
		return now.AddDate(0, 0, -1)
	}
}

// Statistics is an aggregate snapshot over a trailing time window. ByLevel and
// ByCategory carry a key for every known level/category, zero-filled.
type Statistics struct {
	TotalLogs           int64            `json:"total_logs"`
	ByLevel             map[string]int64 `json:"by_level"`
	ByCategory          map[string]int64 `json:"by_category"`
	RecentErrors        int64            `json:"recent_errors"`
	CriticalAlerts      int64            `json:"critical_alerts"`
	AverageResponseTime float64          `json:"average_response_time"`
}

// Security severities as reported by callers, mapped onto log levels.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// LevelForSeverity maps a security severity to a log level. Unknown severities
// map to warn.
func LevelForSeverity(severity string) string {
	switch severity {
	case SeverityLow:
		return LevelInfo
	case SeverityMedium:
		return LevelWarn
	case SeverityHigh:
		return LevelError
	case SeverityCritical:
		return LevelCritical
	default:
		return LevelWarn
	}
}
