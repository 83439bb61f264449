// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sanitize redacts sensitive fields from nested payloads before they
// are written to the audit log.
package sanitize

import "strings"

// RedactedValue replaces the value of any sensitive field.
const RedactedValue = "[REDACTED]"

// sensitiveSubstrings marks a field as sensitive when its lower-cased name
// contains any of these.
var sensitiveSubstrings = []string{
	"password",
	"token",
	"secret",
	"key",
	"apikey",
	"authorization",
	"credit",
	"card",
	"cvv",
	"ssn",
	"social",
}

// Sanitize returns a copy of v with every sensitive map key, at any depth,
// replaced by RedactedValue. Slices and non-sensitive keys are traversed
// unchanged; scalars and nil pass through as-is. The input is never modified.
func Sanitize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if IsSensitiveKey(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = Sanitize(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = Sanitize(inner)
		}
		return out
	default:
		return v
	}
}

// IsSensitiveKey reports whether a field name matches the sensitive set,
// case-insensitively.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
