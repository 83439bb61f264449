// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mileusna/useragent"

	"github.com/olegiv/reservo/internal/service"
)

// RequestIDHeader carries the request ID assigned by RequestLogger.
const RequestIDHeader = "X-Request-Id"

// statusWriter captures the response status code for logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// RequestLogger returns middleware that records every handled request as an
// api_request audit event. Each request gets a generated request ID, echoed
// back in the response headers.
func RequestLogger(recorder *service.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			durationMs := time.Since(start).Milliseconds()

			ua := useragent.Parse(r.UserAgent())
			recorder.LogAPIRequest(r.Context(), r.Method, r.URL.Path, sw.status, durationMs,
				service.Actor{},
				service.RequestInfo{
					IPAddress: clientIP(r),
					UserAgent: r.UserAgent(),
					RequestID: requestID,
				},
				map[string]any{
					"browser": ua.Name,
					"os":      ua.OS,
					"mobile":  ua.Mobile,
					"bot":     ua.Bot,
				})
		})
	}
}

// clientIP strips the port from the remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
