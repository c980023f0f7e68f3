// Package webui serves the dashboard's HTTP surface.
// This file contains the HTTP request logging middleware.
package webui

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"realtime_dashboard/metrics"
)

// LoggingMiddleware logs every request through zap and records its
// duration in the metrics collector.
//
// Streaming responses pass through untouched: the wrapper forwards Flush
// and Hijack and exposes the original writer through Unwrap, so SSE and
// WebSocket handlers work behind it.
type LoggingMiddleware struct {
	logger    *zap.Logger
	collector *metrics.Collector
	skipPaths map[string]bool
}

// LoggingMiddlewareConfig configures the logging middleware.
type LoggingMiddlewareConfig struct {
	// Logger receives one entry per request (default: no-op)
	Logger *zap.Logger

	// Collector records request durations (optional)
	Collector *metrics.Collector

	// SkipPaths are paths that should not be logged (e.g. /health)
	SkipPaths []string
}

// NewLoggingMiddleware creates a LoggingMiddleware.
func NewLoggingMiddleware(config LoggingMiddlewareConfig) *LoggingMiddleware {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return &LoggingMiddleware{
		logger:    logger,
		collector: config.Collector,
		skipPaths: skipPaths,
	}
}

// Handler wraps next with request logging.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriterWrapper{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		if m.collector != nil && !wrapped.streamed() {
			m.collector.RequestObserved(r.Method, wrapped.statusCode, duration)
		}
		if m.skipPaths[r.URL.Path] {
			return
		}

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", duration),
			zap.String("remote_addr", getClientIP(r)),
			zap.Int64("bytes", wrapped.bytesWritten),
		}
		if ua := r.UserAgent(); ua != "" {
			fields = append(fields, zap.String("user_agent", ua))
		}

		switch {
		case wrapped.statusCode >= 500:
			m.logger.Error("HTTP request", fields...)
		case wrapped.statusCode >= 400:
			m.logger.Warn("HTTP request", fields...)
		default:
			m.logger.Info("HTTP request", fields...)
		}
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

// WriteHeader captures the status code
func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write captures the bytes written and ensures header is written
func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher if the underlying writer supports it
func (w *responseWriterWrapper) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker for WebSocket upgrades.
func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	w.wroteHeader = true
	return hijacker.Hijack()
}

// streamed reports whether the response was a live stream rather than a
// plain request/response exchange.
func (w *responseWriterWrapper) streamed() bool {
	return w.statusCode == http.StatusSwitchingProtocols ||
		w.Header().Get("Content-Type") == "text/event-stream"
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriterWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// getClientIP extracts the client IP for logging.
// Checks X-Forwarded-For and X-Real-IP headers first for proxied requests
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return remoteIP(r)
}

// remoteIP is the host part of the connection's address. Unlike
// getClientIP it cannot be set by the caller.
func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
