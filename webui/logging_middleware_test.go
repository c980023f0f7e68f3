package webui

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedMiddleware(skip ...string) (*LoggingMiddleware, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	mw := NewLoggingMiddleware(LoggingMiddlewareConfig{
		Logger:    zap.New(core),
		SkipPaths: skip,
	})
	return mw, logs
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel zapcore.Level
	}{
		{"ok", http.StatusOK, zapcore.InfoLevel},
		{"client error", http.StatusBadRequest, zapcore.WarnLevel},
		{"server error", http.StatusInternalServerError, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, logs := newObservedMiddleware()
			handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("body"))
			}))

			req := httptest.NewRequest(http.MethodGet, "/data?category=kpi", nil)
			req.Header.Set("User-Agent", "test-agent")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("got %d log entries, want 1", len(entries))
			}
			entry := entries[0]
			if entry.Level != tt.wantLevel {
				t.Errorf("level = %v, want %v", entry.Level, tt.wantLevel)
			}
			fields := entry.ContextMap()
			if fields["status"] != int64(tt.status) {
				t.Errorf("status field = %v, want %d", fields["status"], tt.status)
			}
			if fields["path"] != "/data" {
				t.Errorf("path field = %v", fields["path"])
			}
			if fields["bytes"] != int64(4) {
				t.Errorf("bytes field = %v, want 4", fields["bytes"])
			}
			if fields["user_agent"] != "test-agent" {
				t.Errorf("user_agent field = %v", fields["user_agent"])
			}
		})
	}
}

func TestLoggingMiddleware_SkipPaths(t *testing.T) {
	mw, logs := newObservedMiddleware("/health")
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if logs.Len() != 0 {
		t.Errorf("skipped path logged %d entries", logs.Len())
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/data", nil))
	if logs.Len() != 1 {
		t.Errorf("got %d entries, want 1", logs.Len())
	}
}

func TestLoggingMiddleware_FlushAndUnwrap(t *testing.T) {
	mw, _ := newObservedMiddleware()

	var flushed, deadlineErr error
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("wrapped writer is not a Flusher")
		}
		rc := http.NewResponseController(w)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {}\n\n"))
		flushed = rc.Flush()
		deadlineErr = rc.SetWriteDeadline(time.Time{})
	}))

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	if flushed != nil {
		t.Errorf("Flush() through the wrapper error = %v", flushed)
	}
	if deadlineErr != nil {
		t.Errorf("SetWriteDeadline() through the wrapper error = %v", deadlineErr)
	}
}

func TestResponseWriterWrapper_Streamed(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriterWrapper{ResponseWriter: rec, statusCode: http.StatusOK}
	if w.streamed() {
		t.Error("plain response reported as streamed")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	if !w.streamed() {
		t.Error("event stream not reported as streamed")
	}

	w = &responseWriterWrapper{ResponseWriter: rec, statusCode: http.StatusSwitchingProtocols}
	if !w.streamed() {
		t.Error("upgraded connection not reported as streamed")
	}
}

func TestResponseWriterWrapper_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriterWrapper{ResponseWriter: rec, statusCode: http.StatusOK}
	w.WriteHeader(http.StatusNotFound)
	w.WriteHeader(http.StatusInternalServerError)
	if w.statusCode != http.StatusNotFound {
		t.Errorf("statusCode = %d, want 404", w.statusCode)
	}
}

func TestRemoteIP_IgnoresForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("X-Real-IP", "198.51.100.4")
	if got := remoteIP(req); got != "10.0.0.1" {
		t.Errorf("remoteIP() = %q, want 10.0.0.1", got)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "10.0.0.1:5555", nil, "10.0.0.1"},
		{"forwarded for", "10.0.0.1:5555", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"}, "203.0.113.7"},
		{"real ip", "10.0.0.1:5555", map[string]string{"X-Real-IP": "198.51.100.4"}, "198.51.100.4"},
		{"forwarded wins", "10.0.0.1:5555", map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "198.51.100.4"}, "203.0.113.7"},
		{"no port", "10.0.0.1", nil, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
