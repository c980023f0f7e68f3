package webui

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRateLimiter(perMinute int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perMinute)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	rl, clock := newTestRateLimiter(3)

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow("1.2.3.4"); !ok {
			t.Fatalf("request %d rejected within burst", i)
		}
	}

	ok, retry := rl.Allow("1.2.3.4")
	if ok {
		t.Fatal("request over burst allowed")
	}
	if retry <= 0 || retry > 20*time.Second {
		t.Errorf("retry after = %v, want (0, 20s]", retry)
	}

	if ok, _ := rl.Allow("5.6.7.8"); !ok {
		t.Error("other client rejected")
	}

	clock.advance(20 * time.Second)
	if ok, _ := rl.Allow("1.2.3.4"); !ok {
		t.Error("request rejected after a token refilled")
	}
}

func TestRateLimiter_RejectedRequestsDoNotConsume(t *testing.T) {
	rl, clock := newTestRateLimiter(1)

	rl.Allow("ip")
	for i := 0; i < 5; i++ {
		rl.Allow("ip")
	}

	clock.advance(time.Minute)
	if ok, _ := rl.Allow("ip"); !ok {
		t.Error("rejected requests pushed the next token further out")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl, _ := newTestRateLimiter(0)
	for i := 0; i < 100; i++ {
		if ok, _ := rl.Allow("ip"); !ok {
			t.Fatal("disabled limiter rejected a request")
		}
	}
	if rl.Count() != 0 {
		t.Errorf("Count() = %d, want 0 when disabled", rl.Count())
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl, clock := newTestRateLimiter(10)

	rl.Allow("old")
	clock.advance(9 * time.Minute)
	rl.Allow("recent")
	clock.advance(2 * time.Minute)

	if removed := rl.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() = %d, want 1", removed)
	}
	if rl.Count() != 1 {
		t.Errorf("Count() = %d, want 1", rl.Count())
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl, _ := newTestRateLimiter(1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/simulate-update", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := serve(); rec.Code != http.StatusNoContent {
		t.Fatalf("first status = %d, want 204", rec.Code)
	}

	rec := serve()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	body := decodeBody[ErrorResponse](t, rec)
	if body.Message != "Too many requests" {
		t.Errorf("message = %q", body.Message)
	}
}

func TestRateLimiter_MiddlewareIgnoresForwardedHeaders(t *testing.T) {
	rl, _ := newTestRateLimiter(1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/simulate-update", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		want := http.StatusTooManyRequests
		if i == 0 {
			want = http.StatusNoContent
		}
		if rec.Code != want {
			t.Fatalf("request %d status = %d, want %d", i, rec.Code, want)
		}
	}
	if rl.Count() != 1 {
		t.Errorf("Count() = %d, want 1 client for one connection address", rl.Count())
	}
}
