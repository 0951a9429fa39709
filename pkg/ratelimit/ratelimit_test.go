package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBucket(rate float64, burst int) (*TokenBucket, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tb := NewTokenBucket(rate, burst)
	tb.now = clock.now
	return tb, clock
}

func TestTokenBucketBurstAndRefill(t *testing.T) {
	tb, clock := newTestBucket(10, 20)
	defer tb.Close()

	for i := 0; i < 20; i++ {
		if !tb.Allow("10.0.0.1") {
			t.Fatalf("expected request %d to be allowed", i)
		}
	}
	if tb.Allow("10.0.0.1") {
		t.Error("expected request to be blocked after burst")
	}

	clock.advance(200 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if !tb.Allow("10.0.0.1") {
			t.Errorf("expected refill request %d to be allowed", i)
		}
	}
	if tb.Allow("10.0.0.1") {
		t.Error("expected bucket to be empty again")
	}

	allowed, blocked := tb.Stats()
	if allowed != 22 || blocked != 2 {
		t.Errorf("expected 22 allowed / 2 blocked, got %d / %d", allowed, blocked)
	}
}

func TestTokenBucketKeysIndependent(t *testing.T) {
	tb, _ := newTestBucket(1, 3)
	defer tb.Close()

	for _, key := range []string{"a", "b"} {
		for i := 0; i < 3; i++ {
			if !tb.Allow(key) {
				t.Errorf("expected request %d for %s to be allowed", i, key)
			}
		}
		if tb.Allow(key) {
			t.Errorf("expected %s to be exhausted", key)
		}
	}
}

func TestTokenBucketReset(t *testing.T) {
	tb, _ := newTestBucket(1, 1)
	defer tb.Close()

	tb.Allow("a")
	if tb.Allow("a") {
		t.Fatal("expected bucket to be exhausted")
	}

	tb.Reset("a")
	if !tb.Allow("a") {
		t.Error("expected request to be allowed after reset")
	}
}

func TestMiddleware(t *testing.T) {
	tb, _ := newTestBucket(0.5, 1)
	defer tb.Close()

	handler := tb.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		remoteAddr string
		wantStatus int
	}{
		{"first request", "192.0.2.1:5000", http.StatusOK},
		{"same host new port", "192.0.2.1:5001", http.StatusTooManyRequests},
		{"other host", "192.0.2.2:5000", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/toggle_cpu", nil)
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "2" {
				t.Errorf("expected Retry-After 2, got %q", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestCloseIdempotent(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	tb.Close()
	tb.Close()
}
