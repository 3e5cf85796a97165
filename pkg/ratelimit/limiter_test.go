package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	// 2 requests burst, 1 per second
	rl := NewRateLimiter(2, 1.0, 0)

	if !rl.Allow("key1") {
		t.Error("First request for key1 should be allowed")
	}
	if !rl.Allow("key1") {
		t.Error("Second request for key1 should be allowed")
	}
	if rl.Allow("key1") {
		t.Error("Third request for key1 should be denied")
	}

	// separate bucket
	if !rl.Allow("key2") {
		t.Error("First request for key2 should be allowed")
	}

	time.Sleep(1100 * time.Millisecond)

	if !rl.Allow("key1") {
		t.Error("Request after 1s should be allowed")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := NewRateLimiter(1, 1.0, 0)

	rl.Allow("key1")
	if rl.Allow("key1") {
		t.Error("Second request should be denied")
	}

	rl.Reset("key1")

	if !rl.Allow("key1") {
		t.Error("Request after reset should be allowed")
	}
}

func TestRateLimiter_Stats(t *testing.T) {
	rl := NewRateLimiter(10, 5.0, 0)

	rl.Allow("key1")
	rl.Allow("key2")
	rl.Allow("key3")

	stats := rl.GetStats()
	if stats.ActiveBuckets != 3 {
		t.Errorf("Expected 3 active buckets, got %d", stats.ActiveBuckets)
	}
	if stats.TotalCapacity != 10 {
		t.Errorf("Expected capacity 10, got %d", stats.TotalCapacity)
	}
	if stats.RefillRate != 5.0 {
		t.Errorf("Expected refill rate 5.0, got %f", stats.RefillRate)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(5, 1.0, 200*time.Millisecond)
	defer rl.Close()

	rl.Allow("key1")
	if stats := rl.GetStats(); stats.ActiveBuckets != 1 {
		t.Errorf("Expected 1 active bucket, got %d", stats.ActiveBuckets)
	}

	time.Sleep(500 * time.Millisecond)

	if stats := rl.GetStats(); stats.ActiveBuckets != 0 {
		t.Errorf("Expected 0 active buckets after cleanup, got %d", stats.ActiveBuckets)
	}
}

func TestMiddleware_PerIP(t *testing.T) {
	m := NewMiddleware(&Config{Enabled: true, Capacity: 2, RefillRate: 0.001, RetryAfter: 30 * time.Second})
	defer m.Close()

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/device-management/devices", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("10.0.0.1:5555"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := do("10.0.0.1:6666")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("expected Retry-After 30, got %q", got)
	}

	if rec := do("10.0.0.2:5555"); rec.Code != http.StatusOK {
		t.Errorf("other client should not be limited, got %d", rec.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if ip := getClientIP(req); ip != "192.0.2.1" {
		t.Errorf("expected 192.0.2.1, got %s", ip)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if ip := getClientIP(req); ip != "203.0.113.5" {
		t.Errorf("expected 203.0.113.5, got %s", ip)
	}
}

func BenchmarkRateLimiter_Allow(b *testing.B) {
	rl := NewRateLimiter(1000000, 1000000.0, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rl.Allow("benchmark-key")
	}
}
