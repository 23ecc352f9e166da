package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestCORSExplicitOrigin(t *testing.T) {
	h := CORS([]string{"https://coach.example"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://coach.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://coach.example" {
		t.Fatalf("allow origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials for explicit origin")
	}
}

func TestCORSWildcardNoCredentials(t *testing.T) {
	h := CORS([]string{"*"})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatal("wildcard must not allow credentials")
	}
}

func TestCORSUnknownOrigin(t *testing.T) {
	h := CORS([]string{"https://coach.example"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://other.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unknown origin must not be allowed")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(2)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst should allow two requests")
	}
	if rl.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("keys must not share buckets")
	}

	now = now.Add(30 * time.Second)
	if !rl.Allow("a") {
		t.Fatal("token should refill after half a minute")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !rl.Allow("a") {
			t.Fatal("disabled limiter must allow everything")
		}
	}
	if rl.Len() != 0 {
		t.Fatal("disabled limiter must not track keys")
	}
}

func TestRateLimiterForgetAndEvict(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.Allow("b")
	rl.Forget("a")
	if rl.Len() != 1 {
		t.Fatalf("Len = %d after Forget", rl.Len())
	}

	now = now.Add(time.Hour)
	if n := rl.evictIdle(); n != 1 || rl.Len() != 0 {
		t.Fatalf("evicted %d, remaining %d", n, rl.Len())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1)
	h := RateLimit(rl, func(r *http.Request) string { return r.Header.Get("X-Key") })(okHandler)

	do := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Key", key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("k"); code != http.StatusNoContent {
		t.Fatalf("first request status = %d", code)
	}
	if code := do("k"); code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", code)
	}
	if code := do(""); code != http.StatusNoContent {
		t.Fatalf("empty key should bypass limiting, got %d", code)
	}
}
