package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
)

func rateLimitedHandler(cfg RateLimitConfig) echo.HandlerFunc {
	return RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func hitAs(t *testing.T, e *echo.Echo, handler echo.HandlerFunc, userID int64) (*httptest.ResponseRecorder, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if userID != 0 {
		p := auth.Principal{ID: userID, Role: auth.RolePatient}
		req = req.WithContext(auth.WithPrincipal(context.Background(), p))
	}
	rec := httptest.NewRecorder()
	return rec, handler(e.NewContext(req, rec))
}

func TestRateLimit_WithinBurst(t *testing.T) {
	e := echo.New()
	handler := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	for i := 0; i < 5; i++ {
		rec, err := hitAs(t, e, handler, 7)
		if err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "10" {
			t.Errorf("request %d: X-RateLimit-Limit = %q, want 10", i+1, rec.Header().Get("X-RateLimit-Limit"))
		}
	}
}

func TestRateLimit_BurstExhausted(t *testing.T) {
	e := echo.New()
	handler := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})

	for i := 0; i < 2; i++ {
		if _, err := hitAs(t, e, handler, 7); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}

	rec, err := hitAs(t, e, handler, 7)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
	}
	retryAfter, parseErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if parseErr != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q, want integer >= 1", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimit_BucketsArePerUser(t *testing.T) {
	e := echo.New()
	handler := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	if _, err := hitAs(t, e, handler, 7); err != nil {
		t.Fatalf("user 7 first request: %v", err)
	}
	if _, err := hitAs(t, e, handler, 7); err == nil {
		t.Fatal("user 7 second request: expected rate limit error")
	}
	// Another user has their own bucket.
	if _, err := hitAs(t, e, handler, 8); err != nil {
		t.Fatalf("user 8 first request: %v", err)
	}
}

func TestLimitKey(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	p := auth.Principal{ID: 42, Role: auth.RoleDoctor}
	req = req.WithContext(auth.WithPrincipal(context.Background(), p))
	c := e.NewContext(req, httptest.NewRecorder())
	if got := limitKey(c); got != "user:42" {
		t.Errorf("limitKey = %q, want user:42", got)
	}

	anon := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if got := limitKey(anon); !strings.HasPrefix(got, "ip:") {
		t.Errorf("limitKey for anonymous = %q, want ip:<addr>", got)
	}
}

func TestTokenBucket_RetryAfterWithZeroRate(t *testing.T) {
	b := newTokenBucket(0, 1)
	b.allow()
	if ra := b.retryAfter(); ra != 1 {
		t.Errorf("retryAfter = %d, want 1 for zero refill rate", ra)
	}
}

func TestRateLimiterStore_ReusesBuckets(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	b1 := store.getBucket("user:1")
	if b1 != store.getBucket("user:1") {
		t.Error("expected same bucket instance for same key")
	}
	if b1 == store.getBucket("user:2") {
		t.Error("expected different bucket for different key")
	}
}
