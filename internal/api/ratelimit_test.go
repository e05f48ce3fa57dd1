package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type failingCounter struct{}

func (failingCounter) Incr(context.Context, string, int, time.Duration) (int, time.Duration, error) {
	return 0, 0, errors.New("connection refused")
}

func newTestLimiter(t *testing.T, perMinute int) (*RateLimiter, *time.Time) {
	t.Helper()
	now := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(nil, RateLimitConfig{RequestsPerMinute: perMinute, IncludeHeaders: true}, zaptest.NewLogger(t))
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestCheck_FixedWindow(t *testing.T) {
	rl, now := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res := rl.Check(ctx, "10.0.0.1", "/api/v1/alerts")
		require.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 3-i, res.Remaining)
	}

	res := rl.Check(ctx, "10.0.0.1", "/api/v1/alerts")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Minute, res.RetryAfter)

	// other clients and routes have their own windows
	assert.True(t, rl.Check(ctx, "10.0.0.2", "/api/v1/alerts").Allowed)
	assert.True(t, rl.Check(ctx, "10.0.0.1", "/api/v1/profile").Allowed)

	*now = now.Add(61 * time.Second)
	res = rl.Check(ctx, "10.0.0.1", "/api/v1/alerts")
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestCheck_RouteCosts(t *testing.T) {
	rl, _ := newTestLimiter(t, 10)
	ctx := context.Background()

	assert.Equal(t, 5, rl.Check(ctx, "c", "/api/v1/events").Remaining)
	assert.True(t, rl.Check(ctx, "c", "/api/v1/events").Allowed)
	assert.False(t, rl.Check(ctx, "c", "/api/v1/events").Allowed)

	assert.Equal(t, 8, rl.Check(ctx, "c", "/api/v1/risk-scores").Remaining)
}

func TestCheck_FailsOpen(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	rl.counter = failingCounter{}

	for range 3 {
		res := rl.Check(context.Background(), "c", "/api/v1/alerts")
		assert.True(t, res.Allowed)
		assert.Equal(t, 1, res.Remaining)
	}
}

func TestMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	handler := rl.Middleware(func(r *http.Request) string { return r.URL.Path })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	req.RemoteAddr = "203.0.113.9:51234"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate_limit_exceeded","retry_after":60}`, rr.Body.String())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:443"
	assert.Equal(t, "198.51.100.4", clientIP(req))

	req.RemoteAddr = "198.51.100.4"
	assert.Equal(t, "198.51.100.4", clientIP(req))
}
