package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateWindow = time.Minute

// RateLimitConfig configures the per-client request limiter
type RateLimitConfig struct {
	RequestsPerMinute int
	// Costs weighs expensive routes, keyed by route pattern
	Costs          map[string]int
	IncludeHeaders bool
}

// DefaultCosts weighs the routes that stream whole output files
func DefaultCosts() map[string]int {
	return map[string]int{
		"/api/v1/events":      5,
		"/api/v1/risk-scores": 2,
	}
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// windowCounter counts hits on a key within a fixed window
type windowCounter interface {
	Incr(ctx context.Context, key string, cost int, window time.Duration) (count int, ttl time.Duration, err error)
}

// RateLimiter provides fixed-window rate limiting per client and route
type RateLimiter struct {
	counter windowCounter
	logger  *zap.Logger
	config  RateLimitConfig
	now     func() time.Time
}

// NewRateLimiter creates a limiter. A nil redis client keeps the counters
// in process memory.
func NewRateLimiter(redisClient *redis.Client, cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 120
	}
	if cfg.Costs == nil {
		cfg.Costs = DefaultCosts()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rl := &RateLimiter{logger: logger, config: cfg, now: time.Now}
	if redisClient != nil {
		rl.counter = &redisCounter{client: redisClient}
	} else {
		rl.counter = newMemoryCounter(rl.clock)
	}
	return rl
}

func (rl *RateLimiter) clock() time.Time { return rl.now() }

// Check counts one request of clientID against route. Counter failures
// allow the request.
func (rl *RateLimiter) Check(ctx context.Context, clientID, route string) *RateLimitResult {
	cost := 1
	if c, ok := rl.config.Costs[route]; ok && c > 1 {
		cost = c
	}
	limit := rl.config.RequestsPerMinute
	key := fmt.Sprintf("soc:ratelimit:%s:%s", clientID, route)

	count, ttl, err := rl.counter.Incr(ctx, key, cost, rateWindow)
	if err != nil {
		rl.logger.Warn("Rate limit check failed, allowing request", zap.Error(err))
		return &RateLimitResult{Allowed: true, Limit: limit, Remaining: limit}
	}

	res := &RateLimitResult{
		Allowed:   count <= limit,
		Remaining: max(limit-count, 0),
		Limit:     limit,
		ResetAt:   rl.now().Add(ttl),
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res
}

// Middleware rejects requests over the limit with 429. route maps a
// request to the key its cost and counter are looked up by.
func (rl *RateLimiter) Middleware(route func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := rl.Check(r.Context(), clientIP(r), route(r))

			if rl.config.IncludeHeaders {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
			}

			if !result.Allowed {
				retry := int(result.RetryAfter.Round(time.Second).Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":       "rate_limit_exceeded",
					"retry_after": retry,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP expects middleware.RealIP to have rewritten RemoteAddr
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

var incrScript = redis.NewScript(`
	local current = redis.call('INCRBY', KEYS[1], ARGV[2])
	if current == tonumber(ARGV[2]) then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return {current, redis.call('PTTL', KEYS[1])}
`)

// redisCounter shares windows between server replicas
type redisCounter struct {
	client redis.Scripter
}

func (c *redisCounter) Incr(ctx context.Context, key string, cost int, window time.Duration) (int, time.Duration, error) {
	vals, err := incrScript.Run(ctx, c.client, []string{key}, window.Milliseconds(), cost).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit reply %v", vals)
	}
	return int(vals[0]), time.Duration(vals[1]) * time.Millisecond, nil
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

type memoryCounter struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	now     func() time.Time
}

func newMemoryCounter(now func() time.Time) *memoryCounter {
	return &memoryCounter{windows: make(map[string]memoryWindow), now: now}
}

func (c *memoryCounter) Incr(_ context.Context, key string, cost int, window time.Duration) (int, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = memoryWindow{resetAt: now.Add(window)}
	}
	w.count += cost
	c.windows[key] = w

	// drop expired windows once the map grows
	if len(c.windows) > 10000 {
		for k, v := range c.windows {
			if !now.Before(v.resetAt) {
				delete(c.windows, k)
			}
		}
	}
	return w.count, w.resetAt.Sub(now), nil
}
