package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Yashvi2874/tradetalents/internal/metrics"
	"github.com/Yashvi2874/tradetalents/internal/store"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// rateCounter is the counter backend: one atomic increment per request,
// returning the count within the current window.
type rateCounter interface {
	IncrRateLimit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimiter implements per-IP fixed-window rate limiting backed by
// Redis. Without Redis configured it is a pass-through, so development
// setups need no extra infrastructure.
type RateLimiter struct {
	counter rateCounter
	logger  zerolog.Logger
	limits  map[string]RateLimit
}

// NewRateLimiter creates a new rate limiter. redis may be nil.
func NewRateLimiter(redis *store.RedisStore, logger zerolog.Logger) *RateLimiter {
	rl := &RateLimiter{
		logger: logger,
		limits: map[string]RateLimit{
			"POST /api/auth/register": {10, time.Hour},
			"POST /api/auth/login":    {30, 15 * time.Minute},
			"POST /api/skills":        {30, time.Hour},
			"POST /api/sessions":      {30, time.Hour},
			"GET /ws":                 {60, time.Minute},
		},
	}
	if redis != nil {
		rl.counter = redis
	}
	return rl
}

// Middleware enforces the configured limits. The increment happens
// unconditionally and the returned count is compared against the limit,
// so the decision is atomic per request.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.counter == nil {
			next.ServeHTTP(w, r)
			return
		}

		endpoint, limit, ok := rl.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := endpoint + ":" + clientIP(r)
		count, err := rl.counter.IncrRateLimit(r.Context(), key, limit.Window)
		if err != nil {
			// Redis trouble must not take the API down; let the
			// request through and log it.
			rl.logger.Warn().Err(err).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}
		if count > int64(limit.Requests) {
			metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
			w.Header().Set("Retry-After", limit.Window.String())
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) match(r *http.Request) (string, RateLimit, bool) {
	endpoint := r.Method + " " + r.URL.Path
	for pattern, limit := range rl.limits {
		if endpoint == pattern || strings.HasPrefix(endpoint, pattern+"/") {
			return pattern, limit, true
		}
	}
	return "", RateLimit{}, false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
