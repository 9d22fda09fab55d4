package gate

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/echoes-app/demo-relay/internal/api"
	"github.com/echoes-app/demo-relay/internal/metrics"
)

// RateLimiter provides per-IP sliding-window rate limiting backed by Redis
// sorted sets.
type RateLimiter struct {
	client     redis.Cmdable
	maxReqs    int
	window     time.Duration
	trustProxy bool
}

// NewRateLimiter creates a rate limiter that allows maxReqs per window.
// When trustProxy is true the client is identified by X-Forwarded-For /
// X-Real-IP; otherwise by the socket peer address, so a misconfigured
// proxy cannot collapse every client into one bucket.
func NewRateLimiter(client redis.Cmdable, maxReqs int, window time.Duration, trustProxy bool) *RateLimiter {
	return &RateLimiter{client: client, maxReqs: maxReqs, window: window, trustProxy: trustProxy}
}

// Middleware returns an HTTP middleware that enforces the rate limit.
// On Redis errors it fails open (allows the request through).
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := rl.clientIP(r)
		key := "ratelimit:chat:" + ip

		allowed, used, err := rl.allow(r.Context(), key)
		if err != nil {
			slog.Warn("rate limiter: redis error, failing open", "error", err, "ip", ip)
			next.ServeHTTP(w, r)
			return
		}

		windowSec := int(rl.window / time.Second)
		remaining := rl.maxReqs - used
		if remaining < 0 {
			remaining = 0
		}

		// Draft-standard rate limit headers (RateLimit-*); the legacy
		// X-RateLimit-* family is deliberately not emitted.
		w.Header().Set("RateLimit-Limit", strconv.Itoa(rl.maxReqs))
		w.Header().Set("RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("RateLimit-Reset", strconv.Itoa(windowSec))

		if !allowed {
			metrics.GateRejectionsTotal.WithLabelValues("rate").Inc()
			w.Header().Set("Retry-After", strconv.Itoa(windowSec))
			api.HandleError(w, api.ErrRateLimited)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow records the request in the window and reports whether it was under
// the limit, along with the number of slots now used.
func (rl *RateLimiter) allow(ctx context.Context, key string) (bool, int, error) {
	now := time.Now()
	windowStart := float64(now.Add(-rl.window).UnixMilli())
	member := fmt.Sprintf("%d", now.UnixNano())
	score := float64(now.UnixMilli())

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%f", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	pipe.Expire(ctx, key, rl.window+time.Second)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, err
	}

	prior := int(countCmd.Val())
	return prior < rl.maxReqs, prior + 1, nil
}

func (rl *RateLimiter) clientIP(r *http.Request) string {
	if rl.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Take the first IP
			for i := 0; i < len(xff); i++ {
				if xff[i] == ',' {
					return xff[:i]
				}
			}
			return xff
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
