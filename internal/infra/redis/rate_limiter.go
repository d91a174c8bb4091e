// File: internal/infra/redis/rate_limiter.go
package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter is a fixed-window counter used to slow brute-force probing of
// the verification endpoints. Fail-open: a Redis error never blocks a
// legitimate verification attempt.
type RateLimiter struct {
	cli    RedisClient
	limit  int64
	window time.Duration
}

func NewRateLimiter(cli RedisClient, limit int64, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{cli: cli, limit: limit, window: window}
}

// Allow reports whether the caller identified by key may proceed.
func (r *RateLimiter) Allow(ctx context.Context, key string) bool {
	k := fmt.Sprintf("rl:%s:%d", key, time.Now().Unix()/int64(r.window.Seconds()))
	n, err := r.cli.Incr(ctx, k)
	if err != nil {
		return true
	}
	if n == 1 {
		_ = r.cli.Expire(ctx, k, r.window)
	}
	return n <= r.limit
}
