// Package rateLimit is a fixed-window rate limiter on shared redis counters,
// so the limit holds across API replicas.
package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/cultpass/bookings/internal/adapters/redis"
)

type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow fails open: if redis is unreachable the request goes through, the
// limiter must never take the booking path down with it.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	count, err := rl.redis.IncrWindow(ctx, "rl:"+key, period)
	if err != nil {
		return true
	}
	return count <= int64(rate)
}
