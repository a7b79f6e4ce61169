package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/showtime-booking/internal/adapters/redis"
)

// Limiter admits or rejects a request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimiter is a fixed window counter in Redis.
type RateLimiter struct {
	redis  *redisadapter.Cache
	rate   int
	period time.Duration
}

func NewRateLimiter(redis *redisadapter.Cache, rate int, period time.Duration) *RateLimiter {
	return &RateLimiter{redis: redis, rate: rate, period: period}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	fullKey := "rl:" + key

	pipe := rl.redis.Client().TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, rl.period)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(rl.rate), nil
}
