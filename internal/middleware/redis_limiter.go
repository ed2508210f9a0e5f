package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/videostream/backend/internal/logging"
)

// RedisRateLimiter is a fixed-window counter shared by every instance pointed at the same Redis.
// Redis failures let the request through.
type RedisRateLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisRateLimiter allows up to limit events per window for each key.
func NewRedisRateLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisRateLimiter{client: client, prefix: prefix, limit: int64(limit), window: window}
}

// Allow increments the key's counter for the current window. The increment and the window
// expiry are sent in one MULTI/EXEC, and EXPIRE NX on every hit restores a lost TTL without
// extending a running window. EXPIRE NX needs Redis 7 or newer.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) bool {
	if key == "" {
		key = "unknown"
	}
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		logging.FromContext(ctx).Warn("rate limiter unavailable", "error", err)
		return true
	}
	return incr.Val() <= l.limit
}
