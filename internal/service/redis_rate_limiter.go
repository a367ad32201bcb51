package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// allowScript applies the fixed-window rule atomically. The key's TTL is the
// window, so Redis discards it at ResetAt. A denied request leaves the
// counter untouched.
var allowScript = redis.NewScript(`
local count = redis.call("GET", KEYS[1])
if not count then
	redis.call("SET", KEYS[1], 1, "PX", ARGV[2])
	return 1
end
if tonumber(count) >= tonumber(ARGV[1]) then
	return 0
end
redis.call("INCR", KEYS[1])
return 1
`)

// RedisRateLimiter shares fixed windows between replicas through Redis.
type RedisRateLimiter struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
	prefix      string
	logger      *logrus.Logger
}

func NewRedisRateLimiter(client *redis.Client, cfg RateLimitConfig, logger *logrus.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:      client,
		maxRequests: cfg.MaxRequests,
		window:      cfg.Window,
		prefix:      "otp_rate:",
		logger:      logger,
	}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	allowed, err := allowScript.Run(ctx, l.client,
		[]string{l.prefix + key},
		l.maxRequests, l.window.Milliseconds(),
	).Int()
	if err != nil {
		l.logger.WithError(err).Error("Failed to evaluate rate limit in Redis")
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	return allowed == 1, nil
}

// ResetIn reports how long until the window for key resets, or zero when no
// window is open.
func (l *RedisRateLimiter) ResetIn(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.client.PTTL(ctx, l.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit ttl: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
