package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, then admits the request when fewer than
// limit members remain. It returns {allowed, count, oldest score}.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local current = redis.call('ZCARD', key)
	local allowed = 0
	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window_ms)
		current = current + 1
		allowed = 1
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local oldest_score = now
	if oldest[2] then
		oldest_score = tonumber(oldest[2])
	end
	return {allowed, current, tostring(oldest_score)}
`)

// RedisRateLimiter implements a Redis-backed sliding window rate limiter
// shared by every server instance pointing at the same Redis
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// RedisRateLimiterConfig holds configuration for the Redis rate limiter
type RedisRateLimiterConfig struct {
	// Client is the Redis client to use
	Client *redis.Client
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Window is the time window for rate limiting
	Window time.Duration
	// Prefix is the key prefix for Redis keys
	Prefix string
}

// NewRedisRateLimiter creates a new Redis rate limiter
func NewRedisRateLimiter(config RedisRateLimiterConfig) (*RedisRateLimiter, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if config.Window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}

	return &RedisRateLimiter{
		client: config.Client,
		limit:  config.Limit,
		window: config.Window,
		prefix: config.Prefix + "ratelimit:",
	}, nil
}

// Allow checks if a request should be allowed for the given key
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (*Info, error) {
	now := time.Now()
	nowMs := now.UnixMilli()

	result, err := slidingWindow.Run(ctx, r.client, []string{r.prefix + key},
		nowMs,
		nowMs-r.window.Milliseconds(),
		r.limit,
		r.window.Milliseconds(),
		uuid.NewString(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if len(result) != 3 {
		return nil, errors.New("unexpected redis script result")
	}

	allowed, ok := result[0].(int64)
	if !ok {
		return nil, errors.New("invalid allowed value from redis")
	}
	count, ok := result[1].(int64)
	if !ok {
		return nil, errors.New("invalid count value from redis")
	}
	oldestStr, ok := result[2].(string)
	if !ok {
		return nil, errors.New("invalid oldest value from redis")
	}
	var oldest float64
	if _, err := fmt.Sscan(oldestStr, &oldest); err != nil {
		return nil, fmt.Errorf("invalid oldest value from redis: %w", err)
	}

	remaining := r.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return &Info{
		Limit:     r.limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(int64(oldest)).Add(r.window),
		Allowed:   allowed == 1,
	}, nil
}

// Reset removes all rate limit data for the given key
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Close is a no-op; the client is owned by the caller
func (r *RedisRateLimiter) Close() error {
	return nil
}
