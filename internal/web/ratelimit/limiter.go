package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a client identified by key may make another request
type Limiter interface {
	// Allow consumes one request for key and reports the resulting state
	Allow(ctx context.Context, key string) (*Info, error)

	// Close releases background resources
	Close() error
}

// Info describes the rate limit state after an Allow call
type Info struct {
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Remaining is the number of requests left in the current window
	Remaining int
	// ResetAt is when a denied client may retry
	ResetAt time.Time
	// Allowed indicates whether the request should be served
	Allowed bool
}

// RetryAfter returns the whole seconds until ResetAt, at least 1
func (i *Info) RetryAfter(now time.Time) int {
	secs := int(i.ResetAt.Sub(now).Seconds() + 0.999)
	if secs < 1 {
		return 1
	}
	return secs
}

// Options selects and configures a limiter
type Options struct {
	// Driver is "memory" or "redis"
	Driver string
	// Limit is the number of requests allowed per Window
	Limit int
	// Window is the rate limit period
	Window time.Duration
	// Prefix namespaces redis keys
	Prefix string
}

// New builds the limiter named by opts.Driver. The redis client is only used
// by the redis driver.
func New(opts Options, client *redis.Client) (Limiter, error) {
	switch opts.Driver {
	case "memory":
		return NewTokenBucket(TokenBucketConfig{
			Capacity:        opts.Limit,
			RefillRate:      opts.Window,
			CleanupInterval: 5 * opts.Window,
		})
	case "redis":
		return NewRedisRateLimiter(RedisRateLimiterConfig{
			Client: client,
			Limit:  opts.Limit,
			Window: opts.Window,
			Prefix: opts.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown rate limit driver %q", opts.Driver)
	}
}
