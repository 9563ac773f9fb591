package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// TokenBucket implements an in-memory token bucket rate limiter. Each key
// holds up to Capacity tokens, refilled continuously at Capacity per
// RefillRate.
type TokenBucket struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int
	refillRate time.Duration
	cleanup    *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
	now        func() time.Time
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucketConfig holds configuration for the token bucket rate limiter
type TokenBucketConfig struct {
	// Capacity is the maximum number of tokens in the bucket
	Capacity int
	// RefillRate is how long a full refill takes
	RefillRate time.Duration
	// CleanupInterval is how often idle buckets are dropped (0 = never)
	CleanupInterval time.Duration
}

// DefaultTokenBucketConfig allows 600 requests per minute
func DefaultTokenBucketConfig() TokenBucketConfig {
	return TokenBucketConfig{
		Capacity:        600,
		RefillRate:      time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewTokenBucket creates a token bucket rate limiter
func NewTokenBucket(config TokenBucketConfig) (*TokenBucket, error) {
	if config.Capacity <= 0 {
		return nil, errors.New("capacity must be greater than 0")
	}
	if config.RefillRate <= 0 {
		return nil, errors.New("refill rate must be greater than 0")
	}

	tb := &TokenBucket{
		buckets:    make(map[string]*bucket),
		capacity:   config.Capacity,
		refillRate: config.RefillRate,
		done:       make(chan struct{}),
		now:        time.Now,
	}

	if config.CleanupInterval > 0 {
		tb.cleanup = time.NewTicker(config.CleanupInterval)
		go tb.cleanupLoop()
	}

	return tb, nil
}

// Allow checks if a request should be allowed for the given key
func (tb *TokenBucket) Allow(ctx context.Context, key string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, exists := tb.buckets[key]
	if !exists {
		b = &bucket{tokens: float64(tb.capacity), lastRefill: now}
		tb.buckets[key] = b
	} else if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens = math.Min(float64(tb.capacity), b.tokens+tb.perSecond()*elapsed.Seconds())
		b.lastRefill = now
	}

	info := &Info{Limit: tb.capacity}
	if b.tokens >= 1 {
		b.tokens--
		info.Allowed = true
		info.Remaining = int(b.tokens)
		info.ResetAt = now.Add(tb.untilTokens(float64(tb.capacity) - b.tokens))
		return info, nil
	}

	info.ResetAt = now.Add(tb.untilTokens(1 - b.tokens))
	return info, nil
}

func (tb *TokenBucket) perSecond() float64 {
	return float64(tb.capacity) / tb.refillRate.Seconds()
}

// untilTokens returns how long it takes to refill n tokens
func (tb *TokenBucket) untilTokens(n float64) time.Duration {
	return time.Duration(n / tb.perSecond() * float64(time.Second))
}

func (tb *TokenBucket) cleanupLoop() {
	for {
		select {
		case <-tb.cleanup.C:
			tb.cleanupIdle()
		case <-tb.done:
			return
		}
	}
}

// cleanupIdle drops buckets that have been full for a whole refill period
func (tb *TokenBucket) cleanupIdle() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	for key, b := range tb.buckets {
		if now.Sub(b.lastRefill) > tb.refillRate {
			delete(tb.buckets, key)
		}
	}
}

// Close stops the cleanup goroutine
func (tb *TokenBucket) Close() error {
	tb.closeOnce.Do(func() {
		close(tb.done)
		if tb.cleanup != nil {
			tb.cleanup.Stop()
		}
	})
	return nil
}
