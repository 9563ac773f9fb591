package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBucket(t *testing.T, capacity int, refill time.Duration) (*TokenBucket, *fakeClock) {
	t.Helper()
	tb, err := NewTokenBucket(TokenBucketConfig{Capacity: capacity, RefillRate: refill})
	require.NoError(t, err)
	t.Cleanup(func() { tb.Close() })

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	tb.now = clock.Now
	return tb, clock
}

func TestNewTokenBucket_InvalidConfig(t *testing.T) {
	_, err := NewTokenBucket(TokenBucketConfig{Capacity: 0, RefillRate: time.Minute})
	assert.Error(t, err)

	_, err = NewTokenBucket(TokenBucketConfig{Capacity: 1, RefillRate: 0})
	assert.Error(t, err)
}

func TestTokenBucket_ExhaustsCapacity(t *testing.T) {
	tb, _ := newTestBucket(t, 3, time.Minute)
	ctx := context.Background()

	for i := 2; i >= 0; i-- {
		info, err := tb.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, info.Allowed)
		assert.Equal(t, 3, info.Limit)
		assert.Equal(t, i, info.Remaining)
	}

	info, err := tb.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, 20, info.RetryAfter(tb.now()))
}

func TestTokenBucket_Refill(t *testing.T) {
	tb, clock := newTestBucket(t, 60, time.Minute)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		info, err := tb.Allow(ctx, "client")
		require.NoError(t, err)
		require.True(t, info.Allowed)
	}

	info, _ := tb.Allow(ctx, "client")
	assert.False(t, info.Allowed)

	// One token per second
	clock.Advance(time.Second)
	info, _ = tb.Allow(ctx, "client")
	assert.True(t, info.Allowed)

	info, _ = tb.Allow(ctx, "client")
	assert.False(t, info.Allowed)

	// Never more than capacity
	clock.Advance(time.Hour)
	info, _ = tb.Allow(ctx, "client")
	assert.True(t, info.Allowed)
	assert.Equal(t, 59, info.Remaining)
}

func TestTokenBucket_KeysAreIndependent(t *testing.T) {
	tb, _ := newTestBucket(t, 1, time.Minute)
	ctx := context.Background()

	info, _ := tb.Allow(ctx, "a")
	assert.True(t, info.Allowed)
	info, _ = tb.Allow(ctx, "a")
	assert.False(t, info.Allowed)

	info, _ = tb.Allow(ctx, "b")
	assert.True(t, info.Allowed)
}

func TestTokenBucket_CleanupIdle(t *testing.T) {
	tb, clock := newTestBucket(t, 5, time.Minute)
	ctx := context.Background()

	_, _ = tb.Allow(ctx, "old")
	clock.Advance(2 * time.Minute)
	_, _ = tb.Allow(ctx, "new")

	tb.cleanupIdle()

	tb.mu.Lock()
	defer tb.mu.Unlock()
	assert.NotContains(t, tb.buckets, "old")
	assert.Contains(t, tb.buckets, "new")
}

func TestTokenBucket_Concurrent(t *testing.T) {
	tb, _ := newTestBucket(t, 100, time.Hour)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				info, err := tb.Allow(ctx, "shared")
				if err == nil && info.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, allowed)
}

func TestTokenBucket_CloseTwice(t *testing.T) {
	tb, err := NewTokenBucket(DefaultTokenBucketConfig())
	require.NoError(t, err)
	assert.NoError(t, tb.Close())
	assert.NoError(t, tb.Close())
}

func TestNew(t *testing.T) {
	l, err := New(Options{Driver: "memory", Limit: 10, Window: time.Second}, nil)
	require.NoError(t, err)
	assert.IsType(t, &TokenBucket{}, l)
	l.Close()

	_, err = New(Options{Driver: "redis", Limit: 10, Window: time.Second}, nil)
	assert.Error(t, err)

	_, err = New(Options{Driver: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}
