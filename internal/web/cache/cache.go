package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry TTL
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Close releases background resources
	Close() error
}

// Config holds common configuration for cache backends
type Config struct {
	// DefaultTTL is used when Set is called with a zero TTL
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
	// MaxEntries bounds the memory backend (0 = unbounded)
	MaxEntries int
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 10 * time.Minute,
		Prefix:     "pathsec:",
		MaxEntries: 100000,
	}
}

// ErrCacheMiss is returned when a key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Nop never stores anything
type Nop struct{}

// Get always misses
func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrCacheMiss }

// Set discards the value
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Delete is a no-op
func (Nop) Delete(context.Context, string) error { return nil }

// Close is a no-op
func (Nop) Close() error { return nil }
