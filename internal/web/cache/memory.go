package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache implements an in-memory cache with TTL support
type MemoryCache struct {
	mu     sync.RWMutex
	data   map[string]cacheItem
	config Config
	cancel context.CancelFunc
}

type cacheItem struct {
	value      []byte
	expiration time.Time
}

func (i cacheItem) expired(now time.Time) bool {
	return !i.expiration.IsZero() && now.After(i.expiration)
}

// NewMemoryCache creates a new in-memory cache with default configuration
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithConfig(DefaultConfig())
}

// NewMemoryCacheWithConfig creates a new in-memory cache with custom configuration
func NewMemoryCacheWithConfig(config Config) *MemoryCache {
	ctx, cancel := context.WithCancel(context.Background())
	mc := &MemoryCache{
		data:   make(map[string]cacheItem),
		config: config,
		cancel: cancel,
	}

	// Start background goroutine to clean up expired items
	go mc.cleanupExpired(ctx, time.Minute)

	return mc
}

// Get retrieves a value from the cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullKey := m.config.Prefix + key

	m.mu.RLock()
	item, ok := m.data[fullKey]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if item.expired(time.Now()) {
		m.mu.Lock()
		delete(m.data, fullKey)
		m.mu.Unlock()
		return nil, ErrCacheMiss
	}

	return item.value, nil
}

// Set stores a value in the cache with a TTL. When the cache is full, expired
// entries are purged first and then an arbitrary entry is evicted.
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullKey := m.config.Prefix + key

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	item := cacheItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiration = time.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[fullKey]; !exists && m.config.MaxEntries > 0 && len(m.data) >= m.config.MaxEntries {
		m.purgeLocked(time.Now())
		for k := range m.data {
			if len(m.data) < m.config.MaxEntries {
				break
			}
			delete(m.data, k)
		}
	}

	m.data[fullKey] = item
	return nil
}

// Delete removes a value from the cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.data, m.config.Prefix+key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// purged
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Close stops the background cleanup goroutine
func (m *MemoryCache) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

func (m *MemoryCache) purgeLocked(now time.Time) {
	for k, item := range m.data {
		if item.expired(now) {
			delete(m.data, k)
		}
	}
}

// cleanupExpired periodically removes expired items from the cache
func (m *MemoryCache) cleanupExpired(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			m.purgeLocked(time.Now())
			m.mu.Unlock()
		}
	}
}
