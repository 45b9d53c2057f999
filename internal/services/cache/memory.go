package cache

import (
	"context"
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache. Expired entries are invisible to Get
// and are dropped by Purge.
type MemoryCache[T any] struct {
	mu   sync.RWMutex
	data map[string]entry[T]
	ttl  time.Duration
	now  func() time.Time
}

type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now, used by tests to move time forward.
func WithClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) { o.now = now }
}

func NewMemoryCache[T any](ttl time.Duration, opts ...MemoryOption) *MemoryCache[T] {
	o := memoryOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryCache[T]{
		data: make(map[string]entry[T]),
		ttl:  ttl,
		now:  o.now,
	}
}

func (c *MemoryCache[T]) Set(_ context.Context, key string, value T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = entry[T]{value: value, expiresAt: c.now().Add(c.ttl)}
	return nil
}

//nolint:ireturn
func (c *MemoryCache[T]) Get(_ context.Context, key string) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	e, ok := c.data[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return zero, ErrCacheMiss
	}
	return e.value, nil
}

func (c *MemoryCache[T]) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return nil
}

// Purge drops expired entries and returns how many were removed.
func (c *MemoryCache[T]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.data {
		if !now.Before(e.expiresAt) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
