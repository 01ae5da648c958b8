package domain

import (
	"sync"
	"time"
)

// TTLCache holds a single value until it expires or is invalidated
type TTLCache[T any] struct {
	mu        sync.Mutex
	ttl       time.Duration
	value     T
	expiresAt time.Time
	valid     bool
	now       func() time.Time
}

// NewTTLCache creates an empty cache
func NewTTLCache[T any](ttl time.Duration) *TTLCache[T] {
	return &TTLCache[T]{ttl: ttl, now: time.Now}
}

// Get returns the cached value if present and not expired
func (c *TTLCache[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if !c.valid || !c.now().Before(c.expiresAt) {
		return zero, false
	}
	return c.value, true
}

// Set stores v for the cache TTL
func (c *TTLCache[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = v
	c.expiresAt = c.now().Add(c.ttl)
	c.valid = true
}

// Invalidate drops the cached value
func (c *TTLCache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	c.value = zero
	c.valid = false
}
