// Package cache holds a single computed value for a bounded time.
package cache

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[T any] struct {
	value      T
	expires    time.Time
	generation uint64
}

// Cache stores one value of type T. Concurrent misses share one computation.
// Invalidate bumps a generation counter, so a computation that started
// before the invalidation is never served from the cache.
type Cache[T any] struct {
	ttl        time.Duration
	now        func() time.Time
	current    atomic.Pointer[entry[T]]
	generation atomic.Uint64
	group      singleflight.Group
	onHit      func()
	onMiss     func()
}

type Option[T any] func(*Cache[T])

// WithClock replaces time.Now.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) {
		c.now = now
	}
}

// WithObserver registers hit and miss callbacks.
func WithObserver[T any](onHit, onMiss func()) Option[T] {
	return func(c *Cache[T]) {
		c.onHit = onHit
		c.onMiss = onMiss
	}
}

// New returns a cache that keeps values for ttl. A ttl of zero disables
// caching; every call computes.
func New[T any](ttl time.Duration, opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the cached value or runs compute. The computation is
// detached from the caller's cancellation because other callers may share it.
func (c *Cache[T]) GetOrCompute(ctx context.Context, compute func(ctx context.Context) (T, error)) (T, error) {
	gen := c.generation.Load()
	if e := c.current.Load(); e != nil && e.generation == gen && c.now().Before(e.expires) {
		if c.onHit != nil {
			c.onHit()
		}
		return e.value, nil
	}
	if c.onMiss != nil {
		c.onMiss()
	}

	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		value, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 && c.generation.Load() == gen {
			c.current.Store(&entry[T]{value: value, expires: c.now().Add(c.ttl), generation: gen})
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate discards the cached value and any computation in flight.
func (c *Cache[T]) Invalidate() {
	c.generation.Add(1)
	c.current.Store(nil)
}
