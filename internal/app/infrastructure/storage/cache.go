package storage

import (
	"github.com/maypok86/otter/v2"
	"iter"
	"time"
)

// Cache is a string-keyed in-memory cache. A positive ttl expires entries
// that were not accessed for that long; zero keeps them until invalidated.
type Cache[T any] struct {
	outer *otter.Cache[string, T]
}

func NewCache[T any](capacity int, ttl time.Duration, onEvict func(key string, val T)) *Cache[T] {
	opts := &otter.Options[string, T]{
		InitialCapacity: capacity,
	}
	if ttl > 0 {
		opts.ExpiryCalculator = otter.ExpiryAccessing[string, T](ttl)
	}
	if onEvict != nil {
		opts.OnDeletion = func(e otter.DeletionEvent[string, T]) {
			if e.WasEvicted() {
				onEvict(e.Key, e.Value)
			}
		}
	}

	return &Cache[T]{outer: otter.Must(opts)}
}

func (c *Cache[T]) Set(key string, val T) {
	c.outer.Set(key, val)
}

func (c *Cache[T]) Get(key string) (T, bool) {
	return c.outer.GetIfPresent(key)
}

func (c *Cache[T]) ClearKey(key string) {
	c.outer.Invalidate(key)
}

func (c *Cache[T]) ClearAll() {
	c.outer.InvalidateAll()
}

func (c *Cache[T]) All() iter.Seq2[string, T] {
	return c.outer.All()
}

func (c *Cache[T]) Len() int {
	return c.outer.EstimatedSize()
}
