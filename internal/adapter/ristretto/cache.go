// Package ristretto is the in-process cache for metric aggregates, backed
// by dgraph-io/ristretto with values costed by their byte size.
package ristretto

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Strob0t/Conductor/internal/port/cache"
)

// Cache is a size-bounded in-process cache.
type Cache struct {
	c       *ristretto.Cache[string, []byte]
	maxCost int64
}

var _ cache.Cache = (*Cache)(nil)

// New creates a cache holding at most maxCostBytes of values.
func New(maxCostBytes int64) (*Cache, error) {
	if maxCostBytes <= 0 {
		return nil, fmt.Errorf("ristretto: max cost must be positive, got %d", maxCostBytes)
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Aggregates are ~1KB; keep ten counters per expected entry.
		NumCounters: max(maxCostBytes/100, 1000),
		MaxCost:     maxCostBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Cache{c: c, maxCost: maxCostBytes}, nil
}

func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores value for ttl (zero never expires) and waits for the write
// buffer so a following Get observes it. Values larger than the whole
// cache are not stored.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(value))
	if cost > c.maxCost {
		slog.Debug("cache entry exceeds capacity", "key", key, "bytes", cost)
		return nil
	}
	if !c.c.SetWithTTL(key, value, cost, ttl) {
		slog.Debug("cache set dropped", "key", key)
	}
	c.c.Wait()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Stats reports ristretto's own hit and miss counters.
func (c *Cache) Stats() cache.Stats {
	m := c.c.Metrics
	if m == nil {
		return cache.Stats{}
	}
	return cache.Stats{L1Hits: m.Hits(), Misses: m.Misses()}
}

// Close releases the cache's goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
