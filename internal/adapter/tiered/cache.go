// Package tiered layers the in-process cache over the cache shared between
// Conductor processes.
package tiered

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Strob0t/Conductor/internal/port/cache"
)

// Cache answers from L1 first and falls back to L2, copying L2 hits into L1.
// L2 is optional; its failures are logged and treated as misses so a broken
// shared cache never blocks a scan.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration

	l1Hits atomic.Uint64
	l2Hits atomic.Uint64
	misses atomic.Uint64
}

var _ cache.Cache = (*Cache)(nil)

// New layers l1 over l2. l2 may be nil. L1 entries live at most l1Expire
// (zero keeps the caller's ttl).
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

func (c *Cache) l1TTL(ttl time.Duration) time.Duration {
	if c.l1Expire > 0 && (ttl <= 0 || ttl > c.l1Expire) {
		return c.l1Expire
	}
	return ttl
}

func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		c.l1Hits.Add(1)
		return val, true, nil
	}
	if c.l2 == nil {
		c.misses.Add(1)
		return nil, false, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		slog.Warn("l2 cache get failed", "key", key, "error", err)
	}
	if err != nil || !found {
		c.misses.Add(1)
		return nil, false, nil
	}
	c.l2Hits.Add(1)
	if err := c.l1.Set(ctx, key, val, c.l1TTL(0)); err != nil {
		slog.Warn("l1 cache backfill failed", "key", key, "error", err)
	}
	return val, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, c.l1TTL(ttl)); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		slog.Warn("l2 cache set failed", "key", key, "error", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	if err := c.l2.Delete(ctx, key); err != nil {
		slog.Warn("l2 cache delete failed", "key", key, "error", err)
	}
	return nil
}

// Stats returns the lookup counters since start.
func (c *Cache) Stats() cache.Stats {
	return cache.Stats{
		L1Hits: c.l1Hits.Load(),
		L2Hits: c.l2Hits.Load(),
		Misses: c.misses.Load(),
	}
}
