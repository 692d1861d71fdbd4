// Package natskv implements the cache port on a NATS JetStream KV bucket,
// shared by every Conductor process so one process's baseline aggregate
// serves the others.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/Conductor/internal/port/cache"
)

// Cache stores entries in one KV bucket. Expiry is the bucket's TTL.
type Cache struct {
	kv jetstream.KeyValue
}

var _ cache.Cache = (*Cache)(nil)

// New wraps an opened bucket.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Open creates bucket, or updates its TTL when it already exists, and
// returns a cache over it. Only the latest value of a key is kept.
func Open(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*Cache, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "conductor shared cache",
		TTL:         ttl,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv %s: %w", bucket, err)
	}
	return New(kv), nil
}

// keyReplacer maps characters KV keys may not contain.
var keyReplacer = strings.NewReplacer(":", "_", " ", "_", "*", "_", ">", "_", "/", ".")

// Key converts an arbitrary cache key into a valid KV key.
func Key(key string) string {
	return keyReplacer.Replace(key)
}

func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, Key(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

// Set stores value. The ttl argument is ignored in favour of the bucket TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := c.kv.Put(ctx, Key(key), value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Delete purges key so no tombstoned history is left behind.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Purge(ctx, Key(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv purge %s: %w", key, err)
	}
	return nil
}
