// Package metricscache decorates a metrics source with a cache for long
// aggregation windows. The baseline window moves by seconds between scans
// but its aggregate barely changes, so it is keyed by the hour it ends in.
package metricscache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/Conductor/internal/domain/anomaly"
	"github.com/Strob0t/Conductor/internal/port/cache"
	"github.com/Strob0t/Conductor/internal/port/metricsource"
)

// Source caches aggregates of windows at least minWindow long.
type Source struct {
	next      metricsource.Source
	cache     cache.Cache
	ttl       time.Duration
	minWindow time.Duration
}

var _ metricsource.Source = (*Source)(nil)

// New wraps next. Windows shorter than minWindow always hit next.
func New(next metricsource.Source, c cache.Cache, ttl, minWindow time.Duration) *Source {
	return &Source{next: next, cache: c, ttl: ttl, minWindow: minWindow}
}

// Key returns the cache key for w.
func Key(w anomaly.Window) string {
	return fmt.Sprintf("metrics.%d.%d", w.End.Truncate(time.Hour).Unix(), int64(w.End.Sub(w.Start)/time.Hour))
}

// Aggregate returns the cached aggregate for long windows, loading and
// storing it on a miss. Cache failures fall through to next.
func (s *Source) Aggregate(ctx context.Context, w anomaly.Window) (*anomaly.Aggregate, error) {
	if w.End.Sub(w.Start) < s.minWindow {
		return s.next.Aggregate(ctx, w)
	}

	key := Key(w)
	cached, ok, err := cache.GetJSON[anomaly.Aggregate](ctx, s.cache, key)
	if err != nil {
		slog.Warn("metrics cache get failed", "key", key, "error", err)
	}
	if ok {
		return cached, nil
	}

	agg, err := s.next.Aggregate(ctx, w)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, s.cache, key, agg, s.ttl); err != nil {
		slog.Warn("metrics cache set failed", "key", key, "error", err)
	}
	return agg, nil
}
