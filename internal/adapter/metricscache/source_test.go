package metricscache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/Conductor/internal/domain/anomaly"
)

type countingSource struct {
	calls int
	err   error
}

func (c *countingSource) Aggregate(_ context.Context, w anomaly.Window) (*anomaly.Aggregate, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &anomaly.Aggregate{Window: w, Volume: 42, Categories: map[string]int{"policy": 4}}, nil
}

type mapCache struct {
	data map[string][]byte
	ttl  time.Duration
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttl = ttl
	return nil
}

func (m *mapCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestAggregate_CachesBaselineWithinSameHour(t *testing.T) {
	src := &countingSource{}
	c := &mapCache{data: map[string][]byte{}}
	s := New(src, c, 10*time.Minute, 24*time.Hour)
	ctx := context.Background()

	now := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)
	_, baseline := anomaly.Windows(now)
	first, err := s.Aggregate(ctx, baseline)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	_, later := anomaly.Windows(now.Add(20 * time.Minute))
	second, err := s.Aggregate(ctx, later)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1", src.calls)
	}
	if second.Volume != first.Volume || second.Categories["policy"] != 4 {
		t.Errorf("cached aggregate mismatch: %+v", second)
	}
	if c.ttl != 10*time.Minute {
		t.Errorf("ttl = %v", c.ttl)
	}
}

func TestAggregate_ShortWindowBypassesCache(t *testing.T) {
	src := &countingSource{}
	c := &mapCache{data: map[string][]byte{}}
	s := New(src, c, time.Minute, 24*time.Hour)

	recent, _ := anomaly.Windows(time.Now())
	for range 3 {
		if _, err := s.Aggregate(context.Background(), recent); err != nil {
			t.Fatal(err)
		}
	}
	if src.calls != 3 {
		t.Errorf("source calls = %d, want 3", src.calls)
	}
	if len(c.data) != 0 {
		t.Errorf("recent window must not be cached")
	}
}

func TestAggregate_SourceErrorNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	c := &mapCache{data: map[string][]byte{}}
	s := New(src, c, time.Minute, time.Hour)

	_, baseline := anomaly.Windows(time.Now())
	if _, err := s.Aggregate(context.Background(), baseline); err == nil {
		t.Fatal("expected error")
	}
	if len(c.data) != 0 {
		t.Error("errors must not be cached")
	}
}
