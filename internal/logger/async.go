package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes buffered records.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// sink is the buffer shared by an AsyncHandler and all handlers derived
// from it through WithAttrs and WithGroup.
type sink struct {
	records chan queued
	done    sync.WaitGroup
	mu      sync.RWMutex // held for writing only while closing
	closed  bool
	dropped atomic.Int64
	base    slog.Handler // receives the drop summary
}

type queued struct {
	to  slog.Handler
	rec slog.Record
}

// AsyncHandler moves formatting and I/O off the caller's goroutine so a
// slow log sink cannot stall a worker's poll loop. Records below
// mustDeliver are dropped and counted when the buffer is full. Records at
// or above it wait for room.
type AsyncHandler struct {
	inner       slog.Handler
	s           *sink
	mustDeliver slog.Level
}

// NewAsyncHandler buffers up to size records and drains them with workers
// goroutines. Error records are never dropped.
func NewAsyncHandler(inner slog.Handler, size, workers int) *AsyncHandler {
	s := &sink{records: make(chan queued, size), base: inner}
	for range max(workers, 1) {
		s.done.Add(1)
		go s.run()
	}
	return &AsyncHandler{inner: inner, s: s, mustDeliver: slog.LevelError}
}

func (s *sink) run() {
	defer s.done.Done()
	for q := range s.records {
		_ = q.to.Handle(context.Background(), q.rec)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler requires a value record
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	if h.s.closed {
		h.s.dropped.Add(1)
		return nil
	}

	q := queued{to: h.inner, rec: rec.Clone()}
	if rec.Level >= h.mustDeliver {
		h.s.records <- q
		return nil
	}
	select {
	case h.s.records <- q:
	default:
		h.s.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), s: h.s, mustDeliver: h.mustDeliver}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), s: h.s, mustDeliver: h.mustDeliver}
}

// DroppedCount returns how many records were discarded so far.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.s.dropped.Load()
}

// Close flushes the buffer and stops the workers. When records were dropped
// a single warning with the count is written synchronously. Later calls are
// no-ops and later records are dropped.
func (h *AsyncHandler) Close() {
	h.s.mu.Lock()
	first := !h.s.closed
	if first {
		h.s.closed = true
		close(h.s.records)
	}
	h.s.mu.Unlock()
	h.s.done.Wait()

	if n := h.s.dropped.Load(); first && n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async logger dropped records", 0)
		rec.AddAttrs(slog.Int64("dropped", n))
		_ = h.s.base.Handle(context.Background(), rec)
	}
}
