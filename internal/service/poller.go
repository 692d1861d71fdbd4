package service

import (
	"context"
	"log/slog"
	"time"
)

// Poller runs fn immediately and then every interval until ctx ends.
type Poller struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
	wake     <-chan struct{}
}

// NewPoller creates a Poller. A non-positive interval defaults to one minute.
func NewPoller(name string, interval time.Duration, fn func(ctx context.Context) error) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{name: name, interval: interval, fn: fn}
}

// WithWake makes the poller also run whenever wake fires. Wakeups are hints;
// the ticker alone keeps the loop correct.
func (p *Poller) WithWake(wake <-chan struct{}) *Poller {
	p.wake = wake
	return p
}

// Name returns the poller name used in logs.
func (p *Poller) Name() string { return p.name }

// Run blocks until ctx is cancelled. Errors from fn are logged and the loop
// continues.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Info("poller started", "poller", p.name, "interval", p.interval)
	p.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopped", "poller", p.name)
			return nil
		case <-ticker.C:
			p.RunOnce(ctx)
		case <-p.wake:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes one iteration.
func (p *Poller) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := p.fn(ctx); err != nil {
		slog.Error("poller iteration failed", "poller", p.name, "error", err)
	}
}
