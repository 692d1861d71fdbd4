// Package resilience guards calls to the reasoning service.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// permanentError marks a failure caused by the request rather than the
// remote service. It is returned to the caller but not counted.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Execute returns it without tripping the breaker.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	}
	return "closed"
}

// Breaker opens after maxFailures consecutive failures and rejects calls
// for timeout. It then lets a single probe through: success closes it,
// failure opens it again. Calls abandoned because their own context ended
// say nothing about the remote side and are not counted.
type Breaker struct {
	name        string
	maxFailures int
	timeout     time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    state
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker. name labels its log lines.
func NewBreaker(name string, maxFailures int, timeout time.Duration) *Breaker {
	return &Breaker{
		name:        name,
		maxFailures: max(maxFailures, 1),
		timeout:     timeout,
		now:         time.Now,
	}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, ok := b.acquire()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}

	var perm *permanentError
	switch {
	case errors.As(err, &perm):
		b.succeed()
		return perm.err
	case err != nil && ctx.Err() != nil:
		return err
	case err != nil:
		b.fail()
		return err
	}
	b.succeed()
	return nil
}

// acquire reports whether a call may proceed and whether it is the
// half-open probe.
func (b *Breaker) acquire() (probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen && b.now().Sub(b.openedAt) >= b.timeout {
		b.transition(stateHalfOpen)
	}
	switch b.state {
	case stateClosed:
		return false, true
	case stateHalfOpen:
		if b.probing {
			return false, false
		}
		b.probing = true
		return true, true
	}
	return false, false
}

// State returns "closed", "open" or "half_open" for health reporting.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateOpen && b.now().Sub(b.openedAt) >= b.timeout {
		return stateHalfOpen.String()
	}
	return b.state.String()
}

// fail and succeed must be called with b.mu held.
func (b *Breaker) fail() {
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		b.openedAt = b.now()
		b.transition(stateOpen)
	}
}

func (b *Breaker) succeed() {
	b.failures = 0
	b.transition(stateClosed)
}

func (b *Breaker) transition(to state) {
	if b.state == to {
		return
	}
	slog.Warn("circuit breaker state changed", "breaker", b.name, "from", b.state.String(), "to", to.String(),
		"failures", b.failures)
	b.state = to
}
