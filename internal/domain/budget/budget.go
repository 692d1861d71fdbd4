// Package budget defines per-task consumption limits and the in-memory
// ledger a worker uses to stay within them while executing a task.
package budget

import (
	"fmt"
	"time"
)

// Limits bounds the resources a single task execution may consume.
type Limits struct {
	MaxLLMCalls int `json:"max_llm_calls" yaml:"max_llm_calls"`
	MaxSeconds  int `json:"max_seconds" yaml:"max_seconds"`
	MaxSubtasks int `json:"max_subtasks" yaml:"max_subtasks"`
	MaxRetries  int `json:"max_retries" yaml:"max_retries"`
}

// DefaultLimits returns the limits used when no configuration exists for
// an (agent, task type) pair.
func DefaultLimits() Limits {
	return Limits{
		MaxLLMCalls: 5,
		MaxSeconds:  300,
		MaxSubtasks: 3,
		MaxRetries:  2,
	}
}

// Validate rejects negative limits.
func (l Limits) Validate() error {
	switch {
	case l.MaxLLMCalls < 0:
		return fmt.Errorf("max_llm_calls must be non-negative")
	case l.MaxSeconds < 0:
		return fmt.Errorf("max_seconds must be non-negative")
	case l.MaxSubtasks < 0:
		return fmt.Errorf("max_subtasks must be non-negative")
	case l.MaxRetries < 0:
		return fmt.Errorf("max_retries must be non-negative")
	}
	return nil
}

// IsZero reports whether no limit is set.
func (l Limits) IsZero() bool {
	return l == Limits{}
}

// Usage is the consumption summary returned as budget_usage on completion.
type Usage struct {
	LLMCallsUsed    int     `json:"llm_calls_used"`
	SubtasksCreated int     `json:"subtasks_created"`
	RetriesUsed     int     `json:"retries_used"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
}

// Remaining holds how much of each limit is still available.
type Remaining struct {
	LLMCalls int     `json:"llm_calls"`
	Seconds  float64 `json:"seconds"`
	Subtasks int     `json:"subtasks"`
	Retries  int     `json:"retries"`
}

// Reason names the limit that stopped a task.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonTime     Reason = "max_seconds"
	ReasonLLMCalls Reason = "max_llm_calls"
	ReasonSubtasks Reason = "max_subtasks"
	ReasonRetries  Reason = "max_retries"

	// ReasonDaily: the agent's daily call cap ran out mid-task.
	ReasonDaily Reason = "max_daily_llm_calls"
)

// Budget tracks consumption of one task execution against its Limits.
// Counters only ever grow. A Budget is owned by a single worker goroutine
// and is not safe for concurrent use.
type Budget struct {
	limits   Limits
	started  time.Time
	now      func() time.Time
	llmCalls int
	subtasks int
	retries  int

	// dailyLeft caps llmCalls by what the agent may still spend today.
	// Negative means uncapped.
	dailyLeft int
}

// New starts a Budget with the given limits. The elapsed-time clock starts now.
func New(limits Limits) *Budget {
	return NewWithClock(limits, time.Now)
}

// NewWithClock is New with an injectable clock.
func NewWithClock(limits Limits, now func() time.Time) *Budget {
	if now == nil {
		now = time.Now
	}
	return &Budget{limits: limits, started: now(), now: now, dailyLeft: -1}
}

// CapDaily limits the calls this budget may make to left, the agent's
// unused daily allowance when the task starts.
func (b *Budget) CapDaily(left int) {
	b.dailyLeft = max(left, 0)
}

func (b *Budget) dailyReached() bool {
	return b.dailyLeft >= 0 && b.llmCalls >= b.dailyLeft
}

// Limits returns the configured limits.
func (b *Budget) Limits() Limits { return b.limits }

// Elapsed returns the wall-clock time since the budget was started.
func (b *Budget) Elapsed() time.Duration {
	return b.now().Sub(b.started)
}

func (b *Budget) timeLeft() bool {
	return b.Elapsed() < time.Duration(b.limits.MaxSeconds)*time.Second
}

// CanCallLLM reports whether another reasoning-service call is allowed.
func (b *Budget) CanCallLLM() bool {
	return b.timeLeft() && b.llmCalls < b.limits.MaxLLMCalls && !b.dailyReached()
}

// CanCreateSubtask reports whether another sub-task may be spawned.
func (b *Budget) CanCreateSubtask() bool {
	return b.timeLeft() && b.subtasks < b.limits.MaxSubtasks
}

// CanRetry reports whether another retry is allowed.
func (b *Budget) CanRetry() bool {
	return b.timeLeft() && b.retries < b.limits.MaxRetries
}

// UseLLMCall records one reasoning-service call.
func (b *Budget) UseLLMCall() { b.llmCalls++ }

// UseSubtask records one spawned sub-task.
func (b *Budget) UseSubtask() { b.subtasks++ }

// UseRetry records one retry.
func (b *Budget) UseRetry() { b.retries++ }

// Record absorbs usage reported by an external collaborator. Negative
// deltas are ignored so counters stay monotonic.
func (b *Budget) Record(u Usage) {
	if u.LLMCallsUsed > 0 {
		b.llmCalls += u.LLMCallsUsed
	}
	if u.SubtasksCreated > 0 {
		b.subtasks += u.SubtasksCreated
	}
	if u.RetriesUsed > 0 {
		b.retries += u.RetriesUsed
	}
}

// Remaining returns the unconsumed part of every limit, floored at zero.
func (b *Budget) Remaining() Remaining {
	secs := float64(b.limits.MaxSeconds) - b.Elapsed().Seconds()
	calls := b.limits.MaxLLMCalls - b.llmCalls
	if b.dailyLeft >= 0 {
		calls = min(calls, b.dailyLeft-b.llmCalls)
	}
	return Remaining{
		LLMCalls: max(calls, 0),
		Seconds:  max(secs, 0),
		Subtasks: max(b.limits.MaxSubtasks-b.subtasks, 0),
		Retries:  max(b.limits.MaxRetries-b.retries, 0),
	}
}

// ExhaustedReason returns the first limit currently reached, checking
// elapsed time, then the task's call count, then the daily cap, or
// ReasonNone.
func (b *Budget) ExhaustedReason() Reason {
	switch {
	case !b.timeLeft():
		return ReasonTime
	case b.llmCalls >= b.limits.MaxLLMCalls:
		return ReasonLLMCalls
	case b.dailyReached():
		return ReasonDaily
	case b.subtasks >= b.limits.MaxSubtasks:
		return ReasonSubtasks
	case b.retries >= b.limits.MaxRetries:
		return ReasonRetries
	}
	return ReasonNone
}

// Usage returns the current counters.
func (b *Budget) Usage() Usage {
	return Usage{
		LLMCallsUsed:    b.llmCalls,
		SubtasksCreated: b.subtasks,
		RetriesUsed:     b.retries,
		ElapsedSeconds:  b.Elapsed().Seconds(),
	}
}
