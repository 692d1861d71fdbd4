// Package reasoning models the multi-step reasoning loop as an explicit
// finite state machine whose transitions are gated by the task budget.
package reasoning

// State is a step of the reasoning loop.
type State string

const (
	StateAssess        State = "assess"
	StateAnalyze       State = "analyze"
	StateSynthesize    State = "synthesize"
	StateCritique      State = "critique"
	StateRetry         State = "retry"
	StateFinalize      State = "finalize"
	StateBudgetLimited State = "budget_limited"
	StateFailed        State = "failed"
)

// IsTerminal reports whether the loop stops in s.
func (s State) IsTerminal() bool {
	return s == StateFinalize || s == StateBudgetLimited || s == StateFailed
}

// CallsReasoner reports whether entering s costs one reasoning-service call.
func (s State) CallsReasoner() bool {
	switch s {
	case StateAssess, StateAnalyze, StateSynthesize, StateCritique:
		return true
	}
	return false
}

// Event is the outcome of the step just executed.
type Event string

const (
	// EventOK means the step produced usable output.
	EventOK Event = "ok"
	// EventRejected means the critique step did not approve the synthesis.
	EventRejected Event = "rejected"
	// EventError means the reasoning-service call failed.
	EventError Event = "error"
)

// Ledger is the view of the task budget the machine consults.
type Ledger interface {
	CanCallLLM() bool
	CanRetry() bool
}

// Transition is the machine's decision after an event.
type Transition struct {
	To State
	// ConsumesRetry is set when the transition spends one retry.
	ConsumesRetry bool
}

var forward = map[State]State{
	StateAssess:     StateAnalyze,
	StateAnalyze:    StateSynthesize,
	StateSynthesize: StateCritique,
	StateCritique:   StateFinalize,
	StateRetry:      StateAnalyze,
}

// Start returns the first state, or budget_limited if no call is affordable.
func Start(l Ledger) State {
	return gate(StateAssess, l)
}

// Next computes the transition out of cur after ev.
func Next(cur State, ev Event, l Ledger) Transition {
	if cur.IsTerminal() {
		return Transition{To: cur}
	}

	switch ev {
	case EventError:
		if !cur.CallsReasoner() || !l.CanRetry() {
			return Transition{To: StateFailed}
		}
		return Transition{To: gate(cur, l), ConsumesRetry: true}

	case EventRejected:
		if cur != StateCritique {
			return Transition{To: gate(forward[cur], l)}
		}
		if l.CanRetry() {
			return Transition{To: StateRetry, ConsumesRetry: true}
		}
		return Transition{To: StateFinalize}
	}

	return Transition{To: gate(forward[cur], l)}
}

// gate diverts to budget_limited when next needs a call the budget forbids.
func gate(next State, l Ledger) State {
	if next.CallsReasoner() && !l.CanCallLLM() {
		return StateBudgetLimited
	}
	return next
}
