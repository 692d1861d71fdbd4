package reasoning

import "testing"

type ledger struct {
	calls   int
	retries int
}

func (l *ledger) CanCallLLM() bool { return l.calls > 0 }
func (l *ledger) CanRetry() bool   { return l.retries > 0 }

func TestHappyPath(t *testing.T) {
	l := &ledger{calls: 10, retries: 1}
	want := []State{StateAssess, StateAnalyze, StateSynthesize, StateCritique, StateFinalize}

	s := Start(l)
	for i, w := range want {
		if s != w {
			t.Fatalf("step %d: expected %s, got %s", i, w, s)
		}
		if s.IsTerminal() {
			break
		}
		s = Next(s, EventOK, l).To
	}
}

func TestStartWithoutBudget(t *testing.T) {
	if got := Start(&ledger{}); got != StateBudgetLimited {
		t.Fatalf("expected budget_limited, got %s", got)
	}
}

func TestCritiqueRejectedRetriesOnlyWhileAllowed(t *testing.T) {
	l := &ledger{calls: 10, retries: 1}

	tr := Next(StateCritique, EventRejected, l)
	if tr.To != StateRetry || !tr.ConsumesRetry {
		t.Fatalf("expected retry consuming a retry, got %+v", tr)
	}
	if got := Next(StateRetry, EventOK, l).To; got != StateAnalyze {
		t.Fatalf("retry must loop back to analyze, got %s", got)
	}

	l.retries = 0
	if got := Next(StateCritique, EventRejected, l).To; got != StateFinalize {
		t.Fatalf("without retries the loop must finalize, got %s", got)
	}
}

func TestBudgetGateBetweenSteps(t *testing.T) {
	l := &ledger{calls: 0, retries: 3}
	if got := Next(StateAnalyze, EventOK, l).To; got != StateBudgetLimited {
		t.Fatalf("expected budget_limited before synthesize, got %s", got)
	}
	if got := Next(StateRetry, EventOK, l).To; got != StateBudgetLimited {
		t.Fatalf("expected budget_limited before re-analysis, got %s", got)
	}
	// Finalize needs no call.
	if got := Next(StateCritique, EventOK, l).To; got != StateFinalize {
		t.Fatalf("expected finalize, got %s", got)
	}
}

func TestErrorRetriesSameStateThenFails(t *testing.T) {
	l := &ledger{calls: 5, retries: 1}
	tr := Next(StateSynthesize, EventError, l)
	if tr.To != StateSynthesize || !tr.ConsumesRetry {
		t.Fatalf("expected same-state retry, got %+v", tr)
	}

	l.retries = 0
	if got := Next(StateSynthesize, EventError, l).To; got != StateFailed {
		t.Fatalf("expected failed once retries exhausted, got %s", got)
	}
}

func TestTerminalStatesAreSticky(t *testing.T) {
	l := &ledger{calls: 5, retries: 5}
	for _, s := range []State{StateFinalize, StateBudgetLimited, StateFailed} {
		if got := Next(s, EventOK, l).To; got != s {
			t.Errorf("%s must stay terminal, got %s", s, got)
		}
	}
}
