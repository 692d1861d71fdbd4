package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	cfotel "github.com/Strob0t/Conductor/internal/adapter/otel"
	"github.com/Strob0t/Conductor/internal/domain/budget"
	domainreasoning "github.com/Strob0t/Conductor/internal/domain/reasoning"
	"github.com/Strob0t/Conductor/internal/domain/task"
	"github.com/Strob0t/Conductor/internal/port/reasoning"
)

// ReasoningExecutor drives the reasoning loop state machine for one task,
// calling the reasoning service once per reasoning stage.
type ReasoningExecutor struct {
	reasoner reasoning.Reasoner
	tel      *cfotel.Metrics
}

// NewReasoningExecutor creates a ReasoningExecutor.
func NewReasoningExecutor(r reasoning.Reasoner, tel *cfotel.Metrics) *ReasoningExecutor {
	return &ReasoningExecutor{reasoner: r, tel: tel}
}

// run is the mutable state of one loop.
type run struct {
	t       *task.Task
	b       *budget.Budget
	input   json.RawMessage
	prior   []reasoning.StageResult
	res     *Result
	lastErr error
}

// Execute runs the loop until a terminal state. A budget-limited loop
// returns its partial output; a failed loop returns the last call error.
func (e *ReasoningExecutor) Execute(ctx context.Context, t *task.Task, b *budget.Budget) (*Result, error) {
	input, err := json.Marshal(t.Input.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	r := &run{t: t, b: b, input: input, res: &Result{}}

	state := domainreasoning.Start(b)
	for !state.IsTerminal() {
		ev := domainreasoning.EventOK
		if state.CallsReasoner() {
			ev = e.step(ctx, r, state)
		}
		tr := domainreasoning.Next(state, ev, b)
		if tr.ConsumesRetry {
			b.UseRetry()
		}
		slog.Debug("reasoning transition", "task_id", t.ID, "from", state, "event", ev, "to", tr.To)
		state = tr.To
	}

	r.res.FinalStage = string(state)
	r.res.Output = r.output()
	switch state {
	case domainreasoning.StateFailed:
		return r.res, fmt.Errorf("reasoning failed: %w", r.lastErr)
	case domainreasoning.StateBudgetLimited:
		r.res.BudgetLimited = true
		r.res.LimitReason = b.ExhaustedReason()
		slog.Info("task budget limited", "task_id", t.ID, "reason", r.res.LimitReason, "stages", len(r.prior))
	}
	return r.res, nil
}

func (e *ReasoningExecutor) step(ctx context.Context, r *run, state domainreasoning.State) domainreasoning.Event {
	ctx, span := cfotel.StartStageSpan(ctx, string(state))
	defer span.End()

	req := &reasoning.Request{
		Stage:     state,
		TaskID:    r.t.ID,
		TaskType:  r.t.Type,
		Agent:     r.t.AssignedTo,
		Input:     r.input,
		Prior:     r.prior,
		Remaining: r.b.Remaining(),
	}
	r.b.UseLLMCall()
	e.tel.LLMCall(ctx, r.t.AssignedTo, string(state))

	resp, err := e.reasoner.Complete(ctx, req)
	if err != nil {
		r.lastErr = err
		slog.Warn("reasoning call failed", "task_id", r.t.ID, "stage", state, "error", err)
		return domainreasoning.EventError
	}

	r.res.CostUSD += resp.Usage.CostUSD
	r.res.Flags.absorb(resp)
	r.prior = append(r.prior, reasoning.StageResult{Stage: state, Output: resp.Output})

	if state == domainreasoning.StateCritique && !resp.Approved {
		return domainreasoning.EventRejected
	}
	return domainreasoning.EventOK
}

// output is the latest synthesis, or the latest stage output when the loop
// stopped before synthesizing.
func (r *run) output() json.RawMessage {
	for i := len(r.prior) - 1; i >= 0; i-- {
		if r.prior[i].Stage == domainreasoning.StateSynthesize {
			return r.prior[i].Output
		}
	}
	if n := len(r.prior); n > 0 {
		return r.prior[n-1].Output
	}
	return nil
}

// absorb keeps every data request and the latest of each other flag.
func (f *Flags) absorb(resp *reasoning.Response) {
	f.DataRequests = append(f.DataRequests, resp.DataRequests...)
	if resp.NegotiationRequest != nil {
		f.NegotiationRequest = resp.NegotiationRequest
	}
	if resp.NegotiationReply != nil {
		f.NegotiationReply = resp.NegotiationReply
	}
	if resp.Alert != nil {
		f.Alert = resp.Alert
	}
}
