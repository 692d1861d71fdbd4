package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Strob0t/Conductor/internal/domain"
	"github.com/Strob0t/Conductor/internal/domain/budget"
	"github.com/Strob0t/Conductor/internal/domain/negotiation"
	"github.com/Strob0t/Conductor/internal/domain/task"
)

// FlagRouter hands the flags raised by a finished execution to the
// components that act on them.
type FlagRouter struct {
	negotiations *NegotiationService
	proactive    *ProactiveScheduler
}

// NewFlagRouter creates a FlagRouter. Either collaborator may be nil.
func NewFlagRouter(negotiations *NegotiationService, proactive *ProactiveScheduler) *FlagRouter {
	return &FlagRouter{negotiations: negotiations, proactive: proactive}
}

// Route acts on res.Flags. Errors are logged; routing never fails the task.
func (r *FlagRouter) Route(ctx context.Context, t *task.Task, b *budget.Budget, res *Result) {
	if n := len(res.Flags.DataRequests); n > 0 {
		// Source material is gathered outside this system; the requests
		// travel in the task output.
		slog.Info("data requested", "count", n)
	}

	if r.negotiations != nil {
		r.answerNegotiation(ctx, t, res)
		r.openNegotiation(ctx, t, b, res)
	}

	if r.proactive != nil && t.Type == task.TypeAnomalyAssessment && res.Flags.Alert != nil {
		if _, err := r.proactive.HandleAssessment(ctx, t, res.Flags.Alert); err != nil {
			slog.Error("alert escalation failed", "error", err)
		}
	}
}

// answerNegotiation records the responder's answer for negotiation_request
// tasks. Without an explicit reply the output is the answer and criteria
// count as met unless the budget cut the work short.
func (r *FlagRouter) answerNegotiation(ctx context.Context, t *task.Task, res *Result) {
	p, ok := t.Input.Payload.(*task.NegotiationRequestPayload)
	if !ok {
		return
	}
	summary, met := string(res.Output), !res.BudgetLimited
	if reply := res.Flags.NegotiationReply; reply != nil {
		summary, met = reply.ResponseSummary, reply.CriteriaMet
	}
	_, err := r.negotiations.Respond(ctx, p.NegotiationID, p.Round, summary, met)
	switch {
	case errors.Is(err, domain.ErrConflict):
		slog.Info("negotiation answer superseded", "negotiation_id", p.NegotiationID, "round", p.Round)
	case err != nil:
		slog.Warn("negotiation response not recorded", "negotiation_id", p.NegotiationID, "error", err)
	}
}

// openNegotiation starts the negotiation a task asked for. It counts as a
// subtask of the requesting task.
func (r *FlagRouter) openNegotiation(ctx context.Context, t *task.Task, b *budget.Budget, res *Result) {
	req := res.Flags.NegotiationRequest
	if req == nil {
		return
	}
	if !b.CanCreateSubtask() {
		slog.Info("negotiation request dropped", "reason", budget.ReasonSubtasks, "responder", req.RespondingAgent)
		return
	}
	n, err := r.negotiations.Create(ctx, &negotiation.CreateRequest{
		RequestingAgent: t.AssignedTo,
		RespondingAgent: req.RespondingAgent,
		RequestSummary:  req.RequestSummary,
		QualityCriteria: req.QualityCriteria,
	})
	if err != nil {
		if IsNegotiationRejection(err) {
			slog.Info("negotiation request rejected", "responder", req.RespondingAgent, "error", err)
		} else {
			slog.Error("negotiation request failed", "responder", req.RespondingAgent, "error", err)
		}
		return
	}
	b.UseSubtask()
	slog.Info("negotiation requested", "negotiation_id", n.ID, "responder", n.RespondingAgent)
}
