package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/Strob0t/Conductor/internal/adapter/otel"
	"github.com/Strob0t/Conductor/internal/config"
	"github.com/Strob0t/Conductor/internal/domain"
	"github.com/Strob0t/Conductor/internal/domain/negotiation"
	"github.com/Strob0t/Conductor/internal/domain/task"
	"github.com/Strob0t/Conductor/internal/port/database"
	"github.com/Strob0t/Conductor/internal/port/messagequeue"
)

// negotiationPriority puts negotiation tasks ahead of routine work so a
// waiting requester is unblocked quickly.
const negotiationPriority = 5

// NegotiationService runs the bounded request/response protocol between
// agent roles.
type NegotiationService struct {
	store   database.NegotiationStore
	queue   messagequeue.Queue
	cfg     negotiation.Config
	budgets *config.Budgets
	tel     *cfotel.Metrics
	now     func() time.Time
}

// NewNegotiationService creates a NegotiationService.
func NewNegotiationService(
	store database.NegotiationStore,
	queue messagequeue.Queue,
	cfg negotiation.Config,
	budgets *config.Budgets,
	tel *cfotel.Metrics,
	now func() time.Time,
) *NegotiationService {
	if now == nil {
		now = time.Now
	}
	return &NegotiationService{store: store, queue: queue, cfg: cfg, budgets: budgets, tel: tel, now: now}
}

// Create opens a negotiation and its negotiation_request task for the
// responder. Disallowed pairs are rejected before anything is written.
func (s *NegotiationService) Create(ctx context.Context, req *negotiation.CreateRequest) (*negotiation.Negotiation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !s.cfg.PairAllowed(req.RequestingAgent, req.RespondingAgent) {
		return nil, fmt.Errorf("%s -> %s: %w", req.RequestingAgent, req.RespondingAgent, negotiation.ErrPairNotAllowed)
	}

	n := negotiation.New(req, s.now())
	n.ID = uuid.NewString()

	spawn, err := s.requestTask(n)
	if err != nil {
		return nil, err
	}
	t, err := s.store.CreateNegotiation(ctx, n, s.cfg.MaxActiveNegotiationsPerAgent, spawn)
	if err != nil {
		return nil, fmt.Errorf("create negotiation: %w", err)
	}

	slog.Info("negotiation opened", "negotiation_id", n.ID, "requester", n.RequestingAgent,
		"responder", n.RespondingAgent, "task_id", t.ID)
	s.tel.Negotiation(ctx, string(n.Status), 1)
	s.announce(ctx, n, t)
	return n, nil
}

// Respond records the responder's answer to round. The negotiation then
// either goes another round (criteria unmet and rounds left) or closes and
// hands the answer back to the requester. The answer, the new status and
// the spawned task commit in one compare-and-set, so a crash cannot leave
// the row half advanced. round 0 answers the current round; any other value
// that is not the current round returns domain.ErrConflict.
func (s *NegotiationService) Respond(ctx context.Context, id string, round int, summary string, criteriaMet bool) (*negotiation.Negotiation, error) {
	n, err := s.store.GetNegotiation(ctx, id)
	if err != nil {
		return nil, err
	}
	if round != 0 && round != n.Round {
		return nil, fmt.Errorf("answer to round %d of negotiation %s, now in round %d: %w", round, id, n.Round, domain.ErrConflict)
	}

	from, fromRound := n.Status, n.Round
	if err := n.MarkResponded(summary, criteriaMet, s.now()); err != nil {
		return nil, err
	}

	var spawn *task.CreateRequest
	if n.WantsFollowUp(s.cfg.MaxRoundsPerNegotiation) {
		// The store links the spawned task id.
		if err := n.FollowUp("", s.cfg.MaxRoundsPerNegotiation, s.now()); err != nil {
			return nil, err
		}
		if spawn, err = s.requestTask(n); err != nil {
			return nil, err
		}
	} else {
		if err := n.Close(nil, s.now()); err != nil {
			return nil, err
		}
		spawn = s.responseTask(n)
	}

	t, err := s.store.TransitionNegotiation(ctx, n, from, fromRound, spawn)
	if err != nil {
		return nil, fmt.Errorf("record response: %w", err)
	}

	slog.Info("negotiation advanced", "negotiation_id", n.ID, "status", n.Status, "round", n.Round,
		"criteria_met", criteriaMet, "task_id", t.ID)
	s.tel.Negotiation(ctx, string(n.Status), 1)
	s.announce(ctx, n, t)
	return n, nil
}

// CheckTimeouts moves active negotiations that waited longer than the
// configured timeout since their last transition to timed_out.
func (s *NegotiationService) CheckTimeouts(ctx context.Context) (int, error) {
	expired, err := s.store.TimeOutNegotiations(ctx, s.now().Add(-s.cfg.Timeout()))
	if err != nil {
		return 0, fmt.Errorf("time out negotiations: %w", err)
	}
	for i := range expired {
		n := &expired[i]
		slog.Warn("negotiation timed out", "negotiation_id", n.ID, "requester", n.RequestingAgent,
			"responder", n.RespondingAgent, "round", n.Round)
		s.announce(ctx, n, nil)
	}
	s.tel.Negotiation(ctx, string(negotiation.StatusTimedOut), len(expired))
	return len(expired), nil
}

// Get returns a negotiation by ID.
func (s *NegotiationService) Get(ctx context.Context, id string) (*negotiation.Negotiation, error) {
	return s.store.GetNegotiation(ctx, id)
}

// ListActive returns the open and follow_up negotiations of requester.
func (s *NegotiationService) ListActive(ctx context.Context, requester string) ([]negotiation.Negotiation, error) {
	return s.store.ListActiveNegotiations(ctx, requester)
}

func (s *NegotiationService) requestTask(n *negotiation.Negotiation) (*task.CreateRequest, error) {
	req := &task.CreateRequest{
		Type:       task.TypeNegotiationRequest,
		AssignedTo: n.RespondingAgent,
		CreatedBy:  n.RequestingAgent,
		Priority:   negotiationPriority,
		Input: task.Input{
			Budget: s.budgets.For(n.RespondingAgent, string(task.TypeNegotiationRequest)),
			Payload: &task.NegotiationRequestPayload{
				NegotiationID:    n.ID,
				Round:            n.Round,
				RequestingAgent:  n.RequestingAgent,
				RequestSummary:   n.RequestSummary,
				QualityCriteria:  n.QualityCriteria,
				NeededBy:         n.NeededBy,
				PreviousResponse: n.ResponseSummary,
			},
		},
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("negotiation request task: %w", err)
	}
	return req, nil
}

func (s *NegotiationService) responseTask(n *negotiation.Negotiation) *task.CreateRequest {
	return &task.CreateRequest{
		Type:       task.TypeNegotiationResponse,
		AssignedTo: n.RequestingAgent,
		CreatedBy:  n.RespondingAgent,
		Priority:   negotiationPriority,
		Input: task.Input{
			Budget: s.budgets.For(n.RequestingAgent, string(task.TypeNegotiationResponse)),
			Payload: &task.NegotiationResponsePayload{
				NegotiationID:   n.ID,
				Round:           n.Round,
				RespondingAgent: n.RespondingAgent,
				ResponseSummary: n.ResponseSummary,
				CriteriaMet:     n.CriteriaMet,
			},
		},
	}
}

// announce publishes the status change and, when a task was spawned, its
// wakeup.
func (s *NegotiationService) announce(ctx context.Context, n *negotiation.Negotiation, spawned *task.Task) {
	publish(ctx, s.queue, messagequeue.SubjectNegotiationUpdated, messagequeue.NegotiationUpdatedPayload{
		NegotiationID:   n.ID,
		RequestingAgent: n.RequestingAgent,
		RespondingAgent: n.RespondingAgent,
		Status:          string(n.Status),
		Round:           n.Round,
	})
	if spawned != nil {
		publish(ctx, s.queue, messagequeue.TaskCreatedSubject(spawned.AssignedTo), messagequeue.TaskCreatedPayload{
			TaskID:     spawned.ID,
			TaskType:   string(spawned.Type),
			AssignedTo: spawned.AssignedTo,
			Priority:   spawned.Priority,
		})
	}
}

// IsNegotiationRejection reports whether err is an expected refusal rather
// than a fault.
func IsNegotiationRejection(err error) bool {
	return errors.Is(err, negotiation.ErrPairNotAllowed) ||
		errors.Is(err, negotiation.ErrTooManyActive) ||
		errors.Is(err, domain.ErrValidation)
}
