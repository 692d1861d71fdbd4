package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/Conductor/internal/domain"
	"github.com/Strob0t/Conductor/internal/domain/negotiation"
	"github.com/Strob0t/Conductor/internal/domain/task"
	"github.com/Strob0t/Conductor/internal/port/messagequeue"
)

func newNegotiationFixture() (*NegotiationService, *mockStore, *mockQueue, *fixedClock) {
	cfg := testConfig()
	clock := newClock()
	store := newMockStore()
	store.now = clock.Now
	queue := &mockQueue{}
	svc := NewNegotiationService(store, queue, cfg.Negotiation, &cfg.Budgets, nil, clock.Now)
	return svc, store, queue, clock
}

func openRequest() *negotiation.CreateRequest {
	return &negotiation.CreateRequest{
		RequestingAgent: "writer",
		RespondingAgent: "analyst",
		RequestSummary:  "need more sources on topic X",
		QualityCriteria: "three independent sources",
	}
}

func TestNegotiationCreate(t *testing.T) {
	svc, store, queue, _ := newNegotiationFixture()

	n, err := svc.Create(context.Background(), openRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Status != negotiation.StatusOpen || n.Round != 1 {
		t.Fatalf("expected open round 1, got %s round %d", n.Status, n.Round)
	}
	reqs := store.tasksOfType(task.TypeNegotiationRequest)
	if len(reqs) != 1 {
		t.Fatalf("expected one negotiation_request task, got %d", len(reqs))
	}
	if reqs[0].AssignedTo != "analyst" || reqs[0].CreatedBy != "writer" {
		t.Fatalf("unexpected request task routing: %+v", reqs[0])
	}
	p := reqs[0].Input.Payload.(*task.NegotiationRequestPayload)
	if p.NegotiationID != n.ID || p.Round != 1 {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if queue.count(messagequeue.SubjectNegotiationUpdated) != 1 {
		t.Fatal("expected negotiation update to be published")
	}
}

func TestNegotiationCreatePairNotAllowed(t *testing.T) {
	svc, store, _, _ := newNegotiationFixture()

	req := openRequest()
	req.RequestingAgent, req.RespondingAgent = "analyst", "writer"
	_, err := svc.Create(context.Background(), req)
	if !errors.Is(err, negotiation.ErrPairNotAllowed) {
		t.Fatalf("expected ErrPairNotAllowed, got %v", err)
	}
	if !IsNegotiationRejection(err) {
		t.Fatal("pair rejection should count as a refusal")
	}
	if len(store.negotiations) != 0 || len(store.tasks) != 0 {
		t.Fatal("rejected negotiation must not write anything")
	}
}

func TestNegotiationCreateTooManyActive(t *testing.T) {
	svc, _, _, _ := newNegotiationFixture()
	ctx := context.Background()

	for i := range 3 {
		if _, err := svc.Create(ctx, openRequest()); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := svc.Create(ctx, openRequest()); !errors.Is(err, negotiation.ErrTooManyActive) {
		t.Fatalf("expected ErrTooManyActive, got %v", err)
	}
}

func TestNegotiationRespondCriteriaMetCloses(t *testing.T) {
	svc, store, _, _ := newNegotiationFixture()
	ctx := context.Background()

	n, err := svc.Create(ctx, openRequest())
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Respond(ctx, n.ID, 1, "found three sources", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != negotiation.StatusClosed || got.ClosedAt == nil {
		t.Fatalf("expected closed, got %s", got.Status)
	}
	resp := store.tasksOfType(task.TypeNegotiationResponse)
	if len(resp) != 1 || resp[0].AssignedTo != "writer" {
		t.Fatalf("expected a response task for the requester, got %+v", resp)
	}
	if got.ResponseTaskID == nil || *got.ResponseTaskID != resp[0].ID {
		t.Fatal("response task is not linked")
	}
}

func TestNegotiationRespondFollowUpThenClose(t *testing.T) {
	svc, store, _, _ := newNegotiationFixture()
	ctx := context.Background()

	n, err := svc.Create(ctx, openRequest())
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Respond(ctx, n.ID, 1, "only one source", false)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != negotiation.StatusFollowUp || got.Round != 2 {
		t.Fatalf("expected follow_up round 2, got %s round %d", got.Status, got.Round)
	}
	reqs := store.tasksOfType(task.TypeNegotiationRequest)
	if len(reqs) != 2 {
		t.Fatalf("expected a follow-up request task, got %d", len(reqs))
	}
	p := reqs[1].Input.Payload.(*task.NegotiationRequestPayload)
	if p.Round != 2 || p.PreviousResponse != "only one source" {
		t.Fatalf("unexpected follow-up payload: %+v", p)
	}

	// Round cap reached: unmet criteria still close.
	got, err = svc.Respond(ctx, n.ID, 2, "still one source", false)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != negotiation.StatusClosed || got.CriteriaMet {
		t.Fatalf("expected closed with criteria unmet, got %s met=%v", got.Status, got.CriteriaMet)
	}
}

func TestNegotiationRespondClosedIsInvalid(t *testing.T) {
	svc, _, _, _ := newNegotiationFixture()
	ctx := context.Background()

	n, err := svc.Create(ctx, openRequest())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Respond(ctx, n.ID, 0, "done", true); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Respond(ctx, n.ID, 0, "again", true); !errors.Is(err, negotiation.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestNegotiationRespondStaleRoundConflicts(t *testing.T) {
	svc, store, _, _ := newNegotiationFixture()
	ctx := context.Background()

	n, err := svc.Create(ctx, openRequest())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Respond(ctx, n.ID, 1, "thin", false); err != nil {
		t.Fatal(err)
	}
	// A late answer to round 1 must not settle round 2.
	if _, err := svc.Respond(ctx, n.ID, 1, "late round one", true); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, err := svc.Get(ctx, n.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != negotiation.StatusFollowUp || got.Round != 2 || got.ResponseSummary != "thin" {
		t.Fatalf("round 2 was disturbed: %s round %d summary %q", got.Status, got.Round, got.ResponseSummary)
	}
	if len(store.tasksOfType(task.TypeNegotiationResponse)) != 0 {
		t.Fatal("no response task may be spawned by a stale answer")
	}
}

func TestNegotiationRespondIsOneTransition(t *testing.T) {
	svc, store, _, _ := newNegotiationFixture()
	ctx := context.Background()

	n, err := svc.Create(ctx, openRequest())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Respond(ctx, n.ID, 0, "only one source", false); err != nil {
		t.Fatal(err)
	}
	if store.transitions != 1 {
		t.Fatalf("expected one compare-and-set write, got %d", store.transitions)
	}
	stored := store.negotiations[n.ID]
	if stored.Status != negotiation.StatusFollowUp || stored.ResponseSummary != "only one source" {
		t.Fatalf("answer and advance must land together, got %s %q", stored.Status, stored.ResponseSummary)
	}
}

func TestNegotiationRespondNotFound(t *testing.T) {
	svc, _, _, _ := newNegotiationFixture()
	if _, err := svc.Respond(context.Background(), "missing", 0, "x", true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNegotiationCheckTimeouts(t *testing.T) {
	svc, _, _, clock := newNegotiationFixture()
	ctx := context.Background()

	n, err := svc.Create(ctx, openRequest())
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(30 * time.Minute)
	if count, err := svc.CheckTimeouts(ctx); err != nil || count != 0 {
		t.Fatalf("expected nothing to time out yet, got %d %v", count, err)
	}

	clock.Advance(31 * time.Minute)
	count, err := svc.CheckTimeouts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 timeout, got %d", count)
	}
	got, _ := svc.Get(ctx, n.ID)
	if got.Status != negotiation.StatusTimedOut {
		t.Fatalf("expected timed_out, got %s", got.Status)
	}
	active, _ := svc.ListActive(ctx, "writer")
	if len(active) != 0 {
		t.Fatalf("timed out negotiation still active: %+v", active)
	}
}
