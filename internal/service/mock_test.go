package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Conductor/internal/config"
	"github.com/Strob0t/Conductor/internal/domain"
	"github.com/Strob0t/Conductor/internal/domain/anomaly"
	"github.com/Strob0t/Conductor/internal/domain/budget"
	"github.com/Strob0t/Conductor/internal/domain/negotiation"
	"github.com/Strob0t/Conductor/internal/domain/selection"
	"github.com/Strob0t/Conductor/internal/domain/task"
	"github.com/Strob0t/Conductor/internal/port/database"
	"github.com/Strob0t/Conductor/internal/port/messagequeue"
	"github.com/Strob0t/Conductor/internal/port/reasoning"
)

var _ database.Store = (*mockStore)(nil)

// mockStore is an in-memory database.Store with the same visible semantics
// as the Postgres adapter.
type mockStore struct {
	mu           sync.Mutex
	tasks        map[string]*task.Task
	order        []string
	usage        map[string]*budget.DailyUsage
	negotiations map[string]*negotiation.Negotiation
	scans        []anomaly.Scan
	now          func() time.Time
	transitions  int
	released     []string

	createErr error
	claimErr  error
}

func newMockStore() *mockStore {
	return &mockStore{
		tasks:        make(map[string]*task.Task),
		usage:        make(map[string]*budget.DailyUsage),
		negotiations: make(map[string]*negotiation.Negotiation),
		now:          time.Now,
	}
}

func (m *mockStore) insertTask(req *task.CreateRequest) *task.Task {
	t := &task.Task{
		ID:         uuid.NewString(),
		Type:       req.Type,
		AssignedTo: req.AssignedTo,
		CreatedBy:  req.CreatedBy,
		Status:     task.StatusPending,
		Priority:   req.Priority,
		Input:      req.Input,
		CreatedAt:  m.now(),
	}
	m.tasks[t.ID] = t
	m.order = append(m.order, t.ID)
	return t
}

func (m *mockStore) CreateTask(_ context.Context, req *task.CreateRequest) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	cp := *m.insertTask(req)
	return &cp, nil
}

func (m *mockStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) ListTasks(_ context.Context, agent string, status task.Status, limit int) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []task.Task
	for _, id := range m.order {
		t := m.tasks[id]
		if t.AssignedTo == agent && (status == "" || t.Status == status) {
			out = append(out, *t)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) ClaimTasks(_ context.Context, agent, workerID string, limit int) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	var pending []*task.Task
	for _, id := range m.order {
		if t := m.tasks[id]; t.AssignedTo == agent && t.Status == task.StatusPending {
			pending = append(pending, t)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Priority < pending[j].Priority })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	out := make([]task.Task, 0, len(pending))
	now := m.now()
	for _, t := range pending {
		t.Status = task.StatusInProgress
		t.ClaimedBy = workerID
		t.StartedAt = &now
		out = append(out, *t)
	}
	return out, nil
}

func (m *mockStore) ReleaseTasks(_ context.Context, workerID string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		t, ok := m.tasks[id]
		if !ok || t.Status != task.StatusInProgress || t.ClaimedBy != workerID {
			continue
		}
		t.Status = task.StatusPending
		t.ClaimedBy = ""
		t.StartedAt = nil
		m.released = append(m.released, id)
		n++
	}
	return n, nil
}

func (m *mockStore) finish(id string, status task.Status, output json.RawMessage, msg string) (*task.Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	if t.Status.IsTerminal() {
		cp := *t
		return &cp, false, nil
	}
	if status == task.StatusCompleted && t.Status != task.StatusInProgress {
		return nil, false, domain.ErrConflict
	}
	now := m.now()
	t.Status = status
	t.Output = output
	t.ErrorMessage = msg
	t.CompletedAt = &now
	cp := *t
	return &cp, true, nil
}

func (m *mockStore) CompleteTask(_ context.Context, id string, output json.RawMessage) (*task.Task, bool, error) {
	return m.finish(id, task.StatusCompleted, output, "")
}

func (m *mockStore) FailTask(_ context.Context, id, message string) (*task.Task, bool, error) {
	return m.finish(id, task.StatusFailed, nil, message)
}

func (m *mockStore) SweepStaleTasks(_ context.Context, defaultMaxSeconds int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	now := m.now()
	for _, id := range m.order {
		t := m.tasks[id]
		if t.Status != task.StatusInProgress || t.StartedAt == nil {
			continue
		}
		limit := t.Input.Budget.MaxSeconds
		if limit == 0 {
			limit = defaultMaxSeconds
		}
		if now.Sub(*t.StartedAt) > 2*time.Duration(limit)*time.Second {
			t.Status = task.StatusFailed
			t.ErrorMessage = task.ErrStaleTimeout
			t.CompletedAt = &now
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func usageKey(agent string, day time.Time) string {
	return agent + "|" + day.Format(time.DateOnly)
}

func (m *mockStore) GetDailyUsage(_ context.Context, agent string, day time.Time) (*budget.DailyUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.usage[usageKey(agent, day)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockStore) IncrementDailyUsage(_ context.Context, agent string, day time.Time, inc budget.Increment) (*budget.DailyUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := usageKey(agent, day)
	u, ok := m.usage[k]
	if !ok {
		u = &budget.DailyUsage{AgentName: agent, Date: day}
		m.usage[k] = u
	}
	u.LLMCallsUsed += inc.LLMCalls
	u.SubtasksCreated += inc.Subtasks
	u.ProactiveAlertsSent += inc.Alerts
	u.TotalCostEstimate += inc.Cost
	u.UpdatedAt = m.now()
	cp := *u
	return &cp, nil
}

func (m *mockStore) CreateNegotiation(_ context.Context, n *negotiation.Negotiation, maxActive int, request *task.CreateRequest) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := 0
	for _, existing := range m.negotiations {
		if existing.RequestingAgent == n.RequestingAgent && existing.Status.IsActive() {
			active++
		}
	}
	if active >= maxActive {
		return nil, negotiation.ErrTooManyActive
	}
	t := m.insertTask(request)
	n.RequestTaskID = &t.ID
	cp := *n
	m.negotiations[n.ID] = &cp
	out := *t
	return &out, nil
}

func (m *mockStore) GetNegotiation(_ context.Context, id string) (*negotiation.Negotiation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.negotiations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *mockStore) ListActiveNegotiations(_ context.Context, requester string) ([]negotiation.Negotiation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []negotiation.Negotiation
	for _, n := range m.negotiations {
		if n.RequestingAgent == requester && n.Status.IsActive() {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *mockStore) TransitionNegotiation(_ context.Context, n *negotiation.Negotiation, from negotiation.Status, fromRound int, spawn *task.CreateRequest) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.negotiations[n.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if cur.Status != from || cur.Round != fromRound {
		return nil, domain.ErrConflict
	}
	m.transitions++
	var spawned *task.Task
	if spawn != nil {
		spawned = m.insertTask(spawn)
		switch n.Status {
		case negotiation.StatusFollowUp:
			n.FollowUpTaskID = &spawned.ID
		case negotiation.StatusClosed:
			n.ResponseTaskID = &spawned.ID
		}
	}
	cp := *n
	m.negotiations[n.ID] = &cp
	if spawned == nil {
		return nil, nil
	}
	out := *spawned
	return &out, nil
}

func (m *mockStore) TimeOutNegotiations(_ context.Context, cutoff time.Time) ([]negotiation.Negotiation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []negotiation.Negotiation
	for _, n := range m.negotiations {
		if n.Status.Unsettled() && n.UpdatedAt.Before(cutoff) {
			if err := n.TimeOut(m.now()); err != nil {
				return nil, err
			}
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *mockStore) RecordScan(_ context.Context, s *anomaly.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.scans = append(m.scans, *s)
	return nil
}

func (m *mockStore) LatestPerformedScan(_ context.Context) (*anomaly.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.scans) - 1; i >= 0; i-- {
		if m.scans[i].Performed() {
			cp := m.scans[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) tasksOfType(typ task.Type) []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []task.Task
	for _, id := range m.order {
		if t := m.tasks[id]; t.Type == typ {
			out = append(out, *t)
		}
	}
	return out
}

// mockQueue records published messages.
type mockQueue struct {
	mu         sync.Mutex
	subjects   []string
	published  [][]byte
	publishErr error
}

var _ messagequeue.Queue = (*mockQueue)(nil)

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.subjects = append(q.subjects, subject)
	q.published = append(q.published, data)
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) count(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, s := range q.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

// fakeReasoner answers each stage from a script keyed by stage. A stage
// with several scripted responses consumes them in order; the last one
// repeats.
type fakeReasoner struct {
	mu     sync.Mutex
	script map[string][]fakeReply
	calls  []reasoning.Request
	panics bool
}

type fakeReply struct {
	resp *reasoning.Response
	err  error
}

func (f *fakeReasoner) Complete(_ context.Context, req *reasoning.Request) (*reasoning.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("reasoner exploded")
	}
	f.calls = append(f.calls, *req)
	replies := f.script[string(req.Stage)]
	if len(replies) == 0 {
		approved := req.Stage == "critique"
		return &reasoning.Response{Output: json.RawMessage(`{"stage":"` + string(req.Stage) + `"}`), Approved: approved}, nil
	}
	r := replies[0]
	if len(replies) > 1 {
		f.script[string(req.Stage)] = replies[1:]
	}
	return r.resp, r.err
}

func (f *fakeReasoner) stages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, string(c.Stage))
	}
	return out
}

// mockMetrics serves fixed aggregates for the recent and baseline windows.
type mockMetrics struct {
	recent   anomaly.Aggregate
	baseline anomaly.Aggregate
	calls    int
	err      error
}

func (m *mockMetrics) Aggregate(_ context.Context, w anomaly.Window) (*anomaly.Aggregate, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if w.Hours() <= 1 {
		a := m.recent
		a.Window = w
		return &a, nil
	}
	a := m.baseline
	a.Window = w
	return &a, nil
}

// mockTopics is an in-memory topicsource.Source.
type mockTopics struct {
	cycle     int
	cands     []selection.Candidate
	recorded  []string
	recordErr error
}

func (m *mockTopics) Candidates(_ context.Context, limit int) ([]selection.Candidate, error) {
	if len(m.cands) > limit {
		return m.cands[:limit], nil
	}
	return m.cands, nil
}

func (m *mockTopics) NextCycle(_ context.Context) (int, error) { return m.cycle, nil }

func (m *mockTopics) RecordSelection(_ context.Context, _ *selection.Decision, taskID string) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.recorded = append(m.recorded, taskID)
	return nil
}

var errBoom = errors.New("boom")

// testConfig returns defaults with one allowed negotiation pair.
func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Negotiation.AllowedPairs = map[string][]string{"writer": {"analyst"}}
	return &cfg
}

// fixedClock returns a controllable clock.
type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time          { return c.t }
func (c *fixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fixedClock {
	return &fixedClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}
