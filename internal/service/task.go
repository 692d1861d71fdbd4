package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/Conductor/internal/config"
	"github.com/Strob0t/Conductor/internal/domain"
	"github.com/Strob0t/Conductor/internal/domain/task"
	"github.com/Strob0t/Conductor/internal/port/database"
	"github.com/Strob0t/Conductor/internal/port/messagequeue"
)

// DefaultListLimit caps ListByStatus when no limit is given.
const DefaultListLimit = 100

// TaskService is the shared work queue: enqueue, claim and finish tasks.
type TaskService struct {
	store   database.TaskStore
	queue   messagequeue.Queue
	budgets *config.Budgets
}

// NewTaskService creates a new TaskService. queue may be nil.
func NewTaskService(store database.TaskStore, queue messagequeue.Queue, budgets *config.Budgets) *TaskService {
	return &TaskService{store: store, queue: queue, budgets: budgets}
}

// Enqueue validates req, stamps its budget from configuration when the
// input carries none, stores it as pending and publishes a wakeup.
func (s *TaskService) Enqueue(ctx context.Context, req *task.CreateRequest) (*task.Task, error) {
	if req.Input.Budget.IsZero() {
		req.Input.Budget = s.budgets.For(req.AssignedTo, string(req.Type))
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t, err := s.store.CreateTask(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s for %s: %w", req.Type, req.AssignedTo, err)
	}
	slog.Info("task enqueued", "task_id", t.ID, "task_type", t.Type, "agent", t.AssignedTo, "priority", t.Priority)

	publish(ctx, s.queue, messagequeue.TaskCreatedSubject(t.AssignedTo), messagequeue.TaskCreatedPayload{
		TaskID:     t.ID,
		TaskType:   string(t.Type),
		AssignedTo: t.AssignedTo,
		Priority:   t.Priority,
	})
	return t, nil
}

// Claim atomically takes up to limit pending tasks of agent.
func (s *TaskService) Claim(ctx context.Context, agent, workerID string, limit int) ([]task.Task, error) {
	if limit < 1 {
		limit = 1
	}
	return s.store.ClaimTasks(ctx, agent, workerID, limit)
}

// Release returns claimed tasks the worker will not run to pending.
func (s *TaskService) Release(ctx context.Context, workerID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.store.ReleaseTasks(ctx, workerID, ids)
}

// Complete marks a task completed with output. Completing a terminal task
// is a no-op that returns the stored task.
func (s *TaskService) Complete(ctx context.Context, id string, output json.RawMessage) (*task.Task, error) {
	if len(output) > 0 && !json.Valid(output) {
		return nil, fmt.Errorf("%w: output is not valid JSON", domain.ErrValidation)
	}
	t, changed, err := s.store.CompleteTask(ctx, id, output)
	if err != nil {
		return nil, err
	}
	if changed {
		var out struct {
			BudgetLimited bool `json:"budget_limited"`
		}
		_ = json.Unmarshal(output, &out)
		s.finished(ctx, t, out.BudgetLimited)
	}
	return t, nil
}

// Fail marks a task failed. Failing a terminal task is a no-op.
func (s *TaskService) Fail(ctx context.Context, id, message string) (*task.Task, error) {
	t, changed, err := s.store.FailTask(ctx, id, message)
	if err != nil {
		return nil, err
	}
	if changed {
		s.finished(ctx, t, false)
	}
	return t, nil
}

func (s *TaskService) finished(ctx context.Context, t *task.Task, budgetLimited bool) {
	publish(ctx, s.queue, messagequeue.TaskFinishedSubject(t.AssignedTo), messagequeue.TaskFinishedPayload{
		TaskID:        t.ID,
		TaskType:      string(t.Type),
		AssignedTo:    t.AssignedTo,
		Status:        string(t.Status),
		BudgetLimited: budgetLimited,
		Error:         t.ErrorMessage,
	})
}

// SweepStale force-fails in_progress tasks that outlived twice their budget.
func (s *TaskService) SweepStale(ctx context.Context) ([]string, error) {
	ids, err := s.store.SweepStaleTasks(ctx, s.budgets.Global.DefaultMaxSeconds)
	if err != nil {
		return nil, fmt.Errorf("sweep stale tasks: %w", err)
	}
	for _, id := range ids {
		slog.Warn("stale task failed", "task_id", id, "reason", task.ErrStaleTimeout)
	}
	return ids, nil
}

// Get returns a task by ID.
func (s *TaskService) Get(ctx context.Context, id string) (*task.Task, error) {
	return s.store.GetTask(ctx, id)
}

// ListByStatus returns tasks of agent, optionally filtered by status.
func (s *TaskService) ListByStatus(ctx context.Context, agent string, status task.Status, limit int) ([]task.Task, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return s.store.ListTasks(ctx, agent, status, limit)
}
