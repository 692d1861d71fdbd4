// Package database defines the database store port (interface).
package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Strob0t/Conductor/internal/domain/anomaly"
	"github.com/Strob0t/Conductor/internal/domain/budget"
	"github.com/Strob0t/Conductor/internal/domain/negotiation"
	"github.com/Strob0t/Conductor/internal/domain/task"
)

// Store is the port interface for database operations.
type Store interface {
	TaskStore
	UsageStore
	NegotiationStore
	ScanStore
}

// TaskStore is the shared work queue.
type TaskStore interface {
	CreateTask(ctx context.Context, req *task.CreateRequest) (*task.Task, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context, agent string, status task.Status, limit int) ([]task.Task, error)

	// ClaimTasks atomically moves up to limit pending tasks of agent to
	// in_progress, in (priority, created_at) order. A task is returned to at
	// most one caller.
	ClaimTasks(ctx context.Context, agent, workerID string, limit int) ([]task.Task, error)

	// ReleaseTasks returns in_progress tasks still claimed by workerID to
	// pending and reports how many moved.
	ReleaseTasks(ctx context.Context, workerID string, ids []string) (int, error)

	// CompleteTask and FailTask return changed=false without error when the
	// task is already terminal. Only an in_progress task can complete; a
	// pending one yields domain.ErrConflict.
	CompleteTask(ctx context.Context, id string, output json.RawMessage) (t *task.Task, changed bool, err error)
	FailTask(ctx context.Context, id, message string) (t *task.Task, changed bool, err error)

	// SweepStaleTasks fails in_progress tasks running longer than twice their
	// own max_seconds (defaultMaxSeconds when unset) and returns their ids.
	SweepStaleTasks(ctx context.Context, defaultMaxSeconds int) ([]string, error)
}

// UsageStore holds the per-agent daily counters.
type UsageStore interface {
	// GetDailyUsage returns domain.ErrNotFound when no row exists yet.
	GetDailyUsage(ctx context.Context, agent string, day time.Time) (*budget.DailyUsage, error)
	IncrementDailyUsage(ctx context.Context, agent string, day time.Time, inc budget.Increment) (*budget.DailyUsage, error)
}

// NegotiationStore persists negotiations together with the tasks they spawn.
type NegotiationStore interface {
	// CreateNegotiation inserts n and its request task in one transaction,
	// serialized per requester. It returns negotiation.ErrTooManyActive when
	// the requester already holds maxActive active negotiations.
	CreateNegotiation(ctx context.Context, n *negotiation.Negotiation, maxActive int, request *task.CreateRequest) (*task.Task, error)
	GetNegotiation(ctx context.Context, id string) (*negotiation.Negotiation, error)
	ListActiveNegotiations(ctx context.Context, requester string) ([]negotiation.Negotiation, error)

	// TransitionNegotiation writes n only if the stored row still has
	// (from, fromRound), else domain.ErrConflict. A non-nil spawn is
	// created in the same transaction and linked as follow_up_task_id when n
	// is in follow_up, or as response_task_id when n is closed.
	TransitionNegotiation(ctx context.Context, n *negotiation.Negotiation, from negotiation.Status, fromRound int, spawn *task.CreateRequest) (*task.Task, error)

	// TimeOutNegotiations moves unsettled negotiations (active, or responded
	// but never advanced) not updated since before cutoff to timed_out and
	// returns them.
	TimeOutNegotiations(ctx context.Context, cutoff time.Time) ([]negotiation.Negotiation, error)
}

// ScanStore keeps the proactive scan history.
type ScanStore interface {
	// RecordScan inserts s. A preset s.ID is kept, otherwise one is generated.
	RecordScan(ctx context.Context, s *anomaly.Scan) error
	// LatestPerformedScan returns domain.ErrNotFound when no scan has run.
	LatestPerformedScan(ctx context.Context) (*anomaly.Scan, error)
}
