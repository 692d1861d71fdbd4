package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Strob0t/Conductor/internal/domain"
	"github.com/Strob0t/Conductor/internal/domain/task"
)

const taskColumns = `id, task_type, assigned_to, created_by, status, priority, input_data, output_data,
	COALESCE(error_message, ''), COALESCE(claimed_by, ''), created_at, started_at, completed_at`

func scanTask(row scannable) (task.Task, error) {
	var (
		t             task.Task
		input, output []byte
	)
	err := row.Scan(&t.ID, &t.Type, &t.AssignedTo, &t.CreatedBy, &t.Status, &t.Priority,
		&input, &output, &t.ErrorMessage, &t.ClaimedBy, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
	if err != nil {
		return t, err
	}
	in, err := task.DecodeInput(t.Type, input)
	if err != nil {
		return t, fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.Input = in
	if len(output) > 0 {
		t.Output = json.RawMessage(output)
	}
	return t, nil
}

func scanTasks(rows interface {
	scannable
	Next() bool
	Err() error
}) ([]task.Task, error) {
	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func createTask(ctx context.Context, q querier, req *task.CreateRequest) (*task.Task, error) {
	input, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("marshal input_data: %w", err)
	}
	row := q.QueryRow(ctx,
		`INSERT INTO tasks (task_type, assigned_to, created_by, priority, input_data)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+taskColumns,
		string(req.Type), req.AssignedTo, req.CreatedBy, req.Priority, input)
	t, err := scanTask(row)
	if err != nil {
		return nil, dbErr(err, "insert task")
	}
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, req *task.CreateRequest) (*task.Task, error) {
	return createTask(ctx, s.pool, req)
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	if !validID(id) {
		return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
	}
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, dbErr(err, "get task %s", id)
	}
	return &t, nil
}

// ListTasks returns the newest tasks of agent. An empty status lists all.
func (s *Store) ListTasks(ctx context.Context, agent string, status task.Status, limit int) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE assigned_to = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC
		 LIMIT $3`,
		agent, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	return orEmpty(tasks), nil
}

// ClaimTasks moves up to limit pending tasks to in_progress in one statement.
// SKIP LOCKED lets concurrent claimers pass over rows another transaction is
// claiming, so each row is returned to exactly one caller.
func (s *Store) ClaimTasks(ctx context.Context, agent, workerID string, limit int) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE tasks SET status = 'in_progress', started_at = now(), claimed_by = $2
		 WHERE id IN (
			SELECT id FROM tasks
			WHERE status = 'pending' AND assigned_to = $1
			ORDER BY priority ASC, created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+taskColumns,
		agent, workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("claim tasks: %w", err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery order.
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// ReleaseTasks hands claimed tasks back to the queue. Rows another worker
// now owns, or that already finished, are left alone.
func (s *Store) ReleaseTasks(ctx context.Context, workerID string, ids []string) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = 'pending', started_at = NULL, claimed_by = NULL
		 WHERE id = ANY($1::uuid[]) AND status = 'in_progress' AND claimed_by = $2`,
		valid, workerID)
	if err != nil {
		return 0, fmt.Errorf("release tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) CompleteTask(ctx context.Context, id string, output json.RawMessage) (*task.Task, bool, error) {
	return s.finishTask(ctx, id,
		`UPDATE tasks SET status = 'completed', output_data = $2, completed_at = now()
		 WHERE id = $1 AND status = 'in_progress'
		 RETURNING `+taskColumns,
		[]byte(output))
}

func (s *Store) FailTask(ctx context.Context, id, message string) (*task.Task, bool, error) {
	return s.finishTask(ctx, id,
		`UPDATE tasks SET status = 'failed', error_message = $2, completed_at = now()
		 WHERE id = $1 AND status IN ('pending', 'in_progress')
		 RETURNING `+taskColumns,
		message)
}

// finishTask runs a terminal transition. A task that is already terminal is
// returned unchanged; one the statement could not move is a conflict.
func (s *Store) finishTask(ctx context.Context, id, query string, arg any) (*task.Task, bool, error) {
	if !validID(id) {
		return nil, false, fmt.Errorf("finish task %s: %w", id, domain.ErrNotFound)
	}
	t, err := scanTask(s.pool.QueryRow(ctx, query, id, arg))
	if err == nil {
		return &t, true, nil
	}
	if err = dbErr(err, "finish task %s", id); !isNotFound(err) {
		return nil, false, err
	}

	current, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !current.Status.IsTerminal() {
		return nil, false, fmt.Errorf("finish task %s from %s: %w", id, current.Status, domain.ErrConflict)
	}
	return current, false, nil
}

// SweepStaleTasks fails in_progress tasks whose run exceeded twice their own
// max_seconds budget.
func (s *Store) SweepStaleTasks(ctx context.Context, defaultMaxSeconds int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE tasks SET status = 'failed', error_message = $1, completed_at = now()
		 WHERE status = 'in_progress'
		   AND started_at < now() - make_interval(secs => 2 * COALESCE(
				NULLIF((input_data->'budget'->>'max_seconds')::int, 0), $2::int))
		 RETURNING id`,
		task.ErrStaleTimeout, defaultMaxSeconds)
	if err != nil {
		return nil, fmt.Errorf("sweep stale tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale task id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
