package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/Conductor/internal/domain"
	"github.com/Strob0t/Conductor/internal/domain/negotiation"
	"github.com/Strob0t/Conductor/internal/domain/task"
)

const negotiationColumns = `id, requesting_agent, responding_agent, status, round,
	request_task_id, response_task_id, follow_up_task_id, request_summary, quality_criteria,
	needed_by, response_summary, criteria_met, created_at, updated_at, closed_at`

func scanNegotiation(row scannable) (negotiation.Negotiation, error) {
	var n negotiation.Negotiation
	err := row.Scan(&n.ID, &n.RequestingAgent, &n.RespondingAgent, &n.Status, &n.Round,
		&n.RequestTaskID, &n.ResponseTaskID, &n.FollowUpTaskID, &n.RequestSummary, &n.QualityCriteria,
		&n.NeededBy, &n.ResponseSummary, &n.CriteriaMet, &n.CreatedAt, &n.UpdatedAt, &n.ClosedAt)
	return n, err
}

// CreateNegotiation takes a transaction-scoped advisory lock keyed on the
// requester, so the active-count check and the insert cannot interleave with
// another create for the same agent.
func (s *Store) CreateNegotiation(ctx context.Context, n *negotiation.Negotiation, maxActive int, request *task.CreateRequest) (*task.Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "negotiation:"+n.RequestingAgent); err != nil {
		return nil, fmt.Errorf("lock requester %s: %w", n.RequestingAgent, err)
	}

	var active int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM negotiations
		 WHERE requesting_agent = $1 AND status IN ('open', 'follow_up')`,
		n.RequestingAgent).Scan(&active); err != nil {
		return nil, fmt.Errorf("count active negotiations: %w", err)
	}
	if active >= maxActive {
		return nil, fmt.Errorf("%s has %d active negotiations: %w", n.RequestingAgent, active, negotiation.ErrTooManyActive)
	}

	t, err := createTask(ctx, tx, request)
	if err != nil {
		return nil, fmt.Errorf("create request task: %w", err)
	}
	n.RequestTaskID = &t.ID

	row := tx.QueryRow(ctx,
		`INSERT INTO negotiations
			(id, requesting_agent, responding_agent, status, round, request_task_id,
			 request_summary, quality_criteria, needed_by, created_at, updated_at)
		 VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+negotiationColumns,
		n.ID, n.RequestingAgent, n.RespondingAgent, string(n.Status), n.Round, n.RequestTaskID,
		n.RequestSummary, n.QualityCriteria, n.NeededBy, n.CreatedAt, n.UpdatedAt)
	created, err := scanNegotiation(row)
	if err != nil {
		return nil, dbErr(err, "insert negotiation")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit negotiation: %w", err)
	}
	*n = created
	return t, nil
}

func (s *Store) GetNegotiation(ctx context.Context, id string) (*negotiation.Negotiation, error) {
	if !validID(id) {
		return nil, fmt.Errorf("get negotiation %s: %w", id, domain.ErrNotFound)
	}
	n, err := scanNegotiation(s.pool.QueryRow(ctx,
		`SELECT `+negotiationColumns+` FROM negotiations WHERE id = $1`, id))
	if err != nil {
		return nil, dbErr(err, "get negotiation %s", id)
	}
	return &n, nil
}

func (s *Store) ListActiveNegotiations(ctx context.Context, requester string) ([]negotiation.Negotiation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+negotiationColumns+` FROM negotiations
		 WHERE requesting_agent = $1 AND status IN ('open', 'follow_up')
		 ORDER BY created_at`, requester)
	if err != nil {
		return nil, fmt.Errorf("list active negotiations: %w", err)
	}
	return collectNegotiations(rows)
}

func collectNegotiations(rows pgx.Rows) ([]negotiation.Negotiation, error) {
	defer rows.Close()
	var out []negotiation.Negotiation
	for rows.Next() {
		n, err := scanNegotiation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan negotiation: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orEmpty(out), nil
}

// TransitionNegotiation is a compare-and-set on (status, round). The spawned
// task and the row update commit together or not at all.
func (s *Store) TransitionNegotiation(ctx context.Context, n *negotiation.Negotiation, from negotiation.Status, fromRound int, spawn *task.CreateRequest) (*task.Task, error) {
	if !validID(n.ID) {
		return nil, fmt.Errorf("transition negotiation %s: %w", n.ID, domain.ErrNotFound)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var spawned *task.Task
	if spawn != nil {
		spawned, err = createTask(ctx, tx, spawn)
		if err != nil {
			return nil, fmt.Errorf("create negotiation task: %w", err)
		}
		switch n.Status {
		case negotiation.StatusFollowUp:
			n.FollowUpTaskID = &spawned.ID
		case negotiation.StatusClosed:
			n.ResponseTaskID = &spawned.ID
		}
	}

	row := tx.QueryRow(ctx,
		`UPDATE negotiations SET
			status = $4, round = $5, follow_up_task_id = $6, response_task_id = $7,
			response_summary = $8, criteria_met = $9, updated_at = $10, closed_at = $11
		 WHERE id = $1 AND status = $2 AND round = $3
		 RETURNING `+negotiationColumns,
		n.ID, string(from), fromRound,
		string(n.Status), n.Round, n.FollowUpTaskID, n.ResponseTaskID,
		n.ResponseSummary, n.CriteriaMet, n.UpdatedAt, n.ClosedAt)
	updated, err := scanNegotiation(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("update negotiation %s: %w", n.ID, err)
		}
		var exists bool
		if qerr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM negotiations WHERE id = $1)`, n.ID).Scan(&exists); qerr != nil {
			return nil, fmt.Errorf("check negotiation %s: %w", n.ID, qerr)
		}
		if !exists {
			return nil, fmt.Errorf("update negotiation %s: %w", n.ID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("negotiation %s moved from %s/round %d: %w", n.ID, from, fromRound, domain.ErrConflict)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit negotiation %s: %w", n.ID, err)
	}
	*n = updated
	return spawned, nil
}

func (s *Store) TimeOutNegotiations(ctx context.Context, cutoff time.Time) ([]negotiation.Negotiation, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE negotiations SET status = 'timed_out', updated_at = now(), closed_at = now()
		 WHERE status IN ('open', 'follow_up', 'responded') AND updated_at < $1
		 RETURNING `+negotiationColumns, cutoff)
	if err != nil {
		return nil, fmt.Errorf("time out negotiations: %w", err)
	}
	return collectNegotiations(rows)
}
