package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/Conductor/internal/domain/selection"
)

// candidateWindowHours is the recent window for mention and tier counts.
const candidateWindowHours = 24

func (s *Store) Candidates(ctx context.Context, limit int) ([]selection.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.name, t.velocity, t.source_diversity, t.lifecycle_phase,
		        m.mentions, m.tiers, h.last_cycle
		 FROM topics t
		 LEFT JOIN LATERAL (
			SELECT count(*) AS mentions, count(DISTINCT si.source_tier) AS tiers
			FROM signal_items si
			WHERE si.topic_id = t.id AND si.created_at >= now() - make_interval(hours => $2::int)
		 ) m ON true
		 LEFT JOIN LATERAL (
			SELECT max(ts.cycle) AS last_cycle FROM topic_selections ts WHERE ts.topic_id = t.id
		 ) h ON true
		 WHERE t.active
		 ORDER BY t.velocity * t.source_diversity DESC, t.id
		 LIMIT $1`,
		limit, candidateWindowHours)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []selection.Candidate
	for rows.Next() {
		var c selection.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Velocity, &c.SourceDiversity, &c.Phase,
			&c.MentionCount, &c.SourceTiers, &c.LastSelectedCycle); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) NextCycle(ctx context.Context) (int, error) {
	var cycle int
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(max(cycle), 0) + 1 FROM topic_selections`).Scan(&cycle); err != nil {
		return 0, fmt.Errorf("next cycle: %w", err)
	}
	return cycle, nil
}

func (s *Store) RecordSelection(ctx context.Context, d *selection.Decision, taskID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	synthesis := d.Mode == selection.ModeSynthesis
	for _, p := range d.Picks {
		tag, err := tx.Exec(ctx,
			`INSERT INTO topic_selections (cycle, topic_id, task_id, synthesis)
			 SELECT $1::integer, id, $3::uuid, $4::boolean FROM topics WHERE id = $2`,
			d.Cycle, p.ID, taskID, synthesis)
		if err := execExpectOne(tag, err, "record selection %s", p.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit selection: %w", err)
	}
	return nil
}
