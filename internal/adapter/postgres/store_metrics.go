package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/Conductor/internal/domain/anomaly"
)

// Aggregate summarizes signal_items created within w.
func (s *Store) Aggregate(ctx context.Context, w anomaly.Window) (*anomaly.Aggregate, error) {
	agg := &anomaly.Aggregate{Window: w, Categories: map[string]int{}}

	err := s.pool.QueryRow(ctx,
		`SELECT count(*), count(sentiment), COALESCE(avg(sentiment), 0)
		 FROM signal_items WHERE created_at >= $1 AND created_at < $2`,
		w.Start, w.End,
	).Scan(&agg.Volume, &agg.Sentiment.Count, &agg.Sentiment.Average)
	if err != nil {
		return nil, fmt.Errorf("aggregate volume: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT category, count(*) FROM signal_items
		 WHERE created_at >= $1 AND created_at < $2 AND category <> ''
		 GROUP BY category`,
		w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("aggregate categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		agg.Categories[name] = count
	}
	return agg, rows.Err()
}
