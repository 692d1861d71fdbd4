package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/Conductor/internal/domain/anomaly"
)

func (s *Store) RecordScan(ctx context.Context, sc *anomaly.Scan) error {
	anomalies, err := json.Marshal(orEmpty(sc.Anomalies))
	if err != nil {
		return fmt.Errorf("marshal anomalies: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO proactive_scans (id, started_at, completed_at, anomalies_found, anomalies, task_id, skipped_reason)
		 VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		sc.ID, sc.StartedAt, sc.CompletedAt, sc.AnomaliesFound, anomalies, sc.TaskID, sc.SkippedReason,
	).Scan(&sc.ID)
	if err != nil {
		return fmt.Errorf("record scan: %w", err)
	}
	return nil
}

func (s *Store) LatestPerformedScan(ctx context.Context) (*anomaly.Scan, error) {
	var (
		sc        anomaly.Scan
		anomalies []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, started_at, completed_at, anomalies_found, anomalies, task_id, skipped_reason
		 FROM proactive_scans
		 WHERE skipped_reason = '' AND completed_at IS NOT NULL
		 ORDER BY completed_at DESC
		 LIMIT 1`,
	).Scan(&sc.ID, &sc.StartedAt, &sc.CompletedAt, &sc.AnomaliesFound, &anomalies, &sc.TaskID, &sc.SkippedReason)
	if err != nil {
		return nil, dbErr(err, "latest scan")
	}
	if err := json.Unmarshal(anomalies, &sc.Anomalies); err != nil {
		return nil, fmt.Errorf("decode scan anomalies: %w", err)
	}
	return &sc, nil
}
