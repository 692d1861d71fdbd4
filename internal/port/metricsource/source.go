// Package metricsource defines the read-only port to the aggregated signal
// metrics the anomaly scanner compares.
package metricsource

import (
	"context"

	"github.com/Strob0t/Conductor/internal/domain/anomaly"
)

// Source aggregates ingested items over a window.
type Source interface {
	Aggregate(ctx context.Context, w anomaly.Window) (*anomaly.Aggregate, error)
}
