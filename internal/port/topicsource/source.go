// Package topicsource defines the port to tracked topics and their
// selection history.
package topicsource

import (
	"context"

	"github.com/Strob0t/Conductor/internal/domain/selection"
)

// Source lists candidates and records selections.
type Source interface {
	// Candidates returns up to limit tracked topics with LastSelectedCycle
	// filled from the selection history.
	Candidates(ctx context.Context, limit int) ([]selection.Candidate, error)

	// NextCycle returns the number of the cycle about to run.
	NextCycle(ctx context.Context) (int, error)

	// RecordSelection stores the picks of a decision together with the task
	// created for them.
	RecordSelection(ctx context.Context, d *selection.Decision, taskID string) error
}
