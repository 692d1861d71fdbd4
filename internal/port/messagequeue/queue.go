// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
// Messages are wakeup hints; the task table remains the source of truth.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects used by Conductor.
const (
	SubjectTaskCreated        = "tasks.created"        // tasks.created.{agent}
	SubjectTaskFinished       = "tasks.finished"       // tasks.finished.{agent}
	SubjectNegotiationUpdated = "negotiations.updated" // status changes
	SubjectAnomalyDetected    = "anomalies.detected"
)

// TaskCreatedSubject returns the per-agent wakeup subject.
func TaskCreatedSubject(agent string) string {
	return SubjectTaskCreated + "." + agent
}

// TaskFinishedSubject returns the per-agent completion subject.
func TaskFinishedSubject(agent string) string {
	return SubjectTaskFinished + "." + agent
}
