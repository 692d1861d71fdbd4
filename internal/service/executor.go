package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/Conductor/internal/domain/budget"
	"github.com/Strob0t/Conductor/internal/domain/task"
	"github.com/Strob0t/Conductor/internal/port/notifier"
	"github.com/Strob0t/Conductor/internal/port/reasoning"
)

// Executor runs one claimed task within its budget.
type Executor interface {
	Execute(ctx context.Context, t *task.Task, b *budget.Budget) (*Result, error)
}

// Flags are the optional signals an execution raises for other components.
type Flags struct {
	DataRequests       []reasoning.DataRequest
	NegotiationRequest *reasoning.NegotiationRequest
	NegotiationReply   *reasoning.NegotiationReply
	Alert              *reasoning.Alert
}

// Result is what an executor hands back to the worker.
type Result struct {
	Output        json.RawMessage
	BudgetLimited bool
	LimitReason   budget.Reason
	FinalStage    string
	CostUSD       float64
	Flags         Flags
}

// DefaultExecutors maps every task type to its executor.
func DefaultExecutors(reasoner, alert Executor) map[task.Type]Executor {
	return map[task.Type]Executor{
		task.TypeAnalysis:            reasoner,
		task.TypeDeepDive:            reasoner,
		task.TypeAnomalyAssessment:   reasoner,
		task.TypeNegotiationRequest:  reasoner,
		task.TypeNegotiationResponse: reasoner,
		task.TypeAlertDispatch:       alert,
	}
}

// AlertExecutor delivers alert_dispatch tasks through the notification
// channels. It never calls the reasoning service.
type AlertExecutor struct {
	notifications *NotificationService
}

// NewAlertExecutor creates an AlertExecutor.
func NewAlertExecutor(n *NotificationService) *AlertExecutor {
	return &AlertExecutor{notifications: n}
}

func (e *AlertExecutor) Execute(ctx context.Context, t *task.Task, _ *budget.Budget) (*Result, error) {
	p, ok := t.Input.Payload.(*task.AlertDispatchPayload)
	if !ok {
		return nil, fmt.Errorf("alert dispatch %s: unexpected payload %T", t.ID, t.Input.Payload)
	}
	delivered, err := e.notifications.Notify(ctx, notifier.Notification{
		Title:   p.Title,
		Message: p.Message,
		Level:   notifier.NormalizeLevel(p.Level),
		Source:  "proactive.alert",
	})
	if err != nil {
		return nil, fmt.Errorf("alert dispatch %s: %w", t.ID, err)
	}
	out, err := json.Marshal(map[string]any{"delivered_to": delivered})
	if err != nil {
		return nil, err
	}
	return &Result{Output: out, FinalStage: "delivered"}, nil
}
