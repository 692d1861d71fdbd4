// Package service contains the application services that drive the queue,
// the budget ledger, negotiations, proactive scans and topic selection.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	cfotel "github.com/Strob0t/Conductor/internal/adapter/otel"
	"github.com/Strob0t/Conductor/internal/config"
	"github.com/Strob0t/Conductor/internal/domain/task"
	"github.com/Strob0t/Conductor/internal/port/database"
	"github.com/Strob0t/Conductor/internal/port/messagequeue"
	"github.com/Strob0t/Conductor/internal/port/metricsource"
	"github.com/Strob0t/Conductor/internal/port/notifier"
	"github.com/Strob0t/Conductor/internal/port/reasoning"
	"github.com/Strob0t/Conductor/internal/port/topicsource"
)

// Deps are the collaborators shared by all services. cmd/conductor builds
// them once. Queue, Notifiers and Telemetry are optional.
type Deps struct {
	Config    *config.Config
	Store     database.Store
	Topics    topicsource.Source
	Metrics   metricsource.Source
	Reasoner  reasoning.Reasoner
	Queue     messagequeue.Queue
	Notifiers []notifier.Notifier
	Telemetry *cfotel.Metrics
	Now       func() time.Time
}

// Services is the wired set of application services.
type Services struct {
	Tasks         *TaskService
	Budget        *BudgetService
	Negotiations  *NegotiationService
	Proactive     *ProactiveScheduler
	Selection     *SelectionService
	Notifications *NotificationService
	Executors     map[task.Type]Executor

	deps Deps
}

// New wires every service from d.
func New(d Deps) *Services {
	if d.Now == nil {
		d.Now = time.Now
	}
	cfg := d.Config

	tasks := NewTaskService(d.Store, d.Queue, &cfg.Budgets)
	bud := NewBudgetService(d.Store, cfg.Budgets.Global, &cfg.Budgets, d.Now)
	negs := NewNegotiationService(d.Store, d.Queue, cfg.Negotiation, &cfg.Budgets, d.Telemetry, d.Now)
	notes := NewNotificationService(d.Notifiers...)
	pro := NewProactiveScheduler(d.Store, d.Metrics, tasks, bud, d.Queue, cfg.Proactive, d.Telemetry, d.Now)
	sel := NewSelectionService(d.Topics, tasks, cfg.Selection)

	reasoner := NewReasoningExecutor(d.Reasoner, d.Telemetry)
	return &Services{
		Tasks:         tasks,
		Budget:        bud,
		Negotiations:  negs,
		Proactive:     pro,
		Selection:     sel,
		Notifications: notes,
		Executors:     DefaultExecutors(reasoner, NewAlertExecutor(notes)),
		deps:          d,
	}
}

// Worker builds the poll loop for one agent queue.
func (s *Services) Worker(agent, workerID string) *Worker {
	return NewWorker(WorkerConfig{
		Agent:     agent,
		ID:        workerID,
		BatchSize: s.deps.Config.Worker.BatchSize,
	}, s.Tasks, s.Budget, s.Executors, NewFlagRouter(s.Negotiations, s.Proactive), s.deps.Telemetry, s.deps.Now)
}

// publish sends v on subject when a queue is configured. Messages are
// wakeup hints, so failures are logged and swallowed.
func publish(ctx context.Context, q messagequeue.Queue, subject string, v any) {
	if q == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal queue payload", "subject", subject, "error", err)
		return
	}
	if err := q.Publish(ctx, subject, data); err != nil {
		slog.Warn("queue publish failed", "subject", subject, "error", err)
	}
}
