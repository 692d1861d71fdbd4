package service

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/Conductor/internal/domain/anomaly"
	"github.com/Strob0t/Conductor/internal/domain/budget"
	"github.com/Strob0t/Conductor/internal/domain/task"
	"github.com/Strob0t/Conductor/internal/port/messagequeue"
	"github.com/Strob0t/Conductor/internal/port/reasoning"
)

type proactiveFixture struct {
	svc     *ProactiveScheduler
	store   *mockStore
	queue   *mockQueue
	metrics *mockMetrics
	clock   *fixedClock
}

func newProactiveFixture() *proactiveFixture {
	cfg := testConfig()
	clock := newClock()
	store := newMockStore()
	store.now = clock.Now
	queue := &mockQueue{}
	// Baseline 10 items/hour, recent 100: a volume spike.
	metrics := &mockMetrics{
		recent:   anomaly.Aggregate{Volume: 100},
		baseline: anomaly.Aggregate{Volume: 1440},
	}
	tasks := NewTaskService(store, queue, &cfg.Budgets)
	bud := NewBudgetService(store, cfg.Budgets.Global, &cfg.Budgets, clock.Now)
	svc := NewProactiveScheduler(store, metrics, tasks, bud, queue, cfg.Proactive, nil, clock.Now)
	return &proactiveFixture{svc: svc, store: store, queue: queue, metrics: metrics, clock: clock}
}

func TestProactiveScanEscalatesAnomalies(t *testing.T) {
	f := newProactiveFixture()

	scan, err := f.svc.ProactiveScan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scan.Performed() || scan.AnomaliesFound != 1 {
		t.Fatalf("expected one anomaly from a performed scan, got %+v", scan)
	}
	assessments := f.store.tasksOfType(task.TypeAnomalyAssessment)
	if len(assessments) != 1 {
		t.Fatalf("expected one assessment task, got %d", len(assessments))
	}
	a := assessments[0]
	if a.AssignedTo != "analyst" || a.Input.Budget.MaxLLMCalls != 5 {
		t.Fatalf("unexpected assessment task: %+v", a)
	}
	p := a.Input.Payload.(*task.AnomalyAssessmentPayload)
	if p.ScanID != scan.ID || p.Anomalies[0].Type != anomaly.TypeVolumeSpike {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if scan.TaskID == nil || *scan.TaskID != a.ID {
		t.Fatal("scan does not reference its assessment task")
	}
	if f.queue.count(messagequeue.SubjectAnomalyDetected) != 1 {
		t.Fatal("expected anomalies.detected to be published")
	}
}

func TestProactiveScanCooldown(t *testing.T) {
	f := newProactiveFixture()
	ctx := context.Background()

	if _, err := f.svc.ProactiveScan(ctx); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(10 * time.Minute)
	second, err := f.svc.ProactiveScan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.SkippedReason != anomaly.SkipCooldown {
		t.Fatalf("expected cooldown skip, got %+v", second)
	}
	if n := len(f.store.tasksOfType(task.TypeAnomalyAssessment)); n != 1 {
		t.Fatalf("expected detection once within cooldown, got %d assessments", n)
	}
	if f.metrics.calls != 2 {
		t.Fatalf("skipped scan must not read metrics, got %d aggregate calls", f.metrics.calls)
	}

	f.clock.Advance(25 * time.Minute)
	third, err := f.svc.ProactiveScan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !third.Performed() {
		t.Fatalf("expected scan after cooldown, got %+v", third)
	}
}

func TestProactiveScanAlertBudgetExhausted(t *testing.T) {
	f := newProactiveFixture()
	ctx := context.Background()

	day := budget.Day(f.clock.Now())
	if _, err := f.store.IncrementDailyUsage(ctx, "notifier", day, budget.Increment{Alerts: 5}); err != nil {
		t.Fatal(err)
	}
	scan, err := f.svc.ProactiveScan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if scan.SkippedReason != anomaly.SkipAlertBudget {
		t.Fatalf("expected alert budget skip, got %+v", scan)
	}
	if f.metrics.calls != 0 {
		t.Fatal("skipped scan must not read metrics")
	}
	if len(f.store.scans) != 1 {
		t.Fatal("skipped scan should still be recorded")
	}
}

func TestProactiveScanNoAnomalies(t *testing.T) {
	f := newProactiveFixture()
	f.metrics.recent = anomaly.Aggregate{Volume: 10}

	scan, err := f.svc.ProactiveScan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if scan.AnomaliesFound != 0 || scan.TaskID != nil {
		t.Fatalf("expected quiet scan, got %+v", scan)
	}
	if f.queue.count(messagequeue.SubjectAnomalyDetected) != 0 {
		t.Fatal("quiet scan must not publish")
	}
}

func TestHandleAssessment(t *testing.T) {
	f := newProactiveFixture()
	ctx := context.Background()

	if _, err := f.svc.ProactiveScan(ctx); err != nil {
		t.Fatal(err)
	}
	assessment := f.store.tasksOfType(task.TypeAnomalyAssessment)[0]

	if d, err := f.svc.HandleAssessment(ctx, &assessment, &reasoning.Alert{Significant: false}); err != nil || d != nil {
		t.Fatalf("insignificant alert should be ignored, got %v %v", d, err)
	}

	d, err := f.svc.HandleAssessment(ctx, &assessment, &reasoning.Alert{Significant: true})
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Type != task.TypeAlertDispatch || d.AssignedTo != "notifier" {
		t.Fatalf("unexpected dispatch task: %+v", d)
	}
	p := d.Input.Payload.(*task.AlertDispatchPayload)
	if p.Title != "Anomaly detected" || p.Level != "warning" || p.Message == "" {
		t.Fatalf("defaults not applied: %+v", p)
	}
	if p.AssessmentTaskID != assessment.ID {
		t.Fatal("dispatch does not reference its assessment")
	}

	u, err := f.store.GetDailyUsage(ctx, "notifier", budget.Day(f.clock.Now()))
	if err != nil {
		t.Fatal(err)
	}
	if u.ProactiveAlertsSent != 1 {
		t.Fatalf("expected 1 alert counted, got %d", u.ProactiveAlertsSent)
	}
}

func TestHandleAssessmentQuotaReached(t *testing.T) {
	f := newProactiveFixture()
	ctx := context.Background()

	if _, err := f.store.IncrementDailyUsage(ctx, "notifier", budget.Day(f.clock.Now()), budget.Increment{Alerts: 5}); err != nil {
		t.Fatal(err)
	}
	assessment := task.Task{ID: "a1", AssignedTo: "analyst"}
	d, err := f.svc.HandleAssessment(ctx, &assessment, &reasoning.Alert{Significant: true, Message: "x"})
	if err != nil || d != nil {
		t.Fatalf("expected suppression, got %v %v", d, err)
	}
	if len(f.store.tasksOfType(task.TypeAlertDispatch)) != 0 {
		t.Fatal("no dispatch task should exist")
	}
}
