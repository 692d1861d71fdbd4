package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/robfig/cron/v3"

	"github.com/Strob0t/Conductor/internal/config"
	"github.com/Strob0t/Conductor/internal/domain/task"
)

func TestScheduleProducerEnqueues(t *testing.T) {
	cfg := testConfig()
	store := newMockStore()
	tasks := NewTaskService(store, nil, &cfg.Budgets)

	fn, err := ScheduleProducer(tasks, config.Schedule{
		Name:       "morning-brief",
		Spec:       "0 7 * * *",
		TaskType:   "analysis",
		AssignedTo: "analyst",
		Priority:   20,
		Payload:    map[string]any{"instructions": "brief the team"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range 2 {
		if err := fn(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	got := store.tasksOfType(task.TypeAnalysis)
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got))
	}
	p := got[0].Input.Payload.(*task.AnalysisPayload)
	if p.Instructions != "brief the team" || got[0].CreatedBy != task.CreatedBySystem {
		t.Fatalf("unexpected task: %+v", got[0])
	}
}

func TestScheduleProducerRejectsBadPayload(t *testing.T) {
	cfg := testConfig()
	tasks := NewTaskService(newMockStore(), nil, &cfg.Budgets)

	if _, err := ScheduleProducer(tasks, config.Schedule{Name: "x", TaskType: "analysis", AssignedTo: "analyst"}); err == nil {
		t.Fatal("expected missing instructions to be rejected")
	}
	if _, err := ScheduleProducer(tasks, config.Schedule{Name: "y", TaskType: "nope", AssignedTo: "analyst"}); err == nil {
		t.Fatal("expected unknown task type to be rejected")
	}
}

func TestSchedulerAddRejectsBadSpec(t *testing.T) {
	s := NewScheduler()
	if err := s.Add(context.Background(), "bad", "not a cron spec", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected invalid spec error")
	}
	if err := s.Add(context.Background(), "good", "*/5 * * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 job, got %d", s.Len())
	}
}

func TestRegisterSchedules(t *testing.T) {
	cfg := testConfig()
	cfg.Selection.Schedule = "@hourly"
	cfg.Schedules = []config.Schedule{{
		Name:       "digest",
		Spec:       "0 9 * * 1",
		TaskType:   "analysis",
		AssignedTo: "analyst",
		Payload:    map[string]any{"instructions": "weekly digest"},
	}}
	svcs := New(Deps{Config: cfg, Store: newMockStore(), Topics: &mockTopics{}, Metrics: &mockMetrics{}, Reasoner: &fakeReasoner{}})

	sch := NewScheduler()
	if err := svcs.RegisterSchedules(context.Background(), sch); err != nil {
		t.Fatal(err)
	}
	if sch.Len() != 2 {
		t.Fatalf("expected selection plus one producer, got %d", sch.Len())
	}
}

func TestCronLoggerUsesSlog(t *testing.T) {
	var buf bytes.Buffer
	log := cronLogger{l: slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))}

	log.Info("wake", "now", "12:00")
	if buf.Len() != 0 {
		t.Fatalf("routine cron messages should stay at debug, got %s", buf.String())
	}

	cron.Recover(log)(cron.FuncJob(func() { panic("boom") })).Run()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["level"] != "ERROR" || rec["msg"] != "cron panic" || rec["error"] != "boom" {
		t.Fatalf("unexpected panic record: %v", rec)
	}
	if _, ok := rec["stack"]; !ok {
		t.Fatalf("expected the stack to be attached: %v", rec)
	}

	buf.Reset()
	log.Info("skip")
	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"cron skip"`)) {
		t.Fatalf("skipped runs should log at info, got %s", buf.String())
	}
}
