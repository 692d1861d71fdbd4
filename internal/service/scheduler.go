package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Strob0t/Conductor/internal/config"
	"github.com/Strob0t/Conductor/internal/domain/task"
)

// Scheduler fires cron jobs: the selection cycle and the configured task
// producers. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron *cron.Cron
	jobs int
}

// NewScheduler creates an empty Scheduler using five-field cron specs.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	log := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(log),
			cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
		),
	}
}

// cronLogger sends the cron runtime's own messages to slog. Its chatter
// (start, wake, run) goes to debug; skipped overlapping runs stay visible.
type cronLogger struct {
	l *slog.Logger // nil means slog.Default()
}

func (c cronLogger) logger() *slog.Logger {
	if c.l != nil {
		return c.l
	}
	return slog.Default()
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	level := slog.LevelDebug
	if msg == "skip" {
		level = slog.LevelInfo
	}
	c.logger().Log(context.Background(), level, "cron "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.logger().Error("cron "+msg, append([]any{"error", err}, keysAndValues...)...)
}

// Add registers fn under name. fn receives ctx of the surrounding Run call.
func (s *Scheduler) Add(ctx context.Context, name, spec string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		if err := fn(ctx); err != nil {
			slog.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		slog.Debug("scheduled job ran", "job", name)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.jobs++
	slog.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int { return s.jobs }

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// running jobs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(30 * time.Second):
		slog.Warn("scheduler stop timed out")
	}
	return nil
}

// ScheduleProducer builds the job for one configured schedule. The payload
// map is decoded as the input_data payload of the schedule's task type.
func ScheduleProducer(tasks *TaskService, sc config.Schedule) (func(ctx context.Context) error, error) {
	typ := task.Type(sc.TaskType)
	raw, err := json.Marshal(map[string]any{"payload": sc.Payload})
	if err != nil {
		return nil, fmt.Errorf("schedule %s: encode payload: %w", sc.Name, err)
	}
	in, err := task.DecodeInput(typ, raw)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", sc.Name, err)
	}
	req := task.CreateRequest{
		Type:       typ,
		AssignedTo: sc.AssignedTo,
		CreatedBy:  task.CreatedBySystem,
		Priority:   sc.Priority,
		Input:      in,
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", sc.Name, err)
	}

	return func(ctx context.Context) error {
		r := req
		t, err := tasks.Enqueue(ctx, &r)
		if err != nil {
			return err
		}
		slog.Info("scheduled task enqueued", "schedule", sc.Name, "task_id", t.ID, "task_type", t.Type)
		return nil
	}, nil
}

// RegisterSchedules wires the selection cycle and every configured producer.
func (s *Services) RegisterSchedules(ctx context.Context, sch *Scheduler) error {
	cfg := s.deps.Config
	if cfg.Selection.Schedule != "" {
		err := sch.Add(ctx, "selection", cfg.Selection.Schedule, func(ctx context.Context) error {
			_, _, err := s.Selection.RunCycle(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}
	for _, sc := range cfg.Schedules {
		fn, err := ScheduleProducer(s.Tasks, sc)
		if err != nil {
			return err
		}
		if err := sch.Add(ctx, sc.Name, sc.Spec, fn); err != nil {
			return err
		}
	}
	return nil
}
