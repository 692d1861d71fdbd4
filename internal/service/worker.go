package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	cfotel "github.com/Strob0t/Conductor/internal/adapter/otel"
	"github.com/Strob0t/Conductor/internal/domain/budget"
	"github.com/Strob0t/Conductor/internal/domain/task"
	"github.com/Strob0t/Conductor/internal/logger"
)

// WorkerConfig identifies one poll loop.
type WorkerConfig struct {
	Agent     string
	ID        string
	BatchSize int
}

// Worker claims and executes the tasks of one agent queue.
type Worker struct {
	cfg       WorkerConfig
	tasks     *TaskService
	budget    *BudgetService
	executors map[task.Type]Executor
	router    *FlagRouter
	tel       *cfotel.Metrics
	now       func() time.Time
}

// NewWorker creates a Worker. router may be nil.
func NewWorker(
	cfg WorkerConfig,
	tasks *TaskService,
	bud *BudgetService,
	executors map[task.Type]Executor,
	router *FlagRouter,
	tel *cfotel.Metrics,
	now func() time.Time,
) *Worker {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Worker{cfg: cfg, tasks: tasks, budget: bud, executors: executors, router: router, tel: tel, now: now}
}

// Agent returns the queue this worker consumes.
func (w *Worker) Agent() string { return w.cfg.Agent }

// PollOnce checks the daily budget, claims a batch and executes it. It
// returns how many tasks were claimed. A failing task never aborts the
// batch. The daily allowance is re-read before each task and caps that
// task's calls; once it reaches zero the unstarted rest of the batch is
// released.
func (w *Worker) PollOnce(ctx context.Context) (int, error) {
	ctx = logger.WithWorkerID(ctx, w.cfg.ID)

	exhausted, err := w.budget.IsDailyBudgetExhausted(ctx, w.cfg.Agent)
	if err != nil {
		return 0, err
	}
	if exhausted {
		slog.Debug("daily budget exhausted, not claiming", "agent", w.cfg.Agent)
		return 0, nil
	}

	claimed, err := w.tasks.Claim(ctx, w.cfg.Agent, w.cfg.ID, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim: %w", err)
	}
	w.tel.Claimed(ctx, w.cfg.Agent, len(claimed))

	for i := range claimed {
		left, err := w.budget.DailyLLMAllowance(ctx, w.cfg.Agent)
		if err != nil || left == 0 {
			w.release(ctx, claimed[i:])
			if err != nil {
				return len(claimed), fmt.Errorf("daily allowance: %w", err)
			}
			slog.Info("daily budget exhausted mid-batch", "agent", w.cfg.Agent, "released", len(claimed)-i)
			break
		}
		w.process(ctx, &claimed[i], left)
	}
	return len(claimed), nil
}

func (w *Worker) release(ctx context.Context, rest []task.Task) {
	ids := make([]string, len(rest))
	for i := range rest {
		ids[i] = rest[i].ID
	}
	if _, err := w.tasks.Release(ctx, w.cfg.ID, ids); err != nil {
		slog.Error("release tasks failed", "error", err, "count", len(ids))
	}
}

func (w *Worker) process(ctx context.Context, t *task.Task, dailyLeft int) {
	ctx = logger.WithTaskID(ctx, t.ID)
	ctx, span := cfotel.StartTaskSpan(ctx, t.ID, string(t.Type), t.AssignedTo)
	defer span.End()

	b := w.budget.ForTask(t)
	b.CapDaily(dailyLeft)
	slog.Info("task started", "task_type", t.Type, "agent", t.AssignedTo, "limits", b.Limits())

	res, err := w.execute(ctx, t, b)
	if err == nil && w.router != nil {
		w.router.Route(ctx, t, b, res)
	}

	usage := b.Usage()
	inc := budget.Increment{LLMCalls: usage.LLMCallsUsed, Subtasks: usage.SubtasksCreated}
	if res != nil {
		inc.Cost = res.CostUSD
	}
	if uerr := w.budget.IncrementDailyUsage(ctx, t.AssignedTo, inc); uerr != nil {
		slog.Error("record daily usage failed", "error", uerr)
	}

	if err != nil {
		w.tel.Finished(ctx, t.AssignedTo, string(t.Type), true, false, usage.ElapsedSeconds)
		if _, ferr := w.tasks.Fail(ctx, t.ID, err.Error()); ferr != nil {
			slog.Error("fail task failed", "error", ferr)
		}
		slog.Warn("task failed", "error", err, "llm_calls", usage.LLMCallsUsed)
		return
	}

	out, merr := json.Marshal(task.Output{
		Result:        res.Output,
		BudgetUsage:   usage,
		BudgetLimited: res.BudgetLimited,
		LimitReason:   res.LimitReason,
		FinalStage:    res.FinalStage,
	})
	if merr != nil {
		slog.Error("marshal task output failed", "error", merr)
		_, _ = w.tasks.Fail(ctx, t.ID, "marshal output: "+merr.Error())
		return
	}
	if _, cerr := w.tasks.Complete(ctx, t.ID, out); cerr != nil {
		slog.Error("complete task failed", "error", cerr)
		return
	}
	w.tel.Finished(ctx, t.AssignedTo, string(t.Type), false, res.BudgetLimited, usage.ElapsedSeconds)
	slog.Info("task completed", "budget_limited", res.BudgetLimited, "final_stage", res.FinalStage,
		"llm_calls", usage.LLMCallsUsed, "elapsed_s", usage.ElapsedSeconds)
}

// execute runs the executor for t's type, turning a panic into an error.
func (w *Worker) execute(ctx context.Context, t *task.Task, b *budget.Budget) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("executor panic", "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("executor panic: %v", r)
		}
	}()

	exec, ok := w.executors[t.Type]
	if !ok {
		return nil, fmt.Errorf("no executor for task type %q", t.Type)
	}
	res, err = exec.Execute(ctx, t, b)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	return res, nil
}
