package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/Conductor/internal/config"
	"github.com/Strob0t/Conductor/internal/domain"
	"github.com/Strob0t/Conductor/internal/domain/budget"
	"github.com/Strob0t/Conductor/internal/domain/task"
	"github.com/Strob0t/Conductor/internal/port/database"
)

// BudgetService builds per-task budgets and guards the daily counters.
type BudgetService struct {
	store   database.UsageStore
	global  budget.Global
	budgets *config.Budgets
	now     func() time.Time
}

// NewBudgetService creates a BudgetService.
func NewBudgetService(store database.UsageStore, global budget.Global, budgets *config.Budgets, now func() time.Time) *BudgetService {
	if now == nil {
		now = time.Now
	}
	return &BudgetService{store: store, global: global, budgets: budgets, now: now}
}

// NewBudget starts a budget with the configured limits for (agent, taskType).
func (s *BudgetService) NewBudget(taskType task.Type, agent string) *budget.Budget {
	return budget.NewWithClock(s.budgets.For(agent, string(taskType)), s.now)
}

// ForTask starts the budget of a claimed task from the limits stamped into
// its input, falling back to configuration for tasks stored without one.
func (s *BudgetService) ForTask(t *task.Task) *budget.Budget {
	if t.Input.Budget.IsZero() {
		return s.NewBudget(t.Type, t.AssignedTo)
	}
	return budget.NewWithClock(t.Input.Budget, s.now)
}

// Usage returns today's counters for agent. A missing row reads as zero.
func (s *BudgetService) Usage(ctx context.Context, agent string) (*budget.DailyUsage, error) {
	day := budget.Day(s.now())
	u, err := s.store.GetDailyUsage(ctx, agent, day)
	if errors.Is(err, domain.ErrNotFound) {
		return &budget.DailyUsage{AgentName: agent, Date: day}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("daily usage %s: %w", agent, err)
	}
	return u, nil
}

// IsDailyBudgetExhausted reports whether agent has used up today's
// reasoning-service calls.
func (s *BudgetService) IsDailyBudgetExhausted(ctx context.Context, agent string) (bool, error) {
	u, err := s.Usage(ctx, agent)
	if err != nil {
		return false, err
	}
	return u.LLMExhausted(s.global), nil
}

// DailyLLMAllowance returns how many reasoning-service calls agent may
// still make today.
func (s *BudgetService) DailyLLMAllowance(ctx context.Context, agent string) (int, error) {
	u, err := s.Usage(ctx, agent)
	if err != nil {
		return 0, err
	}
	return max(s.global.MaxDailyLLMCalls-u.LLMCallsUsed, 0), nil
}

// AlertsExhausted reports whether agent has sent today's proactive alerts.
func (s *BudgetService) AlertsExhausted(ctx context.Context, agent string) (bool, error) {
	u, err := s.Usage(ctx, agent)
	if err != nil {
		return false, err
	}
	return u.AlertsExhausted(s.global), nil
}

// IncrementDailyUsage adds inc to agent's row for today in one upsert.
func (s *BudgetService) IncrementDailyUsage(ctx context.Context, agent string, inc budget.Increment) error {
	if inc.IsZero() {
		return nil
	}
	u, err := s.store.IncrementDailyUsage(ctx, agent, budget.Day(s.now()), inc)
	if err != nil {
		return fmt.Errorf("increment daily usage %s: %w", agent, err)
	}
	if u.LLMExhausted(s.global) {
		slog.Warn("daily llm budget exhausted", "agent", agent, "llm_calls_used", u.LLMCallsUsed, "limit", s.global.MaxDailyLLMCalls)
	}
	return nil
}
