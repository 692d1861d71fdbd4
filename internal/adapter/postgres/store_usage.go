package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/Conductor/internal/domain/budget"
)

const usageColumns = `agent_name, usage_date, llm_calls_used, subtasks_created, proactive_alerts_sent,
	total_cost_estimate::float8, updated_at`

func scanUsage(row scannable) (budget.DailyUsage, error) {
	var u budget.DailyUsage
	err := row.Scan(&u.AgentName, &u.Date, &u.LLMCallsUsed, &u.SubtasksCreated,
		&u.ProactiveAlertsSent, &u.TotalCostEstimate, &u.UpdatedAt)
	return u, err
}

func (s *Store) GetDailyUsage(ctx context.Context, agent string, day time.Time) (*budget.DailyUsage, error) {
	u, err := scanUsage(s.pool.QueryRow(ctx,
		`SELECT `+usageColumns+` FROM daily_usage WHERE agent_name = $1 AND usage_date = $2::date`,
		agent, budget.Day(day)))
	if err != nil {
		return nil, dbErr(err, "get daily usage %s", agent)
	}
	return &u, nil
}

// IncrementDailyUsage adds inc to the agent's row for day in a single
// upsert, so concurrent increments never lose updates.
func (s *Store) IncrementDailyUsage(ctx context.Context, agent string, day time.Time, inc budget.Increment) (*budget.DailyUsage, error) {
	u, err := scanUsage(s.pool.QueryRow(ctx,
		`INSERT INTO daily_usage AS d
			(agent_name, usage_date, llm_calls_used, subtasks_created, proactive_alerts_sent, total_cost_estimate, updated_at)
		 VALUES ($1, $2::date, $3, $4, $5, $6, now())
		 ON CONFLICT (agent_name, usage_date) DO UPDATE SET
			llm_calls_used        = d.llm_calls_used + EXCLUDED.llm_calls_used,
			subtasks_created      = d.subtasks_created + EXCLUDED.subtasks_created,
			proactive_alerts_sent = d.proactive_alerts_sent + EXCLUDED.proactive_alerts_sent,
			total_cost_estimate   = d.total_cost_estimate + EXCLUDED.total_cost_estimate,
			updated_at            = now()
		 RETURNING `+usageColumns,
		agent, budget.Day(day), inc.LLMCalls, inc.Subtasks, inc.Alerts, inc.Cost))
	if err != nil {
		return nil, fmt.Errorf("increment daily usage %s: %w", agent, err)
	}
	return &u, nil
}
