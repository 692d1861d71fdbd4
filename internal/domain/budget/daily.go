package budget

import "time"

// Global holds the process-wide limits shared by every agent.
type Global struct {
	MaxSubtaskDepth                      int `json:"max_subtask_depth" yaml:"max_subtask_depth"`
	MaxDailyLLMCalls                     int `json:"max_daily_llm_calls" yaml:"max_daily_llm_calls"`
	MaxDailyProactiveAlerts              int `json:"max_daily_proactive_alerts" yaml:"max_daily_proactive_alerts"`
	CooldownBetweenProactiveScansMinutes int `json:"cooldown_between_proactive_scans_minutes" yaml:"cooldown_between_proactive_scans_minutes"`
	DefaultMaxSeconds                    int `json:"default_max_seconds" yaml:"default_max_seconds"`
}

// DefaultGlobal returns the global limits used when none are configured.
func DefaultGlobal() Global {
	return Global{
		MaxSubtaskDepth:                      2,
		MaxDailyLLMCalls:                     200,
		MaxDailyProactiveAlerts:              5,
		CooldownBetweenProactiveScansMinutes: 30,
		DefaultMaxSeconds:                    300,
	}
}

// ScanCooldown returns the minimum time between two proactive scans.
func (g Global) ScanCooldown() time.Duration {
	return time.Duration(g.CooldownBetweenProactiveScansMinutes) * time.Minute
}

// DailyUsage is the persisted per-agent, per-day counter row.
type DailyUsage struct {
	AgentName           string    `json:"agent_name"`
	Date                time.Time `json:"date"`
	LLMCallsUsed        int       `json:"llm_calls_used"`
	SubtasksCreated     int       `json:"subtasks_created"`
	ProactiveAlertsSent int       `json:"proactive_alerts_sent"`
	TotalCostEstimate   float64   `json:"total_cost_estimate"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Increment is an additive delta applied to a DailyUsage row in place.
type Increment struct {
	LLMCalls int     `json:"llm_calls"`
	Subtasks int     `json:"subtasks"`
	Alerts   int     `json:"alerts"`
	Cost     float64 `json:"cost"`
}

// IsZero reports whether applying the increment would change nothing.
func (i Increment) IsZero() bool {
	return i.LLMCalls == 0 && i.Subtasks == 0 && i.Alerts == 0 && i.Cost == 0
}

// Day truncates t to its UTC calendar date, the key of a DailyUsage row.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LLMExhausted reports whether the row has reached the daily call cap.
// A nil row means nothing was consumed yet today.
func (u *DailyUsage) LLMExhausted(g Global) bool {
	if u == nil {
		return false
	}
	return u.LLMCallsUsed >= g.MaxDailyLLMCalls
}

// AlertsExhausted reports whether the row has reached the daily alert cap.
func (u *DailyUsage) AlertsExhausted(g Global) bool {
	if u == nil {
		return g.MaxDailyProactiveAlerts <= 0
	}
	return u.ProactiveAlertsSent >= g.MaxDailyProactiveAlerts
}
