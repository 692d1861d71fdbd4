package anomaly

import "time"

// Aggregate is what the metrics source reports for one window.
type Aggregate struct {
	Window     Window         `json:"window"`
	Categories map[string]int `json:"categories"`
	Sentiment  Sentiment      `json:"sentiment"`
	Volume     int            `json:"volume"`
}

// NewSnapshot pairs a recent and a baseline aggregate.
func NewSnapshot(recent, baseline *Aggregate) *Snapshot {
	return &Snapshot{
		Recent:             recent.Window,
		Baseline:           baseline.Window,
		RecentCategories:   recent.Categories,
		BaselineCategories: baseline.Categories,
		RecentSentiment:    recent.Sentiment,
		BaselineSentiment:  baseline.Sentiment,
		RecentVolume:       recent.Volume,
		BaselineVolume:     baseline.Volume,
	}
}

// Skip reasons recorded for scans that did not run detection.
const (
	SkipAlertBudget = "alert_budget_exhausted"
	SkipCooldown    = "cooldown"
)

// Scan is the record of one proactive scan attempt.
type Scan struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	AnomaliesFound int        `json:"anomalies_found"`
	TaskID         *string    `json:"task_id,omitempty"`
	SkippedReason  string     `json:"skipped_reason,omitempty"`
	Anomalies      []Anomaly  `json:"anomalies,omitempty"`
}

// Performed reports whether detection actually ran.
func (s *Scan) Performed() bool {
	return s.SkippedReason == "" && s.CompletedAt != nil
}
