package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "conductor"

// Metrics holds all Conductor metric instruments. A nil *Metrics records
// nothing.
type Metrics struct {
	TasksClaimed        metric.Int64Counter
	TasksCompleted      metric.Int64Counter
	TasksFailed         metric.Int64Counter
	TasksBudgetLimited  metric.Int64Counter
	LLMCalls            metric.Int64Counter
	NegotiationsOpened  metric.Int64Counter
	NegotiationsClosed  metric.Int64Counter
	NegotiationsTimeout metric.Int64Counter
	AnomaliesDetected   metric.Int64Counter
	TaskDuration        metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.TasksClaimed, "conductor.tasks.claimed", "Tasks claimed by workers"},
		{&m.TasksCompleted, "conductor.tasks.completed", "Tasks completed"},
		{&m.TasksFailed, "conductor.tasks.failed", "Tasks failed"},
		{&m.TasksBudgetLimited, "conductor.tasks.budget_limited", "Tasks stopped by their budget"},
		{&m.LLMCalls, "conductor.llm.calls", "Reasoning service calls"},
		{&m.NegotiationsOpened, "conductor.negotiations.opened", "Negotiations opened"},
		{&m.NegotiationsClosed, "conductor.negotiations.closed", "Negotiations closed"},
		{&m.NegotiationsTimeout, "conductor.negotiations.timed_out", "Negotiations timed out"},
		{&m.AnomaliesDetected, "conductor.anomalies.detected", "Anomalies detected by proactive scans"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}

	m.TaskDuration, err = meter.Float64Histogram("conductor.task.duration_seconds",
		metric.WithDescription("Task execution duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

func attrs(agent, taskType string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("task_type", taskType),
	)
}

// Claimed records n claimed tasks.
func (m *Metrics) Claimed(ctx context.Context, agent string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.TasksClaimed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("agent", agent)))
}

// Finished records the outcome and duration of one task execution.
func (m *Metrics) Finished(ctx context.Context, agent, taskType string, failed, budgetLimited bool, seconds float64) {
	if m == nil {
		return
	}
	opt := attrs(agent, taskType)
	switch {
	case failed:
		m.TasksFailed.Add(ctx, 1, opt)
	default:
		m.TasksCompleted.Add(ctx, 1, opt)
	}
	if budgetLimited {
		m.TasksBudgetLimited.Add(ctx, 1, opt)
	}
	m.TaskDuration.Record(ctx, seconds, opt)
}

// LLMCall records one reasoning service call.
func (m *Metrics) LLMCall(ctx context.Context, agent, stage string) {
	if m == nil {
		return
	}
	m.LLMCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("stage", stage),
	))
}

// Negotiation records a negotiation status change.
func (m *Metrics) Negotiation(ctx context.Context, status string, n int) {
	if m == nil || n == 0 {
		return
	}
	switch status {
	case "open":
		m.NegotiationsOpened.Add(ctx, int64(n))
	case "closed":
		m.NegotiationsClosed.Add(ctx, int64(n))
	case "timed_out":
		m.NegotiationsTimeout.Add(ctx, int64(n))
	}
}

// Anomalies records anomalies found by one scan.
func (m *Metrics) Anomalies(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.AnomaliesDetected.Add(ctx, int64(n))
}
