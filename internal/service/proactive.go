package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/Strob0t/Conductor/internal/adapter/otel"
	"github.com/Strob0t/Conductor/internal/config"
	"github.com/Strob0t/Conductor/internal/domain"
	"github.com/Strob0t/Conductor/internal/domain/anomaly"
	"github.com/Strob0t/Conductor/internal/domain/budget"
	"github.com/Strob0t/Conductor/internal/domain/task"
	"github.com/Strob0t/Conductor/internal/port/database"
	"github.com/Strob0t/Conductor/internal/port/messagequeue"
	"github.com/Strob0t/Conductor/internal/port/metricsource"
	"github.com/Strob0t/Conductor/internal/port/notifier"
	"github.com/Strob0t/Conductor/internal/port/reasoning"
)

// ProactiveScheduler runs the cheap anomaly scan and escalates findings to
// an assessor, subject to the daily alert quota and the scan cooldown.
// Proactive alerts are counted on the alert role's daily usage row.
type ProactiveScheduler struct {
	scans   database.ScanStore
	metrics metricsource.Source
	tasks   *TaskService
	budget  *BudgetService
	queue   messagequeue.Queue
	cfg     config.Proactive
	tel     *cfotel.Metrics
	now     func() time.Time
}

// NewProactiveScheduler creates a ProactiveScheduler.
func NewProactiveScheduler(
	scans database.ScanStore,
	metrics metricsource.Source,
	tasks *TaskService,
	bud *BudgetService,
	queue messagequeue.Queue,
	cfg config.Proactive,
	tel *cfotel.Metrics,
	now func() time.Time,
) *ProactiveScheduler {
	if now == nil {
		now = time.Now
	}
	return &ProactiveScheduler{
		scans: scans, metrics: metrics, tasks: tasks, budget: bud,
		queue: queue, cfg: cfg, tel: tel, now: now,
	}
}

// CheckProactiveBudget reports whether another proactive alert may be sent today.
func (s *ProactiveScheduler) CheckProactiveBudget(ctx context.Context) (bool, error) {
	exhausted, err := s.budget.AlertsExhausted(ctx, s.cfg.AlertRole)
	if err != nil {
		return false, err
	}
	return !exhausted, nil
}

// CheckProactiveCooldown reports whether the last performed scan completed
// long enough ago. No previous scan means no cooldown.
func (s *ProactiveScheduler) CheckProactiveCooldown(ctx context.Context) (bool, error) {
	last, err := s.scans.LatestPerformedScan(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("latest scan: %w", err)
	}
	if last.CompletedAt == nil {
		return true, nil
	}
	return s.now().Sub(*last.CompletedAt) >= s.budget.global.ScanCooldown(), nil
}

// ProactiveScan runs one gated scan. A scan record is written for every
// attempt; skipped attempts carry their reason and do not reset the
// cooldown. Detected anomalies are handed to the assessor as one task.
func (s *ProactiveScheduler) ProactiveScan(ctx context.Context) (*anomaly.Scan, error) {
	ctx, span := cfotel.StartScanSpan(ctx)
	defer span.End()

	scan := &anomaly.Scan{ID: uuid.NewString(), StartedAt: s.now()}

	ok, err := s.CheckProactiveBudget(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.skip(ctx, scan, anomaly.SkipAlertBudget)
	}
	if ok, err = s.CheckProactiveCooldown(ctx); err != nil {
		return nil, err
	}
	if !ok {
		return s.skip(ctx, scan, anomaly.SkipCooldown)
	}

	recentW, baselineW := anomaly.Windows(scan.StartedAt)
	recent, err := s.metrics.Aggregate(ctx, recentW)
	if err != nil {
		return nil, fmt.Errorf("recent metrics: %w", err)
	}
	baseline, err := s.metrics.Aggregate(ctx, baselineW)
	if err != nil {
		return nil, fmt.Errorf("baseline metrics: %w", err)
	}

	found := anomaly.Detect(anomaly.NewSnapshot(recent, baseline), s.cfg.Thresholds)
	done := s.now()
	scan.CompletedAt = &done
	scan.AnomaliesFound = len(found)
	scan.Anomalies = found

	var escalateErr error
	if len(found) > 0 {
		t, err := s.tasks.Enqueue(ctx, &task.CreateRequest{
			Type:       task.TypeAnomalyAssessment,
			AssignedTo: s.cfg.AssessorRole,
			CreatedBy:  task.CreatedBySystem,
			Priority:   s.cfg.AssessmentPriority,
			Input: task.Input{
				Budget:  s.cfg.AssessmentBudget,
				Payload: &task.AnomalyAssessmentPayload{ScanID: scan.ID, Anomalies: found},
			},
		})
		if err != nil {
			escalateErr = fmt.Errorf("escalate scan %s: %w", scan.ID, err)
		} else {
			scan.TaskID = &t.ID
		}
	}

	if err := s.scans.RecordScan(ctx, scan); err != nil {
		return nil, fmt.Errorf("record scan: %w", errors.Join(err, escalateErr))
	}

	s.tel.Anomalies(ctx, len(found))
	if len(found) > 0 {
		var taskID string
		if scan.TaskID != nil {
			taskID = *scan.TaskID
		}
		publish(ctx, s.queue, messagequeue.SubjectAnomalyDetected, messagequeue.AnomalyDetectedPayload{
			ScanID:    scan.ID,
			Anomalies: len(found),
			TaskID:    taskID,
		})
	}
	slog.Info("proactive scan completed", "scan_id", scan.ID, "anomalies", len(found),
		"duration_ms", done.Sub(scan.StartedAt).Milliseconds())
	return scan, escalateErr
}

func (s *ProactiveScheduler) skip(ctx context.Context, scan *anomaly.Scan, reason string) (*anomaly.Scan, error) {
	scan.SkippedReason = reason
	if err := s.scans.RecordScan(ctx, scan); err != nil {
		return nil, fmt.Errorf("record skipped scan: %w", err)
	}
	slog.Debug("proactive scan skipped", "scan_id", scan.ID, "reason", reason)
	return scan, nil
}

// HandleAssessment acts on the alert flag of a finished anomaly assessment.
// A significant alert becomes an alert_dispatch task if today's alert
// quota allows it; the quota is consumed when that task is created.
func (s *ProactiveScheduler) HandleAssessment(ctx context.Context, assessment *task.Task, alert *reasoning.Alert) (*task.Task, error) {
	if alert == nil || !alert.Significant {
		return nil, nil
	}
	ok, err := s.CheckProactiveBudget(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Warn("proactive alert suppressed", "task_id", assessment.ID, "reason", anomaly.SkipAlertBudget)
		return nil, nil
	}

	payload := &task.AlertDispatchPayload{
		Title:            alert.Title,
		Message:          alert.Message,
		Level:            alert.Level,
		AssessmentTaskID: assessment.ID,
	}
	if payload.Title == "" {
		payload.Title = "Anomaly detected"
	}
	if payload.Level == "" {
		payload.Level = notifier.LevelWarning
	}
	if payload.Message == "" {
		payload.Message = describeAnomalies(assessment)
	}

	dispatch, err := s.tasks.Enqueue(ctx, &task.CreateRequest{
		Type:       task.TypeAlertDispatch,
		AssignedTo: s.cfg.AlertRole,
		CreatedBy:  assessment.AssignedTo,
		Priority:   s.cfg.AssessmentPriority,
		Input:      task.Input{Payload: payload},
	})
	if err != nil {
		return nil, fmt.Errorf("create alert dispatch: %w", err)
	}
	if err := s.budget.IncrementDailyUsage(ctx, s.cfg.AlertRole, budget.Increment{Alerts: 1}); err != nil {
		return dispatch, err
	}
	slog.Info("proactive alert queued", "task_id", dispatch.ID, "assessment_task_id", assessment.ID, "level", payload.Level)
	return dispatch, nil
}

func describeAnomalies(t *task.Task) string {
	p, ok := t.Input.Payload.(*task.AnomalyAssessmentPayload)
	if !ok || len(p.Anomalies) == 0 {
		return "An anomaly assessment flagged a significant deviation."
	}
	lines := make([]string, 0, len(p.Anomalies))
	for _, a := range p.Anomalies {
		lines = append(lines, "- "+a.Description)
	}
	return strings.Join(lines, "\n")
}
