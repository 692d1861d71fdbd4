package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/Conductor/internal/config"
	"github.com/Strob0t/Conductor/internal/domain/selection"
	"github.com/Strob0t/Conductor/internal/domain/task"
	"github.com/Strob0t/Conductor/internal/port/topicsource"
)

// SelectionService runs topic selection cycles.
type SelectionService struct {
	topics topicsource.Source
	tasks  *TaskService
	cfg    config.Selection
}

// NewSelectionService creates a SelectionService.
func NewSelectionService(topics topicsource.Source, tasks *TaskService, cfg config.Selection) *SelectionService {
	return &SelectionService{topics: topics, tasks: tasks, cfg: cfg}
}

// RunCycle scores the current candidates and enqueues one deep_dive task
// for the pick (or the synthesis set). With no candidates nothing is
// created and the returned task is nil.
func (s *SelectionService) RunCycle(ctx context.Context) (*selection.Decision, *task.Task, error) {
	cycle, err := s.topics.NextCycle(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("next cycle: %w", err)
	}
	cands, err := s.topics.Candidates(ctx, s.cfg.CandidateLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("load candidates: %w", err)
	}

	d := selection.Select(cands, cycle, s.cfg.Params)
	if d.Mode == selection.ModeNone {
		slog.Info("selection cycle found no candidates", "cycle", cycle)
		return &d, nil, nil
	}

	topics := make([]task.DeepDiveTopic, 0, len(d.Picks))
	for _, p := range d.Picks {
		topics = append(topics, task.DeepDiveTopic{
			ID:    p.ID,
			Name:  p.Name,
			Phase: string(p.Phase),
			Score: p.FinalScore,
		})
	}

	t, err := s.tasks.Enqueue(ctx, &task.CreateRequest{
		Type:       task.TypeDeepDive,
		AssignedTo: s.cfg.Role,
		CreatedBy:  task.CreatedBySystem,
		Priority:   s.cfg.Priority,
		Input: task.Input{Payload: &task.DeepDivePayload{
			Cycle:     cycle,
			Synthesis: d.Mode == selection.ModeSynthesis,
			Topics:    topics,
		}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("enqueue deep dive: %w", err)
	}
	if err := s.topics.RecordSelection(ctx, &d, t.ID); err != nil {
		return &d, t, fmt.Errorf("record selection: %w", err)
	}

	slog.Info("selection cycle completed", "cycle", cycle, "mode", d.Mode, "picks", len(d.Picks),
		"candidates", len(cands), "task_id", t.ID)
	return &d, t, nil
}
