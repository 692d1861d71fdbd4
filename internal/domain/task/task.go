// Package task defines the Task domain entity and its typed input payloads.
package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/Conductor/internal/domain"
	"github.com/Strob0t/Conductor/internal/domain/budget"
)

// Status represents the current state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CreatedBySystem marks tasks produced by the engine itself rather than an agent.
const CreatedBySystem = "system"

// ErrStaleTimeout is the error_message written by the stale-task sweep.
const ErrStaleTimeout = "stale_timeout"

// Task represents a unit of queued work for one agent role.
type Task struct {
	ID           string          `json:"id"`
	Type         Type            `json:"task_type"`
	AssignedTo   string          `json:"assigned_to"`
	CreatedBy    string          `json:"created_by"`
	Status       Status          `json:"status"`
	Priority     int             `json:"priority"`
	Input        Input           `json:"input_data"`
	Output       json.RawMessage `json:"output_data,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ClaimedBy    string          `json:"claimed_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// CreateRequest holds the fields needed to enqueue a new task.
type CreateRequest struct {
	Type       Type   `json:"task_type"`
	AssignedTo string `json:"assigned_to"`
	CreatedBy  string `json:"created_by"`
	Priority   int    `json:"priority"`
	Input      Input  `json:"input_data"`
}

// UnmarshalJSON decodes input_data according to task_type.
func (r *CreateRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type       Type            `json:"task_type"`
		AssignedTo string          `json:"assigned_to"`
		CreatedBy  string          `json:"created_by"`
		Priority   int             `json:"priority"`
		Input      json.RawMessage `json:"input_data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	in, err := DecodeInput(raw.Type, raw.Input)
	if err != nil {
		return err
	}
	*r = CreateRequest{
		Type:       raw.Type,
		AssignedTo: raw.AssignedTo,
		CreatedBy:  raw.CreatedBy,
		Priority:   raw.Priority,
		Input:      in,
	}
	return nil
}

// Validate checks the request at the queue boundary.
func (r *CreateRequest) Validate() error {
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: unknown task_type %q", domain.ErrValidation, r.Type)
	}
	if r.AssignedTo == "" {
		return fmt.Errorf("%w: assigned_to is required", domain.ErrValidation)
	}
	if r.CreatedBy == "" {
		return fmt.Errorf("%w: created_by is required", domain.ErrValidation)
	}
	if r.Input.Payload == nil {
		return fmt.Errorf("%w: input_data.payload is required", domain.ErrValidation)
	}
	if got := r.Input.Payload.TaskType(); got != r.Type {
		return fmt.Errorf("%w: payload is for %q, task_type is %q", domain.ErrValidation, got, r.Type)
	}
	if err := r.Input.Payload.Validate(); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}
	if err := r.Input.Budget.Validate(); err != nil {
		return fmt.Errorf("%w: budget: %s", domain.ErrValidation, err.Error())
	}
	return nil
}

// Output is the structured output_data written on completion.
type Output struct {
	Result        json.RawMessage `json:"result,omitempty"`
	BudgetUsage   budget.Usage    `json:"budget_usage"`
	BudgetLimited bool            `json:"budget_limited"`
	LimitReason   budget.Reason   `json:"limit_reason,omitempty"`
	FinalStage    string          `json:"final_stage,omitempty"`
}

// UnmarshalJSON decodes input_data according to task_type.
func (t *Task) UnmarshalJSON(data []byte) error {
	type alias Task
	var raw struct {
		alias
		Input json.RawMessage `json:"input_data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	in, err := DecodeInput(raw.Type, raw.Input)
	if err != nil {
		return err
	}
	*t = Task(raw.alias)
	t.Input = in
	return nil
}
