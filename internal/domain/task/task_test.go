package task_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Strob0t/Conductor/internal/domain"
	"github.com/Strob0t/Conductor/internal/domain/anomaly"
	"github.com/Strob0t/Conductor/internal/domain/budget"
	"github.com/Strob0t/Conductor/internal/domain/task"
)

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status task.Status
		want   bool
	}{
		{task.StatusPending, false},
		{task.StatusInProgress, false},
		{task.StatusCompleted, true},
		{task.StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCreateRequestValidate(t *testing.T) {
	valid := task.CreateRequest{
		Type:       task.TypeAnalysis,
		AssignedTo: "analyst",
		CreatedBy:  task.CreatedBySystem,
		Input: task.Input{
			Budget:  budget.DefaultLimits(),
			Payload: &task.AnalysisPayload{Instructions: "summarize"},
		},
	}

	tests := []struct {
		name    string
		mutate  func(r *task.CreateRequest)
		wantErr bool
	}{
		{"valid", func(*task.CreateRequest) {}, false},
		{"unknown type", func(r *task.CreateRequest) { r.Type = "bogus" }, true},
		{"missing assignee", func(r *task.CreateRequest) { r.AssignedTo = "" }, true},
		{"missing creator", func(r *task.CreateRequest) { r.CreatedBy = "" }, true},
		{"nil payload", func(r *task.CreateRequest) { r.Input.Payload = nil }, true},
		{"mismatched payload", func(r *task.CreateRequest) {
			r.Input.Payload = &task.AlertDispatchPayload{Message: "x"}
		}, true},
		{"invalid payload", func(r *task.CreateRequest) {
			r.Input.Payload = &task.AnalysisPayload{}
		}, true},
		{"negative budget", func(r *task.CreateRequest) { r.Input.Budget.MaxSeconds = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateRequestUnmarshal_SelectsVariant(t *testing.T) {
	body := `{
		"task_type": "anomaly_assessment",
		"assigned_to": "analyst",
		"created_by": "system",
		"priority": 2,
		"input_data": {
			"budget": {"max_llm_calls": 2, "max_seconds": 60},
			"payload": {"scan_id": "s1", "anomalies": [{"type": "volume_spike", "subject": "all", "recent_value": 30, "baseline_value": 10}]}
		}
	}`

	var req task.CreateRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	p, ok := req.Input.Payload.(*task.AnomalyAssessmentPayload)
	if !ok {
		t.Fatalf("expected *AnomalyAssessmentPayload, got %T", req.Input.Payload)
	}
	if len(p.Anomalies) != 1 || p.Anomalies[0].Type != anomaly.TypeVolumeSpike {
		t.Fatalf("unexpected anomalies: %+v", p.Anomalies)
	}
	if req.Input.Budget.MaxLLMCalls != 2 {
		t.Fatalf("expected budget max_llm_calls=2, got %d", req.Input.Budget.MaxLLMCalls)
	}
}

func TestCreateRequestUnmarshal_UnknownType(t *testing.T) {
	var req task.CreateRequest
	err := json.Unmarshal([]byte(`{"task_type":"nope","input_data":{}}`), &req)
	if err == nil {
		t.Fatal("expected error for unknown task_type")
	}
}

func TestTaskJSONRoundTripKeepsVariant(t *testing.T) {
	in := task.Task{
		ID:   "t1",
		Type: task.TypeNegotiationRequest,
		Input: task.Input{
			Budget: budget.DefaultLimits(),
			Payload: &task.NegotiationRequestPayload{
				NegotiationID: "n1", Round: 2, RequestingAgent: "newsletter",
			},
		},
		Status: task.StatusPending,
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out task.Task
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	p, ok := out.Input.Payload.(*task.NegotiationRequestPayload)
	if !ok || p.Round != 2 || p.NegotiationID != "n1" {
		t.Fatalf("payload not preserved: %#v", out.Input.Payload)
	}
}

func TestDeepDivePayloadValidate(t *testing.T) {
	single := &task.DeepDivePayload{Topics: []task.DeepDiveTopic{{ID: "a"}, {ID: "b"}}}
	if err := single.Validate(); err == nil {
		t.Fatal("single deep dive with two topics must be rejected")
	}
	synth := &task.DeepDivePayload{Synthesis: true, Topics: []task.DeepDiveTopic{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	if err := synth.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
