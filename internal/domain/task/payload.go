package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/Conductor/internal/domain/anomaly"
	"github.com/Strob0t/Conductor/internal/domain/budget"
)

// Type tags the shape of a task's input and output.
type Type string

const (
	TypeAnalysis            Type = "analysis"
	TypeDeepDive            Type = "deep_dive"
	TypeAnomalyAssessment   Type = "anomaly_assessment"
	TypeAlertDispatch       Type = "alert_dispatch"
	TypeNegotiationRequest  Type = "negotiation_request"
	TypeNegotiationResponse Type = "negotiation_response"
)

// payloadFactories maps each task type to a constructor for its payload variant.
var payloadFactories = map[Type]func() Payload{
	TypeAnalysis:            func() Payload { return &AnalysisPayload{} },
	TypeDeepDive:            func() Payload { return &DeepDivePayload{} },
	TypeAnomalyAssessment:   func() Payload { return &AnomalyAssessmentPayload{} },
	TypeAlertDispatch:       func() Payload { return &AlertDispatchPayload{} },
	TypeNegotiationRequest:  func() Payload { return &NegotiationRequestPayload{} },
	TypeNegotiationResponse: func() Payload { return &NegotiationResponsePayload{} },
}

// IsValid reports whether t has a registered payload variant.
func (t Type) IsValid() bool {
	_, ok := payloadFactories[t]
	return ok
}

// Payload is one variant of the task input union.
type Payload interface {
	TaskType() Type
	Validate() error
}

// Input is the input_data envelope: the budget spec plus the typed payload.
type Input struct {
	Budget  budget.Limits `json:"budget"`
	Payload Payload       `json:"payload"`
}

// DecodeInput decodes an input_data document for the given task type.
func DecodeInput(t Type, data []byte) (Input, error) {
	factory, ok := payloadFactories[t]
	if !ok {
		return Input{}, fmt.Errorf("unknown task_type %q", t)
	}
	var env struct {
		Budget  budget.Limits   `json:"budget"`
		Payload json.RawMessage `json:"payload"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil {
			return Input{}, fmt.Errorf("decode input_data: %w", err)
		}
	}
	p := factory()
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, p); err != nil {
			return Input{}, fmt.Errorf("decode %s payload: %w", t, err)
		}
	}
	return Input{Budget: env.Budget, Payload: p}, nil
}

// AnalysisPayload is a generic reasoning task.
type AnalysisPayload struct {
	Instructions string         `json:"instructions"`
	Context      map[string]any `json:"context,omitempty"`
}

func (*AnalysisPayload) TaskType() Type { return TypeAnalysis }

func (p *AnalysisPayload) Validate() error {
	if p.Instructions == "" {
		return errors.New("instructions is required")
	}
	return nil
}

// DeepDiveTopic is one selected candidate inside a deep-dive task.
type DeepDiveTopic struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Phase string  `json:"phase"`
	Score float64 `json:"score"`
}

// DeepDivePayload carries the outcome of a selection cycle.
type DeepDivePayload struct {
	Cycle     int             `json:"cycle"`
	Synthesis bool            `json:"synthesis"`
	Topics    []DeepDiveTopic `json:"topics"`
}

func (*DeepDivePayload) TaskType() Type { return TypeDeepDive }

func (p *DeepDivePayload) Validate() error {
	if len(p.Topics) == 0 {
		return errors.New("at least one topic is required")
	}
	if !p.Synthesis && len(p.Topics) != 1 {
		return errors.New("a single deep dive takes exactly one topic")
	}
	return nil
}

// AnomalyAssessmentPayload asks an assessor to judge detected anomalies.
type AnomalyAssessmentPayload struct {
	ScanID    string            `json:"scan_id"`
	Anomalies []anomaly.Anomaly `json:"anomalies"`
}

func (*AnomalyAssessmentPayload) TaskType() Type { return TypeAnomalyAssessment }

func (p *AnomalyAssessmentPayload) Validate() error {
	if len(p.Anomalies) == 0 {
		return errors.New("at least one anomaly is required")
	}
	return nil
}

// AlertDispatchPayload is a confirmed alert waiting to be sent.
type AlertDispatchPayload struct {
	Title            string `json:"title"`
	Message          string `json:"message"`
	Level            string `json:"level"`
	AssessmentTaskID string `json:"assessment_task_id,omitempty"`
}

func (*AlertDispatchPayload) TaskType() Type { return TypeAlertDispatch }

func (p *AlertDispatchPayload) Validate() error {
	if p.Message == "" {
		return errors.New("message is required")
	}
	return nil
}

// NegotiationRequestPayload asks the responder to produce more or better work.
type NegotiationRequestPayload struct {
	NegotiationID    string     `json:"negotiation_id"`
	Round            int        `json:"round"`
	RequestingAgent  string     `json:"requesting_agent"`
	RequestSummary   string     `json:"request_summary"`
	QualityCriteria  string     `json:"quality_criteria,omitempty"`
	NeededBy         *time.Time `json:"needed_by,omitempty"`
	PreviousResponse string     `json:"previous_response,omitempty"`
}

func (*NegotiationRequestPayload) TaskType() Type { return TypeNegotiationRequest }

func (p *NegotiationRequestPayload) Validate() error {
	if p.NegotiationID == "" {
		return errors.New("negotiation_id is required")
	}
	if p.Round < 1 {
		return errors.New("round must be >= 1")
	}
	return nil
}

// NegotiationResponsePayload hands the final answer back to the requester.
type NegotiationResponsePayload struct {
	NegotiationID   string `json:"negotiation_id"`
	Round           int    `json:"round"`
	RespondingAgent string `json:"responding_agent"`
	ResponseSummary string `json:"response_summary"`
	CriteriaMet     bool   `json:"criteria_met"`
}

func (*NegotiationResponsePayload) TaskType() Type { return TypeNegotiationResponse }

func (p *NegotiationResponsePayload) Validate() error {
	if p.NegotiationID == "" {
		return errors.New("negotiation_id is required")
	}
	return nil
}
