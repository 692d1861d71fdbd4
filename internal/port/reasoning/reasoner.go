// Package reasoning defines the port to the external reasoning service.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Strob0t/Conductor/internal/domain/budget"
	domainreasoning "github.com/Strob0t/Conductor/internal/domain/reasoning"
	"github.com/Strob0t/Conductor/internal/domain/task"
)

// ErrUnavailable is returned when the reasoning service cannot be reached
// (transport failure, open circuit breaker, 5xx).
var ErrUnavailable = errors.New("reasoning: service unavailable")

// Reasoner runs one stage of the reasoning loop.
type Reasoner interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// StageResult is the output of an earlier stage of the same task.
type StageResult struct {
	Stage  domainreasoning.State `json:"stage"`
	Output json.RawMessage       `json:"output"`
}

// Request is one stage call.
type Request struct {
	Stage     domainreasoning.State `json:"stage"`
	TaskID    string                `json:"task_id"`
	TaskType  task.Type             `json:"task_type"`
	Agent     string                `json:"agent"`
	Input     json.RawMessage       `json:"input"`
	Prior     []StageResult         `json:"prior,omitempty"`
	Remaining budget.Remaining      `json:"remaining"`
}

// Usage is the consumption reported by the service for one call.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// DataRequest asks the pipeline for more source material.
type DataRequest struct {
	Description string `json:"description"`
}

// NegotiationRequest asks another agent for input.
type NegotiationRequest struct {
	RespondingAgent string `json:"responding_agent"`
	RequestSummary  string `json:"request_summary"`
	QualityCriteria string `json:"quality_criteria,omitempty"`
}

// NegotiationReply is a responder's answer to a negotiation_request task.
type NegotiationReply struct {
	ResponseSummary string `json:"response_summary"`
	CriteriaMet     bool   `json:"criteria_met"`
}

// Alert is raised by an anomaly assessment.
type Alert struct {
	Significant bool   `json:"significant"`
	Title       string `json:"title,omitempty"`
	Message     string `json:"message,omitempty"`
	Level       string `json:"level,omitempty"`
}

// Response is the result of one stage call. Flags are optional.
type Response struct {
	Output             json.RawMessage     `json:"output"`
	Usage              Usage               `json:"usage"`
	Approved           bool                `json:"approved"` // critique stage only
	DataRequests       []DataRequest       `json:"data_requests,omitempty"`
	NegotiationRequest *NegotiationRequest `json:"negotiation_request,omitempty"`
	NegotiationReply   *NegotiationReply   `json:"negotiation_reply,omitempty"`
	Alert              *Alert              `json:"alert,omitempty"`
}
