// Package litellm implements the reasoning port on top of the LiteLLM
// proxy's OpenAI-compatible chat completions API.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/Conductor/internal/config"
	domainreasoning "github.com/Strob0t/Conductor/internal/domain/reasoning"
	"github.com/Strob0t/Conductor/internal/port/reasoning"
	"github.com/Strob0t/Conductor/internal/resilience"
)

// headerResponseCost is set by the proxy to the USD cost of the call.
const headerResponseCost = "x-litellm-response-cost"

// Client talks to the LiteLLM proxy.
type Client struct {
	baseURL    string
	masterKey  string
	model      string
	maxTokens  int
	httpClient *http.Client
	breaker    *resilience.Breaker
}

var _ reasoning.Reasoner = (*Client)(nil)

// NewClient creates a LiteLLM client from configuration.
func NewClient(cfg config.LiteLLM) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    cfg.URL,
		masterKey:  cfg.MasterKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// stageReply is the JSON document every stage prompt asks the model for.
type stageReply struct {
	Output             json.RawMessage               `json:"output"`
	Approved           bool                          `json:"approved"`
	DataRequests       []reasoning.DataRequest       `json:"data_requests"`
	NegotiationRequest *reasoning.NegotiationRequest `json:"negotiation_request"`
	NegotiationReply   *reasoning.NegotiationReply   `json:"negotiation_reply"`
	Alert              *reasoning.Alert              `json:"alert"`
}

var stageInstructions = map[domainreasoning.State]string{
	domainreasoning.StateAssess:     "Assess the task input and decide what needs to be analyzed.",
	domainreasoning.StateAnalyze:    "Analyze the input using the prior stage results.",
	domainreasoning.StateSynthesize: "Synthesize the analysis into a result for the requester.",
	domainreasoning.StateCritique:   "Critique the synthesized result. Set approved to true only if it is ready to ship.",
}

const replyContract = `Reply with a single JSON object: {"output": <any>, "approved": bool, ` +
	`"data_requests": [{"description": string}], "negotiation_request": {"responding_agent": string, ` +
	`"request_summary": string, "quality_criteria": string} | null, "negotiation_reply": ` +
	`{"response_summary": string, "criteria_met": bool} | null, "alert": {"significant": bool, ` +
	`"title": string, "message": string, "level": string} | null}. Stay within the remaining budget.`

// Complete runs one reasoning stage. Transport failures, 5xx responses and
// an open breaker are reported as reasoning.ErrUnavailable.
func (c *Client) Complete(ctx context.Context, req *reasoning.Request) (*reasoning.Response, error) {
	user, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal stage request: %w", err)
	}
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf("You are the %s agent working on a %s task. %s %s",
				req.Agent, req.TaskType, stageInstructions[req.Stage], replyContract)},
			{Role: "user", Content: string(user)},
		},
		MaxTokens:      c.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
		Metadata:       map[string]any{"task_id": req.TaskID, "stage": string(req.Stage)},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	data, header, err := c.doRequest(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var chat chatResponse
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, fmt.Errorf("unmarshal chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("chat response: no choices: %w", reasoning.ErrUnavailable)
	}

	resp := parseReply(chat.Choices[0].Message.Content)
	resp.Usage = reasoning.Usage{
		PromptTokens:     chat.Usage.PromptTokens,
		CompletionTokens: chat.Usage.CompletionTokens,
	}
	if cost, err := strconv.ParseFloat(header.Get(headerResponseCost), 64); err == nil {
		resp.Usage.CostUSD = cost
	}
	return resp, nil
}

// parseReply decodes the model's JSON reply. Content that is not the
// expected object is kept verbatim as the stage output.
func parseReply(content string) *reasoning.Response {
	var r stageReply
	if err := json.Unmarshal([]byte(content), &r); err != nil || len(r.Output) == 0 {
		raw, _ := json.Marshal(content)
		return &reasoning.Response{Output: raw}
	}
	return &reasoning.Response{
		Output:             r.Output,
		Approved:           r.Approved,
		DataRequests:       r.DataRequests,
		NegotiationRequest: r.NegotiationRequest,
		NegotiationReply:   r.NegotiationReply,
		Alert:              r.Alert,
	}
}

// Health checks if LiteLLM is reachable.
func (c *Client) Health(ctx context.Context) error {
	_, _, err := c.doRequest(ctx, http.MethodGet, "/health/liveliness", nil)
	return err
}

// BreakerState reports the circuit breaker state, or "none".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "none"
	}
	return c.breaker.State()
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, http.Header, error) {
	var (
		result []byte
		header http.Header
	)
	call := func(ctx context.Context) error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("create request: %w", err))
		}

		req.Header.Set("Content-Type", "application/json")
		if c.masterKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.masterKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w: %w", reasoning.ErrUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w: %w", reasoning.ErrUnavailable, err)
		}

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("litellm API error %d: %w: %s", resp.StatusCode, reasoning.ErrUnavailable, string(data))
		case resp.StatusCode >= 400:
			return resilience.Permanent(fmt.Errorf("litellm API error %d: %s", resp.StatusCode, string(data)))
		}

		result = data
		header = resp.Header
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, nil, fmt.Errorf("%w: %w", reasoning.ErrUnavailable, err)
	}
	if err != nil {
		return nil, nil, err
	}
	return result, header, nil
}
