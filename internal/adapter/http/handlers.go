package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Strob0t/Conductor/internal/domain/budget"
	"github.com/Strob0t/Conductor/internal/domain/negotiation"
	"github.com/Strob0t/Conductor/internal/domain/selection"
	"github.com/Strob0t/Conductor/internal/domain/task"
	"github.com/Strob0t/Conductor/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Tasks        *service.TaskService
	Budget       *service.BudgetService
	Negotiations *service.NegotiationService
	Proactive    *service.ProactiveScheduler
	Selection    *service.SelectionService
	Global       budget.Global
}

// NewHandlers builds Handlers from the wired services.
func NewHandlers(s *service.Services, global budget.Global) *Handlers {
	return &Handlers{
		Tasks:        s.Tasks,
		Budget:       s.Budget,
		Negotiations: s.Negotiations,
		Proactive:    s.Proactive,
		Selection:    s.Selection,
		Global:       global,
	}
}

// --- Tasks ---

// CreateTask handles POST /api/v1/tasks
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.Tasks.Enqueue, func(t *task.Task) string { return t.ID })(w, r)
}

// GetTask handles GET /api/v1/tasks/{id}
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Tasks.Get, "task not found")(w, r)
}

// ListAgentTasks handles GET /api/v1/agents/{agent}/tasks?status=&limit=
func (h *Handlers) ListAgentTasks(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", service.DefaultListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	status := task.Status(r.URL.Query().Get("status"))

	handleAgentList(func(ctx context.Context, agent string) ([]task.Task, error) {
		return h.Tasks.ListByStatus(ctx, agent, status, limit)
	})(w, r)
}

type completeRequest struct {
	Output json.RawMessage `json:"output"`
}

// CompleteTask handles POST /api/v1/tasks/{id}/complete
func (h *Handlers) CompleteTask(w http.ResponseWriter, r *http.Request) {
	handleAction(func(ctx context.Context, id string, req completeRequest) (*task.Task, error) {
		return h.Tasks.Complete(ctx, id, req.Output)
	}, "task not found")(w, r)
}

type failRequest struct {
	ErrorMessage string `json:"error_message"`
}

// FailTask handles POST /api/v1/tasks/{id}/fail
func (h *Handlers) FailTask(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[failRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.ErrorMessage, "error_message") {
		return
	}
	t, err := h.Tasks.Fail(r.Context(), id, req.ErrorMessage)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// --- Negotiations ---

// CreateNegotiation handles POST /api/v1/negotiations
func (h *Handlers) CreateNegotiation(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.Negotiations.Create, func(n *negotiation.Negotiation) string { return n.ID })(w, r)
}

// GetNegotiation handles GET /api/v1/negotiations/{id}
func (h *Handlers) GetNegotiation(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Negotiations.Get, "negotiation not found")(w, r)
}

// respondRequest answers Round, or the current round when Round is 0.
type respondRequest struct {
	Round           int    `json:"round,omitempty"`
	ResponseSummary string `json:"response_summary"`
	CriteriaMet     bool   `json:"criteria_met"`
}

// RespondNegotiation handles POST /api/v1/negotiations/{id}/respond
func (h *Handlers) RespondNegotiation(w http.ResponseWriter, r *http.Request) {
	handleAction(func(ctx context.Context, id string, req respondRequest) (*negotiation.Negotiation, error) {
		return h.Negotiations.Respond(ctx, id, req.Round, req.ResponseSummary, req.CriteriaMet)
	}, "negotiation not found")(w, r)
}

// ListAgentNegotiations handles GET /api/v1/agents/{agent}/negotiations
func (h *Handlers) ListAgentNegotiations(w http.ResponseWriter, r *http.Request) {
	handleAgentList(h.Negotiations.ListActive)(w, r)
}

// --- Budget ---

type usageResponse struct {
	Usage           *budget.DailyUsage `json:"usage"`
	MaxDailyLLM     int                `json:"max_daily_llm_calls"`
	MaxDailyAlerts  int                `json:"max_daily_proactive_alerts"`
	LLMExhausted    bool               `json:"llm_exhausted"`
	AlertsExhausted bool               `json:"alerts_exhausted"`
}

// GetAgentUsage handles GET /api/v1/agents/{agent}/usage
func (h *Handlers) GetAgentUsage(w http.ResponseWriter, r *http.Request) {
	u, err := h.Budget.Usage(r.Context(), urlParam(r, "agent"))
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{
		Usage:           u,
		MaxDailyLLM:     h.Global.MaxDailyLLMCalls,
		MaxDailyAlerts:  h.Global.MaxDailyProactiveAlerts,
		LLMExhausted:    u.LLMExhausted(h.Global),
		AlertsExhausted: u.AlertsExhausted(h.Global),
	})
}

// --- Triggers ---

// RunProactiveScan handles POST /api/v1/proactive/scan
func (h *Handlers) RunProactiveScan(w http.ResponseWriter, r *http.Request) {
	scan, err := h.Proactive.ProactiveScan(r.Context())
	if err != nil && scan == nil {
		writeInternalError(w, r, err)
		return
	}
	if err != nil {
		slog.Warn("proactive scan finished with error", "scan_id", scan.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, scan)
}

type selectionResponse struct {
	Decision *selection.Decision `json:"decision"`
	Task     *task.Task          `json:"task,omitempty"`
}

// RunSelection handles POST /api/v1/selection/run
func (h *Handlers) RunSelection(w http.ResponseWriter, r *http.Request) {
	d, t, err := h.Selection.RunCycle(r.Context())
	if err != nil && d == nil {
		writeInternalError(w, r, err)
		return
	}
	if err != nil {
		slog.Warn("selection cycle finished with error", "cycle", d.Cycle, "error", err)
	}
	writeJSON(w, http.StatusOK, selectionResponse{Decision: d, Task: t})
}
