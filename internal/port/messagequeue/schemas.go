package messagequeue

// TaskCreatedPayload is the schema for tasks.created.{agent} messages.
type TaskCreatedPayload struct {
	TaskID     string `json:"task_id"`
	TaskType   string `json:"task_type"`
	AssignedTo string `json:"assigned_to"`
	Priority   int    `json:"priority"`
}

func (p *TaskCreatedPayload) check() error {
	return required([2]string{"task_id", p.TaskID}, [2]string{"task_type", p.TaskType})
}

// TaskFinishedPayload is the schema for tasks.finished.{agent} messages.
type TaskFinishedPayload struct {
	TaskID        string `json:"task_id"`
	TaskType      string `json:"task_type"`
	AssignedTo    string `json:"assigned_to"`
	Status        string `json:"status"`
	BudgetLimited bool   `json:"budget_limited"`
	Error         string `json:"error,omitempty"`
}

func (p *TaskFinishedPayload) check() error {
	return required([2]string{"task_id", p.TaskID}, [2]string{"status", p.Status})
}

// NegotiationUpdatedPayload is the schema for negotiations.updated messages.
type NegotiationUpdatedPayload struct {
	NegotiationID   string `json:"negotiation_id"`
	RequestingAgent string `json:"requesting_agent"`
	RespondingAgent string `json:"responding_agent"`
	Status          string `json:"status"`
	Round           int    `json:"round"`
}

func (p *NegotiationUpdatedPayload) check() error {
	return required([2]string{"negotiation_id", p.NegotiationID}, [2]string{"status", p.Status})
}

// AnomalyDetectedPayload is the schema for anomalies.detected messages.
type AnomalyDetectedPayload struct {
	ScanID    string `json:"scan_id"`
	Anomalies int    `json:"anomalies"`
	TaskID    string `json:"task_id,omitempty"`
}

func (p *AnomalyDetectedPayload) check() error {
	return required([2]string{"scan_id", p.ScanID})
}
