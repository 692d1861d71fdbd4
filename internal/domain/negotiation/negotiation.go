// Package negotiation defines the bounded request/response exchange between
// two agent roles and its state machine.
package negotiation

import (
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/Conductor/internal/domain"
)

var (
	// ErrPairNotAllowed is returned when the requester may not ask the responder.
	ErrPairNotAllowed = errors.New("negotiation pair not allowed")
	// ErrTooManyActive is returned when the requester already holds the maximum
	// number of active negotiations.
	ErrTooManyActive = errors.New("too many active negotiations")
	// ErrInvalidTransition is returned for a transition the current status forbids.
	ErrInvalidTransition = errors.New("invalid negotiation transition")
)

// Status is the state of a negotiation.
type Status string

const (
	StatusOpen      Status = "open"
	StatusResponded Status = "responded"
	StatusFollowUp  Status = "follow_up"
	StatusClosed    Status = "closed"
	StatusTimedOut  Status = "timed_out"
)

// IsActive reports whether the negotiation counts toward the requester's
// active limit.
func (s Status) IsActive() bool {
	return s == StatusOpen || s == StatusFollowUp
}

// Unsettled reports whether the negotiation still waits on a transition:
// active, or responded but not yet advanced.
func (s Status) Unsettled() bool {
	return s.IsActive() || s == StatusResponded
}

// IsTerminal reports whether the negotiation is finished.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusTimedOut
}

// Negotiation is a bounded conversation between two agent roles.
type Negotiation struct {
	ID              string     `json:"id"`
	RequestingAgent string     `json:"requesting_agent"`
	RespondingAgent string     `json:"responding_agent"`
	Status          Status     `json:"status"`
	Round           int        `json:"round"`
	RequestTaskID   *string    `json:"request_task_id,omitempty"`
	ResponseTaskID  *string    `json:"response_task_id,omitempty"`
	FollowUpTaskID  *string    `json:"follow_up_task_id,omitempty"`
	RequestSummary  string     `json:"request_summary"`
	QualityCriteria string     `json:"quality_criteria,omitempty"`
	NeededBy        *time.Time `json:"needed_by,omitempty"`
	ResponseSummary string     `json:"response_summary,omitempty"`
	CriteriaMet     bool       `json:"criteria_met"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// CreateRequest holds the fields needed to open a negotiation.
type CreateRequest struct {
	RequestingAgent string     `json:"requesting_agent"`
	RespondingAgent string     `json:"responding_agent"`
	RequestSummary  string     `json:"request_summary"`
	QualityCriteria string     `json:"quality_criteria,omitempty"`
	NeededBy        *time.Time `json:"needed_by,omitempty"`
}

// Validate checks required fields.
func (r *CreateRequest) Validate() error {
	switch {
	case r.RequestingAgent == "":
		return fmt.Errorf("%w: requesting_agent is required", domain.ErrValidation)
	case r.RespondingAgent == "":
		return fmt.Errorf("%w: responding_agent is required", domain.ErrValidation)
	case r.RequestingAgent == r.RespondingAgent:
		return fmt.Errorf("%w: an agent cannot negotiate with itself", domain.ErrValidation)
	case r.RequestSummary == "":
		return fmt.Errorf("%w: request_summary is required", domain.ErrValidation)
	}
	return nil
}

// Config bounds negotiations.
type Config struct {
	MaxRoundsPerNegotiation       int                 `yaml:"max_rounds_per_negotiation"`
	MaxActiveNegotiationsPerAgent int                 `yaml:"max_active_negotiations_per_agent"`
	NegotiationTimeoutMinutes     int                 `yaml:"negotiation_timeout_minutes"`
	AllowedPairs                  map[string][]string `yaml:"allowed_pairs"`
}

// DefaultConfig returns conservative defaults with no allowed pairs.
func DefaultConfig() Config {
	return Config{
		MaxRoundsPerNegotiation:       2,
		MaxActiveNegotiationsPerAgent: 3,
		NegotiationTimeoutMinutes:     60,
		AllowedPairs:                  map[string][]string{},
	}
}

// PairAllowed reports whether requester may open a negotiation with responder.
func (c *Config) PairAllowed(requester, responder string) bool {
	for _, r := range c.AllowedPairs[requester] {
		if r == responder {
			return true
		}
	}
	return false
}

// Timeout returns how long a negotiation may wait for a response.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.NegotiationTimeoutMinutes) * time.Minute
}

// New builds a fresh negotiation in round 1.
func New(req *CreateRequest, now time.Time) *Negotiation {
	return &Negotiation{
		RequestingAgent: req.RequestingAgent,
		RespondingAgent: req.RespondingAgent,
		Status:          StatusOpen,
		Round:           1,
		RequestSummary:  req.RequestSummary,
		QualityCriteria: req.QualityCriteria,
		NeededBy:        req.NeededBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// MarkResponded records the responder's answer for the current round.
func (n *Negotiation) MarkResponded(summary string, criteriaMet bool, now time.Time) error {
	if !n.Status.IsActive() {
		return fmt.Errorf("%w: respond from %s", ErrInvalidTransition, n.Status)
	}
	n.Status = StatusResponded
	n.ResponseSummary = summary
	n.CriteriaMet = criteriaMet
	n.UpdatedAt = now
	return nil
}

// WantsFollowUp reports whether a responded negotiation should go another
// round: criteria unmet and the round cap not yet reached.
func (n *Negotiation) WantsFollowUp(maxRounds int) bool {
	return n.Status == StatusResponded && !n.CriteriaMet && n.Round < maxRounds
}

// FollowUp advances a responded negotiation to the next round.
func (n *Negotiation) FollowUp(taskID string, maxRounds int, now time.Time) error {
	if !n.WantsFollowUp(maxRounds) {
		return fmt.Errorf("%w: follow-up from %s in round %d/%d", ErrInvalidTransition, n.Status, n.Round, maxRounds)
	}
	n.Status = StatusFollowUp
	n.Round++
	n.FollowUpTaskID = &taskID
	n.UpdatedAt = now
	return nil
}

// Close finishes a responded negotiation. responseTaskID may be nil when no
// response task was created.
func (n *Negotiation) Close(responseTaskID *string, now time.Time) error {
	if n.Status != StatusResponded {
		return fmt.Errorf("%w: close from %s", ErrInvalidTransition, n.Status)
	}
	n.Status = StatusClosed
	n.ResponseTaskID = responseTaskID
	n.UpdatedAt = now
	n.ClosedAt = &now
	return nil
}

// Expired reports whether an unsettled negotiation has waited longer than
// timeout since its last transition.
func (n *Negotiation) Expired(timeout time.Duration, now time.Time) bool {
	return n.Status.Unsettled() && now.Sub(n.UpdatedAt) > timeout
}

// TimeOut marks an unsettled negotiation as timed out.
func (n *Negotiation) TimeOut(now time.Time) error {
	if !n.Status.Unsettled() {
		return fmt.Errorf("%w: time out from %s", ErrInvalidTransition, n.Status)
	}
	n.Status = StatusTimedOut
	n.UpdatedAt = now
	n.ClosedAt = &now
	return nil
}
