package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// payload is implemented by every message schema.
type payload interface {
	check() error
}

// schemaFor returns an empty payload for subject and, for per-agent
// subjects, the agent the subject names. Unknown subjects return nil.
func schemaFor(subject string) (p payload, agent string) {
	switch {
	case strings.HasPrefix(subject, SubjectTaskCreated+"."):
		return &TaskCreatedPayload{}, strings.TrimPrefix(subject, SubjectTaskCreated+".")
	case strings.HasPrefix(subject, SubjectTaskFinished+"."):
		return &TaskFinishedPayload{}, strings.TrimPrefix(subject, SubjectTaskFinished+".")
	case subject == SubjectNegotiationUpdated:
		return &NegotiationUpdatedPayload{}, ""
	case subject == SubjectAnomalyDetected:
		return &AnomalyDetectedPayload{}, ""
	}
	return nil, ""
}

// Validate checks that data decodes into the schema of subject, carries its
// required fields and, on per-agent subjects, is addressed to that agent.
// Unknown subjects pass.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}
	p, agent := schemaFor(subject)
	if p == nil {
		return nil
	}

	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if err := p.check(); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if agent != "" {
		if to := assignedTo(p); to != agent {
			return fmt.Errorf("schema validation failed for %s: addressed to %q", subject, to)
		}
	}
	return nil
}

func assignedTo(p payload) string {
	switch v := p.(type) {
	case *TaskCreatedPayload:
		return v.AssignedTo
	case *TaskFinishedPayload:
		return v.AssignedTo
	}
	return ""
}

func required(fields ...[2]string) error {
	var errs []error
	for _, f := range fields {
		if f[1] == "" {
			errs = append(errs, fmt.Errorf("%s is required", f[0]))
		}
	}
	return errors.Join(errs...)
}
