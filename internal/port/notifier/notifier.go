// Package notifier defines the outbound notification port used to reach
// humans when a proactive alert fires.
package notifier

import (
	"context"
	"errors"
	"strings"
)

// ErrNotConfigured is returned by a channel that lacks its credentials.
var ErrNotConfigured = errors.New("notifier: not configured")

// Alert severities understood by every channel.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// NormalizeLevel maps free-form severities onto the three known levels.
// Unrecognized values fall back to info.
func NormalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case LevelCritical, "error", "high":
		return LevelCritical
	case LevelWarning, "warn", "medium":
		return LevelWarning
	default:
		return LevelInfo
	}
}

// Notification is what a channel delivers.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`
	Source  string `json:"source"` // e.g. "proactive.alert"
}

// Notifier delivers a Notification. Delivery is best effort; callers fan
// out across channels and tolerate individual failures.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}
