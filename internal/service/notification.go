package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/Conductor/internal/port/notifier"
)

// NotificationService fans a notification out to every configured channel.
type NotificationService struct {
	notifiers []notifier.Notifier
}

// NewNotificationService creates a NotificationService. With no notifiers,
// notifications are written to the log.
func NewNotificationService(notifiers ...notifier.Notifier) *NotificationService {
	return &NotificationService{notifiers: notifiers}
}

// Notify sends n to all notifiers and returns how many accepted it. A
// failing channel does not stop delivery to the others; an error is
// returned only when every channel failed.
func (s *NotificationService) Notify(ctx context.Context, n notifier.Notification) (int, error) {
	if len(s.notifiers) == 0 {
		slog.Info("notification", "title", n.Title, "level", n.Level, "source", n.Source, "message", n.Message)
		return 0, nil
	}

	var (
		delivered int
		errs      []error
	)
	for _, provider := range s.notifiers {
		if err := provider.Send(ctx, n); err != nil {
			slog.Warn("notification send failed",
				"provider", provider.Name(),
				"title", n.Title,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
			continue
		}
		delivered++
		slog.Debug("notification sent", "provider", provider.Name(), "title", n.Title)
	}
	if delivered == 0 {
		return 0, errors.Join(errs...)
	}
	return delivered, nil
}

// NotifierCount returns the number of registered notifiers.
func (s *NotificationService) NotifierCount() int {
	return len(s.notifiers)
}
