package discord

import (
	"fmt"

	"github.com/Strob0t/Conductor/internal/port/notifier"
)

func init() {
	notifier.Register(providerName, func(settings map[string]string) (notifier.Notifier, error) {
		if settings["webhook_url"] == "" {
			return nil, fmt.Errorf("discord: %w: webhook_url is empty", notifier.ErrNotConfigured)
		}
		return NewNotifier(settings["webhook_url"]), nil
	})
}
