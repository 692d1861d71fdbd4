// Package discord delivers proactive alerts to a Discord webhook as embeds.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/Conductor/internal/port/notifier"
)

const (
	providerName = "discord"

	// Discord rejects embed descriptions longer than this.
	maxDescription = 4096
)

// Notifier posts embeds to one webhook.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	now        func() time.Time
}

var _ notifier.Notifier = (*Notifier)(nil)

// NewNotifier creates a Discord notifier with the given webhook URL.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

func (n *Notifier) Name() string { return providerName }

type webhook struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Timestamp   string  `json:"timestamp"`
	Footer      *footer `json:"footer,omitempty"`
}

type footer struct {
	Text string `json:"text"`
}

func (n *Notifier) buildEmbed(nt notifier.Notification) embed {
	desc := nt.Message
	if len(desc) > maxDescription {
		desc = desc[:maxDescription-3] + "..."
	}
	e := embed{
		Title:       nt.Title,
		Description: desc,
		Color:       levelColor(nt.Level),
		Timestamp:   n.now().UTC().Format(time.RFC3339),
	}
	if nt.Source != "" {
		e.Footer = &footer{Text: nt.Source}
	}
	return e
}

// Send posts the notification. Discord answers 204 on success.
func (n *Notifier) Send(ctx context.Context, nt notifier.Notification) error {
	if n.webhookURL == "" {
		return notifier.ErrNotConfigured
	}

	body, err := json.Marshal(webhook{Embeds: []embed{n.buildEmbed(nt)}})
	if err != nil {
		return fmt.Errorf("discord marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("discord API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// levelColor returns the embed color for a notification level.
func levelColor(level string) int {
	switch notifier.NormalizeLevel(level) {
	case notifier.LevelCritical:
		return 0xE74C3C // red
	case notifier.LevelWarning:
		return 0xF39C12 // orange
	default:
		return 0x3498DB // blue
	}
}
