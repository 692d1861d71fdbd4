package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/Conductor/internal/port/notifier"
)

func TestSendNotConfigured(t *testing.T) {
	err := NewNotifier("").Send(context.Background(), notifier.Notification{Title: "x"})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendPostsEmbed(t *testing.T) {
	var got webhook
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	err := n.Send(context.Background(), notifier.Notification{
		Title:   "Sentiment drop",
		Message: "average sentiment fell by 0.62",
		Level:   "critical",
		Source:  "proactive.alert",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %d", len(got.Embeds))
	}
	e := got.Embeds[0]
	if e.Color != 0xE74C3C {
		t.Errorf("color = %x", e.Color)
	}
	if e.Timestamp != "2024-05-01T12:00:00Z" {
		t.Errorf("timestamp = %q", e.Timestamp)
	}
	if e.Footer == nil || e.Footer.Text != "proactive.alert" {
		t.Errorf("footer = %+v", e.Footer)
	}
}

func TestBuildEmbedTruncates(t *testing.T) {
	n := NewNotifier("http://unused")
	e := n.buildEmbed(notifier.Notification{Message: strings.Repeat("a", maxDescription+10)})
	if len(e.Description) != maxDescription {
		t.Fatalf("description length = %d", len(e.Description))
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid Form Body"}`))
	}))
	defer srv.Close()

	err := NewNotifier(srv.URL).Send(context.Background(), notifier.Notification{Title: "x", Message: "y"})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected 400 error, got %v", err)
	}
}

func TestRegistered(t *testing.T) {
	n, err := notifier.New("discord", map[string]string{"webhook_url": "https://discord.test/api/webhooks/1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.Name() != "discord" {
		t.Errorf("name = %q", n.Name())
	}
}
