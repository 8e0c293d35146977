package channels

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/relay/pkg/models"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	cli := NewCLIAdapter(&bytes.Buffer{})
	registry.Register(cli)
	registry.Register(nil)

	got, ok := registry.Get(models.ChannelCLI)
	if !ok || got != cli {
		t.Errorf("Get = %v, %v", got, ok)
	}
	if _, ok := registry.Get(models.ChannelDiscord); ok {
		t.Error("unregistered channel found")
	}
	if types := registry.Types(); len(types) != 1 || types[0] != models.ChannelCLI {
		t.Errorf("Types = %v", types)
	}
}

func TestCLIAdapterSendMessage(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewCLIAdapter(&buf)

	err := adapter.SendMessage(context.Background(), "c1", "hello there",
		models.Attachment{Type: "image", URL: "https://example.com/a.png"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "hello there\n") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "[attachment: image https://example.com/a.png]") {
		t.Errorf("attachment missing: %q", out)
	}
}

func TestCLIAdapterEvents(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewCLIAdapter(&buf)
	event := models.NewRuntimeEvent(models.EventTurnStarted, &models.Session{ID: "s1", ChatID: "c1", Channel: models.ChannelCLI})

	// Suppressed by default.
	if err := adapter.SendRuntimeEvent(context.Background(), "c1", event); err != nil {
		t.Fatalf("SendRuntimeEvent: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("event echoed while disabled: %q", buf.String())
	}

	adapter.ShowEvents = true
	if err := adapter.SendRuntimeEvent(context.Background(), "c1", event); err != nil {
		t.Fatalf("SendRuntimeEvent: %v", err)
	}
	if !strings.Contains(buf.String(), "[turn_started]") {
		t.Errorf("output = %q", buf.String())
	}
}
