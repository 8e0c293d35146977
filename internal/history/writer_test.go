package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

type recordingAppender struct {
	appended []*models.Message
	err      error
}

func (a *recordingAppender) Append(_ context.Context, _ string, msg *models.Message) error {
	if a.err != nil {
		return a.err
	}
	a.appended = append(a.appended, msg)
	return nil
}

func writerSession() *models.Session {
	return &models.Session{ID: "s1", ChatID: "c1", Channel: models.ChannelTelegram}
}

func TestWriterAppendsInOrder(t *testing.T) {
	current := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	store := &recordingAppender{}
	writer := NewWriter(store, clock, nil)
	session := writerSession()

	writer.AppendAssistant(context.Background(), session, "let me check", []models.ToolCall{{ID: "call-1", Name: "search"}})
	writer.AppendTool(context.Background(), session, "call-1", "search", "found it")
	writer.AppendFinalAssistant(context.Background(), session, "here you go")

	if len(session.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(session.Messages))
	}
	roles := []models.Role{models.RoleAssistant, models.RoleTool, models.RoleAssistant}
	for i, want := range roles {
		if session.Messages[i].Role != want {
			t.Errorf("message %d role = %s, want %s", i, session.Messages[i].Role, want)
		}
	}

	// Timestamps strictly increase, IDs are assigned, channel inherited.
	for i, msg := range session.Messages {
		if msg.ID == "" || msg.SessionID != "s1" {
			t.Errorf("message %d ids = %q/%q", i, msg.ID, msg.SessionID)
		}
		if msg.Channel != models.ChannelTelegram || msg.ChatID != "c1" {
			t.Errorf("message %d did not inherit session routing", i)
		}
		if i > 0 && !msg.CreatedAt.After(session.Messages[i-1].CreatedAt) {
			t.Errorf("message %d timestamp not after predecessor", i)
		}
	}

	tool := session.Messages[1]
	if tool.ToolCallID != "call-1" || tool.ToolName != "search" {
		t.Errorf("tool message = %+v", tool)
	}

	if len(store.appended) != 3 {
		t.Errorf("persisted = %d, want 3", len(store.appended))
	}
	if session.UpdatedAt != session.Messages[2].CreatedAt {
		t.Error("session UpdatedAt not advanced")
	}
}

func TestWriterPersistFailureKeepsHistory(t *testing.T) {
	writer := NewWriter(&recordingAppender{err: errors.New("disk full")}, nil, nil)
	session := writerSession()

	msg := writer.AppendFinalAssistant(context.Background(), session, "answer")
	if msg == nil || len(session.Messages) != 1 {
		t.Error("append dropped on persistence failure")
	}
}

func TestWriterWithoutStore(t *testing.T) {
	writer := NewWriter(nil, nil, nil)
	session := writerSession()

	writer.AppendFinalAssistant(context.Background(), session, "answer")
	if len(session.Messages) != 1 {
		t.Error("append failed without store")
	}
}
