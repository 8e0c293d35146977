package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/pkg/models"
)

// Clock supplies timestamps for appended messages. Injectable for tests.
type Clock func() time.Time

// Appender persists appended messages. Satisfied by sessions.Store.
type Appender interface {
	Append(ctx context.Context, sessionID string, msg *models.Message) error
}

// Writer appends assistant, tool, and final messages to a session with
// stable ordering. It never reorders or removes; each append is atomic.
// Appended messages inherit channel and chat ID from the session.
type Writer struct {
	store  Appender
	clock  Clock
	logger *slog.Logger
}

// NewWriter creates a history writer. The store is optional; when set,
// every append is also persisted. If clock is nil, time.Now is used.
func NewWriter(store Appender, clock Clock, logger *slog.Logger) *Writer {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, clock: clock, logger: logger.With("component", "history")}
}

// AppendAssistant appends an assistant message carrying content and
// optional tool calls.
func (w *Writer) AppendAssistant(ctx context.Context, session *models.Session, content string, toolCalls []models.ToolCall) *models.Message {
	msg := w.newMessage(session, models.RoleAssistant, content)
	msg.ToolCalls = toolCalls
	w.append(ctx, session, msg)
	return msg
}

// AppendTool appends a tool-role message answering the given tool call.
func (w *Writer) AppendTool(ctx context.Context, session *models.Session, toolCallID, toolName, content string) *models.Message {
	msg := w.newMessage(session, models.RoleTool, content)
	msg.ToolCallID = toolCallID
	msg.ToolName = toolName
	w.append(ctx, session, msg)
	return msg
}

// AppendFinalAssistant appends the final assistant answer for a turn.
func (w *Writer) AppendFinalAssistant(ctx context.Context, session *models.Session, content string) *models.Message {
	msg := w.newMessage(session, models.RoleAssistant, content)
	w.append(ctx, session, msg)
	return msg
}

func (w *Writer) newMessage(session *models.Session, role models.Role, content string) *models.Message {
	return &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      role,
		Content:   content,
		Channel:   session.Channel,
		ChatID:    session.ChatID,
		CreatedAt: w.clock(),
	}
}

func (w *Writer) append(ctx context.Context, session *models.Session, msg *models.Message) {
	session.Messages = append(session.Messages, msg)
	session.UpdatedAt = msg.CreatedAt
	if w.store == nil {
		return
	}
	if err := w.store.Append(ctx, session.ID, msg); err != nil {
		// History already holds the message; persistence is best-effort.
		w.logger.Warn("failed to persist message", "session_id", session.ID, "role", msg.Role, "error", err)
	}
}
