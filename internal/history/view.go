package history

import (
	"fmt"
	"log/slog"

	"github.com/haasonsaas/relay/pkg/models"
)

// ViewBuilder derives the message list sent to the LLM from raw session
// history. On a model switch it applies the flattening masker so the new
// model never sees tool-call structures produced under the old one. Raw
// history is never mutated.
type ViewBuilder struct {
	masker *FlatteningToolMessageMasker
}

// NewViewBuilder creates a conversation view builder.
func NewViewBuilder(logger *slog.Logger) *ViewBuilder {
	return &ViewBuilder{masker: NewFlatteningToolMessageMasker(logger)}
}

// Build returns the conversation view for an LLM request. When modelSwitch
// is false, messages pass through unchanged.
func (b *ViewBuilder) Build(messages []*models.Message, modelSwitch bool) []*models.Message {
	if !modelSwitch {
		return messages
	}
	return b.masker.Mask(messages)
}

// FlatteningToolMessageMasker converts tool-call structures into opaque
// assistant text. Applied when the driving model changes mid-session.
type FlatteningToolMessageMasker struct {
	logger *slog.Logger
}

// NewFlatteningToolMessageMasker creates a masker.
func NewFlatteningToolMessageMasker(logger *slog.Logger) *FlatteningToolMessageMasker {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlatteningToolMessageMasker{logger: logger.With("component", "masker")}
}

// Mask replaces assistant tool-call messages and tool messages with plain
// assistant text. Nil messages in the input are skipped. The input slice
// and its messages are left untouched.
func (m *FlatteningToolMessageMasker) Mask(messages []*models.Message) []*models.Message {
	out := make([]*models.Message, 0, len(messages))
	transformed := 0

	for _, msg := range messages {
		switch {
		case msg == nil:
			continue

		case msg.Role == models.RoleAssistant && len(msg.ToolCalls) > 0:
			masked := msg.Clone()
			masked.Content = fmt.Sprintf("%s [masked: %d tool call(s)]", msg.Content, len(msg.ToolCalls))
			masked.ToolCalls = nil
			out = append(out, masked)
			transformed++
			m.logger.Debug("masked assistant tool calls", "message_id", msg.ID, "tool_calls", len(msg.ToolCalls))

		case msg.Role == models.RoleTool:
			name := msg.ToolName
			if name == "" {
				name = "tool"
			}
			masked := msg.Clone()
			masked.Role = models.RoleAssistant
			masked.Content = fmt.Sprintf("[Tool result: %s]%s", name, msg.Content)
			masked.ToolCallID = ""
			masked.ToolName = ""
			out = append(out, masked)
			transformed++
			m.logger.Debug("masked tool result", "message_id", msg.ID, "tool_name", name)

		default:
			out = append(out, msg)
		}
	}

	if transformed == 0 {
		m.logger.Debug("no-op: no tool messages found")
	}
	return out
}
