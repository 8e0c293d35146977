// Package history owns session message persistence and the transformations
// that derive LLM-facing views from raw history: tool-round flattening,
// model-switch masking, and the append-only history writer.
package history

import (
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/relay/pkg/models"
)

// maxFlattenedResultLen truncates tool results embedded in flattened
// assistant text.
const maxFlattenedResultLen = 2000

// Flatten replaces each complete tool round (an assistant message with
// tool calls plus the tool messages answering them) with a single
// assistant message whose content concatenates the original assistant text
// and a rendered segment per tool call. Orphan tool messages are converted
// to assistant role with a tool header. Flatten is idempotent, nil-safe,
// and never mutates its input.
func Flatten(messages []*models.Message) []*models.Message {
	if messages == nil {
		return nil
	}
	out := make([]*models.Message, 0, len(messages))

	// Index tool results by the call they answer.
	resultsByCall := make(map[string]*models.Message)
	consumed := make(map[string]bool)
	for _, m := range messages {
		if m == nil || m.Role != models.RoleTool || m.ToolCallID == "" {
			continue
		}
		if _, ok := resultsByCall[m.ToolCallID]; !ok {
			resultsByCall[m.ToolCallID] = m
		}
	}

	for _, m := range messages {
		switch {
		case m == nil:
			continue

		case m.Role == models.RoleAssistant && len(m.ToolCalls) > 0:
			flat := m.Clone()
			var b strings.Builder
			if m.Content != "" {
				b.WriteString(m.Content)
			}
			for _, call := range m.ToolCalls {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(renderToolSegment(call, resultsByCall[call.ID]))
				if res := resultsByCall[call.ID]; res != nil {
					consumed[call.ID] = true
				}
			}
			flat.Content = b.String()
			flat.ToolCalls = nil
			out = append(out, flat)

		case m.Role == models.RoleTool:
			if m.ToolCallID != "" && consumed[m.ToolCallID] {
				continue
			}
			// Orphan tool message with no owning assistant round.
			orphan := m.Clone()
			orphan.Role = models.RoleAssistant
			name := m.ToolName
			if name == "" {
				name = "tool"
			}
			orphan.Content = fmt.Sprintf("[Tool: %s] %s", name, m.Content)
			orphan.ToolCallID = ""
			orphan.ToolName = ""
			out = append(out, orphan)

		default:
			out = append(out, m)
		}
	}

	return out
}

// renderToolSegment renders one tool call and its result for flattened
// assistant text.
func renderToolSegment(call models.ToolCall, result *models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Tool: %s] %s\n", call.Name, summarizeArguments(call.Arguments))
	switch {
	case result == nil:
		b.WriteString("[Result: <no response>]")
	case result.Content == "":
		b.WriteString("[Result: <empty>]")
	default:
		b.WriteString("[Result: " + truncate(result.Content, maxFlattenedResultLen) + "]")
	}
	return b.String()
}

// summarizeArguments renders tool arguments as a stable key=value list.
func summarizeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
