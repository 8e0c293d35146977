package history

import (
	"strings"
	"testing"

	"github.com/haasonsaas/relay/pkg/models"
)

func userMsg(id, content string) *models.Message {
	return &models.Message{ID: id, Role: models.RoleUser, Content: content}
}

func assistantRound(id, content string, calls ...models.ToolCall) *models.Message {
	return &models.Message{ID: id, Role: models.RoleAssistant, Content: content, ToolCalls: calls}
}

func toolMsg(id, callID, name, content string) *models.Message {
	return &models.Message{ID: id, Role: models.RoleTool, ToolCallID: callID, ToolName: name, Content: content}
}

func TestFlattenToolRound(t *testing.T) {
	messages := []*models.Message{
		userMsg("m1", "what's the weather?"),
		assistantRound("m2", "checking", models.ToolCall{ID: "call-1", Name: "weather", Arguments: map[string]any{"city": "Berlin"}}),
		toolMsg("m3", "call-1", "weather", "12C, cloudy"),
		assistantRound("m4", "It's 12C and cloudy."),
	}

	out := Flatten(messages)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}

	flat := out[1]
	if flat.Role != models.RoleAssistant || flat.ToolCalls != nil {
		t.Errorf("flattened round = %+v", flat)
	}
	for _, want := range []string{"checking", "[Tool: weather] {city=Berlin}", "[Result: 12C, cloudy]"} {
		if !strings.Contains(flat.Content, want) {
			t.Errorf("content %q missing %q", flat.Content, want)
		}
	}

	// Input untouched.
	if len(messages[1].ToolCalls) != 1 || messages[2].Role != models.RoleTool {
		t.Error("Flatten mutated its input")
	}
}

func TestFlattenIdempotent(t *testing.T) {
	messages := []*models.Message{
		userMsg("m1", "hi"),
		assistantRound("m2", "", models.ToolCall{ID: "call-1", Name: "search"}),
		toolMsg("m3", "call-1", "search", "results"),
	}

	once := Flatten(messages)
	twice := Flatten(once)

	if len(once) != len(twice) {
		t.Fatalf("len changed: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Content != twice[i].Content || once[i].Role != twice[i].Role {
			t.Errorf("message %d changed on second pass", i)
		}
	}
}

func TestFlattenMissingResult(t *testing.T) {
	out := Flatten([]*models.Message{
		assistantRound("m1", "", models.ToolCall{ID: "call-1", Name: "search"}),
	})

	if !strings.Contains(out[0].Content, "[Result: <no response>]") {
		t.Errorf("content = %q", out[0].Content)
	}
}

func TestFlattenOrphanToolMessage(t *testing.T) {
	out := Flatten([]*models.Message{
		toolMsg("m1", "call-ghost", "search", "stale result"),
	})

	if len(out) != 1 {
		t.Fatalf("len = %d", len(out))
	}
	orphan := out[0]
	if orphan.Role != models.RoleAssistant || orphan.ToolCallID != "" {
		t.Errorf("orphan = %+v", orphan)
	}
	if orphan.Content != "[Tool: search] stale result" {
		t.Errorf("content = %q", orphan.Content)
	}
}

func TestFlattenTruncatesLongResults(t *testing.T) {
	out := Flatten([]*models.Message{
		assistantRound("m1", "", models.ToolCall{ID: "call-1", Name: "read"}),
		toolMsg("m2", "call-1", "read", strings.Repeat("x", maxFlattenedResultLen+100)),
	})

	if !strings.Contains(out[0].Content, "...") {
		t.Error("long result not truncated")
	}
	if len(out[0].Content) > maxFlattenedResultLen+200 {
		t.Errorf("content length = %d", len(out[0].Content))
	}
}

func TestFlattenNilSafety(t *testing.T) {
	if Flatten(nil) != nil {
		t.Error("Flatten(nil) != nil")
	}
	out := Flatten([]*models.Message{nil, userMsg("m1", "hi"), nil})
	if len(out) != 1 {
		t.Errorf("len = %d, want 1", len(out))
	}
}
