package prompt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/skills"
	"github.com/haasonsaas/relay/pkg/models"
)

func newTurn(content string) *agent.TurnContext {
	session := &models.Session{ID: "s1", ChatID: "c1", Channel: models.ChannelTelegram}
	msg := &models.Message{ID: "m1", Role: models.RoleUser, Content: content, CreatedAt: time.Now()}
	session.Messages = []*models.Message{msg}
	return agent.NewTurnContext(session, msg)
}

func newBuilder(sections *SectionService) *Builder {
	store := skills.NewStore(nil)
	store.Register(&skills.Skill{Name: "deploy", Description: "ship code", Available: true})
	return NewBuilder(sections, store, agent.NewToolRegistry(), nil)
}

func TestSectionServiceRender(t *testing.T) {
	service := NewSectionService(true, []Section{
		{Name: "rules", Order: 2, Enabled: true, Template: "Follow the rules."},
		{Name: "identity", Order: 1, Enabled: true, Template: "You are {{NAME}} on {{CHANNEL}}."},
		{Name: "off", Order: 3, Enabled: false, Template: "never rendered"},
	})

	got := service.Render(map[string]string{"NAME": "Relay", "CHANNEL": "telegram"})
	want := "You are Relay on telegram.\n\nFollow the rules."
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestBuilderDefaultIdentity(t *testing.T) {
	tests := []struct {
		name     string
		sections *SectionService
	}{
		{"nil service", nil},
		{"disabled service", NewSectionService(false, []Section{{Enabled: true, Template: "x"}})},
		{"zero sections", NewSectionService(true, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTurn("hi")
			if err := newBuilder(tt.sections).Process(context.Background(), tc); err != nil {
				t.Fatalf("Process: %v", err)
			}
			if !strings.HasPrefix(tc.SystemPrompt, DefaultIdentity) {
				t.Errorf("prompt = %q, want default identity head", tc.SystemPrompt)
			}
		})
	}
}

func TestBuilderTemplatedHead(t *testing.T) {
	sections := NewSectionService(true, []Section{
		{Name: "identity", Order: 1, Enabled: true, Template: "Relay on {{CHANNEL}} in chat {{CHAT_ID}}."},
	})
	tc := newTurn("hi")
	if err := newBuilder(sections).Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.HasPrefix(tc.SystemPrompt, "Relay on telegram in chat c1.") {
		t.Errorf("prompt = %q", tc.SystemPrompt)
	}
	if strings.Contains(tc.SystemPrompt, "{{") {
		t.Errorf("unsubstituted placeholder in %q", tc.SystemPrompt)
	}
}

type stubMemory struct{ content string }

func (m stubMemory) MemoryContext(context.Context, string) string { return m.content }

type stubRAG struct {
	available bool
	content   string
	queries   []string
}

func (r *stubRAG) Available() bool { return r.available }
func (r *stubRAG) Query(_ context.Context, _, text string) (string, error) {
	r.queries = append(r.queries, text)
	return r.content, nil
}

func TestBuilderMemoryAndRAGSections(t *testing.T) {
	rag := &stubRAG{available: true, content: "relevant passage"}
	builder := newBuilder(nil).
		WithMemory(stubMemory{content: "user likes short answers"}).
		WithRAG(rag)

	tc := newTurn("what did we decide?")
	if err := builder.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if !strings.Contains(tc.SystemPrompt, "# Memory\nuser likes short answers") {
		t.Errorf("memory section missing:\n%s", tc.SystemPrompt)
	}
	if !strings.Contains(tc.SystemPrompt, "# Relevant Memory\nrelevant passage") {
		t.Errorf("rag section missing:\n%s", tc.SystemPrompt)
	}
	if len(rag.queries) != 1 || rag.queries[0] != "what did we decide?" {
		t.Errorf("rag queries = %v", rag.queries)
	}
}

func TestBuilderRAGSkippedWhenUnavailable(t *testing.T) {
	rag := &stubRAG{available: false, content: "never"}
	tc := newTurn("hi")
	if err := newBuilder(nil).WithRAG(rag).Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(rag.queries) != 0 {
		t.Error("rag queried while unavailable")
	}
	if strings.Contains(tc.SystemPrompt, "# Relevant Memory") {
		t.Error("rag section present while unavailable")
	}
}

func TestBuilderSkillSections(t *testing.T) {
	t.Run("active skill", func(t *testing.T) {
		tc := newTurn("hi")
		tc.ActiveSkill = &skills.Skill{
			Name:      "deploy",
			Content:   "Always deploy via the pipeline.",
			NextSkill: "verify",
			ConditionalNextSkills: map[string]string{
				"tests failed": "rollback",
			},
		}
		if err := newBuilder(nil).Process(context.Background(), tc); err != nil {
			t.Fatalf("Process: %v", err)
		}
		if !strings.Contains(tc.SystemPrompt, "# Active Skill: deploy\nAlways deploy via the pipeline.") {
			t.Errorf("active skill section missing:\n%s", tc.SystemPrompt)
		}
		if !strings.Contains(tc.SystemPrompt, "# Skill Pipeline") ||
			!strings.Contains(tc.SystemPrompt, "Default next skill: verify") ||
			!strings.Contains(tc.SystemPrompt, "If tests failed: rollback") {
			t.Errorf("pipeline section missing:\n%s", tc.SystemPrompt)
		}
	})

	t.Run("no active skill lists available", func(t *testing.T) {
		tc := newTurn("hi")
		if err := newBuilder(nil).Process(context.Background(), tc); err != nil {
			t.Fatalf("Process: %v", err)
		}
		if !strings.Contains(tc.SystemPrompt, "# Available Skills") ||
			!strings.Contains(tc.SystemPrompt, "- deploy: ship code") {
			t.Errorf("available skills section missing:\n%s", tc.SystemPrompt)
		}
		if strings.Contains(tc.SystemPrompt, "# Skill Pipeline") {
			t.Error("pipeline section present without active skill")
		}
	})
}

func TestBuilderPipelineSectionDeterministic(t *testing.T) {
	skill := &skills.Skill{
		Name:    "deploy",
		Content: "Ship it.",
		ConditionalNextSkills: map[string]string{
			"tests failed":   "rollback",
			"needs approval": "review",
			"all green":      "announce",
		},
	}
	want := "# Skill Pipeline" +
		"\nIf all green: announce" +
		"\nIf needs approval: review" +
		"\nIf tests failed: rollback"

	for i := 0; i < 5; i++ {
		tc := newTurn("hi")
		tc.ActiveSkill = skill
		if err := newBuilder(nil).Process(context.Background(), tc); err != nil {
			t.Fatalf("Process: %v", err)
		}
		if !strings.Contains(tc.SystemPrompt, want) {
			t.Fatalf("pipeline section not sorted:\n%s", tc.SystemPrompt)
		}
	}
}

func TestBuilderToolAssembly(t *testing.T) {
	registry := agent.NewToolRegistry()
	registry.Register(&agent.ToolFunc{ToolName: "shell", Fn: noopTool})
	registry.Register(&agent.ToolFunc{ToolName: "disabled", Disabled: true, Fn: noopTool})

	store := skills.NewStore(nil)
	builder := NewBuilder(nil, store, registry, nil)

	tc := newTurn("hi")
	if err := builder.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(tc.AvailableTools) != 1 || tc.AvailableTools[0].Name() != "shell" {
		t.Errorf("available tools = %v", toolNames(tc.AvailableTools))
	}
	if !strings.Contains(tc.SystemPrompt, "# Available Tools\n- shell") {
		t.Errorf("tool section missing:\n%s", tc.SystemPrompt)
	}
	if strings.Contains(tc.SystemPrompt, "disabled") {
		t.Error("disabled tool advertised")
	}
}

type stubMCP struct{ tools []agent.Tool }

func (m stubMCP) Tools(context.Context, *skills.Skill) ([]agent.Tool, error) {
	return m.tools, nil
}

func TestBuilderMCPToolsForActiveSkill(t *testing.T) {
	registry := agent.NewToolRegistry()
	mcpTool := &agent.ToolFunc{ToolName: "jira_create", Fn: noopTool}
	builder := NewBuilder(nil, skills.NewStore(nil), registry, nil).
		WithMCP(stubMCP{tools: []agent.Tool{mcpTool}})

	tc := newTurn("hi")
	tc.ActiveSkill = &skills.Skill{
		Name:      "tickets",
		MCPConfig: &skills.MCPConfig{Command: "jira-mcp"},
	}
	if err := builder.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}

	names := toolNames(tc.AvailableTools)
	if len(names) != 1 || names[0] != "jira_create" {
		t.Errorf("available tools = %v", names)
	}
	if _, ok := registry.Get("jira_create"); !ok {
		t.Error("mcp tool not registered for execution")
	}
}

func TestBuilderNilRegistryTolerated(t *testing.T) {
	mcpTool := &agent.ToolFunc{ToolName: "jira_create", Fn: noopTool}
	builder := NewBuilder(nil, skills.NewStore(nil), nil, nil).
		WithMCP(stubMCP{tools: []agent.Tool{mcpTool}}).
		WithPlanTools(stubPlanTools{})

	tc := newTurn("hi")
	tc.ActiveSkill = &skills.Skill{
		Name:      "tickets",
		MCPConfig: &skills.MCPConfig{Command: "jira-mcp"},
	}
	tc.PlanModeActive = true
	if err := builder.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}

	names := toolNames(tc.AvailableTools)
	if !contains(names, "jira_create") || !contains(names, "plan_set_content") {
		t.Errorf("available tools = %v", names)
	}
}

type stubPlanTools struct{}

func (stubPlanTools) ControlTools(string) []agent.Tool {
	return []agent.Tool{
		&agent.ToolFunc{ToolName: "plan_set_content", Fn: noopTool},
		&agent.ToolFunc{ToolName: "plan_get", Fn: noopTool},
	}
}

func TestBuilderPlanControlTools(t *testing.T) {
	builder := newBuilder(nil).WithPlanTools(stubPlanTools{})

	tc := newTurn("hi")
	tc.PlanModeActive = true
	if err := builder.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}

	names := toolNames(tc.AvailableTools)
	if !contains(names, "plan_set_content") || !contains(names, "plan_get") {
		t.Errorf("plan control tools missing: %v", names)
	}

	inactive := newTurn("hi")
	if err := newBuilder(nil).WithPlanTools(stubPlanTools{}).Process(context.Background(), inactive); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if contains(toolNames(inactive.AvailableTools), "plan_set_content") {
		t.Error("plan tools advertised outside plan mode")
	}
}

type stubGoals struct{ goals, tier string }

func (g stubGoals) Goals(string) string { return g.goals }
func (g stubGoals) ModelTier() string   { return g.tier }

func TestBuilderGoalsInAutoMode(t *testing.T) {
	builder := newBuilder(nil).WithGoals(stubGoals{goals: "Summarize unread messages.", tier: "fast"})

	tc := newTurn("tick")
	tc.Session.Messages[0].Metadata = map[string]any{models.MetaAutoMode: true}
	if err := builder.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if !strings.Contains(tc.SystemPrompt, "# Goals\nSummarize unread messages.") {
		t.Errorf("goals section missing:\n%s", tc.SystemPrompt)
	}
	if tc.ModelTier != "fast" {
		t.Errorf("model tier = %q, want auto tier", tc.ModelTier)
	}

	manual := newTurn("hello there everyone")
	if err := builder.Process(context.Background(), manual); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if strings.Contains(manual.SystemPrompt, "# Goals") {
		t.Error("goals section present for manual turn")
	}
}

func noopTool(context.Context, map[string]any) (string, error) { return "", nil }

func toolNames(tools []agent.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name())
	}
	return names
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
