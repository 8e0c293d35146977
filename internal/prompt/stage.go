package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/skills"
	"github.com/haasonsaas/relay/pkg/models"
)

// DefaultIdentity is the prompt head used when no templated sections are
// configured.
const DefaultIdentity = "You are a helpful AI assistant."

// MemorySource supplies long-term memory context for the prompt.
type MemorySource interface {
	MemoryContext(ctx context.Context, sessionID string) string
}

// RAGSource retrieves passages relevant to the current input. Queries are
// skipped entirely when the source is unavailable.
type RAGSource interface {
	Available() bool
	Query(ctx context.Context, sessionID, text string) (string, error)
}

// MCPSource supplies the tools an active skill's MCP server provides,
// already adapted to the agent Tool interface.
type MCPSource interface {
	Tools(ctx context.Context, skill *skills.Skill) ([]agent.Tool, error)
}

// GoalSource supplies auto-mode goals and the tier auto turns run on.
type GoalSource interface {
	Goals(chatID string) string
	ModelTier() string
}

// PlanToolSource supplies the plan control tools advertised while plan
// mode is active.
type PlanToolSource interface {
	ControlTools(chatID string) []agent.Tool
}

// Builder assembles the system prompt and the tool set for a turn.
// Order 20: after skill routing, before the tool loop.
type Builder struct {
	sections  *SectionService
	skills    *skills.Store
	registry  *agent.ToolRegistry
	memory    MemorySource
	rag       RAGSource
	mcp       MCPSource
	goals     GoalSource
	planTools PlanToolSource
	now       func() time.Time
	logger    *slog.Logger
}

// NewBuilder creates the context building stage. All sources are
// optional; nil sources simply skip their section.
func NewBuilder(sections *SectionService, skillStore *skills.Store, registry *agent.ToolRegistry, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		sections: sections,
		skills:   skillStore,
		registry: registry,
		now:      time.Now,
		logger:   logger.With("component", "prompt"),
	}
}

// WithMemory sets the memory source.
func (b *Builder) WithMemory(memory MemorySource) *Builder {
	b.memory = memory
	return b
}

// WithRAG sets the retrieval source.
func (b *Builder) WithRAG(rag RAGSource) *Builder {
	b.rag = rag
	return b
}

// WithMCP sets the MCP tool source.
func (b *Builder) WithMCP(mcp MCPSource) *Builder {
	b.mcp = mcp
	return b
}

// WithGoals sets the auto-mode goal source.
func (b *Builder) WithGoals(goals GoalSource) *Builder {
	b.goals = goals
	return b
}

// WithPlanTools sets the plan control tool source.
func (b *Builder) WithPlanTools(planTools PlanToolSource) *Builder {
	b.planTools = planTools
	return b
}

func (b *Builder) Name() string  { return "context_building" }
func (b *Builder) Order() int    { return agent.OrderContextBuilding }
func (b *Builder) Enabled() bool { return true }

// ShouldProcess runs once per turn, before the first LLM call.
func (b *Builder) ShouldProcess(tc *agent.TurnContext) bool {
	return tc.Iteration == 0 && tc.SystemPrompt == ""
}

func (b *Builder) Process(ctx context.Context, tc *agent.TurnContext) error {
	tc.AvailableTools = b.assembleTools(ctx, tc)

	var parts []string
	if head := b.promptHead(tc); head != "" {
		parts = append(parts, head)
	}

	if section := b.memorySection(ctx, tc); section != "" {
		parts = append(parts, section)
	}
	if section := b.ragSection(ctx, tc); section != "" {
		parts = append(parts, section)
	}
	parts = append(parts, b.skillSection(tc))
	if section := b.pipelineSection(tc); section != "" {
		parts = append(parts, section)
	}
	if section := b.toolSection(tc); section != "" {
		parts = append(parts, section)
	}
	if section := b.goalSection(tc); section != "" {
		parts = append(parts, section)
	}

	tc.SystemPrompt = strings.Join(parts, "\n\n")
	b.logger.Debug("system prompt assembled",
		"sections", len(parts), "tools", len(tc.AvailableTools), "skill", tc.Routing.Skill)
	return nil
}

// promptHead renders the templated sections, falling back to the default
// identity line when the service is disabled or empty.
func (b *Builder) promptHead(tc *agent.TurnContext) string {
	if b.sections == nil || !b.sections.Enabled() {
		return DefaultIdentity
	}
	head := b.sections.Render(b.templateVariables(tc))
	if head == "" {
		return DefaultIdentity
	}
	return head
}

func (b *Builder) templateVariables(tc *agent.TurnContext) map[string]string {
	vars := map[string]string{
		"CHANNEL": string(tc.Session.Channel),
		"CHAT_ID": tc.Session.ChatID,
		"DATE":    b.now().Format("2006-01-02"),
		"TIME":    b.now().Format("15:04"),
	}
	if tc.ActiveSkill != nil {
		vars["SKILL"] = tc.ActiveSkill.Name
	}
	return vars
}

func (b *Builder) memorySection(ctx context.Context, tc *agent.TurnContext) string {
	if b.memory == nil {
		return ""
	}
	content := strings.TrimSpace(b.memory.MemoryContext(ctx, tc.Session.ID))
	if content == "" {
		return ""
	}
	return "# Memory\n" + content
}

func (b *Builder) ragSection(ctx context.Context, tc *agent.TurnContext) string {
	if b.rag == nil || !b.rag.Available() {
		return ""
	}
	text := lastUserText(tc.Messages)
	if text == "" {
		return ""
	}
	content, err := b.rag.Query(ctx, tc.Session.ID, text)
	if err != nil {
		b.logger.Warn("rag query failed", "error", err)
		return ""
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	return "# Relevant Memory\n" + content
}

func (b *Builder) skillSection(tc *agent.TurnContext) string {
	if tc.ActiveSkill != nil {
		return fmt.Sprintf("# Active Skill: %s\n%s", tc.ActiveSkill.Name, tc.ActiveSkill.Content)
	}
	return "# Available Skills\n" + b.skills.Summary()
}

func (b *Builder) pipelineSection(tc *agent.TurnContext) string {
	skill := tc.ActiveSkill
	if skill == nil || !skill.HasPipeline() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("# Skill Pipeline")
	if skill.NextSkill != "" {
		fmt.Fprintf(&sb, "\nDefault next skill: %s", skill.NextSkill)
	}
	conditions := make([]string, 0, len(skill.ConditionalNextSkills))
	for condition := range skill.ConditionalNextSkills {
		conditions = append(conditions, condition)
	}
	sort.Strings(conditions)
	for _, condition := range conditions {
		fmt.Fprintf(&sb, "\nIf %s: %s", condition, skill.ConditionalNextSkills[condition])
	}
	return sb.String()
}

func (b *Builder) toolSection(tc *agent.TurnContext) string {
	if len(tc.AvailableTools) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("# Available Tools")
	for _, tool := range tc.AvailableTools {
		fmt.Fprintf(&sb, "\n- %s", tool.Name())
	}
	return sb.String()
}

func (b *Builder) goalSection(tc *agent.TurnContext) string {
	if b.goals == nil || !tc.AutoMode() {
		return ""
	}
	tc.ModelTier = b.goals.ModelTier()
	goals := strings.TrimSpace(b.goals.Goals(tc.Session.ChatID))
	if goals == "" {
		return ""
	}
	return "# Goals\n" + goals
}

// assembleTools collects static enabled tools, the active skill's MCP
// tools, and plan control tools when plan mode is active.
func (b *Builder) assembleTools(ctx context.Context, tc *agent.TurnContext) []agent.Tool {
	var tools []agent.Tool
	if b.registry != nil {
		tools = append(tools, b.registry.Enabled()...)
	}

	if b.mcp != nil && tc.ActiveSkill != nil && tc.ActiveSkill.MCPConfig != nil {
		mcpTools, err := b.mcp.Tools(ctx, tc.ActiveSkill)
		if err != nil {
			// The skill still works without its MCP tools.
			b.logger.Warn("mcp tools unavailable", "skill", tc.ActiveSkill.Name, "error", err)
		} else {
			for _, tool := range mcpTools {
				if b.registry != nil {
					b.registry.Register(tool)
				}
				tools = append(tools, tool)
			}
		}
	}

	if tc.PlanModeActive && b.planTools != nil {
		for _, tool := range b.planTools.ControlTools(tc.Session.ChatID) {
			if b.registry != nil {
				b.registry.Register(tool)
			}
			tools = append(tools, tool)
		}
	}
	return tools
}

func lastUserText(messages []*models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i] != nil && messages[i].Role == models.RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}
