package agent

import (
	"context"
	"sort"
	"sync"
)

// Tool is an executable capability advertised to the LLM.
type Tool interface {
	// Name is the unique tool identifier.
	Name() string

	// Description explains the tool to the model.
	Description() string

	// Schema is the JSON schema of the tool's arguments.
	Schema() map[string]any

	// Enabled reports whether the tool may be advertised and executed.
	Enabled() bool

	// Execute runs the tool and returns its output.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolDefinition is the wire-level description of a tool.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// Definition renders a tool's wire-level description.
func Definition(t Tool) ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Schema:      t.Schema(),
	}
}

// ToolRegistry holds the tools available to the agent.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(tool Tool) {
	if tool == nil {
		return
	}
	r.mu.Lock()
	r.tools[tool.Name()] = tool
	r.mu.Unlock()
}

// Unregister removes a tool by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	delete(r.tools, name)
	r.mu.Unlock()
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Enabled returns all enabled tools sorted by name.
func (r *ToolRegistry) Enabled() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		if tool.Enabled() {
			out = append(out, tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ToolFunc adapts a function to the Tool interface.
type ToolFunc struct {
	ToolName        string
	ToolDescription string
	ToolSchema      map[string]any
	Disabled        bool
	Fn              func(ctx context.Context, args map[string]any) (string, error)
}

func (t *ToolFunc) Name() string            { return t.ToolName }
func (t *ToolFunc) Description() string     { return t.ToolDescription }
func (t *ToolFunc) Schema() map[string]any  { return t.ToolSchema }
func (t *ToolFunc) Enabled() bool           { return !t.Disabled }
func (t *ToolFunc) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.Fn(ctx, args)
}
