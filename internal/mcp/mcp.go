// Package mcp exposes external tool-server tools to the agent. The wire
// protocol lives behind the Client port; this package manages one client
// per skill and adapts served tools to the agent's Tool interface.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/skills"
)

// Client is a connected tool server.
type Client interface {
	// ListTools returns the definitions the server currently serves.
	ListTools(ctx context.Context) ([]agent.ToolDefinition, error)

	// CallTool invokes one served tool.
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)

	// Close shuts the client down.
	Close() error
}

// ClientFactory starts a client for a skill's server configuration.
type ClientFactory func(ctx context.Context, skillName string, config *skills.MCPConfig) (Client, error)

// Manager starts clients lazily per skill and caches them. It implements
// the context builder's MCP source.
type Manager struct {
	factory ClientFactory
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[string]Client
}

// NewManager creates an MCP manager.
func NewManager(factory ClientFactory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		factory: factory,
		logger:  logger.With("component", "mcp"),
		clients: make(map[string]Client),
	}
}

// Tools returns agent tools for the skill's server, starting the client
// on first use. Skills without an MCP configuration yield no tools.
func (m *Manager) Tools(ctx context.Context, skill *skills.Skill) ([]agent.Tool, error) {
	if skill == nil || skill.MCPConfig == nil || m.factory == nil {
		return nil, nil
	}

	client, err := m.getOrStart(ctx, skill)
	if err != nil {
		return nil, fmt.Errorf("starting mcp client for skill %q: %w", skill.Name, err)
	}

	defs, err := client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing mcp tools for skill %q: %w", skill.Name, err)
	}

	tools := make([]agent.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, m.ToolAdapter(skill.Name, def))
	}
	m.logger.Debug("mcp tools resolved", "skill", skill.Name, "count", len(tools))
	return tools, nil
}

// ToolAdapter wraps one served tool definition as an agent tool. The
// adapter resolves the skill's client at call time, so it stays valid
// across client restarts.
func (m *Manager) ToolAdapter(skillName string, def agent.ToolDefinition) agent.Tool {
	return &serverTool{manager: m, skillName: skillName, def: def}
}

// Shutdown closes every started client.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, client := range m.clients {
		if err := client.Close(); err != nil {
			m.logger.Warn("mcp client close failed", "skill", name, "error", err)
		}
		delete(m.clients, name)
	}
}

func (m *Manager) getOrStart(ctx context.Context, skill *skills.Skill) (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, ok := m.clients[skill.Name]; ok {
		return client, nil
	}
	client, err := m.factory(ctx, skill.Name, skill.MCPConfig)
	if err != nil {
		return nil, err
	}
	m.clients[skill.Name] = client
	return client, nil
}

func (m *Manager) client(skillName string) (Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, ok := m.clients[skillName]
	return client, ok
}

// serverTool proxies Execute to the skill's tool server.
type serverTool struct {
	manager   *Manager
	skillName string
	def       agent.ToolDefinition
}

func (t *serverTool) Name() string           { return t.def.Name }
func (t *serverTool) Description() string    { return t.def.Description }
func (t *serverTool) Schema() map[string]any { return t.def.Schema }
func (t *serverTool) Enabled() bool          { return true }

func (t *serverTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	client, ok := t.manager.client(t.skillName)
	if !ok {
		return "", fmt.Errorf("mcp client for skill %q is not running", t.skillName)
	}
	return client.CallTool(ctx, t.def.Name, args)
}
