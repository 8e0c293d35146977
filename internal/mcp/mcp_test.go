package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/skills"
)

type fakeClient struct {
	defs    []agent.ToolDefinition
	calls   []string
	closed  bool
	callErr error
}

func (c *fakeClient) ListTools(context.Context) ([]agent.ToolDefinition, error) {
	return c.defs, nil
}

func (c *fakeClient) CallTool(_ context.Context, name string, _ map[string]any) (string, error) {
	if c.callErr != nil {
		return "", c.callErr
	}
	c.calls = append(c.calls, name)
	return "ok:" + name, nil
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

func mcpSkill(name string) *skills.Skill {
	return &skills.Skill{
		Name:      name,
		Available: true,
		MCPConfig: &skills.MCPConfig{Command: "server-bin"},
	}
}

func TestManagerStartsClientOnce(t *testing.T) {
	started := 0
	client := &fakeClient{defs: []agent.ToolDefinition{{Name: "search"}}}
	manager := NewManager(func(context.Context, string, *skills.MCPConfig) (Client, error) {
		started++
		return client, nil
	}, nil)

	skill := mcpSkill("research")
	for i := 0; i < 3; i++ {
		tools, err := manager.Tools(context.Background(), skill)
		if err != nil {
			t.Fatalf("Tools: %v", err)
		}
		if len(tools) != 1 || tools[0].Name() != "search" {
			t.Fatalf("tools = %v", tools)
		}
	}
	if started != 1 {
		t.Errorf("client started %d times, want 1", started)
	}
}

func TestManagerSkillWithoutServer(t *testing.T) {
	manager := NewManager(func(context.Context, string, *skills.MCPConfig) (Client, error) {
		t.Fatal("factory invoked for skill without mcp config")
		return nil, nil
	}, nil)

	tools, err := manager.Tools(context.Background(), &skills.Skill{Name: "plain"})
	if err != nil || tools != nil {
		t.Errorf("tools = %v, err = %v", tools, err)
	}
}

func TestManagerFactoryError(t *testing.T) {
	manager := NewManager(func(context.Context, string, *skills.MCPConfig) (Client, error) {
		return nil, errors.New("spawn failed")
	}, nil)

	if _, err := manager.Tools(context.Background(), mcpSkill("research")); err == nil {
		t.Error("factory error swallowed")
	}
}

func TestToolAdapterProxiesCalls(t *testing.T) {
	client := &fakeClient{defs: []agent.ToolDefinition{{Name: "search", Description: "find things"}}}
	manager := NewManager(func(context.Context, string, *skills.MCPConfig) (Client, error) {
		return client, nil
	}, nil)

	tools, err := manager.Tools(context.Background(), mcpSkill("research"))
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}

	out, err := tools[0].Execute(context.Background(), map[string]any{"q": "relay"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "ok:search" || len(client.calls) != 1 {
		t.Errorf("out = %q, calls = %v", out, client.calls)
	}
}

func TestToolAdapterWithoutRunningClient(t *testing.T) {
	manager := NewManager(nil, nil)
	tool := manager.ToolAdapter("research", agent.ToolDefinition{Name: "search"})

	if _, err := tool.Execute(context.Background(), nil); err == nil {
		t.Error("execute succeeded without a running client")
	}
}

func TestManagerShutdownClosesClients(t *testing.T) {
	client := &fakeClient{}
	manager := NewManager(func(context.Context, string, *skills.MCPConfig) (Client, error) {
		return client, nil
	}, nil)

	if _, err := manager.Tools(context.Background(), mcpSkill("research")); err != nil {
		t.Fatalf("Tools: %v", err)
	}
	manager.Shutdown()

	if !client.closed {
		t.Error("client not closed on shutdown")
	}
}
