package main

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/pkg/models"
)

// lateRunner defers the orchestrator reference until wiring completes.
type lateRunner struct {
	mu           sync.RWMutex
	orchestrator *agent.Orchestrator
}

func (r *lateRunner) ProcessMessage(ctx context.Context, msg *models.Message) {
	r.mu.RLock()
	orchestrator := r.orchestrator
	r.mu.RUnlock()
	if orchestrator != nil {
		orchestrator.ProcessMessage(ctx, msg)
	}
}

// echoProvider is the offline stand-in used when no real LLM backend is
// configured. It answers with the last user message so the full pipeline
// can be exercised end to end.
type echoProvider struct{}

func newEchoProvider() *echoProvider { return &echoProvider{} }

func (p *echoProvider) Chat(ctx context.Context, req *agent.ChatRequest) (*agent.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := "(no input)"
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i] != nil && req.Messages[i].Role == models.RoleUser {
			content = "echo: " + req.Messages[i].Content
			break
		}
	}
	return &agent.ChatResponse{
		Content: content,
		Model:   p.CurrentModel(),
		Usage: &models.Usage{
			InputTokens:  int64(len(req.System) / 4),
			OutputTokens: int64(len(content) / 4),
			Timestamp:    time.Now(),
		},
	}, nil
}

func (p *echoProvider) ChatStream(ctx context.Context, req *agent.ChatRequest) (<-chan *agent.ChatChunk, error) {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(chan *agent.ChatChunk, 1)
	out <- &agent.ChatChunk{Text: resp.Content}
	close(out)
	return out, nil
}

func (p *echoProvider) Available() bool           { return true }
func (p *echoProvider) ProviderID() string        { return "echo" }
func (p *echoProvider) SupportsStreaming() bool   { return true }
func (p *echoProvider) SupportedModels() []string { return []string{"echo-1"} }
func (p *echoProvider) CurrentModel() string      { return "echo-1" }
