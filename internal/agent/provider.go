package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/haasonsaas/relay/pkg/models"
)

// ChatRequest is a single LLM completion request.
type ChatRequest struct {
	// Model is the concrete model name.
	Model string

	// ReasoningEffort is the provider-specific effort hint, may be empty.
	ReasoningEffort string

	// System is the assembled system prompt.
	System string

	// Messages is the conversation view.
	Messages []*models.Message

	// Tools are the tool definitions advertised to the model.
	Tools []ToolDefinition

	// MaxTokens bounds the response length. Zero means provider default.
	MaxTokens int
}

// ChatResponse is a completed LLM response. Content may be empty when the
// model only requests tool calls.
type ChatResponse struct {
	Content   string
	ToolCalls []models.ToolCall
	Model     string
	Usage     *models.Usage
}

// ChatChunk is one element of a streamed LLM response.
type ChatChunk struct {
	Text     string
	ToolCall *models.ToolCall
	Err      error
}

// LLMProvider is the outbound port to the model backend.
type LLMProvider interface {
	// Chat performs a blocking completion.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// ChatStream performs a streamed completion. The channel is closed
	// when the response is complete or an error chunk was sent.
	ChatStream(ctx context.Context, req *ChatRequest) (<-chan *ChatChunk, error)

	// Available reports whether the provider can take requests.
	Available() bool

	// ProviderID identifies the backend for usage tracking.
	ProviderID() string

	// SupportsStreaming reports whether ChatStream is implemented.
	SupportsStreaming() bool

	// SupportedModels lists the models this provider serves.
	SupportedModels() []string

	// CurrentModel returns the provider's default model.
	CurrentModel() string
}

// ModelSelector resolves a symbolic tier (fast, balanced, coding, ...) to
// a concrete model and reasoning effort.
type ModelSelector interface {
	Resolve(tier string) (model string, reasoningEffort string, err error)
}

// ConfirmationPort asks the user to confirm a tool execution.
type ConfirmationPort interface {
	Ask(ctx context.Context, toolName string, args map[string]any) (bool, error)
}

// UsageRecorder receives per-request token usage. Implementations must be
// best-effort; the loop ignores their errors.
type UsageRecorder interface {
	RecordUsage(providerID, model string, usage *models.Usage)
}

// HTTPError is a transport-level error carrying an HTTP status, used by
// provider implementations so failures classify by status code.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http error: status %d", e.Status)
	}
	return fmt.Sprintf("http error: status %d: %s", e.Status, e.Message)
}

// Domain errors reported by LLM providers. Providers wrap these so the
// classifier maps failures to stable codes without string matching.
var (
	ErrRateLimited           = errors.New("llm rate limited")
	ErrAuthentication        = errors.New("llm authentication failed")
	ErrContentFiltered       = errors.New("llm content filtered")
	ErrInternalServer        = errors.New("llm internal server error")
	ErrInvalidRequest        = errors.New("llm invalid request")
	ErrModelNotFound         = errors.New("llm model not found")
	ErrUnsupportedFeature    = errors.New("llm unsupported feature")
	ErrUnresolvedModelServer = errors.New("llm model server unresolved")
	ErrRetriable             = errors.New("llm retriable failure")
	ErrNonRetriable          = errors.New("llm non-retriable failure")
	ErrLLM                   = errors.New("llm error")
)
