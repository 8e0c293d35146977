// Package channels defines the inbound port to messaging platforms and
// the registry the response router selects adapters from.
package channels

import (
	"context"
	"sort"
	"sync"

	"github.com/haasonsaas/relay/pkg/models"
)

// Adapter is one messaging platform connection. Implementations receive
// platform messages, convert them to models.Message, and hand them to the
// orchestrator; the core only calls back through this interface.
type Adapter interface {
	// ChannelType identifies the platform.
	ChannelType() models.ChannelType

	// SendMessage delivers text (and optional attachments) to a chat.
	SendMessage(ctx context.Context, chatID, text string, attachments ...models.Attachment) error

	// SendRuntimeEvent delivers a lifecycle event to a chat. Adapters may
	// render it as a typing indicator, a status line, or nothing.
	SendRuntimeEvent(ctx context.Context, chatID string, event *models.RuntimeEvent) error
}

// VoiceHandler optionally renders responses as voice messages.
type VoiceHandler interface {
	Available() bool
	TrySendVoice(ctx context.Context, session *models.Session, chatID, text string) error
}

// Registry holds the active channel adapters keyed by channel type.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.ChannelType]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.ChannelType]Adapter)}
}

// Register adds or replaces the adapter for its channel type.
func (r *Registry) Register(adapter Adapter) {
	if adapter == nil {
		return
	}
	r.mu.Lock()
	r.adapters[adapter.ChannelType()] = adapter
	r.mu.Unlock()
}

// Get returns the adapter for a channel type.
func (r *Registry) Get(channel models.ChannelType) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[channel]
	return adapter, ok
}

// Types lists the registered channel types, sorted.
func (r *Registry) Types() []models.ChannelType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ChannelType, 0, len(r.adapters))
	for channel := range r.adapters {
		out = append(out, channel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
