// Package sessions provides session persistence and per-session turn
// serialization.
package sessions

import (
	"context"
	"errors"

	"github.com/haasonsaas/relay/pkg/models"
)

// ErrNotFound indicates the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Store is the interface for session persistence. Message history is
// append-only; stored sessions accumulate messages monotonically.
type Store interface {
	// GetOrCreate returns the session for (channel, chatID), creating it
	// if needed. The returned session includes its message history.
	GetOrCreate(ctx context.Context, channel models.ChannelType, chatID string) (*models.Session, error)

	// Get returns a session by ID, including its message history.
	Get(ctx context.Context, id string) (*models.Session, error)

	// Append persists one message at the end of the session's history.
	Append(ctx context.Context, sessionID string, msg *models.Message) error

	// UpdateMetadata replaces the session's metadata.
	UpdateMetadata(ctx context.Context, sessionID string, metadata map[string]any) error
}

// SessionKey builds the unique lookup key for a conversation thread.
func SessionKey(channel models.ChannelType, chatID string) string {
	return string(channel) + ":" + chatID
}
