package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/history"
	"github.com/haasonsaas/relay/pkg/models"
)

// maxMessagesPerSession limits messages kept per session to prevent
// unbounded memory growth. When exceeded, the oldest tool rounds are
// flattened and the head of history is trimmed.
const maxMessagesPerSession = 1000

// MemoryStore provides an in-memory Store implementation for testing and
// local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	byKey    map[string]string
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*models.Session{},
		byKey:    map[string]string{},
	}
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, channel models.ChannelType, chatID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := SessionKey(channel, chatID)
	if id, ok := m.byKey[key]; ok {
		if session, ok := m.sessions[id]; ok {
			return session, nil
		}
	}

	now := time.Now()
	session := &models.Session{
		ID:        uuid.NewString(),
		Channel:   channel,
		ChatID:    chatID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[session.ID] = session
	m.byKey[key] = session.ID
	return session, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return session, nil
}

func (m *MemoryStore) Append(ctx context.Context, sessionID string, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}

	// The session is shared by reference with the caller; writers append
	// to session.Messages themselves. Only record the message here when
	// the caller has not already done so.
	if last := session.LastMessage(); last == nil || last.ID != msg.ID {
		session.Messages = append(session.Messages, msg)
	}
	session.UpdatedAt = msg.CreatedAt

	if len(session.Messages) > maxMessagesPerSession {
		overflow := len(session.Messages) - maxMessagesPerSession
		session.Messages = append(history.Flatten(session.Messages[:overflow*2]), session.Messages[overflow*2:]...)
		if len(session.Messages) > maxMessagesPerSession {
			session.Messages = session.Messages[len(session.Messages)-maxMessagesPerSession:]
		}
	}
	return nil
}

func (m *MemoryStore) UpdateMetadata(ctx context.Context, sessionID string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	session.Metadata = metadata
	session.UpdatedAt = time.Now()
	return nil
}
