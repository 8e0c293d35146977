// Package memory keeps long-lived conversational facts per session and
// renders them into the system prompt's # Memory section.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one remembered fact.
type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Config configures the memory store.
type Config struct {
	// Enabled controls whether memory is captured and rendered.
	Enabled bool `yaml:"enabled"`

	// MaxEntries caps retained entries per session; oldest are dropped.
	// Default: 100
	MaxEntries int `yaml:"max_entries"`

	// ContextEntries is how many recent entries render into the prompt.
	// Default: 10
	ContextEntries int `yaml:"context_entries"`
}

// DefaultConfig returns the default memory configuration.
func DefaultConfig() Config {
	return Config{Enabled: true, MaxEntries: 100, ContextEntries: 10}
}

// Store is an in-memory per-session fact store. It implements the context
// builder's memory source.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]Entry
	config  Config
}

// NewStore creates a memory store.
func NewStore(config Config) *Store {
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultConfig().MaxEntries
	}
	if config.ContextEntries <= 0 {
		config.ContextEntries = DefaultConfig().ContextEntries
	}
	return &Store{
		entries: make(map[string][]Entry),
		config:  config,
	}
}

// Remember stores one fact for a session.
func (s *Store) Remember(ctx context.Context, sessionID, content string) (Entry, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Entry{}, fmt.Errorf("memory content is empty")
	}

	entry := Entry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   content,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.entries[sessionID], entry)
	if len(list) > s.config.MaxEntries {
		list = list[len(list)-s.config.MaxEntries:]
	}
	s.entries[sessionID] = list
	return entry, nil
}

// Entries returns a copy of all entries for a session, oldest first.
func (s *Store) Entries(sessionID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries[sessionID]))
	copy(out, s.entries[sessionID])
	return out
}

// Forget drops all entries for a session.
func (s *Store) Forget(sessionID string) {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
}

// MemoryContext renders the newest entries as prompt lines. Empty when
// disabled or when nothing is remembered.
func (s *Store) MemoryContext(_ context.Context, sessionID string) string {
	if !s.config.Enabled {
		return ""
	}

	s.mu.RLock()
	list := s.entries[sessionID]
	if len(list) > s.config.ContextEntries {
		list = list[len(list)-s.config.ContextEntries:]
	}
	lines := make([]string, 0, len(list))
	for _, entry := range list {
		lines = append(lines, "- "+entry.Content)
	}
	s.mu.RUnlock()

	return strings.Join(lines, "\n")
}
