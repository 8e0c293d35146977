// Package rag retrieves stored passages relevant to the current turn for
// the # Relevant Memory prompt section. The production retriever lives
// behind the Port; the in-memory store here serves local runs and tests.
package rag

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Port is the retrieval interface the context builder consumes. Query is
// only called when Available reports true.
type Port interface {
	Available() bool
	Query(ctx context.Context, sessionID, text string) (string, error)
}

// Document is one indexed passage.
type Document struct {
	ID      string
	Content string
}

// Config configures the in-memory retriever.
type Config struct {
	// Enabled controls availability.
	Enabled bool `yaml:"enabled"`

	// MaxResults caps passages returned per query.
	// Default: 3
	MaxResults int `yaml:"max_results"`
}

// DefaultConfig returns the default retriever configuration.
func DefaultConfig() Config {
	return Config{Enabled: false, MaxResults: 3}
}

// MemoryStore is a keyword-overlap retriever over per-session documents.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string][]Document
	config Config
}

// NewMemoryStore creates an in-memory retriever.
func NewMemoryStore(config Config) *MemoryStore {
	if config.MaxResults <= 0 {
		config.MaxResults = DefaultConfig().MaxResults
	}
	return &MemoryStore{
		docs:   make(map[string][]Document),
		config: config,
	}
}

// Available reports whether queries will return content.
func (s *MemoryStore) Available() bool { return s.config.Enabled }

// Index adds a document for a session.
func (s *MemoryStore) Index(sessionID string, doc Document) {
	s.mu.Lock()
	s.docs[sessionID] = append(s.docs[sessionID], doc)
	s.mu.Unlock()
}

// Query returns the best-overlapping documents joined by blank lines.
// An empty result is not an error.
func (s *MemoryStore) Query(ctx context.Context, sessionID, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	queryTokens := tokenize(text)
	if len(queryTokens) == 0 {
		return "", nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		doc   Document
		score int
	}
	var matches []scored
	for _, doc := range s.docs[sessionID] {
		score := overlap(queryTokens, tokenize(doc.Content))
		if score > 0 {
			matches = append(matches, scored{doc: doc, score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	if len(matches) > s.config.MaxResults {
		matches = matches[:s.config.MaxResults]
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m.doc.Content)
	}
	return strings.Join(parts, "\n\n"), nil
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(text)) {
		field = strings.Trim(field, ".,!?;:\"'()")
		if len(field) >= 3 {
			tokens[field] = struct{}{}
		}
	}
	return tokens
}

func overlap(a, b map[string]struct{}) int {
	count := 0
	for token := range a {
		if _, ok := b[token]; ok {
			count++
		}
	}
	return count
}
