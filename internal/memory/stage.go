package memory

import (
	"context"
	"log/slog"
	"strings"

	"github.com/haasonsaas/relay/internal/agent"
)

// maxCapturedAnswer bounds what one turn can write into memory.
const maxCapturedAnswer = 500

// PersistStage captures the turn's exchange into the memory store after
// the tool loop finishes. Persistence is best-effort; a failed write
// never fails the turn.
type PersistStage struct {
	store   *Store
	enabled bool
	logger  *slog.Logger
}

// NewPersistStage creates the memory persistence stage.
func NewPersistStage(store *Store, logger *slog.Logger) *PersistStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStage{
		store:   store,
		enabled: store != nil,
		logger:  logger.With("component", "memory"),
	}
}

func (s *PersistStage) Name() string  { return "memory_persist" }
func (s *PersistStage) Order() int    { return agent.OrderMemoryPersist }
func (s *PersistStage) Enabled() bool { return s.enabled }

// ShouldProcess requires a finished turn with a usable answer. Auto-mode
// turns are machine chatter and are not remembered.
func (s *PersistStage) ShouldProcess(tc *agent.TurnContext) bool {
	if tc.AutoMode() || tc.LLMError != "" {
		return false
	}
	return tc.LLMResponse != nil && strings.TrimSpace(tc.LLMResponse.Content) != ""
}

func (s *PersistStage) Process(ctx context.Context, tc *agent.TurnContext) error {
	answer := strings.TrimSpace(tc.LLMResponse.Content)
	if len(answer) > maxCapturedAnswer {
		answer = answer[:maxCapturedAnswer]
	}

	record := "Q: " + strings.TrimSpace(tc.Incoming.Content) + "\nA: " + answer
	if _, err := s.store.Remember(ctx, tc.Session.ID, record); err != nil {
		s.logger.Warn("memory persist failed", "session_id", tc.Session.ID, "error", err)
	}
	return nil
}
