package respond

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/pkg/models"
)

// FeedbackKey is the preferences key holding the generic fallback text.
const FeedbackKey = "system.error.generic.feedback"

// FeedbackStage guarantees the user hears something: when a non-auto
// turn reaches the end of the pipeline with nothing to send, it composes
// the localized fallback message. It never touches session history.
type FeedbackStage struct {
	prefs  agent.Preferences
	logger *slog.Logger
}

// NewFeedbackStage creates the feedback guarantee stage.
func NewFeedbackStage(prefs agent.Preferences, logger *slog.Logger) *FeedbackStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackStage{prefs: prefs, logger: logger.With("component", "feedback")}
}

func (s *FeedbackStage) Name() string  { return "feedback_guarantee" }
func (s *FeedbackStage) Order() int    { return agent.OrderFeedbackGuarantee }
func (s *FeedbackStage) Enabled() bool { return true }

// ShouldProcess skips auto-mode turns, turns that already composed a
// response or produced LLM content, and turns with a pending skill
// transition.
func (s *FeedbackStage) ShouldProcess(tc *agent.TurnContext) bool {
	if tc.AutoMode() {
		return false
	}
	if tc.OutgoingResponse != nil {
		return false
	}
	if tc.SkillTransitionTarget != "" {
		return false
	}
	if tc.LLMResponse != nil && tc.LLMResponse.Content != "" {
		return false
	}
	return true
}

func (s *FeedbackStage) Process(_ context.Context, tc *agent.TurnContext) error {
	text := "Something went wrong. Please try again."
	if s.prefs != nil {
		if msg := s.prefs.Message(FeedbackKey); msg != "" {
			text = msg
		}
	}
	tc.OutgoingResponse = models.TextOnly(text)
	s.logger.Info("feedback fallback composed", "session_id", tc.Session.ID, "code", tc.LLMError)
	return nil
}
