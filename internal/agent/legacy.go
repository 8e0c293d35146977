package agent

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/relay/internal/history"
	"github.com/haasonsaas/relay/pkg/models"
)

// LegacyLLMStage is the single-shot LLM call used when the integrated
// tool loop is disabled. It performs exactly one chat request; any tool
// calls it yields are executed once by LegacyToolStage with no follow-up
// model call.
type LegacyLLMStage struct {
	provider LLMProvider
	views    *history.ViewBuilder
	writer   *history.Writer
	config   *LoopConfig
	enabled  bool
	logger   *slog.Logger
}

// NewLegacyLLMStage creates the legacy single-shot LLM stage.
func NewLegacyLLMStage(provider LLMProvider, writer *history.Writer, views *history.ViewBuilder, config *LoopConfig, enabled bool, logger *slog.Logger) *LegacyLLMStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &LegacyLLMStage{
		provider: provider,
		views:    views,
		writer:   writer,
		config:   sanitizeLoopConfig(config),
		enabled:  enabled,
		logger:   logger.With("component", "legacy_llm"),
	}
}

func (s *LegacyLLMStage) Name() string  { return "legacy_llm" }
func (s *LegacyLLMStage) Order() int    { return OrderLegacyLLM }
func (s *LegacyLLMStage) Enabled() bool { return s.enabled }

// ShouldProcess skips the stage once the turn is answered or errored.
func (s *LegacyLLMStage) ShouldProcess(tc *TurnContext) bool {
	return tc.LLMError == "" && !tc.LoopFinished()
}

func (s *LegacyLLMStage) Process(ctx context.Context, tc *TurnContext) error {
	if tc.Cancelled() {
		tc.Outcome = &models.TurnOutcome{FinishReason: models.FinishCancelled}
		tc.LoopComplete = true
		return nil
	}

	model := s.config.DefaultModel
	if model == "" {
		model = s.provider.CurrentModel()
	}

	defs := make([]ToolDefinition, 0, len(tc.AvailableTools))
	for _, tool := range tc.AvailableTools {
		defs = append(defs, Definition(tool))
	}

	resp, err := s.provider.Chat(ctx, &ChatRequest{
		Model:     model,
		System:    tc.SystemPrompt,
		Messages:  s.views.Build(tc.Session.Messages, false),
		Tools:     defs,
		MaxTokens: s.config.MaxTokens,
	})
	if err != nil {
		tc.Outcome = &models.TurnOutcome{FinishReason: models.FinishLLMError, Err: err}
		return err
	}
	if resp == nil {
		tc.Outcome = &models.TurnOutcome{FinishReason: models.FinishLLMError}
		tc.LLMError = CodeLLMError
		return nil
	}
	tc.LLMResponse = resp

	if len(resp.ToolCalls) == 0 {
		s.writer.AppendFinalAssistant(ctx, tc.Session, resp.Content)
		tc.FinalAnswerReady = true
		tc.LoopComplete = true
		tc.Outcome = &models.TurnOutcome{
			FinishReason:  models.FinishSuccess,
			AssistantText: resp.Content,
		}
		return nil
	}

	s.writer.AppendAssistant(ctx, tc.Session, resp.Content, resp.ToolCalls)
	return nil
}

// LegacyToolStage executes the tool calls left by LegacyLLMStage. One
// round only: results land in history but trigger no further model call.
type LegacyToolStage struct {
	executor ToolExecutor
	writer   *history.Writer
	enabled  bool
	logger   *slog.Logger
}

// NewLegacyToolStage creates the legacy tool execution stage.
func NewLegacyToolStage(executor ToolExecutor, writer *history.Writer, enabled bool, logger *slog.Logger) *LegacyToolStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &LegacyToolStage{
		executor: executor,
		writer:   writer,
		enabled:  enabled,
		logger:   logger.With("component", "legacy_tools"),
	}
}

func (s *LegacyToolStage) Name() string  { return "legacy_tools" }
func (s *LegacyToolStage) Order() int    { return OrderLegacyTools }
func (s *LegacyToolStage) Enabled() bool { return s.enabled }

// ShouldProcess requires pending tool calls from the legacy LLM stage.
func (s *LegacyToolStage) ShouldProcess(tc *TurnContext) bool {
	return tc.LLMError == "" && !tc.LoopFinished() &&
		tc.LLMResponse != nil && len(tc.LLMResponse.ToolCalls) > 0
}

func (s *LegacyToolStage) Process(ctx context.Context, tc *TurnContext) error {
	for _, call := range tc.LLMResponse.ToolCalls {
		if _, done := tc.ToolResults[call.ID]; done {
			continue
		}
		outcome := s.executor.Execute(ctx, call)
		tc.ToolResults[call.ID] = outcome.Result
		s.writer.AppendTool(ctx, tc.Session, call.ID, call.Name, outcome.MessageContent)
		if outcome.Result.Failed() {
			s.logger.Warn("legacy tool failed", "tool", call.Name, "kind", outcome.Result.FailureKind)
		}
	}

	tc.LoopComplete = true
	tc.Outcome = &models.TurnOutcome{
		FinishReason:  models.FinishSuccess,
		AssistantText: tc.LLMResponse.Content,
	}
	return nil
}
