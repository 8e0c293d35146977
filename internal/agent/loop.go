package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/relay/internal/history"
	"github.com/haasonsaas/relay/pkg/models"
)

// PlanSetContentTool is the control tool the model invokes to request
// plan content updates. It is never executed externally.
const PlanSetContentTool = "plan_set_content"

// PlanGetTool reads the chat's current plan. Control tools are exempt
// from plan-mode interception: they manage the plan, they are not steps
// of it.
const PlanGetTool = "plan_get"

func isPlanControlTool(name string) bool {
	return name == PlanSetContentTool || name == PlanGetTool
}

// PlanRecorder records intercepted tool calls as plan steps while plan
// mode is active. Implemented by the plan service.
type PlanRecorder interface {
	// EnsurePlan returns the active plan for the chat, creating one in
	// COLLECTING state if none exists.
	EnsurePlan(chatID string) (planID string, err error)

	// AddStep appends a step to a collecting plan.
	AddStep(planID, toolName string, args map[string]any, description string) error
}

// LoopConfig configures the tool loop.
type LoopConfig struct {
	// MaxIterations limits LLM calls per turn.
	// Default: 10
	MaxIterations int `yaml:"max_iterations"`

	// MaxTokens is the default max tokens for LLM responses.
	// Default: 4096
	MaxTokens int `yaml:"max_tokens"`

	// DefaultModel is used when no tier resolves. Falls back to the
	// provider's current model when empty.
	DefaultModel string `yaml:"default_model"`

	// ConfirmTools lists tool names that require user confirmation.
	ConfirmTools []string `yaml:"confirm_tools"`
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxIterations: 10,
		MaxTokens:     4096,
	}
}

func sanitizeLoopConfig(config *LoopConfig) *LoopConfig {
	if config == nil {
		return DefaultLoopConfig()
	}
	cfg := *config
	defaults := DefaultLoopConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	return &cfg
}

// ToolLoop iterates LLM calls and tool executions within a single turn
// until a final answer or a stop condition is reached. It owns raw-history
// persistence and plan-mode interception; conversation-view flattening on
// model switch is delegated to the view builder.
type ToolLoop struct {
	provider LLMProvider
	selector ModelSelector
	executor ToolExecutor
	views    *history.ViewBuilder
	writer   *history.Writer
	usage    UsageRecorder
	plans    PlanRecorder
	confirm  ConfirmationPort
	config   *LoopConfig
	logger   *slog.Logger
}

// NewToolLoop creates a tool loop. selector, usage, plans, and confirm
// are optional.
func NewToolLoop(provider LLMProvider, executor ToolExecutor, writer *history.Writer, views *history.ViewBuilder, config *LoopConfig, logger *slog.Logger) *ToolLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolLoop{
		provider: provider,
		executor: executor,
		views:    views,
		writer:   writer,
		config:   sanitizeLoopConfig(config),
		logger:   logger.With("component", "loop"),
	}
}

// WithSelector sets the model tier selector.
func (l *ToolLoop) WithSelector(selector ModelSelector) *ToolLoop {
	l.selector = selector
	return l
}

// WithUsage sets the usage recorder.
func (l *ToolLoop) WithUsage(usage UsageRecorder) *ToolLoop {
	l.usage = usage
	return l
}

// WithPlans sets the plan recorder for plan-mode interception.
func (l *ToolLoop) WithPlans(plans PlanRecorder) *ToolLoop {
	l.plans = plans
	return l
}

// WithConfirmation sets the confirmation port.
func (l *ToolLoop) WithConfirmation(confirm ConfirmationPort) *ToolLoop {
	l.confirm = confirm
	return l
}

// ProcessTurn drives the LLM-and-tools iteration for one turn. The
// returned outcome is also stored on the context. Errors surface as
// classified codes on the context, never as returned errors.
func (l *ToolLoop) ProcessTurn(ctx context.Context, tc *TurnContext) *models.TurnOutcome {
	var lastResponse *ChatResponse

	for tc.Iteration < l.config.MaxIterations {
		if err := ctx.Err(); err != nil || tc.Cancelled() {
			return l.finish(tc, &models.TurnOutcome{FinishReason: models.FinishCancelled, Err: err})
		}

		model, effort := l.resolveModel(tc)
		modelSwitch := l.noteModel(tc.Session, model)

		resp, err := l.callLLM(ctx, tc, model, effort, modelSwitch)
		if err != nil {
			code := ClassifyError(err)
			tc.LLMError = code
			l.logger.Warn("llm call failed", "code", code, "iteration", tc.Iteration, "error", err)
			return l.finish(tc, &models.TurnOutcome{FinishReason: models.FinishLLMError, Err: err})
		}
		lastResponse = resp
		tc.LLMResponse = resp

		if len(resp.ToolCalls) == 0 {
			// Final answer; empty content still counts.
			l.writer.AppendFinalAssistant(ctx, tc.Session, resp.Content)
			tc.FinalAnswerReady = true
			tc.LoopComplete = true
			return l.finish(tc, &models.TurnOutcome{
				FinishReason:  models.FinishSuccess,
				AssistantText: resp.Content,
			})
		}

		l.writer.AppendAssistant(ctx, tc.Session, resp.Content, resp.ToolCalls)

		for _, call := range resp.ToolCalls {
			outcome := l.handleToolCall(ctx, tc, call)
			tc.ToolResults[call.ID] = outcome.Result
			l.writer.AppendTool(ctx, tc.Session, call.ID, call.Name, outcome.MessageContent)
		}

		tc.Iteration++
	}

	l.logger.Warn("tool loop hit iteration limit", "max_iterations", l.config.MaxIterations)
	outcome := &models.TurnOutcome{FinishReason: models.FinishToolLimit}
	if lastResponse != nil {
		outcome.AssistantText = lastResponse.Content
	}
	tc.LoopComplete = true
	return l.finish(tc, outcome)
}

func (l *ToolLoop) finish(tc *TurnContext, outcome *models.TurnOutcome) *models.TurnOutcome {
	tc.Outcome = outcome
	return outcome
}

// resolveModel maps the turn's tier to a concrete model, falling back to
// the configured default and then the provider's current model.
func (l *ToolLoop) resolveModel(tc *TurnContext) (model, effort string) {
	if tc.ModelTier != "" && l.selector != nil {
		resolved, resolvedEffort, err := l.selector.Resolve(tc.ModelTier)
		if err == nil && resolved != "" {
			return resolved, resolvedEffort
		}
		if err != nil {
			l.logger.Warn("model tier resolution failed", "tier", tc.ModelTier, "error", err)
		}
	}
	if l.config.DefaultModel != "" {
		return l.config.DefaultModel, ""
	}
	return l.provider.CurrentModel(), ""
}

// noteModel records the model on the session and reports whether it
// changed since the last turn.
func (l *ToolLoop) noteModel(session *models.Session, model string) bool {
	previous := session.LastModel()
	switched := previous != "" && previous != model
	if previous != model {
		session.SetLastModel(model)
	}
	return switched
}

func (l *ToolLoop) callLLM(ctx context.Context, tc *TurnContext, model, effort string, modelSwitch bool) (*ChatResponse, error) {
	defs := make([]ToolDefinition, 0, len(tc.AvailableTools))
	for _, tool := range tc.AvailableTools {
		defs = append(defs, Definition(tool))
	}

	req := &ChatRequest{
		Model:           model,
		ReasoningEffort: effort,
		System:          tc.SystemPrompt,
		Messages:        l.views.Build(tc.Session.Messages, modelSwitch),
		Tools:           defs,
		MaxTokens:       l.config.MaxTokens,
	}

	start := time.Now()
	resp, err := l.provider.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: provider returned no response", ErrLLM)
	}

	l.recordUsage(tc, resp, time.Since(start))
	return resp, nil
}

// recordUsage forwards token usage to the tracker. Best-effort: tracker
// panics must not abort the turn.
func (l *ToolLoop) recordUsage(tc *TurnContext, resp *ChatResponse, latency time.Duration) {
	if l.usage == nil || resp.Usage == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("usage recorder panicked", "panic", r)
		}
	}()

	usage := *resp.Usage
	usage.Latency = latency
	usage.Timestamp = time.Now()
	usage.SessionID = tc.Session.ID
	usage.Model = resp.Model
	usage.ProviderID = l.provider.ProviderID()
	l.usage.RecordUsage(usage.ProviderID, usage.Model, &usage)
}

// handleToolCall produces the outcome for one tool call, intercepting for
// plan mode and control tools before reaching the executor.
func (l *ToolLoop) handleToolCall(ctx context.Context, tc *TurnContext, call models.ToolCall) models.ToolExecutionOutcome {
	if call.Name == PlanSetContentTool {
		tc.PlanSetContentRequested = true
		outcome := models.ToolExecutionOutcome{
			ToolCallID:     call.ID,
			ToolName:       call.Name,
			Result:         models.ToolSuccess("plan content update requested"),
			MessageContent: "plan content update requested",
			Synthetic:      true,
		}
		return outcome
	}

	if tc.PlanModeActive && l.plans != nil && !isPlanControlTool(call.Name) {
		return l.interceptForPlan(tc, call)
	}

	if l.requiresConfirmation(call.Name) {
		approved, err := l.confirm.Ask(ctx, call.Name, call.Arguments)
		if err != nil {
			return models.SyntheticOutcome(call, models.ToolFailureExecution,
				fmt.Sprintf("confirmation failed for %s: %v", call.Name, err))
		}
		if !approved {
			return models.SyntheticOutcome(call, models.ToolFailurePolicy,
				"user declined execution of "+call.Name)
		}
	}

	return l.executeSafely(ctx, call)
}

// interceptForPlan records the call as a plan step instead of executing.
func (l *ToolLoop) interceptForPlan(tc *TurnContext, call models.ToolCall) models.ToolExecutionOutcome {
	planID, err := l.plans.EnsurePlan(tc.Session.ChatID)
	if err == nil {
		err = l.plans.AddStep(planID, call.Name, call.Arguments, describeArguments(call.Arguments))
	}
	if err != nil {
		l.logger.Warn("plan step recording failed", "tool", call.Name, "error", err)
		return models.SyntheticOutcome(call, models.ToolFailureExecution,
			fmt.Sprintf("failed to record plan step for %s: %v", call.Name, err))
	}

	content := fmt.Sprintf("Recorded plan step: %s", call.Name)
	return models.ToolExecutionOutcome{
		ToolCallID:     call.ID,
		ToolName:       call.Name,
		Result:         models.ToolSuccess(content),
		MessageContent: content,
		Synthetic:      true,
		Metadata:       map[string]any{"planned": true},
	}
}

// executeSafely invokes the executor, converting panics into synthetic
// execution failures.
func (l *ToolLoop) executeSafely(ctx context.Context, call models.ToolCall) (outcome models.ToolExecutionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = models.SyntheticOutcome(call, models.ToolFailureExecution,
				fmt.Sprintf("tool executor panicked: %v", r))
		}
	}()
	return l.executor.Execute(ctx, call)
}

func (l *ToolLoop) requiresConfirmation(toolName string) bool {
	if l.confirm == nil {
		return false
	}
	for _, name := range l.config.ConfirmTools {
		if name == toolName {
			return true
		}
	}
	return false
}

// describeArguments renders tool arguments for plan step descriptions.
func describeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	return fmt.Sprintf("%v", args)
}

// ToolLoopStage runs the integrated tool loop as a pipeline stage.
type ToolLoopStage struct {
	loop    *ToolLoop
	enabled bool
}

// NewToolLoopStage wraps a tool loop as a pipeline stage.
func NewToolLoopStage(loop *ToolLoop, enabled bool) *ToolLoopStage {
	return &ToolLoopStage{loop: loop, enabled: enabled}
}

func (s *ToolLoopStage) Name() string  { return "tool_loop" }
func (s *ToolLoopStage) Order() int    { return OrderToolLoop }
func (s *ToolLoopStage) Enabled() bool { return s.enabled }

// ShouldProcess skips the loop when an upstream LLM error exists or the
// turn already completed.
func (s *ToolLoopStage) ShouldProcess(tc *TurnContext) bool {
	return tc.LLMError == "" && !tc.LoopFinished()
}

func (s *ToolLoopStage) Process(ctx context.Context, tc *TurnContext) error {
	s.loop.ProcessTurn(ctx, tc)
	return nil
}
