package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/sessions"
	"github.com/haasonsaas/relay/pkg/models"
)

// Stage orders for the built-in pipeline members. Stages run in ascending
// order with a stable tie-break by registration order.
const (
	OrderSkillRouting      = 15
	OrderContextBuilding   = 20
	OrderToolLoop          = 30
	OrderLegacyLLM         = 32
	OrderLegacyTools       = 36
	OrderMemoryPersist     = 50
	OrderPlanFinalization  = 58
	OrderFeedbackGuarantee = 59
	OrderResponseRouting   = 70
)

// Stage is one member of the turn pipeline.
type Stage interface {
	// Name identifies the stage in logs and metrics.
	Name() string

	// Order positions the stage in the pipeline.
	Order() int

	// Enabled reports whether the stage participates at all.
	Enabled() bool

	// ShouldProcess reports whether the stage applies to this turn.
	ShouldProcess(tc *TurnContext) bool

	// Process mutates the turn context. Returned errors are classified
	// and recorded; they never abort the pipeline.
	Process(ctx context.Context, tc *TurnContext) error
}

// RateLimitResult is the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimiter is the outbound port to the rate limit policy backend.
type RateLimiter interface {
	TryConsume(key string) RateLimitResult
}

// Responder delivers a composed response outside the normal stage flow,
// used for rate-limit rejections. Implemented by the response routing
// stage.
type Responder interface {
	Respond(ctx context.Context, tc *TurnContext) error
}

// Preferences supplies localized user-facing message strings.
type Preferences interface {
	Message(key string) string
}

// PlanModeSource reports whether plan mode is active for a chat.
// Implemented by the plan service.
type PlanModeSource interface {
	PlanModeActive(chatID string) bool
}

// Orchestrator drives the turn pipeline: session acquisition, per-session
// serialization, rate limiting, intake, ordered stage execution, and
// error surfacing. It never returns stage errors to the caller.
type Orchestrator struct {
	store     sessions.Store
	locker    sessions.Locker
	limiter   RateLimiter
	prefs     Preferences
	responder Responder
	planMode  PlanModeSource
	stages    []Stage
	logger    *slog.Logger
	metrics   Metrics
}

// Metrics receives pipeline-level counters. The zero implementation
// discards everything.
type Metrics interface {
	TurnStarted(channel models.ChannelType)
	TurnFinished(channel models.ChannelType, reason models.FinishReason)
	StageError(stage string)
	RateLimited(channel models.ChannelType)
}

// NopMetrics discards all metrics.
type NopMetrics struct{}

func (NopMetrics) TurnStarted(models.ChannelType)                       {}
func (NopMetrics) TurnFinished(models.ChannelType, models.FinishReason) {}
func (NopMetrics) StageError(string)                                    {}
func (NopMetrics) RateLimited(models.ChannelType)                       {}

// NewOrchestrator creates a pipeline orchestrator. Stages are sorted by
// order with registration order as the tie-break.
func NewOrchestrator(store sessions.Store, locker sessions.Locker, stages []Stage, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := make([]Stage, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order() < sorted[j].Order() })

	return &Orchestrator{
		store:   store,
		locker:  locker,
		stages:  sorted,
		logger:  logger.With("component", "pipeline"),
		metrics: NopMetrics{},
	}
}

// WithRateLimiter sets the rate limiter consulted before intake.
func (o *Orchestrator) WithRateLimiter(limiter RateLimiter) *Orchestrator {
	o.limiter = limiter
	return o
}

// WithPreferences sets the user-facing message bundle.
func (o *Orchestrator) WithPreferences(prefs Preferences) *Orchestrator {
	o.prefs = prefs
	return o
}

// WithResponder sets the out-of-band responder for rejections.
func (o *Orchestrator) WithResponder(responder Responder) *Orchestrator {
	o.responder = responder
	return o
}

// WithPlanMode sets the plan-mode source.
func (o *Orchestrator) WithPlanMode(planMode PlanModeSource) *Orchestrator {
	o.planMode = planMode
	return o
}

// WithMetrics sets the metrics sink.
func (o *Orchestrator) WithMetrics(metrics Metrics) *Orchestrator {
	if metrics != nil {
		o.metrics = metrics
	}
	return o
}

// ProcessMessage runs one full turn for the incoming message. It never
// returns an error to the transport; failures surface to the user through
// the feedback guarantee.
func (o *Orchestrator) ProcessMessage(ctx context.Context, incoming *models.Message) {
	if incoming == nil || incoming.ChatID == "" {
		o.logger.Warn("dropping message without chat id")
		return
	}

	session, err := o.store.GetOrCreate(ctx, incoming.Channel, incoming.ChatID)
	if err != nil {
		o.logger.Error("session acquisition failed", "channel", incoming.Channel, "chat_id", incoming.ChatID, "error", err)
		return
	}

	if o.locker != nil {
		if err := o.locker.Lock(ctx, session.ID); err != nil {
			o.logger.Warn("session lock not acquired", "session_id", session.ID, "error", err)
			return
		}
		defer o.locker.Unlock(session.ID)
	}

	if o.limiter != nil {
		key := sessions.SessionKey(session.Channel, session.ChatID)
		if result := o.limiter.TryConsume(key); !result.Allowed {
			o.metrics.RateLimited(session.Channel)
			o.rejectRateLimited(ctx, session, incoming, result)
			return
		}
	}

	o.intake(ctx, session, incoming)

	tc := NewTurnContext(session, incoming)
	if o.planMode != nil {
		tc.PlanModeActive = o.planMode.PlanModeActive(session.ChatID)
	}
	tc.AddRuntimeEvent(models.NewRuntimeEvent(models.EventTurnStarted, session))

	o.metrics.TurnStarted(session.Channel)
	o.runStages(ctx, tc)
	o.persistMetadata(ctx, session)

	reason := models.FinishSuccess
	if tc.Outcome != nil {
		reason = tc.Outcome.FinishReason
	} else if tc.LLMError != "" {
		reason = models.FinishLLMError
	}
	o.metrics.TurnFinished(session.Channel, reason)
}

// intake appends the incoming message to raw history.
func (o *Orchestrator) intake(ctx context.Context, session *models.Session, incoming *models.Message) {
	if incoming.ID == "" {
		incoming.ID = uuid.NewString()
	}
	if incoming.SessionID == "" {
		incoming.SessionID = session.ID
	}
	if incoming.Role == "" {
		incoming.Role = models.RoleUser
	}
	if incoming.Channel == "" {
		incoming.Channel = session.Channel
	}
	if incoming.CreatedAt.IsZero() {
		incoming.CreatedAt = time.Now()
	}

	session.Messages = append(session.Messages, incoming)
	session.UpdatedAt = incoming.CreatedAt
	if err := o.store.Append(ctx, session.ID, incoming); err != nil {
		o.logger.Warn("failed to persist incoming message", "session_id", session.ID, "error", err)
	}
}

// runStages executes the pipeline. A stage error is classified, recorded
// as the turn's llm.error, and the pipeline continues so the feedback
// guarantee can still produce a reply.
func (o *Orchestrator) runStages(ctx context.Context, tc *TurnContext) {
	for _, stage := range o.stages {
		if !stage.Enabled() {
			continue
		}
		if !stage.ShouldProcess(tc) {
			continue
		}
		if err := o.runStage(ctx, stage, tc); err != nil {
			code := ClassifyError(err)
			o.metrics.StageError(stage.Name())
			o.logger.Error("stage failed", "stage", stage.Name(), "code", code, "error", err)
			if tc.LLMError == "" {
				tc.LLMError = code
			}
		}
	}
}

// runStage invokes one stage with panic containment.
func (o *Orchestrator) runStage(ctx context.Context, stage Stage, tc *TurnContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.Name(), r)
		}
	}()
	return stage.Process(ctx, tc)
}

// rejectRateLimited sends the preferences-sourced rejection without
// invoking the LLM.
func (o *Orchestrator) rejectRateLimited(ctx context.Context, session *models.Session, incoming *models.Message, result RateLimitResult) {
	text := "Rate limit exceeded. Please try again later."
	if o.prefs != nil {
		if msg := o.prefs.Message("system.ratelimit.rejected"); msg != "" {
			text = msg
		}
	}
	text = renderRetryAfter(text, result.RetryAfter)

	tc := NewTurnContext(session, incoming)
	tc.OutgoingResponse = models.TextOnly(text)
	if o.responder == nil {
		o.logger.Warn("rate limited with no responder configured", "session_id", session.ID)
		return
	}
	if err := o.responder.Respond(ctx, tc); err != nil {
		o.logger.Warn("rate limit rejection delivery failed", "session_id", session.ID, "error", err)
	}
}

func renderRetryAfter(text string, retryAfter time.Duration) string {
	if retryAfter <= 0 {
		return text
	}
	return strings.ReplaceAll(text, "{{RETRY_AFTER}}", retryAfter.Round(time.Second).String())
}

func (o *Orchestrator) persistMetadata(ctx context.Context, session *models.Session) {
	if session.Metadata == nil {
		return
	}
	if err := o.store.UpdateMetadata(ctx, session.ID, session.Metadata); err != nil {
		o.logger.Warn("failed to persist session metadata", "session_id", session.ID, "error", err)
	}
}
