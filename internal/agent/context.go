// Package agent implements the turn orchestrator: an ordered pipeline of
// stages that transforms one user input into one outgoing response,
// driving the LLM-and-tools loop with skill routing, prompt assembly,
// plan-mode interception, history management, and response guarantees.
package agent

import (
	"github.com/haasonsaas/relay/internal/skills"
	"github.com/haasonsaas/relay/pkg/models"
)

// Extension keys for turn state that has no dedicated TurnContext field.
// Keys are namespaced strings; values are documented per key.
const (
	// ExtCancel (bool) requests cooperative cancellation of the tool loop
	// between iterations.
	ExtCancel = "cancel"
)

// RoutingInfo records the skill router's decision for this turn.
type RoutingInfo struct {
	// Skill is the matched skill name, empty when no match.
	Skill string

	// Confidence is the matcher's confidence in the selection.
	Confidence float64

	// Reason explains the selection.
	Reason string

	// LatencyMs is the matcher call duration.
	LatencyMs int64

	// LLMUsed reports whether an LLM classifier participated.
	LLMUsed bool

	// Fragmented reports whether the input looked like a fragmented
	// multi-message thought.
	Fragmented bool

	// FragmentationSignals lists the evidence for Fragmented.
	FragmentationSignals []string

	// Err holds the routing error, if the matcher failed or timed out.
	Err string
}

// TurnContext is the mutable per-turn state threaded through the pipeline.
// The orchestrator owns it exclusively; stages mutate it via its fields.
// The session is shared by reference; only the history writer and the
// initial intake append to its message list.
type TurnContext struct {
	// Session is the conversation this turn belongs to.
	Session *models.Session

	// Incoming is the message that triggered the turn.
	Incoming *models.Message

	// Messages is the turn's working copy of conversation history.
	Messages []*models.Message

	// AvailableTools are the tools advertised to the LLM this turn.
	AvailableTools []Tool

	// ToolResults indexes results by tool call ID.
	ToolResults map[string]models.ToolResult

	// ActiveSkill is the routed skill, nil when none matched.
	ActiveSkill *skills.Skill

	// SkillTransitionTarget requests a switch to the named skill before
	// prompt assembly. Cleared once applied.
	SkillTransitionTarget string

	// ModelTier is the symbolic model category resolved by routing.
	ModelTier string

	// SystemPrompt is the assembled system prompt.
	SystemPrompt string

	// Iteration is the current tool-loop iteration, zero-based.
	Iteration int

	// Outcome summarizes the turn once the loop finishes.
	Outcome *models.TurnOutcome

	// OutgoingResponse is the composed reply. Takes precedence over
	// LLMResponse content during response routing.
	OutgoingResponse *models.OutgoingResponse

	// LLMResponse is the last LLM response of the turn.
	LLMResponse *ChatResponse

	// LLMError is the classified error code when an LLM call failed.
	LLMError string

	// LoopComplete is set by the tool loop when it finished the turn.
	LoopComplete bool

	// FinalAnswerReady is set when a final assistant answer exists.
	FinalAnswerReady bool

	// PlanModeActive gates plan-mode interception.
	PlanModeActive bool

	// PlanApprovalNeeded carries the plan ID awaiting approval.
	PlanApprovalNeeded string

	// PlanSetContentRequested is set when the model invoked the
	// plan_set_content control tool.
	PlanSetContentRequested bool

	// ResponseSent is set by response routing after delivery.
	ResponseSent bool

	// Routing records the skill router's decision.
	Routing RoutingInfo

	// RoutingOutcome records the response routing result.
	RoutingOutcome *models.RoutingOutcome

	// RuntimeEvents are delivered to the channel adapter during response
	// routing.
	RuntimeEvents []*models.RuntimeEvent

	// Extensions carries forward-compatible attributes keyed by
	// namespaced strings.
	Extensions map[string]any
}

// NewTurnContext creates the context for one turn.
func NewTurnContext(session *models.Session, incoming *models.Message) *TurnContext {
	return &TurnContext{
		Session:     session,
		Incoming:    incoming,
		Messages:    append([]*models.Message(nil), session.Messages...),
		ToolResults: make(map[string]models.ToolResult),
		Extensions:  make(map[string]any),
	}
}

// AutoMode reports whether the turn was machine-triggered, judged by the
// last message's metadata.
func (tc *TurnContext) AutoMode() bool {
	if last := tc.Session.LastMessage(); last != nil {
		return last.AutoMode()
	}
	return tc.Incoming.AutoMode()
}

// Cancelled reports whether cooperative cancellation was requested.
func (tc *TurnContext) Cancelled() bool {
	v, ok := tc.Extensions[ExtCancel].(bool)
	return ok && v
}

// AddRuntimeEvent queues a runtime event for delivery.
func (tc *TurnContext) AddRuntimeEvent(ev *models.RuntimeEvent) {
	if ev != nil {
		tc.RuntimeEvents = append(tc.RuntimeEvents, ev)
	}
}

// LoopFinished reports whether the tool loop completed this turn with a
// final answer. Legacy stages must not run when it did.
func (tc *TurnContext) LoopFinished() bool {
	return tc.LoopComplete && tc.FinalAnswerReady
}
