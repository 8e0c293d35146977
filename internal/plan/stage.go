package plan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/pkg/models"
)

// ControlTools returns the tools advertised while plan mode is active.
// plan_set_content is intercepted by the tool loop before execution;
// plan_get reads the chat's current plan.
func (s *Service) ControlTools(chatID string) []agent.Tool {
	return []agent.Tool{
		&agent.ToolFunc{
			ToolName:        agent.PlanSetContentTool,
			ToolDescription: "Replace the current plan's content. Use while drafting a plan.",
			ToolSchema: map[string]any{
				"type":     "object",
				"required": []any{"content"},
				"properties": map[string]any{
					"content": map[string]any{"type": "string"},
				},
			},
			Fn: func(context.Context, map[string]any) (string, error) {
				return "plan content update requested", nil
			},
		},
		&agent.ToolFunc{
			ToolName:        agent.PlanGetTool,
			ToolDescription: "Read the current plan and its steps.",
			ToolSchema:      map[string]any{"type": "object"},
			Fn: func(context.Context, map[string]any) (string, error) {
				plan := s.ActivePlan(chatID)
				if plan == nil {
					return "No active plan.", nil
				}
				return RenderSummary(plan), nil
			},
		},
	}
}

// RenderSummary renders a plan as the approval prompt shown to the user.
func RenderSummary(plan *models.Plan) string {
	var sb strings.Builder
	sb.WriteString("Waiting for approval")
	for i, step := range plan.Steps {
		desc := step.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Fprintf(&sb, "\n%d. %s — %s", i+1, step.ToolName, desc)
	}
	return sb.String()
}

// FinalizationStage closes out plan collection at the end of a plan-mode
// turn: finalizes non-empty plans and requests approval, cancels empty
// ones, and deactivates plan mode when no plan was started.
type FinalizationStage struct {
	service *Service
	ready   chan<- models.PlanReadyEvent
	logger  *slog.Logger
}

// NewFinalizationStage creates the plan finalization stage. ready is the
// injected channel PlanReadyEvents are published on; it may be nil.
func NewFinalizationStage(service *Service, ready chan<- models.PlanReadyEvent, logger *slog.Logger) *FinalizationStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &FinalizationStage{
		service: service,
		ready:   ready,
		logger:  logger.With("component", "plan_finalization"),
	}
}

func (s *FinalizationStage) Name() string  { return "plan_finalization" }
func (s *FinalizationStage) Order() int    { return agent.OrderPlanFinalization }
func (s *FinalizationStage) Enabled() bool { return s.service.FeatureEnabled() }

// ShouldProcess requires an ended plan-mode turn: an LLM response exists
// and no tool calls remain pending.
func (s *FinalizationStage) ShouldProcess(tc *agent.TurnContext) bool {
	return tc.PlanModeActive && tc.LLMResponse != nil && len(tc.LLMResponse.ToolCalls) == 0
}

func (s *FinalizationStage) Process(_ context.Context, tc *agent.TurnContext) error {
	chatID := tc.Session.ChatID
	plan := s.service.ActivePlan(chatID)
	if plan == nil {
		s.service.DeactivatePlanMode(chatID)
		return nil
	}

	if len(plan.Steps) == 0 {
		if err := s.service.CancelPlan(plan.ID); err != nil {
			s.logger.Warn("empty plan cancel failed", "plan_id", plan.ID, "error", err)
		}
		return nil
	}

	if err := s.service.FinalizePlan(plan.ID); err != nil {
		s.logger.Warn("plan finalization failed", "plan_id", plan.ID, "error", err)
		return nil
	}

	tc.PlanApprovalNeeded = plan.ID
	s.publish(models.PlanReadyEvent{PlanID: plan.ID, ChatID: chatID})

	summary := RenderSummary(plan)
	if tc.LLMResponse.Content == "" {
		tc.LLMResponse.Content = summary
	} else {
		tc.LLMResponse.Content += "\n\n" + summary
	}
	return nil
}

// publish sends without blocking; a full channel drops the event with a
// warning rather than stalling the pipeline.
func (s *FinalizationStage) publish(event models.PlanReadyEvent) {
	if s.ready == nil {
		return
	}
	select {
	case s.ready <- event:
	default:
		s.logger.Warn("plan ready channel full, dropping event", "plan_id", event.PlanID)
	}
}
