package models

import "time"

// PlanStatus tracks a plan through its lifecycle.
// Transitions: COLLECTING → READY → {APPROVED | CANCELLED}.
type PlanStatus string

const (
	PlanCollecting PlanStatus = "COLLECTING"
	PlanReady      PlanStatus = "READY"
	PlanApproved   PlanStatus = "APPROVED"
	PlanCancelled  PlanStatus = "CANCELLED"
)

// Plan accumulates intercepted tool calls into an approvable sequence of
// steps instead of executing them.
type Plan struct {
	ID        string     `json:"id"`
	Status    PlanStatus `json:"status"`
	Steps     []PlanStep `json:"steps,omitempty"`
	ChatID    string     `json:"chat_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Active reports whether the plan can still collect steps or be finalized.
func (p *Plan) Active() bool {
	if p == nil {
		return false
	}
	return p.Status == PlanCollecting || p.Status == PlanReady
}

// PlanStep is a single proposed tool invocation within a plan.
type PlanStep struct {
	ID          string         `json:"id"`
	ToolName    string         `json:"tool_name"`
	Description string         `json:"description,omitempty"`
	Order       int            `json:"order"`
	Arguments   map[string]any `json:"arguments,omitempty"`
}

// PlanReadyEvent signals that a plan has been finalized and awaits
// approval.
type PlanReadyEvent struct {
	PlanID string `json:"plan_id"`
	ChatID string `json:"chat_id"`
}
