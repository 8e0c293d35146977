package models

import "testing"

func TestPlan_Active(t *testing.T) {
	tests := []struct {
		name   string
		plan   *Plan
		active bool
	}{
		{"nil plan", nil, false},
		{"collecting", &Plan{Status: PlanCollecting}, true},
		{"ready", &Plan{Status: PlanReady}, true},
		{"approved", &Plan{Status: PlanApproved}, false},
		{"cancelled", &Plan{Status: PlanCancelled}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.plan.Active(); got != tt.active {
				t.Errorf("Active() = %v, want %v", got, tt.active)
			}
		})
	}
}
