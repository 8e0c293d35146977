// Package plan manages plan mode: while active, tool calls are collected
// as plan steps instead of executing, and the finished plan waits for
// user approval.
package plan

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/pkg/models"
)

var (
	// ErrPlanNotFound reports an unknown plan ID.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrInvalidTransition reports a state-machine violation.
	ErrInvalidTransition = errors.New("invalid plan transition")

	// ErrEmptyPlan reports finalization of a plan without steps.
	ErrEmptyPlan = errors.New("plan has no steps")
)

// Service owns plan lifecycle state: at most one active plan per chat,
// per-plan write serialization, and the plan-mode flag per chat.
type Service struct {
	featureEnabled bool
	logger         *slog.Logger

	mu           sync.RWMutex
	plans        map[string]*models.Plan
	activeByChat map[string]string
	modeByChat   map[string]bool
	planLocks    map[string]*sync.Mutex
}

// NewService creates a plan service.
func NewService(featureEnabled bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		featureEnabled: featureEnabled,
		logger:         logger.With("component", "plan"),
		plans:          make(map[string]*models.Plan),
		activeByChat:   make(map[string]string),
		modeByChat:     make(map[string]bool),
		planLocks:      make(map[string]*sync.Mutex),
	}
}

// FeatureEnabled reports whether plan mode is available at all.
func (s *Service) FeatureEnabled() bool { return s.featureEnabled }

// ActivatePlanMode turns plan mode on for a chat.
func (s *Service) ActivatePlanMode(chatID string) {
	if !s.featureEnabled {
		return
	}
	s.mu.Lock()
	s.modeByChat[chatID] = true
	s.mu.Unlock()
	s.logger.Info("plan mode activated", "chat_id", chatID)
}

// DeactivatePlanMode turns plan mode off without touching plan state.
func (s *Service) DeactivatePlanMode(chatID string) {
	s.mu.Lock()
	delete(s.modeByChat, chatID)
	s.mu.Unlock()
	s.logger.Info("plan mode deactivated", "chat_id", chatID)
}

// PlanModeActive reports whether plan mode is on for a chat.
func (s *Service) PlanModeActive(chatID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modeByChat[chatID]
}

// EnsurePlan returns the chat's active plan, creating one in COLLECTING
// state when none exists.
func (s *Service) EnsurePlan(chatID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.activeByChat[chatID]; ok {
		if plan, ok := s.plans[id]; ok && plan.Active() {
			return id, nil
		}
	}

	now := time.Now()
	plan := &models.Plan{
		ID:        uuid.NewString(),
		Status:    models.PlanCollecting,
		ChatID:    chatID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.plans[plan.ID] = plan
	s.activeByChat[chatID] = plan.ID
	s.planLocks[plan.ID] = &sync.Mutex{}
	s.logger.Info("plan created", "plan_id", plan.ID, "chat_id", chatID)
	return plan.ID, nil
}

// ActivePlan returns the chat's active plan, or nil.
func (s *Service) ActivePlan(chatID string) *models.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeByChat[chatID]
	if !ok {
		return nil
	}
	plan := s.plans[id]
	if plan == nil || !plan.Active() {
		return nil
	}
	return plan
}

// Get returns a plan by ID.
func (s *Service) Get(planID string) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[planID]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

// AddStep appends a step to a collecting plan. Steps keep insertion
// order; concurrent appends to the same plan are serialized.
func (s *Service) AddStep(planID, toolName string, args map[string]any, description string) error {
	lock, err := s.planLock(planID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[planID]
	if !ok {
		return ErrPlanNotFound
	}
	if plan.Status != models.PlanCollecting {
		return fmt.Errorf("%w: add step in %s", ErrInvalidTransition, plan.Status)
	}

	plan.Steps = append(plan.Steps, models.PlanStep{
		ID:          uuid.NewString(),
		ToolName:    toolName,
		Description: description,
		Order:       len(plan.Steps) + 1,
		Arguments:   args,
	})
	plan.UpdatedAt = time.Now()
	return nil
}

// FinalizePlan moves a collecting plan with at least one step to READY.
func (s *Service) FinalizePlan(planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[planID]
	if !ok {
		return ErrPlanNotFound
	}
	if plan.Status != models.PlanCollecting {
		return fmt.Errorf("%w: finalize in %s", ErrInvalidTransition, plan.Status)
	}
	if len(plan.Steps) == 0 {
		return ErrEmptyPlan
	}
	plan.Status = models.PlanReady
	plan.UpdatedAt = time.Now()
	s.logger.Info("plan finalized", "plan_id", planID, "steps", len(plan.Steps))
	return nil
}

// CancelPlan cancels an active plan and releases the chat's active slot.
func (s *Service) CancelPlan(planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[planID]
	if !ok {
		return ErrPlanNotFound
	}
	if !plan.Active() {
		return fmt.Errorf("%w: cancel in %s", ErrInvalidTransition, plan.Status)
	}
	plan.Status = models.PlanCancelled
	plan.UpdatedAt = time.Now()
	s.release(plan)
	s.logger.Info("plan cancelled", "plan_id", planID)
	return nil
}

// ApprovePlan approves a READY plan, releases the active slot, and ends
// plan mode for the chat.
func (s *Service) ApprovePlan(planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[planID]
	if !ok {
		return ErrPlanNotFound
	}
	if plan.Status != models.PlanReady {
		return fmt.Errorf("%w: approve in %s", ErrInvalidTransition, plan.Status)
	}
	plan.Status = models.PlanApproved
	plan.UpdatedAt = time.Now()
	s.release(plan)
	delete(s.modeByChat, plan.ChatID)
	s.logger.Info("plan approved", "plan_id", planID)
	return nil
}

// release drops the chat's active-plan binding. Caller holds s.mu.
func (s *Service) release(plan *models.Plan) {
	if s.activeByChat[plan.ChatID] == plan.ID {
		delete(s.activeByChat, plan.ChatID)
	}
	delete(s.planLocks, plan.ID)
}

func (s *Service) planLock(planID string) (*sync.Mutex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lock, ok := s.planLocks[planID]
	if !ok {
		if _, exists := s.plans[planID]; !exists {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("%w: plan no longer active", ErrInvalidTransition)
	}
	return lock, nil
}
