// Package auto drives machine-triggered turns. Goals are standing
// instructions scheduled by cron expressions; when one is due the
// service injects a synthetic user message flagged auto.mode into the
// pipeline. Goals also render into the # Goals prompt section.
package auto

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/relay/pkg/models"
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// TurnRunner accepts an inbound message for processing.
type TurnRunner interface {
	ProcessMessage(ctx context.Context, msg *models.Message)
}

// Goal is one scheduled standing instruction for a chat.
type Goal struct {
	ID       string             `yaml:"id"`
	Channel  models.ChannelType `yaml:"channel"`
	ChatID   string             `yaml:"chat_id"`
	Text     string             `yaml:"text"`
	Schedule string             `yaml:"schedule"`

	next time.Time
}

// Config configures the auto-mode service.
type Config struct {
	// Enabled controls whether scheduled goals fire.
	Enabled bool `yaml:"enabled"`

	// ModelTier is the tier auto-mode turns resolve to.
	// Default: fast
	ModelTier string `yaml:"model_tier"`

	// TickInterval is how often due goals are checked.
	// Default: 30s
	TickInterval time.Duration `yaml:"tick_interval"`

	// Goals configured at startup.
	Goals []Goal `yaml:"goals"`
}

// DefaultConfig returns the default auto-mode configuration.
func DefaultConfig() Config {
	return Config{Enabled: false, ModelTier: "fast", TickInterval: 30 * time.Second}
}

// Service schedules goals and implements the context builder's goal
// source.
type Service struct {
	runner TurnRunner
	logger *slog.Logger
	config Config
	now    func() time.Time

	mu    sync.Mutex
	goals map[string]*Goal
}

// NewService creates the auto-mode service. Goals with invalid schedules
// are rejected at AddGoal time, not here.
func NewService(config Config, runner TurnRunner, logger *slog.Logger) *Service {
	if config.ModelTier == "" {
		config.ModelTier = DefaultConfig().ModelTier
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultConfig().TickInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runner: runner,
		logger: logger.With("component", "auto"),
		config: config,
		now:    time.Now,
		goals:  make(map[string]*Goal),
	}
}

// AddGoal registers a goal and computes its first due time.
func (s *Service) AddGoal(goal Goal) (string, error) {
	if strings.TrimSpace(goal.Text) == "" {
		return "", fmt.Errorf("goal text is required")
	}
	schedule, err := cronParser.Parse(goal.Schedule)
	if err != nil {
		return "", fmt.Errorf("invalid goal schedule %q: %w", goal.Schedule, err)
	}
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	goal.next = schedule.Next(s.now())

	s.mu.Lock()
	s.goals[goal.ID] = &goal
	s.mu.Unlock()
	return goal.ID, nil
}

// RemoveGoal drops a goal by id.
func (s *Service) RemoveGoal(id string) {
	s.mu.Lock()
	delete(s.goals, id)
	s.mu.Unlock()
}

// Goals renders the chat's standing instructions for the prompt.
func (s *Service) Goals(chatID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lines []string
	for _, goal := range s.goals {
		if goal.ChatID == chatID {
			lines = append(lines, "- "+goal.Text)
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// ModelTier returns the tier auto-mode turns run on.
func (s *Service) ModelTier() string { return s.config.ModelTier }

// Start loads configured goals and runs the tick loop until ctx ends.
func (s *Service) Start(ctx context.Context) {
	for _, goal := range s.config.Goals {
		if _, err := s.AddGoal(goal); err != nil {
			s.logger.Warn("skipping configured goal", "error", err)
		}
	}
	if !s.config.Enabled || s.runner == nil {
		return
	}

	ticker := time.NewTicker(s.config.TickInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunDue(ctx)
			}
		}
	}()
}

// RunDue fires every goal whose schedule has elapsed and reschedules it.
func (s *Service) RunDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*Goal
	for _, goal := range s.goals {
		if !goal.next.IsZero() && !goal.next.After(now) {
			due = append(due, goal)
			if schedule, err := cronParser.Parse(goal.Schedule); err == nil {
				goal.next = schedule.Next(now)
			}
		}
	}
	s.mu.Unlock()

	for _, goal := range due {
		s.logger.Info("firing goal", "goal_id", goal.ID, "chat_id", goal.ChatID)
		s.runner.ProcessMessage(ctx, &models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleUser,
			Content:   goal.Text,
			Channel:   goal.Channel,
			ChatID:    goal.ChatID,
			Metadata:  map[string]any{models.MetaAutoMode: true},
			CreatedAt: now,
		})
	}
}
