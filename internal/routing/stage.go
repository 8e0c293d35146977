// Package routing selects the active skill for a turn. The stage runs
// early in the pipeline, delegates the decision to a pluggable matcher,
// and records its reasoning on the turn context for observability.
package routing

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/skills"
)

// Config configures the skill routing stage.
type Config struct {
	// Enabled toggles the stage.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// RoutingTimeoutMs bounds the matcher call.
	// Default: 2000
	RoutingTimeoutMs int `yaml:"routing_timeout_ms"`
}

// DefaultConfig returns the default routing configuration.
func DefaultConfig() *Config {
	return &Config{Enabled: true, RoutingTimeoutMs: 2000}
}

func sanitizeConfig(config *Config) *Config {
	if config == nil {
		return DefaultConfig()
	}
	cfg := *config
	if cfg.RoutingTimeoutMs <= 0 {
		cfg.RoutingTimeoutMs = DefaultConfig().RoutingTimeoutMs
	}
	return &cfg
}

// Stage routes the turn to a skill before prompt assembly.
type Stage struct {
	store      *skills.Store
	matcher    Matcher
	aggregator *QueryAggregator
	analyzer   *FragmentationAnalyzer
	config     *Config
	now        func() time.Time
	logger     *slog.Logger
}

// NewStage creates the skill routing stage.
func NewStage(store *skills.Store, matcher Matcher, config *Config, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{
		store:      store,
		matcher:    matcher,
		aggregator: NewQueryAggregator(),
		analyzer:   NewFragmentationAnalyzer(),
		config:     sanitizeConfig(config),
		now:        time.Now,
		logger:     logger.With("component", "routing"),
	}
}

func (s *Stage) Name() string  { return "skill_routing" }
func (s *Stage) Order() int    { return agent.OrderSkillRouting }
func (s *Stage) Enabled() bool { return s.config.Enabled }

// ShouldProcess gates routing to the first iteration of non-auto turns
// with skills to route to and a non-blank query. A pending skill
// transition always passes so it can be applied.
func (s *Stage) ShouldProcess(tc *agent.TurnContext) bool {
	if tc.SkillTransitionTarget != "" {
		return true
	}
	if tc.Iteration != 0 || tc.AutoMode() {
		return false
	}
	if s.matcher == nil || !s.matcher.Enabled() {
		return false
	}
	if len(s.store.Available()) == 0 {
		return false
	}
	return s.aggregator.Build(tc.Messages, s.now()) != ""
}

func (s *Stage) Process(ctx context.Context, tc *agent.TurnContext) error {
	if s.applyTransition(tc) {
		return nil
	}

	available := s.store.Available()
	if !s.matcher.Ready() {
		if err := s.matcher.IndexSkills(available); err != nil {
			tc.Routing.Err = err.Error()
			s.logger.Warn("skill indexing failed", "error", err)
			return nil
		}
	}

	fragmented, signals := s.analyzer.Analyze(tc.Messages, s.now())
	tc.Routing.Fragmented = fragmented
	tc.Routing.FragmentationSignals = signals

	query := s.aggregator.Build(tc.Messages, s.now())

	matchCtx, cancel := context.WithTimeout(ctx, time.Duration(s.config.RoutingTimeoutMs)*time.Millisecond)
	defer cancel()

	start := s.now()
	result, err := s.matcher.Match(matchCtx, query, available, tc.Messages)
	tc.Routing.LatencyMs = time.Since(start).Milliseconds()

	if err != nil {
		// Routing failure is never fatal; the turn continues unrouted.
		tc.Routing.Err = err.Error()
		s.logger.Warn("skill match failed", "error", err, "timeout_ms", s.config.RoutingTimeoutMs)
		return nil
	}

	tc.Routing.Confidence = result.Confidence
	tc.Routing.Reason = result.Reason
	tc.Routing.LLMUsed = result.LLMUsed

	if result.Skill == "" {
		tc.ModelTier = result.ModelTier
		s.logger.Debug("no skill matched", "tier", result.ModelTier, "reason", result.Reason)
		return nil
	}

	skill, ok := s.store.Get(result.Skill)
	if !ok {
		tc.Routing.Err = "matched skill not in store: " + result.Skill
		s.logger.Warn("matched skill missing from store", "skill", result.Skill)
		return nil
	}

	tc.ActiveSkill = skill
	tc.Routing.Skill = skill.Name
	tc.ModelTier = result.ModelTier
	if tc.ModelTier == "" {
		tc.ModelTier = skill.ModelTier
	}
	s.logger.Info("skill routed", "skill", skill.Name, "confidence", result.Confidence, "latency_ms", tc.Routing.LatencyMs)
	return nil
}

// applyTransition switches the active skill when an earlier stage
// requested one. The request is cleared whether or not the lookup
// succeeds.
func (s *Stage) applyTransition(tc *agent.TurnContext) bool {
	target := tc.SkillTransitionTarget
	if target == "" {
		return false
	}
	tc.SkillTransitionTarget = ""

	skill, ok := s.store.Get(target)
	if !ok {
		s.logger.Warn("skill transition target not found", "skill", target)
		return true
	}
	tc.ActiveSkill = skill
	tc.Routing.Skill = skill.Name
	tc.Routing.Reason = "skill transition"
	if skill.ModelTier != "" {
		tc.ModelTier = skill.ModelTier
	}
	s.logger.Info("skill transition applied", "skill", skill.Name)
	return true
}
