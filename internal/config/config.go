// Package config loads the relay configuration file. Each subsystem owns
// its config struct and defaults; this package aggregates them under one
// yaml document and fills in what the file leaves out.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/relay/internal/auto"
	"github.com/haasonsaas/relay/internal/memory"
	"github.com/haasonsaas/relay/internal/prompt"
	"github.com/haasonsaas/relay/internal/rag"
	"github.com/haasonsaas/relay/internal/ratelimit"
	"github.com/haasonsaas/relay/internal/routing"
	"github.com/haasonsaas/relay/internal/usage"
)

// Config is the root configuration document.
type Config struct {
	Logging   LoggingConfig       `yaml:"logging"`
	Sessions  SessionsConfig      `yaml:"sessions"`
	Skills    SkillsConfig        `yaml:"skills"`
	Loop      LoopConfig          `yaml:"loop"`
	Routing   routing.Config      `yaml:"routing"`
	RateLimit ratelimit.Config    `yaml:"rate_limit"`
	Memory    memory.Config       `yaml:"memory"`
	RAG       rag.Config          `yaml:"rag"`
	Auto      auto.Config         `yaml:"auto"`
	Usage     usage.TrackerConfig `yaml:"usage"`
	Plan      PlanConfig          `yaml:"plan"`
	Prompt    PromptConfig        `yaml:"prompt"`
	Prefs     PrefsConfig         `yaml:"preferences"`
	Metrics   MetricsConfig       `yaml:"metrics"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`
}

// SessionsConfig selects the session store backend.
type SessionsConfig struct {
	// Backend is memory or sqlite.
	Backend string `yaml:"backend"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	// LockTimeout bounds how long a turn waits for the session lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// SkillsConfig controls skill loading.
type SkillsConfig struct {
	// Dir is the directory of skill markdown files.
	Dir string `yaml:"dir"`

	// Watch reloads skills on file changes.
	Watch bool `yaml:"watch"`
}

// LoopConfig mirrors the tool loop settings.
type LoopConfig struct {
	MaxIterations int      `yaml:"max_iterations"`
	MaxTokens     int      `yaml:"max_tokens"`
	DefaultModel  string   `yaml:"default_model"`
	ConfirmTools  []string `yaml:"confirm_tools"`
}

// PlanConfig controls the plan feature.
type PlanConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PromptConfig supplies templated prompt sections. When disabled or
// empty, the context builder uses its default identity line.
type PromptConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Sections []prompt.Section `yaml:"sections"`
}

// PrefsConfig points at the user-message override file.
type PrefsConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Sessions:  SessionsConfig{Backend: "memory", LockTimeout: 30 * time.Second},
		Skills:    SkillsConfig{Dir: "skills", Watch: true},
		Loop:      LoopConfig{MaxIterations: 10, MaxTokens: 4096},
		Routing:   *routing.DefaultConfig(),
		RateLimit: ratelimit.DefaultConfig(),
		Memory:    memory.DefaultConfig(),
		RAG:       rag.DefaultConfig(),
		Auto:      auto.DefaultConfig(),
		Usage:     usage.DefaultTrackerConfig(),
		Plan:      PlanConfig{Enabled: true},
		Metrics:   MetricsConfig{Enabled: false, Addr: ":9090"},
	}
}

// Load reads the configuration file, expands environment variables, and
// applies defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Sessions.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown sessions backend %q", c.Sessions.Backend)
	}
	if c.Sessions.Backend == "sqlite" && c.Sessions.SQLitePath == "" {
		return fmt.Errorf("sessions.sqlite_path is required for the sqlite backend")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	defaults := Default()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = defaults.Sessions.Backend
	}
	if cfg.Sessions.LockTimeout <= 0 {
		cfg.Sessions.LockTimeout = defaults.Sessions.LockTimeout
	}
	if cfg.Skills.Dir == "" {
		cfg.Skills.Dir = defaults.Skills.Dir
	}
	if cfg.Loop.MaxIterations <= 0 {
		cfg.Loop.MaxIterations = defaults.Loop.MaxIterations
	}
	if cfg.Loop.MaxTokens <= 0 {
		cfg.Loop.MaxTokens = defaults.Loop.MaxTokens
	}
	if cfg.Routing.RoutingTimeoutMs <= 0 {
		cfg.Routing.RoutingTimeoutMs = defaults.Routing.RoutingTimeoutMs
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = defaults.Metrics.Addr
	}
}
