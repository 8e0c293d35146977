// Package skills provides the skill model and a file-based skill store.
// A skill is a named prompt fragment with optional pipeline transitions
// and an MCP tool bundle, selected per turn by the skill router.
package skills

// Skill represents a routable prompt fragment.
type Skill struct {
	// Name is the unique skill identifier (lowercase, hyphens allowed).
	Name string `json:"name" yaml:"name"`

	// Description explains what the skill does and when to route to it.
	Description string `json:"description" yaml:"description"`

	// Content is the prompt body injected for the active skill.
	Content string `json:"-" yaml:"-"`

	// Available controls whether the skill participates in routing.
	Available bool `json:"available" yaml:"available"`

	// NextSkill is the default follow-up skill in a pipeline.
	NextSkill string `json:"next_skill,omitempty" yaml:"nextSkill"`

	// ConditionalNextSkills maps a condition to the follow-up skill taken
	// when it holds.
	ConditionalNextSkills map[string]string `json:"conditional_next_skills,omitempty" yaml:"conditionalNextSkills"`

	// MCPConfig describes the tool server bundled with this skill.
	MCPConfig *MCPConfig `json:"mcp_config,omitempty" yaml:"mcp"`

	// ModelTier is the preferred model tier when this skill is active.
	ModelTier string `json:"model_tier,omitempty" yaml:"modelTier"`
}

// HasPipeline reports whether the skill declares follow-up transitions.
func (s *Skill) HasPipeline() bool {
	return s != nil && (s.NextSkill != "" || len(s.ConditionalNextSkills) > 0)
}

// MCPConfig describes how to reach a skill's MCP tool server.
type MCPConfig struct {
	// Command is the executable for stdio transports.
	Command string `json:"command,omitempty" yaml:"command"`

	// Args are passed to Command.
	Args []string `json:"args,omitempty" yaml:"args"`

	// URL is the endpoint for HTTP transports.
	URL string `json:"url,omitempty" yaml:"url"`
}
