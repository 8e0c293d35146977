// Package prompt assembles the system prompt and the turn's tool set.
package prompt

import (
	"sort"
	"strings"
	"sync"
)

// Section is one templated block of the system prompt. Placeholders of
// the form {{NAME}} are substituted at render time.
type Section struct {
	Name     string `yaml:"name"`
	Order    int    `yaml:"order"`
	Enabled  bool   `yaml:"enabled"`
	Template string `yaml:"template"`
}

// SectionService renders the configured prompt sections in order.
type SectionService struct {
	enabled bool

	mu       sync.RWMutex
	sections []Section
}

// NewSectionService creates a section service. A disabled service renders
// nothing; the context builder falls back to the default identity line.
func NewSectionService(enabled bool, sections []Section) *SectionService {
	s := &SectionService{enabled: enabled}
	s.Replace(sections)
	return s
}

// Enabled reports whether templated sections should be used at all.
func (s *SectionService) Enabled() bool { return s.enabled }

// Replace swaps the section set, keeping it sorted by order.
func (s *SectionService) Replace(sections []Section) {
	sorted := make([]Section, len(sections))
	copy(sorted, sections)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	s.mu.Lock()
	s.sections = sorted
	s.mu.Unlock()
}

// Render produces the templated prompt head: enabled sections in
// ascending order with {{VAR}} placeholders substituted from vars.
// Returns the empty string when nothing is enabled.
func (s *SectionService) Render(vars map[string]string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blocks []string
	for _, section := range s.sections {
		if !section.Enabled {
			continue
		}
		blocks = append(blocks, substitute(section.Template, vars))
	}
	return strings.Join(blocks, "\n\n")
}

func substitute(template string, vars map[string]string) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}
