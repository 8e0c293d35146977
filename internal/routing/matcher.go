package routing

import (
	"context"
	"strings"
	"sync"

	"github.com/haasonsaas/relay/internal/skills"
	"github.com/haasonsaas/relay/pkg/models"
)

// MatchResult is the skill matcher's decision for a routing query.
type MatchResult struct {
	// Skill is the selected skill name, empty when nothing matched.
	Skill string

	// Confidence is the matcher's confidence in the selection, 0..1.
	Confidence float64

	// ModelTier is the symbolic tier recommended for this turn. Set on
	// both match and no-match results.
	ModelTier string

	// Reason explains the decision.
	Reason string

	// LLMUsed reports whether an LLM classifier participated.
	LLMUsed bool
}

// Matcher selects a skill for a routing query. Implementations may call
// out to an LLM classifier; Match must honor ctx cancellation.
type Matcher interface {
	// Enabled reports whether routing should consult this matcher.
	Enabled() bool

	// Ready reports whether the matcher's index is current.
	Ready() bool

	// IndexSkills rebuilds the matcher's index.
	IndexSkills(available []*skills.Skill) error

	// Match selects a skill for the query.
	Match(ctx context.Context, query string, available []*skills.Skill, recent []*models.Message) (*MatchResult, error)
}

// KeywordMatcher routes by token overlap between the query and each
// skill's name and description. It needs no LLM and is always ready once
// indexed.
type KeywordMatcher struct {
	// Threshold is the minimum score required for a match.
	Threshold float64

	// NoMatchTier is the tier returned when nothing matches.
	NoMatchTier string

	// MatchTier is the fallback tier for matched skills that declare none.
	MatchTier string

	Disabled bool

	mu    sync.RWMutex
	index map[string]map[string]struct{}
}

// NewKeywordMatcher creates a keyword matcher with default thresholds.
func NewKeywordMatcher() *KeywordMatcher {
	return &KeywordMatcher{
		Threshold:   0.2,
		NoMatchTier: "balanced",
		MatchTier:   "balanced",
	}
}

func (m *KeywordMatcher) Enabled() bool { return !m.Disabled }

func (m *KeywordMatcher) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index != nil
}

func (m *KeywordMatcher) IndexSkills(available []*skills.Skill) error {
	index := make(map[string]map[string]struct{}, len(available))
	for _, skill := range available {
		index[skill.Name] = tokenize(skill.Name + " " + skill.Description)
	}
	m.mu.Lock()
	m.index = index
	m.mu.Unlock()
	return nil
}

func (m *KeywordMatcher) Match(ctx context.Context, query string, available []*skills.Skill, _ []*models.Message) (*MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return m.noMatch("empty query"), nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	best := ""
	bestScore := 0.0
	for _, skill := range available {
		tokens, ok := m.index[skill.Name]
		if !ok {
			continue
		}
		overlap := 0
		for token := range queryTokens {
			if _, hit := tokens[token]; hit {
				overlap++
			}
		}
		score := float64(overlap) / float64(len(queryTokens))
		if score > bestScore {
			best = skill.Name
			bestScore = score
		}
	}

	if best == "" || bestScore < m.Threshold {
		return m.noMatch("no skill above threshold"), nil
	}

	tier := m.MatchTier
	for _, skill := range available {
		if skill.Name == best && skill.ModelTier != "" {
			tier = skill.ModelTier
		}
	}
	return &MatchResult{
		Skill:      best,
		Confidence: bestScore,
		ModelTier:  tier,
		Reason:     "keyword overlap",
	}, nil
}

func (m *KeywordMatcher) noMatch(reason string) *MatchResult {
	return &MatchResult{ModelTier: m.NoMatchTier, Reason: reason}
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(s)) {
		token := strings.Trim(field, ".,!?:;\"'()[]")
		if len(token) < 3 {
			continue
		}
		tokens[token] = struct{}{}
	}
	return tokens
}
