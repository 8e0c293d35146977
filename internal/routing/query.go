package routing

import (
	"strings"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

// QueryAggregator builds the routing query from recent user messages.
// Fragmented thoughts spread over several short messages are joined so
// the matcher sees the whole request.
type QueryAggregator struct {
	// MaxMessages bounds how many trailing user messages are considered.
	MaxMessages int

	// Window bounds how far back in time aggregation reaches.
	Window time.Duration
}

// NewQueryAggregator creates an aggregator with default bounds.
func NewQueryAggregator() *QueryAggregator {
	return &QueryAggregator{MaxMessages: 3, Window: 2 * time.Minute}
}

// Build joins the trailing user messages within the window, oldest first.
// Returns the empty string when there is nothing to route on.
func (a *QueryAggregator) Build(messages []*models.Message, now time.Time) string {
	var parts []string
	cutoff := now.Add(-a.Window)

	for i := len(messages) - 1; i >= 0 && len(parts) < a.MaxMessages; i-- {
		msg := messages[i]
		if msg == nil || msg.Role != models.RoleUser {
			break
		}
		if !msg.CreatedAt.IsZero() && msg.CreatedAt.Before(cutoff) {
			break
		}
		text := strings.TrimSpace(msg.Content)
		if text != "" {
			parts = append(parts, text)
		}
	}

	// Collected newest-first; restore conversation order.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "\n")
}

// FragmentationAnalyzer detects inputs split across several short
// messages in a narrow time window, a pattern common on chat channels.
type FragmentationAnalyzer struct {
	// MaxLength is the content length at or below which a message counts
	// as short.
	MaxLength int

	// Window is the time span in which short messages count together.
	Window time.Duration

	// MinCount is the number of short messages needed to flag
	// fragmentation.
	MinCount int
}

// NewFragmentationAnalyzer creates an analyzer with default thresholds.
func NewFragmentationAnalyzer() *FragmentationAnalyzer {
	return &FragmentationAnalyzer{MaxLength: 20, Window: 30 * time.Second, MinCount: 2}
}

// Analyze inspects the trailing user messages and reports fragmentation
// evidence.
func (a *FragmentationAnalyzer) Analyze(messages []*models.Message, now time.Time) (bool, []string) {
	cutoff := now.Add(-a.Window)
	short := 0
	var signals []string

	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg == nil || msg.Role != models.RoleUser {
			break
		}
		if !msg.CreatedAt.IsZero() && msg.CreatedAt.Before(cutoff) {
			break
		}
		if len(strings.TrimSpace(msg.Content)) <= a.MaxLength {
			short++
			signals = append(signals, "short message: "+strings.TrimSpace(msg.Content))
		}
	}

	if short < a.MinCount {
		return false, nil
	}
	return true, signals
}
