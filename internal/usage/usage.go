// Package usage tracks LLM token consumption per provider and model.
// Recording is best-effort and write-only; the tool loop never waits on
// it and failures stay inside this package.
package usage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

// Totals accumulates token counts for one provider:model pair.
type Totals struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	Requests     int64 `json:"requests"`
}

// Total returns the combined token count.
func (t *Totals) Total() int64 { return t.InputTokens + t.OutputTokens }

// TrackerConfig bounds the tracker's memory.
type TrackerConfig struct {
	// MaxAge drops request records older than this.
	// Default: 24h
	MaxAge time.Duration `yaml:"max_age"`

	// MaxCount caps retained request records.
	// Default: 10000
	MaxCount int `yaml:"max_count"`
}

// DefaultTrackerConfig returns the default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{MaxAge: 24 * time.Hour, MaxCount: 10000}
}

// Tracker keeps rolling usage totals by provider:model plus a bounded
// window of raw records. It implements the tool loop's usage recorder
// port.
type Tracker struct {
	logger *slog.Logger

	mu       sync.RWMutex
	records  []models.Usage
	totals   map[string]*Totals
	maxAge   time.Duration
	maxCount int
}

// NewTracker creates a usage tracker.
func NewTracker(config TrackerConfig, logger *slog.Logger) *Tracker {
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultTrackerConfig().MaxAge
	}
	if config.MaxCount <= 0 {
		config.MaxCount = DefaultTrackerConfig().MaxCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger:   logger.With("component", "usage"),
		totals:   make(map[string]*Totals),
		maxAge:   config.MaxAge,
		maxCount: config.MaxCount,
	}
}

// RecordUsage adds one request's usage. It never fails; nil usage is
// dropped.
func (t *Tracker) RecordUsage(providerID, model string, usage *models.Usage) {
	if usage == nil {
		return
	}
	record := *usage
	record.ProviderID = providerID
	record.Model = model
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append(t.records, record)

	key := totalsKey(providerID, model)
	totals := t.totals[key]
	if totals == nil {
		totals = &Totals{}
		t.totals[key] = totals
	}
	totals.InputTokens += record.InputTokens
	totals.OutputTokens += record.OutputTokens
	totals.Requests++

	t.prune()
}

// Model returns the accumulated totals for a provider:model pair, or nil
// when nothing was recorded.
func (t *Tracker) Model(providerID, model string) *Totals {
	t.mu.RLock()
	defer t.mu.RUnlock()

	totals := t.totals[totalsKey(providerID, model)]
	if totals == nil {
		return nil
	}
	copied := *totals
	return &copied
}

// Summary returns a copy of all accumulated totals keyed by
// provider:model.
func (t *Tracker) Summary() map[string]*Totals {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]*Totals, len(t.totals))
	for key, totals := range t.totals {
		copied := *totals
		out[key] = &copied
	}
	return out
}

// Recent returns up to limit of the newest raw records.
func (t *Tracker) Recent(limit int) []models.Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if limit <= 0 || limit > len(t.records) {
		limit = len(t.records)
	}
	out := make([]models.Usage, limit)
	copy(out, t.records[len(t.records)-limit:])
	return out
}

// prune drops expired and excess records. Caller holds the write lock.
func (t *Tracker) prune() {
	cutoff := time.Now().Add(-t.maxAge)
	start := 0
	for start < len(t.records) && t.records[start].Timestamp.Before(cutoff) {
		start++
	}
	if start > 0 {
		t.records = t.records[start:]
	}
	if len(t.records) > t.maxCount {
		t.records = t.records[len(t.records)-t.maxCount:]
	}
}

func totalsKey(providerID, model string) string {
	return providerID + ":" + model
}

// FormatTokenCount renders a token count for display.
func FormatTokenCount(count int64) string {
	switch {
	case count <= 0:
		return "0"
	case count >= 1_000_000:
		return fmt.Sprintf("%.1fm", float64(count)/1_000_000)
	case count >= 10_000:
		return fmt.Sprintf("%dk", count/1_000)
	case count >= 1_000:
		return fmt.Sprintf("%.1fk", float64(count)/1_000)
	default:
		return fmt.Sprintf("%d", count)
	}
}
