// Package observability exposes Prometheus metrics for the pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/haasonsaas/relay/pkg/models"
)

// Metrics holds the pipeline's Prometheus collectors. It implements the
// orchestrator's metrics port.
type Metrics struct {
	// TurnsStarted counts turns entering the pipeline.
	// Labels: channel
	TurnsStarted *prometheus.CounterVec

	// TurnsFinished counts completed turns.
	// Labels: channel, finish_reason (SUCCESS|TOOL_LIMIT|LLM_ERROR|CANCELLED)
	TurnsFinished *prometheus.CounterVec

	// StageErrors counts classified stage failures.
	// Labels: stage
	StageErrors *prometheus.CounterVec

	// RateLimitDenials counts turns rejected before intake.
	// Labels: channel
	RateLimitDenials *prometheus.CounterVec

	// ToolExecutions counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors with the default
// registry. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_turns_started_total",
				Help: "Total number of turns entering the pipeline by channel",
			},
			[]string{"channel"},
		),

		TurnsFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_turns_finished_total",
				Help: "Total number of finished turns by channel and finish reason",
			},
			[]string{"channel", "finish_reason"},
		),

		StageErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_stage_errors_total",
				Help: "Total number of pipeline stage errors by stage",
			},
			[]string{"stage"},
		),

		RateLimitDenials: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_ratelimit_denials_total",
				Help: "Total number of turns rejected by the rate limiter by channel",
			},
			[]string{"channel"},
		),

		ToolExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
	}
}

// TurnStarted records one turn entering the pipeline.
func (m *Metrics) TurnStarted(channel models.ChannelType) {
	m.TurnsStarted.WithLabelValues(string(channel)).Inc()
}

// TurnFinished records one completed turn.
func (m *Metrics) TurnFinished(channel models.ChannelType, reason models.FinishReason) {
	m.TurnsFinished.WithLabelValues(string(channel), string(reason)).Inc()
}

// StageError records a classified stage failure.
func (m *Metrics) StageError(stage string) {
	m.StageErrors.WithLabelValues(stage).Inc()
}

// RateLimited records a rejected turn.
func (m *Metrics) RateLimited(channel models.ChannelType) {
	m.RateLimitDenials.WithLabelValues(string(channel)).Inc()
}

// ToolExecuted records one tool invocation.
func (m *Metrics) ToolExecuted(toolName string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolExecutions.WithLabelValues(toolName, status).Inc()
}

// ObserveLLMRequest records one LLM call's latency.
func (m *Metrics) ObserveLLMRequest(provider, model string, seconds float64) {
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(seconds)
}
