// Package respond delivers turn output back to the originating channel
// and guarantees the user always hears something.
package respond

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/channels"
	"github.com/haasonsaas/relay/pkg/models"
)

// RoutingStage sends the turn's response through the session's channel
// adapter, fans out queued runtime events, and records the delivery
// outcome. It also serves out-of-band sends (rate-limit rejections) via
// the agent.Responder interface.
type RoutingStage struct {
	registry *channels.Registry
	voice    channels.VoiceHandler
	logger   *slog.Logger
}

// NewRoutingStage creates the response routing stage. voice may be nil.
func NewRoutingStage(registry *channels.Registry, voice channels.VoiceHandler, logger *slog.Logger) *RoutingStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoutingStage{
		registry: registry,
		voice:    voice,
		logger:   logger.With("component", "respond"),
	}
}

func (s *RoutingStage) Name() string  { return "response_routing" }
func (s *RoutingStage) Order() int    { return agent.OrderResponseRouting }
func (s *RoutingStage) Enabled() bool { return true }

// ShouldProcess always runs: even turns with nothing to say deliver
// their runtime events.
func (s *RoutingStage) ShouldProcess(*agent.TurnContext) bool { return true }

func (s *RoutingStage) Process(ctx context.Context, tc *agent.TurnContext) error {
	s.finishLifecycle(tc)
	return s.Respond(ctx, tc)
}

// Respond delivers the composed response and queued runtime events.
// Send failures are recorded in the routing outcome, never returned; the
// pipeline has nothing left to do about them.
func (s *RoutingStage) Respond(ctx context.Context, tc *agent.TurnContext) error {
	outcome := &models.RoutingOutcome{Channel: tc.Session.Channel}
	tc.RoutingOutcome = outcome

	response := s.resolveResponse(tc)
	adapter, ok := s.registry.Get(tc.Session.Channel)
	if !ok {
		s.logger.Warn("no adapter for channel", "channel", tc.Session.Channel)
		s.deliverEvents(ctx, tc)
		return nil
	}

	if response != nil && response.Text != "" {
		outcome.Attempted = true
		if err := adapter.SendMessage(ctx, tc.Session.ChatID, response.Text, response.Attachments...); err != nil {
			outcome.Err = err
			s.logger.Warn("send failed", "channel", tc.Session.Channel, "error", err)
		} else {
			outcome.SentText = true
			tc.ResponseSent = true
		}

		if response.VoiceRequested && s.voice != nil && s.voice.Available() {
			if err := s.voice.TrySendVoice(ctx, tc.Session, tc.Session.ChatID, response.Text); err != nil {
				s.logger.Warn("voice send failed", "channel", tc.Session.Channel, "error", err)
			} else {
				outcome.SentVoice = true
			}
		}
	}

	s.deliverEvents(ctx, tc)
	return nil
}

// resolveResponse applies the precedence rule: a composed outgoing
// response wins over raw LLM content.
func (s *RoutingStage) resolveResponse(tc *agent.TurnContext) *models.OutgoingResponse {
	if tc.OutgoingResponse != nil {
		return tc.OutgoingResponse
	}
	if tc.LLMResponse != nil && tc.LLMResponse.Content != "" {
		response := models.TextOnly(tc.LLMResponse.Content)
		tc.OutgoingResponse = response
		return response
	}
	return nil
}

// finishLifecycle queues the terminal turn event before delivery.
func (s *RoutingStage) finishLifecycle(tc *agent.TurnContext) {
	eventType := models.EventTurnFinished
	if tc.LLMError != "" {
		eventType = models.EventTurnFailed
	}
	event := models.NewRuntimeEvent(eventType, tc.Session)
	if tc.LLMError != "" {
		event = event.WithPayload("code", tc.LLMError)
	}
	tc.AddRuntimeEvent(event)
}

// deliverEvents fans queued runtime events out to their channels.
// Events for unregistered channels are skipped silently.
func (s *RoutingStage) deliverEvents(ctx context.Context, tc *agent.TurnContext) {
	for _, event := range tc.RuntimeEvents {
		if event == nil {
			continue
		}
		adapter, ok := s.registry.Get(event.Channel)
		if !ok {
			continue
		}
		if err := adapter.SendRuntimeEvent(ctx, event.ChatID, event); err != nil {
			s.logger.Debug("runtime event delivery failed", "type", event.Type, "error", err)
		}
	}
	tc.RuntimeEvents = nil
}
