package respond

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/channels"
	"github.com/haasonsaas/relay/pkg/models"
)

type sentMessage struct {
	chatID string
	text   string
}

type fakeAdapter struct {
	channel models.ChannelType
	sendErr error
	sent    []sentMessage
	events  []*models.RuntimeEvent
}

func (a *fakeAdapter) ChannelType() models.ChannelType { return a.channel }

func (a *fakeAdapter) SendMessage(_ context.Context, chatID, text string, _ ...models.Attachment) error {
	if a.sendErr != nil {
		return a.sendErr
	}
	a.sent = append(a.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (a *fakeAdapter) SendRuntimeEvent(_ context.Context, _ string, event *models.RuntimeEvent) error {
	a.events = append(a.events, event)
	return nil
}

type fakeVoice struct {
	available bool
	err       error
	sent      []string
}

func (v *fakeVoice) Available() bool { return v.available }

func (v *fakeVoice) TrySendVoice(_ context.Context, _ *models.Session, _, text string) error {
	if v.err != nil {
		return v.err
	}
	v.sent = append(v.sent, text)
	return nil
}

func respondTurn(channel models.ChannelType) *agent.TurnContext {
	session := &models.Session{ID: "s1", ChatID: "c1", Channel: channel}
	msg := &models.Message{ID: "m1", Role: models.RoleUser, Content: "hi", CreatedAt: time.Now()}
	session.Messages = []*models.Message{msg}
	return agent.NewTurnContext(session, msg)
}

func TestRoutingSendsLLMContent(t *testing.T) {
	adapter := &fakeAdapter{channel: models.ChannelCLI}
	registry := channels.NewRegistry()
	registry.Register(adapter)
	stage := NewRoutingStage(registry, nil, nil)

	tc := respondTurn(models.ChannelCLI)
	tc.LLMResponse = &agent.ChatResponse{Content: "the answer"}
	if err := stage.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(adapter.sent) != 1 || adapter.sent[0].text != "the answer" || adapter.sent[0].chatID != "c1" {
		t.Errorf("sent = %+v", adapter.sent)
	}
	if !tc.ResponseSent {
		t.Error("response not flagged as sent")
	}
	if tc.RoutingOutcome == nil || !tc.RoutingOutcome.SentText || !tc.RoutingOutcome.Attempted {
		t.Errorf("outcome = %+v", tc.RoutingOutcome)
	}
}

func TestRoutingOutgoingResponseWins(t *testing.T) {
	adapter := &fakeAdapter{channel: models.ChannelCLI}
	registry := channels.NewRegistry()
	registry.Register(adapter)
	stage := NewRoutingStage(registry, nil, nil)

	tc := respondTurn(models.ChannelCLI)
	tc.LLMResponse = &agent.ChatResponse{Content: "llm text"}
	tc.OutgoingResponse = models.TextOnly("composed text")
	if err := stage.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(adapter.sent) != 1 || adapter.sent[0].text != "composed text" {
		t.Errorf("sent = %+v, composed response must win", adapter.sent)
	}
}

func TestRoutingMissingAdapterSkips(t *testing.T) {
	stage := NewRoutingStage(channels.NewRegistry(), nil, nil)

	tc := respondTurn(models.ChannelTelegram)
	tc.OutgoingResponse = models.TextOnly("hello")
	if err := stage.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if tc.ResponseSent {
		t.Error("response marked sent without adapter")
	}
	if tc.RoutingOutcome.Attempted {
		t.Error("send attempted without adapter")
	}
}

func TestRoutingSendFailureRecorded(t *testing.T) {
	adapter := &fakeAdapter{channel: models.ChannelCLI, sendErr: errors.New("network down")}
	registry := channels.NewRegistry()
	registry.Register(adapter)
	stage := NewRoutingStage(registry, nil, nil)

	tc := respondTurn(models.ChannelCLI)
	tc.OutgoingResponse = models.TextOnly("hello")
	if err := stage.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if tc.RoutingOutcome.Err == nil || tc.RoutingOutcome.SentText {
		t.Errorf("outcome = %+v", tc.RoutingOutcome)
	}
	if tc.ResponseSent {
		t.Error("failed send flagged as sent")
	}
}

func TestRoutingVoice(t *testing.T) {
	adapter := &fakeAdapter{channel: models.ChannelTelegram}
	registry := channels.NewRegistry()
	registry.Register(adapter)
	voice := &fakeVoice{available: true}
	stage := NewRoutingStage(registry, voice, nil)

	tc := respondTurn(models.ChannelTelegram)
	tc.OutgoingResponse = &models.OutgoingResponse{Text: "read this aloud", VoiceRequested: true}
	if err := stage.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(voice.sent) != 1 || voice.sent[0] != "read this aloud" {
		t.Errorf("voice sends = %v", voice.sent)
	}
	if !tc.RoutingOutcome.SentVoice || !tc.RoutingOutcome.SentText {
		t.Errorf("outcome = %+v, text and voice are not exclusive", tc.RoutingOutcome)
	}
}

func TestRoutingRuntimeEventFanOut(t *testing.T) {
	cli := &fakeAdapter{channel: models.ChannelCLI}
	registry := channels.NewRegistry()
	registry.Register(cli)
	stage := NewRoutingStage(registry, nil, nil)

	tc := respondTurn(models.ChannelCLI)
	tc.AddRuntimeEvent(models.NewRuntimeEvent(models.EventTurnStarted, tc.Session))
	foreign := models.NewRuntimeEvent(models.EventTurnStarted, tc.Session)
	foreign.Channel = models.ChannelDiscord
	tc.AddRuntimeEvent(foreign)

	if err := stage.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Started event plus the terminal finished event; the foreign-channel
	// event is skipped silently.
	if len(cli.events) != 2 {
		t.Fatalf("delivered events = %d, want 2", len(cli.events))
	}
	if cli.events[0].Type != models.EventTurnStarted || cli.events[1].Type != models.EventTurnFinished {
		t.Errorf("events = %v, %v", cli.events[0].Type, cli.events[1].Type)
	}
	if len(tc.RuntimeEvents) != 0 {
		t.Error("event queue not drained")
	}
}

func TestRoutingFailedTurnEmitsTurnFailed(t *testing.T) {
	cli := &fakeAdapter{channel: models.ChannelCLI}
	registry := channels.NewRegistry()
	registry.Register(cli)
	stage := NewRoutingStage(registry, nil, nil)

	tc := respondTurn(models.ChannelCLI)
	tc.LLMError = agent.CodeRateLimit
	tc.OutgoingResponse = models.TextOnly("fallback")
	if err := stage.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}

	last := cli.events[len(cli.events)-1]
	if last.Type != models.EventTurnFailed {
		t.Errorf("terminal event = %s, want turn_failed", last.Type)
	}
	if last.Payload["code"] != agent.CodeRateLimit {
		t.Errorf("payload = %v", last.Payload)
	}
}
