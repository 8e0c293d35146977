package models

import "time"

// RuntimeEventType defines the types of runtime events.
type RuntimeEventType string

const (
	// EventTurnStarted indicates a turn has begun processing.
	EventTurnStarted RuntimeEventType = "turn_started"

	// EventTurnFinished indicates a turn completed.
	EventTurnFinished RuntimeEventType = "turn_finished"

	// EventTurnFailed indicates a turn ended with a classified error.
	EventTurnFailed RuntimeEventType = "turn_failed"
)

// RuntimeEvent represents a lifecycle event during turn processing.
// Events are delivered to the matching channel adapter by the response
// routing stage.
type RuntimeEvent struct {
	// Type identifies the kind of event.
	Type RuntimeEventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// SessionID is the session the event belongs to.
	SessionID string `json:"session_id,omitempty"`

	// Channel is the originating channel type.
	Channel ChannelType `json:"channel,omitempty"`

	// ChatID is the chat the event belongs to.
	ChatID string `json:"chat_id,omitempty"`

	// Payload contains event-specific data.
	Payload map[string]any `json:"payload,omitempty"`
}

// NewRuntimeEvent creates an event stamped with the current time.
func NewRuntimeEvent(eventType RuntimeEventType, session *Session) *RuntimeEvent {
	ev := &RuntimeEvent{
		Type:      eventType,
		Timestamp: time.Now(),
	}
	if session != nil {
		ev.SessionID = session.ID
		ev.Channel = session.Channel
		ev.ChatID = session.ChatID
	}
	return ev
}

// WithPayload adds a payload entry to the event.
func (e *RuntimeEvent) WithPayload(key string, value any) *RuntimeEvent {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}
