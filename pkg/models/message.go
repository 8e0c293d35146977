package models

import (
	"time"
)

// ChannelType represents a messaging platform.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
	ChannelSlack    ChannelType = "slack"
	ChannelCLI      ChannelType = "cli"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// MetaAutoMode marks a message as machine-triggered. Auto-mode turns
// suppress the feedback guarantee and use the auto model tier.
const MetaAutoMode = "auto.mode"

// Message is the unified message format across all channels.
//
// Invariants: a tool-role message carries ToolCallID and ToolName; an
// assistant-role message carries ToolCalls or final Content. An assistant
// message with tool calls plus the tool messages answering them form a
// tool round.
type Message struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Channel    ChannelType    `json:"channel,omitempty"`
	ChatID     string         `json:"chat_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Clone returns a deep copy of the message. History transformations
// operate on clones so raw session history is never mutated.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	if len(m.ToolCalls) > 0 {
		clone.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i := range m.ToolCalls {
			clone.ToolCalls[i] = m.ToolCalls[i].Clone()
		}
	}
	if m.Metadata != nil {
		clone.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// AutoMode reports whether the message is marked as machine-triggered.
func (m *Message) AutoMode() bool {
	if m == nil || m.Metadata == nil {
		return false
	}
	v, ok := m.Metadata[MetaAutoMode].(bool)
	return ok && v
}

// ToolCall represents an LLM's request to execute a tool. IDs are opaque
// strings unique within a turn.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Clone returns a copy of the tool call with its own arguments map.
func (t ToolCall) Clone() ToolCall {
	clone := t
	if t.Arguments != nil {
		clone.Arguments = make(map[string]any, len(t.Arguments))
		for k, v := range t.Arguments {
			clone.Arguments[k] = v
		}
	}
	return clone
}

// ToolFailureKind categorizes tool execution failures.
type ToolFailureKind string

const (
	ToolFailureExecution  ToolFailureKind = "EXECUTION_FAILED"
	ToolFailurePolicy     ToolFailureKind = "POLICY_DENIED"
	ToolFailureValidation ToolFailureKind = "VALIDATION_FAILED"
	ToolFailureTimeout    ToolFailureKind = "TIMEOUT"
	ToolFailureNotFound   ToolFailureKind = "NOT_FOUND"
)

// ToolResult is the outcome of a single tool execution: either a success
// with output or a categorized failure.
type ToolResult struct {
	Output         string          `json:"output,omitempty"`
	FailureKind    ToolFailureKind `json:"failure_kind,omitempty"`
	FailureMessage string          `json:"failure_message,omitempty"`
}

// ToolSuccess builds a successful tool result.
func ToolSuccess(output string) ToolResult {
	return ToolResult{Output: output}
}

// ToolFailure builds a failed tool result.
func ToolFailure(kind ToolFailureKind, message string) ToolResult {
	return ToolResult{FailureKind: kind, FailureMessage: message}
}

// Failed reports whether the result represents a failure.
func (r ToolResult) Failed() bool {
	return r.FailureKind != ""
}

// Text returns the content to surface for this result: the output on
// success, the failure message otherwise.
func (r ToolResult) Text() string {
	if r.Failed() {
		return r.FailureMessage
	}
	return r.Output
}

// ToolExecutionOutcome pairs a tool call with its result. Synthetic
// outcomes are produced by the loop itself (policy denials, plan-mode
// interception, guardrail stops) rather than by the executor.
type ToolExecutionOutcome struct {
	ToolCallID     string         `json:"tool_call_id"`
	ToolName       string         `json:"tool_name"`
	Result         ToolResult     `json:"result"`
	MessageContent string         `json:"message_content"`
	Synthetic      bool           `json:"synthetic,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SyntheticOutcome builds a synthetic failure outcome for a tool call.
func SyntheticOutcome(call ToolCall, kind ToolFailureKind, message string) ToolExecutionOutcome {
	return ToolExecutionOutcome{
		ToolCallID:     call.ID,
		ToolName:       call.Name,
		Result:         ToolFailure(kind, message),
		MessageContent: message,
		Synthetic:      true,
	}
}

// SessionMetaModel is the session metadata key tracking the last model
// used. A change triggers conversation-view flattening on the next turn.
const SessionMetaModel = "llm.model"

// Session represents a conversation thread. Messages accumulate
// monotonically; only the history writer and initial intake append.
type Session struct {
	ID        string         `json:"id"`
	Channel   ChannelType    `json:"channel"`
	ChatID    string         `json:"chat_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Messages  []*Message     `json:"messages,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// LastModel returns the model recorded in session metadata, if any.
func (s *Session) LastModel() string {
	if s == nil || s.Metadata == nil {
		return ""
	}
	v, _ := s.Metadata[SessionMetaModel].(string)
	return v
}

// SetLastModel records the model used for this session.
func (s *Session) SetLastModel(model string) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	s.Metadata[SessionMetaModel] = model
}

// LastMessage returns the most recent message, or nil for an empty session.
func (s *Session) LastMessage() *Message {
	if s == nil || len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// FinishReason describes how a turn ended.
type FinishReason string

const (
	FinishSuccess   FinishReason = "SUCCESS"
	FinishToolLimit FinishReason = "TOOL_LIMIT"
	FinishLLMError  FinishReason = "LLM_ERROR"
	FinishCancelled FinishReason = "CANCELLED"
)

// TurnOutcome summarizes one completed turn of the tool loop.
type TurnOutcome struct {
	FinishReason  FinishReason `json:"finish_reason"`
	AssistantText string       `json:"assistant_text,omitempty"`
	Err           error        `json:"-"`
}

// RoutingOutcome records the result of the response routing stage.
type RoutingOutcome struct {
	Attempted bool        `json:"attempted"`
	SentText  bool        `json:"sent_text"`
	SentVoice bool        `json:"sent_voice"`
	Channel   ChannelType `json:"channel,omitempty"`
	Err       error       `json:"-"`
}

// OutgoingResponse is the composed reply delivered by response routing.
type OutgoingResponse struct {
	Text           string       `json:"text"`
	VoiceRequested bool         `json:"voice_requested,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// TextOnly builds an outgoing response carrying just text.
func TextOnly(text string) *OutgoingResponse {
	return &OutgoingResponse{Text: text}
}

// Attachment represents a file or media attachment.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // image, audio, video, document
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Usage represents token usage for a single LLM request.
type Usage struct {
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	Latency      time.Duration `json:"latency,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
	SessionID    string        `json:"session_id,omitempty"`
	Model        string        `json:"model,omitempty"`
	ProviderID   string        `json:"provider_id,omitempty"`
}

// Total returns the total token count.
func (u *Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}
