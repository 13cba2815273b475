package types

import (
	"encoding/json"
	"time"
)

// Client frame types received over the /stream WebSocket.
const (
	FrameSessionStart   = "session_start"
	FrameAudioStream    = "audio_stream"
	FrameTextMessage    = "text_message"
	FrameInputText      = "input_text" // legacy alias for text_message
	FrameUserAudioEnded = "user_audio_ended"
	FrameInterruption   = "user_interruption"
	FrameSwitchMode     = "switch_mode"
	FramePing           = "ping"
)

// Server frame types sent over the /stream WebSocket.
const (
	FrameConnectionEstablished = "connection_established"
	FrameRoleSwitch            = "role_switch"
	FrameTextResponse          = "text_response"
	FrameAudioResponse         = "audio_response"
	FrameAudioURL              = "audio_url"
	FrameTaskCompleted         = "task_completed"
	FrameTranscription         = "transcription"
	FramePong                  = "pong"
	FrameInfo                  = "info"
	FrameError                 = "error"
	FrameConnectionClosed      = "connection_closed"
)

// Role identifies the conversational persona assigned to a session.
// The resolver picks one of the first four at session start; GrammarGuide
// is reachable only through an explicit mode switch.
type Role string

const (
	RoleInfoCollector Role = "InfoCollector"
	RoleGoalPlanner   Role = "GoalPlanner"
	RoleOralTutor     Role = "OralTutor"
	RoleSummaryExpert Role = "SummaryExpert"
	RoleGrammarGuide  Role = "GrammarGuide"
)

// Message roles within the conversation log.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// PlaceholderContent marks a user message recorded before its transcript
// is known. The transcript-final event resolves it in place.
const PlaceholderContent = "..."

// Frame is the envelope for every client-originated WebSocket message.
// Payload shape depends on Type, so it stays raw until dispatch.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SessionStartPayload carries handshake parameters. Every field may also be
// supplied as a query parameter on the upgrade request; handshake values win.
type SessionStartPayload struct {
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Token     string `json:"token,omitempty"`
	Scenario  string `json:"scenario,omitempty"`
	Topic     string `json:"topic,omitempty"`
}

// AudioStreamPayload carries one base64-encoded raw PCM chunk.
type AudioStreamPayload struct {
	AudioBuffer string `json:"audioBuffer"`
}

// TextMessagePayload carries a typed user message.
type TextMessagePayload struct {
	Text string `json:"text"`
}

// SwitchModePayload selects an alternate conversational mode.
type SwitchModePayload struct {
	Mode string `json:"mode"`
}

// Message is one entry in the ordered, append-only conversation log.
// AudioURL is attached at most once, after the media upload resolves.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	AudioURL  string    `json:"audioUrl,omitempty"`
}

// ConversationLog is the full-replace payload persisted to the history
// collaborator after every log mutation.
type ConversationLog struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Messages  []Message `json:"messages"`
	Topic     string    `json:"topic"`
	EndTime   time.Time `json:"endTime"`
}

// ErrorPayload is the body of an outbound error frame.
type ErrorPayload struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

// Outbound error frame subtypes.
const (
	ErrorTypeInvalidJSON  = "invalid_json"
	ErrorTypeInvalidState = "invalid_state"
	ErrorTypeProcessing   = "processing_error"
	ErrorTypeConnection   = "connection_error"
	ErrorTypeUpstream     = "upstream_error"
)
