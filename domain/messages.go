package domain

import (
	"errors"
	"time"
)

// EventType names an event published by the assistant session controller
type EventType string

const (
	EventState       EventType = "state"
	EventVolume      EventType = "volume"
	EventError       EventType = "error"
	EventInterrupted EventType = "interrupted"
	EventToolCall    EventType = "tool_call"
	EventCamera      EventType = "camera"
)

// AssistantEvent is pushed to every attached POS terminal
type AssistantEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	State     string    `json:"state,omitempty"`
	Volume    float64   `json:"volume,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	CallID    string    `json:"call_id,omitempty"`
	Camera    *bool     `json:"camera,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// NewEvent stamps an event with the current time
func NewEvent(t EventType, sessionID string) AssistantEvent {
	return AssistantEvent{
		Type:      t,
		SessionID: sessionID,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	}
}

// ErrorKind classifies err for terminals
func ErrorKind(err error) string {
	var (
		permErr      *PermissionError
		transportErr *TransportError
		decodeErr    *DecodeError
		queryErr     *QueryError
		configErr    *ConfigurationError
	)
	switch {
	case errors.As(err, &configErr):
		return "configuration"
	case errors.As(err, &permErr):
		return "permission"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &queryErr):
		return "query"
	case errors.Is(err, ErrSessionActive):
		return "session_active"
	default:
		return "internal"
	}
}
