package entities

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionState represents where an assistant session is in its lifecycle
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateConnecting SessionState = "connecting"
	SessionStateActive     SessionState = "active"
	SessionStateClosing    SessionState = "closing"
	SessionStateClosed     SessionState = "closed"
)

// EndReason records why a session reached the closed state
type EndReason string

const (
	EndReasonUserDisconnect EndReason = "user_disconnect"
	EndReasonRemoteClosed   EndReason = "remote_closed"
	EndReasonTransportError EndReason = "transport_error"
	EndReasonOpenFailed     EndReason = "open_failed"
	EndReasonShutdown       EndReason = "shutdown"
)

var transitions = map[SessionState][]SessionState{
	SessionStateIdle:       {SessionStateConnecting},
	SessionStateConnecting: {SessionStateActive, SessionStateClosing},
	SessionStateActive:     {SessionStateClosing},
	SessionStateClosing:    {SessionStateClosed},
}

// SessionCounters tracks traffic through a session
type SessionCounters struct {
	ChunksSent      int `json:"chunks_sent" bson:"chunks_sent"`
	FramesSent      int `json:"frames_sent" bson:"frames_sent"`
	FramesDropped   int `json:"frames_dropped" bson:"frames_dropped"`
	AudioScheduled  int `json:"audio_scheduled" bson:"audio_scheduled"`
	DecodeFailures  int `json:"decode_failures" bson:"decode_failures"`
	Interruptions   int `json:"interruptions" bson:"interruptions"`
	ToolCalls       int `json:"tool_calls" bson:"tool_calls"`
	ToolCallsFailed int `json:"tool_calls_failed" bson:"tool_calls_failed"`
}

// Session is the audit record of one connection to the remote assistant
type Session struct {
	ID        string          `json:"id" bson:"_id"`
	State     SessionState    `json:"state" bson:"state"`
	Model     string          `json:"model" bson:"model"`
	Voice     string          `json:"voice" bson:"voice"`
	StartedAt time.Time       `json:"started_at" bson:"started_at"`
	ActiveAt  *time.Time      `json:"active_at,omitempty" bson:"active_at,omitempty"`
	EndedAt   *time.Time      `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
	EndReason EndReason       `json:"end_reason,omitempty" bson:"end_reason,omitempty"`
	Error     string          `json:"error,omitempty" bson:"error,omitempty"`
	Counters  SessionCounters `json:"counters" bson:"counters"`
}

// NewSession creates a session record in the idle state
func NewSession(model, voice string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		State:     SessionStateIdle,
		Model:     model,
		Voice:     voice,
		StartedAt: time.Now(),
	}
}

// CanTransition reports whether the state machine allows from -> to
func CanTransition(from, to SessionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the session to the next state
func (s *Session) Transition(to SessionState) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("invalid session transition %s -> %s", s.State, to)
	}
	s.State = to
	now := time.Now()
	switch to {
	case SessionStateActive:
		s.ActiveAt = &now
	case SessionStateClosed:
		s.EndedAt = &now
	}
	return nil
}

// IsLive reports whether the session still holds (or is acquiring) devices
func (s *Session) IsLive() bool {
	return s.State == SessionStateConnecting || s.State == SessionStateActive || s.State == SessionStateClosing
}

// IsTerminal reports whether the session has been fully released
func (s *Session) IsTerminal() bool {
	return s.State == SessionStateClosed
}

// MarkEnded records why the session is closing. The first reason wins.
func (s *Session) MarkEnded(reason EndReason, err error) {
	if s.EndReason != "" {
		return
	}
	s.EndReason = reason
	if err != nil {
		s.Error = err.Error()
	}
}

// Duration returns how long the session lived
func (s *Session) Duration() time.Duration {
	if s.EndedAt == nil {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}

	switch s.State {
	case SessionStateIdle, SessionStateConnecting, SessionStateActive, SessionStateClosing, SessionStateClosed:
	default:
		return errors.New("invalid session state")
	}

	if s.State == SessionStateClosed && s.EndedAt == nil {
		return errors.New("closed session must have ended_at")
	}

	return nil
}
