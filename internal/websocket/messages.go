package websocket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eburondeveloperph-gif/engr/usecase"
)

// maxFrameBytes bounds a decoded camera frame sent by a terminal
const maxFrameBytes = 384 * 1024

// MessageType defines the type of WebSocket message
type MessageType string

// Terminal to server
const (
	MessageTypeConnect     MessageType = "connect"
	MessageTypeDisconnect  MessageType = "disconnect"
	MessageTypeCamera      MessageType = "camera"
	MessageTypeCameraFrame MessageType = "camera_frame"
	MessageTypePing        MessageType = "ping"
)

// Server to terminal. Assistant events use domain.EventType values.
const (
	MessageTypePong     MessageType = "pong"
	MessageTypeError    MessageType = "error"
	MessageTypeSnapshot MessageType = "snapshot"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type" validate:"required"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// ConnectMessage asks the assistant to start a session
type ConnectMessage struct {
	BaseMessage
}

// DisconnectMessage asks the assistant to end the session
type DisconnectMessage struct {
	BaseMessage
}

// CameraMessage toggles the vision feed
type CameraMessage struct {
	BaseMessage
	Enabled *bool `json:"enabled" validate:"required"`
}

// CameraFrameMessage carries one JPEG from the terminal camera
type CameraFrameMessage struct {
	BaseMessage
	Data string `json:"data" validate:"required"` // base64 encoded JPEG

	jpeg []byte
}

// JPEG returns the decoded frame bytes
func (m *CameraFrameMessage) JPEG() []byte {
	return m.jpeg
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SnapshotMessage gives a newly attached terminal the current assistant state
type SnapshotMessage struct {
	BaseMessage
	Assistant usecase.AssistantState `json:"assistant"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	if base.Timestamp == "" {
		base.Timestamp = time.Now().Format(time.RFC3339)
	}

	switch base.Type {
	case MessageTypeConnect:
		return &ConnectMessage{BaseMessage: base}, nil

	case MessageTypeDisconnect:
		return &DisconnectMessage{BaseMessage: base}, nil

	case MessageTypeCamera:
		var msg CameraMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid camera message: %w", err)
		}
		if msg.Enabled == nil {
			return nil, fmt.Errorf("enabled is required")
		}
		msg.BaseMessage = base
		return &msg, nil

	case MessageTypeCameraFrame:
		var msg CameraFrameMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid camera frame message: %w", err)
		}
		if err := v.validateCameraFrame(&msg); err != nil {
			return nil, err
		}
		msg.BaseMessage = base
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		msg.BaseMessage = base
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateCameraFrame decodes and bounds the frame payload
func (v *MessageValidator) validateCameraFrame(msg *CameraFrameMessage) error {
	if msg.Data == "" {
		return fmt.Errorf("data is required")
	}
	if base64.StdEncoding.DecodedLen(len(msg.Data)) > maxFrameBytes {
		return fmt.Errorf("frame exceeds %d bytes", maxFrameBytes)
	}

	jpeg, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		return fmt.Errorf("data must be base64: %w", err)
	}
	if len(jpeg) < 2 || jpeg[0] != 0xff || jpeg[1] != 0xd8 {
		return fmt.Errorf("data is not a JPEG image")
	}

	msg.jpeg = jpeg
	return nil
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeError,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePong,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Data: data,
	}
}

// CreateSnapshotMessage wraps the assistant state for a terminal
func CreateSnapshotMessage(state usecase.AssistantState) *SnapshotMessage {
	return &SnapshotMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeSnapshot,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Assistant: state,
	}
}
