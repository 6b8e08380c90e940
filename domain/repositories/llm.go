package repositories

import (
	"context"

	"github.com/eburondeveloperph-gif/engr/domain/entities"
)

// LiveConnector opens realtime sessions with a remote multimodal model
type LiveConnector interface {
	// Ready reports a configuration problem that would make Connect fail
	// before any resource is acquired.
	Ready() error
	Connect(ctx context.Context, config LiveConfig) (LiveSession, error)
}

// LiveSession is one open bidirectional stream. Send methods must not be
// called concurrently with each other; Receive may run on its own goroutine.
type LiveSession interface {
	// SendAudio sends little-endian PCM16 mono audio at sampleRate
	SendAudio(ctx context.Context, pcm []byte, sampleRate int) error
	// SendImage sends a JPEG frame
	SendImage(ctx context.Context, jpeg []byte) error
	SendToolResponse(ctx context.Context, results []entities.ToolResult) error
	// Receive blocks for the next inbound message. A remote close is
	// reported as domain.ErrRemoteClosed.
	Receive(ctx context.Context) (*LiveMessage, error)
	Close() error
}

// LiveConfig is the persona and capability manifest a session opens with
type LiveConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
	Tools             []ToolDeclaration
}

// ToolDeclaration describes one capability the model may call
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  []ToolParameter
}

// ParamType is the primitive type of a tool parameter
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
)

// ToolParameter describes one named argument of a tool
type ToolParameter struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
	Min         *float64
	Max         *float64
	MaxLength   int
}

// LiveMessage is one inbound server message. A message may carry several
// parts; they are handled in the order audio, interruption, tool calls.
type LiveMessage struct {
	// Audio holds raw PCM16 fragments in arrival order
	Audio          [][]byte
	AudioRate      int
	Interrupted    bool
	TurnComplete   bool
	SetupComplete  bool
	ToolCalls      []entities.ToolCall
	CancelledCalls []string
}
