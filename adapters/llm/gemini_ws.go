package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/entities"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

const wsWriteWait = 10 * time.Second

// GeminiWebSocket implements the LiveConnector interface by speaking the
// BidiGenerateContent protocol directly over a websocket
type GeminiWebSocket struct {
	config LiveConfig
	dialer *websocket.Dialer
	logger *zap.Logger
}

var _ repositories.LiveConnector = (*GeminiWebSocket)(nil)

// NewGeminiWebSocket creates a raw websocket connector
func NewGeminiWebSocket(config LiveConfig, logger *zap.Logger) *GeminiWebSocket {
	config = config.WithDefaults(logger)
	return &GeminiWebSocket{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
		logger: logger,
	}
}

// Ready implements repositories.LiveConnector
func (g *GeminiWebSocket) Ready() error {
	return ValidateLiveConfig(g.config)
}

// Connect implements repositories.LiveConnector
func (g *GeminiWebSocket) Connect(ctx context.Context, config repositories.LiveConfig) (repositories.LiveSession, error) {
	if err := g.Ready(); err != nil {
		return nil, err
	}

	endpoint, err := url.Parse(g.config.Endpoint)
	if err != nil {
		return nil, domain.NewConfigurationError("GEMINI_LIVE_ENDPOINT", err.Error())
	}
	query := endpoint.Query()
	query.Set("key", g.config.APIKey)
	endpoint.RawQuery = query.Encode()

	openCtx, cancel := context.WithTimeout(ctx, g.config.HandshakeTimeout)
	defer cancel()

	conn, _, err := g.dialer.DialContext(openCtx, endpoint.String(), nil)
	if err != nil {
		return nil, domain.NewTransportError("open", fmt.Errorf("failed to dial: %w", err))
	}

	session := &geminiWSSession{conn: conn, logger: g.logger}

	model := config.Model
	if model == "" {
		model = g.config.Model
	}
	voice := config.Voice
	if voice == "" {
		voice = g.config.Voice
	}

	if err := session.writeJSON(buildSetup(model, voice, config)); err != nil {
		conn.Close()
		return nil, domain.NewTransportError("open", fmt.Errorf("failed to send setup: %w", err))
	}

	if deadline, ok := openCtx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	for {
		msg, err := session.read()
		if err != nil {
			conn.Close()
			return nil, domain.NewTransportError("open", fmt.Errorf("failed to receive setup acknowledgment: %w", err))
		}
		if msg.SetupComplete {
			break
		}
	}
	conn.SetReadDeadline(time.Time{})

	g.logger.Info("Gemini Live websocket opened",
		zap.String("model", model),
		zap.String("voice", voice),
		zap.Int("tools", len(config.Tools)))

	return session, nil
}

func buildSetup(model, voice string, config repositories.LiveConfig) wsSetupMessage {
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	setup := wsSetup{
		Model: model,
		GenerationConfig: wsGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: wsSpeechConfig{
				VoiceConfig: wsVoiceConfig{
					PrebuiltVoiceConfig: wsPrebuiltVoice{VoiceName: voice},
				},
			},
		},
	}
	if config.SystemInstruction != "" {
		setup.SystemInstruction = &wsContent{Parts: []wsPart{{Text: config.SystemInstruction}}}
	}
	if len(config.Tools) > 0 {
		decls := make([]wsFunctionDeclaration, 0, len(config.Tools))
		for _, t := range config.Tools {
			decls = append(decls, wsFunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  jsonSchema(t),
			})
		}
		setup.Tools = []wsTool{{FunctionDeclarations: decls}}
	}
	return wsSetupMessage{Setup: setup}
}

// Outbound frames

type wsSetupMessage struct {
	Setup wsSetup `json:"setup"`
}

type wsSetup struct {
	Model             string             `json:"model"`
	GenerationConfig  wsGenerationConfig `json:"generation_config"`
	SystemInstruction *wsContent         `json:"system_instruction,omitempty"`
	Tools             []wsTool           `json:"tools,omitempty"`
}

type wsGenerationConfig struct {
	ResponseModalities []string       `json:"response_modalities"`
	SpeechConfig       wsSpeechConfig `json:"speech_config"`
}

type wsSpeechConfig struct {
	VoiceConfig wsVoiceConfig `json:"voice_config"`
}

type wsVoiceConfig struct {
	PrebuiltVoiceConfig wsPrebuiltVoice `json:"prebuilt_voice_config"`
}

type wsPrebuiltVoice struct {
	VoiceName string `json:"voice_name"`
}

type wsContent struct {
	Parts []wsPart `json:"parts"`
}

type wsPart struct {
	Text string `json:"text"`
}

type wsTool struct {
	FunctionDeclarations []wsFunctionDeclaration `json:"function_declarations"`
}

type wsFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type wsRealtimeInputMessage struct {
	RealtimeInput wsRealtimeInput `json:"realtime_input"`
}

type wsRealtimeInput struct {
	MediaChunks []wsBlob `json:"media_chunks"`
}

type wsBlob struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

type wsToolResponseMessage struct {
	ToolResponse wsToolResponse `json:"tool_response"`
}

type wsToolResponse struct {
	FunctionResponses []wsFunctionResponse `json:"function_responses"`
}

type wsFunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Inbound frames

type wsServerMessage struct {
	SetupComplete        *struct{}               `json:"setupComplete,omitempty"`
	ServerContent        *wsServerContent        `json:"serverContent,omitempty"`
	ToolCall             *wsToolCall             `json:"toolCall,omitempty"`
	ToolCallCancellation *wsToolCallCancellation `json:"toolCallCancellation,omitempty"`
}

type wsServerContent struct {
	ModelTurn    *wsModelTurn `json:"modelTurn,omitempty"`
	Interrupted  bool         `json:"interrupted,omitempty"`
	TurnComplete bool         `json:"turnComplete,omitempty"`
}

type wsModelTurn struct {
	Parts []wsServerPart `json:"parts"`
}

type wsServerPart struct {
	Text       string        `json:"text,omitempty"`
	InlineData *wsInlineData `json:"inlineData,omitempty"`
}

type wsInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wsToolCall struct {
	FunctionCalls []wsFunctionCall `json:"functionCalls"`
}

type wsFunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type wsToolCallCancellation struct {
	IDs []string `json:"ids"`
}

type geminiWSSession struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

var _ repositories.LiveSession = (*geminiWSSession)(nil)

func (s *geminiWSSession) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *geminiWSSession) SendAudio(ctx context.Context, pcm []byte, sampleRate int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := wsRealtimeInputMessage{RealtimeInput: wsRealtimeInput{MediaChunks: []wsBlob{{
		Data:     base64.StdEncoding.EncodeToString(pcm),
		MimeType: pcmMIME(sampleRate),
	}}}}
	if err := s.writeJSON(msg); err != nil {
		return domain.NewTransportError("send audio", err)
	}
	return nil
}

func (s *geminiWSSession) SendImage(ctx context.Context, jpeg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := wsRealtimeInputMessage{RealtimeInput: wsRealtimeInput{MediaChunks: []wsBlob{{
		Data:     base64.StdEncoding.EncodeToString(jpeg),
		MimeType: "image/jpeg",
	}}}}
	if err := s.writeJSON(msg); err != nil {
		return domain.NewTransportError("send image", err)
	}
	return nil
}

func (s *geminiWSSession) SendToolResponse(ctx context.Context, results []entities.ToolResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	responses := make([]wsFunctionResponse, 0, len(results))
	for _, r := range results {
		responses = append(responses, wsFunctionResponse{ID: r.CallID, Name: r.Name, Response: toolResponseFields(r)})
	}
	if err := s.writeJSON(wsToolResponseMessage{ToolResponse: wsToolResponse{FunctionResponses: responses}}); err != nil {
		return domain.NewTransportError("send tool response", err)
	}
	return nil
}

func (s *geminiWSSession) Receive(ctx context.Context) (*repositories.LiveMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := s.read()
	if err != nil {
		if isRemoteClose(err) {
			return nil, domain.ErrRemoteClosed
		}
		var decodeErr *domain.DecodeError
		if errors.As(err, &decodeErr) {
			return nil, err
		}
		return nil, domain.NewTransportError("receive", err)
	}
	return msg, nil
}

// read blocks for one frame and converts it. Audio parts with bad base64
// are dropped so the rest of the message still gets through.
func (s *geminiWSSession) read() (*repositories.LiveMessage, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var raw wsServerMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.NewDecodeError("invalid server message", err)
	}

	out := &repositories.LiveMessage{
		AudioRate:     defaultOutputSampleRate,
		SetupComplete: raw.SetupComplete != nil,
	}

	if content := raw.ServerContent; content != nil {
		if content.ModelTurn != nil {
			for _, part := range content.ModelTurn.Parts {
				if part.InlineData == nil || part.InlineData.Data == "" {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					s.logger.Warn("Dropping audio part with invalid base64", zap.Error(err))
					continue
				}
				out.Audio = append(out.Audio, pcm)
				out.AudioRate = sampleRateFromMIME(part.InlineData.MimeType, out.AudioRate)
			}
		}
		out.Interrupted = content.Interrupted
		out.TurnComplete = content.TurnComplete
	}

	if raw.ToolCall != nil {
		for _, fc := range raw.ToolCall.FunctionCalls {
			out.ToolCalls = append(out.ToolCalls, entities.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}

	if raw.ToolCallCancellation != nil {
		out.CancelledCalls = append(out.CancelledCalls, raw.ToolCallCancellation.IDs...)
	}

	return out, nil
}

func (s *geminiWSSession) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
