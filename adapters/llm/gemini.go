package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/entities"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

// GeminiLive implements the LiveConnector interface using the genai SDK
type GeminiLive struct {
	config LiveConfig
	logger *zap.Logger

	mu     sync.Mutex
	client *genai.Client
}

var _ repositories.LiveConnector = (*GeminiLive)(nil)

// NewGeminiLive creates a connector. A missing API key is not an error here;
// it is reported by Ready so the server can start without one.
func NewGeminiLive(config LiveConfig, logger *zap.Logger) *GeminiLive {
	return &GeminiLive{
		config: config.WithDefaults(logger),
		logger: logger,
	}
}

// Ready implements repositories.LiveConnector
func (g *GeminiLive) Ready() error {
	return ValidateLiveConfig(g.config)
}

func (g *GeminiLive) genaiClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

// Connect implements repositories.LiveConnector. It returns once the server
// has acknowledged the setup.
func (g *GeminiLive) Connect(ctx context.Context, config repositories.LiveConfig) (repositories.LiveSession, error) {
	if err := g.Ready(); err != nil {
		return nil, err
	}

	client, err := g.genaiClient(ctx)
	if err != nil {
		return nil, domain.NewTransportError("open", err)
	}

	model := config.Model
	if model == "" {
		model = g.config.Model
	}
	voice := config.Voice
	if voice == "" {
		voice = g.config.Voice
	}

	connectConfig := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		Tools: toGenaiTools(config.Tools),
	}
	if config.SystemInstruction != "" {
		connectConfig.SystemInstruction = genai.NewContentFromText(config.SystemInstruction, genai.RoleUser)
	}

	openCtx, cancel := context.WithTimeout(ctx, g.config.HandshakeTimeout)
	defer cancel()

	session, err := client.Live.Connect(openCtx, model, connectConfig)
	if err != nil {
		return nil, domain.NewTransportError("open", err)
	}

	live := &geminiLiveSession{session: session, logger: g.logger}

	first, err := live.awaitSetup(openCtx)
	if err != nil {
		session.Close()
		return nil, domain.NewTransportError("open", err)
	}
	live.pending = first

	g.logger.Info("Gemini Live session opened",
		zap.String("model", model),
		zap.String("voice", voice),
		zap.Int("tools", len(config.Tools)))

	return live, nil
}

type geminiLiveSession struct {
	session *genai.Session
	logger  *zap.Logger

	// pending holds a message that arrived before setupComplete
	pending *repositories.LiveMessage

	closeOnce sync.Once
	closeErr  error
}

var _ repositories.LiveSession = (*geminiLiveSession)(nil)

func (s *geminiLiveSession) awaitSetup(ctx context.Context) (*repositories.LiveMessage, error) {
	type result struct {
		msg *genai.LiveServerMessage
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := s.session.Receive()
		ch <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for setup acknowledgment: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("failed to receive setup acknowledgment: %w", r.err)
		}
		if r.msg.SetupComplete != nil {
			return nil, nil
		}
		return s.convert(r.msg), nil
	}
}

func (s *geminiLiveSession) SendAudio(ctx context.Context, pcm []byte, sampleRate int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: pcm, MIMEType: pcmMIME(sampleRate)},
	})
	if err != nil {
		return domain.NewTransportError("send audio", err)
	}
	return nil
}

func (s *geminiLiveSession) SendImage(ctx context.Context, jpeg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: jpeg, MIMEType: "image/jpeg"},
	})
	if err != nil {
		return domain.NewTransportError("send image", err)
	}
	return nil
}

func (s *geminiLiveSession) SendToolResponse(ctx context.Context, results []entities.ToolResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	responses := make([]*genai.FunctionResponse, 0, len(results))
	for _, r := range results {
		responses = append(responses, &genai.FunctionResponse{
			ID:       r.CallID,
			Name:     r.Name,
			Response: toolResponseFields(r),
		})
	}
	if err := s.session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses}); err != nil {
		return domain.NewTransportError("send tool response", err)
	}
	return nil
}

func (s *geminiLiveSession) Receive(ctx context.Context) (*repositories.LiveMessage, error) {
	if s.pending != nil {
		msg := s.pending
		s.pending = nil
		return msg, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg, err := s.session.Receive()
	if err != nil {
		if isRemoteClose(err) {
			return nil, domain.ErrRemoteClosed
		}
		return nil, domain.NewTransportError("receive", err)
	}
	return s.convert(msg), nil
}

func (s *geminiLiveSession) convert(msg *genai.LiveServerMessage) *repositories.LiveMessage {
	out := &repositories.LiveMessage{
		AudioRate:     defaultOutputSampleRate,
		SetupComplete: msg.SetupComplete != nil,
	}

	if content := msg.ServerContent; content != nil {
		if content.ModelTurn != nil {
			for _, part := range content.ModelTurn.Parts {
				if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
					continue
				}
				out.Audio = append(out.Audio, part.InlineData.Data)
				out.AudioRate = sampleRateFromMIME(part.InlineData.MIMEType, out.AudioRate)
			}
		}
		out.Interrupted = content.Interrupted
		out.TurnComplete = content.TurnComplete
	}

	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, entities.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}

	if msg.ToolCallCancellation != nil {
		out.CancelledCalls = append(out.CancelledCalls, msg.ToolCallCancellation.IDs...)
	}

	return out
}

func (s *geminiLiveSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.session.Close()
	})
	return s.closeErr
}

// isRemoteClose reports whether err is an orderly close initiated by the server
func isRemoteClose(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
	}
	return false
}
