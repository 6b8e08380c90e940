package llm

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/entities"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
	"github.com/eburondeveloperph-gif/engr/internal/audio"
)

// MockLive is an in-process LiveConnector. Tests drive its sessions through
// Push, Fail and RemoteClose; the server uses it to run without an API key.
type MockLive struct {
	// ReadyErr is returned by Ready and Connect
	ReadyErr error
	// ConnectErr makes Connect fail after ConnectDelay
	ConnectErr   error
	ConnectDelay time.Duration
	// Greeting is queued as audio on every new session
	Greeting [][]byte

	logger *zap.Logger

	mu       sync.Mutex
	sessions []*MockLiveSession
	configs  []repositories.LiveConfig
	opened   chan *MockLiveSession
}

var _ repositories.LiveConnector = (*MockLive)(nil)

// NewMockLive creates a new mock connector
func NewMockLive(logger *zap.Logger) *MockLive {
	return &MockLive{
		logger: logger,
		opened: make(chan *MockLiveSession, 16),
	}
}

// Ready implements repositories.LiveConnector
func (m *MockLive) Ready() error {
	return m.ReadyErr
}

// Connect implements repositories.LiveConnector
func (m *MockLive) Connect(ctx context.Context, config repositories.LiveConfig) (repositories.LiveSession, error) {
	if m.ReadyErr != nil {
		return nil, m.ReadyErr
	}

	if m.ConnectDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.ConnectDelay):
		}
	}
	if m.ConnectErr != nil {
		return nil, domain.NewTransportError("open", m.ConnectErr)
	}

	session := &MockLiveSession{
		inbound: make(chan mockInbound, 64),
		closed:  make(chan struct{}),
	}
	if len(m.Greeting) > 0 {
		session.Push(&repositories.LiveMessage{Audio: m.Greeting, AudioRate: defaultOutputSampleRate, TurnComplete: true})
	}

	m.mu.Lock()
	m.sessions = append(m.sessions, session)
	m.configs = append(m.configs, config)
	m.mu.Unlock()

	select {
	case m.opened <- session:
	default:
	}

	m.logger.Debug("Mock live session opened", zap.String("model", config.Model), zap.Int("tools", len(config.Tools)))
	return session, nil
}

// Opened delivers each session as it is opened
func (m *MockLive) Opened() <-chan *MockLiveSession {
	return m.opened
}

// Sessions returns every session opened so far
func (m *MockLive) Sessions() []*MockLiveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockLiveSession(nil), m.sessions...)
}

// LastConfig returns the configuration of the most recent Connect
func (m *MockLive) LastConfig() repositories.LiveConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.configs) == 0 {
		return repositories.LiveConfig{}
	}
	return m.configs[len(m.configs)-1]
}

type mockInbound struct {
	msg *repositories.LiveMessage
	err error
}

// MockLiveSession records everything sent to it
type MockLiveSession struct {
	inbound chan mockInbound

	closeOnce sync.Once
	closed    chan struct{}

	mu            sync.Mutex
	audio         [][]byte
	images        [][]byte
	toolResponses []entities.ToolResult
	sendErr       error
}

var _ repositories.LiveSession = (*MockLiveSession)(nil)

// Push queues an inbound message
func (s *MockLiveSession) Push(msg *repositories.LiveMessage) {
	s.inbound <- mockInbound{msg: msg}
}

// Fail makes the next Receive return err
func (s *MockLiveSession) Fail(err error) {
	s.inbound <- mockInbound{err: err}
}

// RemoteClose simulates the server ending the session
func (s *MockLiveSession) RemoteClose() {
	s.Fail(domain.ErrRemoteClosed)
}

// FailSends makes every later send return err
func (s *MockLiveSession) FailSends(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

func (s *MockLiveSession) send(op string, record func()) error {
	select {
	case <-s.closed:
		return domain.NewTransportError(op, errors.New("session closed"))
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return domain.NewTransportError(op, s.sendErr)
	}
	record()
	return nil
}

func (s *MockLiveSession) SendAudio(ctx context.Context, pcm []byte, sampleRate int) error {
	return s.send("send audio", func() { s.audio = append(s.audio, pcm) })
}

func (s *MockLiveSession) SendImage(ctx context.Context, jpeg []byte) error {
	return s.send("send image", func() { s.images = append(s.images, jpeg) })
}

func (s *MockLiveSession) SendToolResponse(ctx context.Context, results []entities.ToolResult) error {
	return s.send("send tool response", func() { s.toolResponses = append(s.toolResponses, results...) })
}

func (s *MockLiveSession) Receive(ctx context.Context) (*repositories.LiveMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, domain.NewTransportError("receive", errors.New("session closed"))
	case in := <-s.inbound:
		return in.msg, in.err
	}
}

func (s *MockLiveSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// IsClosed reports whether Close was called
func (s *MockLiveSession) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// AudioChunks returns the number of audio chunks sent
func (s *MockLiveSession) AudioChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio)
}

// Images returns the number of frames sent
func (s *MockLiveSession) Images() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

// ToolResponses returns the tool results sent so far
func (s *MockLiveSession) ToolResponses() []entities.ToolResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.ToolResult(nil), s.toolResponses...)
}

// GreetingTone returns a short chime as 24 kHz PCM16
func GreetingTone() [][]byte {
	const (
		rate     = defaultOutputSampleRate
		duration = 400 * time.Millisecond
	)
	n := int(duration * rate / time.Second)
	samples := make([]float32, n)
	for i := range samples {
		t := float64(i) / rate
		envelope := 1 - float64(i)/float64(n)
		samples[i] = float32(0.25 * envelope * math.Sin(2*math.Pi*660*t))
	}
	return [][]byte{audio.EncodePCM16(samples)}
}
