package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eburondeveloperph-gif/engr/adapters"
	"github.com/eburondeveloperph-gif/engr/adapters/device"
	"github.com/eburondeveloperph-gif/engr/adapters/llm"
	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/entities"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
	"github.com/eburondeveloperph-gif/engr/internal/audio"
	"github.com/eburondeveloperph-gif/engr/internal/capture"
	"github.com/eburondeveloperph-gif/engr/internal/vision"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.AssistantEvent
}

func (r *eventRecorder) publish(ev domain.AssistantEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) find(match func(domain.AssistantEvent) bool) (domain.AssistantEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if match(ev) {
			return ev, true
		}
	}
	return domain.AssistantEvent{}, false
}

func (r *eventRecorder) has(t domain.EventType) bool {
	_, ok := r.find(func(ev domain.AssistantEvent) bool { return ev.Type == t })
	return ok
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// countingMicrophone records how many times it was opened
type countingMicrophone struct {
	repositories.Microphone
	opens atomic.Int32
}

func (m *countingMicrophone) Open(ctx context.Context) (repositories.MicStream, error) {
	m.opens.Add(1)
	return m.Microphone.Open(ctx)
}

type audioCounter struct {
	chunks atomic.Int32
}

func (a *audioCounter) sink(pcm []byte, rate int) {
	a.chunks.Add(1)
}

type harness struct {
	controller *SessionController
	connector  repositories.LiveConnector
	mic        *countingMicrophone
	played     *audioCounter
	events     *eventRecorder
	sessionLog *adapters.MemorySessionLog
	logs       *observer.ObservedLogs
	cancel     context.CancelFunc
	stopped    chan struct{}
}

type harnessOption func(*harnessDeps)

type harnessDeps struct {
	mic     repositories.Microphone
	camera  repositories.Camera
	speaker repositories.Speaker
}

func withMicrophone(mic repositories.Microphone) harnessOption {
	return func(d *harnessDeps) { d.mic = mic }
}

func withSpeaker(speaker repositories.Speaker) harnessOption {
	return func(d *harnessDeps) { d.speaker = speaker }
}

func newHarness(t *testing.T, connector repositories.LiveConnector, opts ...harnessOption) *harness {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	sine := device.NewSineMicrophone(logger)
	sine.Block = 10 * time.Millisecond

	played := &audioCounter{}
	deps := harnessDeps{
		mic:     sine,
		camera:  device.NewStillCamera(),
		speaker: device.NewStreamingSpeaker(played.sink, logger),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	h := &harness{
		connector:  connector,
		mic:        &countingMicrophone{Microphone: deps.mic},
		played:     played,
		events:     &eventRecorder{},
		sessionLog: adapters.NewMemorySessionLog(),
		logs:       logs,
		stopped:    make(chan struct{}),
	}

	broker := NewToolBroker(adapters.NewSeededMemoryStore(), ToolBrokerConfig{}, logger)
	h.controller = NewSessionController(connector, h.mic, deps.camera, deps.speaker, broker, h.sessionLog, h.events.publish,
		SessionControllerConfig{
			Model:   "test-model",
			Voice:   "Charon",
			Capture: capture.Config{ChunkSize: 160},
			Vision:  vision.Config{Interval: 10 * time.Millisecond},
		}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.controller.Run(ctx)
		close(h.stopped)
	}()
	t.Cleanup(h.stop)

	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.stopped
	h.controller.WaitForSaves()
}

func (h *harness) state() entities.SessionState {
	return h.controller.State().State
}

func (h *harness) waitState(t *testing.T, want entities.SessionState) {
	t.Helper()
	eventually(t, "state "+string(want), func() bool { return h.state() == want })
}

func (h *harness) connectActive(t *testing.T, mock *llm.MockLive) *llm.MockLiveSession {
	t.Helper()
	if err := h.controller.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	h.waitState(t, entities.SessionStateActive)

	sessions := mock.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 live session, got %d", len(sessions))
	}
	return sessions[0]
}

func TestSessionControllerConnectAndDisconnect(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	h := newHarness(t, mock)
	ctx := context.Background()

	if h.state() != entities.SessionStateIdle {
		t.Errorf("Expected idle before connect, got %s", h.state())
	}

	session := h.connectActive(t, mock)

	config := mock.LastConfig()
	if config.Voice != "Charon" || config.Model != "test-model" {
		t.Errorf("Expected persona model and voice, got %s/%s", config.Model, config.Voice)
	}
	if config.SystemInstruction != HardyInstruction {
		t.Error("Expected Hardy system instruction")
	}
	if len(config.Tools) != 5 {
		t.Errorf("Expected 5 declared tools, got %d", len(config.Tools))
	}

	eventually(t, "outbound audio", func() bool { return session.AudioChunks() >= 2 })
	if !h.events.has(domain.EventVolume) {
		t.Error("Expected volume events while capturing")
	}

	if err := h.controller.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if h.state() != entities.SessionStateClosed {
		t.Errorf("Expected closed after disconnect, got %s", h.state())
	}
	if !session.IsClosed() {
		t.Error("Expected transport to be closed")
	}

	if err := h.controller.Disconnect(ctx); err != nil {
		t.Errorf("Second Disconnect() error = %v", err)
	}

	h.controller.WaitForSaves()
	records, _ := h.sessionLog.ListRecent(ctx, 10)
	if len(records) != 1 {
		t.Fatalf("Expected 1 session record, got %d", len(records))
	}
	if records[0].EndReason != entities.EndReasonUserDisconnect {
		t.Errorf("Expected user_disconnect, got %s", records[0].EndReason)
	}
	if records[0].Counters.ChunksSent < 2 {
		t.Errorf("Expected chunks counted, got %d", records[0].Counters.ChunksSent)
	}
}

func TestSessionControllerRejectsConnectWhileActive(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	h := newHarness(t, mock)

	h.connectActive(t, mock)

	if err := h.controller.Connect(context.Background()); !errors.Is(err, domain.ErrSessionActive) {
		t.Errorf("Expected ErrSessionActive, got %v", err)
	}
	if len(mock.Sessions()) != 1 {
		t.Errorf("Expected no second session, got %d", len(mock.Sessions()))
	}

	h.controller.Disconnect(context.Background())
	if err := h.controller.Connect(context.Background()); err != nil {
		t.Errorf("Expected reconnect after close to succeed, got %v", err)
	}
	h.waitState(t, entities.SessionStateActive)
}

func TestSessionControllerMissingCredential(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	mock.ReadyErr = domain.NewConfigurationError("GEMINI_API_KEY", "missing")
	h := newHarness(t, mock)

	err := h.controller.Connect(context.Background())
	var configErr *domain.ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("Expected ConfigurationError, got %v", err)
	}

	if h.state() != entities.SessionStateIdle {
		t.Errorf("Expected idle, got %s", h.state())
	}
	if h.mic.opens.Load() != 0 {
		t.Errorf("Expected microphone untouched, opened %d times", h.mic.opens.Load())
	}
	ev, ok := h.events.find(func(ev domain.AssistantEvent) bool { return ev.Type == domain.EventError })
	if !ok || ev.ErrorKind != "configuration" {
		t.Errorf("Expected configuration error event, got %+v", ev)
	}
}

func TestSessionControllerMicrophoneDenied(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	h := newHarness(t, mock, withMicrophone(device.DeniedMicrophone{}))

	if err := h.controller.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	h.waitState(t, entities.SessionStateClosed)

	if got := h.controller.State().EndReason; got != entities.EndReasonOpenFailed {
		t.Errorf("Expected open_failed, got %s", got)
	}
	if len(mock.Sessions()) != 0 {
		t.Error("Expected no transport to be opened")
	}
	eventually(t, "permission error event", func() bool {
		_, ok := h.events.find(func(ev domain.AssistantEvent) bool {
			return ev.Type == domain.EventError && ev.ErrorKind == "permission"
		})
		return ok
	})
}

func TestSessionControllerTransportOpenFails(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	mock.ConnectErr = errors.New("handshake rejected")
	h := newHarness(t, mock)

	h.controller.Connect(context.Background())
	h.waitState(t, entities.SessionStateClosed)

	snap := h.controller.State()
	if !strings.Contains(snap.Error, "handshake rejected") {
		t.Errorf("Expected open error recorded, got %q", snap.Error)
	}
	if h.mic.opens.Load() != 1 {
		t.Errorf("Expected microphone opened once, got %d", h.mic.opens.Load())
	}
}

func TestSessionControllerPlaysAudioAndInterrupts(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	h := newHarness(t, mock)
	session := h.connectActive(t, mock)

	pcm := audio.EncodePCM16(make([]float32, 2400))
	session.Push(&repositories.LiveMessage{Audio: [][]byte{pcm, pcm}, AudioRate: 24000})

	eventually(t, "audio scheduled", func() bool { return h.controller.State().Counters.AudioScheduled == 2 })
	eventually(t, "audio at the speaker", func() bool { return h.played.chunks.Load() >= 1 })

	session.Push(&repositories.LiveMessage{Interrupted: true})
	eventually(t, "interrupted event", func() bool { return h.events.has(domain.EventInterrupted) })

	if got := h.controller.State().Counters.Interruptions; got != 1 {
		t.Errorf("Expected 1 interruption, got %d", got)
	}
	if h.state() != entities.SessionStateActive {
		t.Errorf("Expected session to stay active, got %s", h.state())
	}
}

func TestSessionControllerSkipsMalformedAudio(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	h := newHarness(t, mock)
	session := h.connectActive(t, mock)

	good := audio.EncodePCM16(make([]float32, 240))
	session.Push(&repositories.LiveMessage{Audio: [][]byte{{0x01, 0x02, 0x03}, good}, AudioRate: 24000})

	eventually(t, "good fragment scheduled", func() bool { return h.controller.State().Counters.AudioScheduled == 1 })

	snap := h.controller.State()
	if snap.Counters.DecodeFailures != 1 {
		t.Errorf("Expected 1 decode failure, got %d", snap.Counters.DecodeFailures)
	}
	if snap.State != entities.SessionStateActive {
		t.Errorf("Expected session to survive a bad fragment, got %s", snap.State)
	}
	if h.logs.FilterMessage("Skipping malformed audio fragment").Len() != 1 {
		t.Error("Expected malformed fragment to be logged")
	}
}

func TestSessionControllerToolCallRoundTrip(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	h := newHarness(t, mock)
	session := h.connectActive(t, mock)

	session.Push(&repositories.LiveMessage{ToolCalls: []entities.ToolCall{
		{ID: "call-1", Name: ToolLowStockAlerts, Args: map[string]any{"threshold": 20}},
		{ID: "call-2", Name: "launchRocket"},
	}})

	eventually(t, "tool responses", func() bool { return len(session.ToolResponses()) == 2 })

	byID := map[string]entities.ToolResult{}
	for _, r := range session.ToolResponses() {
		byID[r.CallID] = r
	}
	if r := byID["call-1"]; r.Name != ToolLowStockAlerts || r.Err() != "" {
		t.Errorf("Expected successful low stock result, got %+v", r)
	}
	if r := byID["call-2"]; r.Err() == "" {
		t.Errorf("Expected error result for unknown tool, got %+v", r)
	}

	ev, ok := h.events.find(func(ev domain.AssistantEvent) bool { return ev.Type == domain.EventToolCall && ev.CallID == "call-1" })
	if !ok || ev.Tool != ToolLowStockAlerts {
		t.Errorf("Expected tool_call event, got %+v", ev)
	}

	snap := h.controller.State()
	if snap.Counters.ToolCalls != 2 || snap.Counters.ToolCallsFailed != 1 {
		t.Errorf("Expected 2 calls with 1 failure, got %+v", snap.Counters)
	}
}

func TestSessionControllerRemoteClose(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	h := newHarness(t, mock)
	session := h.connectActive(t, mock)

	session.RemoteClose()
	h.waitState(t, entities.SessionStateClosed)

	if got := h.controller.State().EndReason; got != entities.EndReasonRemoteClosed {
		t.Errorf("Expected remote_closed, got %s", got)
	}
	if !session.IsClosed() {
		t.Error("Expected transport closed")
	}
	if h.events.has(domain.EventError) {
		t.Error("Expected no error event for an orderly remote close")
	}
}

func TestSessionControllerTransportError(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	h := newHarness(t, mock)
	session := h.connectActive(t, mock)

	session.Fail(errors.New("connection reset"))
	h.waitState(t, entities.SessionStateClosed)

	if got := h.controller.State().EndReason; got != entities.EndReasonTransportError {
		t.Errorf("Expected transport_error, got %s", got)
	}
	eventually(t, "transport error event", func() bool {
		_, ok := h.events.find(func(ev domain.AssistantEvent) bool {
			return ev.Type == domain.EventError && ev.ErrorKind == "transport"
		})
		return ok
	})
}

func TestSessionControllerSendFailureClosesSession(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	h := newHarness(t, mock)
	session := h.connectActive(t, mock)

	session.FailSends(errors.New("broken pipe"))
	h.waitState(t, entities.SessionStateClosed)

	if got := h.controller.State().EndReason; got != entities.EndReasonTransportError {
		t.Errorf("Expected transport_error, got %s", got)
	}
}

// gatedConnector blocks Connect until release is closed, ignoring cancellation
type gatedConnector struct {
	*llm.MockLive
	entered chan struct{}
	release chan struct{}
}

func (g *gatedConnector) Connect(ctx context.Context, config repositories.LiveConfig) (repositories.LiveSession, error) {
	close(g.entered)
	<-g.release
	return g.MockLive.Connect(context.Background(), config)
}

func TestSessionControllerDisconnectWhileConnecting(t *testing.T) {
	gated := &gatedConnector{
		MockLive: llm.NewMockLive(zap.NewNop()),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	h := newHarness(t, gated)

	if err := h.controller.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if h.state() != entities.SessionStateConnecting {
		t.Fatalf("Expected connecting, got %s", h.state())
	}
	<-gated.entered

	if err := h.controller.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if h.state() != entities.SessionStateClosed {
		t.Errorf("Expected closed, got %s", h.state())
	}

	close(gated.release)
	eventually(t, "late session", func() bool { return len(gated.Sessions()) == 1 })
	late := gated.Sessions()[0]

	eventually(t, "late transport released", late.IsClosed)
	if h.state() != entities.SessionStateClosed {
		t.Errorf("Expected late open to leave state closed, got %s", h.state())
	}
	if late.AudioChunks() != 0 {
		t.Errorf("Expected nothing sent on a stale transport, got %d chunks", late.AudioChunks())
	}
}

func TestSessionControllerStaleAudioAfterTeardown(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	h := newHarness(t, mock)
	session := h.connectActive(t, mock)
	s := h.controller.active.Load()

	h.controller.Disconnect(context.Background())

	// events from a torn down session reach the loop but touch nothing
	h.controller.events <- loopEvent{kind: evAudio, session: s, buffer: audio.Buffer{Samples: make([]float32, 240), SampleRate: 24000, Channels: 1}}
	h.controller.events <- loopEvent{kind: evInterrupted, session: s}

	time.Sleep(50 * time.Millisecond)

	snap := h.controller.State()
	if snap.Counters.AudioScheduled != 0 || snap.Counters.Interruptions != 0 {
		t.Errorf("Expected stale events ignored, got %+v", snap.Counters)
	}
	if h.events.has(domain.EventInterrupted) {
		t.Error("Expected no interrupted event from a closed session")
	}
	if !session.IsClosed() {
		t.Error("Expected transport closed")
	}
}

func TestSessionControllerCameraFrames(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	h := newHarness(t, mock)
	ctx := context.Background()

	if err := h.controller.SetCamera(ctx, true); err != nil {
		t.Fatalf("SetCamera() error = %v", err)
	}
	eventually(t, "dropped frame log", func() bool {
		return h.logs.FilterMessage("Dropping camera frame, no active session").Len() > 0
	})

	session := h.connectActive(t, mock)
	eventually(t, "frames sent", func() bool { return session.Images() >= 2 })

	if !h.controller.State().Camera {
		t.Error("Expected camera on in state")
	}

	h.controller.Disconnect(ctx)
	if h.controller.State().Camera {
		t.Error("Expected teardown to turn the camera off")
	}
}

type panickingSpeaker struct {
	repositories.Speaker
}

func (s panickingSpeaker) Open(ctx context.Context, rate int) (repositories.AudioOutput, error) {
	out, err := s.Speaker.Open(ctx, rate)
	if err != nil {
		return nil, err
	}
	return panickingOutput{out}, nil
}

type panickingOutput struct {
	repositories.AudioOutput
}

func (panickingOutput) Close() error {
	panic("output driver crashed")
}

func TestSessionControllerTeardownSurvivesPanics(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	h := newHarness(t, mock, withSpeaker(panickingSpeaker{device.NewStreamingSpeaker(nil, zap.NewNop())}))
	session := h.connectActive(t, mock)

	err := h.controller.Disconnect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Errorf("Expected aggregated panic error, got %v", err)
	}
	if !session.IsClosed() {
		t.Error("Expected transport closed after a panicking step")
	}
	if h.state() != entities.SessionStateClosed {
		t.Errorf("Expected closed, got %s", h.state())
	}
}

func TestSessionControllerShutdown(t *testing.T) {
	mock := llm.NewMockLive(zap.NewNop())
	h := newHarness(t, mock)
	session := h.connectActive(t, mock)

	h.stop()

	if got := h.controller.State().EndReason; got != entities.EndReasonShutdown {
		t.Errorf("Expected shutdown, got %s", got)
	}
	if !session.IsClosed() {
		t.Error("Expected transport closed on shutdown")
	}
	if err := h.controller.Connect(context.Background()); !errors.Is(err, ErrControllerStopped) {
		t.Errorf("Expected ErrControllerStopped, got %v", err)
	}
}
