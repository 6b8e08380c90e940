package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/entities"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
	"github.com/eburondeveloperph-gif/engr/internal/audio"
	"github.com/eburondeveloperph-gif/engr/internal/capture"
	"github.com/eburondeveloperph-gif/engr/internal/vision"
)

const (
	defaultMediaQueue     = 32
	defaultToolQueue      = 16
	defaultEventQueue     = 64
	sessionLogSaveTimeout = 5 * time.Second
)

// ErrControllerStopped is returned by commands issued after Run has exited
var ErrControllerStopped = errors.New("session controller stopped")

// SessionControllerConfig configures the assistant sessions
type SessionControllerConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
	Capture           capture.Config
	Vision            vision.Config
	// MediaQueue bounds outbound audio chunks and frames waiting for the writer
	MediaQueue int
}

// Publisher delivers assistant events to terminals. It must not block.
type Publisher func(domain.AssistantEvent)

// AssistantState is a snapshot of the controller for status endpoints
type AssistantState struct {
	SessionID string                   `json:"session_id,omitempty"`
	State     entities.SessionState    `json:"state"`
	Camera    bool                     `json:"camera"`
	StartedAt *time.Time               `json:"started_at,omitempty"`
	EndReason entities.EndReason       `json:"end_reason,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Counters  entities.SessionCounters `json:"counters"`
}

// SessionController runs the assistant session lifecycle. All state
// transitions happen on the Run goroutine; public methods post commands to it.
type SessionController struct {
	connector  repositories.LiveConnector
	mic        repositories.Microphone
	speaker    repositories.Speaker
	broker     *ToolBroker
	sessionLog repositories.SessionLogRepository
	publish    Publisher
	config     SessionControllerConfig
	logger     *zap.Logger

	commands chan command
	events   chan loopEvent
	done     chan struct{}

	stateMu  sync.RWMutex
	snapshot AssistantState

	// active is the session frames may be sent to
	active atomic.Pointer[liveSession]

	saves sync.WaitGroup

	// owned by the Run goroutine
	runCtx    context.Context
	current   *liveSession
	vision    *vision.Pipeline
	cameraOn  bool
	cameraGen uint64
}

// NewSessionController creates a new session controller. sessionLog may be nil.
func NewSessionController(
	connector repositories.LiveConnector,
	mic repositories.Microphone,
	camera repositories.Camera,
	speaker repositories.Speaker,
	broker *ToolBroker,
	sessionLog repositories.SessionLogRepository,
	publish Publisher,
	config SessionControllerConfig,
	logger *zap.Logger,
) *SessionController {
	if config.SystemInstruction == "" {
		config.SystemInstruction = HardyInstruction
	}
	if config.MediaQueue <= 0 {
		config.MediaQueue = defaultMediaQueue
	}
	if publish == nil {
		publish = func(domain.AssistantEvent) {}
	}

	return &SessionController{
		connector:  connector,
		mic:        mic,
		speaker:    speaker,
		broker:     broker,
		sessionLog: sessionLog,
		publish:    publish,
		config:     config,
		logger:     logger,
		commands:   make(chan command),
		events:     make(chan loopEvent, defaultEventQueue),
		done:       make(chan struct{}),
		snapshot:   AssistantState{State: entities.SessionStateIdle},
		vision:     vision.NewPipeline(camera, config.Vision, logger),
	}
}

type commandKind int

const (
	cmdConnect commandKind = iota
	cmdDisconnect
	cmdCamera
)

type command struct {
	kind    commandKind
	enabled bool
	reply   chan error
}

type eventKind int

const (
	evOpened eventKind = iota
	evOpenFailed
	evAudio
	evInterrupted
	evToolCall
	evRemoteClosed
	evTransportFailed
	evCameraFailed
)

type loopEvent struct {
	kind      eventKind
	session   *liveSession
	output    repositories.AudioOutput
	transport repositories.LiveSession
	buffer    audio.Buffer
	call      entities.ToolCall
	gen       uint64
	err       error
}

// Run processes commands and events until ctx is cancelled, then tears down
// the current session.
func (c *SessionController) Run(ctx context.Context) error {
	c.runCtx = ctx
	defer close(c.done)

	c.logger.Info("Session controller started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.logger.Info("Session controller stopped")
			return nil
		case cmd := <-c.commands:
			cmd.reply <- c.handleCommand(cmd)
		case ev := <-c.events:
			c.handleEvent(ev)
		}
	}
}

// Connect starts a new session. It returns once connecting has begun; the
// outcome is published as state events.
func (c *SessionController) Connect(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdConnect})
}

// Disconnect ends the current session. Without one it is a no-op.
func (c *SessionController) Disconnect(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdDisconnect})
}

// SetCamera turns the vision feed on or off
func (c *SessionController) SetCamera(ctx context.Context, enabled bool) error {
	return c.do(ctx, command{kind: cmdCamera, enabled: enabled})
}

// State returns the current controller snapshot
func (c *SessionController) State() AssistantState {
	c.stateMu.RLock()
	snap := c.snapshot
	c.stateMu.RUnlock()

	if s := c.active.Load(); s != nil && s.id == snap.SessionID {
		snap.Counters = s.counters.snapshot()
	}
	return snap
}

// WaitForSaves blocks until pending session log writes finish
func (c *SessionController) WaitForSaves() {
	c.saves.Wait()
}

func (c *SessionController) do(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)

	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrControllerStopped
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrControllerStopped
	}
}

func (c *SessionController) handleCommand(cmd command) error {
	switch cmd.kind {
	case cmdConnect:
		return c.connect()
	case cmdDisconnect:
		if c.current == nil || !c.current.record.IsLive() {
			return nil
		}
		return c.teardown(c.current, entities.EndReasonUserDisconnect, nil)
	case cmdCamera:
		return c.setCamera(cmd.enabled)
	default:
		return fmt.Errorf("unknown command %d", cmd.kind)
	}
}

func (c *SessionController) handleEvent(ev loopEvent) {
	s := ev.session
	stale := s == nil || s != c.current || s.record.State != entities.SessionStateActive

	switch ev.kind {
	case evOpened:
		if s != c.current || s.record.State != entities.SessionStateConnecting {
			s.logger.Info("Discarding session opened after teardown")
			releaseOpened(ev, s.logger)
			return
		}
		c.activate(s, ev.output, ev.transport)

	case evOpenFailed:
		if s != c.current || s.record.State != entities.SessionStateConnecting {
			return
		}
		s.logger.Warn("Failed to open assistant session", zap.Error(ev.err))
		c.teardown(s, entities.EndReasonOpenFailed, ev.err)

	case evAudio:
		if stale {
			return
		}
		if _, err := s.scheduler.Schedule(ev.buffer); err != nil {
			s.logger.Debug("Dropping decoded audio", zap.Error(err))
			return
		}
		s.counters.audioScheduled.Add(1)

	case evInterrupted:
		if stale {
			return
		}
		stopped := s.scheduler.InterruptAll()
		s.counters.interruptions.Add(1)
		s.logger.Info("Assistant interrupted", zap.Int("stoppedBuffers", stopped))
		c.publish(domain.NewEvent(domain.EventInterrupted, s.id))

	case evToolCall:
		if stale {
			return
		}
		c.dispatchTool(s, ev.call)

	case evRemoteClosed:
		if stale {
			return
		}
		s.logger.Info("Remote closed the session")
		c.teardown(s, entities.EndReasonRemoteClosed, nil)

	case evTransportFailed:
		if stale {
			return
		}
		s.logger.Error("Transport failed", zap.Error(ev.err))
		c.teardown(s, entities.EndReasonTransportError, ev.err)

	case evCameraFailed:
		if ev.gen != c.cameraGen || !c.cameraOn {
			return
		}
		c.logger.Warn("Failed to start camera", zap.Error(ev.err))
		c.cameraOn = false
		c.publishCamera()
		c.publishError("", ev.err)
	}
}

func (c *SessionController) connect() error {
	if c.current != nil && c.current.record.IsLive() {
		return domain.ErrSessionActive
	}
	if err := c.connector.Ready(); err != nil {
		c.publishError("", err)
		return err
	}

	record := entities.NewSession(c.config.Model, c.config.Voice)
	if err := record.Transition(entities.SessionStateConnecting); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.runCtx)
	logger := c.logger.With(zap.String("sessionID", record.ID))
	s := &liveSession{
		id:      record.ID,
		record:  record,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		capture: capture.NewPipeline(c.mic, c.config.Capture, logger),
		media:   make(chan mediaItem, c.config.MediaQueue),
		toolOut: make(chan entities.ToolResult, defaultToolQueue),
	}
	c.current = s

	logger.Info("Connecting assistant session", zap.String("model", c.config.Model))
	c.publishState(s)

	go c.open(s)
	return nil
}

// open acquires the microphone, the audio output and the transport, in that
// order, off the loop.
func (c *SessionController) open(s *liveSession) {
	fail := func(err error) {
		c.postOpen(loopEvent{kind: evOpenFailed, session: s, err: err})
	}

	if err := s.capture.Acquire(s.ctx); err != nil {
		fail(err)
		return
	}

	output, err := c.speaker.Open(s.ctx, audio.PlaybackSampleRate)
	if err != nil {
		fail(fmt.Errorf("failed to open audio output: %w", err))
		return
	}

	transport, err := c.connector.Connect(s.ctx, repositories.LiveConfig{
		Model:             c.config.Model,
		Voice:             c.config.Voice,
		SystemInstruction: c.config.SystemInstruction,
		Tools:             c.broker.Declarations(),
	})
	if err != nil {
		output.Close()
		fail(err)
		return
	}

	ev := loopEvent{kind: evOpened, session: s, output: output, transport: transport}
	if !c.postOpen(ev) {
		releaseOpened(ev, s.logger)
	}
}

func releaseOpened(ev loopEvent, logger *zap.Logger) {
	if ev.output != nil {
		if err := ev.output.Close(); err != nil {
			logger.Warn("Failed to close audio output", zap.Error(err))
		}
	}
	if ev.transport != nil {
		if err := ev.transport.Close(); err != nil {
			logger.Warn("Failed to close transport", zap.Error(err))
		}
	}
}

func (c *SessionController) activate(s *liveSession, output repositories.AudioOutput, transport repositories.LiveSession) {
	s.scheduler = audio.NewScheduler(output, s.logger)
	s.outputRate = output.SampleRate()
	s.transport.resolve(transport)

	if err := s.record.Transition(entities.SessionStateActive); err != nil {
		s.logger.Error("Failed to activate session", zap.Error(err))
		c.teardown(s, entities.EndReasonTransportError, err)
		return
	}
	c.active.Store(s)

	go c.writePump(s)
	go c.readPump(s, transport)

	if err := s.capture.Start(s.ctx, c.chunkSink(s)); err != nil {
		c.teardown(s, entities.EndReasonOpenFailed, err)
		return
	}

	s.logger.Info("Assistant session active")
	c.publishState(s)
}

func (c *SessionController) chunkSink(s *liveSession) func(capture.Chunk) {
	return func(chunk capture.Chunk) {
		ev := domain.NewEvent(domain.EventVolume, s.id)
		ev.Volume = chunk.Volume
		c.publish(ev)

		if !s.enqueue(mediaItem{audio: chunk.PCM}) {
			s.logger.Debug("Writer behind, dropping audio chunk", zap.Int64("seq", chunk.Seq))
		}
	}
}

func (c *SessionController) frameSink(frame vision.Frame) {
	s := c.active.Load()
	if s == nil {
		c.logger.Debug("Dropping camera frame, no active session")
		return
	}
	if !s.enqueue(mediaItem{image: frame.JPEG}) {
		s.counters.framesDropped.Add(1)
	}
}

// writePump serialises every outbound write on the transport. Tool responses
// are sent before queued media.
func (c *SessionController) writePump(s *liveSession) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case result := <-s.toolOut:
			if !c.sendToolResult(s, result) {
				return
			}
			continue
		default:
		}

		select {
		case <-s.ctx.Done():
			return
		case result := <-s.toolOut:
			if !c.sendToolResult(s, result) {
				return
			}
		case item := <-s.media:
			transport := s.transport.get()
			if transport == nil {
				return
			}
			var err error
			if item.image != nil {
				err = transport.SendImage(s.ctx, item.image)
				if err == nil {
					s.counters.framesSent.Add(1)
				}
			} else {
				err = transport.SendAudio(s.ctx, item.audio, audio.CaptureSampleRate)
				if err == nil {
					s.counters.chunksSent.Add(1)
				}
			}
			if err != nil {
				c.postSendFailure(s, err)
				return
			}
		}
	}
}

func (c *SessionController) sendToolResult(s *liveSession, result entities.ToolResult) bool {
	transport := s.transport.get()
	if transport == nil {
		return false
	}
	if err := transport.SendToolResponse(s.ctx, []entities.ToolResult{result}); err != nil {
		c.postSendFailure(s, err)
		return false
	}
	s.logger.Debug("Tool response sent", zap.String("tool", result.Name), zap.String("callID", result.CallID))
	return true
}

func (c *SessionController) postSendFailure(s *liveSession, err error) {
	if s.ctx.Err() != nil {
		return
	}
	var transportErr *domain.TransportError
	if !errors.As(err, &transportErr) {
		err = domain.NewTransportError("send", err)
	}
	c.post(loopEvent{kind: evTransportFailed, session: s, err: err})
}

// readPump receives server messages and decodes audio off the loop. Decoded
// buffers are posted in arrival order.
func (c *SessionController) readPump(s *liveSession, transport repositories.LiveSession) {
	for {
		msg, err := transport.Receive(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			var decodeErr *domain.DecodeError
			if errors.As(err, &decodeErr) {
				s.counters.decodeFailures.Add(1)
				s.logger.Warn("Skipping malformed server message", zap.Error(err))
				continue
			}
			if errors.Is(err, domain.ErrRemoteClosed) {
				c.post(loopEvent{kind: evRemoteClosed, session: s})
				return
			}
			var transportErr *domain.TransportError
			if !errors.As(err, &transportErr) {
				err = domain.NewTransportError("receive", err)
			}
			c.post(loopEvent{kind: evTransportFailed, session: s, err: err})
			return
		}

		rate := msg.AudioRate
		if rate == 0 {
			rate = audio.PlaybackSampleRate
		}
		for _, fragment := range msg.Audio {
			buf, err := audio.DecodePCM16(fragment, rate, 1, s.outputRate)
			if err != nil {
				s.counters.decodeFailures.Add(1)
				s.logger.Warn("Skipping malformed audio fragment", zap.Error(err), zap.Int("bytes", len(fragment)))
				continue
			}
			if !c.post(loopEvent{kind: evAudio, session: s, buffer: buf}) {
				return
			}
		}

		if msg.Interrupted {
			if !c.post(loopEvent{kind: evInterrupted, session: s}) {
				return
			}
		}

		for _, call := range msg.ToolCalls {
			if !c.post(loopEvent{kind: evToolCall, session: s, call: call}) {
				return
			}
		}

		for _, id := range msg.CancelledCalls {
			if s.cancelCall(id) {
				s.logger.Info("Tool call cancelled by server", zap.String("callID", id))
			}
		}
	}
}

func (c *SessionController) dispatchTool(s *liveSession, call entities.ToolCall) {
	s.counters.toolCalls.Add(1)
	s.logger.Info("Tool call", zap.String("tool", call.Name), zap.String("callID", call.ID))

	ev := domain.NewEvent(domain.EventToolCall, s.id)
	ev.Tool = call.Name
	ev.CallID = call.ID
	c.publish(ev)

	callCtx, cancel := context.WithCancel(s.ctx)
	s.trackCall(call.ID, cancel)

	go func() {
		defer cancel()
		defer s.untrackCall(call.ID)

		result := c.broker.Execute(callCtx, call)
		if result.Err() != "" {
			s.counters.toolCallsFailed.Add(1)
		}

		if callCtx.Err() != nil {
			s.logger.Debug("Discarding tool result", zap.String("callID", call.ID))
			return
		}
		select {
		case s.toolOut <- result:
		case <-s.ctx.Done():
			s.logger.Debug("Discarding tool result for closed session", zap.String("callID", call.ID))
		}
	}()
}

func (c *SessionController) setCamera(enabled bool) error {
	if enabled == c.cameraOn {
		return nil
	}
	if !enabled {
		return c.stopCamera()
	}

	c.cameraOn = true
	c.cameraGen++
	gen := c.cameraGen
	ctx := c.runCtx
	c.publishCamera()

	go func() {
		err := c.vision.Start(ctx, c.frameSink)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		select {
		case c.events <- loopEvent{kind: evCameraFailed, gen: gen, err: err}:
		case <-c.done:
		}
	}()
	return nil
}

func (c *SessionController) stopCamera() error {
	wasOn := c.cameraOn
	c.cameraOn = false
	c.cameraGen++
	err := c.vision.Stop()
	if wasOn {
		c.publishCamera()
	}
	return err
}

// teardown releases everything the session holds. Every step runs even if an
// earlier one fails or panics.
func (c *SessionController) teardown(s *liveSession, reason entities.EndReason, cause error) error {
	if !s.record.IsLive() || s.record.State == entities.SessionStateClosing {
		return nil
	}

	s.record.MarkEnded(reason, cause)
	s.record.Transition(entities.SessionStateClosing)
	c.active.CompareAndSwap(s, nil)
	c.publishState(s)

	s.cancel()

	var errs error
	step := func(name string, fn func() error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Teardown step panicked", zap.String("step", name), zap.Any("panic", r))
				errs = multierr.Append(errs, fmt.Errorf("%s panicked: %v", name, r))
			}
		}()
		if err := fn(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to %s: %w", name, err))
		}
	}

	step("stop capture", s.capture.Stop)
	step("stop camera", c.stopCamera)
	step("tear down playback", func() error {
		if s.scheduler == nil {
			return nil
		}
		return s.scheduler.Teardown()
	})
	step("close transport", func() error {
		if transport := s.transport.release(); transport != nil {
			return transport.Close()
		}
		return nil
	})

	s.record.Counters = s.counters.snapshot()
	s.record.Transition(entities.SessionStateClosed)

	if errs != nil {
		s.logger.Warn("Session teardown finished with errors", zap.Error(errs))
	}
	s.logger.Info("Assistant session closed",
		zap.String("reason", string(reason)),
		zap.Duration("duration", s.record.Duration()),
		zap.Int("chunksSent", s.record.Counters.ChunksSent),
		zap.Int("audioScheduled", s.record.Counters.AudioScheduled))

	c.publishState(s)
	if cause != nil {
		c.publishError(s.id, cause)
	}
	c.saveRecord(s)

	return errs
}

func (c *SessionController) shutdown() {
	if c.current != nil && c.current.record.IsLive() {
		if err := c.teardown(c.current, entities.EndReasonShutdown, nil); err != nil {
			c.logger.Warn("Shutdown teardown reported errors", zap.Error(err))
		}
	}
	if err := c.stopCamera(); err != nil {
		c.logger.Warn("Failed to stop camera on shutdown", zap.Error(err))
	}
}

func (c *SessionController) saveRecord(s *liveSession) {
	if c.sessionLog == nil {
		return
	}
	record := *s.record

	c.saves.Add(1)
	go func() {
		defer c.saves.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sessionLogSaveTimeout)
		defer cancel()
		if err := c.sessionLog.Save(ctx, &record); err != nil {
			s.logger.Error("Failed to save session record", zap.Error(err))
		}
	}()
}

func (c *SessionController) publishState(s *liveSession) {
	snap := AssistantState{
		SessionID: s.id,
		State:     s.record.State,
		Camera:    c.cameraOn,
		StartedAt: &s.record.StartedAt,
		EndReason: s.record.EndReason,
		Error:     s.record.Error,
		Counters:  s.counters.snapshot(),
	}
	c.stateMu.Lock()
	c.snapshot = snap
	c.stateMu.Unlock()

	ev := domain.NewEvent(domain.EventState, s.id)
	ev.State = string(s.record.State)
	c.publish(ev)
}

func (c *SessionController) publishCamera() {
	on := c.cameraOn
	c.stateMu.Lock()
	c.snapshot.Camera = on
	c.stateMu.Unlock()

	sessionID := ""
	if c.current != nil {
		sessionID = c.current.id
	}
	ev := domain.NewEvent(domain.EventCamera, sessionID)
	ev.Camera = &on
	c.publish(ev)
}

func (c *SessionController) publishError(sessionID string, err error) {
	ev := domain.NewEvent(domain.EventError, sessionID)
	ev.ErrorKind = domain.ErrorKind(err)
	ev.Error = err.Error()
	c.publish(ev)
}

// post delivers an event from a session goroutine. It gives up once the
// session or the controller is gone.
func (c *SessionController) post(ev loopEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-ev.session.ctx.Done():
		return false
	case <-c.done:
		return false
	}
}

// postOpen delivers the open result even after the session was cancelled so
// the loop can release what was acquired.
func (c *SessionController) postOpen(ev loopEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

type mediaItem struct {
	audio []byte
	image []byte
}

// liveSession is the per-session state. record and scheduler are only
// touched on the Run goroutine.
type liveSession struct {
	id     string
	record *entities.Session
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	capture    *capture.Pipeline
	scheduler  *audio.Scheduler
	outputRate int
	transport  deferredTransport

	media   chan mediaItem
	toolOut chan entities.ToolResult

	callsMu sync.Mutex
	calls   map[string]context.CancelFunc

	counters sessionCounters
}

// enqueue offers media to the writer without blocking
func (s *liveSession) enqueue(item mediaItem) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.media <- item:
		return true
	default:
		return false
	}
}

func (s *liveSession) trackCall(id string, cancel context.CancelFunc) {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]context.CancelFunc)
	}
	s.calls[id] = cancel
}

func (s *liveSession) untrackCall(id string) {
	s.callsMu.Lock()
	delete(s.calls, id)
	s.callsMu.Unlock()
}

func (s *liveSession) cancelCall(id string) bool {
	s.callsMu.Lock()
	cancel, ok := s.calls[id]
	delete(s.calls, id)
	s.callsMu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// deferredTransport holds the transport once the open completes. After
// release every get returns nil.
type deferredTransport struct {
	mu       sync.Mutex
	session  repositories.LiveSession
	released bool
}

func (d *deferredTransport) resolve(session repositories.LiveSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.released {
		d.session = session
	}
}

func (d *deferredTransport) get() repositories.LiveSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

func (d *deferredTransport) release() repositories.LiveSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	session := d.session
	d.session = nil
	d.released = true
	return session
}

type sessionCounters struct {
	chunksSent      atomic.Int64
	framesSent      atomic.Int64
	framesDropped   atomic.Int64
	audioScheduled  atomic.Int64
	decodeFailures  atomic.Int64
	interruptions   atomic.Int64
	toolCalls       atomic.Int64
	toolCallsFailed atomic.Int64
}

func (c *sessionCounters) snapshot() entities.SessionCounters {
	return entities.SessionCounters{
		ChunksSent:      int(c.chunksSent.Load()),
		FramesSent:      int(c.framesSent.Load()),
		FramesDropped:   int(c.framesDropped.Load()),
		AudioScheduled:  int(c.audioScheduled.Load()),
		DecodeFailures:  int(c.decodeFailures.Load()),
		Interruptions:   int(c.interruptions.Load()),
		ToolCalls:       int(c.toolCalls.Load()),
		ToolCallsFailed: int(c.toolCallsFailed.Load()),
	}
}
