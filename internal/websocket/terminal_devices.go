package websocket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
	"github.com/eburondeveloperph-gif/engr/internal/audio"
)

const micQueue = 64

var errNoTerminal = errors.New("no terminal attached")

// TerminalMicrophone is fed with PCM16 audio streamed from attached terminals
type TerminalMicrophone struct {
	terminals atomic.Int32
	logger    *zap.Logger

	mu     sync.Mutex
	stream *terminalMicStream
}

var _ repositories.Microphone = (*TerminalMicrophone)(nil)

// NewTerminalMicrophone creates a microphone with no terminal attached
func NewTerminalMicrophone(logger *zap.Logger) *TerminalMicrophone {
	return &TerminalMicrophone{logger: logger}
}

func (m *TerminalMicrophone) attach() { m.terminals.Add(1) }
func (m *TerminalMicrophone) detach() { m.terminals.Add(-1) }

// Open implements repositories.Microphone. It fails with a permission error
// while no terminal is attached.
func (m *TerminalMicrophone) Open(ctx context.Context) (repositories.MicStream, error) {
	if m.terminals.Load() <= 0 {
		return nil, domain.NewPermissionError("microphone", errNoTerminal)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream := &terminalMicStream{
		blocks: make(chan []float32, micQueue),
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	previous := m.stream
	m.stream = stream
	m.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	return stream, nil
}

// Feed delivers one block of 16 kHz PCM16 mono audio from a terminal
func (m *TerminalMicrophone) Feed(pcm []byte) error {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()

	if stream == nil {
		return nil
	}

	buf, err := audio.DecodePCM16(pcm, audio.CaptureSampleRate, 1, audio.CaptureSampleRate)
	if err != nil {
		return err
	}
	if !stream.push(buf.Samples) {
		m.logger.Debug("Microphone queue full, dropping block", zap.Int("samples", len(buf.Samples)))
	}
	return nil
}

type terminalMicStream struct {
	blocks chan []float32

	once sync.Once
	done chan struct{}
}

func (s *terminalMicStream) push(samples []float32) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.blocks <- samples:
		return true
	default:
		return false
	}
}

func (s *terminalMicStream) SampleRate() int { return audio.CaptureSampleRate }

func (s *terminalMicStream) Read(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, io.EOF
	case block := <-s.blocks:
		return block, nil
	}
}

func (s *terminalMicStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// TerminalCamera holds the most recent frame posted by a terminal
type TerminalCamera struct {
	terminals atomic.Int32

	mu     sync.RWMutex
	latest image.Image
}

var _ repositories.Camera = (*TerminalCamera)(nil)

// NewTerminalCamera creates a camera with no terminal attached
func NewTerminalCamera() *TerminalCamera {
	return &TerminalCamera{}
}

func (c *TerminalCamera) attach() { c.terminals.Add(1) }
func (c *TerminalCamera) detach() { c.terminals.Add(-1) }

// Open implements repositories.Camera
func (c *TerminalCamera) Open(ctx context.Context) (repositories.CameraStream, error) {
	if c.terminals.Load() <= 0 {
		return nil, domain.NewPermissionError("camera", errNoTerminal)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &terminalCameraStream{camera: c}, nil
}

// Feed replaces the latest frame with a JPEG from a terminal
func (c *TerminalCamera) Feed(data []byte) error {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode camera frame: %w", err)
	}

	c.mu.Lock()
	c.latest = img
	c.mu.Unlock()
	return nil
}

type terminalCameraStream struct {
	camera *TerminalCamera
	closed atomic.Bool
}

func (s *terminalCameraStream) Snapshot(ctx context.Context) (image.Image, error) {
	if s.closed.Load() {
		return nil, io.EOF
	}

	s.camera.mu.RLock()
	img := s.camera.latest
	s.camera.mu.RUnlock()

	if img == nil {
		return nil, errors.New("no frame received yet")
	}
	return img, nil
}

func (s *terminalCameraStream) Close() error {
	s.closed.Store(true)
	return nil
}
