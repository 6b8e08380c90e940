// Package device provides software microphones, cameras and speakers for
// running the assistant without terminal hardware.
package device

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

// SineMicrophone produces a synthetic tone in real time
type SineMicrophone struct {
	SampleRate int
	Frequency  float64
	Amplitude  float64
	// Block is how often a sample block is produced
	Block  time.Duration
	logger *zap.Logger
}

var _ repositories.Microphone = (*SineMicrophone)(nil)

// NewSineMicrophone creates a 16 kHz microphone emitting a 440 Hz tone in 100ms blocks
func NewSineMicrophone(logger *zap.Logger) *SineMicrophone {
	return &SineMicrophone{
		SampleRate: 16000,
		Frequency:  440,
		Amplitude:  0.3,
		Block:      100 * time.Millisecond,
		logger:     logger,
	}
}

// Open implements repositories.Microphone
func (m *SineMicrophone) Open(ctx context.Context) (repositories.MicStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.logger.Info("Mock microphone opened",
		zap.Int("sampleRate", m.SampleRate),
		zap.Float64("frequency", m.Frequency))
	return &sineStream{
		mic:    m,
		ticker: time.NewTicker(m.Block),
		done:   make(chan struct{}),
	}, nil
}

type sineStream struct {
	mic    *SineMicrophone
	ticker *time.Ticker
	phase  float64

	once sync.Once
	done chan struct{}
}

func (s *sineStream) SampleRate() int { return s.mic.SampleRate }

func (s *sineStream) Read(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, io.EOF
	case <-s.ticker.C:
	}

	n := int(s.mic.Block * time.Duration(s.mic.SampleRate) / time.Second)
	block := make([]float32, n)
	step := 2 * math.Pi * s.mic.Frequency / float64(s.mic.SampleRate)
	for i := range block {
		block[i] = float32(s.mic.Amplitude * math.Sin(s.phase))
		s.phase += step
		if s.phase > 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
	return block, nil
}

func (s *sineStream) Close() error {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	return nil
}

// StillCamera always returns the same image
type StillCamera struct {
	Image image.Image
}

var _ repositories.Camera = (*StillCamera)(nil)

// NewStillCamera creates a camera showing a 1280x720 test pattern
func NewStillCamera() *StillCamera {
	return &StillCamera{Image: testPattern(1280, 720)}
}

// Open implements repositories.Camera
func (c *StillCamera) Open(ctx context.Context) (repositories.CameraStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &stillStream{img: c.Image}, nil
}

type stillStream struct {
	mu     sync.Mutex
	img    image.Image
	closed bool
}

func (s *stillStream) Snapshot(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, io.EOF
	}
	return s.img, nil
}

func (s *stillStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func testPattern(w, h int) image.Image {
	bars := []color.RGBA{
		{R: 192, G: 192, B: 192, A: 255},
		{R: 192, G: 192, B: 0, A: 255},
		{R: 0, G: 192, B: 192, A: 255},
		{R: 0, G: 192, B: 0, A: 255},
		{R: 192, G: 0, B: 192, A: 255},
		{R: 192, G: 0, B: 0, A: 255},
		{R: 0, G: 0, B: 192, A: 255},
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		c := bars[x*len(bars)/w]
		for y := 0; y < h; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// DeniedMicrophone refuses to open, like a browser with microphone access blocked
type DeniedMicrophone struct{}

func (DeniedMicrophone) Open(ctx context.Context) (repositories.MicStream, error) {
	return nil, domain.NewPermissionError("microphone", errors.New("access denied by user"))
}

// DeniedCamera refuses to open
type DeniedCamera struct{}

func (DeniedCamera) Open(ctx context.Context) (repositories.CameraStream, error) {
	return nil, domain.NewPermissionError("camera", errors.New("access denied by user"))
}
