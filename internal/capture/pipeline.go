// Package capture windows microphone audio into fixed-size wire chunks.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
	"github.com/eburondeveloperph-gif/engr/internal/audio"
)

const (
	defaultChunkSize  = 4096
	defaultVolumeGain = 5.0
)

// Config controls chunking of the microphone stream
type Config struct {
	SampleRate int
	ChunkSize  int
	VolumeGain float64
}

// Chunk is one window of captured audio
type Chunk struct {
	Seq     int64
	Samples []float32
	PCM     []byte
	// Volume is the chunk RMS scaled for UI meters
	Volume float64
}

// Pipeline owns the microphone stream for one session
type Pipeline struct {
	mic    repositories.Microphone
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	stream  repositories.MicStream
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewPipeline creates a capture pipeline with defaults applied
func NewPipeline(mic repositories.Microphone, config Config, logger *zap.Logger) *Pipeline {
	if config.SampleRate == 0 {
		config.SampleRate = audio.CaptureSampleRate
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = defaultChunkSize
	}
	if config.VolumeGain == 0 {
		config.VolumeGain = defaultVolumeGain
	}
	return &Pipeline{
		mic:    mic,
		config: config,
		logger: logger,
	}
}

// Acquire opens the microphone. If ctx is done by the time the device opens,
// the stream is released and ctx's error returned.
func (p *Pipeline) Acquire(ctx context.Context) error {
	p.mu.Lock()
	if p.stream != nil {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	stream, err := p.mic.Open(ctx)
	if err != nil {
		var permErr *domain.PermissionError
		if errors.As(err, &permErr) {
			return err
		}
		return domain.NewPermissionError("microphone", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil || p.stream != nil {
		if closeErr := stream.Close(); closeErr != nil {
			p.logger.Warn("Failed to release microphone", zap.Error(closeErr))
		}
		return err
	}

	p.stream = stream
	p.logger.Info("Microphone acquired", zap.Int("sampleRate", stream.SampleRate()))
	return nil
}

// Start acquires the microphone if needed and calls onChunk once per window
// until Stop. onChunk runs on the pipeline goroutine.
func (p *Pipeline) Start(ctx context.Context, onChunk func(Chunk)) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return domain.NewPermissionError("microphone", errors.New("stream released"))
	}
	if p.running {
		return nil
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.pump(pumpCtx, p.stream, p.done, onChunk)
	return nil
}

func (p *Pipeline) pump(ctx context.Context, stream repositories.MicStream, done chan struct{}, onChunk func(Chunk)) {
	defer close(done)

	window := make([]float32, 0, p.config.ChunkSize)
	var seq int64

	for {
		block, err := stream.Read(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				p.logger.Warn("Microphone read failed", zap.Error(err))
			}
			return
		}

		if rate := stream.SampleRate(); rate != p.config.SampleRate {
			block = audio.Resample(block, rate, p.config.SampleRate)
		}

		for len(block) > 0 {
			n := p.config.ChunkSize - len(window)
			if n > len(block) {
				n = len(block)
			}
			window = append(window, block[:n]...)
			block = block[n:]

			if len(window) < p.config.ChunkSize {
				continue
			}

			samples := make([]float32, len(window))
			copy(samples, window)
			window = window[:0]
			seq++

			if ctx.Err() != nil {
				return
			}
			onChunk(Chunk{
				Seq:     seq,
				Samples: samples,
				PCM:     audio.EncodePCM16(samples),
				Volume:  audio.RMS(samples) * p.config.VolumeGain,
			})
		}
	}
}

// Stop releases the microphone and waits for the pipeline goroutine to exit.
// Calling it when already stopped is a no-op.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	stream := p.stream
	cancel := p.cancel
	done := p.done
	p.stream = nil
	p.cancel = nil
	p.done = nil
	p.running = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if stream != nil {
		if closeErr := stream.Close(); closeErr != nil {
			err = fmt.Errorf("failed to release microphone: %w", closeErr)
		}
	}

	if done != nil {
		<-done
	}

	if stream != nil {
		p.logger.Info("Microphone released")
	}
	return err
}

// Running reports whether chunks are being produced
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
