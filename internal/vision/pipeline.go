// Package vision samples the camera at a fixed cadence and encodes
// downscaled JPEG frames.
package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

const (
	defaultInterval  = time.Second
	defaultMaxWidth  = 640
	defaultMaxHeight = 480
	defaultQuality   = 50
)

// Config controls frame cadence and size
type Config struct {
	Interval  time.Duration
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// Frame is one encoded camera image
type Frame struct {
	JPEG       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Pipeline owns an optional camera stream
type Pipeline struct {
	camera repositories.Camera
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	stream repositories.CameraStream
	cancel context.CancelFunc
	done   chan struct{}
	gen    uint64
}

// NewPipeline creates a vision pipeline with defaults applied
func NewPipeline(camera repositories.Camera, config Config, logger *zap.Logger) *Pipeline {
	if config.Interval == 0 {
		config.Interval = defaultInterval
	}
	if config.MaxWidth == 0 {
		config.MaxWidth = defaultMaxWidth
	}
	if config.MaxHeight == 0 {
		config.MaxHeight = defaultMaxHeight
	}
	if config.Quality == 0 {
		config.Quality = defaultQuality
	}
	return &Pipeline{
		camera: camera,
		config: config,
		logger: logger,
	}
}

// Start opens the camera and calls onFrame every interval until Stop.
// A Stop issued while the camera is still opening wins: the late stream is
// released and Start returns context.Canceled.
func (p *Pipeline) Start(ctx context.Context, onFrame func(Frame)) error {
	p.mu.Lock()
	if p.stream != nil {
		p.mu.Unlock()
		return nil
	}
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	stream, err := p.camera.Open(ctx)
	if err != nil {
		var permErr *domain.PermissionError
		if errors.As(err, &permErr) {
			return err
		}
		return domain.NewPermissionError("camera", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen || p.stream != nil || ctx.Err() != nil {
		if closeErr := stream.Close(); closeErr != nil {
			p.logger.Warn("Failed to release camera", zap.Error(closeErr))
		}
		return context.Canceled
	}

	tickCtx, cancel := context.WithCancel(ctx)
	p.stream = stream
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.tick(tickCtx, stream, p.done, onFrame)

	p.logger.Info("Camera started", zap.Duration("interval", p.config.Interval))
	return nil
}

func (p *Pipeline) tick(ctx context.Context, stream repositories.CameraStream, done chan struct{}, onFrame func(Frame)) {
	defer close(done)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			img, err := stream.Snapshot(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Debug("Camera snapshot unavailable", zap.Error(err))
				}
				continue
			}

			frame, err := EncodeFrame(img, p.config)
			if err != nil {
				p.logger.Warn("Failed to encode frame", zap.Error(err))
				continue
			}

			if ctx.Err() != nil {
				return
			}
			onFrame(frame)
		}
	}
}

// Stop cancels the ticker and releases the camera. Calling it when already
// stopped is a no-op.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	p.gen++
	stream := p.stream
	cancel := p.cancel
	done := p.done
	p.stream = nil
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if stream == nil {
		return nil
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to release camera: %w", err)
	}
	p.logger.Info("Camera stopped")
	return nil
}

// Running reports whether frames are being produced
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream != nil
}

// EncodeFrame fits img inside the configured bounds, keeping its aspect
// ratio, and encodes it as JPEG.
func EncodeFrame(img image.Image, config Config) (Frame, error) {
	bounds := img.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), config.MaxWidth, config.MaxHeight)
	if width == 0 || height == 0 {
		return Frame{}, errors.New("empty image")
	}

	src := img
	if width != bounds.Dx() || height != bounds.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: config.Quality}); err != nil {
		return Frame{}, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	return Frame{
		JPEG:       buf.Bytes(),
		Width:      width,
		Height:     height,
		CapturedAt: time.Now(),
	}, nil
}

func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if (maxW <= 0 || w <= maxW) && (maxH <= 0 || h <= maxH) {
		return w, h
	}

	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}

	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
