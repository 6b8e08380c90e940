package vision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

type fakeCamera struct {
	openErr error
	delay   chan struct{}
	stream  *fakeCameraStream
}

func (c *fakeCamera) Open(ctx context.Context) (repositories.CameraStream, error) {
	if c.delay != nil {
		<-c.delay
	}
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.stream, nil
}

type fakeCameraStream struct {
	img    image.Image
	mu     sync.Mutex
	closed int
}

func (s *fakeCameraStream) Snapshot(ctx context.Context) (image.Image, error) {
	return s.img, nil
}

func (s *fakeCameraStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeCameraStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	return img
}

func TestEncodeFrameDownscales(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{name: "landscape hd", w: 1280, h: 720, wantW: 640, wantH: 360},
		{name: "portrait", w: 720, h: 1280, wantW: 270, wantH: 480},
		{name: "already small", w: 320, h: 240, wantW: 320, wantH: 240},
		{name: "tall 4:3", w: 1600, h: 1200, wantW: 640, wantH: 480},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeFrame(solid(tt.w, tt.h), Config{MaxWidth: 640, MaxHeight: 480, Quality: 50})
			if err != nil {
				t.Fatalf("EncodeFrame() error = %v", err)
			}
			if frame.Width != tt.wantW || frame.Height != tt.wantH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.wantW, tt.wantH, frame.Width, frame.Height)
			}

			decoded, err := jpeg.Decode(bytes.NewReader(frame.JPEG))
			if err != nil {
				t.Fatalf("Frame is not a valid JPEG: %v", err)
			}
			if decoded.Bounds().Dx() != tt.wantW {
				t.Errorf("Expected decoded width %d, got %d", tt.wantW, decoded.Bounds().Dx())
			}
		})
	}
}

func TestEncodeFrameEmptyImage(t *testing.T) {
	if _, err := EncodeFrame(image.NewRGBA(image.Rect(0, 0, 0, 0)), Config{MaxWidth: 640, MaxHeight: 480, Quality: 50}); err == nil {
		t.Error("Expected error for empty image")
	}
}

func TestPipelineEmitsFrames(t *testing.T) {
	stream := &fakeCameraStream{img: solid(800, 600)}
	p := NewPipeline(&fakeCamera{stream: stream}, Config{Interval: 10 * time.Millisecond}, zaptest.NewLogger(t))

	frames := make(chan Frame, 16)
	if err := p.Start(context.Background(), func(f Frame) {
		select {
		case frames <- f:
		default:
		}
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case f := <-frames:
		if f.Width != 640 || f.Height != 480 {
			t.Errorf("Expected 640x480 frame, got %dx%d", f.Width, f.Height)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a frame")
	}

	if err := p.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Second Stop() error = %v", err)
	}
	if stream.closeCount() != 1 {
		t.Errorf("Expected camera released once, got %d", stream.closeCount())
	}
	if p.Running() {
		t.Error("Pipeline should not be running after Stop")
	}
}

func TestPipelineCameraDenied(t *testing.T) {
	p := NewPipeline(&fakeCamera{openErr: errors.New("NotAllowedError")}, Config{}, zaptest.NewLogger(t))

	err := p.Start(context.Background(), func(Frame) {})
	var permErr *domain.PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("Expected PermissionError, got %v", err)
	}
	if permErr.Device != "camera" {
		t.Errorf("Expected device camera, got %s", permErr.Device)
	}
}

func TestPipelineStopWhileOpening(t *testing.T) {
	stream := &fakeCameraStream{img: solid(10, 10)}
	camera := &fakeCamera{stream: stream, delay: make(chan struct{})}
	p := NewPipeline(camera, Config{Interval: 10 * time.Millisecond}, zaptest.NewLogger(t))

	result := make(chan error, 1)
	go func() {
		result <- p.Start(context.Background(), func(Frame) {
			t.Error("No frame expected after Stop")
		})
	}()

	// let Start register its generation before stopping
	time.Sleep(20 * time.Millisecond)
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	close(camera.delay)

	if err := <-result; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from stale start, got %v", err)
	}
	if stream.closeCount() != 1 {
		t.Errorf("Expected late camera stream to be released, got %d closes", stream.closeCount())
	}
	if p.Running() {
		t.Error("Pipeline should not be running")
	}
}
