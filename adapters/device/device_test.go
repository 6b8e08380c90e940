package device

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eburondeveloperph-gif/engr/domain"
)

func TestSineMicrophoneProducesBlocks(t *testing.T) {
	mic := NewSineMicrophone(zaptest.NewLogger(t))
	mic.Block = 10 * time.Millisecond

	stream, err := mic.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	block, err := stream.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(block) != 160 {
		t.Errorf("Expected 160 samples per 10ms block, got %d", len(block))
	}
	for _, s := range block {
		if s > 0.3001 || s < -0.3001 {
			t.Fatalf("Sample %f exceeds amplitude", s)
		}
	}

	if err := stream.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Second Close() error = %v", err)
	}
	if _, err := stream.Read(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after close, got %v", err)
	}
}

func TestDeniedDevices(t *testing.T) {
	var permErr *domain.PermissionError

	if _, err := (DeniedMicrophone{}).Open(context.Background()); !errors.As(err, &permErr) {
		t.Errorf("Expected PermissionError from denied microphone, got %v", err)
	}
	if _, err := (DeniedCamera{}).Open(context.Background()); !errors.As(err, &permErr) {
		t.Errorf("Expected PermissionError from denied camera, got %v", err)
	}
}

func TestStillCameraSnapshot(t *testing.T) {
	stream, err := NewStillCamera().Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	img, err := stream.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if img.Bounds().Dx() != 1280 || img.Bounds().Dy() != 720 {
		t.Errorf("Expected 1280x720 test pattern, got %v", img.Bounds())
	}

	stream.Close()
	if _, err := stream.Snapshot(context.Background()); err == nil {
		t.Error("Expected error from closed camera")
	}
}

type sinkRecorder struct {
	mu     sync.Mutex
	chunks [][]byte
	got    chan struct{}
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{got: make(chan struct{}, 16)}
}

func (r *sinkRecorder) sink(pcm []byte, rate int) {
	r.mu.Lock()
	r.chunks = append(r.chunks, pcm)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *sinkRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

func TestStreamingSpeakerPlaysAndEnds(t *testing.T) {
	rec := newSinkRecorder()
	out, err := NewStreamingSpeaker(rec.sink, zaptest.NewLogger(t)).Open(context.Background(), 24000)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ended := make(chan struct{})
	samples := make([]float32, 240) // 10ms
	if _, err := out.Play(out.Now(), samples, 1, func() { close(ended) }); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	select {
	case <-rec.got:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for audio at the sink")
	}
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for onEnded")
	}

	if len(rec.chunks[0]) != 480 {
		t.Errorf("Expected 480 PCM bytes, got %d", len(rec.chunks[0]))
	}
}

func TestStreamingSpeakerStopBeforeStart(t *testing.T) {
	rec := newSinkRecorder()
	out, _ := NewStreamingSpeaker(rec.sink, zaptest.NewLogger(t)).Open(context.Background(), 24000)

	var endedCount int
	var mu sync.Mutex
	voice, err := out.Play(out.Now()+time.Hour, make([]float32, 240), 1, func() {
		mu.Lock()
		endedCount++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	voice.Stop()
	voice.Stop()

	if rec.count() != 0 {
		t.Errorf("Expected no audio for a stopped voice, got %d chunks", rec.count())
	}
	mu.Lock()
	defer mu.Unlock()
	if endedCount != 1 {
		t.Errorf("Expected onEnded exactly once, got %d", endedCount)
	}
}

func TestStreamingSpeakerClose(t *testing.T) {
	out, _ := NewStreamingSpeaker(nil, zaptest.NewLogger(t)).Open(context.Background(), 24000)

	ended := make(chan struct{})
	if _, err := out.Play(out.Now()+time.Hour, make([]float32, 10), 1, func() { close(ended) }); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	if err := out.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := out.Close(); err != nil {
		t.Errorf("Second Close() error = %v", err)
	}

	select {
	case <-ended:
	default:
		t.Error("Expected pending voice to end on close")
	}

	if _, err := out.Play(out.Now(), make([]float32, 10), 1, nil); err == nil {
		t.Error("Expected error playing on closed output")
	}
}
