package capture

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

type fakeMic struct {
	openErr error
	stream  *fakeStream
	opens   int
}

func (m *fakeMic) Open(ctx context.Context) (repositories.MicStream, error) {
	m.opens++
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m.stream, nil
}

type fakeStream struct {
	rate   int
	blocks chan []float32

	mu     sync.Mutex
	closed int
	done   chan struct{}
}

func newFakeStream(rate int, blocks ...[]float32) *fakeStream {
	ch := make(chan []float32, len(blocks))
	for _, b := range blocks {
		ch <- b
	}
	return &fakeStream{rate: rate, blocks: ch, done: make(chan struct{})}
}

func (s *fakeStream) SampleRate() int { return s.rate }

func (s *fakeStream) Read(ctx context.Context) ([]float32, error) {
	select {
	case b := <-s.blocks:
		return b, nil
	case <-s.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	if s.closed == 1 {
		close(s.done)
	}
	return nil
}

func constant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func collect(t *testing.T, want int) (func(Chunk), func() []Chunk) {
	var mu sync.Mutex
	var chunks []Chunk
	got := make(chan struct{}, 64)
	onChunk := func(c Chunk) {
		mu.Lock()
		chunks = append(chunks, c)
		mu.Unlock()
		got <- struct{}{}
	}
	wait := func() []Chunk {
		for i := 0; i < want; i++ {
			select {
			case <-got:
			case <-time.After(2 * time.Second):
				t.Fatalf("Timed out waiting for chunk %d", i+1)
			}
		}
		mu.Lock()
		defer mu.Unlock()
		return append([]Chunk(nil), chunks...)
	}
	return onChunk, wait
}

func TestPipelineWindowsChunks(t *testing.T) {
	blocks := make([][]float32, 10)
	for i := range blocks {
		blocks[i] = constant(1000, 0.2)
	}
	stream := newFakeStream(16000, blocks...)
	p := NewPipeline(&fakeMic{stream: stream}, Config{}, zaptest.NewLogger(t))

	onChunk, wait := collect(t, 2)
	if err := p.Start(context.Background(), onChunk); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	chunks := wait()

	if err := p.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}

	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks from 10000 samples, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Samples) != 4096 {
			t.Errorf("Chunk %d: expected 4096 samples, got %d", i, len(c.Samples))
		}
		if len(c.PCM) != 8192 {
			t.Errorf("Chunk %d: expected 8192 PCM bytes, got %d", i, len(c.PCM))
		}
		if math.Abs(c.Volume-1.0) > 1e-6 {
			t.Errorf("Chunk %d: expected volume 1.0 (rms 0.2 x 5), got %f", i, c.Volume)
		}
		if c.Seq != int64(i+1) {
			t.Errorf("Chunk %d: expected seq %d, got %d", i, i+1, c.Seq)
		}
	}
}

func TestPipelineResamplesToCaptureRate(t *testing.T) {
	stream := newFakeStream(48000, constant(3*4096, 0.1))
	p := NewPipeline(&fakeMic{stream: stream}, Config{}, zaptest.NewLogger(t))

	onChunk, wait := collect(t, 1)
	if err := p.Start(context.Background(), onChunk); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	chunks := wait()
	p.Stop()

	if len(chunks[0].Samples) != 4096 {
		t.Errorf("Expected 4096 samples at 16kHz, got %d", len(chunks[0].Samples))
	}
}

func TestPipelinePermissionDenied(t *testing.T) {
	mic := &fakeMic{openErr: errors.New("NotAllowedError")}
	p := NewPipeline(mic, Config{}, zaptest.NewLogger(t))

	err := p.Start(context.Background(), func(Chunk) {})
	var permErr *domain.PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("Expected PermissionError, got %v", err)
	}
	if permErr.Device != "microphone" {
		t.Errorf("Expected device microphone, got %s", permErr.Device)
	}
	if p.Running() {
		t.Error("Pipeline should not be running after failed acquire")
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop() after failed acquire error = %v", err)
	}
}

func TestPipelineStopIdempotent(t *testing.T) {
	stream := newFakeStream(16000)
	p := NewPipeline(&fakeMic{stream: stream}, Config{}, zaptest.NewLogger(t))

	if err := p.Start(context.Background(), func(Chunk) {}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := p.Stop(); err != nil {
		t.Errorf("First Stop() error = %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Second Stop() error = %v", err)
	}
	if stream.closed != 1 {
		t.Errorf("Expected stream closed once, got %d", stream.closed)
	}
}

func TestPipelineAcquireAfterCancel(t *testing.T) {
	stream := newFakeStream(16000)
	p := NewPipeline(&fakeMic{stream: stream}, Config{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if stream.closed != 1 {
		t.Errorf("Expected late stream to be released, closed %d times", stream.closed)
	}
	if p.Running() {
		t.Error("Pipeline should not be running")
	}
}
