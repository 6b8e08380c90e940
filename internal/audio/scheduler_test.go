package audio

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

// manualOutput is an AudioOutput driven by a hand-advanced clock
type manualOutput struct {
	mu      sync.Mutex
	now     time.Duration
	starts  []time.Duration
	voices  []*manualVoice
	closed  int
	playErr error
}

type manualVoice struct {
	mu      sync.Mutex
	stopped bool
	onEnded func()
}

func (v *manualVoice) Stop() {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	v.stopped = true
	v.mu.Unlock()
	v.onEnded()
}

func (o *manualOutput) SampleRate() int { return PlaybackSampleRate }

func (o *manualOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *manualOutput) advance(d time.Duration) {
	o.mu.Lock()
	o.now += d
	o.mu.Unlock()
}

func (o *manualOutput) Play(at time.Duration, samples []float32, channels int, onEnded func()) (repositories.Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.playErr != nil {
		return nil, o.playErr
	}
	if o.closed > 0 {
		return nil, errors.New("play on closed output")
	}
	v := &manualVoice{onEnded: onEnded}
	o.starts = append(o.starts, at)
	o.voices = append(o.voices, v)
	return v, nil
}

func (o *manualOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func bufferOf(d time.Duration) Buffer {
	frames := int(d * PlaybackSampleRate / time.Second)
	return Buffer{Samples: make([]float32, frames), SampleRate: PlaybackSampleRate, Channels: 1}
}

func TestSchedulerGapless(t *testing.T) {
	out := &manualOutput{now: 250 * time.Millisecond}
	s := NewScheduler(out, zaptest.NewLogger(t))

	durations := []time.Duration{100 * time.Millisecond, 40 * time.Millisecond, 320 * time.Millisecond}
	want := []time.Duration{250 * time.Millisecond, 350 * time.Millisecond, 390 * time.Millisecond}

	for i, d := range durations {
		h, err := s.Schedule(bufferOf(d))
		if err != nil {
			t.Fatalf("Schedule() error = %v", err)
		}
		if h.Start != want[i] {
			t.Errorf("Buffer %d: expected start %v, got %v", i, want[i], h.Start)
		}
		if h.End != want[i]+d {
			t.Errorf("Buffer %d: expected end %v, got %v", i, want[i]+d, h.End)
		}
	}

	if s.Pending() != 3 {
		t.Errorf("Expected 3 pending buffers, got %d", s.Pending())
	}
}

func TestSchedulerStartsNowWhenDrained(t *testing.T) {
	out := &manualOutput{}
	s := NewScheduler(out, zaptest.NewLogger(t))

	if _, err := s.Schedule(bufferOf(100 * time.Millisecond)); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	out.advance(time.Second)
	h, err := s.Schedule(bufferOf(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if h.Start != time.Second {
		t.Errorf("Expected start at current clock 1s, got %v", h.Start)
	}
}

func TestSchedulerInterruptAll(t *testing.T) {
	out := &manualOutput{}
	s := NewScheduler(out, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		if _, err := s.Schedule(bufferOf(500 * time.Millisecond)); err != nil {
			t.Fatalf("Schedule() error = %v", err)
		}
	}

	out.advance(200 * time.Millisecond)
	if stopped := s.InterruptAll(); stopped != 3 {
		t.Errorf("Expected 3 stopped buffers, got %d", stopped)
	}
	if s.Pending() != 0 {
		t.Errorf("Expected empty scheduled set, got %d", s.Pending())
	}
	for i, v := range out.voices {
		if !v.stopped {
			t.Errorf("Voice %d was not stopped", i)
		}
	}

	h, err := s.Schedule(bufferOf(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if h.Start != 200*time.Millisecond {
		t.Errorf("Expected start at interruption time 200ms, got %v", h.Start)
	}
}

func TestSchedulerReleasesEndedVoices(t *testing.T) {
	out := &manualOutput{}
	s := NewScheduler(out, zaptest.NewLogger(t))

	if _, err := s.Schedule(bufferOf(100 * time.Millisecond)); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	out.voices[0].onEnded()

	if s.Pending() != 0 {
		t.Errorf("Expected finished buffer to be released, got %d pending", s.Pending())
	}
}

func TestSchedulerTeardownIdempotent(t *testing.T) {
	out := &manualOutput{}
	s := NewScheduler(out, zaptest.NewLogger(t))

	if _, err := s.Schedule(bufferOf(100 * time.Millisecond)); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	if err := s.Teardown(); err != nil {
		t.Errorf("First Teardown() error = %v", err)
	}
	if err := s.Teardown(); err != nil {
		t.Errorf("Second Teardown() error = %v", err)
	}
	if out.closed != 1 {
		t.Errorf("Expected output closed once, got %d", out.closed)
	}
	if !out.voices[0].stopped {
		t.Error("Expected playing voice to be stopped on teardown")
	}

	// a late decode landing after teardown must not touch the output
	_, err := s.Schedule(bufferOf(100 * time.Millisecond))
	if !errors.Is(err, domain.ErrSchedulerClosed) {
		t.Errorf("Expected ErrSchedulerClosed, got %v", err)
	}
	if len(out.starts) != 1 {
		t.Errorf("Expected no play after teardown, got %d plays", len(out.starts))
	}
	if s.InterruptAll() != 0 {
		t.Error("Expected InterruptAll after teardown to be a no-op")
	}
}

func TestSchedulerPlayError(t *testing.T) {
	out := &manualOutput{playErr: errors.New("device busy")}
	s := NewScheduler(out, zaptest.NewLogger(t))

	if _, err := s.Schedule(bufferOf(100 * time.Millisecond)); err == nil {
		t.Fatal("Expected error from failing output")
	}
	if s.Cursor() != 0 {
		t.Errorf("Expected cursor unchanged after failed play, got %v", s.Cursor())
	}
}
