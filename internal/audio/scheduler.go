package audio

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

// Handle identifies one scheduled buffer
type Handle struct {
	ID    uint64
	Start time.Duration
	End   time.Duration
}

// Scheduler plays decoded buffers back to back on one AudioOutput. Buffers
// start in the order Schedule is called.
type Scheduler struct {
	output repositories.AudioOutput
	logger *zap.Logger

	mu        sync.Mutex
	nextStart time.Duration
	voices    map[uint64]repositories.Voice
	seq       uint64
	closed    bool
}

// NewScheduler takes ownership of output; Teardown closes it
func NewScheduler(output repositories.AudioOutput, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		output: output,
		logger: logger,
		voices: make(map[uint64]repositories.Voice),
	}
}

// Schedule starts buf right after the previously scheduled buffer, or now if
// playback has drained.
func (s *Scheduler) Schedule(buf Buffer) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Handle{}, domain.ErrSchedulerClosed
	}

	start := s.output.Now()
	if s.nextStart > start {
		start = s.nextStart
	}

	s.seq++
	id := s.seq
	voice, err := s.output.Play(start, buf.Samples, buf.Channels, func() { s.release(id) })
	if err != nil {
		return Handle{}, err
	}

	s.voices[id] = voice
	s.nextStart = start + buf.Duration()

	return Handle{ID: id, Start: start, End: s.nextStart}, nil
}

func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	delete(s.voices, id)
	s.mu.Unlock()
}

// InterruptAll stops every scheduled buffer and rewinds the cursor to now
func (s *Scheduler) InterruptAll() int {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	voices := s.drain()
	s.nextStart = s.output.Now()
	s.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
	if len(voices) > 0 {
		s.logger.Debug("Playback interrupted", zap.Int("stopped", len(voices)))
	}
	return len(voices)
}

// Pending returns the number of buffers scheduled or playing
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

// Cursor returns the clock time the next buffer would start at
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now := s.output.Now(); now > s.nextStart {
		return now
	}
	return s.nextStart
}

// Teardown stops all buffers and closes the output. Calling it again is a no-op.
func (s *Scheduler) Teardown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	voices := s.drain()
	s.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
	return s.output.Close()
}

// drain must be called with mu held
func (s *Scheduler) drain() []repositories.Voice {
	voices := make([]repositories.Voice, 0, len(s.voices))
	for id, v := range s.voices {
		voices = append(voices, v)
		delete(s.voices, id)
	}
	return voices
}
