package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain/repositories"
	"github.com/eburondeveloperph-gif/engr/internal/audio"
)

// AudioSink receives PCM16 mono audio at the moment it is due to play
type AudioSink func(pcm []byte, sampleRate int)

// StreamingSpeaker is a software audio output. It keeps the playback clock
// and hands each buffer to a sink when its start time arrives, so the
// terminal that actually plays it receives audio already in order.
type StreamingSpeaker struct {
	sink   AudioSink
	logger *zap.Logger
}

var _ repositories.Speaker = (*StreamingSpeaker)(nil)

// NewStreamingSpeaker creates a speaker feeding sink. A nil sink discards audio.
func NewStreamingSpeaker(sink AudioSink, logger *zap.Logger) *StreamingSpeaker {
	if sink == nil {
		sink = func([]byte, int) {}
	}
	return &StreamingSpeaker{sink: sink, logger: logger}
}

// Open implements repositories.Speaker
func (s *StreamingSpeaker) Open(ctx context.Context, sampleRate int) (repositories.AudioOutput, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("Audio output opened", zap.Int("sampleRate", sampleRate))
	return &timedOutput{
		rate:   sampleRate,
		opened: time.Now(),
		sink:   s.sink,
		voices: make(map[*timedVoice]struct{}),
	}, nil
}

type timedOutput struct {
	rate   int
	opened time.Time
	sink   AudioSink

	mu     sync.Mutex
	voices map[*timedVoice]struct{}
	closed bool
}

func (o *timedOutput) SampleRate() int { return o.rate }

func (o *timedOutput) Now() time.Duration { return time.Since(o.opened) }

func (o *timedOutput) Play(at time.Duration, samples []float32, channels int, onEnded func()) (repositories.Voice, error) {
	if channels <= 0 {
		return nil, errors.New("channels must be positive")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, errors.New("audio output closed")
	}

	delay := at - o.Now()
	if delay < 0 {
		delay = 0
	}
	frames := len(samples) / channels
	length := time.Duration(frames) * time.Second / time.Duration(o.rate)

	pcm := audio.EncodePCM16(downmix(samples, channels))
	v := &timedVoice{output: o, onEnded: onEnded}
	v.startTimer = time.AfterFunc(delay, func() {
		if v.begin() {
			o.sink(pcm, o.rate)
		}
	})
	v.endTimer = time.AfterFunc(delay+length, v.finish)
	o.voices[v] = struct{}{}

	return v, nil
}

func (o *timedOutput) forget(v *timedVoice) {
	o.mu.Lock()
	delete(o.voices, v)
	o.mu.Unlock()
}

func (o *timedOutput) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	voices := make([]*timedVoice, 0, len(o.voices))
	for v := range o.voices {
		voices = append(voices, v)
	}
	o.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
	return nil
}

type timedVoice struct {
	output     *timedOutput
	onEnded    func()
	startTimer *time.Timer
	endTimer   *time.Timer

	mu      sync.Mutex
	stopped bool
	once    sync.Once
}

// begin reports whether the voice should still be heard
func (v *timedVoice) begin() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.stopped
}

func (v *timedVoice) finish() {
	v.once.Do(func() {
		v.output.forget(v)
		if v.onEnded != nil {
			v.onEnded()
		}
	})
}

// Stop silences the voice. Audio already handed to the sink is not recalled.
func (v *timedVoice) Stop() {
	v.mu.Lock()
	v.stopped = true
	v.mu.Unlock()

	v.startTimer.Stop()
	v.endTimer.Stop()
	v.finish()
}

func downmix(samples []float32, channels int) []float32 {
	if channels == 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
