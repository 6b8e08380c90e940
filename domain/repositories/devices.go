package repositories

import (
	"context"
	"image"
	"time"
)

// Microphone hands out capture streams
type Microphone interface {
	Open(ctx context.Context) (MicStream, error)
}

// MicStream yields blocks of mono float samples in [-1, 1]
type MicStream interface {
	SampleRate() int
	// Read blocks until the next block is available. It returns io.EOF once
	// the stream is closed.
	Read(ctx context.Context) ([]float32, error)
	Close() error
}

// Camera hands out video streams
type Camera interface {
	Open(ctx context.Context) (CameraStream, error)
}

// CameraStream exposes the most recent camera image
type CameraStream interface {
	Snapshot(ctx context.Context) (image.Image, error)
	Close() error
}

// Speaker opens an audio output for one session
type Speaker interface {
	Open(ctx context.Context, sampleRate int) (AudioOutput, error)
}

// AudioOutput plays sample buffers against its own clock
type AudioOutput interface {
	SampleRate() int
	// Now is the output clock, measured from when the output was opened
	Now() time.Duration
	// Play starts samples (interleaved when channels > 1) at the given clock
	// time. onEnded fires once, when playback completes or the voice is
	// stopped, and never from inside Play.
	Play(at time.Duration, samples []float32, channels int, onEnded func()) (Voice, error)
	Close() error
}

// Voice is one scheduled buffer on an AudioOutput
type Voice interface {
	Stop()
}
