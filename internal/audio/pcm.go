// Package audio converts between float samples and the PCM16 wire format and
// schedules decoded buffers for gapless playback.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"time"

	"github.com/eburondeveloperph-gif/engr/domain"
)

const (
	// CaptureSampleRate is the rate microphone audio is sent at
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate the remote model streams audio at
	PlaybackSampleRate = 24000

	pcmScale = 32767
)

// Buffer is decoded audio ready for playback. Samples are interleaved when
// Channels > 1.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames in the buffer
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns how long the buffer plays for
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// EncodePCM16 clamps samples to [-1, 1] and serialises them as signed 16-bit
// little-endian integers.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		} else if math.IsNaN(v) {
			v = 0
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v*pcmScale))))
	}
	return out
}

// DecodePCM16 turns little-endian PCM16 bytes recorded at sourceRate into a
// Buffer at targetRate, resampling each channel when the rates differ.
func DecodePCM16(data []byte, sourceRate, channels, targetRate int) (Buffer, error) {
	if len(data) == 0 {
		return Buffer{}, domain.NewDecodeError("empty fragment", nil)
	}
	if channels <= 0 || sourceRate <= 0 || targetRate <= 0 {
		return Buffer{}, domain.NewDecodeError("invalid format", nil)
	}
	if len(data)%2 != 0 {
		return Buffer{}, domain.NewDecodeError("odd byte count", nil)
	}

	count := len(data) / 2
	if count%channels != 0 {
		return Buffer{}, domain.NewDecodeError("truncated frame", nil)
	}

	samples := make([]float32, count)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		f := float32(v) / pcmScale
		if f < -1 {
			f = -1
		}
		samples[i] = f
	}

	if sourceRate != targetRate {
		samples = resampleInterleaved(samples, channels, sourceRate, targetRate)
	}

	return Buffer{Samples: samples, SampleRate: targetRate, Channels: channels}, nil
}

// Resample converts mono samples between rates with linear interpolation.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)
	if newLen == 0 {
		return []float32{}
	}

	out := make([]float32, newLen)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx] + frac*(samples[idx+1]-samples[idx])
	}
	return out
}

func resampleInterleaved(samples []float32, channels, fromRate, toRate int) []float32 {
	if channels == 1 {
		return Resample(samples, fromRate, toRate)
	}

	frames := len(samples) / channels
	var out []float32
	for ch := 0; ch < channels; ch++ {
		mono := make([]float32, frames)
		for i := range mono {
			mono[i] = samples[i*channels+ch]
		}
		res := Resample(mono, fromRate, toRate)
		if out == nil {
			out = make([]float32, len(res)*channels)
		}
		for i, s := range res {
			out[i*channels+ch] = s
		}
	}
	return out
}

// RMS returns the root mean square of samples
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// EncodeBase64 wraps binary audio or image data for JSON transports
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 reverses EncodeBase64
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, domain.NewDecodeError("invalid base64", err)
	}
	return data, nil
}
