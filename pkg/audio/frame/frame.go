// Package frame defines the fixed-length audio window consumed by the
// voice activity detector and the frame pipeline.
//
// A Frame is immutable once constructed: the constructor copies the samples
// and Samples returns a copy. Supported sample rates are 8000 and 16000 Hz.
package frame

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedSampleRate is returned for sample rates other than 8000 and
// 16000 Hz.
var ErrUnsupportedSampleRate = errors.New("frame: unsupported sample rate")

const (
	// Rate8K is the narrowband rate.
	Rate8K = 8000
	// Rate16K is the wideband rate.
	Rate16K = 16000
)

// ValidateSampleRate reports whether rate is one the detector accepts.
func ValidateSampleRate(rate int) error {
	switch rate {
	case Rate8K, Rate16K:
		return nil
	}
	return fmt.Errorf("%w: %d (want %d or %d)", ErrUnsupportedSampleRate, rate, Rate8K, Rate16K)
}

// Size returns the recommended window length for rate: 512 samples at
// 16 kHz and 256 at 8 kHz (32 ms). It returns 0 for unsupported rates.
func Size(rate int) int {
	switch rate {
	case Rate16K:
		return 512
	case Rate8K:
		return 256
	}
	return 0
}

// Frame is one window of mono float32 samples in [-1, 1].
type Frame struct {
	seq     uint64
	rate    int
	samples []float32
}

// New returns a frame holding a copy of samples.
func New(seq uint64, rate int, samples []float32) Frame {
	s := make([]float32, len(samples))
	copy(s, samples)
	return Frame{seq: seq, rate: rate, samples: s}
}

// Seq returns the position of the frame in its stream.
func (f Frame) Seq() uint64 { return f.seq }

// SampleRate returns the sample rate in Hz.
func (f Frame) SampleRate() int { return f.rate }

// Len returns the number of samples.
func (f Frame) Len() int { return len(f.samples) }

// Samples returns a copy of the frame samples.
func (f Frame) Samples() []float32 {
	s := make([]float32, len(f.samples))
	copy(s, f.samples)
	return s
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.rate <= 0 {
		return 0
	}
	return time.Duration(len(f.samples)) * time.Second / time.Duration(f.rate)
}

// Offset returns the stream time at which the frame starts, assuming every
// earlier frame had the same length.
func (f Frame) Offset() time.Duration {
	return time.Duration(f.seq) * f.Duration()
}

func (f Frame) String() string {
	return fmt.Sprintf("frame#%d(%d samples @ %d Hz)", f.seq, len(f.samples), f.rate)
}
