package resampler

import "fmt"

// Format describes an interleaved float32 sample stream.
type Format struct {
	// SampleRate is the sample rate in Hz (e.g., 44100, 48000).
	SampleRate int

	// Channels is the number of interleaved channels. Zero means mono.
	Channels int
}

// Mono returns a single-channel format at rate.
func Mono(rate int) Format { return Format{SampleRate: rate, Channels: 1} }

func (f Format) channels() int {
	if f.Channels <= 0 {
		return 1
	}
	return f.Channels
}

// pcm16Bytes returns the size of one PCM16 sample frame across all channels.
func (f Format) pcm16Bytes() int {
	return 2 * f.channels()
}

func (f Format) validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("resampler: invalid sample rate %d", f.SampleRate)
	}
	if f.Channels < 0 {
		return fmt.Errorf("resampler: invalid channel count %d", f.Channels)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz x%d", f.SampleRate, f.channels())
}
