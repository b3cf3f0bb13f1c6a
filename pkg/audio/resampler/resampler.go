package resampler

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts interleaved float32 samples from one Format to another.
// It keeps filter history between Process calls so a stream can be fed in
// chunks. It is not safe for concurrent use.
type Resampler struct {
	src Format
	dst Format
	rs  resampling.Resampler

	// Sample frames fed to and produced by rs since the last Flush.
	in, out int64
}

// New creates a resampler from src to dst. The destination must be mono,
// stereo from a mono source, or the same layout as the source.
func New(src, dst Format) (*Resampler, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	if err := dst.validate(); err != nil {
		return nil, err
	}
	sc, dc := src.channels(), dst.channels()
	if dc != 1 && dc != sc && !(sc == 1 && dc == 2) {
		return nil, fmt.Errorf("resampler: cannot convert %d channels to %d", sc, dc)
	}

	r := &Resampler{src: src, dst: dst}
	if src.SampleRate != dst.SampleRate {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(src.SampleRate),
			OutputRate: float64(dst.SampleRate),
			Channels:   dc,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: create %v -> %v: %w", src, dst, err)
		}
		r.rs = rs
	}
	return r, nil
}

// Source returns the input format.
func (r *Resampler) Source() Format { return r.src }

// Destination returns the output format.
func (r *Resampler) Destination() Format { return r.dst }

// Passthrough reports whether Process only converts channels.
func (r *Resampler) Passthrough() bool { return r.rs == nil }

// Process converts one chunk of interleaved samples. A trailing partial
// sample frame is dropped. The output may be shorter than the nominal ratio
// while the filter fills.
func (r *Resampler) Process(samples []float32) ([]float32, error) {
	sc, dc := r.src.channels(), r.dst.channels()
	samples = samples[:len(samples)/sc*sc]

	var mixed []float32
	switch {
	case sc == dc:
		mixed = samples
	case dc == 1:
		mixed = Downmix(samples, sc)
	default:
		mixed = Upmix(samples)
	}

	if r.rs == nil {
		out := make([]float32, len(mixed))
		copy(out, mixed)
		return out, nil
	}
	if len(mixed) == 0 {
		return nil, nil
	}

	in := make([]float64, len(mixed))
	for i, s := range mixed {
		in[i] = float64(s)
	}
	res, err := r.rs.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}
	r.in += int64(len(mixed) / dc)
	r.out += int64(len(res) / dc)
	return toFloat32(res), nil
}

// Flush returns the samples still held in the filter once no more input
// will follow, capped so the stream total matches the nominal rate ratio.
// The filter is reset afterwards and the Resampler may start a new stream.
// It returns nil in passthrough mode.
func (r *Resampler) Flush() ([]float32, error) {
	if r.rs == nil {
		return nil, nil
	}
	defer func() {
		r.rs.Reset()
		r.in, r.out = 0, 0
	}()
	if r.in == 0 {
		return nil, nil
	}
	res, err := r.rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("resampler: flush: %w", err)
	}
	dc := int64(r.dst.channels())
	want := (r.in*int64(r.dst.SampleRate)/int64(r.src.SampleRate) - r.out) * dc
	if want <= 0 {
		return nil, nil
	}
	if int64(len(res)) > want {
		res = res[:want]
	}
	return toFloat32(res), nil
}

func toFloat32(res []float64) []float32 {
	out := make([]float32, len(res))
	for i, s := range res {
		out[i] = float32(max(-1, min(1, s)))
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	n := len(samples) / channels
	out := make([]float32, n)
	for i := range n {
		var sum float32
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += s
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Upmix duplicates mono samples into interleaved stereo.
func Upmix(samples []float32) []float32 {
	out := make([]float32, 2*len(samples))
	for i, s := range samples {
		out[2*i] = s
		out[2*i+1] = s
	}
	return out
}

// Convert is a one-shot helper for whole buffers. The filter tail is
// flushed into the result.
func Convert(samples []float32, src, dst Format) ([]float32, error) {
	r, err := New(src, dst)
	if err != nil {
		return nil, err
	}
	out, err := r.Process(samples)
	if err != nil {
		return nil, err
	}
	tail, err := r.Flush()
	if err != nil {
		return nil, err
	}
	return append(out, tail...), nil
}
