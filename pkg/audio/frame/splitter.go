package frame

import "fmt"

// Splitter cuts an arbitrary-length sample stream into fixed-size frames
// with increasing sequence numbers. It is not safe for concurrent use.
type Splitter struct {
	rate    int
	size    int
	seq     uint64
	pending []float32
}

// NewSplitter returns a splitter producing frames of size samples at rate.
// A size of 0 selects Size(rate).
func NewSplitter(rate, size int) (*Splitter, error) {
	if err := ValidateSampleRate(rate); err != nil {
		return nil, err
	}
	if size == 0 {
		size = Size(rate)
	}
	if size < 0 {
		return nil, fmt.Errorf("frame: invalid frame size %d", size)
	}
	return &Splitter{rate: rate, size: size}, nil
}

// FrameSize returns the number of samples per frame.
func (s *Splitter) FrameSize() int { return s.size }

// SampleRate returns the rate stamped on produced frames.
func (s *Splitter) SampleRate() int { return s.rate }

// Push appends samples and returns every complete frame now available.
// Leftover samples are kept for the next call.
func (s *Splitter) Push(samples []float32) []Frame {
	s.pending = append(s.pending, samples...)
	var out []Frame
	for len(s.pending) >= s.size {
		out = append(out, New(s.seq, s.rate, s.pending[:s.size]))
		s.seq++
		s.pending = s.pending[s.size:]
	}
	if len(s.pending) == 0 {
		s.pending = nil
	} else if len(out) > 0 {
		s.pending = append([]float32(nil), s.pending...)
	}
	return out
}

// Flush returns the buffered remainder zero-padded to a full frame, or
// false if nothing is buffered.
func (s *Splitter) Flush() (Frame, bool) {
	if len(s.pending) == 0 {
		return Frame{}, false
	}
	buf := make([]float32, s.size)
	copy(buf, s.pending)
	f := Frame{seq: s.seq, rate: s.rate, samples: buf}
	s.seq++
	s.pending = nil
	return f, true
}

// Buffered returns the number of samples waiting for a full frame.
func (s *Splitter) Buffered() int { return len(s.pending) }

// Split is a one-shot helper that frames samples and pads the tail.
func Split(rate, size int, samples []float32) ([]Frame, error) {
	sp, err := NewSplitter(rate, size)
	if err != nil {
		return nil, err
	}
	frames := sp.Push(samples)
	if f, ok := sp.Flush(); ok {
		frames = append(frames, f)
	}
	return frames, nil
}
