package resampler

import (
	"errors"
	"fmt"
	"io"

	"github.com/haivivi/speechprint/pkg/audio/frame"
)

// Reader decodes a little-endian PCM16 byte stream in src format and yields
// float32 samples in dst format.
type Reader struct {
	src  io.Reader
	rs   *Resampler
	buf  []byte
	done bool
}

// NewReader returns a Reader converting PCM16 from r. chunk is the number
// of source sample frames decoded per call; 0 selects 100 ms.
func NewReader(r io.Reader, src, dst Format, chunk int) (*Reader, error) {
	rs, err := New(src, dst)
	if err != nil {
		return nil, err
	}
	if chunk <= 0 {
		chunk = src.SampleRate / 10
	}
	return &Reader{
		src: newSampleReader(r, src.pcm16Bytes()),
		rs:  rs,
		buf: make([]byte, chunk*src.pcm16Bytes()),
	}, nil
}

// ReadSamples returns the next converted chunk. At the end of the source
// the filter tail is returned, then io.EOF. A dangling partial sample at
// the end is dropped.
func (r *Reader) ReadSamples() ([]float32, error) {
	if r.done {
		return nil, io.EOF
	}
	for {
		n, err := io.ReadFull(r.src, r.buf)
		n -= n % r.rs.src.pcm16Bytes()
		if n > 0 {
			pcm, derr := frame.DecodePCM16(r.buf[:n])
			if derr != nil {
				return nil, derr
			}
			out, perr := r.rs.Process(pcm)
			if perr != nil {
				return nil, perr
			}
			if len(out) > 0 {
				return out, nil
			}
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			r.done = true
			tail, ferr := r.rs.Flush()
			if ferr != nil {
				return nil, ferr
			}
			if len(tail) > 0 {
				return tail, nil
			}
			return nil, io.EOF
		default:
			return nil, fmt.Errorf("resampler: read: %w", err)
		}
	}
}

// ReadAll drains r and returns every converted sample.
func ReadAll(r io.Reader, src, dst Format) ([]float32, error) {
	rd, err := NewReader(r, src, dst, 0)
	if err != nil {
		return nil, err
	}
	var out []float32
	for {
		s, err := rd.ReadSamples()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s...)
	}
}
