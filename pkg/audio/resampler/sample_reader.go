package resampler

import "io"

// sampleReader wraps an io.Reader and ensures each Read returns a multiple of
// sampleSize bytes. Partial data is buffered until a complete sample arrives.
type sampleReader struct {
	buffer     []byte
	buffered   int
	sampleSize int
	r          io.Reader
}

func newSampleReader(r io.Reader, sampleSize int) *sampleReader {
	return &sampleReader{
		buffer:     make([]byte, sampleSize-1),
		sampleSize: sampleSize,
		r:          r,
	}
}

// Read returns 0 or a multiple of sampleSize bytes. At EOF with a partial
// sample buffered it returns io.ErrUnexpectedEOF.
func (sr *sampleReader) Read(p []byte) (n int, err error) {
	if len(p) < sr.sampleSize {
		return 0, io.ErrShortBuffer
	}

	p = p[:len(p)/sr.sampleSize*sr.sampleSize]
	if sr.buffered > 0 {
		n = copy(p, sr.buffer[:sr.buffered])
		sr.buffered = 0
	}

	rn, err := sr.r.Read(p[n:])
	n += rn
	if err != nil {
		if n%sr.sampleSize != 0 && err == io.EOF {
			return n, io.ErrUnexpectedEOF
		}
		return n, err
	}
	if mod := n % sr.sampleSize; mod != 0 {
		n -= mod
		copy(sr.buffer[:mod], p[n:n+mod])
		sr.buffered = mod
	}
	return n, nil
}
