// Package vadtest provides a deterministic pure Go stand-in for a recurrent
// VAD model, for tests that need realistic state-carrying behaviour without
// an inference engine.
//
// The fake model tracks a leaky RMS envelope in h and a frame counter in c:
//
//	hn = 0.5*h + rms(input)
//	cn = c + 1
//	output = 1 - exp(-4*hn[0])
//
// Silence therefore yields 0, a loud frame drives the probability towards 1,
// and the probability decays over a few frames after speech stops.
package vadtest

import (
	"fmt"
	"math"
	"sync"

	"github.com/haivivi/speechprint/pkg/inference"
	"github.com/haivivi/speechprint/pkg/tensor"
)

// Session is a fake recurrent VAD session. The zero value is ready to use.
type Session struct {
	mu sync.Mutex

	// HiddenShape overrides the shape of the returned hn tensor. Use it to
	// simulate a model with the wrong state layout.
	HiddenShape tensor.Shape

	// OmitOutput drops the named output from every result.
	OmitOutput string

	// EmptyOutput returns a zero-length output tensor.
	EmptyOutput bool

	runs   int
	closed int
	rates  []int64
}

// NewLoader returns a loader that hands out fresh Sessions.
func NewLoader() inference.Loader {
	return inference.LoaderFunc(func(string) (inference.Session, error) {
		return &Session{}, nil
	})
}

// Run implements inference.Session.
func (s *Session) Run(in map[string]*tensor.Tensor, _ []string) (map[string]*tensor.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++

	get := func(name string) ([]float32, error) {
		t, ok := in[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing input %q", inference.ErrInference, name)
		}
		return t.Float32s()
	}
	x, err := get("input")
	if err != nil {
		return nil, err
	}
	h, err := get("h")
	if err != nil {
		return nil, err
	}
	c, err := get("c")
	if err != nil {
		return nil, err
	}
	if sr, ok := in["sr"]; ok {
		if v, err := sr.Int64s(); err == nil && len(v) > 0 {
			s.rates = append(s.rates, v[0])
		}
	}

	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	var rms float32
	if len(x) > 0 {
		rms = float32(math.Sqrt(sum / float64(len(x))))
	}
	for i := range h {
		h[i] = 0.5*h[i] + rms
	}
	for i := range c {
		c[i]++
	}

	hShape := tensor.Shape{2, 1, 64}
	if s.HiddenShape != nil {
		hShape = s.HiddenShape
		h = resize(h, int(hShape.Size()))
	}
	hn, err := tensor.NewFloat32(hShape, h)
	if err != nil {
		return nil, err
	}
	cn, err := tensor.NewFloat32(tensor.Shape{2, 1, 64}, c)
	if err != nil {
		return nil, err
	}
	var out *tensor.Tensor
	if s.EmptyOutput {
		out, _ = tensor.NewFloat32(tensor.Shape{1, 0}, nil)
	} else {
		p := 1 - float32(math.Exp(-4*float64(h[0])))
		out, _ = tensor.NewFloat32(tensor.Shape{1, 1}, []float32{p})
	}

	res := map[string]*tensor.Tensor{"hn": hn, "cn": cn, "output": out}
	delete(res, s.OmitOutput)
	return res, nil
}

// Close implements inference.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Runs returns the number of Run calls.
func (s *Session) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Closed returns the number of Close calls.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Rates returns the sr input seen on each Run.
func (s *Session) Rates() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.rates...)
}

func resize(v []float32, n int) []float32 {
	out := make([]float32, n)
	copy(out, v)
	return out
}

// Sine returns n samples of a sine tone at amplitude amp.
func Sine(n int, freq float64, rate int, amp float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amp * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

var _ inference.Session = (*Session)(nil)
