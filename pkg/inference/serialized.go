package inference

import (
	"fmt"
	"sync"

	"github.com/haivivi/speechprint/pkg/tensor"
)

// Serialized wraps s so that Run and Close never execute concurrently.
// Run after Close fails with [ErrInference]. Wrapping twice returns s as is.
func Serialized(s Session) Session {
	if l, ok := s.(*serialized); ok {
		return l
	}
	return &serialized{s: s}
}

type serialized struct {
	mu     sync.Mutex
	s      Session
	closed bool
}

func (l *serialized) Run(inputs map[string]*tensor.Tensor, outputs []string) (map[string]*tensor.Tensor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("%w: session closed", ErrInference)
	}
	return l.s.Run(inputs, outputs)
}

func (l *serialized) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.s.Close()
}
