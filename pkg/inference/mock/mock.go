// Package mock provides test doubles for the inference package interfaces.
//
// Use Session to script the outputs of a model and inspect the inputs it was
// run with. Use Loader to observe whether (and with which path) a component
// attempted to load a model.
//
// Example:
//
//	sess := &mock.Session{
//	    RunFunc: func(in map[string]*tensor.Tensor, out []string) (map[string]*tensor.Tensor, error) {
//	        return map[string]*tensor.Tensor{"embs": emb}, nil
//	    },
//	}
//	ext, _ := speaker.NewWithSession(sess)
package mock

import (
	"sync"

	"github.com/haivivi/speechprint/pkg/inference"
	"github.com/haivivi/speechprint/pkg/tensor"
)

// RunCall records a single invocation of Session.Run.
type RunCall struct {
	// Inputs holds deep copies of the tensors passed to Run.
	Inputs map[string]*tensor.Tensor

	// Outputs is the list of output names requested.
	Outputs []string
}

// Session is a mock implementation of inference.Session.
type Session struct {
	mu sync.Mutex

	// RunFunc computes the outputs of every Run call. If nil, Run returns
	// Outputs, RunErr.
	RunFunc func(inputs map[string]*tensor.Tensor, outputs []string) (map[string]*tensor.Tensor, error)

	// Outputs is returned by Run when RunFunc is nil.
	Outputs map[string]*tensor.Tensor

	// RunErr, if non-nil, is returned by Run when RunFunc is nil.
	RunErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// RunCalls records every call to Run in order.
	RunCalls []RunCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Run records the call and returns the scripted outputs.
func (s *Session) Run(inputs map[string]*tensor.Tensor, outputs []string) (map[string]*tensor.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]*tensor.Tensor, len(inputs))
	for k, v := range inputs {
		cp[k] = v.Clone()
	}
	s.RunCalls = append(s.RunCalls, RunCall{
		Inputs:  cp,
		Outputs: append([]string(nil), outputs...),
	})
	if s.RunFunc != nil {
		return s.RunFunc(inputs, outputs)
	}
	return s.Outputs, s.RunErr
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Calls returns a snapshot of the recorded Run calls. Thread-safe.
func (s *Session) Calls() []RunCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RunCall(nil), s.RunCalls...)
}

// Ensure Session implements inference.Session at compile time.
var _ inference.Session = (*Session)(nil)

// Loader is a mock implementation of inference.Loader.
type Loader struct {
	mu sync.Mutex

	// Session is returned by Load. If nil, a new default Session is returned.
	Session inference.Session

	// LoadErr, if non-nil, is returned by Load.
	LoadErr error

	// Paths records every path passed to Load in order.
	Paths []string
}

// Load records the path and returns Session, LoadErr.
func (l *Loader) Load(path string) (inference.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Paths = append(l.Paths, path)
	if l.LoadErr != nil {
		return nil, l.LoadErr
	}
	if l.Session != nil {
		return l.Session, nil
	}
	return &Session{}, nil
}

// LoadCount returns how many times Load was called. Thread-safe.
func (l *Loader) LoadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Paths)
}

// Ensure Loader implements inference.Loader at compile time.
var _ inference.Loader = (*Loader)(nil)
