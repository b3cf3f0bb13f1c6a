//go:build onnxruntime

package onnx

import (
	"fmt"
	"sort"
	"sync"

	"github.com/haivivi/speechprint/pkg/inference"
	"github.com/haivivi/speechprint/pkg/tensor"
)

// Available reports whether the binary was built with ONNX Runtime.
const Available = true

func init() {
	inference.Register(".onnx", Default)
}

// Default is the process-wide engine registered for ".onnx" files.
var Default = &Engine{Name: "speechprint"}

// Engine loads .onnx files into [inference.Session] adapters. The ORT
// environment is created lazily on the first Load and shared by every session.
type Engine struct {
	// Name is the ORT environment log identifier.
	Name string

	// Threads is the intra-op thread count per session; 0 lets ORT decide.
	Threads int

	once   sync.Once
	env    *Env
	envErr error
}

// Load implements [inference.Loader]. The returned session is
// [inference.Serialized] so Close cannot free the C session mid-Run.
func (e *Engine) Load(path string) (inference.Session, error) {
	e.once.Do(func() {
		e.env, e.envErr = NewEnv(e.Name, e.Threads)
	})
	if e.envErr != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrModelLoad, e.envErr)
	}
	s, err := e.env.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", inference.ErrModelLoad, path, err)
	}
	return inference.Serialized(&session{s: s}), nil
}

// session adapts *Session to inference.Session.
type session struct {
	s *Session
}

func (a *session) Run(inputs map[string]*tensor.Tensor, outputs []string) (map[string]*tensor.Tensor, error) {
	// Deterministic input order keeps ORT logs and errors stable.
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([]*Value, 0, len(names))
	defer func() {
		for _, v := range values {
			v.Close()
		}
	}()
	for _, name := range names {
		v, err := toValue(inputs[name])
		if err != nil {
			return nil, fmt.Errorf("%w: input %q: %v", inference.ErrInference, name, err)
		}
		values = append(values, v)
	}

	outs, err := a.s.Run(names, values, outputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrInference, err)
	}
	defer func() {
		for _, v := range outs {
			v.Close()
		}
	}()

	result := make(map[string]*tensor.Tensor, len(outs))
	for i, v := range outs {
		t, err := fromValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: output %q: %v", inference.ErrInference, outputs[i], err)
		}
		result[outputs[i]] = t
	}
	return result, nil
}

func (a *session) Close() error {
	return a.s.Close()
}

func toValue(t *tensor.Tensor) (*Value, error) {
	switch t.DType() {
	case tensor.Float32:
		data, err := t.Float32s()
		if err != nil {
			return nil, err
		}
		return NewFloat32Value(t.Shape(), data)
	case tensor.Int64:
		data, err := t.Int64s()
		if err != nil {
			return nil, err
		}
		return NewInt64Value(t.Shape(), data)
	default:
		return nil, fmt.Errorf("unsupported dtype %s", t.DType())
	}
}

// fromValue copies a float32 output into a tensor. The models this engine
// serves only produce float32 outputs.
func fromValue(v *Value) (*tensor.Tensor, error) {
	shape, err := v.Shape()
	if err != nil {
		return nil, err
	}
	data, err := v.FloatData()
	if err != nil {
		return nil, err
	}
	return tensor.NewFloat32(shape, data)
}
