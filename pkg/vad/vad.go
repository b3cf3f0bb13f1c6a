// Package vad implements a streaming voice activity detector over a
// recurrent neural model (Silero VAD v4 layout).
//
// A [Detector] owns one inference session and the model's recurrent state:
// two float32 tensors h and c of shape (2, 1, 64). Each [Detector.Compute]
// call runs the model on one frame together with the current state, returns
// the speech probability and replaces the state with the model's updated
// state. The state carries short-term context across frame boundaries, so
// one Detector serves exactly one audio stream at a time.
//
// Model contract:
//
//	inputs:  input float32[1, N], sr int64[1], h float32[2,1,64], c float32[2,1,64]
//	outputs: output float32[1, 1], hn float32[2,1,64], cn float32[2,1,64]
//
// A Detector is not safe for concurrent use.
package vad

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/haivivi/speechprint/pkg/audio/frame"
	"github.com/haivivi/speechprint/pkg/inference"
	"github.com/haivivi/speechprint/pkg/tensor"
)

var (
	// ErrUnsupportedSampleRate is returned by New for rates other than 8000
	// and 16000 Hz.
	ErrUnsupportedSampleRate = frame.ErrUnsupportedSampleRate

	// ErrClosed is returned by Compute after Close.
	ErrClosed = errors.New("vad: detector closed")
)

// Tensor names of the model graph.
const (
	InputName      = "input"
	SampleRateName = "sr"
	HiddenName     = "h"
	CellName       = "c"
	OutputName     = "output"
	HiddenOutName  = "hn"
	CellOutName    = "cn"
)

// Option configures a Detector.
type Option func(*Detector)

// WithLoader sets the loader used by New. Default: [inference.DefaultLoader].
func WithLoader(l inference.Loader) Option {
	return func(d *Detector) {
		if l != nil {
			d.loader = l
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// Detector is a stateful speech probability estimator.
type Detector struct {
	sess   inference.Session
	loader inference.Loader
	logger *slog.Logger
	rate   int
	sr     *tensor.Tensor
	state  RecurrentState
	closed bool
}

func newDetector(rate int, opts []Option) (*Detector, error) {
	if err := frame.ValidateSampleRate(rate); err != nil {
		return nil, fmt.Errorf("vad: %w", err)
	}
	sr, err := tensor.NewInt64(tensor.Shape{1}, []int64{int64(rate)})
	if err != nil {
		return nil, err
	}
	d := &Detector{
		loader: inference.DefaultLoader,
		logger: slog.Default(),
		rate:   rate,
		sr:     sr,
		state:  ZeroState(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// New validates sampleRate, then loads the model at modelPath. The rate is
// checked before any load is attempted; an unsupported rate fails with
// [ErrUnsupportedSampleRate] and a load failure wraps [inference.ErrModelLoad].
func New(modelPath string, sampleRate int, opts ...Option) (*Detector, error) {
	d, err := newDetector(sampleRate, opts)
	if err != nil {
		return nil, err
	}
	sess, err := d.loader.Load(modelPath)
	if err != nil {
		if !errors.Is(err, inference.ErrModelLoad) {
			err = fmt.Errorf("%w: %v", inference.ErrModelLoad, err)
		}
		return nil, fmt.Errorf("vad: %w", err)
	}
	d.sess = sess
	d.logger.Debug("vad: model loaded", "path", modelPath, "sample_rate", sampleRate)
	return d, nil
}

// NewWithSession creates a Detector over an already loaded session. The
// Detector takes ownership and closes sess on Close.
func NewWithSession(sess inference.Session, sampleRate int, opts ...Option) (*Detector, error) {
	if sess == nil {
		return nil, fmt.Errorf("vad: %w: nil session", inference.ErrModelLoad)
	}
	d, err := newDetector(sampleRate, opts)
	if err != nil {
		return nil, err
	}
	d.sess = sess
	return d, nil
}

// SampleRate returns the rate fixed at construction.
func (d *Detector) SampleRate() int { return d.rate }

// Compute runs the model on one frame of samples at the detector's sample
// rate and returns the speech probability in [0, 1]. On success the
// recurrent state advances; on any error it is left unchanged.
//
// An empty output tensor yields probability 0.
func (d *Detector) Compute(samples []float32) (float32, error) {
	if d.closed {
		return 0, ErrClosed
	}
	input, err := tensor.NewFloat32(tensor.Shape{1, int64(len(samples))}, samples)
	if err != nil {
		return 0, fmt.Errorf("vad: %w", err)
	}

	outs, err := d.sess.Run(map[string]*tensor.Tensor{
		InputName:      input,
		SampleRateName: d.sr,
		HiddenName:     d.state.H,
		CellName:       d.state.C,
	}, []string{OutputName, HiddenOutName, CellOutName})
	if err != nil {
		if !errors.Is(err, inference.ErrInference) {
			err = fmt.Errorf("%w: %v", inference.ErrInference, err)
		}
		return 0, fmt.Errorf("vad: %w", err)
	}

	h, err := stateOutput(outs, HiddenOutName)
	if err != nil {
		return 0, err
	}
	c, err := stateOutput(outs, CellOutName)
	if err != nil {
		return 0, err
	}
	out, err := inference.Output(outs, OutputName)
	if err != nil {
		return 0, fmt.Errorf("vad: %w", err)
	}
	probs, err := out.Float32s()
	if err != nil {
		return 0, fmt.Errorf("vad: %w: %s: %w", inference.ErrInference, OutputName, err)
	}

	var prob float32
	if len(probs) > 0 {
		prob = clamp(probs[0])
	} else {
		d.logger.Debug("vad: empty output tensor, probability defaults to 0")
	}
	d.state = RecurrentState{H: h, C: c}
	return prob, nil
}

// ComputeFrame runs Compute on the samples of f. The frame's rate is not
// re-validated; all frames given to one Detector must share its rate.
func (d *Detector) ComputeFrame(f frame.Frame) (float32, error) {
	return d.Compute(f.Samples())
}

// Reset zeroes the recurrent state, discarding accumulated context. Use it
// at the start of a new independent stream or after a long silence.
func (d *Detector) Reset() {
	d.state = ZeroState()
}

// State returns a deep copy of the current recurrent state.
func (d *Detector) State() RecurrentState {
	return d.state.Clone()
}

// Close releases the session. Compute fails with [ErrClosed] afterwards.
// Calling Close more than once is a no-op.
func (d *Detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.sess.Close(); err != nil {
		return fmt.Errorf("vad: close session: %w", err)
	}
	return nil
}

func stateOutput(outs map[string]*tensor.Tensor, name string) (*tensor.Tensor, error) {
	t, err := inference.Output(outs, name)
	if err != nil {
		return nil, fmt.Errorf("vad: %w", err)
	}
	if t.DType() != tensor.Float32 {
		return nil, fmt.Errorf("vad: %w: %s: %w", inference.ErrInference, name, tensor.ErrDType)
	}
	r, err := t.Reshape(StateShape())
	if err != nil {
		return nil, fmt.Errorf("vad: %w: %s: %w", inference.ErrInference, name, err)
	}
	return r, nil
}

func clamp(p float32) float32 {
	switch {
	case math.IsNaN(float64(p)), p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
