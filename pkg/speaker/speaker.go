// Package speaker extracts fixed-length speaker embedding vectors from audio.
//
// # Model Pipeline
//
//  1. float32 samples → [FeatureExtractor] → features [T, F]
//  2. features → batch axis → (1, T, F) tensor "feats"
//  3. inference session → "embs" → embedding vector
//
// The embedding length is defined by the model (192 for ECAPA-TDNN, 256
// for WeSpeaker ResNet34, 512 for ERes2Net) and is passed through as-is.
//
// # Thread Safety
//
// An [Extractor] serializes its Compute calls with a mutex, so one instance
// may be shared by many streams. Throughput is then bounded by one call at
// a time; create several Extractors to run in parallel.
package speaker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haivivi/speechprint/pkg/inference"
	"github.com/haivivi/speechprint/pkg/tensor"
)

var (
	// ErrFeatureExtraction is returned when features cannot be computed,
	// for example when the input is shorter than one analysis window.
	ErrFeatureExtraction = errors.New("speaker: feature extraction failed")

	// ErrClosed is returned by Compute after Close.
	ErrClosed = errors.New("speaker: extractor closed")
)

// Default tensor names of the embedding graph.
const (
	DefaultInputName  = "feats"
	DefaultOutputName = "embs"
)

// Option configures an Extractor.
type Option func(*Extractor)

// WithLoader sets the loader used by New. Default: [inference.DefaultLoader].
func WithLoader(l inference.Loader) Option {
	return func(e *Extractor) {
		if l != nil {
			e.loader = l
		}
	}
}

// WithFeatures sets the feature extractor. Default: [DefaultFeatures].
func WithFeatures(f FeatureExtractor) Option {
	return func(e *Extractor) {
		if f != nil {
			e.features = f
		}
	}
}

// WithNames overrides the input and output tensor names. Empty strings
// keep the defaults.
func WithNames(input, output string) Option {
	return func(e *Extractor) {
		if input != "" {
			e.inputName = input
		}
		if output != "" {
			e.outputName = output
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// Extractor computes speaker embeddings with a loaded model.
type Extractor struct {
	mu       sync.Mutex
	sess     inference.Session
	loader   inference.Loader
	features FeatureExtractor
	logger   *slog.Logger
	closed   bool

	inputName  string
	outputName string
}

func newExtractor(opts []Option) *Extractor {
	e := &Extractor{
		loader:     inference.DefaultLoader,
		features:   DefaultFeatures(),
		logger:     slog.Default(),
		inputName:  DefaultInputName,
		outputName: DefaultOutputName,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// New loads the embedding model at modelPath. Load failures wrap
// [inference.ErrModelLoad].
func New(modelPath string, opts ...Option) (*Extractor, error) {
	e := newExtractor(opts)
	sess, err := e.loader.Load(modelPath)
	if err != nil {
		if !errors.Is(err, inference.ErrModelLoad) {
			err = fmt.Errorf("%w: %v", inference.ErrModelLoad, err)
		}
		return nil, fmt.Errorf("speaker: %w", err)
	}
	e.sess = sess
	e.logger.Debug("speaker: model loaded", "path", modelPath)
	return e, nil
}

// NewWithSession creates an Extractor over an already loaded session. The
// Extractor takes ownership and closes sess on Close.
func NewWithSession(sess inference.Session, opts ...Option) (*Extractor, error) {
	if sess == nil {
		return nil, fmt.Errorf("speaker: %w: nil session", inference.ErrModelLoad)
	}
	e := newExtractor(opts)
	e.sess = sess
	return e, nil
}

// Compute returns the speaker embedding of samples. The returned slice is
// freshly allocated on every call.
func (e *Extractor) Compute(samples []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	feats, err := e.features.ComputeFbank(samples)
	if err != nil {
		if errors.Is(err, ErrFeatureExtraction) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrFeatureExtraction, err)
	}
	if feats == nil {
		return nil, fmt.Errorf("%w: no features", ErrFeatureExtraction)
	}
	if shape := feats.Shape(); len(shape) != 2 || feats.DType() != tensor.Float32 {
		return nil, fmt.Errorf("%w: want float32 [T, F] features, got %s", ErrFeatureExtraction, feats)
	}

	outs, err := e.sess.Run(map[string]*tensor.Tensor{
		e.inputName: feats.AddBatchAxis(),
	}, []string{e.outputName})
	if err != nil {
		if !errors.Is(err, inference.ErrInference) {
			err = fmt.Errorf("%w: %v", inference.ErrInference, err)
		}
		return nil, fmt.Errorf("speaker: %w", err)
	}

	out, err := inference.Output(outs, e.outputName)
	if err != nil {
		return nil, fmt.Errorf("speaker: %w", err)
	}
	emb, err := out.Float32s()
	if err != nil {
		return nil, fmt.Errorf("speaker: %w: %s: %w", inference.ErrInference, e.outputName, err)
	}
	return emb, nil
}

// Close releases the session. Calling Close more than once is a no-op.
func (e *Extractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.sess.Close(); err != nil {
		return fmt.Errorf("speaker: close session: %w", err)
	}
	return nil
}
