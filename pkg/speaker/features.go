package speaker

import (
	"fmt"

	"github.com/haivivi/speechprint/pkg/audio/fbank"
	"github.com/haivivi/speechprint/pkg/tensor"
)

// FeatureExtractor turns raw float32 samples into a 2-D float32 feature
// tensor shaped [T, F] (frames by feature bins).
type FeatureExtractor interface {
	ComputeFbank(samples []float32) (*tensor.Tensor, error)
}

// FeatureFunc adapts a function to a FeatureExtractor.
type FeatureFunc func(samples []float32) (*tensor.Tensor, error)

// ComputeFbank implements [FeatureExtractor].
func (f FeatureFunc) ComputeFbank(samples []float32) (*tensor.Tensor, error) { return f(samples) }

// FbankFeatures computes Kaldi-style log mel filterbank features.
type FbankFeatures struct {
	ext  *fbank.Extractor
	cmvn bool
}

// FbankOption configures FbankFeatures.
type FbankOption func(*FbankFeatures)

// WithCMVN enables per-utterance mean normalization of the features, as
// expected by WeSpeaker and 3D-Speaker exports.
func WithCMVN(enabled bool) FbankOption {
	return func(f *FbankFeatures) { f.cmvn = enabled }
}

// NewFbankFeatures creates a filterbank front-end with cfg.
func NewFbankFeatures(cfg fbank.Config, opts ...FbankOption) (*FbankFeatures, error) {
	ext, err := fbank.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("speaker: %w", err)
	}
	f := &FbankFeatures{ext: ext}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// DefaultFeatures returns 80-bin 16 kHz fbank features without CMVN.
func DefaultFeatures() *FbankFeatures {
	f, err := NewFbankFeatures(fbank.DefaultConfig())
	if err != nil {
		panic(err)
	}
	return f
}

// ComputeFbank implements [FeatureExtractor].
func (f *FbankFeatures) ComputeFbank(samples []float32) (*tensor.Tensor, error) {
	feats, err := f.ext.Extract(samples)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeatureExtraction, err)
	}
	if f.cmvn {
		fbank.CMVN(feats, false)
	}
	rows, cols := int64(len(feats)), int64(f.ext.Config().NumMels)
	return tensor.NewFloat32(tensor.Shape{rows, cols}, fbank.Flatten(feats))
}

// MinSamples returns the shortest input that yields at least one frame.
func (f *FbankFeatures) MinSamples() int { return f.ext.Config().WindowSize }
