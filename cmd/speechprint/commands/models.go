package commands

import (
	"errors"
	"fmt"

	"github.com/haivivi/speechprint/pkg/audio/fbank"
	"github.com/haivivi/speechprint/pkg/audio/frame"
	"github.com/haivivi/speechprint/pkg/cli"
	"github.com/haivivi/speechprint/pkg/pipeline"
	"github.com/haivivi/speechprint/pkg/speaker"
	"github.com/haivivi/speechprint/pkg/vad"
)

// embeddingRate is the input rate of the speaker embedding front-end.
const embeddingRate = 16000

// labelBits truncates voice labels when set (--label-bits).
var labelBits int

func openDetector(cfg *cli.Config) (*vad.Detector, error) {
	return vad.New(cfg.Resolve(cfg.VAD.Model), cfg.VAD.SampleRate, vad.WithLogger(logger))
}

// openExtractor returns nil when embedding is disabled.
func openExtractor(cfg *cli.Config) (*speaker.Extractor, error) {
	if !cfg.EmbedEnabled() {
		return nil, nil
	}
	if cfg.VAD.SampleRate != embeddingRate {
		return nil, fmt.Errorf("embedding needs vad.sample_rate %d, got %d", embeddingRate, cfg.VAD.SampleRate)
	}
	features, err := speaker.NewFbankFeatures(fbank.DefaultConfig(), speaker.WithCMVN(cfg.Embedding.CMVN))
	if err != nil {
		return nil, err
	}
	size := cfg.VAD.FrameSize
	if size == 0 {
		size = frame.Size(cfg.VAD.SampleRate)
	}
	if n := max(cfg.Embedding.Context, 1) * size; n < features.MinSamples() {
		return nil, fmt.Errorf("embedding.context of %d samples is shorter than the %d sample filterbank window",
			n, features.MinSamples())
	}
	return speaker.New(cfg.Resolve(cfg.Embedding.Model),
		speaker.WithFeatures(features),
		speaker.WithLogger(logger),
	)
}

func requireExtractor(cfg *cli.Config) (*speaker.Extractor, error) {
	if cfg.Embedding.Model == "" {
		return nil, errors.New("embedding.model is not configured")
	}
	on := true
	cfg.Pipeline.Embed = &on
	return openExtractor(cfg)
}

func pipelineOptions(cfg *cli.Config) []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithThreshold(cfg.Pipeline.Threshold),
		pipeline.WithResetAfterSilence(cfg.Pipeline.ResetAfterSilence),
		pipeline.WithEmbedContext(cfg.Embedding.Context),
		pipeline.WithLogger(logger),
	}
}

func newPipeline(cfg *cli.Config, det pipeline.Detector, ext *speaker.Extractor, extra ...pipeline.Option) *pipeline.Pipeline {
	var emb pipeline.Embedder
	if ext != nil {
		emb = ext
	}
	return pipeline.New(det, emb, append(pipelineOptions(cfg), extra...)...)
}

// newLabeler returns nil when labels are disabled or dim is unknown.
func newLabeler(cfg *cli.Config, dim int) (*speaker.Labeler, error) {
	if cfg.Embedding.LabelBits == 0 || dim == 0 {
		return nil, nil
	}
	return speaker.NewLabeler(dim, cfg.Embedding.LabelBits, cfg.Embedding.LabelSeed)
}

// labelOf returns the voice label of emb, truncated to --label-bits. It
// returns "" when l or emb is nil.
func labelOf(l *speaker.Labeler, emb []float32) (string, error) {
	if l == nil || emb == nil {
		return "", nil
	}
	label, err := l.Label(emb)
	if err != nil {
		return "", err
	}
	if labelBits == 0 || labelBits >= l.Bits() {
		return label, nil
	}
	return speaker.Truncate(label, labelBits)
}

func validateLabelBits() error {
	if labelBits < 0 || labelBits%4 != 0 {
		return fmt.Errorf("--label-bits must be a non-negative multiple of 4, got %d", labelBits)
	}
	return nil
}
