// Package pipeline composes a voice activity detector and a speaker
// embedding extractor into a per-frame processing loop.
//
// For each frame, in arrival order, the detector produces a speech
// probability; when it reaches the threshold the frame is also embedded.
// Every frame yields exactly one [Result]. Frames are never reordered or
// batched, and a failure only affects the frame it occurred on.
//
//	p := pipeline.New(det, ext, pipeline.WithThreshold(0.6))
//	for r := range p.Run(ctx, frames) {
//	    if r.Speech {
//	        fmt.Println(r.Seq, r.Probability, len(r.Embedding))
//	    }
//	}
//
// A Pipeline owns the recurrent state of its detector and is therefore not
// safe for concurrent use; run one Pipeline per audio stream.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haivivi/speechprint/pkg/audio/frame"
)

// DefaultThreshold is the speech probability at which a frame counts as
// speech.
const DefaultThreshold = 0.5

// Detector is the voice activity stage. *vad.Detector implements it.
type Detector interface {
	Compute(samples []float32) (float32, error)
	Reset()
}

// Embedder is the speaker embedding stage. *speaker.Extractor implements it.
type Embedder interface {
	Compute(samples []float32) ([]float32, error)
}

// Result is the outcome of one frame.
type Result struct {
	Seq         uint64        `json:"seq" yaml:"seq" msgpack:"seq"`
	Offset      time.Duration `json:"offset" yaml:"offset" msgpack:"offset"`
	Duration    time.Duration `json:"duration" yaml:"duration" msgpack:"duration"`
	Probability float32       `json:"probability" yaml:"probability" msgpack:"probability"`
	Speech      bool          `json:"speech" yaml:"speech" msgpack:"speech"`
	Embedding   []float32     `json:"embedding,omitempty" yaml:"embedding,omitempty" msgpack:"embedding,omitempty"`

	// Reset reports that the detector state was cleared after this frame.
	Reset bool `json:"reset,omitempty" yaml:"reset,omitempty" msgpack:"reset,omitempty"`

	Err error `json:"-" yaml:"-" msgpack:"-"`
}

// Timing holds the wall time spent in each stage for one frame.
type Timing struct {
	VAD   time.Duration
	Embed time.Duration
}

// Observer is notified after every processed frame. It is called on the
// goroutine that processes the frame and must not block.
type Observer interface {
	ObserveResult(r Result, t Timing)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(r Result, t Timing)

// ObserveResult implements [Observer].
func (f ObserverFunc) ObserveResult(r Result, t Timing) { f(r, t) }

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithThreshold sets the speech threshold. Values outside [0, 1] are
// ignored. Default: [DefaultThreshold].
func WithThreshold(th float32) Option {
	return func(p *Pipeline) {
		if th >= 0 && th <= 1 {
			p.threshold = th
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver registers an observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// WithResetAfterSilence resets the detector after n consecutive non-speech
// frames so stale context does not bias the next utterance. 0 disables.
func WithResetAfterSilence(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.resetAfter = n
		}
	}
}

// WithEmbedding enables or disables the embedding stage. Default: enabled
// when an Embedder is given.
func WithEmbedding(enabled bool) Option {
	return func(p *Pipeline) { p.embed = enabled }
}

// WithEmbedContext embeds the last n frames (the current one included)
// instead of the current frame alone. Embedding models need more audio than
// one detector frame holds; n=16 gives ~0.5 s at 16 kHz. Default: 1.
func WithEmbedContext(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.contextFrames = n
		}
	}
}

// Pipeline runs frames through a Detector and an optional Embedder.
type Pipeline struct {
	det           Detector
	emb           Embedder
	threshold     float32
	logger        *slog.Logger
	observers     []Observer
	resetAfter    int
	embed         bool
	contextFrames int

	silent  int
	context [][]float32
}

// New creates a Pipeline. emb may be nil, which disables embedding.
func New(det Detector, emb Embedder, opts ...Option) *Pipeline {
	p := &Pipeline{
		det:           det,
		emb:           emb,
		threshold:     DefaultThreshold,
		logger:        slog.Default(),
		embed:         true,
		contextFrames: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.emb == nil {
		p.embed = false
	}
	return p
}

// Threshold returns the speech threshold.
func (p *Pipeline) Threshold() float32 { return p.threshold }

// Process runs one frame through the pipeline.
func (p *Pipeline) Process(f frame.Frame) Result {
	r := Result{Seq: f.Seq(), Offset: f.Offset(), Duration: f.Duration()}
	samples := f.Samples()
	p.remember(samples)

	var timing Timing
	start := time.Now()
	prob, err := p.det.Compute(samples)
	timing.VAD = time.Since(start)
	if err != nil {
		r.Err = fmt.Errorf("pipeline: frame %d: vad: %w", r.Seq, err)
		p.logger.Warn("pipeline: detector failed", "seq", r.Seq, "error", err)
		p.notify(r, timing)
		return r
	}

	r.Probability = prob
	r.Speech = prob >= p.threshold
	if r.Speech {
		p.silent = 0
		if p.embed {
			start = time.Now()
			emb, err := p.emb.Compute(p.window(samples))
			timing.Embed = time.Since(start)
			if err != nil {
				r.Err = fmt.Errorf("pipeline: frame %d: embedding: %w", r.Seq, err)
				p.logger.Warn("pipeline: embedding failed", "seq", r.Seq, "error", err)
			} else {
				r.Embedding = emb
			}
		}
	} else {
		p.silent++
		if p.resetAfter > 0 && p.silent >= p.resetAfter {
			p.det.Reset()
			p.silent = 0
			p.context = p.context[:0]
			r.Reset = true
			p.logger.Debug("pipeline: detector reset after silence", "seq", r.Seq, "frames", p.resetAfter)
		}
	}

	p.notify(r, timing)
	return r
}

// Reset clears the detector state and the pipeline's own counters. Call it
// before feeding an unrelated stream.
func (p *Pipeline) Reset() {
	p.det.Reset()
	p.silent = 0
	p.context = p.context[:0]
}

// Run processes frames from in on a new goroutine and delivers one result
// per frame on the returned channel, in order. The channel is closed when in
// is closed or ctx is done. Cancellation is observed between frames only.
func (p *Pipeline) Run(ctx context.Context, in <-chan frame.Frame) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case f, ok := <-in:
				if !ok {
					return
				}
				r := p.Process(f)
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Collect processes frames synchronously and returns their results.
func (p *Pipeline) Collect(frames []frame.Frame) []Result {
	results := make([]Result, 0, len(frames))
	for _, f := range frames {
		results = append(results, p.Process(f))
	}
	return results
}

func (p *Pipeline) notify(r Result, t Timing) {
	for _, o := range p.observers {
		o.ObserveResult(r, t)
	}
}

func (p *Pipeline) remember(samples []float32) {
	if p.contextFrames <= 1 {
		return
	}
	if len(p.context) == p.contextFrames {
		copy(p.context, p.context[1:])
		p.context = p.context[:len(p.context)-1]
	}
	p.context = append(p.context, samples)
}

// window returns the samples handed to the embedder for the current frame.
func (p *Pipeline) window(current []float32) []float32 {
	if p.contextFrames <= 1 || len(p.context) == 0 {
		return current
	}
	var n int
	for _, s := range p.context {
		n += len(s)
	}
	out := make([]float32, 0, n)
	for _, s := range p.context {
		out = append(out, s...)
	}
	return out
}
