package pipeline

import (
	"time"

	"github.com/haivivi/speechprint/pkg/speaker"
)

// Segment is a run of consecutive speech frames.
type Segment struct {
	// Start is the sequence number of the first speech frame, End the
	// sequence number one past the last.
	Start uint64 `json:"start" yaml:"start" msgpack:"start"`
	End   uint64 `json:"end" yaml:"end" msgpack:"end"`

	StartTime time.Duration `json:"start_time" yaml:"start_time" msgpack:"start_time"`
	EndTime   time.Duration `json:"end_time" yaml:"end_time" msgpack:"end_time"`

	Frames          int     `json:"frames" yaml:"frames" msgpack:"frames"`
	MeanProbability float32 `json:"mean_probability" yaml:"mean_probability" msgpack:"mean_probability"`

	// Embedding is the L2-normalized mean of the frame embeddings, nil when
	// no frame in the segment was embedded.
	Embedding []float32 `json:"embedding,omitempty" yaml:"embedding,omitempty" msgpack:"embedding,omitempty"`

	// Label is the voice label of Embedding when a Labeler is configured.
	Label string `json:"label,omitempty" yaml:"label,omitempty" msgpack:"label,omitempty"`

	// Err is set when Embedding could not be labeled.
	Err error `json:"-" yaml:"-" msgpack:"-"`
}

// Duration returns the segment length.
func (s Segment) Duration() time.Duration { return s.EndTime - s.StartTime }

// SegmenterOption configures a Segmenter.
type SegmenterOption func(*Segmenter)

// WithMinSilence sets how many consecutive non-speech frames close a
// segment. Shorter gaps are bridged. Default: 1.
func WithMinSilence(n int) SegmenterOption {
	return func(s *Segmenter) {
		if n > 0 {
			s.minSilence = n
		}
	}
}

// WithMinSpeech drops segments with fewer than n speech frames. Default: 1.
func WithMinSpeech(n int) SegmenterOption {
	return func(s *Segmenter) {
		if n > 0 {
			s.minSpeech = n
		}
	}
}

// WithLabeler attaches a voice label to every segment with an embedding.
func WithLabeler(l *speaker.Labeler) SegmenterOption {
	return func(s *Segmenter) { s.labeler = l }
}

// Segmenter folds a result stream into speech segments. It is not safe for
// concurrent use.
type Segmenter struct {
	minSilence int
	minSpeech  int
	labeler    *speaker.Labeler

	open    bool
	cur     Segment
	probSum float64
	embs    [][]float32
	gap     int
}

// NewSegmenter creates a Segmenter.
func NewSegmenter(opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{minSilence: 1, minSpeech: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Feed adds one result. It returns a segment when r closes one.
func (s *Segmenter) Feed(r Result) (*Segment, bool) {
	if r.Speech {
		if !s.open {
			s.open = true
			s.cur = Segment{Start: r.Seq, StartTime: r.Offset}
			s.probSum = 0
			s.embs = s.embs[:0]
		}
		s.gap = 0
		s.cur.End = r.Seq + 1
		s.cur.EndTime = r.Offset + r.Duration
		s.cur.Frames++
		s.probSum += float64(r.Probability)
		if r.Embedding != nil {
			s.embs = append(s.embs, r.Embedding)
		}
		return nil, false
	}

	if !s.open {
		return nil, false
	}
	s.gap++
	if s.gap < s.minSilence {
		return nil, false
	}
	return s.close()
}

// Flush closes any open segment, typically at end of stream.
func (s *Segmenter) Flush() (*Segment, bool) {
	if !s.open {
		return nil, false
	}
	return s.close()
}

func (s *Segmenter) close() (*Segment, bool) {
	s.open = false
	s.gap = 0
	if s.cur.Frames < s.minSpeech {
		return nil, false
	}
	seg := s.cur
	seg.MeanProbability = float32(s.probSum / float64(seg.Frames))
	if len(s.embs) > 0 {
		seg.Embedding = speaker.Average(s.embs)
		if s.labeler != nil {
			seg.Label, seg.Err = s.labeler.Label(seg.Embedding)
		}
	}
	return &seg, true
}

// Segments is a batch helper that segments a whole result slice.
func Segments(results []Result, opts ...SegmenterOption) []Segment {
	s := NewSegmenter(opts...)
	var out []Segment
	for _, r := range results {
		if seg, ok := s.Feed(r); ok {
			out = append(out, *seg)
		}
	}
	if seg, ok := s.Flush(); ok {
		out = append(out, *seg)
	}
	return out
}
