// Package metrics exposes Prometheus metrics for the frame pipeline and the
// streaming server.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/haivivi/speechprint/pkg/inference"
	"github.com/haivivi/speechprint/pkg/pipeline"
	"github.com/haivivi/speechprint/pkg/speaker"
)

// Metrics contains all Prometheus metrics for speechprint. It implements
// pipeline.Observer.
type Metrics struct {
	// Frame metrics
	FramesProcessed prometheus.Counter
	SpeechFrames    prometheus.Counter
	FrameErrors     *prometheus.CounterVec
	DetectorResets  prometheus.Counter
	Probability     prometheus.Histogram

	// Stage latency
	VADDuration   prometheus.Histogram
	EmbedDuration prometheus.Histogram

	// Stream metrics
	ActiveStreams   prometheus.Gauge
	StreamsCreated  prometheus.Counter
	StreamsRejected prometheus.Counter
	StreamDuration  prometheus.Histogram
	BytesReceived   prometheus.Counter
}

// New creates the metrics and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		FramesProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "speechprint_frames_processed_total",
			Help: "Total number of frames run through the pipeline",
		}),
		SpeechFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "speechprint_speech_frames_total",
			Help: "Total number of frames classified as speech",
		}),
		FrameErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speechprint_frame_errors_total",
			Help: "Total number of frames that failed, by error kind",
		}, []string{"kind"}),
		DetectorResets: f.NewCounter(prometheus.CounterOpts{
			Name: "speechprint_detector_resets_total",
			Help: "Total number of detector resets after silence",
		}),
		Probability: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechprint_speech_probability",
			Help:    "Distribution of per-frame speech probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),
		VADDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechprint_vad_duration_seconds",
			Help:    "Time spent in the detector per frame",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~200ms
		}),
		EmbedDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechprint_embedding_duration_seconds",
			Help:    "Time spent computing a speaker embedding",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Name: "speechprint_active_streams",
			Help: "Current number of open audio streams",
		}),
		StreamsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "speechprint_streams_created_total",
			Help: "Total number of audio streams opened",
		}),
		StreamsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "speechprint_streams_rejected_total",
			Help: "Total number of stream requests refused",
		}),
		StreamDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechprint_stream_duration_seconds",
			Help:    "Duration of audio streams in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		BytesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "speechprint_audio_bytes_received_total",
			Help: "Total PCM bytes received from streams",
		}),
	}
}

// ObserveResult implements pipeline.Observer.
func (m *Metrics) ObserveResult(r pipeline.Result, t pipeline.Timing) {
	m.FramesProcessed.Inc()
	if t.VAD > 0 {
		m.VADDuration.Observe(t.VAD.Seconds())
	}
	if t.Embed > 0 {
		m.EmbedDuration.Observe(t.Embed.Seconds())
	}
	if r.Err != nil {
		m.FrameErrors.WithLabelValues(ErrorKind(r.Err)).Inc()
	}
	if r.Err == nil || r.Speech {
		m.Probability.Observe(float64(r.Probability))
	}
	if r.Speech {
		m.SpeechFrames.Inc()
	}
	if r.Reset {
		m.DetectorResets.Inc()
	}
}

// StreamOpened records a new stream and returns a func that records its end.
func (m *Metrics) StreamOpened() (closed func()) {
	m.StreamsCreated.Inc()
	m.ActiveStreams.Inc()
	start := time.Now()
	return func() {
		m.ActiveStreams.Dec()
		m.StreamDuration.Observe(time.Since(start).Seconds())
	}
}

// ErrorKind classifies a frame error for the kind label.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, speaker.ErrFeatureExtraction):
		return "features"
	case errors.Is(err, inference.ErrInference):
		return "inference"
	default:
		return "other"
	}
}

var _ pipeline.Observer = (*Metrics)(nil)
