// Package server streams PCM audio over WebSocket through the frame
// pipeline and reports per-frame results back to the client.
//
// Endpoints:
//
//	GET /v1/stream?rate=16000&codec=json   WebSocket audio stream
//	GET /metrics                           Prometheus metrics
//	GET /healthz                           liveness check
//
// A client sends binary messages of little-endian PCM16 mono audio at the
// requested rate. The server answers with a "ready" message, then one
// "result" message per frame. Text messages carry control commands:
// {"type":"flush"} processes the buffered tail, {"type":"reset"} clears the
// detector state.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haivivi/speechprint/internal/metrics"
	"github.com/haivivi/speechprint/pkg/audio/frame"
	"github.com/haivivi/speechprint/pkg/pipeline"
)

// StreamPath is the WebSocket endpoint.
const StreamPath = "/v1/stream"

// maxMessageSize bounds one client audio message (about 16 s at 16 kHz).
const maxMessageSize = 512 << 10

// Detector is a per-stream voice activity detector. *vad.Detector
// implements it.
type Detector interface {
	pipeline.Detector
	Close() error
}

// DetectorFactory creates a fresh detector for one stream at the given
// sample rate.
type DetectorFactory func(rate int) (Detector, error)

// Option configures a Server.
type Option func(*Server)

// WithEmbedder shares emb across all streams. It must be safe for
// concurrent use.
func WithEmbedder(emb pipeline.Embedder) Option {
	return func(s *Server) { s.embedder = emb }
}

// WithSampleRate sets the detector rate. Client audio at other rates is
// resampled. The default is 16000.
func WithSampleRate(rate int) Option {
	return func(s *Server) { s.rate = rate }
}

// WithFrameSize sets the frame length in samples. 0 selects the model's
// native size for the rate.
func WithFrameSize(n int) Option {
	return func(s *Server) { s.frameSize = n }
}

// WithPipelineOptions appends options applied to every stream's pipeline.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(s *Server) { s.pipelineOpts = append(s.pipelineOpts, opts...) }
}

// WithMaxStreams limits concurrent streams. 0 means unlimited.
func WithMaxStreams(n int) Option {
	return func(s *Server) { s.maxStreams = n }
}

// WithMetrics records stream and frame metrics in m and serves g on
// /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server handles audio streams.
type Server struct {
	newDetector  DetectorFactory
	embedder     pipeline.Embedder
	rate         int
	frameSize    int
	pipelineOpts []pipeline.Option
	maxStreams   int
	metrics      *metrics.Metrics
	gatherer     prometheus.Gatherer
	logger       *slog.Logger
	upgrader     websocket.Upgrader

	active atomic.Int64

	mu      sync.Mutex
	streams map[*stream]struct{}
	closed  bool
}

// New creates a Server that builds one detector per stream with newDetector.
func New(newDetector DetectorFactory, opts ...Option) (*Server, error) {
	if newDetector == nil {
		return nil, errors.New("server: nil detector factory")
	}
	s := &Server{
		newDetector: newDetector,
		rate:        frame.Rate16K,
		logger:      slog.Default(),
		streams:     make(map[*stream]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 << 10,
			WriteBufferSize: 16 << 10,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := frame.ValidateSampleRate(s.rate); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if s.metrics != nil {
		s.pipelineOpts = append(s.pipelineOpts, pipeline.WithObserver(s.metrics))
	}
	return s, nil
}

// Handler returns the HTTP handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(StreamPath, s.handleStream)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ActiveStreams returns the number of open streams.
func (s *Server) ActiveStreams() int { return int(s.active.Load()) }

// ListenAndServe serves on addr until ctx is done, then shuts down the HTTP
// server and closes open streams.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Close closes every open stream and refuses new ones.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	streams := make([]*stream, 0, len(s.streams))
	for st := range s.streams {
		streams = append(streams, st)
	}
	s.mu.Unlock()

	for _, st := range streams {
		st.shutdown()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok\nstreams: %d\n", s.ActiveStreams())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	params, err := parseStreamParams(r)
	if err != nil {
		s.reject(w, http.StatusBadRequest, err.Error())
		return
	}

	if n := s.active.Add(1); s.maxStreams > 0 && n > int64(s.maxStreams) {
		s.active.Add(-1)
		s.reject(w, http.StatusServiceUnavailable, "too many streams")
		return
	}
	defer s.active.Add(-1)

	st, err := s.newStream(params)
	if err != nil {
		s.logger.Error("server: create stream", "error", err)
		s.reject(w, http.StatusInternalServerError, "create stream failed")
		return
	}
	defer st.release()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("server: upgrade failed", "error", err)
		return
	}
	st.ws = ws

	if !s.track(st) {
		ws.Close()
		return
	}
	defer s.untrack(st)

	if s.metrics != nil {
		done := s.metrics.StreamOpened()
		defer done()
	}
	st.serve()
}

func (s *Server) reject(w http.ResponseWriter, code int, msg string) {
	if s.metrics != nil {
		s.metrics.StreamsRejected.Inc()
	}
	http.Error(w, msg, code)
}

func (s *Server) track(st *stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.streams[st] = struct{}{}
	return true
}

func (s *Server) untrack(st *stream) {
	s.mu.Lock()
	delete(s.streams, st)
	s.mu.Unlock()
}

type streamParams struct {
	rate  int
	codec Codec
}

func parseStreamParams(r *http.Request) (streamParams, error) {
	p := streamParams{rate: frame.Rate16K, codec: CodecJSON}
	q := r.URL.Query()
	if v := q.Get("rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			return p, fmt.Errorf("invalid rate %q", v)
		}
		p.rate = rate
	}
	if v := q.Get("codec"); v != "" {
		c, err := ParseCodec(v)
		if err != nil {
			return p, err
		}
		p.codec = c
	}
	return p, nil
}
