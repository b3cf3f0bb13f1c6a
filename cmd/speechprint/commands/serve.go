package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/speechprint/internal/metrics"
	"github.com/haivivi/speechprint/internal/server"
	"github.com/haivivi/speechprint/pkg/cli"
	"github.com/haivivi/speechprint/pkg/vad"
)

var (
	serveAddr        string
	serveMetricsAddr string
	serveMaxStreams  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the streaming WebSocket endpoint",
	Long: `Serve live audio streams over WebSocket.

Clients connect to /v1/stream?rate=16000&codec=json and send binary PCM16LE
mono messages. Every stream gets its own detector; the embedding model is
shared. Prometheus metrics are served on /metrics, and on --metrics-addr
when given.

Examples:
  speechprint serve --addr :8080
  speechprint serve -c prod.yaml --metrics-addr :9090 --max-streams 64`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}
		if cmd.Flags().Changed("max-streams") {
			cfg.Server.MaxStreams = serveMaxStreams
		}
		return serve(cmd.Context(), cfg, serveMetricsAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "separate listen address for /metrics")
	serveCmd.Flags().IntVar(&serveMaxStreams, "max-streams", 0, "maximum concurrent streams, 0 for unlimited")
	rootCmd.AddCommand(serveCmd)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newServer(cfg *cli.Config, reg *prometheus.Registry) (*server.Server, func(), error) {
	// Fail fast on a bad model path instead of on the first stream.
	det, err := openDetector(cfg)
	if err != nil {
		return nil, nil, err
	}
	det.Close()

	ext, err := openExtractor(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if ext != nil {
			ext.Close()
		}
	}

	modelPath := cfg.Resolve(cfg.VAD.Model)
	factory := func(rate int) (server.Detector, error) {
		d, err := vad.New(modelPath, rate, vad.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	opts := []server.Option{
		server.WithSampleRate(cfg.VAD.SampleRate),
		server.WithFrameSize(cfg.VAD.FrameSize),
		server.WithPipelineOptions(pipelineOptions(cfg)...),
		server.WithMaxStreams(cfg.Server.MaxStreams),
		server.WithMetrics(metrics.New(reg), reg),
		server.WithLogger(logger),
	}
	if ext != nil {
		// Extractor serializes Compute, so one instance serves all streams.
		opts = append(opts, server.WithEmbedder(ext))
	}
	srv, err := server.New(factory, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return srv, cleanup, nil
}

func serve(ctx context.Context, cfg *cli.Config, metricsAddr string) error {
	reg := newRegistry()
	srv, cleanup, err := newServer(cfg, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	})
	if metricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, metricsAddr, reg)
		})
	}
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	hs := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics: listening", "addr", addr)
		errCh <- hs.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}
