package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/haivivi/speechprint/pkg/cli"
)

var (
	// Global flags
	configPath   string
	verbose      bool
	formatOutput string
	outputFile   string

	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "speechprint",
	Short: "Voice activity detection and speaker embeddings",
	Long: `speechprint - streaming voice activity detection and speaker embeddings.

Audio is split into 32 ms frames (512 samples at 16 kHz, 256 at 8 kHz) and
run through a recurrent VAD model. Speech frames are optionally passed to a
speaker embedding model.

Configuration is read from ~/.speechprint/config.yaml, or from --config.

Examples:
  # Per-frame speech probabilities as a table
  speechprint run meeting.wav --format table

  # Speech segments with voice labels
  speechprint run meeting.wav --segments

  # Speaker similarity of two recordings
  speechprint compare alice.wav bob.wav

  # Streaming endpoint
  speechprint serve --addr :8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = cli.NewLogger(cmd.ErrOrStderr(), verbose)
		slog.SetDefault(logger)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which serve uses for
// shutdown.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.speechprint/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&formatOutput, "format", "yaml", "output format: yaml, json, msgpack, table")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
}

func loadConfig() (*cli.Config, error) {
	cfg, err := cli.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if p := cfg.Path(); p != "" {
		logger.Debug("config loaded", "path", p)
	}
	return cfg, nil
}

func printResult(cmd *cobra.Command, v any) error {
	format, err := cli.ParseFormat(formatOutput)
	if err != nil {
		return err
	}
	opts := cli.OutputOptions{Format: format, File: outputFile}
	if outputFile == "" {
		opts.Writer = cmd.OutOrStdout()
	}
	if err := cli.Output(v, opts); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}
