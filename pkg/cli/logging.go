package cli

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a text logger on w (stderr when nil) at Info level,
// or Debug when verbose is set.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
