// Command speechprint runs voice activity detection and speaker embedding
// over audio files and live WebSocket streams.
//
// Usage:
//
//	speechprint [flags] <command> [args]
//
// Commands:
//
//	run      - Run the frame pipeline over a WAV or raw PCM16 file
//	compare  - Compare speakers across audio files
//	serve    - Serve the streaming WebSocket endpoint
//	version  - Show version information
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/haivivi/speechprint/cmd/speechprint/commands"
	"github.com/haivivi/speechprint/pkg/cli"
	_ "github.com/haivivi/speechprint/pkg/ncnn"
	_ "github.com/haivivi/speechprint/pkg/onnx"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.ExecuteContext(ctx)
	stop()
	if err != nil {
		cli.PrintError("%v", err)
		os.Exit(1)
	}
}
