package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/speechprint/cmd/speechprint/internal/build"
	"github.com/haivivi/speechprint/pkg/inference"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("format") {
			info := build.Current()
			info.Engines = inference.Engines()
			return printResult(cmd, info)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, build.String())
		if verbose {
			info := build.Current()
			fmt.Fprintf(out, "  go:      %s\n", info.Go)
			fmt.Fprintf(out, "  engines: %v\n", inference.Engines())
			if cfg, err := loadConfig(); err == nil && cfg.Path() != "" {
				fmt.Fprintf(out, "  config:  %s\n", cfg.Path())
			} else if err != nil {
				fmt.Fprintf(out, "  config:  (unavailable: %v)\n", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
