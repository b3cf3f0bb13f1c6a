// Package cli provides the shared plumbing of the speechprint command-line
// tool.
//
// This package includes:
//   - Configuration loading (YAML) with defaults and validation
//   - Output formatting (YAML, JSON, MessagePack, table)
//   - Manifest loading for batch commands (YAML/JSON)
//   - Logger construction and well-known paths
//
// Configuration is read from the --config flag or from
// ~/.speechprint/config.yaml when present.
//
// Example usage:
//
//	cfg, err := cli.LoadConfig(path)
//	if err != nil {
//	    return err
//	}
//	cli.Output(results, cli.OutputOptions{Format: cli.FormatJSON})
package cli
