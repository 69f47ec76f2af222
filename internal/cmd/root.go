// Package cmd wires the sentinel CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for sentinel.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Supervisor for autonomous coding-agent sessions",
		Long: `Sentinel supervises long-running, detached coding-agent worker
sessions: it consumes lifecycle signals from the process supervisor,
detects stalls, crashes, error loops and timeouts, and drives failed
sessions back to the last verified checkpoint, escalating to a human
once the retry budget is exhausted.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewCheckpointsCommand())
	cmd.AddCommand(NewOverrideCommand())

	return cmd
}
