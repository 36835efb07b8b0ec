// Command agentd is a thin CLI wrapper around the agent runtime library:
// serve starts the queue/session/MCP/orchestrator stack behind an HTTP
// API, health and tool subcommands exercise the same wiring for
// one-shot inspection.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentd",
		Short:        "llama-agent runtime: queue, session store, MCP pool, tool-calling orchestrator",
		Version:      fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildHealthCmd(), buildToolCmd())
	return root
}
