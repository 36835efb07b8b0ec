package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildHealthCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print a one-shot health snapshot and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := buildStack(configPath, false)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := st.start(ctx); err != nil {
				return err
			}
			defer st.stop(ctx, 0)

			health, err := st.runtime.Health(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "queue depth:   %d\n", health.QueueDepth)
			fmt.Fprintf(out, "worker busy:   %t\n", health.WorkerBusy)
			fmt.Fprintf(out, "sessions:      %d\n", health.SessionCount)
			if health.ModelCache != nil {
				fmt.Fprintf(out, "model cache:   %d entries, %d bytes (max %.1f GB)\n",
					health.ModelCache.Entries, health.ModelCache.TotalSize, health.ModelCache.MaxSizeGB)
			}
			fmt.Fprintf(out, "mcp servers:\n")
			for _, s := range health.MCPServers {
				state := "disconnected"
				if s.Connected {
					state = "connected"
				}
				fmt.Fprintf(out, "  - %s: %s (%d tools)\n", s.Name, state, s.ToolCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentd.yaml", "Path to YAML configuration file")
	return cmd
}
