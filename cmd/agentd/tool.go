package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildToolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Inspect tools discovered from configured MCP servers",
	}
	cmd.AddCommand(buildToolListCmd())
	return cmd
}

func buildToolListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Connect to configured MCP servers and list their tools",
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

			byServer := st.pool.DiscoverTools()
			out := cmd.OutOrStdout()
			if len(byServer) == 0 {
				fmt.Fprintln(out, "No tools discovered.")
				return nil
			}
			for server, tools := range byServer {
				fmt.Fprintf(out, "%s:\n", server)
				for _, t := range tools {
					fmt.Fprintf(out, "  - %s: %s\n", t.Name, t.Description)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentd.yaml", "Path to YAML configuration file")
	return cmd
}
