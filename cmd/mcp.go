package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Seasonsling/clarion/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for AI assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP-capable assistants read and mutate plans natively.
Configure with:

  {
    "mcpServers": {
      "clarion": { "command": "clarion", "args": ["mcp"] }
    }
  }

Available tools: clarion_list_plans, clarion_show_plan,
clarion_update_task, clarion_apply_operations, clarion_plan_health`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		return mcp.NewServer(s).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
