package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	tbmcp "github.com/valter-silva-au/taskboard/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the task board MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the task board MCP server on stdio",
	Long: `Start the task board MCP server on stdio transport.

The server exposes the board as MCP tools that AI coding assistants can
call: list_tasks, get_task, create_task, duplicate_task, delete_task,
move_task, reorder_task, load_task, save_task, get_metrics, get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Repo == nil || Engine == nil {
			return fmt.Errorf("task repository not initialized")
		}

		srv := tbmcp.NewServer(Repo, Engine, MetricsCalc, AlertEngine, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
