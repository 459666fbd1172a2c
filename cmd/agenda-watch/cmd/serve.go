package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfenderov/agenda-watch/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server for agenda monitoring.

The server communicates via stdio and provides these tools:
  - list_sources:   List the configured sources
  - check_source:   Check one source now
  - search_changes: Search detected changes (needs elasticsearch.enabled)
  - get_change:     Get one change event by ID (needs elasticsearch.enabled)

Example:
  agenda-watch serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	var searcher mcp.EventSearcher
	if a.search != nil {
		searcher = a.search
	}
	server := mcp.NewServer(mcp.Config{
		Name:    cfg.MCP.Name,
		Version: cfg.MCP.Version,
		Sources: cfg.Sources,
	}, searcher, a.monitor(a.sink()))

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")

	return server.ServeStdio()
}
