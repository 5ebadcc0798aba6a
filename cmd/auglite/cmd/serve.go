package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zoonderkins/augment-lite-mcp/internal/core"
	"github.com/zoonderkins/augment-lite-mcp/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Run the MCP server over stdio until the client disconnects.

Typical client configuration:

  { "command": "auglite", "args": ["serve"] }`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), !noWatch)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Disable filesystem watchers")
	return cmd
}

func runServe(ctx context.Context, watch bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stdout carries the protocol and stderr belongs to the client, so
	// logs go to the rotating file only.
	logger, cleanup, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	c, err := core.New(cfg, logger, core.Options{Watch: watch})
	if err != nil {
		return err
	}
	defer c.Close()

	server, err := mcp.NewServer(c, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx, "stdio")
}
