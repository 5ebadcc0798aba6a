// Package cmd provides the CLI commands for auglite.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zoonderkins/augment-lite-mcp/internal/config"
	"github.com/zoonderkins/augment-lite-mcp/internal/logging"
	"github.com/zoonderkins/augment-lite-mcp/pkg/version"
)

var (
	configPath string
	debugMode  bool
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auglite",
		Short: "Local-first code retrieval MCP server",
		Long: `auglite serves hybrid code retrieval (BM25 + vector fusion) over the
Model Context Protocol for AI coding assistants.

Indexes live under a local data directory; nothing leaves the machine
unless remote embedding or LLM endpoints are configured.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("auglite version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: <data-dir>/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newProjectsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// loadConfig reads configuration and applies the debug flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Server.LogLevel = "debug"
	}
	return cfg, nil
}

// setupLogging initializes structured logging under the data directory.
// stderr mirroring stays off for serve, since MCP clients read stderr.
func setupLogging(cfg *config.Config, stderr bool) (*slog.Logger, func(), error) {
	logCfg := logging.DefaultConfig(cfg.DataDir)
	logCfg.Level = cfg.Server.LogLevel
	logCfg.WriteToStderr = stderr
	return logging.Setup(logCfg)
}
