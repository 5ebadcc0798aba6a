package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zoonderkins/augment-lite-mcp/internal/core"
	"github.com/zoonderkins/augment-lite-mcp/internal/index"
)

func newIndexCmd() *cobra.Command {
	var name string
	var rebuild bool
	var dropVectors bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a working tree",
		Long: `Register the given directory (default: current directory) as a project
if needed, then bring its indexes up to date.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			return runIndex(cmd.Context(), cmd, path, name, rebuild, dropVectors)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Project name (default: directory basename)")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Drop existing indexes and re-index from scratch")
	cmd.Flags().BoolVar(&dropVectors, "drop-vectors", false, "With --rebuild, also delete persisted vector files")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path, name string, rebuild, dropVectors bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := setupLogging(cfg, debugMode)
	if err != nil {
		return err
	}
	defer cleanup()

	c, err := core.New(cfg, logger, core.Options{})
	if err != nil {
		return err
	}
	defer c.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	p, err := c.ProjectAdd(abs, name)
	if err != nil {
		return err
	}

	var stats index.Stats
	if rebuild {
		stats, err = c.Rebuild(ctx, p.ID, "", dropVectors)
	} else {
		stats, err = c.CatchUp(ctx, p.ID, "")
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Indexed %s (%s): %d added, %d modified, %d deleted, %d errors in %dms\n",
		p.Name, p.ID, stats.Added, stats.Modified, stats.Deleted, stats.Errors, stats.DurationMs)
	return nil
}
