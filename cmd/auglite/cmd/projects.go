package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zoonderkins/augment-lite-mcp/internal/core"
)

func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage registered projects",
	}

	cmd.AddCommand(newProjectsListCmd())
	cmd.AddCommand(newProjectsAddCmd())
	cmd.AddCommand(newProjectsActivateCmd())
	cmd.AddCommand(newProjectsRemoveCmd())
	return cmd
}

// withCore opens the core, runs fn, and closes it.
func withCore(fn func(c *core.Core) error) error {
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
	return fn(c)
}

func newProjectsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCore(func(c *core.Core) error {
				projects, active := c.ProjectList()
				if len(projects) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No projects registered. Run 'auglite index <path>' first.")
					return nil
				}
				for _, p := range projects {
					marker := " "
					if p.ID == active {
						marker = "*"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s  %s\n", marker, p.ID, p.Name, p.Path)
				}
				return nil
			})
		},
	}
}

func newProjectsAddCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a working tree as a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return withCore(func(c *core.Core) error {
				p, err := c.ProjectAdd(abs, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) at %s\n", p.Name, p.ID, p.Path)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Project name (default: directory basename)")
	return cmd
}

func newProjectsActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <project>",
		Short: "Make one project the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(c *core.Core) error {
				p, err := c.ProjectActivate(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Active project: %s (%s)\n", p.Name, p.ID)
				return nil
			})
		},
	}
}

func newProjectsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <project>",
		Short: "Unregister a project and delete its index data",
		Long: `Unregister a project and delete its derived index data under the data
directory. The working tree itself is never touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(c *core.Core) error {
				p, err := c.ProjectRemove(context.Background(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s)\n", p.Name, p.ID)
				return nil
			})
		},
	}
}
