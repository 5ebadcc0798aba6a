package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zoonderkins/augment-lite-mcp/internal/core"
)

func newStatusCmd() *cobra.Command {
	var project string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health for a project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCore(func(c *core.Core) error {
				workingDir, _ := os.Getwd()
				status, err := c.Status(cmd.Context(), project, workingDir)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(status)
				}

				fmt.Fprintf(out, "Project:      %s (%s)\n", status.Project.Name, status.Project.ID)
				fmt.Fprintf(out, "Path:         %s\n", status.Project.Path)
				fmt.Fprintf(out, "Files:        %d\n", status.Files)
				fmt.Fprintf(out, "Chunks:       %d\n", status.Chunks)
				fmt.Fprintf(out, "Keyword docs: %d\n", status.KeywordDocs)
				fmt.Fprintf(out, "Vectors:      %d (%d orphaned)\n", status.Vectors, status.VectorOrphans)
				if status.ConsistencyGap > 0 {
					fmt.Fprintf(out, "Consistency:  %d chunk IDs differ between keyword and vector indexes\n",
						status.ConsistencyGap)
				}
				if !status.LastCatchUp.IsZero() {
					fmt.Fprintf(out, "Last catch-up: %s\n", status.LastCatchUp.Format("2006-01-02 15:04:05"))
				}
				if status.NeedsRebuild {
					fmt.Fprintln(out, "NEEDS REBUILD: run 'auglite index --rebuild'")
				}

				cs := c.CacheStatus()
				fmt.Fprintf(out, "Cache:        %d entries, %d exact hits, %d semantic hits, %d misses\n",
					cs.Entries, cs.ExactHits, cs.SemanticHits, cs.Misses)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name, id, or path (default: auto)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
