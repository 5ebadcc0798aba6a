package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zoonderkins/augment-lite-mcp/internal/core"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	project  string
	limit    int
	format   string // "text", "json"
	noVector bool
	noIndex  bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed project",
		Long: `Search a project with hybrid retrieval: BM25 keyword scores fused with
vector similarity.

Examples:
  auglite search "authentication middleware"
  auglite search "catch-up scheduling" --project myrepo --limit 5
  auglite search "retry policy" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Project name, id, or path (default: auto)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.noVector, "keyword-only", false, "Skip vector similarity (BM25 only)")
	cmd.Flags().BoolVar(&opts.noIndex, "no-index", false, "Search as-is without catching the index up first")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
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

	workingDir, _ := os.Getwd()
	resp, err := c.Search(ctx, core.SearchRequest{
		Project:    opts.project,
		WorkingDir: workingDir,
		Query:      query,
		K:          opts.limit,
		UseVector:  !opts.noVector,
		AutoIndex:  !opts.noIndex,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if len(resp.Candidates) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, cand := range resp.Candidates {
		fmt.Fprintf(out, "%d. %s:%d-%d (score %.3f)\n", i+1,
			cand.Path, cand.StartLine, cand.EndLine, cand.Score)
		for _, line := range strings.Split(strings.TrimRight(cand.Text, "\n"), "\n") {
			fmt.Fprintf(out, "   %s\n", line)
		}
		fmt.Fprintln(out)
	}
	if len(resp.Degraded) > 0 {
		fmt.Fprintf(out, "degraded: %s\n", strings.Join(resp.Degraded, ", "))
	}
	return nil
}
