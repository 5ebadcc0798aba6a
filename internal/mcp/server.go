package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zoonderkins/augment-lite-mcp/internal/core"
	"github.com/zoonderkins/augment-lite-mcp/pkg/version"
)

// ServerName identifies the server to MCP clients.
const ServerName = "augment-lite"

// Server bridges MCP clients (Claude Code, Cursor) to the core operations.
type Server struct {
	mcp    *mcp.Server
	core   *core.Core
	logger *slog.Logger
}

// NewServer wires the tool surface over an opened core.
func NewServer(c *core.Core, logger *slog.Logger) (*Server, error) {
	if c == nil {
		return nil, errors.New("core is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		core:   c,
		logger: logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve runs the server until ctx is cancelled. Only stdio transport is
// supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport),
		slog.String("version", version.Version))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("mcp_server_stopped",
				slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_search",
		Description: "Hybrid code retrieval over the project index: BM25 keyword search fused with vector similarity. The index catches up automatically before searching. Use this to find relevant code by meaning, not just text.",
	}, s.ragSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "answer_generate",
		Description: "Retrieve candidates and optionally compose a short answer grounded in them, with path:line citations. Falls back to candidates-only when no LLM is configured.",
	}, s.answerGenerateHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report a project's index health: tracked files, chunk counts per store, keyword/vector consistency, and the last catch-up time.",
	}, s.indexStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_rebuild",
		Description: "Drop a project's derived indexes and re-index the working tree from scratch.",
	}, s.indexRebuildHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_add",
		Description: "Register a working tree as a project. The first project becomes active automatically.",
	}, s.projectAddHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_activate",
		Description: "Make one project the default for tools called without a project selector.",
	}, s.projectActivateHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_remove",
		Description: "Unregister a project and delete its derived index data. The working tree is never touched.",
	}, s.projectRemoveHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_list",
		Description: "List registered projects and which one is active.",
	}, s.projectListHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cache_clear",
		Description: "Clear query-cache entries: all of them, one project's, or only expired ones.",
	}, s.cacheClearHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cache_status",
		Description: "Report query-cache entry count and hit/miss counters per tier.",
	}, s.cacheStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "code_symbols",
		Description: "List the declarations (functions, classes, types) of one source file via AST parsing.",
	}, s.codeSymbolsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "code_find_symbol",
		Description: "Find declarations by exact name across the project.",
	}, s.codeFindSymbolHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "code_references",
		Description: "Find identifier references to a name across the project. Matches AST identifiers, so occurrences in comments and strings are excluded.",
	}, s.codeReferencesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_pattern",
		Description: "Regex search over project files, optionally restricted by a path glob. Binary and oversized files are skipped.",
	}, s.searchPatternHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "file_read",
		Description: "Read a project file, optionally a 1-indexed inclusive line range.",
	}, s.fileReadHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "file_list",
		Description: "List one project directory, directories first.",
	}, s.fileListHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "file_find",
		Description: "Find project files matching a doublestar glob like **/*.go.",
	}, s.fileFindHandler)

	s.logger.Info("mcp_tools_registered", slog.Int("count", 17))
}
