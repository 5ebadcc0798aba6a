package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zoonderkins/augment-lite-mcp/internal/cache"
	"github.com/zoonderkins/augment-lite-mcp/internal/core"
	"github.com/zoonderkins/augment-lite-mcp/internal/fileops"
	"github.com/zoonderkins/augment-lite-mcp/internal/index"
	"github.com/zoonderkins/augment-lite-mcp/internal/project"
	"github.com/zoonderkins/augment-lite-mcp/internal/search"
	"github.com/zoonderkins/augment-lite-mcp/internal/symbols"
)

// ProjectScope selects the target project. Empty or "auto" resolves via
// working_dir, then the active project.
type ProjectScope struct {
	Project    string `json:"project,omitempty" jsonschema:"project name, id, or path; empty or 'auto' resolves from working_dir or the active project"`
	WorkingDir string `json:"working_dir,omitempty" jsonschema:"caller's working directory, used to auto-resolve the project"`
}

// RagSearchInput is the rag_search input.
type RagSearchInput struct {
	ProjectScope
	Query     string `json:"query" jsonschema:"the search query"`
	K         int    `json:"k,omitempty" jsonschema:"maximum number of candidates, 1-50, default 10"`
	UseVector *bool  `json:"use_vector,omitempty" jsonschema:"include vector similarity, default true"`
	AutoIndex *bool  `json:"auto_index,omitempty" jsonschema:"catch the index up before searching, default true"`
}

// RagSearchOutput is the rag_search result.
type RagSearchOutput struct {
	Project    string           `json:"project" jsonschema:"resolved project id"`
	Candidates []core.Candidate `json:"candidates" jsonschema:"retrieved chunks, best first"`
	Degraded   []string         `json:"degraded,omitempty" jsonschema:"reasons parts of the pipeline were skipped"`
	CacheTier  string           `json:"cache_tier,omitempty" jsonschema:"'exact' or 'semantic' when served from cache"`
}

func (s *Server) ragSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input RagSearchInput) (
	*mcp.CallToolResult,
	RagSearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, RagSearchOutput{}, NewInvalidParamsError("query is required")
	}

	resp, err := s.core.Search(ctx, core.SearchRequest{
		Project:    input.Project,
		WorkingDir: input.WorkingDir,
		Query:      input.Query,
		K:          input.K,
		UseVector:  boolOr(input.UseVector, true),
		AutoIndex:  boolOr(input.AutoIndex, true),
	})
	if err != nil {
		return nil, RagSearchOutput{}, MapError(err)
	}

	return nil, RagSearchOutput{
		Project:    resp.Project,
		Candidates: resp.Candidates,
		Degraded:   resp.Degraded,
		CacheTier:  resp.CacheTier,
	}, nil
}

// AnswerGenerateInput is the answer_generate input.
type AnswerGenerateInput struct {
	ProjectScope
	Query      string `json:"query" jsonschema:"the question to answer"`
	K          int    `json:"k,omitempty" jsonschema:"maximum number of candidates, 1-50, default 10"`
	Rerank     bool   `json:"rerank,omitempty" jsonschema:"order candidates with the LLM before answering"`
	Accumulate bool   `json:"accumulate,omitempty" jsonschema:"compose a short cited answer from the candidates"`
}

// AnswerGenerateOutput is the answer_generate result.
type AnswerGenerateOutput struct {
	Project    string           `json:"project"`
	Candidates []core.Candidate `json:"candidates"`
	Answer     string           `json:"answer,omitempty" jsonschema:"generated prose, when accumulate was requested and the LLM answered"`
	Degraded   []string         `json:"degraded,omitempty"`
}

func (s *Server) answerGenerateHandler(ctx context.Context, _ *mcp.CallToolRequest, input AnswerGenerateInput) (
	*mcp.CallToolResult,
	AnswerGenerateOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, AnswerGenerateOutput{}, NewInvalidParamsError("query is required")
	}

	resp, err := s.core.Answer(ctx, core.AnswerRequest{
		Project:    input.Project,
		WorkingDir: input.WorkingDir,
		Query:      input.Query,
		K:          input.K,
		Rerank:     input.Rerank,
		Accumulate: input.Accumulate,
	})
	if err != nil {
		return nil, AnswerGenerateOutput{}, MapError(err)
	}

	return nil, AnswerGenerateOutput{
		Project:    resp.Project,
		Candidates: resp.Candidates,
		Answer:     resp.Answer,
		Degraded:   resp.Degraded,
	}, nil
}

// IndexStatusInput selects the project to inspect.
type IndexStatusInput struct {
	ProjectScope
}

func (s *Server) indexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexStatusInput) (
	*mcp.CallToolResult,
	core.StatusResponse,
	error,
) {
	status, err := s.core.Status(ctx, input.Project, input.WorkingDir)
	if err != nil {
		return nil, core.StatusResponse{}, MapError(err)
	}
	return nil, *status, nil
}

// IndexRebuildInput is the index_rebuild input.
type IndexRebuildInput struct {
	ProjectScope
	DropVectors bool `json:"drop_vectors,omitempty" jsonschema:"also delete the persisted vector files before re-indexing"`
}

func (s *Server) indexRebuildHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexRebuildInput) (
	*mcp.CallToolResult,
	index.Stats,
	error,
) {
	stats, err := s.core.Rebuild(ctx, input.Project, input.WorkingDir, input.DropVectors)
	if err != nil {
		return nil, index.Stats{}, MapError(err)
	}
	return nil, stats, nil
}

// ProjectAddInput is the project_add input.
type ProjectAddInput struct {
	Path string `json:"path" jsonschema:"absolute path of the working tree to register"`
	Name string `json:"name,omitempty" jsonschema:"project name; defaults to the directory basename"`
}

func (s *Server) projectAddHandler(_ context.Context, _ *mcp.CallToolRequest, input ProjectAddInput) (
	*mcp.CallToolResult,
	project.Project,
	error,
) {
	if input.Path == "" {
		return nil, project.Project{}, NewInvalidParamsError("path is required")
	}
	p, err := s.core.ProjectAdd(input.Path, input.Name)
	if err != nil {
		return nil, project.Project{}, MapError(err)
	}
	return nil, p, nil
}

// ProjectSelectInput names one project.
type ProjectSelectInput struct {
	Project string `json:"project" jsonschema:"project name, id, or path"`
}

func (s *Server) projectActivateHandler(_ context.Context, _ *mcp.CallToolRequest, input ProjectSelectInput) (
	*mcp.CallToolResult,
	project.Project,
	error,
) {
	p, err := s.core.ProjectActivate(input.Project)
	if err != nil {
		return nil, project.Project{}, MapError(err)
	}
	return nil, p, nil
}

func (s *Server) projectRemoveHandler(ctx context.Context, _ *mcp.CallToolRequest, input ProjectSelectInput) (
	*mcp.CallToolResult,
	project.Project,
	error,
) {
	p, err := s.core.ProjectRemove(ctx, input.Project)
	if err != nil {
		return nil, project.Project{}, MapError(err)
	}
	return nil, p, nil
}

// ProjectListInput is empty.
type ProjectListInput struct{}

// ProjectListOutput is the project_list result.
type ProjectListOutput struct {
	Projects []project.Project `json:"projects"`
	Active   string            `json:"active,omitempty" jsonschema:"id of the active project"`
}

func (s *Server) projectListHandler(_ context.Context, _ *mcp.CallToolRequest, _ ProjectListInput) (
	*mcp.CallToolResult,
	ProjectListOutput,
	error,
) {
	projects, active := s.core.ProjectList()
	return nil, ProjectListOutput{Projects: projects, Active: active}, nil
}

// CacheClearInput is the cache_clear input.
type CacheClearInput struct {
	ProjectScope
	Scope string `json:"scope,omitempty" jsonschema:"'all', 'project', or 'expired'; default 'all'"`
}

// CacheClearOutput reports how many entries were removed.
type CacheClearOutput struct {
	Removed int `json:"removed"`
}

func (s *Server) cacheClearHandler(ctx context.Context, _ *mcp.CallToolRequest, input CacheClearInput) (
	*mcp.CallToolResult,
	CacheClearOutput,
	error,
) {
	scope := cache.Scope(input.Scope)
	if input.Scope == "" {
		scope = cache.ScopeAll
	}
	removed, err := s.core.CacheClear(ctx, scope, input.Project, input.WorkingDir)
	if err != nil {
		return nil, CacheClearOutput{}, MapError(err)
	}
	return nil, CacheClearOutput{Removed: removed}, nil
}

// CacheStatusInput is empty; the cache is shared across projects.
type CacheStatusInput struct{}

// CacheStatusOutput is the cache_status result.
type CacheStatusOutput struct {
	Entries      int    `json:"entries"`
	ExactHits    uint64 `json:"exactHits"`
	SemanticHits uint64 `json:"semanticHits"`
	Misses       uint64 `json:"misses"`
}

func (s *Server) cacheStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ CacheStatusInput) (
	*mcp.CallToolResult,
	CacheStatusOutput,
	error,
) {
	st := s.core.CacheStatus()
	return nil, CacheStatusOutput{
		Entries:      st.Entries,
		ExactHits:    st.ExactHits,
		SemanticHits: st.SemanticHits,
		Misses:       st.Misses,
	}, nil
}

// CodeSymbolsInput is the code_symbols input.
type CodeSymbolsInput struct {
	ProjectScope
	Path string `json:"path" jsonschema:"file path relative to the project root"`
}

// SymbolsOutput lists declarations.
type SymbolsOutput struct {
	Symbols []symbols.Symbol `json:"symbols"`
}

func (s *Server) codeSymbolsHandler(ctx context.Context, _ *mcp.CallToolRequest, input CodeSymbolsInput) (
	*mcp.CallToolResult,
	SymbolsOutput,
	error,
) {
	if input.Path == "" {
		return nil, SymbolsOutput{}, NewInvalidParamsError("path is required")
	}
	syms, err := s.core.Symbols(ctx, input.Project, input.WorkingDir, input.Path)
	if err != nil {
		return nil, SymbolsOutput{}, MapError(err)
	}
	return nil, SymbolsOutput{Symbols: syms}, nil
}

// CodeFindSymbolInput is the code_find_symbol input.
type CodeFindSymbolInput struct {
	ProjectScope
	Name string `json:"name" jsonschema:"exact symbol name to find"`
}

func (s *Server) codeFindSymbolHandler(ctx context.Context, _ *mcp.CallToolRequest, input CodeFindSymbolInput) (
	*mcp.CallToolResult,
	SymbolsOutput,
	error,
) {
	if input.Name == "" {
		return nil, SymbolsOutput{}, NewInvalidParamsError("name is required")
	}
	syms, err := s.core.FindSymbol(ctx, input.Project, input.WorkingDir, input.Name)
	if err != nil {
		return nil, SymbolsOutput{}, MapError(err)
	}
	return nil, SymbolsOutput{Symbols: syms}, nil
}

// CodeReferencesInput is the code_references input.
type CodeReferencesInput struct {
	ProjectScope
	Name       string `json:"name" jsonschema:"symbol name whose references to find"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"result cap, default 200"`
}

// ReferencesOutput lists identifier occurrences.
type ReferencesOutput struct {
	References []symbols.Reference `json:"references"`
}

func (s *Server) codeReferencesHandler(ctx context.Context, _ *mcp.CallToolRequest, input CodeReferencesInput) (
	*mcp.CallToolResult,
	ReferencesOutput,
	error,
) {
	if input.Name == "" {
		return nil, ReferencesOutput{}, NewInvalidParamsError("name is required")
	}
	refs, err := s.core.FindReferences(ctx, input.Project, input.WorkingDir, input.Name, input.MaxResults)
	if err != nil {
		return nil, ReferencesOutput{}, MapError(err)
	}
	return nil, ReferencesOutput{References: refs}, nil
}

// SearchPatternInput is the search_pattern input.
type SearchPatternInput struct {
	ProjectScope
	Pattern    string `json:"pattern" jsonschema:"Go regular expression"`
	PathGlob   string `json:"path_glob,omitempty" jsonschema:"doublestar glob restricting which files are searched"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"result cap, default 100"`
}

// PatternMatchOutput is one matching line.
type PatternMatchOutput struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// SearchPatternOutput lists matches.
type SearchPatternOutput struct {
	Matches []PatternMatchOutput `json:"matches"`
}

func (s *Server) searchPatternHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchPatternInput) (
	*mcp.CallToolResult,
	SearchPatternOutput,
	error,
) {
	if input.Pattern == "" {
		return nil, SearchPatternOutput{}, NewInvalidParamsError("pattern is required")
	}
	matches, err := s.core.PatternSearch(ctx, input.Project, input.WorkingDir,
		input.Pattern, input.PathGlob, input.MaxResults)
	if err != nil {
		return nil, SearchPatternOutput{}, MapError(err)
	}
	return nil, SearchPatternOutput{Matches: toPatternMatches(matches)}, nil
}

func toPatternMatches(in []search.PatternMatch) []PatternMatchOutput {
	out := make([]PatternMatchOutput, 0, len(in))
	for _, m := range in {
		out = append(out, PatternMatchOutput(m))
	}
	return out
}

// FileReadInput is the file_read input.
type FileReadInput struct {
	ProjectScope
	Path      string `json:"path" jsonschema:"file path relative to the project root"`
	StartLine int    `json:"start_line,omitempty" jsonschema:"1-indexed first line; 0 means start of file"`
	EndLine   int    `json:"end_line,omitempty" jsonschema:"1-indexed last line, inclusive; 0 means end of file"`
}

// FileReadOutput is the file_read result.
type FileReadOutput struct {
	Path       string `json:"path"`
	StartLine  int    `json:"startLine"`
	EndLine    int    `json:"endLine"`
	TotalLines int    `json:"totalLines"`
	Content    string `json:"content"`
}

func (s *Server) fileReadHandler(_ context.Context, _ *mcp.CallToolRequest, input FileReadInput) (
	*mcp.CallToolResult,
	FileReadOutput,
	error,
) {
	if input.Path == "" {
		return nil, FileReadOutput{}, NewInvalidParamsError("path is required")
	}
	res, err := s.core.FileRead(input.Project, input.WorkingDir, input.Path, input.StartLine, input.EndLine)
	if err != nil {
		return nil, FileReadOutput{}, MapError(err)
	}
	return nil, FileReadOutput{
		Path:       res.Path,
		StartLine:  res.StartLine,
		EndLine:    res.EndLine,
		TotalLines: res.TotalLine,
		Content:    res.Content,
	}, nil
}

// FileListInput is the file_list input.
type FileListInput struct {
	ProjectScope
	Path string `json:"path,omitempty" jsonschema:"directory relative to the project root; empty lists the root"`
}

// FileListEntry is one directory entry.
type FileListEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
}

// FileListOutput lists a directory.
type FileListOutput struct {
	Entries []FileListEntry `json:"entries"`
}

func (s *Server) fileListHandler(_ context.Context, _ *mcp.CallToolRequest, input FileListInput) (
	*mcp.CallToolResult,
	FileListOutput,
	error,
) {
	entries, err := s.core.FileList(input.Project, input.WorkingDir, input.Path)
	if err != nil {
		return nil, FileListOutput{}, MapError(err)
	}
	return nil, FileListOutput{Entries: toFileEntries(entries)}, nil
}

func toFileEntries(in []fileops.ListEntry) []FileListEntry {
	out := make([]FileListEntry, 0, len(in))
	for _, e := range in {
		out = append(out, FileListEntry(e))
	}
	return out
}

// FileFindInput is the file_find input.
type FileFindInput struct {
	ProjectScope
	Pattern    string `json:"pattern" jsonschema:"doublestar glob like **/*.go"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"result cap, default 500"`
}

// FileFindOutput lists matching paths.
type FileFindOutput struct {
	Paths []string `json:"paths"`
}

func (s *Server) fileFindHandler(ctx context.Context, _ *mcp.CallToolRequest, input FileFindInput) (
	*mcp.CallToolResult,
	FileFindOutput,
	error,
) {
	if input.Pattern == "" {
		return nil, FileFindOutput{}, NewInvalidParamsError("pattern is required")
	}
	paths, err := s.core.FileFind(ctx, input.Project, input.WorkingDir, input.Pattern, input.MaxResults)
	if err != nil {
		return nil, FileFindOutput{}, MapError(err)
	}
	return nil, FileFindOutput{Paths: paths}, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
