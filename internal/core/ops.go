package core

import (
	"context"

	"github.com/zoonderkins/augment-lite-mcp/internal/fileops"
	"github.com/zoonderkins/augment-lite-mcp/internal/index"
	"github.com/zoonderkins/augment-lite-mcp/internal/search"
	"github.com/zoonderkins/augment-lite-mcp/internal/symbols"
)

// Status reports a project's index health.
func (c *Core) Status(ctx context.Context, selector, workingDir string) (*StatusResponse, error) {
	h, err := c.projectHandle(selector, workingDir)
	if err != nil {
		return nil, err
	}
	return h.Status(ctx)
}

// CatchUp brings a project's indexes up to date with its working tree.
func (c *Core) CatchUp(ctx context.Context, selector, workingDir string) (index.Stats, error) {
	h, err := c.projectHandle(selector, workingDir)
	if err != nil {
		return index.Stats{}, err
	}
	return h.CatchUp(ctx)
}

// Rebuild drops and re-creates a project's indexes.
func (c *Core) Rebuild(ctx context.Context, selector, workingDir string, dropVectors bool) (index.Stats, error) {
	h, err := c.projectHandle(selector, workingDir)
	if err != nil {
		return index.Stats{}, err
	}
	return h.Rebuild(ctx, dropVectors)
}

// Symbols lists the declarations of one file.
func (c *Core) Symbols(ctx context.Context, selector, workingDir, path string) ([]symbols.Symbol, error) {
	h, err := c.projectHandle(selector, workingDir)
	if err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.symbols.FileSymbols(ctx, path)
}

// FindSymbol locates declarations by name across the project.
func (c *Core) FindSymbol(ctx context.Context, selector, workingDir, name string) ([]symbols.Symbol, error) {
	h, err := c.projectHandle(selector, workingDir)
	if err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.symbols.FindSymbol(ctx, name)
}

// FindReferences locates identifier uses of name across the project.
func (c *Core) FindReferences(ctx context.Context, selector, workingDir, name string, maxResults int) ([]symbols.Reference, error) {
	h, err := c.projectHandle(selector, workingDir)
	if err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.symbols.FindReferences(ctx, name, maxResults)
}

// PatternSearch greps the project tree with a regular expression.
func (c *Core) PatternSearch(ctx context.Context, selector, workingDir, pattern, pathGlob string, maxResults int) ([]search.PatternMatch, error) {
	p, err := c.resolveProject(selector, workingDir)
	if err != nil {
		return nil, err
	}
	return search.PatternSearch(ctx, p.Path, pattern, pathGlob, maxResults)
}

// FileRead returns a line range of one project file.
func (c *Core) FileRead(selector, workingDir, path string, startLine, endLine int) (*fileops.ReadResult, error) {
	p, err := c.resolveProject(selector, workingDir)
	if err != nil {
		return nil, err
	}
	return fileops.Read(p.Path, path, startLine, endLine)
}

// FileList lists one project directory.
func (c *Core) FileList(selector, workingDir, path string) ([]fileops.ListEntry, error) {
	p, err := c.resolveProject(selector, workingDir)
	if err != nil {
		return nil, err
	}
	return fileops.List(p.Path, path)
}

// FileFind matches project files against a doublestar glob.
func (c *Core) FileFind(ctx context.Context, selector, workingDir, pattern string, maxResults int) ([]string, error) {
	p, err := c.resolveProject(selector, workingDir)
	if err != nil {
		return nil, err
	}
	return fileops.Find(ctx, p.Path, pattern, maxResults)
}

// projectHandle resolves a selector and opens its handle.
func (c *Core) projectHandle(selector, workingDir string) (*Handle, error) {
	p, err := c.resolveProject(selector, workingDir)
	if err != nil {
		return nil, err
	}
	return c.handle(p)
}
