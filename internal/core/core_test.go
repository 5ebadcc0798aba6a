package core

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoonderkins/augment-lite-mcp/internal/cache"
	"github.com/zoonderkins/augment-lite-mcp/internal/config"
	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Embedding.Dimensions = 64
	cfg.Index.FreshWindow = time.Nanosecond // every search re-scans
	return cfg
}

func newTestCore(t *testing.T) *Core {
	t.Helper()
	c, err := New(testConfig(t), slog.Default(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

const loginSrc = "def login(u,p):\n    return check(u,p)\n"

func TestSearchSingleFile(t *testing.T) {
	c := newTestCore(t)
	root := writeProject(t, map[string]string{"a.py": loginSrc})

	p, err := c.ProjectAdd(root, "proj")
	require.NoError(t, err)

	resp, err := c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "login function", K: 5,
		UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)

	require.Len(t, resp.Candidates, 1)
	cand := resp.Candidates[0]
	assert.Equal(t, p.ID+":a.py:0", cand.ChunkID)
	assert.Equal(t, 1, cand.StartLine)
	assert.Equal(t, 2, cand.EndLine)
}

func TestSearchAfterModification(t *testing.T) {
	c := newTestCore(t)
	root := writeProject(t, map[string]string{"a.py": loginSrc})
	_, err := c.ProjectAdd(root, "proj")
	require.NoError(t, err)

	_, err = c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "login", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)

	grown := loginSrc + "def logout():\n    pass\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte(grown), 0o644))

	resp, err := c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "logout", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Candidates)
	assert.Equal(t, "a.py", resp.Candidates[0].Path)
	assert.Equal(t, 4, resp.Candidates[0].EndLine)
}

func TestSearchAfterDeletion(t *testing.T) {
	c := newTestCore(t)
	root := writeProject(t, map[string]string{"a.py": loginSrc})
	_, err := c.ProjectAdd(root, "proj")
	require.NoError(t, err)

	_, err = c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "login", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "a.py")))

	resp, err := c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "check credentials", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Candidates)

	status, err := c.Status(context.Background(), "proj", "")
	require.NoError(t, err)
	assert.Equal(t, 0, status.Files)
	assert.Equal(t, 0, status.Chunks)
}

func TestSearchEmptyQuery(t *testing.T) {
	c := newTestCore(t)
	root := writeProject(t, map[string]string{"a.py": loginSrc})
	_, err := c.ProjectAdd(root, "proj")
	require.NoError(t, err)

	resp, err := c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "   ", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Candidates)
	assert.Empty(t, resp.CacheTier)
}

func TestSearchCacheHit(t *testing.T) {
	c := newTestCore(t)
	root := writeProject(t, map[string]string{"a.py": loginSrc})
	_, err := c.ProjectAdd(root, "proj")
	require.NoError(t, err)

	first, err := c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "login", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)
	assert.Empty(t, first.CacheTier)

	second, err := c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "login", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)
	assert.Equal(t, cache.TierExact, second.CacheTier)
	assert.Equal(t, first.Candidates, second.Candidates)
}

func TestAutoResolveByWorkingDir(t *testing.T) {
	c := newTestCore(t)
	p1root := writeProject(t, map[string]string{"one.py": "def alpha():\n    pass\n"})
	p2root := writeProject(t, map[string]string{"two.py": "def beta():\n    pass\n"})

	first, err := c.ProjectAdd(p1root, "p1")
	require.NoError(t, err)
	second, err := c.ProjectAdd(p2root, "p2")
	require.NoError(t, err)

	resp, err := c.Search(context.Background(), SearchRequest{
		Project: "auto", WorkingDir: filepath.Join(p1root, "sub"),
		Query: "alpha", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, resp.Project)

	resp, err = c.Search(context.Background(), SearchRequest{
		Project: "auto", WorkingDir: p2root,
		Query: "beta", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)
	assert.Equal(t, second.ID, resp.Project)
}

func TestRebuild(t *testing.T) {
	c := newTestCore(t)
	root := writeProject(t, map[string]string{"a.py": loginSrc, "b.py": "def other():\n    pass\n"})
	_, err := c.ProjectAdd(root, "proj")
	require.NoError(t, err)

	stats, err := c.Rebuild(context.Background(), "proj", "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Added)

	status, err := c.Status(context.Background(), "proj", "")
	require.NoError(t, err)
	assert.Equal(t, 2, status.Files)
	assert.Equal(t, 0, status.ConsistencyGap)
	assert.False(t, status.NeedsRebuild)
}

func TestCorruptStateAutoRebuilds(t *testing.T) {
	cfg := testConfig(t)
	root := writeProject(t, map[string]string{"a.py": loginSrc})

	c, err := New(cfg, slog.Default(), Options{})
	require.NoError(t, err)
	p, err := c.ProjectAdd(root, "proj")
	require.NoError(t, err)
	_, err = c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "login", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	statePath := filepath.Join(cfg.DataDir, p.ID, "state.jsonl")
	require.NoError(t, os.WriteFile(statePath, []byte("{not json"), 0o644))

	c2, err := New(cfg, slog.Default(), Options{})
	require.NoError(t, err)
	defer c2.Close()

	// Catch-up is a write, so the flagged project rebuilds transparently.
	resp, err := c2.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "login credentials check", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Candidates)

	status, err := c2.Status(context.Background(), "proj", "")
	require.NoError(t, err)
	assert.False(t, status.NeedsRebuild)
}

func TestProjectRemovePurges(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg, slog.Default(), Options{})
	require.NoError(t, err)
	defer c.Close()

	root := writeProject(t, map[string]string{"a.py": loginSrc})
	p, err := c.ProjectAdd(root, "proj")
	require.NoError(t, err)

	_, err = c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "login", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)

	_, err = c.ProjectRemove(context.Background(), "proj")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cfg.DataDir, p.ID))
	assert.True(t, os.IsNotExist(err))

	_, err = c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "login", K: 5, UseVector: true, AutoIndex: true,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestKeywordOnlySearch(t *testing.T) {
	c := newTestCore(t)
	root := writeProject(t, map[string]string{"a.py": loginSrc})
	_, err := c.ProjectAdd(root, "proj")
	require.NoError(t, err)

	resp, err := c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "login", K: 5, UseVector: false, AutoIndex: true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Candidates, 1)
	assert.Zero(t, resp.Candidates[0].VectorScore)
	assert.InDelta(t, 1.0, resp.Candidates[0].Score, 1e-9)
}

func TestFileOps(t *testing.T) {
	c := newTestCore(t)
	root := writeProject(t, map[string]string{
		"a.py":       loginSrc,
		"docs/x.md":  "# Title\n\nBody\n",
		"docs/y.txt": "notes\n",
	})
	_, err := c.ProjectAdd(root, "proj")
	require.NoError(t, err)

	read, err := c.FileRead("proj", "", "a.py", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "def login(u,p):", read.Content)

	entries, err := c.FileList("proj", "", "docs")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	found, err := c.FileFind(context.Background(), "proj", "", "**/*.md", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/x.md"}, found)
}

func TestSymbolOps(t *testing.T) {
	c := newTestCore(t)
	root := writeProject(t, map[string]string{"a.py": loginSrc})
	_, err := c.ProjectAdd(root, "proj")
	require.NoError(t, err)

	syms, err := c.Symbols(context.Background(), "proj", "", "a.py")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "login", syms[0].Name)

	byName, err := c.FindSymbol(context.Background(), "proj", "", "login")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "a.py", byName[0].Path)
}

func TestPatternSearchOp(t *testing.T) {
	c := newTestCore(t)
	root := writeProject(t, map[string]string{"a.py": loginSrc})
	_, err := c.ProjectAdd(root, "proj")
	require.NoError(t, err)

	matches, err := c.PatternSearch(context.Background(), "proj", "", `def \w+`, "", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 1, matches[0].Line)
}

func TestCacheClearScopes(t *testing.T) {
	c := newTestCore(t)
	root := writeProject(t, map[string]string{"a.py": loginSrc})
	_, err := c.ProjectAdd(root, "proj")
	require.NoError(t, err)

	_, err = c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "login", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)

	removed, err := c.CacheClear(context.Background(), cache.ScopeAll, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	resp, err := c.Search(context.Background(), SearchRequest{
		Project: "proj", Query: "login", K: 5, UseVector: true, AutoIndex: true,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.CacheTier)
}
