package fileops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
)

func setup(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"main.go":       "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n",
		"docs/guide.md": "# Guide\n",
		"sub/a.go":      "package sub\n",
		"sub/deep/b.go": "package deep\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestReadWholeFile(t *testing.T) {
	root := setup(t)

	res, err := Read(root, "main.go", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.StartLine)
	assert.Equal(t, 5, res.EndLine)
	assert.Equal(t, 5, res.TotalLine)
	assert.Contains(t, res.Content, "package main")
}

func TestReadLineRange(t *testing.T) {
	root := setup(t)

	res, err := Read(root, "main.go", 3, 4)
	require.NoError(t, err)
	assert.Equal(t, "func main() {\n\tprintln(\"hi\")", res.Content)
}

func TestReadRangePastEOF(t *testing.T) {
	root := setup(t)

	res, err := Read(root, "main.go", 3, 99)
	require.NoError(t, err)
	assert.Equal(t, 5, res.EndLine)

	res, err = Read(root, "main.go", 99, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Content)
}

func TestReadMissingFile(t *testing.T) {
	root := setup(t)
	_, err := Read(root, "nope.go", 0, 0)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestReadRejectsEscape(t *testing.T) {
	root := setup(t)

	_, err := Read(root, "../outside.txt", 0, 0)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))

	_, err = Read(root, "/etc/passwd", 0, 0)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))

	_, err = Read(root, "sub/../../outside.txt", 0, 0)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))
}

func TestReadBinary(t *testing.T) {
	root := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin.dat"), []byte{1, 0, 2}, 0o644))

	_, err := Read(root, "bin.dat", 0, 0)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))
}

func TestList(t *testing.T) {
	root := setup(t)

	entries, err := List(root, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Directories first.
	assert.Equal(t, "docs", entries[0].Name)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "sub", entries[1].Name)
	assert.Equal(t, "main.go", entries[2].Name)
	assert.Greater(t, entries[2].Size, int64(0))
}

func TestListMissing(t *testing.T) {
	root := setup(t)
	_, err := List(root, "ghost")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestFind(t *testing.T) {
	root := setup(t)

	matches, err := Find(context.Background(), root, "**/*.go", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go", "sub/a.go", "sub/deep/b.go"}, matches)

	matches, err = Find(context.Background(), root, "docs/*.md", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/guide.md"}, matches)
}

func TestFindInvalidPattern(t *testing.T) {
	_, err := Find(context.Background(), t.TempDir(), "[", 0)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))
}

func TestFindMaxResults(t *testing.T) {
	root := setup(t)
	matches, err := Find(context.Background(), root, "**/*.go", 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}
