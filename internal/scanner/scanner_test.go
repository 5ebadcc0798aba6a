package scanner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanBasic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "docs/readme.md", "# hi\n")
	writeFile(t, root, "sub/dir/util.py", "pass\n")

	s := New()
	files, err := s.ScanAll(context.Background(), root, Options{})
	require.NoError(t, err)

	assert.Len(t, files, 3)
	assert.Contains(t, files, "main.go")
	assert.Contains(t, files, "docs/readme.md")
	assert.Contains(t, files, "sub/dir/util.py")

	fi := files["main.go"]
	assert.Equal(t, int64(13), fi.Size)
	assert.False(t, fi.ModTime.IsZero())
}

func TestScanHardExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.go", "x")
	writeFile(t, root, ".git/config", "x")
	writeFile(t, root, "node_modules/pkg/index.js", "x")
	writeFile(t, root, "__pycache__/mod.pyc", "x")
	writeFile(t, root, ".venv/bin/python", "x")

	files, err := New().ScanAll(context.Background(), root, Options{})
	require.NoError(t, err)

	assert.Len(t, files, 1)
	assert.Contains(t, files, "app.go")
}

func TestScanGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\nvendor/\n")
	writeFile(t, root, "app.go", "x")
	writeFile(t, root, "debug.log", "x")
	writeFile(t, root, "vendor/lib.go", "x")

	files, err := New().ScanAll(context.Background(), root, Options{})
	require.NoError(t, err)

	assert.Contains(t, files, "app.go")
	assert.Contains(t, files, ".gitignore")
	assert.NotContains(t, files, "debug.log")
	assert.NotContains(t, files, "vendor/lib.go")
}

func TestScanSizeCap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.go", "ok")
	writeFile(t, root, "big.go", string(bytes.Repeat([]byte("a"), 200)))

	files, err := New().ScanAll(context.Background(), root, Options{MaxFileSize: 100})
	require.NoError(t, err)

	assert.Contains(t, files, "small.go")
	assert.NotContains(t, files, "big.go")
}

func TestScanSymlinkOutsideRoot(t *testing.T) {
	outside := t.TempDir()
	writeFile(t, outside, "secret.txt", "nope")

	root := t.TempDir()
	writeFile(t, root, "inner.txt", "yes")
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "link.txt")))

	files, err := New().ScanAll(context.Background(), root, Options{})
	require.NoError(t, err)

	assert.Contains(t, files, "inner.txt")
	assert.NotContains(t, files, "link.txt")
}

func TestScanSymlinkInsideRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.txt", "data")
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "alias.txt")))

	files, err := New().ScanAll(context.Background(), root, Options{})
	require.NoError(t, err)

	assert.Contains(t, files, "real.txt")
	assert.Contains(t, files, "alias.txt")
}

func TestScanCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, root, filepath.Join("d", string(rune('a'+i%26))+".go"), "x")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch, err := New().Scan(ctx, root, Options{})
	require.NoError(t, err)
	for range ch {
	}
}

func TestScanRootNotDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f.txt", "x")

	_, err := New().Scan(context.Background(), filepath.Join(root, "f.txt"), Options{})
	assert.Error(t, err)
}

func TestIsBinary(t *testing.T) {
	assert.False(t, IsBinary([]byte("plain text")))
	assert.False(t, IsBinary(nil))
	assert.True(t, IsBinary([]byte{'a', 0, 'b'}))

	// NUL past the sniff window does not count.
	data := append(bytes.Repeat([]byte("x"), binarySniffLen), 0)
	assert.False(t, IsBinary(data))
}

func TestReadFileChecked(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.txt", "hello")
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin.dat"), []byte{1, 0, 2}, 0o644))
	writeFile(t, root, "big.txt", string(bytes.Repeat([]byte("b"), 64)))

	data, err := ReadFileChecked(filepath.Join(root, "ok.txt"), 1024)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	data, err = ReadFileChecked(filepath.Join(root, "bin.dat"), 1024)
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = ReadFileChecked(filepath.Join(root, "big.txt"), 32)
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = ReadFileChecked(filepath.Join(root, "missing.txt"), 1024)
	assert.Error(t, err)
}
