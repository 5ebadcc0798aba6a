// Package scanner discovers indexable files in a project working tree.
//
// Traversal applies the project-root .gitignore, a fixed exclude list, and
// the size cap. Ordering of results is not guaranteed.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultMaxFileSize is the indexing size cap: files over 1 MiB are skipped.
const DefaultMaxFileSize = 1 << 20

// binarySniffLen is how many leading bytes are checked for a NUL byte.
const binarySniffLen = 8 * 1024

// hardExcludes are directories never scanned regardless of .gitignore.
var hardExcludes = []string{
	".git", "node_modules", ".venv", "__pycache__",
	"dist", "build", "target", ".idea", ".vscode",
}

// FileInfo describes one candidate file.
type FileInfo struct {
	// Path is relative to the project root, forward-slash separated.
	Path string
	// ModTime is the last modification time at scan time.
	ModTime time.Time
	// Size is the file size in bytes.
	Size int64
}

// Result is one streamed scan result: a file or a traversal error.
type Result struct {
	File  *FileInfo
	Error error
}

// Options configures a scan.
type Options struct {
	// MaxFileSize caps file size in bytes (default DefaultMaxFileSize).
	MaxFileSize int64
}

// Scanner walks working trees.
type Scanner struct{}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{}
}

// Scan streams candidate files under root. The returned channel is closed
// when traversal completes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, root string, opts Options) (<-chan Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	matcher := loadGitignore(absRoot)

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, matcher, maxSize, results)
	}()

	return results, nil
}

// ScanAll collects a full scan into a map keyed by relative path.
func (s *Scanner) ScanAll(ctx context.Context, root string, opts Options) (map[string]*FileInfo, error) {
	ch, err := s.Scan(ctx, root, opts)
	if err != nil {
		return nil, err
	}

	files := make(map[string]*FileInfo)
	for r := range ch {
		if r.Error != nil {
			return nil, r.Error
		}
		files[r.File.Path] = r.File
	}
	return files, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, matcher *ignore.GitIgnore, maxSize int64, results chan<- Result) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if isHardExcluded(d.Name()) {
				return filepath.SkipDir
			}
			if matcher != nil && matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are followed only when they resolve inside the root.
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(path)
			if err != nil || !withinRoot(absRoot, target) {
				return nil
			}
			ti, err := os.Stat(target)
			if err != nil || ti.IsDir() {
				return nil
			}
		}

		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if info, err = os.Stat(path); err != nil {
				return nil
			}
		}

		if info.Size() > maxSize {
			return nil
		}

		select {
		case results <- Result{File: &FileInfo{
			Path:    rel,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		}}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- Result{Error: err}:
		default:
		}
	}
}

// loadGitignore compiles the project-root .gitignore if present.
func loadGitignore(absRoot string) *ignore.GitIgnore {
	path := filepath.Join(absRoot, ".gitignore")
	matcher, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return matcher
}

func isHardExcluded(name string) bool {
	for _, ex := range hardExcludes {
		if name == ex {
			return true
		}
	}
	return false
}

func withinRoot(root, target string) bool {
	return target == root || strings.HasPrefix(target, root+string(filepath.Separator))
}

// IsBinary reports whether the leading bytes contain a NUL byte. A NUL after
// the first 8 KiB does not mark the file binary.
func IsBinary(data []byte) bool {
	n := len(data)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}

// ReadFileChecked reads a file, enforcing the size cap and binary filter.
// It returns (nil, nil) when the file should be silently skipped.
func ReadFileChecked(path string, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxSize {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if IsBinary(data) {
		return nil, nil
	}
	return data, nil
}
