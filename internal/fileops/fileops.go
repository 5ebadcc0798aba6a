// Package fileops serves direct file access tools: read with line ranges,
// directory listing, and glob find. Every path is jailed to the project
// root; escaping via ".." or absolute paths is an input error.
package fileops

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
	"github.com/zoonderkins/augment-lite-mcp/internal/scanner"
)

// ReadResult is a file slice with its line range.
type ReadResult struct {
	Path      string
	StartLine int
	EndLine   int
	TotalLine int
	Content   string
}

// ListEntry is one directory entry.
type ListEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// resolve jails rel under root, rejecting escapes.
func resolve(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", apperr.Newf(apperr.KindInvalid, "path must be relative to the project root: %s", rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", apperr.Newf(apperr.KindInvalid, "path escapes the project root: %s", rel)
	}
	return filepath.Join(root, clean), nil
}

// Read returns lines [startLine, endLine] of a file, 1-indexed inclusive.
// Zero bounds mean start and end of file. Binary files are refused.
func Read(root, rel string, startLine, endLine int) (*ReadResult, error) {
	full, err := resolve(root, rel)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("file", rel)
		}
		return nil, err
	}
	if scanner.IsBinary(data) {
		return nil, apperr.Newf(apperr.KindInvalid, "file is binary: %s", rel)
	}

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	total := len(lines)
	if len(data) == 0 {
		total = 0
	}

	if startLine <= 0 {
		startLine = 1
	}
	if endLine <= 0 || endLine > total {
		endLine = total
	}
	if startLine > total || startLine > endLine {
		return &ReadResult{Path: rel, StartLine: startLine, EndLine: startLine - 1, TotalLine: total}, nil
	}

	return &ReadResult{
		Path:      rel,
		StartLine: startLine,
		EndLine:   endLine,
		TotalLine: total,
		Content:   strings.Join(lines[startLine-1:endLine], "\n"),
	}, nil
}

// List returns the entries of a directory, directories first, each group
// sorted by name.
func List(root, rel string) ([]ListEntry, error) {
	if rel == "" {
		rel = "."
	}
	full, err := resolve(root, rel)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("directory", rel)
		}
		return nil, err
	}

	out := make([]ListEntry, 0, len(entries))
	for _, e := range entries {
		le := ListEntry{Name: e.Name(), IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil && !e.IsDir() {
			le.Size = info.Size()
		}
		out = append(out, le)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Find returns project-relative paths matching a doublestar glob, honoring
// the same ignore rules as indexing. Results are sorted.
func Find(ctx context.Context, root, pattern string, maxResults int) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, apperr.Newf(apperr.KindInvalid, "invalid glob pattern: %s", pattern)
	}
	if maxResults <= 0 {
		maxResults = 500
	}

	files, err := scanner.New().Scan(ctx, root, scanner.Options{})
	if err != nil {
		return nil, err
	}

	var matches []string
	for r := range files {
		if r.Error != nil {
			return nil, r.Error
		}
		if ok, _ := doublestar.Match(pattern, r.File.Path); ok {
			matches = append(matches, r.File.Path)
		}
	}
	sort.Strings(matches)
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}
