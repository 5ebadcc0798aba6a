package search

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"

	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
	"github.com/zoonderkins/augment-lite-mcp/internal/scanner"
)

// DefaultPatternMaxResults bounds pattern-search output when the caller does
// not say otherwise.
const DefaultPatternMaxResults = 100

// PatternMatch is one matching line.
type PatternMatch struct {
	Path string
	Line int
	Text string
}

// PatternSearch greps project files with a Go regular expression. pathGlob
// optionally restricts files with a doublestar pattern ("**/*.go"). Binary
// and oversized files are skipped like they are during indexing.
func PatternSearch(ctx context.Context, root, pattern, pathGlob string, maxResults int) ([]PatternMatch, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalid, "invalid pattern", err)
	}
	if pathGlob != "" {
		if !doublestar.ValidatePattern(pathGlob) {
			return nil, apperr.Newf(apperr.KindInvalid, "invalid path glob: %s", pathGlob)
		}
	}
	if maxResults <= 0 {
		maxResults = DefaultPatternMaxResults
	}

	files, err := scanner.New().Scan(ctx, root, scanner.Options{})
	if err != nil {
		return nil, err
	}

	var matches []PatternMatch
	for r := range files {
		if r.Error != nil {
			return nil, r.Error
		}
		if len(matches) >= maxResults {
			continue // drain the channel so the walker can finish
		}
		if pathGlob != "" {
			if ok, _ := doublestar.Match(pathGlob, r.File.Path); !ok {
				continue
			}
		}

		fileMatches, err := grepFile(filepath.Join(root, r.File.Path), r.File.Path, re, maxResults-len(matches))
		if err != nil {
			continue // files that vanish mid-scan are not an error
		}
		matches = append(matches, fileMatches...)
	}
	return matches, nil
}

func grepFile(fullPath, relPath string, re *regexp.Regexp, budget int) ([]PatternMatch, error) {
	data, err := scanner.ReadFileChecked(fullPath, 0)
	if err != nil || data == nil {
		return nil, err
	}

	var matches []PatternMatch
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line := 0
	for sc.Scan() {
		line++
		if re.Match(sc.Bytes()) {
			matches = append(matches, PatternMatch{Path: relPath, Line: line, Text: sc.Text()})
			if len(matches) >= budget {
				break
			}
		}
	}
	return matches, sc.Err()
}
