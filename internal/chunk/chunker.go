package chunk

import (
	"strings"
	"unicode/utf8"

	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
)

// Split divides file content into chunks according to its kind. It is a pure
// function of its inputs and performs no I/O.
//
// Invalid UTF-8 fails the whole file; callers treat it as skipped with no
// partial chunks. KindSkip input yields no chunks.
func Split(projectID, path string, data []byte, kind Kind) ([]Chunk, error) {
	if kind == KindSkip {
		return nil, nil
	}
	if !utf8.Valid(data) {
		return nil, apperr.Newf(apperr.KindInvalid, "file is not valid UTF-8: %s", path)
	}
	if len(data) == 0 {
		return nil, nil
	}

	switch kind {
	case KindCode:
		return splitCode(projectID, path, data), nil
	case KindDoc:
		return splitDoc(projectID, path, data), nil
	default:
		return nil, apperr.Newf(apperr.KindInvalid, "unknown chunk kind: %s", kind)
	}
}

// splitCode emits windows of CodeWindowLines lines at stride CodeStrideLines.
// The final window may be shorter; windows with no non-whitespace content are
// dropped, and ordinals are assigned after dropping.
func splitCode(projectID, path string, data []byte) []Chunk {
	lines := splitLines(string(data))

	var chunks []Chunk
	for offset := 0; offset < len(lines); offset += CodeStrideLines {
		end := offset + CodeWindowLines
		if end > len(lines) {
			end = len(lines)
		}

		text := strings.Join(lines[offset:end], "\n")
		if strings.TrimSpace(text) != "" {
			ordinal := len(chunks)
			chunks = append(chunks, Chunk{
				ID:        ChunkID(projectID, path, ordinal),
				Path:      path,
				Ordinal:   ordinal,
				StartLine: offset + 1,
				EndLine:   end,
				Text:      text,
				Kind:      KindCode,
			})
		}

		if end == len(lines) {
			break
		}
	}
	return chunks
}

// splitDoc emits windows of DocWindowTokens tokens at stride DocStrideTokens.
// Window text spans from the first to the last token of the window, so
// intra-window whitespace is preserved verbatim.
func splitDoc(projectID, path string, data []byte) []Chunk {
	tokens := tokenizeProse(data)
	if len(tokens) == 0 {
		return nil
	}

	lineOf := lineOffsets(data)

	var chunks []Chunk
	for offset := 0; offset < len(tokens); offset += DocStrideTokens {
		end := offset + DocWindowTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		first, last := tokens[offset], tokens[end-1]
		ordinal := len(chunks)
		chunks = append(chunks, Chunk{
			ID:        ChunkID(projectID, path, ordinal),
			Path:      path,
			Ordinal:   ordinal,
			StartLine: first.line,
			EndLine:   lineOf(last.end - 1),
			Text:      string(data[first.start:last.end]),
			Kind:      KindDoc,
		})

		if end == len(tokens) {
			break
		}
	}
	return chunks
}

// splitLines splits on '\n' without keeping terminators. A trailing newline
// does not produce a phantom final line.
func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// lineOffsets returns a function mapping a byte offset to its 1-indexed line.
func lineOffsets(data []byte) func(int) int {
	// starts[i] is the byte offset where line i+1 begins.
	starts := []int{0}
	for i, b := range data {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return func(off int) int {
		lo, hi := 0, len(starts)-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if starts[mid] <= off {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		return lo + 1
	}
}
