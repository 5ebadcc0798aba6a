// Package chunk splits source files into content-bearing windows, the unit
// of indexing and retrieval. Code files use fixed line windows; prose files
// use token windows with CJK-aware tokenization.
package chunk

import "fmt"

// Kind classifies a file for chunking purposes.
type Kind string

const (
	// KindCode uses 50-line windows with 10-line overlap.
	KindCode Kind = "code"
	// KindDoc uses 256-token windows with 32-token overlap.
	KindDoc Kind = "doc"
	// KindSkip marks files whose extension is in neither set.
	KindSkip Kind = "skip"
)

// Window geometry. Stride = window - overlap.
const (
	CodeWindowLines  = 50
	CodeOverlapLines = 10
	CodeStrideLines  = CodeWindowLines - CodeOverlapLines

	DocWindowTokens  = 256
	DocOverlapTokens = 32
	DocStrideTokens  = DocWindowTokens - DocOverlapTokens
)

// Chunk is a contiguous window of a file. Chunks are never mutated; on file
// change the file's whole chunk range is replaced.
type Chunk struct {
	// ID is "{projectID}:{path}:{ordinal}".
	ID string
	// Path is the source path, relative to the project root.
	Path string
	// Ordinal is the zero-based position within the file. For a given file
	// the ordinals form a contiguous 0..n-1 range.
	Ordinal int
	// StartLine and EndLine are 1-indexed, inclusive.
	StartLine int
	EndLine   int
	// Text is the raw window content.
	Text string
	// Kind is the file classification the window was produced under.
	Kind Kind
}

// ChunkID formats the canonical chunk identifier.
func ChunkID(projectID, path string, ordinal int) string {
	return fmt.Sprintf("%s:%s:%d", projectID, path, ordinal)
}
