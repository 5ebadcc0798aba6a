// Package store holds the persistent index layers: the keyword index, the
// vector index, and the sqlite chunk store.
package store

import "context"

// Document is one chunk as seen by the keyword index.
type Document struct {
	ID      string
	Path    string
	Content string
}

// KeywordResult is one keyword hit.
type KeywordResult struct {
	ChunkID string
	Score   float64
}

// VectorResult is one nearest-neighbor hit. Score is cosine similarity
// mapped to [0,1].
type VectorResult struct {
	ChunkID string
	Score   float32
}

// VectorConfig holds HNSW construction parameters.
type VectorConfig struct {
	Dimensions int
	M          int
	EfSearch   int
}

// KeywordIndex is the full-text side of retrieval.
type KeywordIndex interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() ([]string, error)
	DocCount() int
	Close() error
}

// VectorIndex is the embedding side of retrieval.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	Contains(id string) bool
	Count() int
	Dimensions() int
	Orphans() int
	Save(path string) error
	Close() error
}
