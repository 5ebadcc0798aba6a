package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoonderkins/augment-lite-mcp/internal/store"
)

func TestFuseNormalizesKeywordScores(t *testing.T) {
	kw := []*store.KeywordResult{
		{ChunkID: "p:a.go:0", Score: 8.0},
		{ChunkID: "p:b.go:0", Score: 4.0},
	}

	hits := fuse(kw, nil, DefaultWeights())
	require.Len(t, hits, 2)
	assert.Equal(t, "p:a.go:0", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].KeywordScore, 1e-9)
	assert.InDelta(t, 0.5, hits[1].KeywordScore, 1e-9)
	assert.InDelta(t, 0.5, hits[0].Score, 1e-9) // 0.5*1.0 + 0.5*0
}

func TestFuseBothSidesBoost(t *testing.T) {
	kw := []*store.KeywordResult{
		{ChunkID: "p:a.go:0", Score: 10.0},
		{ChunkID: "p:b.go:0", Score: 10.0},
	}
	vec := []*store.VectorResult{
		{ChunkID: "p:b.go:0", Score: 0.9},
		{ChunkID: "p:c.go:0", Score: 0.95},
	}

	hits := fuse(kw, vec, DefaultWeights())
	require.Len(t, hits, 3)
	// b appears in both: 0.5*1.0 + 0.5*0.9 = 0.95, ahead of a (0.5) and c (0.475).
	assert.Equal(t, "p:b.go:0", hits[0].ChunkID)
	assert.InDelta(t, 0.95, hits[0].Score, 1e-6)
	assert.Equal(t, "p:a.go:0", hits[1].ChunkID)
	assert.Equal(t, "p:c.go:0", hits[2].ChunkID)
}

func TestFuseTieBreaksByChunkID(t *testing.T) {
	kw := []*store.KeywordResult{
		{ChunkID: "p:z.go:0", Score: 5.0},
		{ChunkID: "p:a.go:0", Score: 5.0},
	}
	hits := fuse(kw, nil, DefaultWeights())
	require.Len(t, hits, 2)
	assert.Equal(t, "p:a.go:0", hits[0].ChunkID)
}

func TestFuseEmptyInputs(t *testing.T) {
	assert.Empty(t, fuse(nil, nil, DefaultWeights()))
}

func TestFuseCustomWeights(t *testing.T) {
	kw := []*store.KeywordResult{{ChunkID: "p:a.go:0", Score: 3.0}}
	vec := []*store.VectorResult{{ChunkID: "p:b.go:0", Score: 1.0}}

	hits := fuse(kw, vec, Weights{Keyword: 0.9, Vector: 0.1})
	require.Len(t, hits, 2)
	assert.Equal(t, "p:a.go:0", hits[0].ChunkID)
	assert.InDelta(t, 0.9, hits[0].Score, 1e-9)
	assert.InDelta(t, 0.1, hits[1].Score, 1e-9)
}

func TestDedupByFile(t *testing.T) {
	hits := []Hit{
		{ChunkID: "p:a.go:0", Score: 0.9},
		{ChunkID: "p:a.go:1", Score: 0.8},
		{ChunkID: "p:a.go:2", Score: 0.7},
		{ChunkID: "p:b.go:0", Score: 0.6},
		{ChunkID: "p:a.go:3", Score: 0.5},
	}

	out := dedupByFile(hits, DefaultMaxPerFile)
	require.Len(t, out, 3)
	assert.Equal(t, "p:a.go:0", out[0].ChunkID)
	assert.Equal(t, "p:a.go:1", out[1].ChunkID)
	assert.Equal(t, "p:b.go:0", out[2].ChunkID)

	assert.Len(t, dedupByFile(hits, 1), 2)
}

func TestFileOfChunkID(t *testing.T) {
	assert.Equal(t, "src/main.go", fileOfChunkID("abcd1234:src/main.go:3"))
	// Windows-ish path with a colon inside.
	assert.Equal(t, "c:/x/y.go", fileOfChunkID("abcd1234:c:/x/y.go:0"))
}
