// Package search runs hybrid retrieval: keyword and vector sub-searches in
// parallel, weighted score fusion, per-file dedup, then optional reranking
// upstream.
package search

// Degraded-subsystem reason strings surfaced on results.
const (
	DegradedEmbedder = "embedder-unavailable"
	DegradedVector   = "vector-unavailable"
	DegradedRerank   = "rerank-unavailable"
	DegradedTimeout  = "rerank-timeout"
)

// overFetchFactor is how many candidates each sub-search returns per
// requested result, giving fusion and dedup room to work.
const overFetchFactor = 3

// DefaultMaxPerFile caps how many chunks of one file survive dedup.
const DefaultMaxPerFile = 2

// Weights are the fusion coefficients. Keyword scores are max-normalized
// before weighting; vector scores are already in [0,1].
type Weights struct {
	Keyword float64
	Vector  float64
}

// DefaultWeights splits evenly.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.5, Vector: 0.5}
}

// Hit is one fused candidate.
type Hit struct {
	ChunkID      string
	Score        float64
	KeywordScore float64 // normalized, 0 when the keyword side missed
	VectorScore  float64 // 0 when the vector side missed
}

// Result is the fused candidate list plus any subsystems that degraded
// while producing it.
type Result struct {
	Hits     []Hit
	Degraded []string
}
