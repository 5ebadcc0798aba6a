// Package core wires the subsystems into the operations the tool surface
// exposes: hybrid search, answer generation, indexing, project management,
// cache control, symbols, and direct file access. One Core serves every
// registered project; each project's stores live in a lazily opened Handle.
package core

import (
	"time"

	"github.com/zoonderkins/augment-lite-mcp/internal/index"
	"github.com/zoonderkins/augment-lite-mcp/internal/project"
)

// Result-count bounds for search-style operations.
const (
	DefaultK = 10
	MaxK     = 50
)

// DegradedAnswer is reported when answer generation was requested but the
// LLM could not produce prose; candidates are still returned.
const DegradedAnswer = "answer-unavailable"

// SearchRequest asks for retrieval candidates.
type SearchRequest struct {
	// Project selects a registered project by name, ID, or path. Empty or
	// "auto" resolves via WorkingDir, falling back to the active project.
	Project    string
	WorkingDir string
	Query      string
	K          int
	// UseVector enables the semantic side of retrieval.
	UseVector bool
	// AutoIndex runs a catch-up before searching.
	AutoIndex bool
}

// Candidate is one retrieved chunk.
type Candidate struct {
	ChunkID      string  `json:"chunkId"`
	Path         string  `json:"path"`
	StartLine    int     `json:"startLine"`
	EndLine      int     `json:"endLine"`
	Score        float64 `json:"score"`
	KeywordScore float64 `json:"keywordScore,omitempty"`
	VectorScore  float64 `json:"vectorScore,omitempty"`
	Text         string  `json:"text"`
}

// SearchResponse carries candidates plus how they were produced.
type SearchResponse struct {
	Project    string       `json:"project"`
	Candidates []Candidate  `json:"candidates"`
	Degraded   []string     `json:"degraded,omitempty"`
	CacheTier  string       `json:"cacheTier,omitempty"`
	IndexStats *index.Stats `json:"indexStats,omitempty"`
}

// AnswerRequest asks for final candidates and optional generated prose.
type AnswerRequest struct {
	Project    string
	WorkingDir string
	Query      string
	K          int
	// Rerank orders the candidates with the LLM before answering.
	Rerank bool
	// Accumulate composes a short answer from the final candidates.
	Accumulate bool
}

// AnswerResponse is the answer_generate result.
type AnswerResponse struct {
	Project    string      `json:"project"`
	Candidates []Candidate `json:"candidates"`
	Answer     string      `json:"answer,omitempty"`
	Degraded   []string    `json:"degraded,omitempty"`
}

// StatusResponse summarizes one project's index health.
type StatusResponse struct {
	Project     project.Project `json:"project"`
	Files       int             `json:"files"`
	Chunks      int             `json:"chunks"`
	KeywordDocs int             `json:"keywordDocs"`
	Vectors     int             `json:"vectors"`
	// ConsistencyGap is the size of the symmetric difference between
	// keyword and vector chunk-ID sets. Zero means the sides agree.
	ConsistencyGap int       `json:"consistencyGap"`
	VectorOrphans  int       `json:"vectorOrphans"`
	LastCatchUp    time.Time `json:"lastCatchUp"`
	NeedsRebuild   bool      `json:"needsRebuild,omitempty"`
}

// cachePayload is what rag_search stores in the query cache.
type cachePayload struct {
	Candidates []Candidate `json:"candidates"`
	Degraded   []string    `json:"degraded,omitempty"`
}
