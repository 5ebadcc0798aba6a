package search

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zoonderkins/augment-lite-mcp/internal/embed"
	"github.com/zoonderkins/augment-lite-mcp/internal/store"
)

// Engine runs hybrid retrieval over one project's indexes.
type Engine struct {
	keyword    store.KeywordIndex
	vector     store.VectorIndex
	embedder   embed.Embedder
	weights    Weights
	maxPerFile int
}

// Config tunes an Engine. Zero values fall back to the defaults.
type Config struct {
	Weights    Weights
	MaxPerFile int // chunks of one file surviving dedup
}

// NewEngine wires an engine over the given indexes.
func NewEngine(keyword store.KeywordIndex, vector store.VectorIndex, embedder embed.Embedder, cfg Config) *Engine {
	if cfg.Weights.Keyword == 0 && cfg.Weights.Vector == 0 {
		cfg.Weights = DefaultWeights()
	}
	if cfg.MaxPerFile <= 0 {
		cfg.MaxPerFile = DefaultMaxPerFile
	}
	return &Engine{
		keyword:    keyword,
		vector:     vector,
		embedder:   embedder,
		weights:    cfg.Weights,
		maxPerFile: cfg.MaxPerFile,
	}
}

// Search returns up to k fused, deduped candidates for query.
//
// Both sub-searches run in parallel and over-fetch 3x. A failing vector side
// (embedder down, dimension trouble) degrades to keyword-only rather than
// failing the search; the reason is reported on the result. A failing
// keyword side fails the search, since it needs no external service and an
// error there means the index itself is broken.
func (e *Engine) Search(ctx context.Context, query string, k int) (*Result, error) {
	return e.search(ctx, query, k, true)
}

// SearchKeywordOnly skips the vector side entirely, for callers that opt out
// of semantic retrieval. Keyword scores carry full weight.
func (e *Engine) SearchKeywordOnly(ctx context.Context, query string, k int) (*Result, error) {
	return e.search(ctx, query, k, false)
}

func (e *Engine) search(ctx context.Context, query string, k int, useVector bool) (*Result, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return &Result{Hits: []Hit{}}, nil
	}

	fetch := k * overFetchFactor

	var (
		kwResults  []*store.KeywordResult
		vecResults []*store.VectorResult
		degraded   []string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		kwResults, err = e.keyword.Search(gctx, query, fetch)
		return err
	})

	if useVector {
		g.Go(func() error {
			qvec, err := e.embedder.Embed(gctx, query)
			if err != nil {
				slog.Warn("query_embed_failed", slog.String("error", err.Error()))
				degraded = append(degraded, DegradedEmbedder)
				return nil
			}
			vecResults, err = e.vector.Search(gctx, qvec, fetch)
			if err != nil {
				slog.Warn("vector_search_failed", slog.String("error", err.Error()))
				degraded = append(degraded, DegradedVector)
				vecResults = nil
			}
			return nil
		})
	}

	weights := e.weights
	if !useVector {
		weights = Weights{Keyword: 1}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits := dedupByFile(fuse(kwResults, vecResults, weights), e.maxPerFile)
	if len(hits) > k {
		hits = hits[:k]
	}

	slog.Debug("hybrid_search_done",
		slog.Int("keyword_hits", len(kwResults)),
		slog.Int("vector_hits", len(vecResults)),
		slog.Int("fused", len(hits)))

	return &Result{Hits: hits, Degraded: degraded}, nil
}
