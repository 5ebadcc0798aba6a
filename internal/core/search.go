package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zoonderkins/augment-lite-mcp/internal/chunk"
	"github.com/zoonderkins/augment-lite-mcp/internal/index"
	"github.com/zoonderkins/augment-lite-mcp/internal/llm"
	"github.com/zoonderkins/augment-lite-mcp/internal/search"
)

const answerSystemPrompt = `You answer questions about a codebase using only
the provided snippets. Cite snippets as path:line. If the snippets do not
contain the answer, say so briefly.`

// Search runs the retrieval pipeline: cache lookup, optional catch-up,
// hybrid search, chunk hydration, rerank when an LLM is configured, and a
// write-through to the cache.
func (c *Core) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	p, err := c.resolveProject(req.Project, req.WorkingDir)
	if err != nil {
		return nil, err
	}

	k := clampK(req.K)
	if strings.TrimSpace(req.Query) == "" {
		return &SearchResponse{Project: p.ID, Candidates: []Candidate{}}, nil
	}

	if e, tier, ok := c.cache.Get(ctx, req.Query, p.ID, k); ok {
		var pl cachePayload
		if err := json.Unmarshal(e.Payload, &pl); err == nil {
			return &SearchResponse{
				Project:    p.ID,
				Candidates: pl.Candidates,
				Degraded:   pl.Degraded,
				CacheTier:  tier,
			}, nil
		}
		c.log.Warn("cache_payload_unreadable", slog.String("key", e.Key))
	}

	h, err := c.handle(p)
	if err != nil {
		return nil, err
	}

	var degraded []string
	var stats *index.Stats
	if req.AutoIndex {
		s, err := h.CatchUp(ctx)
		if err != nil {
			return nil, err
		}
		stats = &s
		degraded = append(degraded, s.Degraded...)
	}

	candidates, searchDegraded, err := c.retrieve(ctx, h, req.Query, k, req.UseVector)
	if err != nil {
		return nil, err
	}
	degraded = dedupeReasons(append(degraded, searchDegraded...))

	payload, err := json.Marshal(cachePayload{Candidates: candidates, Degraded: degraded})
	if err == nil {
		if err := c.cache.Put(ctx, req.Query, p.ID, k, payload); err != nil {
			c.log.Warn("cache_put_failed", slog.String("error", err.Error()))
		}
	}

	return &SearchResponse{
		Project:    p.ID,
		Candidates: candidates,
		Degraded:   degraded,
		IndexStats: stats,
	}, nil
}

// retrieve runs hybrid search and hydrates the hits into candidates, under
// the project read lock. Rerank applies only when an LLM is configured;
// without one the fused order already is the final order.
func (c *Core) retrieve(ctx context.Context, h *Handle, query string, k int, useVector bool) ([]Candidate, []string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := h.failIfCorrupt(); err != nil {
		return nil, nil, err
	}

	var res *search.Result
	var err error
	if useVector {
		res, err = h.engine.Search(ctx, query, k)
	} else {
		res, err = h.engine.SearchKeywordOnly(ctx, query, k)
	}
	if err != nil {
		return nil, nil, err
	}

	degraded := res.Degraded

	ids := make([]string, len(res.Hits))
	byID := make(map[string]search.Hit, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ChunkID
		byID[hit.ChunkID] = hit
	}

	chunks, err := h.chunks.GetMany(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	if c.llmOn {
		var reason string
		chunks, reason = c.reranker.Rerank(ctx, query, chunks, k)
		if reason != "" {
			degraded = append(degraded, reason)
		}
	}

	candidates := make([]Candidate, 0, len(chunks))
	for _, ch := range chunks {
		hit := byID[ch.ID]
		candidates = append(candidates, Candidate{
			ChunkID:      ch.ID,
			Path:         ch.Path,
			StartLine:    ch.StartLine,
			EndLine:      ch.EndLine,
			Score:        hit.Score,
			KeywordScore: hit.KeywordScore,
			VectorScore:  hit.VectorScore,
			Text:         ch.Text,
		})
	}
	return candidates, degraded, nil
}

// Answer retrieves candidates and optionally reranks them and composes a
// short cited answer. LLM trouble degrades to candidates-only.
func (c *Core) Answer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	searchResp, err := c.Search(ctx, SearchRequest{
		Project:    req.Project,
		WorkingDir: req.WorkingDir,
		Query:      req.Query,
		K:          req.K,
		UseVector:  true,
		AutoIndex:  true,
	})
	if err != nil {
		return nil, err
	}

	resp := &AnswerResponse{
		Project:    searchResp.Project,
		Candidates: searchResp.Candidates,
		Degraded:   searchResp.Degraded,
	}

	// An explicit rerank request runs even when c.llmOn is false, so the
	// caller sees why the ordering did not change.
	if req.Rerank && !c.llmOn {
		chunks := candidateChunks(resp.Candidates)
		ordered, reason := c.reranker.Rerank(ctx, req.Query, chunks, clampK(req.K))
		resp.Candidates = reorderCandidates(resp.Candidates, ordered)
		if reason != "" {
			resp.Degraded = dedupeReasons(append(resp.Degraded, reason))
		}
	}

	if req.Accumulate && len(resp.Candidates) > 0 {
		answer, err := c.composeAnswer(ctx, req.Query, resp.Candidates)
		if err != nil {
			c.log.Warn("answer_generation_failed", slog.String("error", err.Error()))
			resp.Degraded = dedupeReasons(append(resp.Degraded, DegradedAnswer))
		} else {
			resp.Answer = answer
		}
	}

	return resp, nil
}

// composeAnswer asks the LLM for a short answer grounded in the candidates.
func (c *Core) composeAnswer(ctx context.Context, query string, candidates []Candidate) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nSnippets:\n", query)
	for _, cand := range candidates {
		fmt.Fprintf(&sb, "--- %s:%d-%d\n%s\n", cand.Path, cand.StartLine, cand.EndLine, cand.Text)
	}

	return c.llm.Complete(ctx, sb.String(), llm.Options{
		System:      answerSystemPrompt,
		Temperature: 0,
		MaxTokens:   512,
	})
}

func clampK(k int) int {
	if k <= 0 {
		return DefaultK
	}
	if k > MaxK {
		return MaxK
	}
	return k
}

func dedupeReasons(reasons []string) []string {
	seen := make(map[string]struct{}, len(reasons))
	out := reasons[:0]
	for _, r := range reasons {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func candidateChunks(candidates []Candidate) []*chunk.Chunk {
	out := make([]*chunk.Chunk, len(candidates))
	for i, c := range candidates {
		out[i] = &chunk.Chunk{
			ID:        c.ChunkID,
			Path:      c.Path,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Text:      c.Text,
		}
	}
	return out
}

func reorderCandidates(candidates []Candidate, ordered []*chunk.Chunk) []Candidate {
	byID := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ChunkID] = c
	}
	out := make([]Candidate, 0, len(ordered))
	for _, ch := range ordered {
		if c, ok := byID[ch.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}
