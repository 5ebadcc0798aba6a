// Package rerank orders fused candidates with an LLM pass. Every failure
// mode falls back to the fused order: reranking improves ranking quality but
// is never allowed to break search.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zoonderkins/augment-lite-mcp/internal/chunk"
	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
	"github.com/zoonderkins/augment-lite-mcp/internal/llm"
	"github.com/zoonderkins/augment-lite-mcp/internal/search"
)

const (
	// DefaultChunkBytes caps how much of each chunk enters the prompt.
	DefaultChunkBytes = 2048

	// DefaultTimeout is the hard budget for the whole rerank pass.
	DefaultTimeout = 30 * time.Second

	// maxAttempts is 1 initial try plus 2 retries, all within the timeout.
	maxAttempts = 3
)

const systemPrompt = "You rank code snippets by relevance to a query. " +
	"Reply with only a JSON array of snippet numbers, most relevant first. " +
	"Example: [3,1,7]"

// Reranker runs the LLM ordering pass.
type Reranker struct {
	provider   llm.Provider
	chunkBytes int
	timeout    time.Duration
}

// New creates a reranker. Zero config fields take defaults.
func New(provider llm.Provider, chunkBytes int, timeout time.Duration) *Reranker {
	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Reranker{provider: provider, chunkBytes: chunkBytes, timeout: timeout}
}

// Rerank returns up to k candidates ordered by LLM relevance. The second
// return value is a degraded reason ("" on success): the caller surfaces it
// but still gets a usable ordering, since failures fall back to the input
// order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []*chunk.Chunk, k int) ([]*chunk.Chunk, string) {
	if k > len(candidates) {
		k = len(candidates)
	}
	if len(candidates) <= 1 {
		return candidates[:k], ""
	}
	if r.provider == nil || !r.provider.Available(ctx) {
		return candidates[:k], search.DegradedRerank
	}

	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := r.buildPrompt(query, candidates)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if rctx.Err() != nil {
			break
		}

		response, err := r.provider.Complete(rctx, prompt, llm.Options{
			System:      systemPrompt,
			Temperature: 0,
			MaxTokens:   256,
		})
		if err != nil {
			lastErr = err
			if !apperr.IsRetryable(err) {
				break
			}
			continue
		}

		order, err := parseSelection(response, len(candidates))
		if err != nil {
			lastErr = err
			continue // a malformed reply is worth one more try
		}

		return applyOrder(candidates, order, k), ""
	}

	reason := search.DegradedRerank
	if rctx.Err() == context.DeadlineExceeded {
		reason = search.DegradedTimeout
	}
	if lastErr != nil {
		slog.Warn("rerank_failed",
			slog.String("reason", reason),
			slog.String("error", lastErr.Error()))
	}
	return candidates[:k], reason
}

// buildPrompt numbers candidates 1..n with truncated text.
func (r *Reranker) buildPrompt(query string, candidates []*chunk.Chunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nSnippets:\n", query)
	for i, c := range candidates {
		text := c.Text
		if len(text) > r.chunkBytes {
			text = text[:r.chunkBytes]
		}
		fmt.Fprintf(&sb, "[%d] %s (lines %d-%d)\n%s\n\n", i+1, c.Path, c.StartLine, c.EndLine, text)
	}
	fmt.Fprintf(&sb, "Rank the snippets by relevance to the query. JSON array of numbers only.")
	return sb.String()
}

// parseSelection extracts the first JSON array of 1-based snippet numbers.
// Out-of-range and duplicate entries are dropped; an empty result is an
// error so a useless reply triggers fallback instead of empty output.
func parseSelection(response string, n int) ([]int, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in rerank response")
	}

	var nums []int
	if err := json.Unmarshal([]byte(response[start:end+1]), &nums); err != nil {
		return nil, fmt.Errorf("parse rerank selection: %w", err)
	}

	seen := make(map[int]bool, len(nums))
	order := make([]int, 0, len(nums))
	for _, num := range nums {
		idx := num - 1
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("rerank selection empty after validation")
	}
	return order, nil
}

// applyOrder lists selected candidates first, then unselected ones in their
// original order, truncated to k.
func applyOrder(candidates []*chunk.Chunk, order []int, k int) []*chunk.Chunk {
	out := make([]*chunk.Chunk, 0, k)
	taken := make(map[int]bool, len(order))

	for _, idx := range order {
		out = append(out, candidates[idx])
		taken[idx] = true
		if len(out) == k {
			return out
		}
	}
	for i, c := range candidates {
		if taken[i] {
			continue
		}
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out
}
