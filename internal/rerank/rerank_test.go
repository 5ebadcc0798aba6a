package rerank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoonderkins/augment-lite-mcp/internal/chunk"
	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
	"github.com/zoonderkins/augment-lite-mcp/internal/llm"
	"github.com/zoonderkins/augment-lite-mcp/internal/search"
)

type fakeProvider struct {
	responses []string
	errs      []error
	calls     int
	available bool
	delay     time.Duration
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	i := f.calls
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", apperr.New(apperr.KindUnavailable, "no scripted response")
}

func (f *fakeProvider) ModelName() string                  { return "fake" }
func (f *fakeProvider) Available(ctx context.Context) bool { return f.available }

func testChunks(n int) []*chunk.Chunk {
	out := make([]*chunk.Chunk, n)
	for i := range out {
		out[i] = &chunk.Chunk{
			ID:        chunk.ChunkID("p", "f.go", i),
			Path:      "f.go",
			Ordinal:   i,
			StartLine: i*40 + 1,
			EndLine:   i*40 + 50,
			Text:      "body",
		}
	}
	return out
}

func TestRerankAppliesSelection(t *testing.T) {
	p := &fakeProvider{available: true, responses: []string{"[3,1]"}}
	r := New(p, 0, 0)

	chunks := testChunks(3)
	out, reason := r.Rerank(context.Background(), "q", chunks, 3)
	require.Empty(t, reason)
	require.Len(t, out, 3)
	assert.Equal(t, chunks[2], out[0])
	assert.Equal(t, chunks[0], out[1])
	// Unselected candidate fills the tail in original order.
	assert.Equal(t, chunks[1], out[2])
}

func TestRerankFailsOpenWhenUnavailable(t *testing.T) {
	p := &fakeProvider{available: false}
	r := New(p, 0, 0)

	chunks := testChunks(3)
	out, reason := r.Rerank(context.Background(), "q", chunks, 2)
	assert.Equal(t, search.DegradedRerank, reason)
	require.Len(t, out, 2)
	assert.Equal(t, chunks[0], out[0])
	assert.Zero(t, p.calls)
}

func TestRerankRetriesOnMalformedReply(t *testing.T) {
	p := &fakeProvider{available: true, responses: []string{"garbage", "[2]"}}
	r := New(p, 0, 0)

	chunks := testChunks(2)
	out, reason := r.Rerank(context.Background(), "q", chunks, 2)
	require.Empty(t, reason)
	assert.Equal(t, 2, p.calls)
	assert.Equal(t, chunks[1], out[0])
}

func TestRerankGivesUpAfterRetries(t *testing.T) {
	p := &fakeProvider{available: true, responses: []string{"x", "y", "z", "[1]"}}
	r := New(p, 0, 0)

	chunks := testChunks(2)
	out, reason := r.Rerank(context.Background(), "q", chunks, 2)
	assert.Equal(t, search.DegradedRerank, reason)
	assert.Equal(t, 3, p.calls, "one initial attempt plus two retries")
	assert.Equal(t, chunks[0], out[0], "fused order preserved on failure")
}

func TestRerankTimeout(t *testing.T) {
	p := &fakeProvider{available: true, delay: time.Second, responses: []string{"[1]"}}
	r := New(p, 0, 50*time.Millisecond)

	chunks := testChunks(2)
	out, reason := r.Rerank(context.Background(), "q", chunks, 2)
	assert.Equal(t, search.DegradedTimeout, reason)
	require.Len(t, out, 2)
}

func TestRerankNonRetryableErrorStops(t *testing.T) {
	p := &fakeProvider{
		available: true,
		errs:      []error{apperr.New(apperr.KindUnavailable, "bad key")},
	}
	r := New(p, 0, 0)

	_, reason := r.Rerank(context.Background(), "q", testChunks(2), 2)
	assert.Equal(t, search.DegradedRerank, reason)
	assert.Equal(t, 1, p.calls)
}

func TestRerankSingleCandidateSkipsLLM(t *testing.T) {
	p := &fakeProvider{available: true}
	r := New(p, 0, 0)

	out, reason := r.Rerank(context.Background(), "q", testChunks(1), 5)
	assert.Empty(t, reason)
	assert.Len(t, out, 1)
	assert.Zero(t, p.calls)
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name     string
		response string
		n        int
		want     []int
		wantErr  bool
	}{
		{"plain", "[2,1,3]", 3, []int{1, 0, 2}, false},
		{"prose around", "Sure! Here: [1,2] done", 2, []int{0, 1}, false},
		{"dedup and range", "[1,1,9,2]", 2, []int{0, 1}, false},
		{"no array", "nothing", 2, nil, true},
		{"all invalid", "[9,10]", 2, nil, true},
		{"not numbers", `["a","b"]`, 2, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSelection(tt.response, tt.n)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPromptTruncatesChunks(t *testing.T) {
	r := New(&fakeProvider{available: true}, 10, 0)
	long := &chunk.Chunk{Path: "f.go", Text: "0123456789abcdef", StartLine: 1, EndLine: 2}

	prompt := r.buildPrompt("q", []*chunk.Chunk{long})
	assert.Contains(t, prompt, "0123456789")
	assert.NotContains(t, prompt, "abcdef")
}
