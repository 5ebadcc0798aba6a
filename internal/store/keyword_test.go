package store

import (
	"context"
	"testing"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemIndex(t *testing.T) *BleveKeywordIndex {
	t.Helper()
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func terms(stream analysis.TokenStream) []string {
	out := make([]string, len(stream))
	for i, tok := range stream {
		out[i] = string(tok.Term)
	}
	return out
}

func TestQueryTokenizer(t *testing.T) {
	tok := &queryTokenizer{}

	tests := []struct {
		input string
		want  []string
	}{
		{"getUserData", []string{"getuserdata"}},
		{"get_user_data", []string{"get_user_data"}},
		{"parse-query v2", []string{"parse", "query", "v2"}},
		{"foo.bar(baz)", []string{"foo", "bar", "baz"}},
		{"if x == 10", []string{"if", "x", "10"}},
		{"", nil},
		{"   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, terms(tok.Tokenize([]byte(tt.input))))
		})
	}
}

func TestQueryTokenizerCJK(t *testing.T) {
	tok := &queryTokenizer{}
	got := terms(tok.Tokenize([]byte("检索engine")))
	assert.Equal(t, []string{"检", "索", "engine"}, got)
}

func TestKeywordIndexAndSearch(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	docs := []*Document{
		{ID: "p:auth.go:0", Content: "func Login(user string) error { return checkPassword(user) }"},
		{ID: "p:auth.go:1", Content: "func Logout(session *Session) { session.Invalidate() }"},
		{ID: "p:db.go:0", Content: "func OpenDatabase(dsn string) (*DB, error)"},
	}
	require.NoError(t, idx.Index(ctx, docs))
	assert.Equal(t, 3, idx.DocCount())

	results, err := idx.Search(ctx, "login user", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "p:auth.go:0", results[0].ChunkID)
}

func TestKeywordSearchEmptyQuery(t *testing.T) {
	idx := newMemIndex(t)
	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestKeywordSearchStopwordsNotRemoved(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "a", Content: "if err != nil return err"},
		{ID: "b", Content: "parse the config file"},
	}))

	// "if" matches as a real term.
	results, err := idx.Search(ctx, "if", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestKeywordDelete(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "x", Content: "alpha beta"},
		{ID: "y", Content: "alpha gamma"},
	}))
	require.NoError(t, idx.Delete(ctx, []string{"x"}))

	results, err := idx.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "y", results[0].ChunkID)

	// Deleting an unknown ID is a no-op.
	require.NoError(t, idx.Delete(ctx, []string{"missing"}))
}

func TestKeywordAllIDs(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "a", Content: "one"},
		{ID: "b", Content: "two"},
	}))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestKeywordTieBreakByChunkID(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	// Identical content scores identically; order falls back to ID.
	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "p:z.go:0", Content: "widget factory"},
		{ID: "p:a.go:0", Content: "widget factory"},
	}))

	results, err := idx.Search(ctx, "widget", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "p:a.go:0", results[0].ChunkID)
	assert.Equal(t, "p:z.go:0", results[1].ChunkID)
}

func TestKeywordClosed(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.Close())

	_, err := idx.Search(context.Background(), "x", 1)
	assert.Error(t, err)
	assert.Error(t, idx.Index(context.Background(), []*Document{{ID: "a", Content: "b"}}))
}
