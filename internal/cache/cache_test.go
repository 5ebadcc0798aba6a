package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoonderkins/augment-lite-mcp/internal/embed"
)

func newCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), embed.NewLocalEmbedder(64), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKeyNormalization(t *testing.T) {
	a := Key("  How does LOGIN work?  ", "p1", 10)
	b := Key("how does login work?", "p1", 10)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Key("how does login work?", "p2", 10))
	assert.NotEqual(t, a, Key("how does login work?", "p1", 5))
}

func TestExactHit(t *testing.T) {
	c := newCache(t, Config{})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "find login", "p1", 10, []byte(`{"r":1}`)))

	e, tier, ok := c.Get(ctx, "  FIND LOGIN ", "p1", 10)
	require.True(t, ok)
	assert.Equal(t, TierExact, tier)
	assert.Equal(t, []byte(`{"r":1}`), e.Payload)

	stats := c.Status()
	assert.Equal(t, uint64(1), stats.ExactHits)
	assert.Equal(t, 1, stats.Entries)
}

func TestMiss(t *testing.T) {
	c := newCache(t, Config{})
	_, _, ok := c.Get(context.Background(), "nothing cached", "p1", 10)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Status().Misses)
}

func TestSemanticHitIdenticalTextDifferentK(t *testing.T) {
	// Same normalized query at a different k misses exact but the embedding
	// matches at similarity 1.0.
	c := newCache(t, Config{})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "find the login handler", "p1", 10, []byte("x")))

	e, tier, ok := c.Get(ctx, "find the login handler", "p1", 5)
	require.True(t, ok)
	assert.Equal(t, TierSemantic, tier)
	assert.Equal(t, []byte("x"), e.Payload)
}

func TestSemanticHitWritesThroughToExact(t *testing.T) {
	c := newCache(t, Config{})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "find the login handler", "p1", 10, []byte("x")))

	_, tier, ok := c.Get(ctx, "find the login handler", "p1", 5)
	require.True(t, ok)
	require.Equal(t, TierSemantic, tier)

	// The paraphrase is now aliased; repeating it is an exact hit.
	e, tier, ok := c.Get(ctx, "find the login handler", "p1", 5)
	require.True(t, ok)
	assert.Equal(t, TierExact, tier)
	assert.Equal(t, []byte("x"), e.Payload)

	stats := c.Status()
	assert.Equal(t, uint64(1), stats.SemanticHits)
	assert.Equal(t, uint64(1), stats.ExactHits)
}

func TestSemanticRespectsProject(t *testing.T) {
	c := newCache(t, Config{})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "find the login handler", "p1", 10, []byte("x")))

	_, _, ok := c.Get(ctx, "find the login handler", "p2", 5)
	assert.False(t, ok)
}

func TestSemanticsOff(t *testing.T) {
	c := newCache(t, Config{SemanticsOff: true})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "query text", "p1", 10, []byte("x")))
	_, _, ok := c.Get(ctx, "query text", "p1", 5)
	assert.False(t, ok)
}

func TestPersistenceAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	emb := embed.NewLocalEmbedder(64)
	ctx := context.Background()

	c1, err := Open(path, emb, Config{})
	require.NoError(t, err)
	require.NoError(t, c1.Put(ctx, "persisted query", "p1", 10, []byte("payload")))
	require.NoError(t, c1.Close())

	c2, err := Open(path, emb, Config{})
	require.NoError(t, err)
	defer c2.Close()

	e, tier, ok := c2.Get(ctx, "persisted query", "p1", 10)
	require.True(t, ok)
	assert.Equal(t, TierExact, tier)
	assert.Equal(t, []byte("payload"), e.Payload)
}

func TestTTLExpiry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	emb := embed.NewLocalEmbedder(64)
	ctx := context.Background()

	c1, err := Open(path, emb, Config{TTL: 50 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, c1.Put(ctx, "short lived", "p1", 10, []byte("x")))
	require.NoError(t, c1.Close())

	time.Sleep(60 * time.Millisecond)

	// Re-open after the TTL: the entry must not be warmed back in.
	c2, err := Open(path, emb, Config{TTL: 50 * time.Millisecond})
	require.NoError(t, err)
	defer c2.Close()

	_, _, ok := c2.Get(ctx, "short lived", "p1", 10)
	assert.False(t, ok)
}

func TestClearAll(t *testing.T) {
	c := newCache(t, Config{})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "q1", "p1", 10, []byte("a")))
	require.NoError(t, c.Put(ctx, "q2", "p2", 10, []byte("b")))

	n, err := c.Clear(ctx, ScopeAll, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, c.Status().Entries)

	_, _, ok := c.Get(ctx, "q1", "p1", 10)
	assert.False(t, ok)
}

func TestClearProject(t *testing.T) {
	c := newCache(t, Config{})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "q1", "p1", 10, []byte("a")))
	require.NoError(t, c.Put(ctx, "q2", "p2", 10, []byte("b")))

	n, err := c.Clear(ctx, ScopeProject, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, ok := c.Get(ctx, "q1", "p1", 10)
	assert.False(t, ok)
	_, _, ok = c.Get(ctx, "q2", "p2", 10)
	assert.True(t, ok)
}

func TestClearProjectRequiresID(t *testing.T) {
	c := newCache(t, Config{})
	_, err := c.Clear(context.Background(), ScopeProject, "")
	assert.Error(t, err)
}

func TestClearUnknownScope(t *testing.T) {
	c := newCache(t, Config{})
	_, err := c.Clear(context.Background(), Scope("bogus"), "")
	assert.Error(t, err)
}

func TestLRUEviction(t *testing.T) {
	c := newCache(t, Config{MaxEntries: 2})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "q1", "p1", 10, []byte("a")))
	require.NoError(t, c.Put(ctx, "q2", "p1", 10, []byte("b")))
	require.NoError(t, c.Put(ctx, "q3", "p1", 10, []byte("c")))

	assert.Equal(t, 2, c.Status().Entries)
	_, _, ok := c.Get(ctx, "q3", "p1", 10)
	assert.True(t, ok)
}
