package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoonderkins/augment-lite-mcp/internal/embed"
	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
	"github.com/zoonderkins/augment-lite-mcp/internal/search"
	"github.com/zoonderkins/augment-lite-mcp/internal/state"
	"github.com/zoonderkins/augment-lite-mcp/internal/store"
)

type fixture struct {
	indexer *Indexer
	root    string
	chunks  *store.ChunkStore
	keyword *store.BleveKeywordIndex
	vector  *store.HNSWVectorIndex
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, embed.NewLocalEmbedder(32))
}

func newFixtureWith(t *testing.T, embedder embed.Embedder) *fixture {
	t.Helper()
	root := t.TempDir()
	dataDir := t.TempDir()

	st, err := state.Load(filepath.Join(dataDir, "state.jsonl"))
	require.NoError(t, err)

	chunks, err := store.NewChunkStore(filepath.Join(dataDir, "chunks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { chunks.Close() })

	keyword, err := store.NewBleveKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { keyword.Close() })

	vector, err := store.NewHNSWVectorIndex(store.VectorConfig{Dimensions: 32})
	require.NoError(t, err)
	t.Cleanup(func() { vector.Close() })

	idx := New(Config{
		ProjectID:   "testproj",
		Root:        root,
		StatePath:   filepath.Join(dataDir, "state.jsonl"),
		FreshWindow: time.Hour, // tests control dirtiness explicitly
	}, st, chunks, keyword, vector, embedder)

	return &fixture{indexer: idx, root: root, chunks: chunks, keyword: keyword, vector: vector}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCatchUpIndexesNewFiles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "main.go", "package main\n\nfunc main() {}\n")
	f.write(t, "util.go", "package main\n\nfunc helper() {}\n")

	stats, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Added)
	assert.Zero(t, stats.Modified)
	assert.Zero(t, stats.Deleted)
	assert.Empty(t, stats.Degraded)

	n, err := f.chunks.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.keyword.DocCount())
	assert.Equal(t, 2, f.vector.Count())
	assert.Equal(t, 2, f.indexer.TrackedFiles())
}

func TestCatchUpFreshWindowSkips(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.go", "package a\n")

	_, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)

	stats, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Skipped)

	// Dirty forces a rescan inside the window.
	f.indexer.MarkDirty()
	stats, err = f.indexer.CatchUp(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.Skipped)
}

func TestCatchUpDetectsModification(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.go", "package a\n")

	_, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)

	// Ensure a different mtime even on coarse-grained filesystems.
	time.Sleep(10 * time.Millisecond)
	f.write(t, "a.go", "package a\n\nfunc Changed() {}\n")
	f.indexer.MarkDirty()

	stats, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Modified)
	assert.Zero(t, stats.Added)

	results, err := f.keyword.Search(context.Background(), "Changed", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestCatchUpTouchWithoutEditRefreshesOnly(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.go", "package a\n")

	_, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)

	// Same content, new mtime.
	now := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(f.root, "a.go"), now, now))
	f.indexer.MarkDirty()

	stats, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Modified)
	assert.Zero(t, stats.Added)
}

func TestCatchUpDeletesRemovedFiles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.go", "package a\n")
	f.write(t, "b.go", "package b\n")

	_, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(f.root, "b.go")))
	f.indexer.MarkDirty()

	stats, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)

	assert.Equal(t, 1, f.keyword.DocCount())
	assert.Equal(t, 1, f.vector.Count())
	assert.Equal(t, 1, f.indexer.TrackedFiles())
}

func TestCatchUpSkipsBinaryAndUnknown(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.go", "package a\n")
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "blob.bin"), []byte{1, 0, 2}, 0o644))
	f.write(t, "noext", "some text")

	stats, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Added)

	n, err := f.chunks.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCatchUpReplacesChunkRangeOnShrink(t *testing.T) {
	f := newFixture(t)

	// 130 lines -> 4 chunks.
	long := "package a\n"
	for i := 0; i < 129; i++ {
		long += "// filler line\n"
	}
	f.write(t, "a.go", long)

	_, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)

	n, err := f.chunks.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	time.Sleep(10 * time.Millisecond)
	f.write(t, "a.go", "package a\n")
	f.indexer.MarkDirty()

	_, err = f.indexer.CatchUp(context.Background())
	require.NoError(t, err)

	n, err = f.chunks.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "stale ordinals removed")
	assert.Equal(t, 1, f.keyword.DocCount())
	assert.Equal(t, 1, f.vector.Count())
}

// flakyEmbedder fails its first n EmbedBatch calls, then delegates.
type flakyEmbedder struct {
	embed.Embedder
	failures int
	calls    int
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, apperr.New(apperr.KindUnavailable, "embedder down")
	}
	return f.Embedder.EmbedBatch(ctx, texts)
}

func TestCatchUpRetriesEmbedFailure(t *testing.T) {
	emb := &flakyEmbedder{Embedder: embed.NewLocalEmbedder(32), failures: 1}
	f := newFixtureWith(t, emb)
	f.write(t, "a.go", "package a\n")

	stats, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Added)
	assert.Equal(t, []string{search.DegradedEmbedder}, stats.Degraded)
	assert.Equal(t, 1, f.keyword.DocCount(), "keyword side still serves the file")
	assert.Zero(t, f.vector.Count())
	assert.Zero(t, f.indexer.TrackedFiles(), "no state record until vectors land")

	// The degraded pass left the tree dirty; the next one backfills the
	// vectors without an explicit MarkDirty or rebuild.
	stats, err = f.indexer.CatchUp(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.Skipped)
	assert.Empty(t, stats.Degraded)
	assert.Equal(t, 1, f.vector.Count())
	assert.Equal(t, 1, f.indexer.TrackedFiles())

	// Healthy and clean again: the fresh window applies.
	stats, err = f.indexer.CatchUp(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Skipped)
}

// stuckEmbedder blocks until the pass is cancelled.
type stuckEmbedder struct {
	embed.Embedder
}

func (s *stuckEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCatchUpAbortsWhenStalled(t *testing.T) {
	f := newFixtureWith(t, &stuckEmbedder{Embedder: embed.NewLocalEmbedder(32)})
	f.indexer.cfg.IdleDeadline = 50 * time.Millisecond
	f.write(t, "a.go", "package a\n")

	_, err := f.indexer.CatchUp(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindTransient))
	assert.Contains(t, err.Error(), "no progress")
}

func TestRebuild(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.go", "package a\n")

	_, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)

	stats, err := f.indexer.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Added, "everything re-indexed from scratch")

	n, err := f.chunks.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCatchUpStatePersisted(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.go", "package a\n")

	_, err := f.indexer.CatchUp(context.Background())
	require.NoError(t, err)

	st, err := state.Load(f.indexer.cfg.StatePath)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Len())
}
