package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
	"github.com/zoonderkins/augment-lite-mcp/internal/index"
	"github.com/zoonderkins/augment-lite-mcp/internal/project"
	"github.com/zoonderkins/augment-lite-mcp/internal/search"
	"github.com/zoonderkins/augment-lite-mcp/internal/state"
	"github.com/zoonderkins/augment-lite-mcp/internal/store"
	"github.com/zoonderkins/augment-lite-mcp/internal/symbols"
	"github.com/zoonderkins/augment-lite-mcp/internal/watcher"
)

// Handle bundles one project's open stores behind the project lock:
// catch-up and rebuild take it exclusively, queries share it.
type Handle struct {
	project    project.Project
	dir        string
	vectorPath string

	mu           sync.RWMutex
	needsRebuild bool

	state   *state.IndexState
	chunks  *store.ChunkStore
	keyword store.KeywordIndex
	vector  store.VectorIndex
	symbols *symbols.Index
	indexer *index.Indexer
	engine  *search.Engine
	watcher *watcher.Watcher
}

// openHandle opens (or creates) every backing store under the project's
// data directory. A corrupt state or vector file does not fail the open;
// the project comes up flagged for rebuild instead.
func openHandle(c *Core, p project.Project) (*Handle, error) {
	dir := c.registry.ProjectDir(p.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}

	h := &Handle{
		project:    p,
		dir:        dir,
		vectorPath: filepath.Join(dir, "vector.idx"),
	}

	statePath := filepath.Join(dir, "state.jsonl")
	st, err := state.Load(statePath)
	if err != nil {
		if !apperr.IsKind(err, apperr.KindCorrupt) {
			return nil, err
		}
		c.log.Warn("state_corrupt",
			slog.String("project", p.ID),
			slog.String("error", err.Error()))
		st = state.New(statePath)
		h.needsRebuild = true
	}
	h.state = st

	h.chunks, err = store.NewChunkStore(filepath.Join(dir, "chunks.db"))
	if err != nil {
		return nil, err
	}

	h.keyword, err = store.NewBleveKeywordIndex(filepath.Join(dir, "keyword.db"))
	if err != nil {
		h.chunks.Close()
		return nil, err
	}

	vcfg := store.VectorConfig{Dimensions: c.embedder.Dimensions()}
	h.vector, err = store.OpenHNSWVectorIndex(h.vectorPath, vcfg)
	if err != nil {
		if !apperr.IsKind(err, apperr.KindCorrupt) && !apperr.IsKind(err, apperr.KindDimensionMismatch) {
			h.keyword.Close()
			h.chunks.Close()
			return nil, err
		}
		// Unusable vector file (half-written, or the embedder dimension
		// changed): start fresh and rebuild.
		c.log.Warn("vector_index_reset",
			slog.String("project", p.ID),
			slog.String("error", err.Error()))
		h.vector, err = store.NewHNSWVectorIndex(vcfg)
		if err != nil {
			h.keyword.Close()
			h.chunks.Close()
			return nil, err
		}
		h.needsRebuild = true
	}

	h.symbols, err = symbols.OpenIndex(p.Path, filepath.Join(dir, "symbols.db"))
	if err != nil {
		h.vector.Close()
		h.keyword.Close()
		h.chunks.Close()
		return nil, err
	}

	h.indexer = index.New(index.Config{
		ProjectID:      p.ID,
		Root:           p.Path,
		StatePath:      statePath,
		MaxFileSize:    c.cfg.Index.MaxFileSize,
		CatchUpTimeout: c.cfg.Index.CatchUpTimeout,
		FreshWindow:    c.cfg.Index.FreshWindow,
		IdleDeadline:   c.cfg.Index.IdleDeadline,
		Workers:        c.cfg.Index.Workers,
	}, st, h.chunks, h.keyword, h.vector, c.embedder)

	h.engine = search.NewEngine(h.keyword, h.vector, c.embedder, search.Config{
		Weights: search.Weights{
			Keyword: c.cfg.Search.KeywordWeight,
			Vector:  c.cfg.Search.VectorWeight,
		},
		MaxPerFile: c.cfg.Search.MaxPerFile,
	})

	return h, nil
}

// startWatcher begins debounced change tracking for the project tree.
// Watcher failures are logged, not fatal: without one, every catch-up scans.
func (h *Handle) startWatcher(ctx context.Context, debounce time.Duration) {
	w, err := watcher.New(h.project.Path, debounce, h.indexer.MarkDirty)
	if err != nil {
		slog.Warn("watcher_start_failed",
			slog.String("project", h.project.ID),
			slog.String("error", err.Error()))
		return
	}
	h.watcher = w
	go w.Run(ctx)
}

// CatchUp brings the project's indexes up to date under the write lock. A
// project flagged needs-rebuild rebuilds instead, since catch-up is a write.
func (h *Handle) CatchUp(ctx context.Context) (index.Stats, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.needsRebuild {
		return h.rebuildLocked(ctx, false)
	}

	stats, err := h.indexer.CatchUp(ctx)
	if err != nil {
		return stats, err
	}
	h.saveVectorLocked(stats)
	return stats, nil
}

// Rebuild drops all derived data and re-indexes from scratch.
func (h *Handle) Rebuild(ctx context.Context, dropVectors bool) (index.Stats, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rebuildLocked(ctx, dropVectors)
}

func (h *Handle) rebuildLocked(ctx context.Context, dropVectors bool) (index.Stats, error) {
	if dropVectors {
		os.Remove(h.vectorPath)
		os.Remove(h.vectorPath + ".meta")
	}

	stats, err := h.indexer.Rebuild(ctx)
	if err != nil {
		return stats, err
	}
	h.needsRebuild = false
	h.saveVectorLocked(stats)
	return stats, nil
}

func (h *Handle) saveVectorLocked(stats index.Stats) {
	if stats.Added+stats.Modified+stats.Deleted == 0 {
		return
	}
	if err := h.vector.Save(h.vectorPath); err != nil {
		slog.Warn("vector_save_failed",
			slog.String("project", h.project.ID),
			slog.String("error", err.Error()))
	}
}

// failIfCorrupt guards read paths: a project flagged needs-rebuild serves
// no queries until rebuilt.
func (h *Handle) failIfCorrupt() error {
	if h.needsRebuild {
		return apperr.Newf(apperr.KindCorrupt,
			"project %s needs a rebuild; run index_rebuild", h.project.ID)
	}
	return nil
}

// Status reports per-store counts and cross-store consistency.
func (h *Handle) Status(ctx context.Context) (*StatusResponse, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	chunks, err := h.chunks.Count(ctx)
	if err != nil {
		return nil, err
	}
	keywordIDs, err := h.keyword.AllIDs()
	if err != nil {
		return nil, err
	}

	// Symmetric difference of the two chunk-ID sets. Both directions count:
	// keyword-only chunks (embedder was down) and vector-only leftovers.
	missing := 0
	for _, id := range keywordIDs {
		if !h.vector.Contains(id) {
			missing++
		}
	}
	common := len(keywordIDs) - missing
	gap := missing + (h.vector.Count() - common)

	return &StatusResponse{
		Project:        h.project,
		Files:          h.indexer.TrackedFiles(),
		Chunks:         chunks,
		KeywordDocs:    len(keywordIDs),
		Vectors:        h.vector.Count(),
		ConsistencyGap: gap,
		VectorOrphans:  h.vector.Orphans(),
		LastCatchUp:    h.indexer.LastCatchUp(),
		NeedsRebuild:   h.needsRebuild,
	}, nil
}

// Close persists what needs persisting and closes every store.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.watcher != nil {
		h.watcher.Close()
	}

	var firstErr error
	if h.vector.Count() > 0 {
		if err := h.vector.Save(h.vectorPath); err != nil {
			firstErr = err
		}
	}
	if err := h.vector.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := h.keyword.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := h.symbols.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := h.chunks.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
