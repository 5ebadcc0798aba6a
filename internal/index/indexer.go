// Package index keeps a project's indexes in sync with its working tree.
//
// Catch-up is the only write path: scan the tree, diff against the recorded
// state, and apply deletions and upserts to the chunk store, keyword index,
// and vector index. Concurrent callers coalesce onto one pass.
package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/zoonderkins/augment-lite-mcp/internal/chunk"
	"github.com/zoonderkins/augment-lite-mcp/internal/embed"
	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
	"github.com/zoonderkins/augment-lite-mcp/internal/scanner"
	"github.com/zoonderkins/augment-lite-mcp/internal/search"
	"github.com/zoonderkins/augment-lite-mcp/internal/state"
	"github.com/zoonderkins/augment-lite-mcp/internal/store"
)

// Defaults per config.
const (
	DefaultCatchUpTimeout = 5 * time.Minute
	DefaultFreshWindow    = 60 * time.Second
	DefaultIdleDeadline   = 60 * time.Second
)

// Stats summarizes one catch-up pass.
type Stats struct {
	Added      int      `json:"added"`
	Modified   int      `json:"modified"`
	Deleted    int      `json:"deleted"`
	Errors     int      `json:"errors"`
	DurationMs int64    `json:"durationMs"`
	Degraded   []string `json:"degraded,omitempty"`
	Skipped    bool     `json:"skipped,omitempty"` // fresh within the window, nothing dirty
}

// Config wires an Indexer.
type Config struct {
	ProjectID      string
	Root           string
	StatePath      string
	MaxFileSize    int64
	CatchUpTimeout time.Duration
	// FreshWindow reuses the previous pass when it finished within this
	// window and the tree was not marked dirty.
	FreshWindow time.Duration
	// IdleDeadline aborts a pass that processes no file for this long.
	IdleDeadline time.Duration
	// Workers bounds files indexed in parallel. 0 means GOMAXPROCS.
	Workers int
}

// Indexer synchronizes one project's indexes with its tree.
type Indexer struct {
	cfg      Config
	scanner  *scanner.Scanner
	state    *state.IndexState
	chunks   *store.ChunkStore
	keyword  store.KeywordIndex
	vector   store.VectorIndex
	embedder embed.Embedder

	group singleflight.Group
	dirty atomic.Bool

	mu          sync.Mutex
	lastCatchUp time.Time
}

// New creates an indexer over already-opened stores.
func New(cfg Config, st *state.IndexState, chunks *store.ChunkStore, keyword store.KeywordIndex, vector store.VectorIndex, embedder embed.Embedder) *Indexer {
	if cfg.CatchUpTimeout <= 0 {
		cfg.CatchUpTimeout = DefaultCatchUpTimeout
	}
	if cfg.FreshWindow <= 0 {
		cfg.FreshWindow = DefaultFreshWindow
	}
	if cfg.IdleDeadline <= 0 {
		cfg.IdleDeadline = DefaultIdleDeadline
	}
	idx := &Indexer{
		cfg:      cfg,
		scanner:  scanner.New(),
		state:    st,
		chunks:   chunks,
		keyword:  keyword,
		vector:   vector,
		embedder: embedder,
	}
	idx.dirty.Store(true) // first catch-up always scans
	return idx
}

// MarkDirty flags the tree as changed, forcing the next catch-up to scan
// even inside the fresh window. Called by the filesystem watcher.
func (i *Indexer) MarkDirty() {
	i.dirty.Store(true)
}

// LastCatchUp returns when the last successful pass finished, zero before
// the first one.
func (i *Indexer) LastCatchUp() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastCatchUp
}

// TrackedFiles returns how many files the state currently records.
func (i *Indexer) TrackedFiles() int {
	return i.state.Len()
}

// CatchUp brings the indexes up to date. Concurrent calls share one pass and
// all receive its stats. A pass completed within the fresh window is reused
// unless the watcher marked the tree dirty.
func (i *Indexer) CatchUp(ctx context.Context) (Stats, error) {
	v, err, _ := i.group.Do("catchup", func() (interface{}, error) {
		i.mu.Lock()
		fresh := !i.lastCatchUp.IsZero() && time.Since(i.lastCatchUp) < i.cfg.FreshWindow
		i.mu.Unlock()

		if fresh && !i.dirty.Load() {
			return Stats{Skipped: true}, nil
		}

		runCtx, cancel := context.WithTimeout(ctx, i.cfg.CatchUpTimeout)
		defer cancel()

		i.dirty.Store(false)
		stats, err := i.run(runCtx)
		if err != nil {
			i.dirty.Store(true) // retry next time
			return stats, err
		}
		if len(stats.Degraded) > 0 {
			// Files that missed their vectors kept no state record; stay
			// dirty so the next pass retries them inside the fresh window.
			i.dirty.Store(true)
		}

		i.mu.Lock()
		i.lastCatchUp = time.Now()
		i.mu.Unlock()
		return stats, nil
	})
	stats, _ := v.(Stats)
	return stats, err
}

// Rebuild drops all index data and state, then runs a full catch-up.
func (i *Indexer) Rebuild(ctx context.Context) (Stats, error) {
	ids, err := i.chunks.AllIDs(ctx)
	if err != nil {
		return Stats{}, err
	}
	if err := i.chunks.Clear(ctx); err != nil {
		return Stats{}, err
	}
	if err := i.keyword.Delete(ctx, ids); err != nil {
		return Stats{}, err
	}
	if err := i.vector.Delete(ctx, ids); err != nil {
		return Stats{}, err
	}
	for _, p := range i.state.Paths() {
		i.state.Delete(p)
	}
	if err := i.state.Persist(); err != nil {
		return Stats{}, err
	}

	i.MarkDirty()
	return i.CatchUp(ctx)
}

func (i *Indexer) run(ctx context.Context) (Stats, error) {
	started := time.Now()
	var stats Stats

	// A pass that stops making progress is aborted rather than holding the
	// project write lock until the overall timeout. Every processed file
	// (deleted or indexed) rearms the watchdog.
	var stalled atomic.Bool
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchdog := time.AfterFunc(i.cfg.IdleDeadline, func() {
		stalled.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	fail := func(err error) (Stats, error) {
		if stalled.Load() {
			return stats, apperr.Newf(apperr.KindTransient,
				"catch-up made no progress for %s", i.cfg.IdleDeadline)
		}
		return stats, err
	}

	files, err := i.scanner.ScanAll(ctx, i.cfg.Root, scanner.Options{MaxFileSize: i.cfg.MaxFileSize})
	if err != nil {
		return fail(err)
	}

	// Deletions first: anything tracked but no longer scanned.
	for _, tracked := range i.state.Paths() {
		if _, present := files[tracked]; present {
			continue
		}
		if err := i.removeFile(ctx, tracked); err != nil {
			slog.Warn("index_delete_failed",
				slog.String("path", tracked),
				slog.String("error", err.Error()))
			stats.Errors++
			continue
		}
		watchdog.Reset(i.cfg.IdleDeadline)
		stats.Deleted++
	}

	embedderDegraded := false
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workerCount())

	for path, fi := range files {
		status := i.state.Check(path, fi.ModTime, fi.Size)
		if status == state.Unchanged {
			continue
		}

		g.Go(func() error {
			outcome, err := i.indexFile(gctx, path, fi, status)

			mu.Lock()
			defer mu.Unlock()
			watchdog.Reset(i.cfg.IdleDeadline)

			if err != nil {
				if apperr.IsKind(err, apperr.KindCancelled) || gctx.Err() != nil {
					return err
				}
				slog.Warn("index_file_failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
				stats.Errors++
				return nil
			}

			switch outcome.change {
			case changeAdded:
				stats.Added++
			case changeModified:
				stats.Modified++
			}
			if outcome.embedFailed {
				embedderDegraded = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	if embedderDegraded {
		stats.Degraded = append(stats.Degraded, search.DegradedEmbedder)
	}

	// One persist at the end: a crash mid-pass redoes work instead of
	// trusting a half-written state.
	if err := i.state.Persist(); err != nil {
		return stats, err
	}

	stats.DurationMs = time.Since(started).Milliseconds()
	slog.Info("catch_up_done",
		slog.String("project", i.cfg.ProjectID),
		slog.Int("added", stats.Added),
		slog.Int("modified", stats.Modified),
		slog.Int("deleted", stats.Deleted),
		slog.Int("errors", stats.Errors),
		slog.Int64("duration_ms", stats.DurationMs))
	return stats, nil
}

func (i *Indexer) workerCount() int {
	if i.cfg.Workers > 0 {
		return i.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

type changeKind int

const (
	changeNone changeKind = iota
	changeAdded
	changeModified
)

type fileOutcome struct {
	change      changeKind
	embedFailed bool
}

// indexFile re-indexes one scanned file. The old chunk range is replaced
// wholesale; ordinals restart at zero.
func (i *Indexer) indexFile(ctx context.Context, path string, fi *scanner.FileInfo, status state.Status) (fileOutcome, error) {
	var out fileOutcome

	data, err := scanner.ReadFileChecked(filepath.Join(i.cfg.Root, path), i.cfg.MaxFileSize)
	if err != nil {
		return out, err
	}
	if data == nil {
		// Binary or grown past the cap since scanning: drop any stale chunks.
		return out, i.removeFile(ctx, path)
	}

	hash := state.HashContent(data)
	if status == state.MaybeModified && !i.state.Modified(path, hash) {
		// Touched but identical: refresh the fingerprint only.
		i.state.Set(state.NewRecord(path, fi.ModTime, fi.Size, hash))
		return out, nil
	}

	kind := chunk.KindOf(path)
	if kind == chunk.KindSkip {
		if status != state.Untracked {
			if err := i.removeFile(ctx, path); err != nil {
				return out, err
			}
		}
		return out, nil
	}

	chunks, err := chunk.Split(i.cfg.ProjectID, path, data, kind)
	if err != nil {
		// Invalid UTF-8 and friends: skip the file, clearing stale chunks.
		slog.Debug("chunking_skipped",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return out, i.removeFile(ctx, path)
	}

	oldIDs, err := i.chunks.DeleteByPath(ctx, path)
	if err != nil {
		return out, err
	}
	if len(oldIDs) > 0 {
		if err := i.keyword.Delete(ctx, oldIDs); err != nil {
			return out, err
		}
		if err := i.vector.Delete(ctx, oldIDs); err != nil {
			return out, err
		}
	}

	if len(chunks) > 0 {
		if err := i.chunks.Upsert(ctx, chunks); err != nil {
			return out, err
		}

		docs := make([]*store.Document, len(chunks))
		ids := make([]string, len(chunks))
		texts := make([]string, len(chunks))
		for n, c := range chunks {
			docs[n] = &store.Document{ID: c.ID, Path: c.Path, Content: c.Text}
			ids[n] = c.ID
			texts[n] = c.Text
		}

		if err := i.keyword.Index(ctx, docs); err != nil {
			return out, err
		}

		// Embedding failure leaves the file keyword-searchable rather than
		// invisible. All-or-nothing per file: no partial vector batches.
		vectors, err := i.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if apperr.IsKind(err, apperr.KindDimensionMismatch) || ctx.Err() != nil {
				return out, err
			}
			slog.Warn("embed_batch_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			out.embedFailed = true
		} else if err := i.vector.Add(ctx, ids, vectors); err != nil {
			return out, err
		}
	}

	// No state record for a file that missed its vectors: it stays modified
	// in the next pass's eyes, which re-indexes it and backfills.
	if !out.embedFailed {
		i.state.Set(state.NewRecord(path, fi.ModTime, fi.Size, hash))
	}
	if status == state.Untracked {
		out.change = changeAdded
	} else {
		out.change = changeModified
	}
	return out, nil
}

// removeFile drops a file from every store and the state.
func (i *Indexer) removeFile(ctx context.Context, path string) error {
	ids, err := i.chunks.DeleteByPath(ctx, path)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		if err := i.keyword.Delete(ctx, ids); err != nil {
			return err
		}
		if err := i.vector.Delete(ctx, ids); err != nil {
			return err
		}
	}
	i.state.Delete(path)
	return nil
}
