package core

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/zoonderkins/augment-lite-mcp/internal/cache"
	"github.com/zoonderkins/augment-lite-mcp/internal/config"
	"github.com/zoonderkins/augment-lite-mcp/internal/embed"
	"github.com/zoonderkins/augment-lite-mcp/internal/llm"
	"github.com/zoonderkins/augment-lite-mcp/internal/project"
	"github.com/zoonderkins/augment-lite-mcp/internal/rerank"
)

// Options tunes process-wide behavior.
type Options struct {
	// Watch starts a filesystem watcher per opened project, so catch-ups
	// between queries only scan when something actually changed.
	Watch bool
}

// Core owns the shared services and the per-project handles. Safe for
// concurrent use.
type Core struct {
	cfg      *config.Config
	log      *slog.Logger
	opts     Options
	registry *project.Registry
	embedder embed.Embedder
	llm      llm.Provider
	llmOn    bool
	reranker *rerank.Reranker
	cache    *cache.Cache
	unlock   func()

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	handles map[string]*Handle
}

// New acquires the data-dir lock and opens the shared services. The caller
// must Close the returned Core to release the lock.
func New(cfg *config.Config, log *slog.Logger, opts Options) (*Core, error) {
	unlock, err := project.AcquireLock(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	registry, err := project.OpenRegistry(cfg.DataDir)
	if err != nil {
		unlock()
		return nil, err
	}

	embedder := embed.New(embed.Config{
		Endpoint:   cfg.Embedding.Endpoint,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		TimeoutSec: int(cfg.Embedding.Timeout / time.Second),
	})

	llmClient := llm.NewClient(llm.Config{
		Endpoint:   cfg.LLM.Endpoint,
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		TimeoutSec: int(cfg.LLM.Timeout / time.Second),
	})

	queryCache, err := cache.Open(filepath.Join(cfg.DataDir, "cache.db"), embedder, cache.Config{
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
		Similarity: cfg.Cache.SemanticThreshold,
	})
	if err != nil {
		unlock()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Core{
		cfg:      cfg,
		log:      log,
		opts:     opts,
		registry: registry,
		embedder: embedder,
		llm:      llmClient,
		llmOn:    cfg.LLM.Endpoint != "",
		reranker: rerank.New(llmClient, cfg.Search.RerankChunkBytes, cfg.Search.RerankTimeout),
		cache:    queryCache,
		unlock:   unlock,
		ctx:      ctx,
		cancel:   cancel,
		handles:  make(map[string]*Handle),
	}, nil
}

// Close releases every open handle, the cache, and the data-dir lock.
func (c *Core) Close() error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for id, h := range c.handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.handles, id)
	}
	if err := c.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.embedder.Close()
	c.unlock()
	return firstErr
}

// resolveProject maps a selector plus the caller's working directory to a
// registered project. "auto" (or empty) prefers the longest registered path
// prefix of the working directory, then falls back to the active project.
func (c *Core) resolveProject(selector, workingDir string) (project.Project, error) {
	if (selector == "" || selector == "auto") && workingDir != "" {
		if p, err := c.registry.ResolveByPrefix(workingDir); err == nil {
			return p, nil
		}
	}
	if selector == "auto" {
		selector = ""
	}
	return c.registry.Resolve(selector)
}

// handle returns the open handle for a project, opening it on first use.
func (c *Core) handle(p project.Project) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.handles[p.ID]; ok {
		return h, nil
	}

	h, err := openHandle(c, p)
	if err != nil {
		return nil, err
	}
	if c.opts.Watch {
		h.startWatcher(c.ctx, c.cfg.Index.WatchDebounce)
	}
	c.handles[p.ID] = h
	return h, nil
}

// ProjectAdd registers a working tree. An empty name derives one from the
// directory basename.
func (c *Core) ProjectAdd(path, name string) (project.Project, error) {
	return c.registry.Add(path, name)
}

// ProjectActivate makes one project the default for empty selectors.
func (c *Core) ProjectActivate(selector string) (project.Project, error) {
	return c.registry.Activate(selector)
}

// ProjectList returns all projects and the active ID.
func (c *Core) ProjectList() ([]project.Project, string) {
	return c.registry.List()
}

// ProjectRemove unregisters a project and purges its derived data: open
// stores, cache entries, and the per-project data directory.
func (c *Core) ProjectRemove(ctx context.Context, selector string) (project.Project, error) {
	p, err := c.registry.Resolve(selector)
	if err != nil {
		return project.Project{}, err
	}

	c.mu.Lock()
	if h, ok := c.handles[p.ID]; ok {
		if err := h.Close(); err != nil {
			c.log.Warn("handle_close_failed",
				slog.String("project", p.ID),
				slog.String("error", err.Error()))
		}
		delete(c.handles, p.ID)
	}
	c.mu.Unlock()

	if _, err := c.cache.Clear(ctx, cache.ScopeProject, p.ID); err != nil {
		c.log.Warn("cache_clear_failed",
			slog.String("project", p.ID),
			slog.String("error", err.Error()))
	}

	return c.registry.Remove(p.ID)
}

// CacheClear removes cache entries per scope. Project scope resolves the
// selector first.
func (c *Core) CacheClear(ctx context.Context, scope cache.Scope, selector, workingDir string) (int, error) {
	projectID := ""
	if scope == cache.ScopeProject {
		p, err := c.resolveProject(selector, workingDir)
		if err != nil {
			return 0, err
		}
		projectID = p.ID
	}
	return c.cache.Clear(ctx, scope, projectID)
}

// CacheStatus returns cache counters.
func (c *Core) CacheStatus() cache.Stats {
	return c.cache.Status()
}
