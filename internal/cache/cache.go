// Package cache holds the two-tier query cache: an exact tier keyed by a
// hash of the normalized query, and a semantic tier that matches paraphrased
// queries by embedding similarity. Both tiers serve the same stored payloads;
// the semantic tier only adds a fuzzier way to find them.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/zoonderkins/augment-lite-mcp/internal/embed"
	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
	"github.com/zoonderkins/augment-lite-mcp/internal/store"
)

// Defaults per config.
const (
	DefaultTTL        = time.Hour
	DefaultMaxEntries = 10000
	DefaultSimilarity = 0.95
)

// Tier names reported on hits.
const (
	TierExact    = "exact"
	TierSemantic = "semantic"
)

// Scope selects what Clear removes.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeAll     Scope = "all"
	ScopeExpired Scope = "expired"
)

// Entry is one cached query result.
type Entry struct {
	Key       string
	ProjectID string
	Query     string
	Payload   []byte
	CreatedAt time.Time
}

// Stats is a point-in-time cache summary.
type Stats struct {
	Entries      int
	ExactHits    uint64
	SemanticHits uint64
	Misses       uint64
}

// Config tunes the cache.
type Config struct {
	TTL          time.Duration
	MaxEntries   int
	Similarity   float64 // semantic match threshold on cosine similarity
	SemanticsOff bool    // disable the semantic tier entirely
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	exact    *lru.LRU[string, *Entry]
	db       *sql.DB
	vectors  *store.HNSWVectorIndex
	embedder embed.Embedder
	cfg      Config

	exactHits    atomic.Uint64
	semanticHits atomic.Uint64
	misses       atomic.Uint64
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	query      TEXT NOT NULL,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_project ON cache_entries(project_id);
`

// Open creates the cache backed by dbPath and warms the exact tier from it.
// The embedder powers the semantic tier; a nil embedder disables it.
func Open(dbPath string, embedder embed.Embedder, cfg Config) (*Cache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Similarity <= 0 {
		cfg.Similarity = DefaultSimilarity
	}
	if embedder == nil {
		cfg.SemanticsOff = true
	}

	db, err := store.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	c := &Cache{
		exact:    lru.NewLRU[string, *Entry](cfg.MaxEntries, nil, cfg.TTL),
		db:       db,
		embedder: embedder,
		cfg:      cfg,
	}

	if !cfg.SemanticsOff {
		c.vectors, err = store.NewHNSWVectorIndex(store.VectorConfig{
			Dimensions: embedder.Dimensions(),
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := c.warm(context.Background()); err != nil {
		slog.Warn("cache_warm_failed", slog.String("error", err.Error()))
	}
	return c, nil
}

// Key derives the exact-tier key: hash of the lowercased, trimmed query, the
// project, and the result count. Different k values cache separately.
func Key(query, projectID string, k int) string {
	norm := strings.ToLower(strings.TrimSpace(query))
	return fmt.Sprintf("%016x", xxhash.Sum64String(fmt.Sprintf("%s\x00%s\x00%d", norm, projectID, k)))
}

// warm loads unexpired entries from sqlite into the exact tier and, when the
// semantic tier is on, re-embeds their queries.
func (c *Cache) warm(ctx context.Context) error {
	cutoff := time.Now().Add(-c.cfg.TTL).Unix()
	rows, err := c.db.QueryContext(ctx, `
		SELECT key, project_id, query, payload, created_at
		FROM cache_entries WHERE created_at > ?`, cutoff)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Key, &e.ProjectID, &e.Query, &e.Payload, &created); err != nil {
			return err
		}
		e.CreatedAt = time.Unix(created, 0)
		c.exact.Add(e.Key, &e)
		c.addSemantic(ctx, &e)
	}
	return rows.Err()
}

func (c *Cache) addSemantic(ctx context.Context, e *Entry) {
	if c.cfg.SemanticsOff {
		return
	}
	vec, err := c.embedder.Embed(ctx, strings.ToLower(strings.TrimSpace(e.Query)))
	if err != nil {
		return // the exact tier still works
	}
	_ = c.vectors.Add(ctx, []string{e.Key}, [][]float32{vec})
}

// Get looks the query up in both tiers. The returned tier is TierExact or
// TierSemantic on a hit.
func (c *Cache) Get(ctx context.Context, query, projectID string, k int) (*Entry, string, bool) {
	key := Key(query, projectID, k)

	if e, ok := c.exact.Get(key); ok {
		c.exactHits.Add(1)
		return e, TierExact, true
	}

	if e := c.semanticLookup(ctx, query, projectID); e != nil {
		c.semanticHits.Add(1)
		c.writeThrough(ctx, key, query, e)
		return e, TierSemantic, true
	}

	c.misses.Add(1)
	return nil, "", false
}

// writeThrough aliases a semantic hit under the exact key of the query that
// found it, so a repeat of the same paraphrase skips the embedding lookup.
func (c *Cache) writeThrough(ctx context.Context, key, query string, e *Entry) {
	alias := &Entry{
		Key:       key,
		ProjectID: e.ProjectID,
		Query:     query,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt, // the alias expires with the original
	}
	c.exact.Add(key, alias)

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, project_id, query, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at`,
		alias.Key, alias.ProjectID, alias.Query, alias.Payload, alias.CreatedAt.Unix())
	if err != nil {
		slog.Warn("cache_write_through_failed", slog.String("error", err.Error()))
	}
}

func (c *Cache) semanticLookup(ctx context.Context, query, projectID string) *Entry {
	if c.cfg.SemanticsOff || c.vectors.Count() == 0 {
		return nil
	}

	vec, err := c.embedder.Embed(ctx, strings.ToLower(strings.TrimSpace(query)))
	if err != nil {
		return nil
	}
	// A few neighbors, since the nearest may belong to another project.
	results, err := c.vectors.Search(ctx, vec, 4)
	if err != nil {
		return nil
	}

	for _, r := range results {
		if float64(r.Score) < c.cfg.Similarity {
			break // sorted by similarity; nothing further qualifies
		}
		e, ok := c.exact.Get(r.ChunkID)
		if !ok {
			// Expired or evicted; drop the stale vector.
			_ = c.vectors.Delete(ctx, []string{r.ChunkID})
			continue
		}
		if e.ProjectID == projectID {
			return e
		}
	}
	return nil
}

// Put stores a result in both tiers and persists it.
func (c *Cache) Put(ctx context.Context, query, projectID string, k int, payload []byte) error {
	e := &Entry{
		Key:       Key(query, projectID, k),
		ProjectID: projectID,
		Query:     query,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	c.exact.Add(e.Key, e)
	c.addSemantic(ctx, e)

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, project_id, query, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at`,
		e.Key, e.ProjectID, e.Query, e.Payload, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("persist cache entry: %w", err)
	}
	return nil
}

// Clear removes entries per scope. ScopeProject needs a projectID.
func (c *Cache) Clear(ctx context.Context, scope Scope, projectID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch scope {
	case ScopeAll:
		n := c.exact.Len()
		c.exact.Purge()
		if !c.cfg.SemanticsOff {
			fresh, err := store.NewHNSWVectorIndex(store.VectorConfig{Dimensions: c.embedder.Dimensions()})
			if err == nil {
				c.vectors.Close()
				c.vectors = fresh
			}
		}
		if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
			return 0, fmt.Errorf("clear cache: %w", err)
		}
		return n, nil

	case ScopeProject:
		if projectID == "" {
			return 0, apperr.New(apperr.KindInvalid, "project scope requires a project id")
		}
		var removed int
		for _, key := range c.exact.Keys() {
			e, ok := c.exact.Peek(key)
			if ok && e.ProjectID == projectID {
				c.exact.Remove(key)
				if !c.cfg.SemanticsOff {
					_ = c.vectors.Delete(ctx, []string{key})
				}
				removed++
			}
		}
		if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE project_id = ?`, projectID); err != nil {
			return 0, fmt.Errorf("clear project cache: %w", err)
		}
		return removed, nil

	case ScopeExpired:
		cutoff := time.Now().Add(-c.cfg.TTL).Unix()
		res, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE created_at <= ?`, cutoff)
		if err != nil {
			return 0, fmt.Errorf("clear expired cache: %w", err)
		}
		n, _ := res.RowsAffected()
		// The LRU expires its own entries; nothing to do in memory.
		return int(n), nil

	default:
		return 0, apperr.Newf(apperr.KindInvalid, "unknown cache clear scope: %s", scope)
	}
}

// Status returns counters and the live entry count.
func (c *Cache) Status() Stats {
	return Stats{
		Entries:      c.exact.Len(),
		ExactHits:    c.exactHits.Load(),
		SemanticHits: c.semanticHits.Load(),
		Misses:       c.misses.Load(),
	}
}

// Close closes the backing database.
func (c *Cache) Close() error {
	if c.vectors != nil {
		c.vectors.Close()
	}
	return c.db.Close()
}
