package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/zoonderkins/augment-lite-mcp/internal/chunk"
	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
)

// OpenSQLite opens (creating if needed) a sqlite database with the pragmas
// used across the data directory. WAL keeps readers unblocked during index
// writes.
func OpenSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent batches.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	return db, nil
}

const chunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id         TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	ordinal    INTEGER NOT NULL,
	start_line INTEGER NOT NULL,
	end_line   INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	text       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);
`

// ChunkStore persists chunk text and metadata in sqlite. The keyword and
// vector indexes hold only IDs and derived data; this is the source of truth
// for chunk content.
type ChunkStore struct {
	db *sql.DB
}

// NewChunkStore opens chunks.db at path and ensures the schema.
func NewChunkStore(path string) (*ChunkStore, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(chunkSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create chunk schema: %w", err)
	}
	return &ChunkStore{db: db}, nil
}

// Upsert writes chunks in one transaction.
func (s *ChunkStore) Upsert(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, path, ordinal, start_line, end_line, kind, text)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			ordinal = excluded.ordinal,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			kind = excluded.kind,
			text = excluded.text`)
	if err != nil {
		return fmt.Errorf("prepare chunk upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Path, c.Ordinal, c.StartLine, c.EndLine, string(c.Kind), c.Text); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteByPath removes all chunks of a file and returns their IDs so the
// caller can mirror the delete into the other indexes.
func (s *ChunkStore) DeleteByPath(ctx context.Context, path string) ([]string, error) {
	ids, err := s.IDsForPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return nil, fmt.Errorf("delete chunks for %s: %w", path, err)
	}
	return ids, nil
}

// IDsForPath lists chunk IDs of a file ordered by ordinal.
func (s *ChunkStore) IDsForPath(ctx context.Context, path string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE path = ? ORDER BY ordinal`, path)
	if err != nil {
		return nil, fmt.Errorf("query chunk ids for %s: %w", path, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get fetches one chunk by ID.
func (s *ChunkStore) Get(ctx context.Context, id string) (*chunk.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, ordinal, start_line, end_line, kind, text
		FROM chunks WHERE id = ?`, id)

	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("chunk", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", id, err)
	}
	return c, nil
}

// GetMany fetches chunks by ID, skipping missing ones and preserving input
// order.
func (s *ChunkStore) GetMany(ctx context.Context, ids []string) ([]*chunk.Chunk, error) {
	out := make([]*chunk.Chunk, 0, len(ids))
	for _, id := range ids {
		c, err := s.Get(ctx, id)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Count returns the total number of chunks.
func (s *ChunkStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// FileCount returns the number of distinct files with chunks.
func (s *ChunkStore) FileCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT path) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunk files: %w", err)
	}
	return n, nil
}

// AllIDs lists every chunk ID, for consistency checks.
func (s *ChunkStore) AllIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("list chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Clear deletes every chunk. Used by full rebuilds.
func (s *ChunkStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *ChunkStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*chunk.Chunk, error) {
	var c chunk.Chunk
	var kind string
	if err := row.Scan(&c.ID, &c.Path, &c.Ordinal, &c.StartLine, &c.EndLine, &kind, &c.Text); err != nil {
		return nil, err
	}
	c.Kind = chunk.Kind(kind)
	return &c, nil
}
