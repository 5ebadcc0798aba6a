package symbols

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zoonderkins/augment-lite-mcp/internal/scanner"
	"github.com/zoonderkins/augment-lite-mcp/internal/store"
)

const symbolSchema = `
CREATE TABLE IF NOT EXISTS files (
	path     TEXT PRIMARY KEY,
	mtime_ns INTEGER NOT NULL,
	size     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS symbols (
	path       TEXT NOT NULL,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line   INTEGER NOT NULL,
	container  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_path ON symbols(path);
`

// Index caches per-file symbol extractions in sqlite, invalidated by file
// fingerprint. Project-wide queries reparse only changed files.
type Index struct {
	root string
	db   *sql.DB
}

// OpenIndex opens the symbol cache for a project.
func OpenIndex(root, dbPath string) (*Index, error) {
	db, err := store.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(symbolSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create symbol schema: %w", err)
	}
	return &Index{root: root, db: db}, nil
}

// FileSymbols returns the symbols of one file, from cache when fresh.
func (x *Index) FileSymbols(ctx context.Context, rel string) ([]Symbol, error) {
	if !Supported(rel) {
		return nil, nil
	}

	full := filepath.Join(x.root, rel)
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}

	if fresh, err := x.isFresh(ctx, rel, info); err == nil && fresh {
		return x.cached(ctx, rel)
	}

	data, err := scanner.ReadFileChecked(full, 0)
	if err != nil || data == nil {
		return nil, err
	}

	syms, err := Extract(ctx, rel, data)
	if err != nil {
		return nil, err
	}
	if err := x.storeSymbols(ctx, rel, info, syms); err != nil {
		return nil, err
	}
	return syms, nil
}

// FindSymbol returns symbols named name across the project, refreshing stale
// files along the way.
func (x *Index) FindSymbol(ctx context.Context, name string) ([]Symbol, error) {
	if err := x.refresh(ctx); err != nil {
		return nil, err
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT path, name, kind, start_line, end_line, container
		FROM symbols WHERE name = ?
		ORDER BY path, start_line`, name)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// FindReferences scans supported project files for identifier occurrences of
// name. References are computed per query; only the symbol declarations are
// cached.
func (x *Index) FindReferences(ctx context.Context, name string, maxResults int) ([]Reference, error) {
	if maxResults <= 0 {
		maxResults = 200
	}

	files, err := scanner.New().Scan(ctx, x.root, scanner.Options{})
	if err != nil {
		return nil, err
	}

	var out []Reference
	for r := range files {
		if r.Error != nil {
			return nil, r.Error
		}
		if len(out) >= maxResults || !Supported(r.File.Path) {
			continue
		}
		data, err := scanner.ReadFileChecked(filepath.Join(x.root, r.File.Path), 0)
		if err != nil || data == nil {
			continue
		}
		refs, err := References(ctx, r.File.Path, data, name)
		if err != nil {
			continue
		}
		if remaining := maxResults - len(out); len(refs) > remaining {
			refs = refs[:remaining]
		}
		out = append(out, refs...)
	}
	return out, nil
}

// refresh re-extracts symbols for every supported file whose fingerprint
// changed, and drops entries for files that disappeared.
func (x *Index) refresh(ctx context.Context) error {
	files, err := scanner.New().ScanAll(ctx, x.root, scanner.Options{})
	if err != nil {
		return err
	}

	// Drop vanished files.
	rows, err := x.db.QueryContext(ctx, `SELECT path FROM files`)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return err
		}
		if _, present := files[p]; !present {
			stale = append(stale, p)
		}
	}
	rows.Close()
	for _, p := range stale {
		if err := x.drop(ctx, p); err != nil {
			return err
		}
	}

	for rel, fi := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !Supported(rel) {
			continue
		}
		info, err := os.Stat(filepath.Join(x.root, rel))
		if err != nil {
			continue
		}
		if fresh, err := x.isFresh(ctx, rel, info); err == nil && fresh {
			continue
		}
		data, err := scanner.ReadFileChecked(filepath.Join(x.root, rel), fi.Size+1)
		if err != nil || data == nil {
			continue
		}
		syms, err := Extract(ctx, rel, data)
		if err != nil {
			continue
		}
		if err := x.storeSymbols(ctx, rel, info, syms); err != nil {
			return err
		}
	}
	return nil
}

func (x *Index) isFresh(ctx context.Context, rel string, info os.FileInfo) (bool, error) {
	var mtimeNs, size int64
	err := x.db.QueryRowContext(ctx,
		`SELECT mtime_ns, size FROM files WHERE path = ?`, rel).Scan(&mtimeNs, &size)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return mtimeNs == info.ModTime().UnixNano() && size == info.Size(), nil
}

func (x *Index) cached(ctx context.Context, rel string) ([]Symbol, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT path, name, kind, start_line, end_line, container
		FROM symbols WHERE path = ? ORDER BY start_line`, rel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSymbols(rows)
}

func (x *Index) storeSymbols(ctx context.Context, rel string, info os.FileInfo, syms []Symbol) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE path = ?`, rel); err != nil {
		return err
	}
	for _, s := range syms {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO symbols (path, name, kind, start_line, end_line, container)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.Path, s.Name, string(s.Kind), s.StartLine, s.EndLine, s.Container); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO files (path, mtime_ns, size) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET mtime_ns = excluded.mtime_ns, size = excluded.size`,
		rel, info.ModTime().UnixNano(), info.Size()); err != nil {
		return err
	}
	return tx.Commit()
}

func (x *Index) drop(ctx context.Context, rel string) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM symbols WHERE path = ?`, rel); err != nil {
		return err
	}
	_, err := x.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, rel)
	return err
}

// Close closes the cache database.
func (x *Index) Close() error {
	return x.db.Close()
}

func scanSymbols(rows *sql.Rows) ([]Symbol, error) {
	var out []Symbol
	for rows.Next() {
		var s Symbol
		var kind string
		if err := rows.Scan(&s.Path, &s.Name, &kind, &s.StartLine, &s.EndLine, &s.Container); err != nil {
			return nil, err
		}
		s.Kind = Kind(kind)
		out = append(out, s)
	}
	return out, rows.Err()
}
