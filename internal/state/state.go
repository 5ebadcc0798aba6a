// Package state tracks which files are indexed and detects changes between
// catch-up passes.
//
// The on-disk format is a JSON-lines file: a schema header line followed by
// one record per indexed file. Writes go through a temp file and rename so a
// crash never leaves a partially written state behind.
package state

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
)

// SchemaVersion is bumped when the record layout changes incompatibly. A
// mismatched header invalidates the whole state, forcing a full re-index.
const SchemaVersion = 1

// header is the first line of state.jsonl.
type header struct {
	Schema int `json:"schema"`
}

// Record is one indexed file's fingerprint.
type Record struct {
	Path      string    `json:"path"`
	MTime     int64     `json:"mtime"`   // unix seconds
	MTimeNs   int64     `json:"mtimeNs"` // nanosecond part
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256"` // lowercase hex
	IndexedAt time.Time `json:"indexedAt"`
}

// Status classifies a file against the recorded fingerprint.
type Status int

const (
	// Unchanged means mtime and size both match the record.
	Unchanged Status = iota
	// MaybeModified means mtime or size differ; the content hash decides.
	MaybeModified
	// Untracked means no record exists for the path.
	Untracked
)

// IndexState is the in-memory view of state.jsonl. Safe for concurrent use.
type IndexState struct {
	mu      sync.RWMutex
	path    string
	records map[string]Record
}

// New returns an empty state bound to path, for starting over after a
// corrupt load.
func New(path string) *IndexState {
	return &IndexState{
		path:    path,
		records: make(map[string]Record),
	}
}

// Load reads state.jsonl from path. A missing file yields an empty state. A
// corrupt file or schema mismatch returns a KindCorrupt error; the caller
// discards the state and rebuilds from scratch.
func Load(path string) (*IndexState, error) {
	st := &IndexState{
		path:    path,
		records: make(map[string]Record),
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, apperr.Wrap(apperr.KindCorrupt, "read state header", err)
		}
		// Zero-byte file: treat as empty state.
		return st, nil
	}

	var h header
	if err := json.Unmarshal(scanner.Bytes(), &h); err != nil {
		return nil, apperr.Wrap(apperr.KindCorrupt, "parse state header", err)
	}
	if h.Schema != SchemaVersion {
		return nil, apperr.Newf(apperr.KindCorrupt, "state schema %d, want %d", h.Schema, SchemaVersion)
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, apperr.Wrap(apperr.KindCorrupt, "parse state record", err)
		}
		st.records[rec.Path] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindCorrupt, "read state file", err)
	}

	return st, nil
}

// Persist writes the full state atomically: temp file in the same directory,
// fsync, then rename over the target.
func (s *IndexState) Persist() error {
	s.mu.RLock()
	paths := make([]string, 0, len(s.records))
	for p := range s.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	recs := make([]Record, 0, len(paths))
	for _, p := range paths {
		recs = append(recs, s.records[p])
	}
	s.mu.RUnlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.jsonl")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	if err := enc.Encode(header{Schema: SchemaVersion}); err != nil {
		tmp.Close()
		return fmt.Errorf("write state header: %w", err)
	}
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("write state record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// Get returns the record for path, if any.
func (s *IndexState) Get(path string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[path]
	return rec, ok
}

// Set records a file fingerprint.
func (s *IndexState) Set(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Path] = rec
}

// Delete removes a file's record.
func (s *IndexState) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, path)
}

// Len returns the number of tracked files.
func (s *IndexState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Paths returns all tracked paths in unspecified order.
func (s *IndexState) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.records))
	for p := range s.records {
		out = append(out, p)
	}
	return out
}

// Check classifies a scanned file against the record. A file is Unchanged
// only when both the full-precision mtime and size match; anything else needs
// a content hash to distinguish a touch from a real edit.
func (s *IndexState) Check(path string, mtime time.Time, size int64) Status {
	rec, ok := s.Get(path)
	if !ok {
		return Untracked
	}
	if rec.MTime == mtime.Unix() && rec.MTimeNs == int64(mtime.Nanosecond()) && rec.Size == size {
		return Unchanged
	}
	return MaybeModified
}

// Modified reports whether hashed content differs from the recorded hash.
// A matching hash means the file was touched but not edited; the caller
// refreshes the fingerprint without re-indexing.
func (s *IndexState) Modified(path string, contentHash string) bool {
	rec, ok := s.Get(path)
	if !ok {
		return true
	}
	return rec.SHA256 != contentHash
}

// HashContent returns the lowercase-hex SHA-256 of data.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewRecord builds a Record for freshly indexed content.
func NewRecord(path string, mtime time.Time, size int64, contentHash string) Record {
	return Record{
		Path:      path,
		MTime:     mtime.Unix(),
		MTimeNs:   int64(mtime.Nanosecond()),
		Size:      size,
		SHA256:    contentHash,
		IndexedAt: time.Now().UTC(),
	}
}
