package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
)

// compactionThreshold triggers a graph rebuild once tombstoned nodes exceed
// this fraction of the graph.
const compactionThreshold = 0.25

// HNSWVectorIndex implements VectorIndex on a pure-Go HNSW graph.
//
// Deletes are tombstones: the mapping entry is dropped but the node stays in
// the graph until compaction rebuilds it from live vectors. Deleting nodes
// in place destabilizes the graph; filtering at query time does not.
type HNSWVectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// vectorMetadata is the gob sidecar persisted next to the graph file.
type vectorMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorConfig
}

// NewHNSWVectorIndex creates an empty vector index. Dimensions are frozen at
// construction: every vector added later must match.
func NewHNSWVectorIndex(cfg VectorConfig) (*HNSWVectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, apperr.Newf(apperr.KindInvalid, "vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	return &HNSWVectorIndex{
		graph:  newGraph(cfg),
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

func newGraph(cfg VectorConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// OpenHNSWVectorIndex loads a persisted index from path, or creates an empty
// one when no file exists. A persisted dimension different from
// cfg.Dimensions is a dimension-mismatch error; the caller decides whether to
// reset.
func OpenHNSWVectorIndex(path string, cfg VectorConfig) (*HNSWVectorIndex, error) {
	s, err := NewHNSWVectorIndex(cfg)
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return s, nil
	}

	if err := s.load(path); err != nil {
		return nil, err
	}
	if s.config.Dimensions != cfg.Dimensions {
		return nil, apperr.DimensionMismatch(cfg.Dimensions, s.config.Dimensions)
	}
	return s, nil
}

// Add upserts vectors. Re-adding an existing ID tombstones the old node.
func (s *HNSWVectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return apperr.DimensionMismatch(s.config.Dimensions, len(v))
		}
	}

	for i, id := range ids {
		if oldKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, oldKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}

	s.maybeCompactLocked()
	return nil
}

// Search returns up to k live nearest neighbors. Tombstoned nodes never
// appear; the search over-fetches to compensate for them.
func (s *HNSWVectorIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, apperr.DimensionMismatch(s.config.Dimensions, len(query))
	}
	if s.graph.Len() == 0 || len(s.idMap) == 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	orphans := s.graph.Len() - len(s.idMap)
	fetch := k + orphans
	if fetch > s.graph.Len() {
		fetch = s.graph.Len()
	}

	nodes := s.graph.Search(q, fetch)

	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		id, live := s.keyMap[node.Key]
		if !live {
			continue
		}
		distance := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{
			ChunkID: id,
			Score:   1.0 - distance/2.0,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Delete tombstones vectors by ID. Unknown IDs are a no-op.
func (s *HNSWVectorIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}

	s.maybeCompactLocked()
	return nil
}

// maybeCompactLocked rebuilds the graph from live vectors when tombstones
// exceed compactionThreshold. Caller holds the write lock.
func (s *HNSWVectorIndex) maybeCompactLocked() {
	total := s.graph.Len()
	if total == 0 {
		return
	}
	orphans := total - len(s.idMap)
	if float64(orphans)/float64(total) <= compactionThreshold {
		return
	}

	fresh := newGraph(s.config)
	newIDMap := make(map[string]uint64, len(s.idMap))
	newKeyMap := make(map[uint64]string, len(s.idMap))
	var nextKey uint64

	for id, oldKey := range s.idMap {
		vec, ok := s.graph.Lookup(oldKey)
		if !ok {
			continue
		}
		key := nextKey
		nextKey++
		fresh.Add(hnsw.MakeNode(key, vec))
		newIDMap[id] = key
		newKeyMap[key] = id
	}

	slog.Debug("vector_index_compacted",
		slog.Int("before", total),
		slog.Int("after", fresh.Len()),
		slog.Int("orphans", orphans))

	s.graph = fresh
	s.idMap = newIDMap
	s.keyMap = newKeyMap
	s.nextKey = nextKey
}

// Contains reports whether id is live.
func (s *HNSWVectorIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of live vectors.
func (s *HNSWVectorIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Dimensions returns the frozen vector dimension.
func (s *HNSWVectorIndex) Dimensions() int {
	return s.config.Dimensions
}

// Orphans returns the current tombstone count, for status reporting.
func (s *HNSWVectorIndex) Orphans() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return s.graph.Len() - len(s.idMap)
}

// Save persists the graph and its gob sidecar atomically.
func (s *HNSWVectorIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vector dir: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create vector file: %w", err)
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close vector file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename vector file: %w", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *HNSWVectorIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	meta := vectorMetadata{
		IDMap:   s.idMap,
		NextKey: s.nextKey,
		Config:  s.config,
	}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

func (s *HNSWVectorIndex) load(path string) error {
	if err := s.loadMetadata(path + ".meta"); err != nil {
		return apperr.Wrap(apperr.KindCorrupt, "load vector metadata", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open vector file: %w", err)
	}
	defer f.Close()

	// Import needs an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return apperr.Wrap(apperr.KindCorrupt, "import graph", err)
	}
	return nil
}

func (s *HNSWVectorIndex) loadMetadata(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer f.Close()

	var meta vectorMetadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	s.idMap = meta.IDMap
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	s.nextKey = meta.NextKey
	s.config = meta.Config
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// ReadVectorDimensions reads the persisted dimension without loading the
// graph. Returns 0 when no index exists yet.
func ReadVectorDimensions(vectorPath string) (int, error) {
	f, err := os.Open(vectorPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open vector metadata: %w", err)
	}
	defer f.Close()

	var meta vectorMetadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return 0, fmt.Errorf("decode vector metadata: %w", err)
	}
	return meta.Config.Dimensions, nil
}

// Close releases the graph.
func (s *HNSWVectorIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

var _ VectorIndex = (*HNSWVectorIndex)(nil)

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
