package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// QueryTokenizerName is the bleve name of the retrieval tokenizer.
	QueryTokenizerName = "auglite_tokenizer"

	// QueryAnalyzerName is the bleve name of the retrieval analyzer.
	QueryAnalyzerName = "auglite_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(QueryTokenizerName, queryTokenizerConstructor)
}

// BleveKeywordIndex wraps a bleve index scored with BM25.
//
// The analyzer lowercases and splits on anything outside [a-z0-9_], with CJK
// characters emitted as standalone tokens. No stop words are removed: words
// like "if" and "for" are meaningful in code queries.
type BleveKeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

type bleveDoc struct {
	Content string `json:"content"`
}

// NewBleveKeywordIndex opens or creates a keyword index at path. An empty
// path yields an in-memory index for tests.
func NewBleveKeywordIndex(path string) (*BleveKeywordIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create index dir: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	return &BleveKeywordIndex{index: idx, path: path}, nil
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.ScoringModel = "bm25"

	err := indexMapping.AddCustomAnalyzer(QueryAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": QueryTokenizerName,
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = QueryAnalyzerName

	return indexMapping, nil
}

// Index upserts documents in one batch.
func (b *BleveKeywordIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDoc{Content: doc.Content}); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

// Search returns up to limit hits scored by BM25. Equal scores order by
// chunk ID ascending so results are deterministic across runs.
func (b *BleveKeywordIndex) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return []*KeywordResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	results := make([]*KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &KeywordResult{
			ChunkID: hit.ID,
			Score:   hit.Score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	return results, nil
}

// Delete removes documents in one batch. Unknown IDs are a no-op.
func (b *BleveKeywordIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return nil
}

// AllIDs lists every document ID, for consistency checks against the other
// stores.
func (b *BleveKeywordIndex) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}

	docCount, _ := b.index.DocCount()
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("list all ids: %w", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// DocCount returns the number of indexed documents.
func (b *BleveKeywordIndex) DocCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}
	n, _ := b.index.DocCount()
	return int(n)
}

// Close closes the underlying bleve index.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

var _ KeywordIndex = (*BleveKeywordIndex)(nil)

func queryTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &queryTokenizer{}, nil
}

// queryTokenizer lowercases input and emits runs of [a-z0-9_], plus each CJK
// rune as its own token.
type queryTokenizer struct{}

func isCJKRune(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (t *queryTokenizer) Tokenize(input []byte) analysis.TokenStream {
	var stream analysis.TokenStream
	pos := 1
	start := -1

	emit := func(s, e int) {
		term := strings.ToLower(string(input[s:e]))
		stream = append(stream, &analysis.Token{
			Term:     []byte(term),
			Start:    s,
			End:      e,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
	}

	for i := 0; i < len(input); {
		r, size := utf8.DecodeRune(input[i:])
		switch {
		case isCJKRune(r):
			if start >= 0 {
				emit(start, i)
				start = -1
			}
			emit(i, i+size)
		case isWordRune(r):
			if start < 0 {
				start = i
			}
		default:
			if start >= 0 {
				emit(start, i)
				start = -1
			}
		}
		i += size
	}
	if start >= 0 {
		emit(start, len(input))
	}

	return stream
}
