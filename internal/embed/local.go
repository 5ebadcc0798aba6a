package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultLocalDimensions is the local embedder's vector size when the config
// leaves dimensions unset.
const DefaultLocalDimensions = 256

// LocalEmbedder is a deterministic offline embedder: token hashes scattered
// into a fixed-size vector, unit-normalized. Quality is far below a learned
// model, but identical text always embeds identically, which keeps vector
// search and the semantic cache functional with no external service.
type LocalEmbedder struct {
	dimensions int
}

// NewLocalEmbedder creates a local embedder with the given dimension.
func NewLocalEmbedder(dimensions int) *LocalEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultLocalDimensions
	}
	return &LocalEmbedder{dimensions: dimensions}
}

// Embed embeds one text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	for _, tok := range splitTokens(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()

		idx := int(sum % uint64(e.dimensions))
		sign := float32(1)
		if (sum>>63)&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		inv := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EmbedBatch embeds texts in order.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the vector size.
func (e *LocalEmbedder) Dimensions() int { return e.dimensions }

// ModelName identifies the local embedder.
func (e *LocalEmbedder) ModelName() string { return "local-hash" }

// Available is always true; the local embedder needs no service.
func (e *LocalEmbedder) Available(ctx context.Context) bool { return true }

// Close is a no-op.
func (e *LocalEmbedder) Close() error { return nil }

var _ Embedder = (*LocalEmbedder)(nil)

func splitTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
