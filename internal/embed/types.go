// Package embed produces vector embeddings for chunks and queries.
//
// The remote embedder talks to any OpenAI-compatible /v1/embeddings endpoint.
// When no endpoint is configured, the deterministic local embedder keeps
// vector search functional offline (with lower quality).
package embed

import "context"

// MaxBatchSize caps texts per embedding request. Larger inputs are split.
const MaxBatchSize = 64

// Embedder converts text to fixed-dimension vectors.
type Embedder interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in order. The result has one vector per input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension this embedder produces.
	Dimensions() int

	// ModelName identifies the model, for status reporting.
	ModelName() string

	// Available reports whether the embedder can currently serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Config selects and configures an embedder.
type Config struct {
	// Endpoint is the base URL of an OpenAI-compatible API. Empty selects
	// the local embedder.
	Endpoint   string
	Model      string
	APIKey     string
	Dimensions int
	// BatchSize caps texts per request; 0 or anything past MaxBatchSize
	// falls back to MaxBatchSize.
	BatchSize  int
	TimeoutSec int
}

// New builds an embedder from config.
func New(cfg Config) Embedder {
	if cfg.Endpoint == "" {
		return NewLocalEmbedder(cfg.Dimensions)
	}
	return NewRemoteEmbedder(cfg)
}
