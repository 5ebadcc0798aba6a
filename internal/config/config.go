// Package config loads server configuration from an optional YAML file and
// AUGLITE_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	// DataDir is the root directory for all derived index data.
	DataDir string `yaml:"data_dir"`

	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Cache     CacheConfig     `yaml:"cache"`
	Index     IndexConfig     `yaml:"index"`
	Server    ServerConfig    `yaml:"server"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// KeywordWeight is the fusion weight for normalized BM25 scores.
	KeywordWeight float64 `yaml:"keyword_weight"`
	// VectorWeight is the fusion weight for vector similarity scores.
	VectorWeight float64 `yaml:"vector_weight"`
	// MaxPerFile caps candidates per source file after fusion.
	MaxPerFile int `yaml:"max_per_file"`
	// RerankChunkBytes is the per-chunk byte budget in the rerank prompt.
	RerankChunkBytes int `yaml:"rerank_chunk_bytes"`
	// RerankTimeout bounds the whole rerank call.
	RerankTimeout time.Duration `yaml:"rerank_timeout"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Endpoint is an OpenAI-compatible embeddings endpoint. Empty disables
	// remote mode and the local fallback embedder is used.
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	// Dimensions is the expected remote embedding dimension.
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LLMConfig configures the rerank/answer LLM provider.
type LLMConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CacheConfig configures the query cache.
type CacheConfig struct {
	// TTL is the lifetime of a cache entry.
	TTL time.Duration `yaml:"ttl"`
	// MaxEntries bounds entries per project (LRU beyond this).
	MaxEntries int `yaml:"max_entries"`
	// SemanticThreshold is the minimum cosine similarity for a semantic hit.
	SemanticThreshold float64 `yaml:"semantic_threshold"`
}

// IndexConfig configures the indexing pipeline.
type IndexConfig struct {
	// MaxFileSize caps indexable file size in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`
	// CatchUpTimeout bounds a full catch-up pass.
	CatchUpTimeout time.Duration `yaml:"catchup_timeout"`
	// IdleDeadline aborts a catch-up that makes no progress for this long.
	IdleDeadline time.Duration `yaml:"idle_deadline"`
	// FreshWindow reuses the previous catch-up when it finished within this
	// window and the watcher saw no changes.
	FreshWindow time.Duration `yaml:"fresh_window"`
	// Workers bounds files indexed in parallel. 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`
	// WatchDebounce is the settle window for filesystem events.
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// ServerConfig configures the MCP server process.
type ServerConfig struct {
	LogLevel string `yaml:"log_level"`
}

// Default returns the default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".auglite"),
		Search: SearchConfig{
			KeywordWeight:    0.5,
			VectorWeight:     0.5,
			MaxPerFile:       2,
			RerankChunkBytes: 2048,
			RerankTimeout:    30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BatchSize:  64,
			Timeout:    30 * time.Second,
		},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			TTL:               time.Hour,
			MaxEntries:        10000,
			SemanticThreshold: 0.95,
		},
		Index: IndexConfig{
			MaxFileSize:    1 << 20,
			CatchUpTimeout: 5 * time.Minute,
			IdleDeadline:   60 * time.Second,
			FreshWindow:    60 * time.Second,
			WatchDebounce:  500 * time.Millisecond,
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// Load reads configuration from path (if it exists), then applies environment
// overrides. An empty path uses ~/.auglite/config.yaml.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies AUGLITE_* environment overrides. Env has the highest
// priority.
func (c *Config) applyEnv() {
	if v := os.Getenv("AUGLITE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("AUGLITE_EMBED_ENDPOINT"); v != "" {
		c.Embedding.Endpoint = v
	}
	if v := os.Getenv("AUGLITE_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("AUGLITE_EMBED_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("AUGLITE_EMBED_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("AUGLITE_LLM_ENDPOINT"); v != "" {
		c.LLM.Endpoint = v
	}
	if v := os.Getenv("AUGLITE_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("AUGLITE_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("AUGLITE_EMBED_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Embedding.Timeout = d
		}
	}
	if v := os.Getenv("AUGLITE_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.LLM.Timeout = d
		}
	}
	if v := os.Getenv("AUGLITE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate checks configuration invariants, filling safe defaults where a
// zero value is acceptable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Search.KeywordWeight < 0 || c.Search.VectorWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Search.KeywordWeight == 0 && c.Search.VectorWeight == 0 {
		c.Search.KeywordWeight = 0.5
		c.Search.VectorWeight = 0.5
	}
	if c.Search.MaxPerFile <= 0 {
		c.Search.MaxPerFile = 2
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 64 {
		c.Embedding.BatchSize = 64
	}
	if c.Cache.SemanticThreshold <= 0 || c.Cache.SemanticThreshold > 1 {
		c.Cache.SemanticThreshold = 0.95
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 10000
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = time.Hour
	}
	if c.Index.MaxFileSize <= 0 {
		c.Index.MaxFileSize = 1 << 20
	}
	return nil
}
