package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
)

// RemoteEmbedder calls an OpenAI-compatible embeddings API.
type RemoteEmbedder struct {
	endpoint   string
	model      string
	apiKey     string
	dimensions int
	batchSize  int
	client     *http.Client
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewRemoteEmbedder creates a remote embedder. The endpoint is the API base
// URL; "/v1/embeddings" is appended unless already present.
func NewRemoteEmbedder(cfg Config) *RemoteEmbedder {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 || batch > MaxBatchSize {
		batch = MaxBatchSize
	}
	return &RemoteEmbedder{
		endpoint:   embeddingsURL(cfg.Endpoint),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		dimensions: cfg.Dimensions,
		batchSize:  batch,
		client:     &http.Client{Timeout: timeout},
	}
}

func embeddingsURL(base string) string {
	base = strings.TrimSuffix(base, "/")
	if strings.HasSuffix(base, "/embeddings") {
		return base
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/embeddings"
	}
	return base + "/v1/embeddings"
}

// Embed embeds one text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, splitting into sub-batches of the configured
// size. Each sub-batch is retried independently on transient failure. A
// dimension mismatch resets the client's connections and retries once: the
// usual cause is a stale connection to a redeployed backend serving a
// different model.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vecs, err := e.embedSubBatch(ctx, texts[start:end])
		if apperr.IsKind(err, apperr.KindDimensionMismatch) {
			slog.Warn("embedder_reset_on_dimension_mismatch", slog.String("error", err.Error()))
			e.client.CloseIdleConnections()
			vecs, err = e.embedSubBatch(ctx, texts[start:end])
		}
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *RemoteEmbedder) embedSubBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := withRetry(ctx, func() error {
		var reqErr error
		vecs, reqErr = e.request(ctx, texts)
		return reqErr
	})
	return vecs, err
}

func (e *RemoteEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperr.Transient("embedding request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, apperr.Transient("read embedding response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, apperr.Transient(
			fmt.Sprintf("embedding API returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Newf(apperr.KindUnavailable,
			"embedding API returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, apperr.Transient("parse embedding response", err)
	}
	if parsed.Error != nil {
		return nil, apperr.Newf(apperr.KindUnavailable, "embedding API error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, apperr.Newf(apperr.KindUnavailable,
			"embedding API returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	// The API may reorder; index restores input order.
	vecs := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, apperr.Newf(apperr.KindUnavailable, "embedding API returned index %d out of range", d.Index)
		}
		if len(d.Embedding) != e.dimensions {
			return nil, apperr.DimensionMismatch(e.dimensions, len(d.Embedding))
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, apperr.Newf(apperr.KindUnavailable, "embedding API missing vector for input %d", i)
		}
	}
	return vecs, nil
}

// Dimensions returns the configured vector dimension.
func (e *RemoteEmbedder) Dimensions() int { return e.dimensions }

// ModelName returns the configured model identifier.
func (e *RemoteEmbedder) ModelName() string { return e.model }

// Available probes the endpoint with a one-word embedding request.
func (e *RemoteEmbedder) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := e.request(probeCtx, []string{"ping"})
	if err != nil {
		slog.Debug("embedder_probe_failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (e *RemoteEmbedder) Close() error { return nil }

var _ Embedder = (*RemoteEmbedder)(nil)

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
