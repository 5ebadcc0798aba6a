// Package llm provides the completion client used by reranking and answer
// generation. Any OpenAI-compatible chat completions endpoint works.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
)

// Options tunes one completion request.
type Options struct {
	// MaxTokens caps the completion length. Zero leaves it to the server.
	MaxTokens int
	// Temperature defaults to 0 for deterministic selection tasks.
	Temperature float64
	// System is an optional system prompt.
	System string
}

// Provider produces chat completions.
type Provider interface {
	// Complete returns the assistant message for prompt.
	Complete(ctx context.Context, prompt string, opts Options) (string, error)

	// ModelName identifies the model, for status reporting.
	ModelName() string

	// Available reports whether the provider is configured and reachable.
	Available(ctx context.Context) bool
}

// Config configures the OpenAI-compatible client.
type Config struct {
	Endpoint   string
	Model      string
	APIKey     string
	TimeoutSec int
}

// Client is an OpenAI-compatible chat completions client.
type Client struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClient creates a completions client. An empty endpoint yields a client
// whose Available always reports false.
func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		endpoint: completionsURL(cfg.Endpoint),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func completionsURL(base string) string {
	if base == "" {
		return ""
	}
	base = strings.TrimSuffix(base, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// Complete sends one chat request and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if c.endpoint == "" {
		return "", apperr.New(apperr.KindUnavailable, "no completion endpoint configured")
	}

	messages := make([]chatMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.Transient("chat request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", apperr.Transient("read chat response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", apperr.Transient(fmt.Sprintf("chat API returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperr.Newf(apperr.KindUnavailable, "chat API returned %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", apperr.Transient("parse chat response", err)
	}
	if parsed.Error != nil {
		return "", apperr.Newf(apperr.KindUnavailable, "chat API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", apperr.New(apperr.KindUnavailable, "chat API returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string { return c.model }

// Available reports whether an endpoint is configured. No probe request is
// made; completion failures degrade gracefully at call sites.
func (c *Client) Available(ctx context.Context) bool {
	return c.endpoint != ""
}

var _ Provider = (*Client)(nil)
