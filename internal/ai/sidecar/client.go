// Package sidecar talks to a self-hosted sentence-transformers service
// (text-embeddings-inference style POST /embed).
package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/logger"
	"github.com/TomkerDev/Al-Moussaid/internal/utils"
)

const (
	defaultModel   = "sentence-transformers/all-MiniLM-L6-v2"
	defaultTimeout = 15 * time.Second
	embedPath      = "/embed"
)

// Config configures the sidecar client.
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

// Client embeds text through the sidecar.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	backoff  utils.Backoff
	http     *http.Client
	logger   *zap.Logger
}

// StatusError is returned for non-2xx answers.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %s", e.Status)
	}
	return fmt.Sprintf("unexpected status %s: %s", e.Status, e.Body)
}

// New creates a reusable client.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("sidecar endpoint is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	policy := utils.DefaultBackoff
	if cfg.MaxRetries > 0 {
		policy.Attempts = cfg.MaxRetries
	}

	return &Client{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    model,
		backoff:  policy,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.WithCommonFields(log, "sidecar", model),
	}, nil
}

// Embed returns the vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{
		"inputs":    text,
		"normalize": true,
	}

	var raw json.RawMessage
	err := utils.Retry(ctx, c.backoff, isRetryable, func(ctx context.Context) error {
		return c.post(ctx, embedPath, payload, &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("sidecar embed: %w", err)
	}

	values, err := decodeEmbedding(raw)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("sidecar embedding created", zap.Int("dimension", len(values)))
	return values, nil
}

// Model returns the served model name.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// decodeEmbedding accepts the shapes served by common sidecars:
// [[...]] (TEI), [...] and {"embeddings": [[...]]} / {"embedding": [...]}.
func decodeEmbedding(raw json.RawMessage) ([]float32, error) {
	var batch [][]float32
	if err := json.Unmarshal(raw, &batch); err == nil {
		if len(batch) == 0 || len(batch[0]) == 0 {
			return nil, errors.New("sidecar returned no embedding")
		}
		return batch[0], nil
	}

	var single []float32
	if err := json.Unmarshal(raw, &single); err == nil {
		if len(single) == 0 {
			return nil, errors.New("sidecar returned no embedding")
		}
		return single, nil
	}

	var envelope struct {
		Embeddings [][]float32 `json:"embeddings"`
		Embedding  []float32   `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}

	switch {
	case len(envelope.Embeddings) > 0 && len(envelope.Embeddings[0]) > 0:
		return envelope.Embeddings[0], nil
	case len(envelope.Embedding) > 0:
		return envelope.Embedding, nil
	default:
		return nil, errors.New("sidecar returned no embedding")
	}
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= http.StatusInternalServerError
	}

	// transport errors (connection refused while the model loads, timeouts)
	return true
}
