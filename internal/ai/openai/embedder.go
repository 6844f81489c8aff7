package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/logger"
	"github.com/TomkerDev/Al-Moussaid/internal/utils"
)

// Embedder calls the embeddings endpoint.
type Embedder struct {
	embeddings embeddingsAPI
	modelName  string
	dimension  int64
	backoff    utils.Backoff
	logger     *zap.Logger
}

// NewEmbedder wires an Embedder to client. A positive dimension is forwarded
// for models that support shortened outputs.
func NewEmbedder(client *openai.Client, cfg Config, dimension int, log *zap.Logger) (*Embedder, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	return newEmbedder(&client.Embeddings, cfg, dimension, log), nil
}

func newEmbedder(api embeddingsAPI, cfg Config, dimension int, log *zap.Logger) *Embedder {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultEmbeddingModel
	}

	return &Embedder{
		embeddings: api,
		modelName:  model,
		dimension:  int64(dimension),
		backoff:    backoffFor(cfg.MaxRetries),
		logger:     logger.WithCommonFields(log, "openai", model),
	}
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.modelName),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	}
	if e.dimension > 0 && strings.HasPrefix(e.modelName, "text-embedding-3") {
		params.Dimensions = openai.Int(e.dimension)
	}

	var resp *openai.CreateEmbeddingResponse
	err := utils.Retry(ctx, e.backoff, isRetryable, func(ctx context.Context) error {
		var err error
		resp, err = e.embeddings.New(ctx, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}

	if resp == nil || len(resp.Data) == 0 {
		return nil, errors.New("embedding endpoint returned no data")
	}

	raw := resp.Data[0].Embedding
	values := make([]float32, len(raw))
	for i, v := range raw {
		values[i] = float32(v)
	}

	e.logger.Debug("embedding created", zap.Int("dimension", len(values)))
	return values, nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.modelName
}
