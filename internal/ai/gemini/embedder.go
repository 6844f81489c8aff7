package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/TomkerDev/Al-Moussaid/internal/logger"
	"github.com/TomkerDev/Al-Moussaid/internal/utils"
)

// semanticSimilarity is the Gemini task type for symmetric profile/posting comparison.
const semanticSimilarity = "SEMANTIC_SIMILARITY"

// Embedder produces embeddings with Gemini embedding models.
type Embedder struct {
	models    modelsAPI
	modelName string
	dimension int32
	backoff   utils.Backoff
	logger    *zap.Logger
}

// NewEmbedder builds an Embedder; dimension is sent as the output dimensionality.
func NewEmbedder(models modelsAPI, cfg Config, dimension int, log *zap.Logger) (*Embedder, error) {
	if models == nil {
		return nil, errors.New("gemini models api is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultEmbeddingModel
	}

	return &Embedder{
		models:    models,
		modelName: model,
		dimension: int32(dimension),
		backoff:   backoffFor(cfg.MaxRetries),
		logger:    logger.WithCommonFields(log, "gemini", model),
	}, nil
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dimension := e.dimension
	cfg := &genai.EmbedContentConfig{
		TaskType:             semanticSimilarity,
		OutputDimensionality: &dimension,
	}

	var resp *genai.EmbedContentResponse
	err := utils.Retry(ctx, e.backoff, isRetryable, func(ctx context.Context) error {
		var err error
		resp, err = e.models.EmbedContent(ctx, e.modelName, genai.Text(text), cfg)
		if err != nil && isRetryable(err) {
			e.logger.Warn("gemini embedding failed, retrying", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("gemini api returned no embedding")
	}

	return resp.Embeddings[0].Values, nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.modelName
}
