package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Provider produces raw vectors for text. Implementations live under internal/ai.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// ErrEmptyText is returned when asked to embed blank text.
var ErrEmptyText = errors.New("text to embed must not be empty")

// TaggedEmbedder pins a provider to one dimension and one model-version tag.
// Every vector it returns carries that tag so stored and query-time embeddings
// from different model versions are never compared.
type TaggedEmbedder struct {
	provider  Provider
	dimension int
	version   string
	timeout   time.Duration
	logger    *zap.Logger
}

// TaggedEmbedderConfig configures NewTaggedEmbedder.
type TaggedEmbedderConfig struct {
	Dimension int
	// Version overrides the default "<model>@<dimension>" tag.
	Version string
	Timeout time.Duration
}

// NewTaggedEmbedder wraps provider. Dimension must be positive.
func NewTaggedEmbedder(provider Provider, cfg TaggedEmbedderConfig, logger *zap.Logger) (*TaggedEmbedder, error) {
	if provider == nil {
		return nil, errors.New("embedding provider is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = DefaultVersion(provider.Model(), cfg.Dimension)
	}

	return &TaggedEmbedder{
		provider:  provider,
		dimension: cfg.Dimension,
		version:   version,
		timeout:   cfg.Timeout,
		logger:    logger,
	}, nil
}

// DefaultVersion builds the tag used when none is configured.
func DefaultVersion(model string, dimension int) string {
	return fmt.Sprintf("%s@%d", strings.TrimSpace(model), dimension)
}

// Embed returns the tagged vector for text.
func (e *TaggedEmbedder) Embed(ctx context.Context, text string) (Embedding, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Embedding{}, ErrEmptyText
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	values, err := e.provider.Embed(ctx, text)
	if err != nil {
		return Embedding{}, err
	}

	if len(values) != e.dimension {
		return Embedding{}, fmt.Errorf("%w: provider %s returned %d values, expected %d",
			ErrDimensionMismatch, e.provider.Model(), len(values), e.dimension)
	}

	e.logger.Debug("text embedded",
		zap.Int("text_length", len(text)),
		zap.Int("dimension", len(values)),
		zap.String("model_version", e.version),
	)

	return Embedding{Values: values, Model: e.version}, nil
}

// Version is the model-version tag attached to every embedding.
func (e *TaggedEmbedder) Version() string {
	return e.version
}

// Dimension is the pinned vector length.
func (e *TaggedEmbedder) Dimension() int {
	return e.dimension
}
