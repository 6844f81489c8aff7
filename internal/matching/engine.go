// Package matching implements threshold-based retrieval of postings for a
// profile and of subscribers for a new posting.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	"github.com/TomkerDev/Al-Moussaid/internal/logger"
	"github.com/TomkerDev/Al-Moussaid/internal/store"
	"github.com/TomkerDev/Al-Moussaid/internal/vector"
)

// DefaultMaxLimit caps SearchJobs when no cap is configured.
const DefaultMaxLimit = 100

// Config pins the engine to one embedding space.
type Config struct {
	// ModelVersion is the tag every query must carry. Empty disables the check.
	ModelVersion string
	// Dimension is the expected vector length. Zero disables the check.
	Dimension int
	// MaxLimit caps the limit accepted by SearchJobs.
	MaxLimit int
	// StoreTimeout bounds one store query. Zero leaves the caller's deadline alone.
	StoreTimeout time.Duration
}

// Engine answers similarity queries on top of the stores and enforces the
// result contract whatever the store returns.
type Engine struct {
	postings      store.PostingStore
	subscriptions store.SubscriptionStore
	cfg           Config
	logger        *zap.Logger
}

// New builds an Engine. Either store may be nil when the caller only needs one direction.
func New(postings store.PostingStore, subscriptions store.SubscriptionStore, cfg Config, log *zap.Logger) *Engine {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultMaxLimit
	}
	return &Engine{
		postings:      postings,
		subscriptions: subscriptions,
		cfg:           cfg,
		logger:        logger.Component(log, "matching"),
	}
}

// SearchJobs returns at most limit postings whose cosine similarity to q is at
// least threshold, by descending similarity with ties broken oldest first.
// An empty result is a valid outcome; a store failure is an error.
func (e *Engine) SearchJobs(ctx context.Context, q vector.Embedding, threshold float64, limit int) ([]domain.MatchResult, error) {
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be at least 1, got %d", domain.ErrInvalidArgument, limit)
	}
	if limit > e.cfg.MaxLimit {
		e.logger.Debug("search limit capped", zap.Int("requested", limit), zap.Int("max_limit", e.cfg.MaxLimit))
		limit = e.cfg.MaxLimit
	}
	if err := e.checkQuery(q); err != nil {
		return nil, err
	}
	if e.postings == nil {
		return nil, fmt.Errorf("%w: no posting store configured", domain.ErrStoreUnavailable)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	results, err := e.postings.SearchSimilar(ctx, q, threshold, limit)
	if err != nil {
		return nil, unavailable("search postings", err)
	}

	results = enforceSearchContract(results, threshold, limit)

	e.logger.Debug("postings matched",
		zap.Float64("threshold", threshold),
		zap.Int("limit", limit),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// MatchSubscribers returns every subscription whose own threshold is met by
// the similarity of p to its stored embedding. minThreshold is a coarse
// prefilter applied on top (0 disables it). Order: similarity desc, then oldest first.
func (e *Engine) MatchSubscribers(ctx context.Context, p vector.Embedding, minThreshold float64) ([]store.SubscriptionMatch, error) {
	if err := validateThreshold(minThreshold); err != nil {
		return nil, err
	}
	if err := e.checkQuery(p); err != nil {
		return nil, err
	}
	if e.subscriptions == nil {
		return nil, fmt.Errorf("%w: no subscription store configured", domain.ErrStoreUnavailable)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	matches, err := e.subscriptions.MatchSimilar(ctx, p, minThreshold)
	if err != nil {
		return nil, unavailable("match subscriptions", err)
	}

	kept := make([]store.SubscriptionMatch, 0, len(matches))
	for _, m := range matches {
		m.Similarity = vector.Clamp01(m.Similarity)
		if m.Similarity < m.Subscription.Threshold || m.Similarity < minThreshold {
			e.logger.Warn("store returned a subscription below its threshold, dropping",
				zap.String(logger.FieldSubscriptionID, m.Subscription.ID),
				zap.Float64("similarity", m.Similarity),
				zap.Float64("threshold", m.Subscription.Threshold),
			)
			continue
		}
		kept = append(kept, m)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Similarity != kept[j].Similarity {
			return kept[i].Similarity > kept[j].Similarity
		}
		return kept[i].Subscription.CreatedAt.Before(kept[j].Subscription.CreatedAt)
	})

	return kept, nil
}

// ModelVersion is the embedding tag queries must carry.
func (e *Engine) ModelVersion() string {
	return e.cfg.ModelVersion
}

func (e *Engine) checkQuery(q vector.Embedding) error {
	if q.IsZero() {
		return fmt.Errorf("%w: empty query embedding", domain.ErrInvalidArgument)
	}
	if e.cfg.ModelVersion != "" && q.Model != e.cfg.ModelVersion {
		return fmt.Errorf("%w: query tagged %q, engine serves %q", domain.ErrModelMismatch, q.Model, e.cfg.ModelVersion)
	}
	if e.cfg.Dimension > 0 && q.Dim() != e.cfg.Dimension {
		return fmt.Errorf("%w: query has %d values, expected %d", domain.ErrDimensionMismatch, q.Dim(), e.cfg.Dimension)
	}
	return nil
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.StoreTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

// enforceSearchContract drops rows under threshold, clamps similarities,
// sorts by similarity desc then Seq asc and applies limit.
func enforceSearchContract(results []domain.MatchResult, threshold float64, limit int) []domain.MatchResult {
	kept := make([]domain.MatchResult, 0, len(results))
	for _, r := range results {
		r.Similarity = vector.Clamp01(r.Similarity)
		if r.Similarity < threshold {
			continue
		}
		kept = append(kept, r)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Similarity != kept[j].Similarity {
			return kept[i].Similarity > kept[j].Similarity
		}
		return kept[i].Posting.Seq < kept[j].Posting.Seq
	})

	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

func validateThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("%w: threshold must be within [0, 1], got %v", domain.ErrInvalidArgument, t)
	}
	return nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, domain.ErrInvalidArgument) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}
