// Package profiles turns candidate text into a searchable profile and stores
// alert subscriptions for it.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	"github.com/TomkerDev/Al-Moussaid/internal/logger"
	"github.com/TomkerDev/Al-Moussaid/internal/store"
	"github.com/TomkerDev/Al-Moussaid/internal/utils"
	"github.com/TomkerDev/Al-Moussaid/internal/vector"
)

// Defaults mirror the configuration defaults.
const (
	DefaultSearchThreshold = 0.35
	DefaultSearchLimit     = 20
	DefaultAlertThreshold  = 0.90
	DefaultMaxChars        = 1500
)

// SkillExtractor is implemented by skills.Extractor.
type SkillExtractor interface {
	Extract(ctx context.Context, text string, maxChars int) domain.SkillSummary
}

// Embedder is implemented by vector.TaggedEmbedder.
type Embedder interface {
	Embed(ctx context.Context, text string) (vector.Embedding, error)
}

// JobSearcher is implemented by matching.Engine.
type JobSearcher interface {
	SearchJobs(ctx context.Context, q vector.Embedding, threshold float64, limit int) ([]domain.MatchResult, error)
}

// Config holds the profile-side tunables.
type Config struct {
	MaxChars        int
	SearchThreshold float64
	SearchLimit     int
	AlertThreshold  float64
	StoreTimeout    time.Duration
}

// Service builds profiles, searches postings for them and subscribes them to alerts.
type Service struct {
	extractor     SkillExtractor
	embedder      Embedder
	searcher      JobSearcher
	subscriptions store.SubscriptionStore
	cfg           Config
	logger        *zap.Logger
}

// New builds a Service. Zero config values take the package defaults.
func New(extractor SkillExtractor, embedder Embedder, searcher JobSearcher, subscriptions store.SubscriptionStore, cfg Config, log *zap.Logger) *Service {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.SearchThreshold == 0 {
		cfg.SearchThreshold = DefaultSearchThreshold
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	if cfg.AlertThreshold == 0 {
		cfg.AlertThreshold = DefaultAlertThreshold
	}

	return &Service{
		extractor:     extractor,
		embedder:      embedder,
		searcher:      searcher,
		subscriptions: subscriptions,
		cfg:           cfg,
		logger:        logger.Component(log, "profiles"),
	}
}

// Build extracts skills from text and embeds them. When extraction degrades,
// the truncated raw text is embedded instead so search still works.
func (s *Service) Build(ctx context.Context, text string) (domain.Profile, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Profile{}, fmt.Errorf("%w: profile text is empty", domain.ErrInvalidArgument)
	}

	summary := s.extractor.Extract(ctx, text, s.cfg.MaxChars)

	embedText := summary.Text()
	if summary.Empty() {
		embedText, _ = utils.TruncateRunes(text, s.cfg.MaxChars)
		s.logger.Warn("no skills extracted, embedding the profile text", zap.Bool("degraded", summary.Degraded))
	}

	embedding, err := s.embedder.Embed(ctx, embedText)
	if err != nil {
		return domain.Profile{}, embedError(err)
	}

	s.logger.Info("profile built",
		zap.Strings("skills", summary.Skills),
		zap.Bool("truncated", summary.Truncated),
		zap.String("model_version", embedding.Model),
	)

	return domain.Profile{RawText: text, Skills: summary, Embedding: embedding}, nil
}

// SearchOptions overrides the configured threshold when Threshold is set, and
// the configured limit when Limit is non-zero. A zero threshold keeps every posting.
type SearchOptions struct {
	Threshold *float64
	Limit     int
}

// Search returns the postings matching profile.
func (s *Service) Search(ctx context.Context, profile domain.Profile, opts SearchOptions) ([]domain.MatchResult, error) {
	if profile.Embedding.IsZero() {
		return nil, fmt.Errorf("%w: profile has no embedding", domain.ErrInvalidArgument)
	}

	threshold := s.cfg.SearchThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	limit := s.cfg.SearchLimit
	if opts.Limit != 0 {
		limit = opts.Limit
	}

	return s.searcher.SearchJobs(ctx, profile.Embedding, threshold, limit)
}

// Subscribe stores an alert subscription for profile. A zero threshold uses
// the configured alert threshold.
func (s *Service) Subscribe(ctx context.Context, profile domain.Profile, email string, threshold float64) (domain.Subscription, error) {
	address, err := ValidateEmail(email)
	if err != nil {
		return domain.Subscription{}, err
	}

	if threshold == 0 {
		threshold = s.cfg.AlertThreshold
	}
	if math.IsNaN(threshold) || threshold <= 0 || threshold > 1 {
		return domain.Subscription{}, fmt.Errorf("%w: alert threshold must be within (0, 1], got %v", domain.ErrInvalidArgument, threshold)
	}

	if profile.Embedding.IsZero() {
		return domain.Subscription{}, fmt.Errorf("%w: run a search before subscribing", domain.ErrInvalidArgument)
	}

	skills := profile.Skills.Text()
	if skills == "" {
		skills, _ = utils.TruncateRunes(profile.RawText, s.cfg.MaxChars)
	}

	if s.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.StoreTimeout)
		defer cancel()
	}

	sub, err := s.subscriptions.Insert(ctx, domain.Subscription{
		Email:     address,
		Skills:    skills,
		Embedding: profile.Embedding,
		Threshold: threshold,
	})
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("subscribe: %w", err)
	}

	s.logger.Info("alert subscription created",
		zap.String(logger.FieldSubscriptionID, sub.ID),
		zap.Float64("threshold", sub.Threshold),
	)
	return sub, nil
}

func embedError(err error) error {
	if errors.Is(err, vector.ErrEmptyText) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}
	return fmt.Errorf("%w: profile: %w", domain.ErrEmbedding, err)
}

// ValidateEmail returns the bare address of a non-empty, parseable e-mail.
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidArgument)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", fmt.Errorf("%w: invalid email %q", domain.ErrInvalidArgument, email)
	}
	return addr.Address, nil
}
