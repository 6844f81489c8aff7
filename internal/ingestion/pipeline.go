// Package ingestion turns scraped items into stored, embedded postings and
// alerts matching subscribers about each new one.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TomkerDev/Al-Moussaid/internal/alerts"
	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	"github.com/TomkerDev/Al-Moussaid/internal/logger"
	"github.com/TomkerDev/Al-Moussaid/internal/store"
	"github.com/TomkerDev/Al-Moussaid/internal/utils"
	"github.com/TomkerDev/Al-Moussaid/internal/vector"
)

const (
	maxDerivedTitle = 200
	defaultLockTTL  = time.Minute
)

// Structurer is implemented by skills.Structurer.
type Structurer interface {
	Structure(ctx context.Context, item domain.ScrapedItem, title string) domain.StructuredPosting
}

// Embedder is implemented by vector.TaggedEmbedder.
type Embedder interface {
	Embed(ctx context.Context, text string) (vector.Embedding, error)
}

// SubscriberMatcher is implemented by matching.Engine.
type SubscriberMatcher interface {
	MatchSubscribers(ctx context.Context, p vector.Embedding, minThreshold float64) ([]store.SubscriptionMatch, error)
}

// Dispatcher is implemented by alerts.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, posting domain.Posting, matches []store.SubscriptionMatch) alerts.Report
}

// Config tunes a Pipeline.
type Config struct {
	// Concurrency is the number of items processed at once. Values below 1 mean 1.
	Concurrency int
	// Delay is the pause a worker takes between two items.
	Delay time.Duration
	// ItemTimeout bounds the whole processing of one item.
	ItemTimeout time.Duration
	// StoreTimeout bounds each store call.
	StoreTimeout time.Duration
	// MinAlertThreshold is the coarse prefilter handed to MatchSubscribers.
	MinAlertThreshold float64
	// LockTTL is the expiry of the cross-process title lock.
	LockTTL time.Duration
}

// Pipeline runs items through dedup, structuring, embedding, storage and alerting.
type Pipeline struct {
	postings   store.PostingStore
	structurer Structurer
	embedder   Embedder
	matcher    SubscriberMatcher
	dispatcher Dispatcher
	locker     store.TitleLocker
	titles     *keyedMutex
	cfg        Config
	logger     *zap.Logger
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithAlerts enables subscriber matching and alert dispatch for stored postings.
func WithAlerts(matcher SubscriberMatcher, dispatcher Dispatcher) Option {
	return func(p *Pipeline) {
		p.matcher = matcher
		p.dispatcher = dispatcher
	}
}

// WithTitleLocker adds a cross-process lock around the dedup-check-then-insert section.
func WithTitleLocker(locker store.TitleLocker) Option {
	return func(p *Pipeline) {
		p.locker = locker
	}
}

// New builds a Pipeline.
func New(postings store.PostingStore, structurer Structurer, embedder Embedder, cfg Config, log *zap.Logger, opts ...Option) *Pipeline {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}

	p := &Pipeline{
		postings:   postings,
		structurer: structurer,
		embedder:   embedder,
		titles:     newKeyedMutex(),
		cfg:        cfg,
		logger:     logger.Component(log, "ingestion"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes items and returns the per-item outcomes in input order.
// Items are started in order; with a concurrency of 1 each item sees every
// insert made by the items before it.
func (p *Pipeline) Run(ctx context.Context, items []domain.ScrapedItem) Report {
	started := time.Now()
	results := make([]ItemResult, len(items))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(items); j++ {
				results[j] = failed(dedupTitle(items[j]), "run cancelled", err)
			}
			break
		}

		last := i == len(items)-1
		g.Go(func() error {
			results[i] = p.process(ctx, item)
			if !last {
				_ = utils.WaitFor(ctx, p.cfg.Delay)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := newReport(results, time.Since(started))
	p.logger.Info("ingestion run finished", report.Fields()...)
	return report
}

// RunSources fetches every source and runs the collected items. A failing
// source is logged and counted; the others still run.
func (p *Pipeline) RunSources(ctx context.Context, sources []Source) Report {
	var (
		items      []domain.ScrapedItem
		sourceErrs int
	)

	for _, src := range sources {
		log := p.logger.With(zap.String(logger.FieldSource, src.Name()))

		fetched, err := src.Fetch(ctx)
		if err != nil {
			log.Warn("source fetch failed", zap.Error(err))
			sourceErrs++
			continue
		}

		for i := range fetched {
			if fetched[i].Source == "" {
				fetched[i].Source = src.Name()
			}
		}
		log.Info("source fetched", zap.Int("items", len(fetched)))
		items = append(items, fetched...)
	}

	report := p.Run(ctx, items)
	report.SourceErrors = sourceErrs
	return report
}

func (p *Pipeline) process(ctx context.Context, item domain.ScrapedItem) ItemResult {
	title := dedupTitle(item)
	log := p.logger.With(append(logger.PostingFields("", title), zap.String(logger.FieldSource, item.Source))...)

	if title == "" {
		log.Warn("scraped item has no title, dropping")
		return failed("", "no title", domain.ErrInvalidArgument)
	}

	if p.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ItemTimeout)
		defer cancel()
	}

	unlock, err := p.lockTitle(ctx, title)
	if err != nil {
		log.Warn("could not lock title", zap.Error(err))
		return failed(title, "title lock", err)
	}
	release := sync.OnceFunc(func() { unlock(ctx) })
	defer release()

	exists, err := p.existsByTitle(ctx, title)
	if err != nil {
		log.Warn("dedup check failed", zap.Error(err))
		return failed(title, "dedup check", err)
	}
	if exists {
		log.Debug("posting already stored, skipping")
		return ItemResult{Title: title, State: StateSkipped, Reason: "title already stored"}
	}
	log.Debug("item deduplicated", zap.String("state", string(StateDeduped)))

	structured := p.structurer.Structure(ctx, item, title)
	log.Debug("item structured",
		zap.String("state", string(StateStructured)),
		zap.Bool("degraded", structured.Degraded),
	)

	text := structured.Description
	if strings.TrimSpace(text) == "" {
		text = title
	}
	embedding, err := p.embedder.Embed(ctx, text)
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
		log.Warn("posting embedding failed", zap.Error(err))
		return failed(title, "embedding", err)
	}
	log.Debug("item embedded", zap.String("state", string(StateEmbedded)))

	posting, err := p.insert(ctx, domain.Posting{
		Title:       title,
		Company:     structured.Company,
		Location:    structured.Location,
		Description: structured.Description,
		SourceURL:   item.URL,
		Embedding:   embedding,
	})
	switch {
	case errors.Is(err, domain.ErrDuplicateTitle):
		log.Debug("posting stored concurrently, skipping")
		return ItemResult{Title: title, State: StateSkipped, Reason: "duplicate title on insert"}
	case err != nil:
		log.Warn("posting insert failed", zap.Error(err))
		return failed(title, "insert", err)
	}

	release()

	log = log.With(zap.String(logger.FieldPostingID, posting.ID))
	log.Info("posting stored", zap.Bool("degraded", structured.Degraded))

	return ItemResult{
		Title:     title,
		State:     StateStored,
		PostingID: posting.ID,
		Degraded:  structured.Degraded,
		Alerts:    p.alert(ctx, posting, log),
	}
}

// alert never fails the item: the posting is already stored.
func (p *Pipeline) alert(ctx context.Context, posting domain.Posting, log *zap.Logger) AlertOutcome {
	if p.matcher == nil || p.dispatcher == nil {
		return AlertOutcome{}
	}

	matches, err := p.matcher.MatchSubscribers(ctx, posting.Embedding, p.cfg.MinAlertThreshold)
	if err != nil {
		log.Warn("subscriber matching failed, no alerts sent", zap.Error(err))
		return AlertOutcome{MatchFailed: true}
	}
	if len(matches) == 0 {
		return AlertOutcome{}
	}

	return AlertOutcome{Report: p.dispatcher.Dispatch(ctx, posting, matches)}
}

func (p *Pipeline) lockTitle(ctx context.Context, title string) (func(context.Context), error) {
	unlockLocal, err := p.titles.Lock(ctx, title)
	if err != nil {
		return nil, err
	}
	if p.locker == nil {
		return func(context.Context) { unlockLocal() }, nil
	}

	unlockRemote, err := p.locker.Lock(ctx, title, p.cfg.LockTTL)
	if err != nil {
		unlockLocal()
		return nil, err
	}

	return func(ctx context.Context) {
		// the item context may already be done; the release still has to reach redis
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*5)
		defer cancel()
		if err := unlockRemote(relCtx); err != nil {
			p.logger.Warn("title lock release failed", append(logger.PostingFields("", title), zap.Error(err))...)
		}
		unlockLocal()
	}, nil
}

func (p *Pipeline) existsByTitle(ctx context.Context, title string) (bool, error) {
	ctx, cancel := p.storeContext(ctx)
	defer cancel()
	return p.postings.ExistsByTitle(ctx, title)
}

func (p *Pipeline) insert(ctx context.Context, posting domain.Posting) (domain.Posting, error) {
	ctx, cancel := p.storeContext(ctx)
	defer cancel()
	return p.postings.Insert(ctx, posting)
}

func (p *Pipeline) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.cfg.StoreTimeout)
}

// dedupTitle is the scraped title exactly as scraped, or the first non-empty
// line of the raw text when the scraped title is blank.
func dedupTitle(item domain.ScrapedItem) string {
	if strings.TrimSpace(item.Title) != "" {
		return item.Title
	}

	for _, line := range strings.Split(item.Raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			line, _ = utils.TruncateRunes(line, maxDerivedTitle)
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func failed(title, reason string, err error) ItemResult {
	return ItemResult{Title: title, State: StateFailed, Reason: reason, Err: err}
}
