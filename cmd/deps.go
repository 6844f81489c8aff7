package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	openaisdk "github.com/openai/openai-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/ai"
	"github.com/TomkerDev/Al-Moussaid/internal/ai/gemini"
	"github.com/TomkerDev/Al-Moussaid/internal/ai/openai"
	"github.com/TomkerDev/Al-Moussaid/internal/ai/sidecar"
	"github.com/TomkerDev/Al-Moussaid/internal/ai/skills"
	"github.com/TomkerDev/Al-Moussaid/internal/alerts"
	"github.com/TomkerDev/Al-Moussaid/internal/matching"
	"github.com/TomkerDev/Al-Moussaid/internal/profiles"
	"github.com/TomkerDev/Al-Moussaid/internal/secrets"
	"github.com/TomkerDev/Al-Moussaid/internal/store"
	"github.com/TomkerDev/Al-Moussaid/internal/store/memory"
	"github.com/TomkerDev/Al-Moussaid/internal/store/postgres"
	"github.com/TomkerDev/Al-Moussaid/internal/store/redislock"
	"github.com/TomkerDev/Al-Moussaid/internal/vector"
)

const (
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

// deps holds the clients built once per process.
type deps struct {
	config *Config
	logger *zap.Logger

	postings      store.PostingStore
	subscriptions store.SubscriptionStore
	ledger        store.AlertLedger
	redis         *redis.Client

	generator ai.Generator
	embedder  *vector.TaggedEmbedder
	engine    *matching.Engine

	closers []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// loadDeps builds the stores, and the model clients when withModels is set.
func loadDeps(ctx context.Context, config *Config, logger *zap.Logger, withModels bool) (*deps, error) {
	d := &deps{config: config, logger: logger}

	if err := d.openStores(ctx); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.openRedis(ctx); err != nil {
		d.Close()
		return nil, err
	}

	if !withModels {
		return d, nil
	}

	generator, err := newGenerator(ctx, config.AI, logger)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("language model: %w", err)
	}
	d.generator = generator

	embedder, err := newEmbedder(ctx, config, logger)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("embedding model: %w", err)
	}
	d.embedder = embedder

	d.engine = matching.New(d.postings, d.subscriptions, matching.Config{
		ModelVersion: embedder.Version(),
		Dimension:    embedder.Dimension(),
		MaxLimit:     config.Search.MaxLimit,
		StoreTimeout: config.Timeouts.Store,
	}, logger)

	return d, nil
}

func (d *deps) openStores(ctx context.Context) error {
	switch driver := strings.ToLower(strings.TrimSpace(d.config.Store.Driver)); driver {
	case driverMemory:
		d.logger.Warn("using the in-memory store, nothing survives the process")
		d.postings = memory.NewPostings()
		d.subscriptions = memory.NewSubscriptions()
		d.ledger = memory.NewLedger()
		return nil

	case driverPostgres, "":
		pool, err := connectPostgres(ctx, d.config.Store)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, pool.Close)

		d.postings = postgres.NewPostings(pool)
		d.subscriptions = postgres.NewSubscriptions(pool)
		d.ledger = postgres.NewLedger(pool)
		return nil

	default:
		return fmt.Errorf("unsupported store driver: %s", driver)
	}
}

func connectPostgres(ctx context.Context, cfg *StoreConfig) (*pgxpool.Pool, error) {
	dsn, err := secrets.Load(secrets.Source{
		Name:  "database dsn",
		File:  cfg.DSNFile,
		Value: cfg.DSN,
		Env:   "DATABASE_URL",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set store.dsn-file or DATABASE_DSN_FILE)", err)
	}

	return postgres.Connect(ctx, dsn)
}

func (d *deps) openRedis(ctx context.Context) error {
	url := strings.TrimSpace(d.config.Redis.URL)
	if url == "" {
		return nil
	}

	client, err := redislock.Connect(ctx, url)
	if err != nil {
		return err
	}
	d.redis = client
	d.closers = append(d.closers, func() { _ = client.Close() })
	return nil
}

// titleLocker is nil without redis; ingestion then relies on its in-process lock
// and the unique title constraint.
func (d *deps) titleLocker() store.TitleLocker {
	if d.redis == nil {
		return nil
	}
	return redislock.New(d.redis, d.config.Redis.LockPrefix, d.logger.Named("redislock"))
}

func (d *deps) notifier() (alerts.Notifier, error) {
	switch strings.ToLower(strings.TrimSpace(d.config.Alerts.Notifier)) {
	case alerts.NotifierLog, "":
		return alerts.NewLogNotifier(d.logger), nil
	case alerts.NotifierRedis:
		if d.redis == nil {
			return nil, fmt.Errorf("the redis notifier requires redis.url")
		}
		return alerts.NewRedisNotifier(d.redis, d.config.Alerts.RedisStream, d.config.Alerts.StreamMaxLen), nil
	default:
		return nil, fmt.Errorf("unsupported notifier: %s", d.config.Alerts.Notifier)
	}
}

func (d *deps) skillsConfig() skills.Config {
	cfg := skills.Config{Timeout: d.config.Timeouts.Model}
	switch {
	case strings.EqualFold(d.config.AI.Provider, ai.ProviderOpenAI) && d.config.AI.OpenAI != nil:
		cfg.MaxLogLength = d.config.AI.OpenAI.MaxLogLength
	case d.config.AI.Gemini != nil:
		cfg.MaxLogLength = d.config.AI.Gemini.MaxLogLength
	}
	return cfg
}

func (d *deps) profileService() *profiles.Service {
	return profiles.New(
		skills.NewExtractor(d.generator, d.skillsConfig(), d.logger),
		d.embedder,
		d.engine,
		d.subscriptions,
		profiles.Config{
			MaxChars:        d.config.Extraction.MaxChars,
			SearchThreshold: d.config.Search.Threshold,
			SearchLimit:     d.config.Search.Limit,
			AlertThreshold:  d.config.Alerts.Threshold,
			StoreTimeout:    d.config.Timeouts.Store,
		},
		d.logger,
	)
}

func newGenerator(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Generator, error) {
	switch provider := strings.ToLower(strings.TrimSpace(cfg.Provider)); provider {
	case ai.ProviderGemini, "":
		gc := cfg.Gemini
		if gc == nil {
			gc = &GeminiConfig{}
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			File:  gc.APIKeyFile,
			Value: gc.APIKey,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
		}

		models, err := gemini.NewModels(ctx, apiKey)
		if err != nil {
			return nil, err
		}
		return gemini.NewGenerator(models, gemini.Config{
			Model:        gc.Model,
			MaxRetries:   gc.MaxRetries,
			MaxLogLength: gc.MaxLogLength,
		}, logger)

	case ai.ProviderOpenAI:
		oc := cfg.OpenAI
		if oc == nil {
			oc = &OpenAIConfig{}
		}
		client, err := newOpenAIClient(oc)
		if err != nil {
			return nil, err
		}
		return openai.NewGenerator(client, openai.Config{
			Model:        oc.Model,
			MaxTokens:    oc.MaxTokens,
			MaxRetries:   oc.MaxRetries,
			MaxLogLength: oc.MaxLogLength,
		}, logger)

	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

func newOpenAIClient(oc *OpenAIConfig) (*openaisdk.Client, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "openai api key",
		File:  oc.APIKeyFile,
		Value: oc.APIKey,
		Env:   "OPENAI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.openai.api-key-file or OPENAI_API_KEY_FILE)", err)
	}
	return openai.NewClient(openai.Config{APIKey: apiKey, BaseURL: oc.BaseURL})
}

func newEmbedder(ctx context.Context, config *Config, logger *zap.Logger) (*vector.TaggedEmbedder, error) {
	ec := config.Embedding

	var (
		provider vector.Provider
		err      error
	)
	switch name := strings.ToLower(strings.TrimSpace(ec.Provider)); name {
	case ai.ProviderSidecar, "":
		sc := ec.Sidecar
		if sc == nil {
			sc = &SidecarConfig{}
		}
		var apiKey string
		apiKey, err = secrets.Optional(secrets.Source{Name: "embedding api key", File: sc.APIKeyFile, Value: sc.APIKey})
		if err != nil {
			return nil, err
		}
		provider, err = sidecar.New(sidecar.Config{
			Endpoint:   sc.Endpoint,
			APIKey:     apiKey,
			Model:      ec.Model,
			MaxRetries: ec.MaxRetries,
			Timeout:    config.Timeouts.Embedding,
		}, logger)

	case ai.ProviderGemini:
		gc := config.AI.Gemini
		if gc == nil {
			gc = &GeminiConfig{}
		}
		var apiKey string
		apiKey, err = secrets.Load(secrets.Source{Name: "gemini api key", File: gc.APIKeyFile, Value: gc.APIKey, Env: "GEMINI_API_KEY"})
		if err != nil {
			return nil, err
		}
		models, merr := gemini.NewModels(ctx, apiKey)
		if merr != nil {
			return nil, merr
		}
		provider, err = gemini.NewEmbedder(models, gemini.Config{Model: ec.Model, MaxRetries: ec.MaxRetries}, ec.Dimension, logger)

	case ai.ProviderOpenAI:
		oc := config.AI.OpenAI
		if oc == nil {
			oc = &OpenAIConfig{}
		}
		client, cerr := newOpenAIClient(oc)
		if cerr != nil {
			return nil, cerr
		}
		provider, err = openai.NewEmbedder(client, openai.Config{Model: ec.Model, MaxRetries: ec.MaxRetries}, ec.Dimension, logger)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", ec.Provider)
	}
	if err != nil {
		return nil, err
	}

	return vector.NewTaggedEmbedder(provider, vector.TaggedEmbedderConfig{
		Dimension: ec.Dimension,
		Version:   ec.Version,
		Timeout:   config.Timeouts.Embedding,
	}, logger.Named("embedder"))
}
