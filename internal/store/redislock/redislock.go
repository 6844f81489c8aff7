// Package redislock provides the cross-process per-title lock used around the
// dedup-check-then-insert section of ingestion.
package redislock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/store"
	"github.com/TomkerDev/Al-Moussaid/internal/utils"
)

const (
	defaultPrefix = "al-moussaid:lock:title:"
	defaultPoll   = 100 * time.Millisecond
)

// releaseScript deletes the key only when it still holds our token, so an
// expired lock taken over by another worker is left alone.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

var _ store.TitleLocker = (*Locker)(nil)

// Client is the subset of *redis.Client used by Locker.
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Locker implements store.TitleLocker with SET NX PX.
type Locker struct {
	client Client
	prefix string
	poll   time.Duration
	logger *zap.Logger
}

// Connect parses redisURL and verifies connectivity.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// New builds a Locker. An empty prefix uses the default key namespace.
func New(client Client, prefix string, logger *zap.Logger) *Locker {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{client: client, prefix: prefix, poll: defaultPoll, logger: logger}
}

// Lock implements store.TitleLocker. It polls until the key is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, title string, ttl time.Duration) (func(context.Context) error, error) {
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}

	key := l.key(title)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire title lock: %w", err)
		}
		if ok {
			break
		}

		l.logger.Debug("title lock busy, waiting", zap.String("lock_key", key))
		if err := utils.WaitFor(ctx, l.poll); err != nil {
			return nil, fmt.Errorf("acquire title lock: %w", err)
		}
	}

	return func(ctx context.Context) error {
		if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release title lock: %w", err)
		}
		return nil
	}, nil
}

// key hashes the title so arbitrary scraped text stays a short, safe key.
func (l *Locker) key(title string) string {
	sum := sha256.Sum256([]byte(title))
	return l.prefix + hex.EncodeToString(sum[:16])
}
