package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/logger"
)

const (
	// NotifierLog writes alerts to the process log.
	NotifierLog = "log"
	// NotifierRedis appends alerts to a Redis stream consumed by a mail worker.
	NotifierRedis = "redis"

	// DefaultStream is the stream used by RedisNotifier when none is configured.
	DefaultStream = "al-moussaid:alerts"
)

// LogNotifier logs each notification at info level.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Component(log, "notifier")}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("notification recipient is empty")
	}

	n.logger.Info("alert notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String(logger.FieldSubscriptionID, msg.SubscriptionID),
		zap.String(logger.FieldPostingID, msg.PostingID),
	)
	return nil
}

// StreamClient is the subset of *redis.Client used by RedisNotifier.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisNotifier appends notifications to a Redis stream.
type RedisNotifier struct {
	client StreamClient
	stream string
	maxLen int64
}

// NewRedisNotifier builds a RedisNotifier. maxLen trims the stream approximately; 0 keeps everything.
func NewRedisNotifier(client StreamClient, stream string, maxLen int64) *RedisNotifier {
	if strings.TrimSpace(stream) == "" {
		stream = DefaultStream
	}
	return &RedisNotifier{client: client, stream: stream, maxLen: maxLen}
}

// Notify implements Notifier.
func (n *RedisNotifier) Notify(ctx context.Context, msg Notification) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("notification recipient is empty")
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]any{
			"to":              msg.To,
			"subject":         msg.Subject,
			"body":            msg.Body,
			"subscription_id": msg.SubscriptionID,
			"posting_id":      msg.PostingID,
		},
	}
	if n.maxLen > 0 {
		args.MaxLen = n.maxLen
		args.Approx = true
	}

	if err := n.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", n.stream, err)
	}
	return nil
}
