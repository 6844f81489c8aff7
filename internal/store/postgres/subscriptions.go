package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	"github.com/TomkerDev/Al-Moussaid/internal/store"
	"github.com/TomkerDev/Al-Moussaid/internal/vector"
)

var (
	_ store.SubscriptionStore = (*Subscriptions)(nil)
	_ store.AlertLedger       = (*Ledger)(nil)
)

// Subscriptions is the pgvector-backed SubscriptionStore (table alert_subscriptions).
type Subscriptions struct {
	db DB
}

// NewSubscriptions wires a DB implementation.
func NewSubscriptions(db DB) *Subscriptions {
	return &Subscriptions{db: db}
}

// Insert implements store.SubscriptionStore.
func (r *Subscriptions) Insert(ctx context.Context, s domain.Subscription) (domain.Subscription, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	query, args, err := insertSubscriptionQuery(s)
	if err != nil {
		return domain.Subscription{}, err
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return domain.Subscription{}, storeError("insert subscription", err)
	}
	return s, nil
}

// MatchSimilar implements store.SubscriptionStore (the match_alertes query).
func (r *Subscriptions) MatchSimilar(ctx context.Context, p vector.Embedding, minThreshold float64) ([]store.SubscriptionMatch, error) {
	query, args, err := matchSubscriptionsQuery(p, minThreshold)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("match subscriptions", err)
	}
	defer rows.Close()

	var matches []store.SubscriptionMatch
	for rows.Next() {
		var (
			s   domain.Subscription
			sim float64
		)
		if err := rows.Scan(&s.ID, &s.Email, &s.Skills, &s.Threshold, &s.CreatedAt, &sim); err != nil {
			return nil, storeError("scan subscription", err)
		}
		s.Embedding.Model = p.Model
		matches = append(matches, store.SubscriptionMatch{Subscription: s, Similarity: vector.Clamp01(sim)})
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("match subscriptions", err)
	}
	return matches, nil
}

func insertSubscriptionQuery(s domain.Subscription) (string, []any, error) {
	query, args, err := psql.Insert("alert_subscriptions").
		Columns("id", "email", "competences_detectees", "embedding", "seuil_match", "model_version", "created_at").
		Values(s.ID, s.Email, s.Skills, sq.Expr("?::vector", pgvector.NewVector(s.Embedding.Values)),
			s.Threshold, s.Embedding.Model, s.CreatedAt).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert subscription query: %w", err)
	}
	return query, args, nil
}

func matchSubscriptionsQuery(p vector.Embedding, minThreshold float64) (string, []any, error) {
	vec := pgvector.NewVector(p.Values)

	query, args, err := psql.Select("id", "email", "competences_detectees", "seuil_match", "created_at").
		Column(sq.Expr("1 - (embedding <=> ?::vector) AS similarity", vec)).
		From("alert_subscriptions").
		Where(sq.Eq{"model_version": p.Model}).
		Where(sq.Expr("1 - (embedding <=> ?::vector) >= GREATEST(seuil_match, ?)", vec, minThreshold)).
		OrderBy("similarity DESC", "created_at ASC").
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build match subscriptions query: %w", err)
	}
	return query, args, nil
}

// Ledger is the dispatched_alerts table.
type Ledger struct {
	db DB
}

// NewLedger wires a DB implementation.
func NewLedger(db DB) *Ledger {
	return &Ledger{db: db}
}

// Claim implements store.AlertLedger with an insert that does nothing on conflict.
func (l *Ledger) Claim(ctx context.Context, subscriptionID, postingID string) (bool, error) {
	query, args, err := psql.Insert("dispatched_alerts").
		Columns("subscription_id", "posting_id").
		Values(subscriptionID, postingID).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build claim query: %w", err)
	}

	tag, err := l.db.Exec(ctx, query, args...)
	if err != nil {
		return false, storeError("claim alert", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release implements store.AlertLedger.
func (l *Ledger) Release(ctx context.Context, subscriptionID, postingID string) error {
	query, args, err := psql.Delete("dispatched_alerts").
		Where(sq.Eq{"subscription_id": subscriptionID, "posting_id": postingID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build release query: %w", err)
	}

	if _, err := l.db.Exec(ctx, query, args...); err != nil {
		return storeError("release alert", err)
	}
	return nil
}
