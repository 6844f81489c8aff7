// Package store declares the persistence boundaries of the matching core.
// Implementations live in the memory and postgres subpackages.
package store

import (
	"context"
	"time"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	"github.com/TomkerDev/Al-Moussaid/internal/vector"
)

// PostingStore persists postings and answers similarity queries over them.
type PostingStore interface {
	// ExistsByTitle reports whether a posting with exactly this title is stored.
	ExistsByTitle(ctx context.Context, title string) (bool, error)
	// Insert stores p and returns it with ID, Seq and CreatedAt set.
	// A title collision returns domain.ErrDuplicateTitle.
	Insert(ctx context.Context, p domain.Posting) (domain.Posting, error)
	// SearchSimilar returns at most limit postings whose similarity to q is at
	// least threshold, sorted by similarity desc then Seq asc. Only postings
	// embedded with q.Model are considered.
	SearchSimilar(ctx context.Context, q vector.Embedding, threshold float64, limit int) ([]domain.MatchResult, error)
	// Get returns the posting with id or domain.ErrNotFound.
	Get(ctx context.Context, id string) (domain.Posting, error)
	// CountByLocation returns the number of postings per location.
	CountByLocation(ctx context.Context) (map[string]int, error)
}

// SubscriptionStore persists alert subscriptions.
type SubscriptionStore interface {
	// Insert stores s and returns it with ID and CreatedAt set.
	Insert(ctx context.Context, s domain.Subscription) (domain.Subscription, error)
	// MatchSimilar returns every subscription embedded with p.Model whose
	// similarity to p is at least max(subscription threshold, minThreshold).
	MatchSimilar(ctx context.Context, p vector.Embedding, minThreshold float64) ([]SubscriptionMatch, error)
}

// SubscriptionMatch is a subscription together with its similarity to the posting embedding.
type SubscriptionMatch struct {
	Subscription domain.Subscription
	Similarity   float64
}

// AlertLedger records which (subscription, posting) pairs were notified.
type AlertLedger interface {
	// Claim records the pair and reports whether this call created it.
	// A false result means the pair was already claimed.
	Claim(ctx context.Context, subscriptionID, postingID string) (bool, error)
	// Release removes a claim after a failed delivery so a later run can retry.
	Release(ctx context.Context, subscriptionID, postingID string) error
}

// TitleLocker guards the dedup-check-then-insert section across processes.
type TitleLocker interface {
	// Lock blocks until the title is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, title string, ttl time.Duration) (func(context.Context) error, error)
}
