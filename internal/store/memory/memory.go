// Package memory implements the store interfaces in process with an exact
// cosine scan. It backs tests and the "memory" store driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	"github.com/TomkerDev/Al-Moussaid/internal/store"
	"github.com/TomkerDev/Al-Moussaid/internal/vector"
)

var (
	_ store.PostingStore      = (*Postings)(nil)
	_ store.SubscriptionStore = (*Subscriptions)(nil)
	_ store.AlertLedger       = (*Ledger)(nil)
)

// Postings is an in-memory PostingStore.
type Postings struct {
	mu     sync.RWMutex
	seq    int64
	rows   []domain.Posting
	titles map[string]int
	now    func() time.Time
}

// NewPostings returns an empty store.
func NewPostings() *Postings {
	return &Postings{titles: make(map[string]int), now: time.Now}
}

// ExistsByTitle implements store.PostingStore.
func (s *Postings) ExistsByTitle(_ context.Context, title string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.titles[title]
	return ok, nil
}

// Insert implements store.PostingStore. Titles are unique.
func (s *Postings) Insert(_ context.Context, p domain.Posting) (domain.Posting, error) {
	if strings.TrimSpace(p.Title) == "" {
		return domain.Posting{}, fmt.Errorf("%w: posting title is required", domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.titles[p.Title]; ok {
		return domain.Posting{}, fmt.Errorf("%w: %q", domain.ErrDuplicateTitle, p.Title)
	}

	s.seq++
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Seq = s.seq
	p.CreatedAt = s.now().UTC()
	p.Embedding = cloneEmbedding(p.Embedding)

	s.titles[p.Title] = len(s.rows)
	s.rows = append(s.rows, p)
	return p, nil
}

// SearchSimilar implements store.PostingStore.
func (s *Postings) SearchSimilar(_ context.Context, q vector.Embedding, threshold float64, limit int) ([]domain.MatchResult, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be at least 1, got %d", domain.ErrInvalidArgument, limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.MatchResult, 0)
	for _, p := range s.rows {
		sim, ok := similarity(q, p.Embedding)
		if !ok || sim < threshold {
			continue
		}
		results = append(results, domain.MatchResult{Posting: p, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Posting.Seq < results[j].Posting.Seq
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Get implements store.PostingStore.
func (s *Postings) Get(_ context.Context, id string) (domain.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.rows {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Posting{}, fmt.Errorf("%w: posting %s", domain.ErrNotFound, id)
}

// CountByLocation implements store.PostingStore.
func (s *Postings) CountByLocation(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, p := range s.rows {
		counts[p.Location]++
	}
	return counts, nil
}

// Len returns the number of stored postings.
func (s *Postings) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Subscriptions is an in-memory SubscriptionStore.
type Subscriptions struct {
	mu   sync.RWMutex
	rows []domain.Subscription
	now  func() time.Time
}

// NewSubscriptions returns an empty store.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{now: time.Now}
}

// Insert implements store.SubscriptionStore.
func (s *Subscriptions) Insert(_ context.Context, sub domain.Subscription) (domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now().UTC()
	}
	sub.Embedding = cloneEmbedding(sub.Embedding)

	s.rows = append(s.rows, sub)
	return sub, nil
}

// MatchSimilar implements store.SubscriptionStore.
func (s *Subscriptions) MatchSimilar(_ context.Context, p vector.Embedding, minThreshold float64) ([]store.SubscriptionMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]store.SubscriptionMatch, 0)
	for _, sub := range s.rows {
		sim, ok := similarity(p, sub.Embedding)
		if !ok || sim < sub.Threshold || sim < minThreshold {
			continue
		}
		matches = append(matches, store.SubscriptionMatch{Subscription: sub, Similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Subscription.CreatedAt.Before(matches[j].Subscription.CreatedAt)
	})
	return matches, nil
}

// Ledger is an in-memory AlertLedger.
type Ledger struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{claimed: make(map[string]struct{})}
}

// Claim implements store.AlertLedger.
func (l *Ledger) Claim(_ context.Context, subscriptionID, postingID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := subscriptionID + "/" + postingID
	if _, ok := l.claimed[key]; ok {
		return false, nil
	}
	l.claimed[key] = struct{}{}
	return true, nil
}

// Release implements store.AlertLedger.
func (l *Ledger) Release(_ context.Context, subscriptionID, postingID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.claimed, subscriptionID+"/"+postingID)
	return nil
}

// similarity compares only embeddings of the same model version and dimension.
func similarity(q, e vector.Embedding) (float64, bool) {
	sim, err := vector.Similarity(q, e)
	if err != nil {
		return 0, false
	}
	return vector.Clamp01(sim), true
}

func cloneEmbedding(e vector.Embedding) vector.Embedding {
	if e.Values == nil {
		return e
	}
	values := make([]float32, len(e.Values))
	copy(values, e.Values)
	return vector.Embedding{Values: values, Model: e.Model}
}
