package matching

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	"github.com/TomkerDev/Al-Moussaid/internal/store"
	"github.com/TomkerDev/Al-Moussaid/internal/store/memory"
	"github.com/TomkerDev/Al-Moussaid/internal/vector"
)

const (
	testModel = "test@4"
	testDim   = 4
)

func emb(values ...float32) vector.Embedding {
	return vector.Embedding{Values: values, Model: testModel}
}

func randomEmbedding(r *rand.Rand) vector.Embedding {
	values := make([]float32, testDim)
	for i := range values {
		values[i] = r.Float32()*2 - 1
	}
	return emb(values...)
}

func newEngine(postings store.PostingStore, subs store.SubscriptionStore) *Engine {
	return New(postings, subs, Config{ModelVersion: testModel, Dimension: testDim, MaxLimit: 50}, zap.NewNop())
}

func seedPostings(t *testing.T, s *memory.Postings, r *rand.Rand, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		p := domain.Posting{Title: fmt.Sprintf("posting-%d", i), Embedding: randomEmbedding(r)}
		if _, err := s.Insert(context.Background(), p); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestSearchJobsProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	postings := memory.NewPostings()
	seedPostings(t, postings, r, 200)
	engine := newEngine(postings, nil)

	for i := 0; i < 100; i++ {
		threshold := r.Float64()
		limit := 1 + r.Intn(30)
		q := randomEmbedding(r)

		results, err := engine.SearchJobs(context.Background(), q, threshold, limit)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(results) > limit {
			t.Fatalf("got %d results for limit %d", len(results), limit)
		}
		for j, res := range results {
			if res.Similarity < threshold {
				t.Fatalf("result %d similarity %.6f below threshold %.6f", j, res.Similarity, threshold)
			}
			if res.Similarity < 0 || res.Similarity > 1 {
				t.Fatalf("similarity %.6f outside [0,1]", res.Similarity)
			}
			if j > 0 && results[j-1].Similarity < res.Similarity {
				t.Fatalf("results not sorted at %d", j)
			}
		}
	}
}

func TestSearchJobsThresholdIsInclusive(t *testing.T) {
	postings := memory.NewPostings()
	stored, _ := postings.Insert(context.Background(), domain.Posting{Title: "Technicien Cisco", Embedding: emb(3, 4, 0, 0)})
	engine := newEngine(postings, nil)

	q := emb(1, 0, 0, 0)
	sim, err := vector.Similarity(q, stored.Embedding)
	if err != nil {
		t.Fatalf("similarity: %v", err)
	}

	cases := []struct {
		name      string
		threshold float64
		want      int
	}{
		{name: "equal", threshold: sim, want: 1},
		{name: "just below", threshold: sim - 1e-9, want: 1},
		{name: "just above", threshold: sim + 1e-9, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results, err := engine.SearchJobs(context.Background(), q, tc.threshold, 5)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(results) != tc.want {
				t.Fatalf("threshold %.12f: expected %d results, got %d", tc.threshold, tc.want, len(results))
			}
		})
	}
}

func TestSearchJobsTiesBreakOldestFirst(t *testing.T) {
	postings := memory.NewPostings()
	for _, title := range []string{"first", "second", "third"} {
		if _, err := postings.Insert(context.Background(), domain.Posting{Title: title, Embedding: emb(1, 1, 0, 0)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	results, err := newEngine(postings, nil).SearchJobs(context.Background(), emb(1, 1, 0, 0), 0.5, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[0].Posting.Title != "first" || results[1].Posting.Title != "second" {
		t.Fatalf("unexpected order %+v", results)
	}
}

func TestSearchJobsEmptyIsNotAnError(t *testing.T) {
	results, err := newEngine(memory.NewPostings(), nil).SearchJobs(context.Background(), emb(1, 0, 0, 0), 0.35, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %v", results)
	}
}

func TestSearchJobsValidation(t *testing.T) {
	engine := newEngine(memory.NewPostings(), nil)
	ctx := context.Background()

	cases := []struct {
		name      string
		q         vector.Embedding
		threshold float64
		limit     int
		want      error
	}{
		{name: "negative threshold", q: emb(1, 0, 0, 0), threshold: -0.1, limit: 5, want: domain.ErrInvalidArgument},
		{name: "threshold above one", q: emb(1, 0, 0, 0), threshold: 1.1, limit: 5, want: domain.ErrInvalidArgument},
		{name: "zero limit", q: emb(1, 0, 0, 0), threshold: 0.3, limit: 0, want: domain.ErrInvalidArgument},
		{name: "empty query", q: vector.Embedding{Model: testModel}, threshold: 0.3, limit: 5, want: domain.ErrInvalidArgument},
		{name: "other model", q: vector.Embedding{Values: []float32{1, 0, 0, 0}, Model: "other@4"}, threshold: 0.3, limit: 5, want: domain.ErrModelMismatch},
		{name: "other dimension", q: emb(1, 0), threshold: 0.3, limit: 5, want: domain.ErrDimensionMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.SearchJobs(ctx, tc.q, tc.threshold, tc.limit); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSearchJobsCapsLimit(t *testing.T) {
	postings := memory.NewPostings()
	seedPostings(t, postings, rand.New(rand.NewSource(7)), 80)

	results, err := newEngine(postings, nil).SearchJobs(context.Background(), emb(1, 0, 0, 0), 0, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 50 {
		t.Fatalf("expected limit capped to 50, got %d", len(results))
	}
}

type stubPostings struct {
	store.PostingStore
	results []domain.MatchResult
	err     error
}

func (s *stubPostings) SearchSimilar(context.Context, vector.Embedding, float64, int) ([]domain.MatchResult, error) {
	return s.results, s.err
}

type stubSubscriptions struct {
	matches []store.SubscriptionMatch
	err     error
}

func (s *stubSubscriptions) Insert(_ context.Context, sub domain.Subscription) (domain.Subscription, error) {
	return sub, nil
}

func (s *stubSubscriptions) MatchSimilar(context.Context, vector.Embedding, float64) ([]store.SubscriptionMatch, error) {
	return s.matches, s.err
}

func TestSearchJobsStoreFailureIsNotEmptyResult(t *testing.T) {
	engine := newEngine(&stubPostings{err: errors.New("connection reset")}, nil)

	results, err := engine.SearchJobs(context.Background(), emb(1, 0, 0, 0), 0.35, 20)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results on failure, got %v", results)
	}
}

func TestSearchJobsRepairsMisbehavingStore(t *testing.T) {
	stub := &stubPostings{results: []domain.MatchResult{
		{Posting: domain.Posting{Title: "low", Seq: 1}, Similarity: 0.2},
		{Posting: domain.Posting{Title: "mid-late", Seq: 5}, Similarity: 0.6},
		{Posting: domain.Posting{Title: "top", Seq: 3}, Similarity: 1.0000001},
		{Posting: domain.Posting{Title: "mid-early", Seq: 2}, Similarity: 0.6},
	}}

	results, err := newEngine(stub, nil).SearchJobs(context.Background(), emb(1, 0, 0, 0), 0.5, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Posting.Title != "top" || results[0].Similarity != 1 {
		t.Fatalf("expected clamped top result first, got %+v", results[0])
	}
	if results[1].Posting.Title != "mid-early" {
		t.Fatalf("expected oldest tie second, got %+v", results[1])
	}
}

func TestMatchSubscribersUsesEachThreshold(t *testing.T) {
	subs := memory.NewSubscriptions()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	// similarity to the query (1,0,0,0) is about 0.8 for every subscription
	e := emb(0.8, 0.6, 0, 0)
	strict, _ := subs.Insert(ctx, domain.Subscription{Email: "strict@example.com", Embedding: e, Threshold: 0.9, CreatedAt: base})
	loose, _ := subs.Insert(ctx, domain.Subscription{Email: "loose@example.com", Embedding: e, Threshold: 0.7, CreatedAt: base.Add(time.Second)})
	looser, _ := subs.Insert(ctx, domain.Subscription{Email: "looser@example.com", Embedding: e, Threshold: 0.5, CreatedAt: base.Add(2 * time.Second)})

	query := emb(1, 0, 0, 0)
	engine := newEngine(nil, subs)
	matches, err := engine.MatchSubscribers(ctx, query, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %+v", matches)
	}
	for _, m := range matches {
		if m.Subscription.ID == strict.ID {
			t.Fatal("0.9 subscription must not match at 0.8")
		}
	}
	if matches[0].Subscription.ID != loose.ID || matches[1].Subscription.ID != looser.ID {
		t.Fatalf("expected oldest subscription first on equal similarity, got %+v", matches)
	}

	// the coarse prefilter tightens every threshold
	matches, _ = engine.MatchSubscribers(ctx, query, 0.85)
	if len(matches) != 0 {
		t.Fatalf("expected prefilter to drop all matches, got %d", len(matches))
	}
}

func TestMatchSubscribersThresholdIsInclusive(t *testing.T) {
	e := emb(3, 4, 0, 0)
	q := emb(1, 0, 0, 0)
	sim, err := vector.Similarity(q, e)
	if err != nil {
		t.Fatalf("similarity: %v", err)
	}

	cases := []struct {
		name      string
		threshold float64
		want      int
	}{
		{name: "equal", threshold: sim, want: 1},
		{name: "just below", threshold: sim - 1e-9, want: 1},
		{name: "just above", threshold: sim + 1e-9, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subs := memory.NewSubscriptions()
			if _, err := subs.Insert(context.Background(), domain.Subscription{Email: "amina@example.com", Embedding: e, Threshold: tc.threshold}); err != nil {
				t.Fatalf("insert: %v", err)
			}

			matches, err := newEngine(nil, subs).MatchSubscribers(context.Background(), q, 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(matches) != tc.want {
				t.Fatalf("threshold %.12f: expected %d matches, got %d", tc.threshold, tc.want, len(matches))
			}
		})
	}
}

func TestMatchSubscribersDropsRowsBelowThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	stub := &stubSubscriptions{matches: []store.SubscriptionMatch{
		{Subscription: domain.Subscription{ID: "ok", Threshold: 0.9}, Similarity: 0.92},
		{Subscription: domain.Subscription{ID: "bad", Threshold: 0.9}, Similarity: 0.80},
	}}
	engine := New(nil, stub, Config{ModelVersion: testModel}, zap.New(core))

	matches, err := engine.MatchSubscribers(context.Background(), emb(1, 0, 0, 0), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].Subscription.ID != "ok" {
		t.Fatalf("unexpected matches %+v", matches)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected one warning, got %d", logs.Len())
	}
}

func TestMatchSubscribersErrors(t *testing.T) {
	engine := newEngine(nil, &stubSubscriptions{err: errors.New("timeout")})

	if _, err := engine.MatchSubscribers(context.Background(), emb(1, 0, 0, 0), 0); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}

	other := vector.Embedding{Values: []float32{1, 0, 0, 0}, Model: "legacy@4"}
	if _, err := engine.MatchSubscribers(context.Background(), other, 0); !errors.Is(err, domain.ErrModelMismatch) {
		t.Fatalf("expected model mismatch, got %v", err)
	}
}
