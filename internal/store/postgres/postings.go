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

var _ store.PostingStore = (*Postings)(nil)

var postingColumns = []string{"id", "seq", "title", "company", "location", "description", "source_url", "created_at"}

// Postings is the pgvector-backed PostingStore.
type Postings struct {
	db DB
}

// NewPostings wires a DB implementation.
func NewPostings(db DB) *Postings {
	return &Postings{db: db}
}

// ExistsByTitle implements store.PostingStore.
func (r *Postings) ExistsByTitle(ctx context.Context, title string) (bool, error) {
	query, args, err := existsByTitleQuery(title)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, storeError("exists by title", err)
	}
	return exists, nil
}

// Insert implements store.PostingStore. The unique constraint on title turns
// concurrent inserts of the same title into domain.ErrDuplicateTitle.
func (r *Postings) Insert(ctx context.Context, p domain.Posting) (domain.Posting, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	query, args, err := insertPostingQuery(p)
	if err != nil {
		return domain.Posting{}, err
	}

	if err := r.db.QueryRow(ctx, query, args...).Scan(&p.Seq, &p.CreatedAt); err != nil {
		return domain.Posting{}, storeError("insert posting", err)
	}
	return p, nil
}

// SearchSimilar implements store.PostingStore.
func (r *Postings) SearchSimilar(ctx context.Context, q vector.Embedding, threshold float64, limit int) ([]domain.MatchResult, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be at least 1, got %d", domain.ErrInvalidArgument, limit)
	}

	query, args, err := searchSimilarQuery(q, threshold, limit)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("search similar", err)
	}
	defer rows.Close()

	results := make([]domain.MatchResult, 0, limit)
	for rows.Next() {
		var (
			p   domain.Posting
			sim float64
		)
		if err := rows.Scan(&p.ID, &p.Seq, &p.Title, &p.Company, &p.Location, &p.Description, &p.SourceURL, &p.CreatedAt, &sim); err != nil {
			return nil, storeError("scan posting", err)
		}
		results = append(results, domain.MatchResult{Posting: p, Similarity: vector.Clamp01(sim)})
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("search similar", err)
	}
	return results, nil
}

// Get implements store.PostingStore.
func (r *Postings) Get(ctx context.Context, id string) (domain.Posting, error) {
	query, args, err := psql.Select(postingColumns...).
		Columns("embedding::text", "model_version").
		From("postings").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Posting{}, fmt.Errorf("build get posting query: %w", err)
	}

	var (
		p   domain.Posting
		vec pgvector.Vector
	)
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.Seq, &p.Title, &p.Company, &p.Location, &p.Description, &p.SourceURL, &p.CreatedAt,
		&vec, &p.Embedding.Model,
	)
	if err != nil {
		return domain.Posting{}, storeError("get posting "+id, err)
	}

	p.Embedding.Values = vec.Slice()
	return p, nil
}

// CountByLocation implements store.PostingStore.
func (r *Postings) CountByLocation(ctx context.Context) (map[string]int, error) {
	query, args, err := psql.Select("location", "count(*)").
		From("postings").
		GroupBy("location").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("count by location", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			location string
			count    int64
		)
		if err := rows.Scan(&location, &count); err != nil {
			return nil, storeError("scan count", err)
		}
		counts[location] = int(count)
	}

	return counts, storeError("count by location", rows.Err())
}

func existsByTitleQuery(title string) (string, []any, error) {
	query, args, err := psql.Select().
		Column(sq.Expr("EXISTS (SELECT 1 FROM postings WHERE title = ?)", title)).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build exists query: %w", err)
	}
	return query, args, nil
}

func insertPostingQuery(p domain.Posting) (string, []any, error) {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query, args, err := psql.Insert("postings").
		Columns("id", "title", "company", "location", "description", "source_url", "embedding", "model_version", "created_at").
		Values(p.ID, p.Title, p.Company, p.Location, p.Description, p.SourceURL,
			sq.Expr("?::vector", pgvector.NewVector(p.Embedding.Values)), p.Embedding.Model, createdAt).
		Suffix("RETURNING seq, created_at").
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert posting query: %w", err)
	}
	return query, args, nil
}

// searchSimilarQuery is the match_jobs query: cosine similarity is 1 minus the
// pgvector cosine distance.
func searchSimilarQuery(q vector.Embedding, threshold float64, limit int) (string, []any, error) {
	vec := pgvector.NewVector(q.Values)

	query, args, err := psql.Select(postingColumns...).
		Column(sq.Expr("1 - (embedding <=> ?::vector) AS similarity", vec)).
		From("postings").
		Where(sq.Eq{"model_version": q.Model}).
		Where(sq.Expr("1 - (embedding <=> ?::vector) >= ?", vec, threshold)).
		OrderBy("similarity DESC", "seq ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build search query: %w", err)
	}
	return query, args, nil
}
