package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/greenthumb/sprout/internal/rag"
	"github.com/pgvector/pgvector-go"
)

func (s *Store) Store(ctx context.Context, r rag.CachedResponse) error {
	const storeResponse = `
INSERT INTO response_cache (id, query, response, context, embedding_model, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

	if strings.TrimSpace(r.Query) == "" || r.Response == "" {
		return &rag.StoreWriteError{Op: "store response", Err: fmt.Errorf("%w: query and response are required", rag.ErrInvalidArgument)}
	}
	if err := rag.CheckDimension(r.Vector, s.dims); err != nil {
		return &rag.StoreWriteError{Op: "store response", Err: err}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	_, err := s.pool.Exec(ctx, storeResponse,
		r.ID, r.Query, r.Response, nullable(r.Context), s.model, toVector(r.Vector), r.CreatedAt)
	if err != nil {
		return &rag.StoreWriteError{Op: "store response", Err: err}
	}
	return nil
}

func (s *Store) Lookup(ctx context.Context, vector []float64, minSimilarity float64, limit int) ([]rag.CacheHit, error) {
	const lookup = `
SELECT id, query, response, context, embedding, created_at, 1 - (embedding <=> $1) AS similarity
FROM response_cache
WHERE embedding_model = $2 AND 1 - (embedding <=> $1) >= $3
ORDER BY embedding <=> $1, seq
LIMIT $4
`

	if err := rag.CheckQuery(vector, s.dims, minSimilarity, limit); err != nil {
		return nil, &rag.StoreReadError{Op: "cache lookup", Err: err}
	}

	rows, err := s.pool.Query(ctx, lookup, toVector(vector), s.model, minSimilarity, limit)
	if err != nil {
		return nil, &rag.StoreReadError{Op: "cache lookup", Err: err}
	}
	defer rows.Close()

	hits := []rag.CacheHit{}
	for rows.Next() {
		var h rag.CacheHit
		var contextText *string
		var embedding pgvector.Vector
		if err := rows.Scan(&h.ID, &h.Query, &h.Response, &contextText, &embedding, &h.CreatedAt, &h.Similarity); err != nil {
			return nil, &rag.StoreReadError{Op: "cache lookup", Err: err}
		}
		h.Context = deref(contextText)
		h.Vector = fromVector(embedding)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &rag.StoreReadError{Op: "cache lookup", Err: err}
	}
	return hits, nil
}

func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, &rag.StoreWriteError{Op: "prune", Err: fmt.Errorf("%w: negative age %s", rag.ErrInvalidArgument, olderThan)}
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM response_cache WHERE created_at < $1`, s.now().Add(-olderThan))
	if err != nil {
		return 0, &rag.StoreWriteError{Op: "prune", Err: err}
	}
	return tag.RowsAffected(), nil
}
