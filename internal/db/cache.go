package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/greenthumb/sprout/internal/db/vec"
	"github.com/greenthumb/sprout/internal/rag"
)

// Store appends an answer to the response cache. Existing rows are never
// touched, similar questions accumulate as separate entries.
func (q *Queries) Store(ctx context.Context, r rag.CachedResponse) error {
	const storeResponse = `
INSERT INTO response_cache (uid, query, response, context, embedding_model, embedding_vector, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

	if strings.TrimSpace(r.Query) == "" || r.Response == "" {
		return &rag.StoreWriteError{Op: "store response", Err: fmt.Errorf("%w: query and response are required", rag.ErrInvalidArgument)}
	}
	if err := rag.CheckDimension(r.Vector, q.dims); err != nil {
		return &rag.StoreWriteError{Op: "store response", Err: err}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = q.now()
	}

	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	_, err := q.db.ExecContext(ctx, storeResponse,
		r.ID,
		r.Query,
		r.Response,
		nullString(r.Context),
		q.model,
		vec.EncodeFloat64s(r.Vector),
		r.CreatedAt.Unix(),
	)
	if err != nil {
		return &rag.StoreWriteError{Op: "store response", Err: err}
	}
	return nil
}

// Lookup returns at most limit cached answers whose question is at least
// minSimilarity similar to vector, most similar first.
func (q *Queries) Lookup(ctx context.Context, vector []float64, minSimilarity float64, limit int) ([]rag.CacheHit, error) {
	const lookup = `
SELECT uid, query, response, context, embedding_vector, created_at, similarity
FROM (
    SELECT id, uid, query, response, context, embedding_vector, created_at,
           1 - vec_cosine_distance(?, embedding_vector) AS similarity
    FROM response_cache
    WHERE embedding_model = ?
)
WHERE similarity >= ?
ORDER BY similarity DESC, id ASC
LIMIT ?
`

	if err := rag.CheckQuery(vector, q.dims, minSimilarity, limit); err != nil {
		return nil, &rag.StoreReadError{Op: "cache lookup", Err: err}
	}

	rows, err := q.db.QueryContext(ctx, lookup,
		vec.EncodeFloat64s(vector),
		q.model,
		minSimilarity,
		limit,
	)
	if err != nil {
		return nil, &rag.StoreReadError{Op: "cache lookup", Err: err}
	}
	defer rows.Close()

	hits := []rag.CacheHit{}
	for rows.Next() {
		var h rag.CacheHit
		var contextText sql.NullString
		var vecbytes []byte
		var created int64
		if err := rows.Scan(
			&h.ID,
			&h.Query,
			&h.Response,
			&contextText,
			&vecbytes,
			&created,
			&h.Similarity,
		); err != nil {
			return nil, &rag.StoreReadError{Op: "cache lookup", Err: err}
		}
		h.Context = contextText.String
		h.CreatedAt = time.Unix(created, 0)
		h.Vector, err = vec.DecodeFloat64s(vecbytes)
		if err != nil {
			return nil, &rag.StoreReadError{Op: "cache lookup", Err: fmt.Errorf("decoding embedding vector: %w", err)}
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &rag.StoreReadError{Op: "cache lookup", Err: err}
	}
	return hits, nil
}

// Prune deletes cache entries created more than olderThan ago and reports
// how many were removed.
func (q *Queries) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	const prune = `DELETE FROM response_cache WHERE created_at < ?`

	if olderThan < 0 {
		return 0, &rag.StoreWriteError{Op: "prune", Err: fmt.Errorf("%w: negative age %s", rag.ErrInvalidArgument, olderThan)}
	}
	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	res, err := q.db.ExecContext(ctx, prune, q.now().Add(-olderThan).Unix())
	if err != nil {
		return 0, &rag.StoreWriteError{Op: "prune", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &rag.StoreWriteError{Op: "prune", Err: err}
	}
	return n, nil
}
