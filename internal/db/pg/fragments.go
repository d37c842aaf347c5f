package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/greenthumb/sprout/internal/rag"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const insertFragment = `
INSERT INTO plant_fragments (id, source_id, content, embedding_model, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

func (s *Store) check(sourceID string, fragments []rag.Fragment, matchSource bool) error {
	for i, f := range fragments {
		if f.ID == "" {
			return fmt.Errorf("fragment %d: %w: missing id", i, rag.ErrInvalidArgument)
		}
		if f.Content == "" {
			return fmt.Errorf("fragment %s: %w: empty content", f.ID, rag.ErrInvalidArgument)
		}
		if matchSource && f.SourceID != sourceID {
			return fmt.Errorf("fragment %s: %w: source %q, want %q", f.ID, rag.ErrInvalidArgument, f.SourceID, sourceID)
		}
		if err := rag.CheckDimension(f.Vector, s.dims); err != nil {
			return fmt.Errorf("fragment %s: %w", f.ID, err)
		}
	}
	return nil
}

func (s *Store) insert(ctx context.Context, tx pgx.Tx, fragments []rag.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}
	now := s.now()
	batch := &pgx.Batch{}
	for _, f := range fragments {
		created := f.CreatedAt
		if created.IsZero() {
			created = now
		}
		batch.Queue(insertFragment, f.ID, nullable(f.SourceID), f.Content, s.model, toVector(f.Vector), created)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert fragments: %w", err)
	}
	return nil
}

func (s *Store) Write(ctx context.Context, fragments []rag.Fragment) error {
	if err := s.check("", fragments, false); err != nil {
		return &rag.StoreWriteError{Op: "write", Err: err}
	}
	if len(fragments) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return s.insert(ctx, tx, fragments)
	})
	if err != nil {
		return &rag.StoreWriteError{Op: "write", Err: err}
	}
	return nil
}

func (s *Store) DeleteBySource(ctx context.Context, sourceID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM plant_fragments WHERE source_id = $1`, sourceID); err != nil {
		return &rag.StoreWriteError{Op: "delete by source", Err: err}
	}
	return nil
}

// ReplaceSource swaps the fragments of sourceID in one transaction. A
// transaction scoped advisory lock on the source id serializes concurrent
// replacements of the same source; the last one wins.
func (s *Store) ReplaceSource(ctx context.Context, sourceID string, fragments []rag.Fragment) error {
	if sourceID == "" {
		return &rag.StoreWriteError{Op: "replace source", Err: fmt.Errorf("%w: empty source id", rag.ErrInvalidArgument)}
	}
	if err := s.check(sourceID, fragments, true); err != nil {
		return &rag.StoreWriteError{Op: "replace source", Err: err}
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sourceID); err != nil {
			return fmt.Errorf("lock source %s: %w", sourceID, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM plant_fragments WHERE source_id = $1`, sourceID); err != nil {
			return fmt.Errorf("delete source %s: %w", sourceID, err)
		}
		return s.insert(ctx, tx, fragments)
	})
	if err != nil {
		return &rag.StoreWriteError{Op: "replace source", Err: err}
	}
	return nil
}

// FragmentsBySource lists the fragments of sourceID embedded with the store's
// model, in insertion order.
func (s *Store) FragmentsBySource(ctx context.Context, sourceID string) ([]rag.Fragment, error) {
	const fragmentsBySource = `
SELECT id, source_id, content, embedding, created_at
FROM plant_fragments
WHERE source_id = $1 AND embedding_model = $2
ORDER BY seq
`

	rows, err := s.pool.Query(ctx, fragmentsBySource, sourceID, s.model)
	if err != nil {
		return nil, &rag.StoreReadError{Op: "fragments by source", Err: err}
	}
	defer rows.Close()

	var items []rag.Fragment
	for rows.Next() {
		var f rag.Fragment
		var source *string
		var embedding pgvector.Vector
		if err := rows.Scan(&f.ID, &source, &f.Content, &embedding, &f.CreatedAt); err != nil {
			return nil, &rag.StoreReadError{Op: "fragments by source", Err: err}
		}
		f.SourceID = deref(source)
		f.Vector = fromVector(embedding)
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, &rag.StoreReadError{Op: "fragments by source", Err: err}
	}
	return items, nil
}

// Search orders by the raw distance operator so the HNSW index can serve the
// query; seq breaks ties in insertion order.
func (s *Store) Search(ctx context.Context, vector []float64, minSimilarity float64, limit int) ([]rag.ScoredFragment, error) {
	const search = `
SELECT id, source_id, content, embedding, created_at, 1 - (embedding <=> $1) AS similarity
FROM plant_fragments
WHERE embedding_model = $2 AND 1 - (embedding <=> $1) >= $3
ORDER BY embedding <=> $1, seq
LIMIT $4
`

	if err := rag.CheckQuery(vector, s.dims, minSimilarity, limit); err != nil {
		return nil, &rag.StoreReadError{Op: "search", Err: err}
	}

	rows, err := s.pool.Query(ctx, search, toVector(vector), s.model, minSimilarity, limit)
	if err != nil {
		return nil, &rag.StoreReadError{Op: "search", Err: err}
	}
	defer rows.Close()

	items := []rag.ScoredFragment{}
	for rows.Next() {
		var f rag.ScoredFragment
		var source *string
		var embedding pgvector.Vector
		var created time.Time
		if err := rows.Scan(&f.ID, &source, &f.Content, &embedding, &created, &f.Similarity); err != nil {
			return nil, &rag.StoreReadError{Op: "search", Err: err}
		}
		f.SourceID = deref(source)
		f.Vector = fromVector(embedding)
		f.CreatedAt = created
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, &rag.StoreReadError{Op: "search", Err: err}
	}
	return items, nil
}
