package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/greenthumb/sprout/internal/db/vec"
	"github.com/greenthumb/sprout/internal/rag"
)

const insertFragment = `
INSERT INTO fragments (uid, source_id, content, embedding_model, embedding_vector, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) checkFragments(sourceID string, fragments []rag.Fragment, matchSource bool) error {
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
		if err := rag.CheckDimension(f.Vector, q.dims); err != nil {
			return fmt.Errorf("fragment %s: %w", f.ID, err)
		}
	}
	return nil
}

func (q *Queries) insertFragments(ctx context.Context, tx *sql.Tx, fragments []rag.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, insertFragment)
	if err != nil {
		return fmt.Errorf("prepare insert fragment: %w", err)
	}
	defer stmt.Close()

	now := q.now().Unix()
	for _, f := range fragments {
		created := now
		if !f.CreatedAt.IsZero() {
			created = f.CreatedAt.Unix()
		}
		_, err := stmt.ExecContext(ctx,
			f.ID,
			nullString(f.SourceID),
			f.Content,
			q.model,
			vec.EncodeFloat64s(f.Vector),
			created,
		)
		if err != nil {
			return fmt.Errorf("insert fragment %s: %w", f.ID, err)
		}
	}
	return nil
}

// Write inserts all fragments in one transaction, or none of them.
func (q *Queries) Write(ctx context.Context, fragments []rag.Fragment) error {
	if err := q.checkFragments("", fragments, false); err != nil {
		return &rag.StoreWriteError{Op: "write", Err: err}
	}
	if len(fragments) == 0 {
		return nil
	}
	err := q.inTx(ctx, func(tx *sql.Tx) error {
		return q.insertFragments(ctx, tx, fragments)
	})
	if err != nil {
		return &rag.StoreWriteError{Op: "write", Err: err}
	}
	return nil
}

// DeleteBySource removes every fragment of sourceID.
func (q *Queries) DeleteBySource(ctx context.Context, sourceID string) error {
	const deleteBySource = `DELETE FROM fragments WHERE source_id = ?`

	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	if _, err := q.db.ExecContext(ctx, deleteBySource, sourceID); err != nil {
		return &rag.StoreWriteError{Op: "delete by source", Err: err}
	}
	return nil
}

// ReplaceSource swaps the fragments of sourceID in one transaction, so
// readers never see the source empty or doubled. Concurrent replacements are
// serialized, the last one wins.
func (q *Queries) ReplaceSource(ctx context.Context, sourceID string, fragments []rag.Fragment) error {
	const deleteBySource = `DELETE FROM fragments WHERE source_id = ?`

	if sourceID == "" {
		return &rag.StoreWriteError{Op: "replace source", Err: fmt.Errorf("%w: empty source id", rag.ErrInvalidArgument)}
	}
	if err := q.checkFragments(sourceID, fragments, true); err != nil {
		return &rag.StoreWriteError{Op: "replace source", Err: err}
	}

	err := q.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteBySource, sourceID); err != nil {
			return fmt.Errorf("delete source %s: %w", sourceID, err)
		}
		return q.insertFragments(ctx, tx, fragments)
	})
	if err != nil {
		return &rag.StoreWriteError{Op: "replace source", Err: err}
	}
	return nil
}

// FragmentsBySource lists the fragments of sourceID embedded with the store's
// model, in insertion order.
func (q *Queries) FragmentsBySource(ctx context.Context, sourceID string) ([]rag.Fragment, error) {
	const fragmentsBySource = `
SELECT uid, source_id, content, embedding_vector, created_at
FROM fragments
WHERE source_id = ? AND embedding_model = ?
ORDER BY id
`

	rows, err := q.db.QueryContext(ctx, fragmentsBySource, sourceID, q.model)
	if err != nil {
		return nil, &rag.StoreReadError{Op: "fragments by source", Err: err}
	}
	defer rows.Close()

	var items []rag.Fragment
	for rows.Next() {
		i, err := scanFragment(rows)
		if err != nil {
			return nil, &rag.StoreReadError{Op: "fragments by source", Err: err}
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, &rag.StoreReadError{Op: "fragments by source", Err: err}
	}
	return items, nil
}

// Search returns at most limit fragments at least minSimilarity similar to
// vector, most similar first, ties in insertion order.
func (q *Queries) Search(ctx context.Context, vector []float64, minSimilarity float64, limit int) ([]rag.ScoredFragment, error) {
	const search = `
SELECT uid, source_id, content, embedding_vector, created_at, similarity
FROM (
    SELECT id, uid, source_id, content, embedding_vector, created_at,
           1 - vec_cosine_distance(?, embedding_vector) AS similarity
    FROM fragments
    WHERE embedding_model = ?
)
WHERE similarity >= ?
ORDER BY similarity DESC, id ASC
LIMIT ?
`

	if err := rag.CheckQuery(vector, q.dims, minSimilarity, limit); err != nil {
		return nil, &rag.StoreReadError{Op: "search", Err: err}
	}

	rows, err := q.db.QueryContext(ctx, search,
		vec.EncodeFloat64s(vector),
		q.model,
		minSimilarity,
		limit,
	)
	if err != nil {
		return nil, &rag.StoreReadError{Op: "search", Err: err}
	}
	defer rows.Close()

	items := []rag.ScoredFragment{}
	for rows.Next() {
		var i rag.ScoredFragment
		var sourceID sql.NullString
		var vecbytes []byte
		var created int64
		if err := rows.Scan(
			&i.ID,
			&sourceID,
			&i.Content,
			&vecbytes,
			&created,
			&i.Similarity,
		); err != nil {
			return nil, &rag.StoreReadError{Op: "search", Err: err}
		}
		i.SourceID = sourceID.String
		i.CreatedAt = time.Unix(created, 0)
		i.Vector, err = vec.DecodeFloat64s(vecbytes)
		if err != nil {
			return nil, &rag.StoreReadError{Op: "search", Err: fmt.Errorf("decoding embedding vector: %w", err)}
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, &rag.StoreReadError{Op: "search", Err: err}
	}
	return items, nil
}

func scanFragment(rows *sql.Rows) (rag.Fragment, error) {
	var i rag.Fragment
	var sourceID sql.NullString
	var vecbytes []byte
	var created int64
	if err := rows.Scan(
		&i.ID,
		&sourceID,
		&i.Content,
		&vecbytes,
		&created,
	); err != nil {
		return rag.Fragment{}, err
	}
	i.SourceID = sourceID.String
	i.CreatedAt = time.Unix(created, 0)

	var err error
	i.Vector, err = vec.DecodeFloat64s(vecbytes)
	if err != nil {
		return rag.Fragment{}, fmt.Errorf("decoding embedding vector: %w", err)
	}
	return i, nil
}

func (q *Queries) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
