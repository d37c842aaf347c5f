// Package pg stores fragments and cached responses in postgres with the
// pgvector extension. Both tables carry an HNSW index over the vector column
// using cosine distance.
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/greenthumb/sprout/internal/rag"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

type Options struct {
	Dimensions     int
	EmbeddingModel string
}

type Store struct {
	pool  *pgxpool.Pool
	dims  int
	model string
	now   func() time.Time
}

var (
	_ rag.FragmentStore = (*Store)(nil)
	_ rag.ResponseCache = (*Store)(nil)
)

// Open connects to dsn, installs the vector extension and creates the
// schema for opts.Dimensions.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if opts.Dimensions <= 0 {
		opts.Dimensions = rag.DefaultDimensions
	}

	// the extension must exist before the pool registers the vector codec
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	_, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	conn.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector extension: %w", err)
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	s := &Store{
		pool:  pool,
		dims:  opts.Dimensions,
		model: opts.EmbeddingModel,
		now:   time.Now,
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func schema(dims int) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS plant_fragments (
    seq             bigserial PRIMARY KEY,
    id              text NOT NULL UNIQUE,
    source_id       text,
    content         text NOT NULL CHECK (content <> ''),
    embedding_model text NOT NULL,
    embedding       vector(%d) NOT NULL,
    created_at      timestamptz NOT NULL DEFAULT now()
)`, dims),
		`CREATE INDEX IF NOT EXISTS plant_fragments_source_id_idx ON plant_fragments (source_id)`,
		`CREATE INDEX IF NOT EXISTS plant_fragments_embedding_idx ON plant_fragments USING hnsw (embedding vector_cosine_ops)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS response_cache (
    seq             bigserial PRIMARY KEY,
    id              text NOT NULL UNIQUE,
    query           text NOT NULL,
    response        text NOT NULL,
    context         text,
    embedding_model text NOT NULL,
    embedding       vector(%d) NOT NULL,
    created_at      timestamptz NOT NULL DEFAULT now()
)`, dims),
		`CREATE INDEX IF NOT EXISTS response_cache_embedding_idx ON response_cache USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS response_cache_created_at_idx ON response_cache (created_at)`,
	}
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema(s.dims) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func toVector(v []float64) pgvector.Vector {
	f := make([]float32, len(v))
	for i, x := range v {
		f[i] = float32(x)
	}
	return pgvector.NewVector(f)
}

func fromVector(v pgvector.Vector) []float64 {
	s := v.Slice()
	f := make([]float64, len(s))
	for i, x := range s {
		f[i] = float64(x)
	}
	return f
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
