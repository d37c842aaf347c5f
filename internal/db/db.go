package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/greenthumb/sprout/internal/rag"
	_ "modernc.org/sqlite"
)

type Options struct {
	// Dimensions every stored and queried vector must have.
	Dimensions int
	// EmbeddingModel tags written rows; queries only match rows of the same
	// model since vectors of different models are not comparable.
	EmbeddingModel string
}

// Queries is the sqlite backed fragment store and response cache.
type Queries struct {
	db    *sql.DB
	dims  int
	model string
	now   func() time.Time

	// sqlite has a single writer; writes from this process queue here
	// instead of racing for the file lock.
	writeMu sync.Mutex
}

var (
	_ rag.FragmentStore = (*Queries)(nil)
	_ rag.ResponseCache = (*Queries)(nil)
)

func New(conn *sql.DB, opts Options) *Queries {
	if opts.Dimensions <= 0 {
		opts.Dimensions = rag.DefaultDimensions
	}
	return &Queries{
		db:    conn,
		dims:  opts.Dimensions,
		model: opts.EmbeddingModel,
		now:   time.Now,
	}
}

// Open opens the sqlite file at path and creates the schema.
func Open(ctx context.Context, path string, opts Options) (*Queries, error) {
	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database file, %s: %w", "file://"+path, err)
	}

	_, err = conn.ExecContext(ctx, Schema)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return New(conn, opts), nil
}

// dsn adds a busy timeout so writers from other processes wait for the
// file lock instead of failing.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}

func (q *Queries) Close() error {
	return q.db.Close()
}
