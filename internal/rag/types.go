package rag

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultDimensions is the vector size of the default embedding model
// (OpenAI text-embedding-3-small).
const DefaultDimensions = 1536

// Fragment is a single embedded piece of a source record.
type Fragment struct {
	ID        string
	SourceID  string // empty when the fragment has no originating record
	Content   string
	Vector    []float64
	CreatedAt time.Time
}

// NewFragment returns a fragment with a fresh id.
func NewFragment(sourceID, content string, vector []float64) Fragment {
	return Fragment{
		ID:       uuid.NewString(),
		SourceID: sourceID,
		Content:  content,
		Vector:   vector,
	}
}

type ScoredFragment struct {
	Fragment
	Similarity float64
}

// CachedResponse is a previously generated answer together with the
// embedding of the question that produced it.
type CachedResponse struct {
	ID        string
	Query     string
	Response  string
	Context   string // empty when no context was used
	Vector    []float64
	CreatedAt time.Time
}

type CacheHit struct {
	CachedResponse
	Similarity float64
}

// Document is anything the Ingester can split into fragments.
type Document interface {
	SourceID() string
	Chunks() []string
}

// Embedder turns text into vectors.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float64, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float64, error)
}

// FragmentStore persists fragments and answers similarity queries over them.
// Results of Search are ordered by descending similarity, ties in insertion
// order.
type FragmentStore interface {
	Write(ctx context.Context, fragments []Fragment) error
	DeleteBySource(ctx context.Context, sourceID string) error
	ReplaceSource(ctx context.Context, sourceID string, fragments []Fragment) error
	FragmentsBySource(ctx context.Context, sourceID string) ([]Fragment, error)
	Search(ctx context.Context, vector []float64, minSimilarity float64, limit int) ([]ScoredFragment, error)
}

// ResponseCache is an append-only store of generated answers.
type ResponseCache interface {
	Lookup(ctx context.Context, vector []float64, minSimilarity float64, limit int) ([]CacheHit, error)
	Store(ctx context.Context, response CachedResponse) error
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Generator produces an answer to question from the retrieved fragments.
type Generator interface {
	Generate(ctx context.Context, question string, fragments []ScoredFragment) (string, error)
}
