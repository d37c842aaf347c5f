package db

import (
	"context"
	"testing"
	"time"

	"github.com/greenthumb/sprout/internal/rag"
	"github.com/greenthumb/sprout/internal/rag/ragtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, rag.DefaultDimensions)
	embedder := ragtest.NewHashEmbedder(rag.DefaultDimensions)

	query := "What soil does X need?"
	require.NoError(t, q.Store(ctx, rag.CachedResponse{
		Query:    query,
		Response: "Loamy, well-drained soil",
		Context:  "Soil: loamy, well-drained",
		Vector:   embedder.Vector(query),
	}))
	require.NoError(t, q.Store(ctx, rag.CachedResponse{
		Query:    "How tall does a monstera grow?",
		Response: "Up to three metres indoors",
		Vector:   embedder.Vector("How tall does a monstera grow?"),
	}))

	hits, err := q.Lookup(ctx, embedder.Vector(query), 0.5, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	top := hits[0]
	assert.Equal(t, "Loamy, well-drained soil", top.Response)
	assert.Equal(t, "Soil: loamy, well-drained", top.Context)
	assert.Equal(t, query, top.Query)
	assert.Greater(t, top.Similarity, 0.99)
	assert.NotEmpty(t, top.ID)
	assert.False(t, top.CreatedAt.IsZero())
}

func TestCacheIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)

	for _, answer := range []string{"first", "second"} {
		require.NoError(t, q.Store(ctx, rag.CachedResponse{
			Query:    "Does basil need sun?",
			Response: answer,
			Vector:   []float64{0, 1, 0},
		}))
	}

	hits, err := q.Lookup(ctx, []float64{0, 1, 0}, 0.9, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "first", hits[0].Response)
	assert.Equal(t, "second", hits[1].Response)
	assert.Equal(t, "", hits[0].Context)
}

func TestCacheLookupBelowThreshold(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)

	require.NoError(t, q.Store(ctx, rag.CachedResponse{Query: "q", Response: "r", Vector: []float64{1, 0, 0}}))

	hits, err := q.Lookup(ctx, []float64{0.6, 0.8, 0}, 0.9, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCacheStoreValidation(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)

	err := q.Store(ctx, rag.CachedResponse{Query: "q", Response: "r", Vector: []float64{1, 0}})
	var swe *rag.StoreWriteError
	require.ErrorAs(t, err, &swe)
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)

	err = q.Store(ctx, rag.CachedResponse{Query: " ", Response: "r", Vector: []float64{1, 0, 0}})
	assert.ErrorIs(t, err, rag.ErrInvalidArgument)
}

func TestCachePrune(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	require.NoError(t, q.Store(ctx, rag.CachedResponse{
		Query: "old", Response: "r", Vector: []float64{1, 0, 0},
		CreatedAt: now.Add(-72 * time.Hour),
	}))
	require.NoError(t, q.Store(ctx, rag.CachedResponse{
		Query: "fresh", Response: "r", Vector: []float64{1, 0, 0},
	}))

	n, err := q.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	hits, err := q.Lookup(ctx, []float64{1, 0, 0}, 0.9, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "fresh", hits[0].Query)

	_, err = q.Prune(ctx, -time.Hour)
	assert.ErrorIs(t, err, rag.ErrInvalidArgument)
}
