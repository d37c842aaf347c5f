package rag_test

import (
	"context"
	"testing"

	"github.com/greenthumb/sprout/internal/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonsteraEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, rag.DefaultDimensions)

	frags, err := e.ingester.Ingest(ctx, monstera())
	require.NoError(t, err)
	require.Len(t, frags, 3)
	for _, f := range frags {
		assert.Len(t, f.Vector, rag.DefaultDimensions)
	}

	query, err := e.embedder.EmbedOne(ctx, "tall tropical climbing plant")
	require.NoError(t, err)

	hits, err := e.store.Search(ctx, query, 0.3, 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	var found bool
	for i, h := range hits {
		assert.GreaterOrEqual(t, h.Similarity, 0.3)
		if i > 0 {
			assert.LessOrEqual(t, h.Similarity, hits[i-1].Similarity)
		}
		if h.Content == "Description: A climbing tropical plant" {
			found = true
			assert.Greater(t, h.Similarity, 0.3)
		}
	}
	assert.True(t, found, "description fragment not among %v", hits)

	none, err := e.store.Search(ctx, query, 1, 3)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
