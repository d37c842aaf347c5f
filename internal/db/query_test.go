package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/greenthumb/sprout/internal/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, dims int) *Queries {
	t.Helper()
	q, err := Open(context.Background(), filepath.Join(t.TempDir(), "sprout.db"), Options{
		Dimensions:     dims,
		EmbeddingModel: "test/hash",
	})
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func frag(source, content string, vector ...float64) rag.Fragment {
	return rag.NewFragment(source, content, vector)
}

func TestSearchOrdering(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)

	require.NoError(t, q.Write(ctx, []rag.Fragment{
		frag("monstera", "Name: Monstera deliciosa", 1, 0, 0),
		frag("monstera", "Description: A climbing tropical plant", 0.8, 0.6, 0),
		frag("monstera", "Height: 100-300 cm", 0, 1, 0),
		frag("pothos", "Name: Epipremnum aureum", 1, 0, 0),
	}))

	got, err := q.Search(ctx, []float64{1, 0, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// equal scores keep insertion order
	assert.Equal(t, "Name: Monstera deliciosa", got[0].Content)
	assert.Equal(t, "Name: Epipremnum aureum", got[1].Content)
	assert.Equal(t, "Description: A climbing tropical plant", got[2].Content)
	assert.InDelta(t, 0.8, got[2].Similarity, 1e-9)

	for i := range got {
		assert.GreaterOrEqual(t, got[i].Similarity, 0.5)
		if i > 0 {
			assert.LessOrEqual(t, got[i].Similarity, got[i-1].Similarity)
		}
	}

	again, err := q.Search(ctx, []float64{1, 0, 0}, 0.5, 10)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	limited, err := q.Search(ctx, []float64{1, 0, 0}, 0, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSearchNoMatchIsEmpty(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)

	require.NoError(t, q.Write(ctx, []rag.Fragment{frag("a", "Name: Fern", 1, 0, 0)}))

	got, err := q.Search(ctx, []float64{0, 0, 1}, 0.3, 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSearchRejectsBadArguments(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)

	tests := []struct {
		name  string
		vec   []float64
		min   float64
		limit int
		want  error
	}{
		{name: "wrong dimension", vec: []float64{1, 0}, min: 0.3, limit: 5, want: rag.ErrDimensionMismatch},
		{name: "zero limit", vec: []float64{1, 0, 0}, min: 0.3, limit: 0, want: rag.ErrInvalidArgument},
		{name: "threshold above one", vec: []float64{1, 0, 0}, min: 1.5, limit: 5, want: rag.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Search(ctx, tt.vec, tt.min, tt.limit)
			var sre *rag.StoreReadError
			require.ErrorAs(t, err, &sre)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWriteRejectsWrongDimensionAtomically(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)

	err := q.Write(ctx, []rag.Fragment{
		frag("fern", "Name: Fern", 1, 0, 0),
		frag("fern", "Description: Shade loving", 1, 0),
	})
	var swe *rag.StoreWriteError
	require.ErrorAs(t, err, &swe)
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)

	stored, err := q.FragmentsBySource(ctx, "fern")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestWriteWithoutSource(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)

	require.NoError(t, q.Write(ctx, []rag.Fragment{frag("", "Tip: water in the morning", 0, 0, 1)}))
	require.NoError(t, q.Write(ctx, nil))

	got, err := q.Search(ctx, []float64{0, 0, 1}, 0.9, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].SourceID)
}

func TestDeleteBySourceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)

	require.NoError(t, q.Write(ctx, []rag.Fragment{
		frag("fern", "Name: Fern", 1, 0, 0),
		frag("fern", "Family: Polypodiaceae", 0, 1, 0),
		frag("cactus", "Name: Cactus", 0, 0, 1),
	}))

	require.NoError(t, q.DeleteBySource(ctx, "fern"))
	require.NoError(t, q.DeleteBySource(ctx, "fern"))
	require.NoError(t, q.DeleteBySource(ctx, "never-ingested"))

	ferns, err := q.FragmentsBySource(ctx, "fern")
	require.NoError(t, err)
	assert.Empty(t, ferns)

	cacti, err := q.FragmentsBySource(ctx, "cactus")
	require.NoError(t, err)
	assert.Len(t, cacti, 1)
}

func TestReplaceSource(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)

	require.NoError(t, q.ReplaceSource(ctx, "fern", []rag.Fragment{
		frag("fern", "Name: Fern", 1, 0, 0),
		frag("fern", "Description: Old text", 0, 1, 0),
	}))
	require.NoError(t, q.ReplaceSource(ctx, "fern", []rag.Fragment{
		frag("fern", "Name: Boston fern", 1, 0, 0),
	}))

	stored, err := q.FragmentsBySource(ctx, "fern")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Name: Boston fern", stored[0].Content)
	assert.Equal(t, []float64{1, 0, 0}, stored[0].Vector)

	err = q.ReplaceSource(ctx, "fern", []rag.Fragment{frag("cactus", "Name: Cactus", 0, 0, 1)})
	assert.ErrorIs(t, err, rag.ErrInvalidArgument)

	err = q.ReplaceSource(ctx, "", nil)
	assert.ErrorIs(t, err, rag.ErrInvalidArgument)
}

func TestConcurrentReplaceSourceLastWriterWins(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for n := 1; n <= 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frags := make([]rag.Fragment, n)
			for i := range frags {
				frags[i] = frag("fern", fmt.Sprintf("Note %d/%d", i, n), 1, float64(i), 0)
			}
			errs <- q.ReplaceSource(ctx, "fern", frags)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := q.FragmentsBySource(ctx, "fern")
	require.NoError(t, err)
	require.NotEmpty(t, stored)

	// every fragment comes from the same replacement
	var total int
	_, err = fmt.Sscanf(stored[0].Content, "Note 0/%d", &total)
	require.NoError(t, err)
	assert.Len(t, stored, total)
}

func TestModelsAreIsolated(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)
	require.NoError(t, q.Write(ctx, []rag.Fragment{frag("fern", "Name: Fern", 1, 0, 0)}))

	other := New(q.db, Options{Dimensions: 3, EmbeddingModel: "other/model"})
	got, err := other.Search(ctx, []float64{1, 0, 0}, 0, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFragmentsBySourceOnlyListsStoreModel(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)
	require.NoError(t, q.ReplaceSource(ctx, "fern", []rag.Fragment{frag("fern", "Name: Fern", 1, 0, 0)}))

	other := New(q.db, Options{Dimensions: 3, EmbeddingModel: "other/model"})
	stored, err := other.FragmentsBySource(ctx, "fern")
	require.NoError(t, err)
	assert.Empty(t, stored)

	// replacing under the new model drops the rows of the old one
	require.NoError(t, other.ReplaceSource(ctx, "fern", []rag.Fragment{frag("fern", "Name: Fern", 0, 1, 0)}))
	stored, err = q.FragmentsBySource(ctx, "fern")
	require.NoError(t, err)
	assert.Empty(t, stored)
	stored, err = other.FragmentsBySource(ctx, "fern")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestSearchSurfacesQueryFailure(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t, 3)
	require.NoError(t, q.Close())

	_, err := q.Search(ctx, []float64{1, 0, 0}, 0.3, 5)
	var sre *rag.StoreReadError
	assert.True(t, errors.As(err, &sre))
}
