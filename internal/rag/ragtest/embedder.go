// Package ragtest provides deterministic stand-ins for the embedding provider
// and the generation model.
package ragtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/greenthumb/sprout/internal/rag"
)

// HashEmbedder embeds text as a normalised bag of words: every lower-cased
// word adds one to the dimension its FNV-1a hash selects. Texts sharing
// words are similar, identical texts have similarity 1.
type HashEmbedder struct {
	Dimensions int
	calls      atomic.Int64
}

func NewHashEmbedder(dimensions int) *HashEmbedder {
	return &HashEmbedder{Dimensions: dimensions}
}

// Calls counts the batches embedded so far.
func (h *HashEmbedder) Calls() int64 {
	return h.calls.Load()
}

func (h *HashEmbedder) Vector(text string) []float64 {
	v := make([]float64, h.Dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New64a()
		f.Write([]byte(w))
		v[f.Sum64()%uint64(h.Dimensions)]++
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

// Embed satisfies the upstream contract of the embedding client.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.calls.Add(1)
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = h.Vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	out, err := h.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (h *HashEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	return h.Embed(ctx, texts)
}

var _ rag.Embedder = (*HashEmbedder)(nil)
