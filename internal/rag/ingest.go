package rag

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/modfin/henry/slicez"
)

// Ingester runs the write path: chunks are embedded in one batch and replace
// whatever the store held for the same source.
type Ingester struct {
	embedder  Embedder
	fragments FragmentStore
	logger    *slog.Logger
}

func NewIngester(embedder Embedder, fragments FragmentStore, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		embedder:  embedder,
		fragments: fragments,
		logger:    logger,
	}
}

// Ingest embeds and stores the chunks of doc. Documents without a source id
// are appended; otherwise the source's fragments are replaced atomically,
// unless the stored contents already match, in which case nothing is
// embedded and the stored fragments are returned.
func (i *Ingester) Ingest(ctx context.Context, doc Document) ([]Fragment, error) {
	sourceID := doc.SourceID()
	chunks := doc.Chunks()
	logger := i.logger.With("source", sourceID)

	if sourceID != "" {
		existing, err := i.fragments.FragmentsBySource(ctx, sourceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing fragments: %w", err)
		}
		contents := slicez.Map(existing, func(f Fragment) string { return f.Content })
		if len(existing) > 0 && slices.Equal(contents, chunks) {
			logger.Debug("skipping unchanged source", "fragments", len(existing))
			return existing, nil
		}
	}

	var fragments []Fragment
	if len(chunks) > 0 {
		vectors, err := i.embedder.EmbedMany(ctx, chunks)
		if err != nil {
			return nil, err
		}
		fragments = make([]Fragment, len(chunks))
		for n, chunk := range chunks {
			fragments[n] = NewFragment(sourceID, chunk, vectors[n])
		}
	}

	if sourceID == "" {
		if err := i.fragments.Write(ctx, fragments); err != nil {
			return nil, err
		}
	} else if err := i.fragments.ReplaceSource(ctx, sourceID, fragments); err != nil {
		return nil, err
	}

	logger.Debug("ingested", "fragments", len(fragments))
	return fragments, nil
}

// Remove deletes every fragment of sourceID. Removing an unknown source is
// not an error.
func (i *Ingester) Remove(ctx context.Context, sourceID string) error {
	return i.fragments.DeleteBySource(ctx, sourceID)
}
