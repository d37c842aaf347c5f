package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/greenthumb/sprout/internal/metrics"
	"github.com/modfin/henry/slicez"
)

// State is the position of a single question in the answering flow.
type State int

const (
	StateStart State = iota
	StateEmbedded
	StateCacheHit
	StateContextAssembled
	StateGenerated
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateEmbedded:
		return "embedded"
	case StateCacheHit:
		return "cache-hit"
	case StateContextAssembled:
		return "context-assembled"
	case StateGenerated:
		return "generated"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type Config struct {
	// CacheThreshold is the similarity a cached answer needs to be reused.
	CacheThreshold float64
	// ContextThreshold is the similarity a fragment needs to become context.
	ContextThreshold float64
	ContextLimit     int
	// DedupThreshold suppresses the cache write-back when an entry at least
	// this similar already exists. Zero disables the check.
	DedupThreshold float64
	// DegradeOnReadError turns store read failures into misses instead of
	// failing the question.
	DegradeOnReadError bool
}

func DefaultConfig() Config {
	return Config{
		CacheThreshold:   0.9,
		ContextThreshold: 0.3,
		ContextLimit:     5,
		DedupThreshold:   0.98,
	}
}

// Answer is the outcome of Pipeline.Ask.
type Answer struct {
	Query    string
	Response string
	Context  string
	State    State
	// Similarity of the cached entry on a cache hit.
	Similarity float64
	Fragments  []ScoredFragment
}

type Pipeline struct {
	embedder  Embedder
	fragments FragmentStore
	cache     ResponseCache
	generator Generator
	conf      Config

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func NewPipeline(embedder Embedder, fragments FragmentStore, cache ResponseCache, generator Generator, conf Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		embedder:  embedder,
		fragments: fragments,
		cache:     cache,
		generator: generator,
		conf:      conf,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ask answers query, from the response cache when a similar question was
// answered before and otherwise by generating from retrieved fragments.
// The steps run strictly in sequence.
func (p *Pipeline) Ask(ctx context.Context, query string) (Answer, error) {
	ans := Answer{Query: query, State: StateStart}
	logger := p.logger.With("query", query)

	vector, err := p.embedder.EmbedOne(ctx, query)
	if err != nil {
		var ese *EmbeddingServiceError
		if !errors.As(err, &ese) {
			err = &EmbeddingServiceError{Op: "embed query", Err: err}
		}
		return p.fail(ans, err)
	}
	ans.State = StateEmbedded

	start := time.Now()
	hits, err := p.cache.Lookup(ctx, vector, p.conf.CacheThreshold, 1)
	p.metrics.ObserveSearch("response_cache", time.Since(start))
	if err != nil {
		p.metrics.CacheLookup("error")
		if !p.conf.DegradeOnReadError {
			return p.fail(ans, asReadError("cache lookup", err))
		}
		logger.Warn("cache lookup failed, treating as miss", "err", err)
		hits = nil
	}
	if len(hits) > 0 {
		p.metrics.CacheLookup("hit")
		hit := hits[0]
		logger.Debug("cache hit", "similarity", hit.Similarity, "cached_query", hit.Query)
		ans.Response = hit.Response
		ans.Context = hit.Context
		ans.Similarity = hit.Similarity
		ans.State = StateCacheHit
		p.metrics.Ask(ans.State.String())
		return ans, nil
	}
	if err == nil {
		p.metrics.CacheLookup("miss")
	}

	start = time.Now()
	frags, err := p.fragments.Search(ctx, vector, p.conf.ContextThreshold, p.conf.ContextLimit)
	p.metrics.ObserveSearch("fragments", time.Since(start))
	if err != nil {
		if !p.conf.DegradeOnReadError {
			return p.fail(ans, asReadError("fragment search", err))
		}
		logger.Warn("fragment search failed, answering without context", "err", err)
		frags = nil
	}
	ans.Fragments = frags
	ans.Context = strings.Join(slicez.Map(frags, func(f ScoredFragment) string {
		return f.Content
	}), "\n\n")
	ans.State = StateContextAssembled
	logger.Debug("context assembled", "fragments", len(frags))

	response, err := p.generator.Generate(ctx, query, frags)
	p.metrics.Generation(err)
	if err != nil {
		var ge *GenerationError
		if !errors.As(err, &ge) {
			err = &GenerationError{Op: "generate", Err: err}
		}
		return p.fail(ans, err)
	}
	ans.Response = response
	ans.State = StateGenerated

	p.writeBack(ctx, logger, ans, vector)

	ans.State = StateDone
	p.metrics.Ask(ans.State.String())
	return ans, nil
}

// writeBack stores the generated answer. Failures are logged, never returned.
func (p *Pipeline) writeBack(ctx context.Context, logger *slog.Logger, ans Answer, vector []float64) {
	if p.conf.DedupThreshold > 0 {
		dups, err := p.cache.Lookup(ctx, vector, p.conf.DedupThreshold, 1)
		if err != nil {
			p.metrics.CacheWrite("error")
			logger.Warn("cache duplicate check failed, skipping write-back", "err", err)
			return
		}
		if len(dups) > 0 {
			p.metrics.CacheWrite("duplicate")
			logger.Debug("near-duplicate already cached", "similarity", dups[0].Similarity)
			return
		}
	}

	err := p.cache.Store(ctx, CachedResponse{
		Query:    ans.Query,
		Response: ans.Response,
		Context:  ans.Context,
		Vector:   vector,
	})
	if err != nil {
		p.metrics.CacheWrite("error")
		logger.Warn("failed to cache response", "err", err)
		return
	}
	p.metrics.CacheWrite("stored")
}

func (p *Pipeline) fail(ans Answer, err error) (Answer, error) {
	ans.State = StateFailed
	p.metrics.Ask(ans.State.String())
	return ans, err
}

func asReadError(op string, err error) error {
	var sre *StoreReadError
	if errors.As(err, &sre) {
		return err
	}
	return &StoreReadError{Op: op, Err: err}
}
