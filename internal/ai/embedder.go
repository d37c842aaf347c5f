package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/greenthumb/sprout/internal/metrics"
	"github.com/greenthumb/sprout/internal/rag"
	"golang.org/x/time/rate"
)

// Upstream is the embedding provider. It must return one vector per text,
// in input order, or an error for the whole batch.
type Upstream interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

type EmbedderConfig struct {
	Dimensions int
	// Timeout bounds every upstream attempt. Zero means no timeout.
	Timeout time.Duration
	// Retries is the number of attempts after the first one.
	Retries        int
	InitialBackoff time.Duration
	// RequestsPerSecond limits upstream attempts. Zero means unlimited.
	RequestsPerSecond float64
}

func DefaultEmbedderConfig() EmbedderConfig {
	return EmbedderConfig{
		Dimensions:     rag.DefaultDimensions,
		Timeout:        30 * time.Second,
		Retries:        3,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// Embedder is the embedding client. It prepares texts, calls the upstream
// with retries and checks what comes back.
type Embedder struct {
	upstream Upstream
	conf     EmbedderConfig
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

var _ rag.Embedder = (*Embedder)(nil)

type EmbedderOption func(*Embedder)

func WithEmbedderLogger(logger *slog.Logger) EmbedderOption {
	return func(e *Embedder) { e.logger = logger }
}

func WithEmbedderMetrics(m *metrics.Metrics) EmbedderOption {
	return func(e *Embedder) { e.metrics = m }
}

func NewEmbedder(upstream Upstream, conf EmbedderConfig, opts ...EmbedderOption) *Embedder {
	if conf.Dimensions <= 0 {
		conf.Dimensions = rag.DefaultDimensions
	}
	if conf.Retries < 0 {
		conf.Retries = 0
	}
	if conf.InitialBackoff <= 0 {
		conf.InitialBackoff = 500 * time.Millisecond
	}
	e := &Embedder{
		upstream: upstream,
		conf:     conf,
		logger:   slog.Default(),
	}
	if conf.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(conf.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany embeds texts in one upstream batch. Either every text gets a
// vector of the configured dimension or an *rag.EmbeddingServiceError is
// returned.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	prepared := make([]string, len(texts))
	for i, text := range texts {
		prepared[i] = normalizeText(text)
		if strings.TrimSpace(prepared[i]) == "" {
			return nil, &rag.EmbeddingServiceError{
				Op:  "embed",
				Err: fmt.Errorf("%w: text %d is blank", rag.ErrEmptyInput, i),
			}
		}
	}

	start := time.Now()
	vectors, err := e.embed(ctx, prepared)
	e.metrics.ObserveEmbedding(len(prepared), time.Since(start), err)
	if err != nil {
		return nil, &rag.EmbeddingServiceError{Op: "embed", Err: err}
	}
	e.logger.Debug("embedded", "texts", len(prepared), "took", time.Since(start))
	return vectors, nil
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float64, error) {
	var vectors [][]float64

	attempt := func() error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if e.conf.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, e.conf.Timeout)
		}
		defer cancel()

		out, err := e.upstream.Embed(callCtx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if permanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := e.check(out, len(texts)); err != nil {
			return backoff.Permanent(err)
		}
		vectors = out
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.conf.InitialBackoff
	policy.MaxInterval = 10 * e.conf.InitialBackoff

	err := backoff.RetryNotify(attempt,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(e.conf.Retries)), ctx),
		func(err error, wait time.Duration) {
			e.metrics.EmbeddingRetry()
			e.logger.Debug("retrying embedding", "err", err, "wait", wait, "texts", len(texts))
		})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *Embedder) check(vectors [][]float64, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("upstream returned %d vectors for %d texts", len(vectors), want)
	}
	for i, v := range vectors {
		if err := rag.CheckDimension(v, e.conf.Dimensions); err != nil {
			return fmt.Errorf("vector %d: %w", i, err)
		}
	}
	return nil
}

// permanent reports errors a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrNoModelProvided) ||
		errors.Is(err, rag.ErrDimensionMismatch) ||
		errors.Is(err, context.Canceled)
}

var newlines = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// normalizeText replaces line breaks with single spaces.
func normalizeText(text string) string {
	return newlines.Replace(text)
}
