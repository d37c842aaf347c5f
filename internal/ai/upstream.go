package ai

import (
	"context"
	"fmt"

	"github.com/modfin/bellman/models/embed"
	"golang.org/x/sync/errgroup"
)

// BellmanUpstream embeds through the proxy, one request per text with at
// most Concurrency requests in flight.
type BellmanUpstream struct {
	Proxy       *Proxy
	Model       embed.Model
	Concurrency int
}

func (u *BellmanUpstream) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	if u.Concurrency > 0 {
		g.SetLimit(u.Concurrency)
	}
	for i, text := range texts {
		g.Go(func() error {
			resp, err := u.Proxy.Embed(embed.Request{
				Ctx:   ctx,
				Model: u.Model,
				Text:  text,
			})
			if err != nil {
				return fmt.Errorf("failed to embed text %d: %w", i, err)
			}
			out[i] = resp.AsFloat64()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
