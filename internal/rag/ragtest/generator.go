package ragtest

import (
	"context"
	"strings"
	"sync"

	"github.com/greenthumb/sprout/internal/rag"
)

// Generator answers by echoing the retrieved fragments and records every
// call. A non-nil Err is returned instead of an answer.
type Generator struct {
	Err error

	mu    sync.Mutex
	calls []string
}

func (g *Generator) Generate(ctx context.Context, question string, fragments []rag.ScoredFragment) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, question)
	g.mu.Unlock()

	if g.Err != nil {
		return "", g.Err
	}
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		parts = append(parts, f.Content)
	}
	return "Based on: " + strings.Join(parts, "; "), nil
}

// Calls returns the questions seen so far.
func (g *Generator) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

var _ rag.Generator = (*Generator)(nil)
