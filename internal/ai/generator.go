package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/greenthumb/sprout/internal/rag"
	"github.com/modfin/bellman/models/gen"
	"github.com/modfin/bellman/schema"
)

// Generator answers questions with a bellman llm, asking for an Answer as
// structured output.
type Generator struct {
	proxy        *Proxy
	model        gen.Model
	systemPrompt string
	timeout      time.Duration
	logger       *slog.Logger

	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

var _ rag.Generator = (*Generator)(nil)

func NewGenerator(proxy *Proxy, model gen.Model, systemPrompt string, timeout time.Duration, logger *slog.Logger) *Generator {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		proxy:        proxy,
		model:        model,
		systemPrompt: systemPrompt,
		timeout:      timeout,
		logger:       logger,
	}
}

func (g *Generator) Generate(ctx context.Context, question string, fragments []rag.ScoredFragment) (string, error) {
	ans, err := g.Answer(ctx, question, fragments)
	if err != nil {
		return "", err
	}
	return ans.Answer, nil
}

// Answer returns the full structured answer. The request carries ctx, so
// the provider call ends when ctx does or the timeout passes.
func (g *Generator) Answer(ctx context.Context, question string, fragments []rag.ScoredFragment) (Answer, error) {
	llm, err := g.proxy.Gen(g.model)
	if err != nil {
		return Answer{}, &rag.GenerationError{Op: "create llm", Err: err}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := llm.
		WithContext(ctx).
		System(g.systemPrompt).
		Output(schema.From(Answer{})).
		Prompt(append(factPrompts(fragments), questionPrompt(question))...)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return Answer{}, &rag.GenerationError{Op: "generate", Err: err}
	}
	if ctx.Err() != nil {
		return Answer{}, &rag.GenerationError{Op: "generate", Err: ctx.Err()}
	}

	var ans Answer
	if err := res.Unmarshal(&ans); err != nil {
		return Answer{}, &rag.GenerationError{Op: "unmarshal", Err: err}
	}
	ans.Metadata = res.Metadata

	g.inputTokens.Add(int64(ans.Metadata.InputTokens))
	g.outputTokens.Add(int64(ans.Metadata.OutputTokens))
	g.logger.Debug("generated",
		"confidence", ans.ConfidenceScore,
		"fragments", len(fragments),
		"took", time.Since(start),
		"input-tokens", ans.Metadata.InputTokens,
		"output-tokens", ans.Metadata.OutputTokens,
	)
	return ans, nil
}

// Usage logs the tokens spent so far.
func (g *Generator) Usage(logger *slog.Logger) {
	logger.Info("llm usage",
		"model", g.model.Provider+"/"+g.model.Name,
		"input-tokens-total", g.inputTokens.Load(),
		"output-tokens-total", g.outputTokens.Load(),
	)
}
