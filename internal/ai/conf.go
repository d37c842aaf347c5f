package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/greenthumb/sprout/internal/db"
	"github.com/greenthumb/sprout/internal/db/pg"
	"github.com/greenthumb/sprout/internal/metrics"
	"github.com/greenthumb/sprout/internal/rag"
	"github.com/modfin/bellman/models/embed"
	"github.com/modfin/bellman/models/gen"
	"github.com/modfin/clix"
	"github.com/urfave/cli/v3"
)

// Store is a backend holding both fragments and cached responses.
type Store interface {
	rag.FragmentStore
	rag.ResponseCache
	Close() error
}

type StoreConf struct {
	DB          string `cli:"db"`
	PostgresDSN string `cli:"postgres-dsn"`
}

// Conf is everything a command needs, built from the root command's flags.
type Conf struct {
	credentials APICredentials
	storeConf   StoreConf

	Proxy   *Proxy
	Store   Store
	Metrics *metrics.Metrics

	EmbedModel embed.Model
	LLMModel   gen.Model

	Embedder  *Embedder
	Generator *Generator
	Pipeline  *rag.Pipeline
	Ingester  *rag.Ingester
}

func LoadConf(ctx context.Context, cmd *cli.Command) (*Conf, error) {
	var err error
	var conf Conf
	logger := slog.Default()

	conf.credentials = clix.ParseCommand[APICredentials](cmd)
	conf.storeConf = clix.ParseCommand[StoreConf](cmd)
	conf.Metrics = metrics.New()

	conf.Proxy, err = New(conf.credentials, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Proxy: %w", err)
	}

	provider, modelName := ParseModel(cmd.String("embed-model"))
	logger.Debug("embed model", "provider", provider, "model", modelName)
	conf.EmbedModel = embed.Model{
		Provider: provider,
		Name:     modelName,
	}

	provider, modelName = ParseModel(cmd.String("llm-model"))
	logger.Debug("llm model", "provider", provider, "model", modelName)
	conf.LLMModel = gen.Model{
		Provider: provider,
		Name:     modelName,
	}

	dims := int(cmd.Int("embed-dimensions"))
	conf.Store, err = openStore(ctx, conf.storeConf, dims, cmd.String("embed-model"))
	if err != nil {
		return nil, err
	}

	conf.Embedder = NewEmbedder(
		&BellmanUpstream{
			Proxy:       conf.Proxy,
			Model:       conf.EmbedModel,
			Concurrency: int(cmd.Int("embed-concurrency")),
		},
		EmbedderConfig{
			Dimensions:        dims,
			Timeout:           cmd.Duration("embed-timeout"),
			Retries:           int(cmd.Int("embed-retries")),
			RequestsPerSecond: cmd.Float("embed-rps"),
		},
		WithEmbedderLogger(logger),
		WithEmbedderMetrics(conf.Metrics),
	)

	conf.Generator = NewGenerator(conf.Proxy, conf.LLMModel, cmd.String("system-prompt"), cmd.Duration("llm-timeout"), logger)

	pipelineConf := rag.Config{
		CacheThreshold:     cmd.Float("cache-threshold"),
		ContextThreshold:   cmd.Float("context-threshold"),
		ContextLimit:       int(cmd.Int("context-limit")),
		DedupThreshold:     cmd.Float("dedup-threshold"),
		DegradeOnReadError: cmd.Bool("degrade-on-read-error"),
	}
	conf.Pipeline = rag.NewPipeline(conf.Embedder, conf.Store, conf.Store, conf.Generator, pipelineConf,
		rag.WithLogger(logger),
		rag.WithMetrics(conf.Metrics),
	)
	conf.Ingester = rag.NewIngester(conf.Embedder, conf.Store, logger)

	return &conf, nil
}

// openStore uses postgres when a dsn is given and the sqlite file otherwise.
func openStore(ctx context.Context, sc StoreConf, dims int, model string) (Store, error) {
	if sc.PostgresDSN != "" {
		s, err := pg.Open(ctx, sc.PostgresDSN, pg.Options{Dimensions: dims, EmbeddingModel: model})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		slog.Default().Debug("using postgres store")
		return s, nil
	}

	q, err := db.Open(ctx, sc.DB, db.Options{Dimensions: dims, EmbeddingModel: model})
	if err != nil {
		return nil, err
	}
	slog.Default().Debug("using sqlite store", "db", sc.DB)
	return q, nil
}

func (c *Conf) Close() error {
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
