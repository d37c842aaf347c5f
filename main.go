package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MatusOllah/slogcolor"
	"github.com/greenthumb/sprout/internal/ai"
	"github.com/greenthumb/sprout/internal/db/vec"
	"github.com/greenthumb/sprout/internal/plant"
	"github.com/greenthumb/sprout/internal/rag"
	"github.com/joho/godotenv"
	"github.com/modfin/clix"
	"github.com/urfave/cli/v3"
)

var logLevel = new(slog.LevelVar)

func main() {
	os.Exit(run())
}

// run executes the command line and returns the exit code, after the
// deferred statistics have been logged.
func run() int {
	opts := slogcolor.DefaultOptions
	opts.Level = logLevel
	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, opts)))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("failed to load .env", "err", err)
	}

	var conf *ai.Conf
	defer func() {
		vec.Statistics(slog.Default())
		if conf != nil {
			conf.Metrics.Summary(slog.Default())
			conf.Generator.Usage(slog.Default())
			if err := conf.Close(); err != nil {
				slog.Default().Warn("failed to close store", "err", err)
			}
		}
	}()

	// load builds the shared configuration once, for whichever command runs.
	load := func(ctx context.Context, cmd *cli.Command) (*ai.Conf, error) {
		if conf != nil {
			return conf, nil
		}
		var err error
		conf, err = ai.LoadConf(ctx, cmd)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return conf, nil
	}

	defaults := rag.DefaultConfig()
	embedDefaults := ai.DefaultEmbedderConfig()

	cmd := &cli.Command{
		Name:  "sprout",
		Usage: "a RAG pipeline answering gardening questions from a plant encyclopedia",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Value:   "./sprout.db",
				Usage:   "sqlite database file, used unless --postgres-dsn is set",
				Sources: cli.EnvVars("SPROUT_DB"),
			},
			&cli.StringFlag{
				Name:    "postgres-dsn",
				Usage:   "postgres connection string, the database needs the pgvector extension",
				Sources: cli.EnvVars("SPROUT_POSTGRES_DSN"),
			},

			&cli.StringFlag{
				Name:    "bellman-url",
				Sources: cli.EnvVars("SPROUT_BELLMAN_URL"),
			},
			&cli.StringFlag{
				Name:    "bellman-key",
				Sources: cli.EnvVars("SPROUT_BELLMAN_KEY"),
			},
			&cli.StringFlag{
				Name:    "bellman-key-name",
				Value:   "sprout",
				Sources: cli.EnvVars("SPROUT_BELLMAN_KEY_NAME"),
			},

			&cli.StringFlag{
				Name:    "vertexai-credential",
				Sources: cli.EnvVars("SPROUT_VERTEXAI_CREDENTIAL"),
			},
			&cli.StringFlag{
				Name:    "vertexai-project",
				Sources: cli.EnvVars("SPROUT_VERTEXAI_PROJECT"),
			},
			&cli.StringFlag{
				Name:    "vertexai-region",
				Sources: cli.EnvVars("SPROUT_VERTEXAI_REGION"),
			},

			&cli.StringFlag{
				Name:    "openai-key",
				Sources: cli.EnvVars("SPROUT_OPENAI_KEY", "OPENAI_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "anthropic-key",
				Sources: cli.EnvVars("SPROUT_ANTHROPIC_KEY"),
			},
			&cli.StringFlag{
				Name:    "voyageai-key",
				Sources: cli.EnvVars("SPROUT_VOYAGEAI_KEY"),
			},

			&cli.StringFlag{
				Name:    "embed-model",
				Value:   "OpenAI/text-embedding-3-small",
				Sources: cli.EnvVars("SPROUT_EMBED_MODEL"),
			},
			&cli.IntFlag{
				Name:    "embed-dimensions",
				Value:   rag.DefaultDimensions,
				Sources: cli.EnvVars("SPROUT_EMBED_DIMENSIONS"),
			},
			&cli.DurationFlag{
				Name:    "embed-timeout",
				Value:   embedDefaults.Timeout,
				Sources: cli.EnvVars("SPROUT_EMBED_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "embed-retries",
				Value:   int64(embedDefaults.Retries),
				Sources: cli.EnvVars("SPROUT_EMBED_RETRIES"),
			},
			&cli.FloatFlag{
				Name:    "embed-rps",
				Usage:   "maximum embedding requests per second, 0 for no limit",
				Sources: cli.EnvVars("SPROUT_EMBED_RPS"),
			},
			&cli.IntFlag{
				Name:    "embed-concurrency",
				Value:   4,
				Sources: cli.EnvVars("SPROUT_EMBED_CONCURRENCY"),
			},

			&cli.StringFlag{
				Name:    "llm-model",
				Value:   "OpenAI/gpt-4o-mini",
				Sources: cli.EnvVars("SPROUT_LLM_MODEL"),
			},
			&cli.DurationFlag{
				Name:    "llm-timeout",
				Value:   time.Minute,
				Sources: cli.EnvVars("SPROUT_LLM_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "system-prompt",
				Value:   ai.DefaultSystemPrompt,
				Sources: cli.EnvVars("SPROUT_SYSTEM_PROMPT"),
			},

			&cli.FloatFlag{
				Name:    "cache-threshold",
				Value:   defaults.CacheThreshold,
				Usage:   "similarity needed to reuse a cached answer",
				Sources: cli.EnvVars("SPROUT_CACHE_THRESHOLD"),
			},
			&cli.FloatFlag{
				Name:    "context-threshold",
				Value:   defaults.ContextThreshold,
				Usage:   "similarity needed for a fragment to become context",
				Sources: cli.EnvVars("SPROUT_CONTEXT_THRESHOLD"),
			},
			&cli.IntFlag{
				Name:    "context-limit",
				Value:   int64(defaults.ContextLimit),
				Sources: cli.EnvVars("SPROUT_CONTEXT_LIMIT"),
			},
			&cli.FloatFlag{
				Name:    "dedup-threshold",
				Value:   defaults.DedupThreshold,
				Usage:   "skip caching an answer when one this similar is cached, 0 to always cache",
				Sources: cli.EnvVars("SPROUT_DEDUP_THRESHOLD"),
			},
			&cli.BoolFlag{
				Name:    "degrade-on-read-error",
				Usage:   "answer without cache or context when the store cannot be read",
				Sources: cli.EnvVars("SPROUT_DEGRADE_ON_READ_ERROR"),
			},

			&cli.BoolFlag{
				Name:    "verbose",
				Sources: cli.EnvVars("SPROUT_VERBOSE"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				logLevel.Set(slog.LevelDebug)
			}
			return ctx, nil
		},

		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "add plant records to the knowledge base, replacing earlier versions",
				ArgsUsage: "<file.json|file.yaml>...",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					conf, err := load(ctx, cmd)
					if err != nil {
						return err
					}
					for _, f := range cmd.Args().Slice() {
						logger := slog.Default().With("file", f)
						records, err := plant.Load(f)
						if err != nil {
							return err
						}
						logger.Debug("read records", "count", len(records))

						for _, rec := range records {
							frags, err := conf.Ingester.Ingest(ctx, rec)
							if err != nil {
								return fmt.Errorf("failed to ingest %q from %s: %w", rec.Name, f, err)
							}
							logger.Info("Ingested record", "name", rec.Name, "source", rec.SourceID(), "fragments", len(frags))
						}
					}
					return nil
				},
			},

			{
				Name:      "remove",
				Usage:     "remove every fragment of the given sources",
				ArgsUsage: "<source-id>...",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					conf, err := load(ctx, cmd)
					if err != nil {
						return err
					}
					for _, id := range cmd.Args().Slice() {
						if err := conf.Ingester.Remove(ctx, id); err != nil {
							return fmt.Errorf("failed to remove %s: %w", id, err)
						}
						slog.Default().Info("Removed source", "source", id)
					}
					return nil
				},
			},

			{
				Name:      "search",
				Usage:     "search the knowledge base for fragments",
				ArgsUsage: "<text>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Usage:   "the maximum number of fragments to return",
						Value:   5,
						Sources: cli.EnvVars("SPROUT_LIMIT"),
					},
					&cli.FloatFlag{
						Name:    "min-similarity",
						Value:   defaults.ContextThreshold,
						Sources: cli.EnvVars("SPROUT_MIN_SIMILARITY"),
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					conf, err := load(ctx, cmd)
					if err != nil {
						return err
					}
					search := strings.Join(cmd.Args().Slice(), " ")

					vector, err := conf.Embedder.EmbedOne(ctx, search)
					if err != nil {
						return err
					}
					frags, err := conf.Store.Search(ctx, vector, cmd.Float("min-similarity"), int(cmd.Int("limit")))
					if err != nil {
						return err
					}
					for _, frag := range frags {
						fmt.Printf("============ %.3f: %s ============\n%s\n", frag.Similarity, frag.SourceID, frag.Content)
					}
					return nil
				},
			},

			{
				Name:      "ask",
				Usage:     "ask a gardening question",
				ArgsUsage: "<question>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					conf, err := load(ctx, cmd)
					if err != nil {
						return err
					}
					question := strings.Join(cmd.Args().Slice(), " ")

					answer, err := conf.Pipeline.Ask(ctx, question)
					if err != nil {
						return err
					}
					slog.Default().Debug("answered", "state", answer.State, "fragments", len(answer.Fragments), "similarity", answer.Similarity)
					fmt.Println(answer.Response)
					return nil
				},
			},

			{
				Name:  "fill",
				Usage: "answer every question of a delimited file, writing the answers to a new file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "in",
						Required: true,
						Sources:  cli.EnvVars("SPROUT_FILL_IN"),
					},
					&cli.StringFlag{
						Name:     "out",
						Required: true,
						Sources:  cli.EnvVars("SPROUT_FILL_OUT"),
					},
					&cli.StringFlag{
						Name:    "delimiter",
						Value:   "\\t",
						Sources: cli.EnvVars("SPROUT_FILL_DELIMITER"),
					},
					&cli.BoolFlag{
						Name:    "with-headers",
						Sources: cli.EnvVars("SPROUT_FILL_WITH_HEADERS"),
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					conf, err := load(ctx, cmd)
					if err != nil {
						return err
					}
					fillConf := clix.ParseCommand[ai.FillConf](cmd)
					fillConf.WithHeaders = cmd.Bool("with-headers")
					return ai.Fill(ctx, conf.Pipeline, fillConf, slog.Default())
				},
			},

			{
				Name:  "cache",
				Usage: "manage the response cache",
				Commands: []*cli.Command{
					{
						Name:  "prune",
						Usage: "delete cached answers older than --older-than",
						Flags: []cli.Flag{
							&cli.DurationFlag{
								Name:    "older-than",
								Value:   30 * 24 * time.Hour,
								Sources: cli.EnvVars("SPROUT_CACHE_MAX_AGE"),
							},
						},
						Action: func(ctx context.Context, cmd *cli.Command) error {
							conf, err := load(ctx, cmd)
							if err != nil {
								return err
							}
							n, err := conf.Store.Prune(ctx, cmd.Duration("older-than"))
							if err != nil {
								return err
							}
							slog.Default().Info("Pruned response cache", "removed", n)
							return nil
						},
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Default().Error("got error running sprout", "err", err)
		return 1
	}
	return 0
}
