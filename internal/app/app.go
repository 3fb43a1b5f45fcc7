// Package app wires configuration, storage, AI services, and the
// pipelines into a runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitwall-ai/pitwall/internal/chat"
	"github.com/pitwall-ai/pitwall/internal/config"
	"github.com/pitwall-ai/pitwall/internal/database"
	"github.com/pitwall-ai/pitwall/internal/embedding"
	"github.com/pitwall-ai/pitwall/internal/ingest"
	"github.com/pitwall-ai/pitwall/internal/log"
	"github.com/pitwall-ai/pitwall/internal/scrape"
	"github.com/pitwall-ai/pitwall/internal/vectorstore"
)

// App holds the initialized application components.
// Call Close to release resources.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool     *pgxpool.Pool
	Genkit   *genkit.Genkit
	Embedder *embedding.Client
	Store    *vectorstore.Store
	Chat     *chat.Pipeline
}

// Setup creates and initializes the application. On error everything
// already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, embedder, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Embedder, err = embedding.New(embedder, cfg.EmbeddingDimension, cfg.MaxEmbedChars, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	a.Store, err = vectorstore.New(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	a.Chat, err = chat.New(g, a.Embedder, a.Store, chat.Options{
		ModelName:   cfg.FullModelName(),
		Temperature: float64(cfg.Temperature),
		Collection:  cfg.Collection,
		TopK:        cfg.TopK,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chat pipeline: %w", err)
	}

	return a, nil
}

// IngestPipeline builds the offline ingestion pipeline. The scraper is
// constructed here rather than in Setup because only the ingest command
// needs it.
func (a *App) IngestPipeline() (*ingest.Pipeline, error) {
	metric, err := vectorstore.ParseMetric(a.Config.Metric)
	if err != nil {
		return nil, err
	}

	fetcher := scrape.New(
		a.Config.ScrapeUserAgent,
		time.Duration(a.Config.ScrapeTimeoutMS)*time.Millisecond,
		a.Logger,
	)

	return ingest.New(fetcher, a.Embedder, a.Store, ingest.Options{
		Sources:      a.Config.Sources,
		Collection:   a.Config.Collection,
		Dimension:    a.Config.EmbeddingDimension,
		Metric:       metric,
		ChunkSize:    a.Config.ChunkSize,
		ChunkOverlap: a.Config.ChunkOverlap,
		EmbedRPS:     a.Config.EmbedRPS,
	}, a.Logger)
}

// Close releases application resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Pool = nil
	}
}

// providePool runs migrations and opens the connection pool.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := database.Migrate(cfg.MigrateURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return pool, nil
}

// provideGenkit initializes Genkit with the Google AI plugin and resolves
// the configured embedder. GEMINI_API_KEY is read by the plugin from the
// environment.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, ai.Embedder, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, nil, errors.New("initializing genkit with gemini provider")
	}

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	return g, embedder, nil
}
