// Package app wires configuration, storage, the AI provider and the
// pipeline together into one application object for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mentora-ai/mentora/internal/answer"
	"github.com/mentora-ai/mentora/internal/chunk"
	"github.com/mentora-ai/mentora/internal/config"
	"github.com/mentora-ai/mentora/internal/conversation"
	"github.com/mentora-ai/mentora/internal/database"
	"github.com/mentora-ai/mentora/internal/knowledge"
	"github.com/mentora-ai/mentora/internal/log"
	"github.com/mentora-ai/mentora/internal/observability"
	"github.com/mentora-ai/mentora/internal/rag"
	"github.com/mentora-ai/mentora/internal/retrieve"
	"github.com/mentora-ai/mentora/internal/vector"
)

// App holds the fully wired application.
type App struct {
	Config *config.Config
	Logger log.Logger
	Engine *rag.Engine

	pool            *pgxpool.Pool
	tracingShutdown func(context.Context) error
}

// Setup loads configuration and wires every component. The returned App
// must be closed to flush traces and release the connection pool.
func Setup(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	// Tracing first, so Genkit's TracerProvider picks up the exporter.
	tracingShutdown := func(context.Context) error { return nil }
	if cfg.Tracing.Enabled {
		tracingShutdown, err = observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			Environment: cfg.Tracing.Environment,
			ServiceName: cfg.Tracing.ServiceName,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
	}

	dsn := cfg.DatabaseURL()
	if err := database.Migrate(dsn); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	pool, err := database.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	g, embedder, err := provideGenkit(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	engine, err := buildEngine(cfg, logger, pool, g, embedder)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &App{
		Config:          cfg,
		Logger:          logger,
		Engine:          engine,
		pool:            pool,
		tracingShutdown: tracingShutdown,
	}, nil
}

// Close flushes traces and releases the connection pool.
func (a *App) Close(ctx context.Context) error {
	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := a.tracingShutdown(flushCtx)
	a.pool.Close()
	return err
}

// provideGenkit initializes Genkit with the configured AI provider and
// returns the embedder registered by that provider.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, ai.Embedder, error) {
	var g *genkit.Genkit
	var embedder ai.Embedder

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		embedder = ollama.Embedder(g, cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with openai provider")
		}
		embedder = genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}

	if embedder == nil {
		return nil, nil, fmt.Errorf("no embedder registered for provider %q", cfg.Provider)
	}
	slog.Info("initialized Genkit",
		"provider", cfg.Provider, "model", cfg.ModelName, "embedder", cfg.EmbedderModel)
	return g, embedder, nil
}

// buildEngine assembles the pipeline components.
func buildEngine(cfg *config.Config, logger log.Logger, pool *pgxpool.Pool, g *genkit.Genkit, embedder ai.Embedder) (*rag.Engine, error) {
	store, err := vector.NewPGStore(pool, cfg.EmbeddingDim, logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	entries, err := knowledge.NewRepository(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge repository: %w", err)
	}
	chunker, err := chunk.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("creating chunker: %w", err)
	}
	retriever, err := retrieve.New(store, entries, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}
	answers, err := answer.New(g, cfg.FullModelName(), logger)
	if err != nil {
		return nil, fmt.Errorf("creating answer synthesizer: %w", err)
	}

	return rag.New(rag.Config{
		Embedder:       embedder,
		Store:          store,
		Entries:        entries,
		Chunker:        chunker,
		Retriever:      retriever,
		Answers:        answers,
		Sessions:       conversation.NewRegistry(cfg.MemoryCapacity),
		Logger:         logger,
		EmbeddingDim:   cfg.EmbeddingDim,
		RetrievalLimit: cfg.RetrievalLimit,
		ScoreThreshold: float32(cfg.ScoreThreshold),
		TokenBudget:    cfg.TokenBudget,
		EmbedTimeout:   cfg.EmbedTimeout,
		SearchTimeout:  cfg.SearchTimeout,
		LLMTimeout:     cfg.LLMTimeout,
	})
}
