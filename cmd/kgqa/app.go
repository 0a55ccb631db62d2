package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Divas-Gupta30/kgqa/internal/config"
	"github.com/Divas-Gupta30/kgqa/internal/keywords"
	"github.com/Divas-Gupta30/kgqa/internal/llm"
	"github.com/Divas-Gupta30/kgqa/internal/logger"
	"github.com/Divas-Gupta30/kgqa/internal/metrics"
	"github.com/Divas-Gupta30/kgqa/internal/processing"
	"github.com/Divas-Gupta30/kgqa/internal/qa"
	"github.com/Divas-Gupta30/kgqa/internal/server"
	"github.com/Divas-Gupta30/kgqa/internal/storage"
)

// app holds the wired dependencies of one process.
type app struct {
	cfg          *config.Config
	orchestrator *qa.Orchestrator
	metrics      *metrics.Metrics
	checks       map[string]server.HealthCheck
	closers      []func(context.Context)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New(), checks: make(map[string]server.HealthCheck)}
	if err := a.wire(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	retriever, err := a.openGraph(ctx)
	if err != nil {
		return err
	}

	if client := storage.NewRedisClient(ctx, storage.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}); client != nil {
		a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		a.closers = append(a.closers, closeRedis(client))
		retriever = storage.NewCachedRetriever(retriever, client,
			storage.WithTTL(cfg.Redis.TTL),
			storage.WithCacheObserver(a.metrics),
		)
	}

	model, err := llm.NewModel(llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return err
	}
	client := llm.NewClient(model, llm.Options{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  uint64(cfg.LLM.MaxRetries),
	})

	a.orchestrator = qa.NewOrchestrator(keywords.New(), retriever, client,
		qa.WithMaxResults(cfg.QA.MaxResults),
		qa.WithRecorder(a.metrics),
	)
	logger.FromContext(ctx).Info("Workflow ready",
		"backend", cfg.Graph.Backend, "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	return nil
}

// openGraph connects the configured backend and registers its health check
// and closer.
func (a *app) openGraph(ctx context.Context) (storage.Retriever, error) {
	switch a.cfg.Graph.Backend {
	case storage.BackendNeo4j:
		store, err := openNeo4j(ctx, a.cfg)
		if err != nil {
			return nil, err
		}
		a.checks["neo4j"] = store.Ping
		a.closers = append(a.closers, func(ctx context.Context) { _ = store.Close(ctx) })
		return store, nil
	case storage.BackendPostgres:
		pool, err := storage.NewPool(ctx, a.cfg.Graph.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.checks["postgres"] = pool.Ping
		a.closers = append(a.closers, func(context.Context) { pool.Close() })
		return newPostgresStore(pool, a.cfg)
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownBackend, a.cfg.Graph.Backend)
	}
}

func openNeo4j(ctx context.Context, cfg *config.Config) (*storage.Neo4jStore, error) {
	return storage.NewNeo4jStore(ctx, storage.Neo4jConfig{
		URI:      cfg.Graph.Neo4jURI,
		User:     cfg.Graph.Neo4jUser,
		Password: cfg.Graph.Neo4jPassword,
		Database: cfg.Graph.Neo4jDatabase,
	})
}

func newPostgresStore(pool *pgxpool.Pool, cfg *config.Config) (*storage.PostgresStore, error) {
	var embedder storage.QueryEmbedder
	if cfg.Graph.Embeddings {
		emb, err := processing.NewOllamaEmbedder(cfg.LLM.EmbeddingURL, cfg.LLM.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		embedder = emb
	}
	return storage.NewPostgresStore(pool, embedder), nil
}

func closeRedis(client *redis.Client) func(context.Context) {
	return func(context.Context) { _ = client.Close() }
}

func (a *app) server() *server.Server {
	opts := []server.Option{
		server.WithObserver(a.metrics),
		server.WithRequestTimeout(a.cfg.Server.RequestTimeout),
	}
	for name, check := range a.checks {
		opts = append(opts, server.WithHealthCheck(name, check))
	}
	return server.New(a.orchestrator, opts...)
}

// Close releases connections in reverse order of opening.
func (a *app) Close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}

// initSchema creates backend indexes or tables without touching the LLM.
func initSchema(ctx context.Context, cfg *config.Config) error {
	log := logger.FromContext(ctx)
	switch cfg.Graph.Backend {
	case storage.BackendNeo4j:
		store, err := openNeo4j(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close(context.WithoutCancel(ctx))
		if err := store.EnsureIndexes(ctx); err != nil {
			log.Warn("Some indexes could not be created", "error", err)
		}
		return nil
	case storage.BackendPostgres:
		pool, err := storage.NewPool(ctx, cfg.Graph.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		return storage.NewPostgresStore(pool, nil).CreateTables(ctx)
	default:
		return fmt.Errorf("%w: %q", storage.ErrUnknownBackend, cfg.Graph.Backend)
	}
}
