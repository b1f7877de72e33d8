/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tieubaoca/knowledge-be/config"
	"github.com/tieubaoca/knowledge-be/database"
	"github.com/tieubaoca/knowledge-be/service"
	"github.com/tieubaoca/knowledge-be/utils"
)

// app holds the wired services of one command run.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *service.VectorStore
	knowledge *service.KnowledgeService
	files     *service.FileService
	closers   []func() error
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadConfig(viper.ConfigFileUsed())
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	logger, err := utils.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(cmd.Context()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	ai, err := a.newAIService()
	if err != nil {
		return err
	}
	a.closers = append(a.closers, ai.Close)

	backend, err := a.newBackend(ctx)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, backend.Close)

	registry, err := a.newRegistry(ctx)
	if err != nil {
		return err
	}

	embedder := service.NewBatchEmbedder(ai,
		service.WithBatchSize(cfg.Embedding.BatchSize),
		service.WithConcurrency(cfg.Embedding.Concurrency),
		service.WithEmbedTimeout(cfg.RequestTimeout),
		service.WithEmbedderLogger(a.logger),
	)
	a.store = service.NewVectorStore(backend, embedder,
		service.WithRegistry(registry),
		service.WithStoreTimeout(cfg.RequestTimeout),
		service.WithStoreLogger(a.logger),
	)

	chunker, err := service.NewChunker(cfg.Chunker)
	if err != nil {
		return err
	}

	a.knowledge = service.NewKnowledgeService(
		service.NewDocumentService(a.logger),
		chunker,
		a.store,
		ai,
		service.WithTopK(cfg.TopK),
		service.WithGenerateTimeout(cfg.RequestTimeout),
		service.WithLogger(a.logger),
	)
	a.files, err = service.NewFileService(cfg.UploadDir, cfg.MaxUploadSize, a.knowledge, a.logger)
	return err
}

func (a *app) newAIService() (service.AIService, error) {
	switch a.cfg.Provider {
	case "openai":
		c := a.cfg.OpenAI
		if c.APIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai provider")
		}
		return service.NewOpenAIService(c.BaseURL, c.APIKey, c.Model, c.EmbeddingModel), nil
	default:
		c := a.cfg.Gemini
		return service.NewGeminiService(c.APIKeys, c.Model, c.EmbeddingModel, a.logger)
	}
}

func (a *app) newBackend(ctx context.Context) (database.VectorBackend, error) {
	vs := a.cfg.VectorStore
	switch vs.Backend {
	case "memory":
		a.logger.Warn("using the in-memory vector store, data is lost on exit")
		return database.NewMemoryStore(), nil
	case "pgvector":
		if vs.Postgres.DSN == "" {
			return nil, errors.New("DATABASE_URL is required for the pgvector backend")
		}
		return database.NewPgVectorStore(ctx, vs.Postgres.DSN, vs.Postgres.Table, a.logger)
	default:
		return database.NewWeaviateStore(vs.Weaviate, vs.Collection, a.logger)
	}
}

func (a *app) newRegistry(ctx context.Context) (database.UploadRegistry, error) {
	r := a.cfg.Registry
	if r.Backend != "redis" {
		return database.NewMemoryRegistry(), nil
	}
	client, err := database.NewRedisClient(ctx, r.Redis.Addr, r.Redis.Password, r.Redis.DB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return database.NewRedisRegistry(client, r.Redis.Key), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// printJSON writes v to the command output.
func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
