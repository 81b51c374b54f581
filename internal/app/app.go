// Package app assembles the service from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/pdfchat/internal/api/handlers"
	"github.com/nikhilbhutani/pdfchat/internal/config"
	"github.com/nikhilbhutani/pdfchat/internal/database"
	"github.com/nikhilbhutani/pdfchat/internal/document"
	"github.com/nikhilbhutani/pdfchat/internal/embedding"
	"github.com/nikhilbhutani/pdfchat/internal/llm"
	"github.com/nikhilbhutani/pdfchat/internal/rag"
	"github.com/nikhilbhutani/pdfchat/internal/session"
	"github.com/nikhilbhutani/pdfchat/internal/vectorstore"
	"github.com/nikhilbhutani/pdfchat/pkg/chunker"
)

type App struct {
	Pipeline *rag.Pipeline
	Chunks   *vectorstore.DocumentStore
	Sessions session.Store
	Checks   map[string]handlers.Pinger

	closers []func()
}

// New connects the configured backends, loads the chunk store and wires
// the pipeline. Close releases whatever New opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Checks: map[string]handlers.Pinger{}}

	backend, err := a.chunkBackend(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Chunks = vectorstore.NewDocumentStore(backend)
	if err := a.Chunks.Reload(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.Checks["chunks"] = a.Chunks
	slog.Info("chunk store loaded", "backend", cfg.Storage.ChunkBackend, "chunks", a.Chunks.Count())

	a.Sessions, err = a.sessionStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Checks["sessions"] = a.Sessions

	c, err := chunker.New(chunker.ChunkOptions{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		MinChars:     cfg.RAG.MinChunkChars,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("chunker: %w", err)
	}

	gw := llm.NewGateway(cfg.LLM)
	if !gw.Configured("") {
		slog.Warn("generation provider not configured", "provider", cfg.LLM.DefaultProvider, "env", cfg.CredentialEnv())
	}

	ocr := document.NewOCRService()
	if !ocr.IsAvailable() {
		slog.Info("OCR unavailable, short pages are used as extracted")
	}

	a.Pipeline = rag.NewPipeline(
		document.NewTextExtractor(ocr, cfg.RAG.OCRMinChars),
		c,
		embedding.NewService(newEmbedder(cfg, gw), cfg.Embedding.Timeout),
		rag.NewGenerator(gw, rag.GeneratorConfig{
			Provider:      cfg.LLM.DefaultProvider,
			Model:         cfg.LLM.DefaultModel,
			Temperature:   cfg.LLM.Temperature,
			MaxTokens:     cfg.LLM.MaxTokens,
			CredentialEnv: cfg.CredentialEnv(),
		}),
		a.Chunks,
		a.Sessions,
		rag.Policy{
			MinChunkWords:        cfg.RAG.MinChunkWords,
			TopK:                 cfg.RAG.TopK,
			MinScore:             cfg.RAG.MinScore,
			MaxChunksPerDocument: cfg.RAG.MaxChunksPerDocument,
		},
	)
	return a, nil
}

func (a *App) chunkBackend(ctx context.Context, cfg *config.Config) (vectorstore.Backend, error) {
	if cfg.Storage.ChunkBackend != config.BackendPostgres {
		return vectorstore.NewJSONFileBackend(cfg.DocumentsFile()), nil
	}

	pool, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.onClose(pool.Close)
	return vectorstore.NewPgVectorBackend(pool), nil
}

func (a *App) sessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	if cfg.Storage.SessionBackend != config.BackendRedis {
		return session.NewJSONFileStore(cfg.SessionsFile()), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.onClose(func() { rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return session.NewRedisStore(rdb, cfg.Redis.KeyPrefix), nil
}

func newEmbedder(cfg *config.Config, gw *llm.Gateway) embedding.Embedder {
	switch cfg.Embedding.Provider {
	case config.ProviderOpenAI, config.ProviderOllama:
		return embedding.NewGatewayEmbedder(gw, cfg.Embedding.Provider, cfg.Embedding.Model)
	default:
		return embedding.NewHuggingFaceEmbedder(cfg.Embedding.HFURL, cfg.Embedding.HFAPIKey)
	}
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
