// Package app builds every component from configuration and hands them to
// the HTTP server and the CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"gwi.com/rag-orchestrator/internal/api"
	"gwi.com/rag-orchestrator/internal/auth"
	"gwi.com/rag-orchestrator/internal/chunker"
	"gwi.com/rag-orchestrator/internal/config"
	"gwi.com/rag-orchestrator/internal/conversation"
	"gwi.com/rag-orchestrator/internal/core"
	"gwi.com/rag-orchestrator/internal/embedding"
	"gwi.com/rag-orchestrator/internal/gateway"
	"gwi.com/rag-orchestrator/internal/index"
	"gwi.com/rag-orchestrator/internal/llm"
	"gwi.com/rag-orchestrator/internal/store"
)

type App struct {
	Config        *config.Config
	Logger        arbor.ILogger
	Index         *index.Index
	Conversations *conversation.Store
	Ingestor      *core.Ingestor
	Orchestrator  *core.Orchestrator
	// Retriever and Generator serve /api/retrieve and /api/generate and are
	// always in-process.
	Retriever gateway.Retriever
	Generator gateway.Generator
	Issuer    *auth.Issuer

	db      *sql.DB
	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, logger arbor.ILogger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.Index.Type == "sqlite" || cfg.Conversations.Type == "sqlite" {
		if a.db, err = store.OpenSQLite(cfg.Database.URL); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.db.Close)
	}

	embedder, err := a.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	indexBackend, err := a.newIndexBackend()
	if err != nil {
		return nil, err
	}
	a.Index = index.New(embedder, indexBackend, index.Options{
		Concurrency:   cfg.Embedder.Concurrency,
		RatePerSecond: cfg.Embedder.RatePerSecond,
		Burst:         cfg.Embedder.Burst,
		MinSimilarity: cfg.Index.MinSimilarity,
		Dedupe:        cfg.Index.Dedupe,
	}, logger)
	a.closers = append(a.closers, a.Index.Close)

	convBackend, err := a.newConversationBackend()
	if err != nil {
		return nil, err
	}
	a.Conversations = conversation.NewStore(convBackend, conversation.Options{
		SystemPrompt: cfg.Conversations.SystemPrompt,
		MaxRetries:   cfg.Conversations.MaxRetries,
		Backoff:      cfg.Conversations.Backoff.Duration,
	}, logger)
	a.closers = append(a.closers, a.Conversations.Close)

	a.Ingestor, err = core.NewIngestor(a.Index, chunker.Config{Size: cfg.Chunker.Size, Overlap: cfg.Chunker.Overlap}, logger)
	if err != nil {
		return nil, err
	}

	model, err := a.newModel(ctx)
	if err != nil {
		return nil, err
	}
	a.Retriever = gateway.NewLocalRetriever(a.Index, cfg.Gateways.RetrievalTimeout.Duration)
	a.Generator = gateway.NewLocalGenerator(model, cfg.Gateways.GenerationTimeout.Duration)

	retriever, generator := a.Retriever, a.Generator
	if cfg.Gateways.RetrievalURL != "" {
		retriever = gateway.NewHTTPRetriever(cfg.Gateways.RetrievalURL, cfg.Gateways.Token, cfg.Gateways.RetrievalTimeout.Duration)
	}
	if cfg.Gateways.GenerationURL != "" {
		generator = gateway.NewHTTPGenerator(cfg.Gateways.GenerationURL, cfg.Gateways.Token, cfg.Gateways.GenerationTimeout.Duration)
	}
	a.Orchestrator = core.NewOrchestrator(retriever, generator, a.Conversations, core.OrchestratorOptions{
		TopK:            cfg.Orchestrator.TopK,
		MaxContextChars: cfg.Orchestrator.MaxContextChars,
	}, logger)

	if cfg.Auth.Enabled {
		if a.Issuer, err = auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Duration); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("embedder", embedder.Name()).
		Str("index", cfg.Index.Type).
		Str("conversations", cfg.Conversations.Type).
		Str("generator", model.Name()).
		Bool("remote_retrieval", cfg.Gateways.RetrievalURL != "").
		Bool("remote_generation", cfg.Gateways.GenerationURL != "").
		Bool("auth", a.Issuer != nil).
		Msg("Application initialized")
	return a, nil
}

func (a *App) newEmbedder(ctx context.Context) (embedding.Embedder, error) {
	c := a.Config.Embedder
	switch c.Type {
	case "hashing":
		return embedding.NewHashing(c.Dimensions), nil
	case "ollama":
		return embedding.NewOllama(c.URL, c.Model, c.Timeout.Duration), nil
	case "gemini":
		g, err := embedding.NewGemini(ctx, c.APIKey, c.Model)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	}
	return nil, fmt.Errorf("unknown embedder type %q", c.Type)
}

func (a *App) newIndexBackend() (index.Backend, error) {
	switch a.Config.Index.Type {
	case "sqlite":
		return index.NewSQLiteBackend(a.db)
	case "badger":
		return index.NewBadgerBackend(a.Config.Index.Path, a.Logger)
	case "memory":
		a.Logger.Warn().Msg("Using in-memory index; documents are lost on restart")
		return index.NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unknown index type %q", a.Config.Index.Type)
}

func (a *App) newConversationBackend() (conversation.Backend, error) {
	switch a.Config.Conversations.Type {
	case "sqlite":
		return conversation.NewSQLiteBackend(a.db)
	case "bolt":
		return conversation.NewBoltBackend(a.Config.Conversations.Path)
	case "memory":
		a.Logger.Warn().Msg("Using in-memory conversation store; history is lost on restart")
		return conversation.NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unknown conversations type %q", a.Config.Conversations.Type)
}

func (a *App) newModel(ctx context.Context) (llm.Model, error) {
	c := a.Config.Generation
	opts := llm.Options{Model: c.Model, Temperature: c.Temperature, MaxTokens: c.MaxTokens}

	// a remote generator may be configured without local credentials
	if (c.Type == "gemini" || c.Type == "anthropic") && c.APIKey == "" && a.Config.Gateways.GenerationURL != "" {
		a.Logger.Warn().Str("type", c.Type).Msg("No API key for local generation, /api/generate will answer offline")
		return llm.NewOffline(), nil
	}

	switch c.Type {
	case "offline":
		return llm.NewOffline(), nil
	case "ollama":
		return llm.NewOllama(c.URL, opts, c.Timeout.Duration), nil
	case "gemini":
		g, err := llm.NewGemini(ctx, c.APIKey, opts)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	case "anthropic":
		return llm.NewAnthropic(c.APIKey, opts)
	}
	return nil, fmt.Errorf("unknown generation type %q", c.Type)
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	h := api.NewAPIHandler(api.Services{
		Orchestrator: a.Orchestrator,
		Ingestor:     a.Ingestor,
		Collections:  a.Index,
		Retriever:    a.Retriever,
		Generator:    a.Generator,
	}, a.Config.Server.MaxUploadBytes, a.Logger)
	return api.NewRouter(h, a.Issuer, a.Config.Server.CORSOrigins)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
