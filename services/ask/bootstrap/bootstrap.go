// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bootstrap wires configuration, secrets, storage, models and tools
// into a ready Orchestrator. Both the server and the CLI start here.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/config"
	"github.com/AleutianAI/AleutianAsk/services/ask/keywords"
	"github.com/AleutianAI/AleutianAsk/services/ask/orchestrator"
	"github.com/AleutianAI/AleutianAsk/services/ask/tools"
	"github.com/AleutianAI/AleutianAsk/services/llm"
	badgerstore "github.com/AleutianAI/AleutianAsk/services/storage/badger"
)

// Options are the inputs of New.
type Options struct {
	// Source holds the active configuration. Required.
	Source *config.Source

	// Secrets holds API keys. Nil means no secrets.
	Secrets *config.SecretStore

	// Chat overrides the configured chat client.
	Chat llm.ChatClient

	// Tools overrides the tool set built from configuration.
	Tools []catalog.Tool

	Logger *slog.Logger
}

// App is a wired service.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Catalog      *catalog.Catalog
	Cache        *artifacts.Cache
	Skipped      []tools.Skipped

	// Chat is nil when llm.provider is none.
	Chat llm.ChatClient

	db *badgerstore.DB
}

// Close releases the embedding store.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// New builds an App from the current configuration.
//
// # Description
//
// The chat client follows llm.provider ("none" disables planning and
// synthesis). Query n-grams come from the keyword extractor and query
// embeddings from the Ollama embedder over sentence chunks. When
// artifacts.store_path is set, embeddings persist in Badger; an unusable
// store is logged and skipped. Tools are registered from tools.* and the
// secrets.
//
// Settings read here (models, endpoints, store, tools) apply at startup.
// Per-request settings are re-read from Source on every question.
func New(opts Options) (*App, error) {
	if opts.Source == nil || opts.Source.Current() == nil {
		return nil, errors.New("bootstrap: config source is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secrets := opts.Secrets
	if secrets == nil {
		secrets = config.NewSecretStore()
	}
	cfg := opts.Source.Current()
	app := &App{Chat: opts.Chat}

	if app.Chat == nil {
		chat, err := NewChat(cfg.LLM, secrets)
		if err != nil {
			return nil, err
		}
		app.Chat = chat
	}
	if app.Chat == nil {
		logger.Warn("bootstrap: no chat model configured; planning falls back and synthesis is unavailable")
	}

	extractor, err := keywords.NewExtractor(cfg.Keywords)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: keywords: %w", err)
	}

	cacheOpts := artifacts.Options{
		Ngrams:     extractor.ExtractContext,
		Timeout:    cfg.Artifacts.Timeout,
		MaxEntries: cfg.Artifacts.MaxEntries,
		Logger:     logger,
	}
	if cfg.Embedding.URL != "" {
		embedder := llm.NewOllamaEmbedder(cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.Timeout, logger)
		chunker := llm.SentenceChunker{MaxWords: cfg.Embedding.ChunkMaxWords, OverlapWords: cfg.Embedding.ChunkOverlapWords}
		cacheOpts.Embeddings = artifacts.ChunkEmbedder(chunker, embedder)
	}
	if path := cfg.Artifacts.StorePath; path != "" {
		dbCfg := badgerstore.DefaultConfig()
		dbCfg.Path = path
		db, err := badgerstore.OpenDB(dbCfg)
		if err != nil {
			logger.Warn("bootstrap: embedding store unavailable, persistence disabled",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		} else {
			app.db = db
			cacheOpts.Store = artifacts.NewBadgerEmbeddingStore(db, cfg.Embedding.Model, cfg.Artifacts.StoreTTL, logger)
			logger.Info("bootstrap: embedding store opened", slog.String("path", path))
		}
	}
	app.Cache = artifacts.NewCache(cacheOpts)

	if opts.Tools != nil {
		cat, err := catalog.New(opts.Tools...)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("bootstrap: tools: %w", err)
		}
		cat.Freeze()
		app.Catalog = cat
	} else {
		cat, skipped, err := tools.Build(cfg.Tools, tools.Deps{Secrets: secrets, Logger: logger})
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("bootstrap: tools: %w", err)
		}
		app.Catalog, app.Skipped = cat, skipped
	}

	app.Orchestrator, err = orchestrator.New(orchestrator.Deps{
		Catalog: app.Catalog,
		Cache:   app.Cache,
		Chat:    app.Chat,
		Config:  opts.Source,
		Logger:  logger,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	logger.Info("bootstrap: ready",
		slog.Any("tools", app.Catalog.IDs()),
		slog.Int("skipped", len(app.Skipped)),
		slog.Bool("chat", app.Chat != nil),
		slog.Bool("embedding_store", app.db != nil),
	)
	return app, nil
}

// NewChat builds the chat client for cfg, or nil for provider "none".
func NewChat(cfg config.LLMConfig, secrets *config.SecretStore) (llm.ChatClient, error) {
	if cfg.Provider == "none" {
		return nil, nil
	}
	opts := llm.ChatOptions{}
	temp := cfg.Temperature
	opts.Temperature = &temp
	if cfg.MaxTokens > 0 {
		n := cfg.MaxTokens
		opts.MaxTokens = &n
	}
	pc := llm.ProviderConfig{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
		Options:  opts,
	}
	switch cfg.Provider {
	case llm.ProviderLangChainOllama:
	case llm.ProviderAnthropic:
		pc.APIKey = secrets.Reveal(config.SecretAnthropicKey)
	default:
		pc.APIKey = secrets.Reveal(config.SecretOpenAIKey)
	}
	chat, err := llm.NewChatClient(pc)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: chat client: %w", err)
	}
	return chat, nil
}
