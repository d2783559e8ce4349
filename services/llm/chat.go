// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm holds the language-model collaborators of the ask service:
// chat clients used by planning and synthesis, the embedding client used by
// the query artifact cache, and the sentence chunker that feeds it.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message roles accepted by every ChatClient.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient sends a conversation to a language model and returns the
// assistant's reply text.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// ChatFunc adapts a plain function to ChatClient.
type ChatFunc func(ctx context.Context, messages []Message) (string, error)

// Chat implements ChatClient.
func (f ChatFunc) Chat(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// ChatOptions are generation parameters applied to every call of a client.
// Nil fields leave the provider default in place.
type ChatOptions struct {
	Temperature *float32
	MaxTokens   *int
}

// Provider names understood by NewChatClient.
const (
	ProviderOpenAI          = "openai"
	ProviderLangChainOpenAI = "langchain-openai"
	ProviderLangChainOllama = "langchain-ollama"
	ProviderAnthropic       = "anthropic"
)

// ProviderConfig selects and configures a chat backend.
type ProviderConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Options  ChatOptions
}

// NewChatClient builds the configured chat backend and wraps it with tracing
// and metrics.
//
// # Description
//
// "openai" and "anthropic" use raw net/http clients. The langchain-* providers go
// through langchaingo so any of its backends can be swapped in.
//
// # Inputs
//
//   - cfg: Provider configuration. APIKey is required for the OpenAI and
//     Anthropic providers.
//
// # Outputs
//
//   - ChatClient: Instrumented client. Never nil on success.
//   - error: Non-nil for an unknown provider or missing credentials.
func NewChatClient(cfg ProviderConfig) (ChatClient, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	var inner ChatClient
	switch provider {
	case "", ProviderOpenAI:
		provider = ProviderOpenAI
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: API key is missing")
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
		c := NewOpenAIClientWithConfig(cfg.APIKey, cfg.Model, baseURL, cfg.Options)
		if cfg.Timeout > 0 {
			c.httpClient.Timeout = cfg.Timeout
		}
		inner = c
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic: API key is missing")
		}
		c := NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Options)
		if cfg.Timeout > 0 {
			c.httpClient.Timeout = cfg.Timeout
		}
		inner = c
	case ProviderLangChainOpenAI:
		c, err := NewLangChainOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Options)
		if err != nil {
			return nil, err
		}
		inner = c
	case ProviderLangChainOllama:
		c, err := NewLangChainOllama(cfg.BaseURL, cfg.Model, cfg.Options)
		if err != nil {
			return nil, err
		}
		inner = c
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	return NewInstrumentedChat(inner, provider, cfg.Model), nil
}
