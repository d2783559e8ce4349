// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainClient implements ChatClient on top of any langchaingo model.
//
// Thread Safety: safe for concurrent use if the wrapped model is.
type LangChainClient struct {
	model llms.Model
	opts  ChatOptions
}

// NewLangChainClient wraps an existing langchaingo model.
func NewLangChainClient(model llms.Model, opts ChatOptions) *LangChainClient {
	return &LangChainClient{model: model, opts: opts}
}

// NewLangChainOpenAI builds a langchaingo OpenAI model. baseURL is the API
// root (for example https://api.openai.com/v1); empty keeps the library default.
func NewLangChainOpenAI(apiKey, model, baseURL string, opts ChatOptions) (*LangChainClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("langchain-openai: API key is missing")
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	lcOpts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if baseURL != "" {
		lcOpts = append(lcOpts, openai.WithBaseURL(strings.TrimSuffix(baseURL, "/chat/completions")))
	}
	m, err := openai.New(lcOpts...)
	if err != nil {
		return nil, fmt.Errorf("langchain-openai: %w", err)
	}
	return NewLangChainClient(m, opts), nil
}

// NewLangChainOllama builds a langchaingo Ollama model.
func NewLangChainOllama(serverURL, model string, opts ChatOptions) (*LangChainClient, error) {
	if model == "" {
		return nil, fmt.Errorf("langchain-ollama: model is required")
	}
	lcOpts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		lcOpts = append(lcOpts, ollama.WithServerURL(serverURL))
	}
	m, err := ollama.New(lcOpts...)
	if err != nil {
		return nil, fmt.Errorf("langchain-ollama: %w", err)
	}
	return NewLangChainClient(m, opts), nil
}

// Chat implements ChatClient.
func (c *LangChainClient) Chat(ctx context.Context, messages []Message) (string, error) {
	if c.model == nil {
		return "", fmt.Errorf("langchain: client is nil")
	}
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(langChainRole(m.Role), m.Content))
	}

	var callOpts []llms.CallOption
	if c.opts.Temperature != nil {
		callOpts = append(callOpts, llms.WithTemperature(float64(*c.opts.Temperature)))
	}
	if c.opts.MaxTokens != nil {
		callOpts = append(callOpts, llms.WithMaxTokens(*c.opts.MaxTokens))
	}

	resp, err := c.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", fmt.Errorf("langchain: generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("langchain: returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func langChainRole(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
