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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicAPIVersion     = "2023-06-01"
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1/messages"
	defaultAnthropicModel   = "claude-3-5-sonnet-20240620"

	// anthropicMaxTokens is the completion cap when ChatOptions leaves it unset.
	// The messages API requires one.
	anthropicMaxTokens = 4096

	// System prompts longer than this are marked for prompt caching.
	anthropicCacheThreshold = 1024
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      []systemBlock      `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient talks to the Anthropic messages API over net/http.
//
// # Thread Safety
//
// Safe for concurrent use.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	opts       ChatOptions
}

// NewAnthropicClient builds a client. Empty model and baseURL fall back to
// the defaults.
func NewAnthropicClient(apiKey, model, baseURL string, opts ChatOptions) *AnthropicClient {
	if model == "" {
		model = defaultAnthropicModel
	}
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		opts:       opts,
	}
}

// Chat sends messages and returns the concatenated text blocks of the reply.
//
// # Description
//
// System messages are lifted into the top-level system field, joined in
// order. Thinking blocks in the reply are logged at debug level and dropped.
//
// # Outputs
//
//   - string: The reply text.
//   - error: Transport errors, non-200 statuses, API errors, or a reply
//     without any text block.
func (a *AnthropicClient) Chat(ctx context.Context, messages []Message) (string, error) {
	var system []string
	apiMessages := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		switch strings.ToLower(msg.Role) {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			apiMessages = append(apiMessages, anthropicMessage{Role: RoleAssistant, Content: msg.Content})
		default:
			apiMessages = append(apiMessages, anthropicMessage{Role: RoleUser, Content: msg.Content})
		}
	}

	reqPayload := anthropicRequest{
		Model:       a.model,
		Messages:    apiMessages,
		MaxTokens:   anthropicMaxTokens,
		Temperature: a.opts.Temperature,
	}
	if a.opts.MaxTokens != nil {
		reqPayload.MaxTokens = *a.opts.MaxTokens
	}
	if len(system) > 0 {
		block := systemBlock{Type: "text", Text: strings.Join(system, "\n\n")}
		if len(block.Text) > anthropicCacheThreshold {
			block.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		reqPayload.System = []systemBlock{block}
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("anthropic: marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("anthropic: creating HTTP request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	slog.Debug("Chat via Anthropic", slog.String("model", a.model), slog.Int("messages", len(apiMessages)))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("anthropic: reading response body (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic: API returned status %d: %s", resp.StatusCode, SafeLogString(string(bodyBytes)))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("anthropic: parsing response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("anthropic: API error: %s - %s", apiResp.Error.Type, SafeLogString(apiResp.Error.Message))
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "thinking":
			slog.Debug("Anthropic thinking block", slog.String("thinking", SafeLogString(block.Thinking)))
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic: response has no text block")
	}
	return text.String(), nil
}
