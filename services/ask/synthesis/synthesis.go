// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package synthesis writes the final answer from normalized evidence.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAsk/services/ask/evidence"
	"github.com/AleutianAI/AleutianAsk/services/llm"
)

const tracerName = "ask.synthesis"

// InsufficientContextAnswer is returned when there is no usable evidence.
// The model is not called in that case.
const InsufficientContextAnswer = "I don't have supporting context to answer yet. " +
	"Please include relevant Slack messages, docs, Community, or MCP results."

// ErrNoChatClient is returned by Answer when evidence exists but no chat
// client is configured.
var ErrNoChatClient = errors.New("synthesis: no chat client configured")

// DefaultTimeout bounds one synthesis call.
const DefaultTimeout = 60 * time.Second

const systemPrompt = "You are an AI assistant for Omni Analytics. " +
	"Use ONLY the provided context. If the context is insufficient, say exactly what is missing."

// Config configures a Synthesizer.
type Config struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Synthesizer answers questions from documents.
//
// # Thread Safety
//
// Safe for concurrent use if the chat client is.
type Synthesizer struct {
	chat    llm.ChatClient
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Synthesizer. chat may be nil; Answer then only succeeds for
// empty evidence.
func New(chat llm.ChatClient, cfg Config) *Synthesizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Synthesizer{chat: chat, timeout: cfg.Timeout, logger: cfg.Logger}
}

// Answer writes an answer to query using only docs.
//
// # Description
//
// Documents with blank content are ignored. When nothing remains the fixed
// InsufficientContextAnswer is returned without calling the model.
//
// # Outputs
//
//   - string: The answer.
//   - error: ErrNoChatClient, or the wrapped chat error.
func (s *Synthesizer) Answer(ctx context.Context, query string, docs []evidence.Doc) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "synthesis.Answer")
	defer span.End()

	material := BuildContext(docs)
	span.SetAttributes(
		attribute.Int("synthesis.docs", len(docs)),
		attribute.Int("synthesis.context_len", len(material)),
	)
	if strings.TrimSpace(material) == "" {
		s.logger.Info("synthesis: no usable evidence", slog.Int("docs", len(docs)))
		return InsufficientContextAnswer, nil
	}
	if s.chat == nil {
		span.SetStatus(codes.Error, "no chat client")
		return "", ErrNoChatClient
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	answer, err := s.chat.Chat(cctx, BuildMessages(query, material))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		return "", fmt.Errorf("synthesis: chat: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// BuildContext renders docs as "<source> | <title> (<url>):\n<content>"
// blocks separated by blank lines. Docs with blank content are skipped.
func BuildContext(docs []evidence.Doc) string {
	blocks := make([]string, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		title := d.Title
		if title == "" {
			title = d.Source
		}
		if title == "" {
			title = "doc"
		}
		blocks = append(blocks, fmt.Sprintf("%s | %s (%s):\n%s", d.Source, title, d.URL, d.Content))
	}
	return strings.Join(blocks, "\n\n")
}

// BuildMessages renders the synthesis prompt.
func BuildMessages(query, material string) []llm.Message {
	user := "Important Instructions:\n" +
		"- Use only the provided context. Do not hallucinate.\n" +
		"- Cite where facts come from (Docs / Community / Slack / MCP) using the provided source labels.\n" +
		"- Follow the structure: Answer, Source Highlights, Unanswered Questions.\n" +
		"\n---\n\n" +
		"User Question:\n" + query + "\n\n" +
		"---\n\n" +
		"Available Information:\n" + material + "\n\n" +
		"---\n\n" +
		"Answer Format:\n" +
		"1) Answer (concise)\n" +
		"2) Source Highlights (bullet key facts)\n" +
		"3) Unanswered Questions (only if gaps remain)\n"
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: user},
	}
}
