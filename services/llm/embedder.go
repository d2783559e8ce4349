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
	"math"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Ollama Embedding Client
// =============================================================================

const (
	defaultEmbeddingURL   = "http://host.containers.internal:11434/api/embed"
	defaultEmbeddingModel = "nomic-embed-text-v2-moe"

	// embedConcurrency bounds parallel /api/embed calls for one Embed request.
	embedConcurrency = 4
)

// ollamaEmbedReq is the Ollama /api/embed request body.
type ollamaEmbedReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResp is the Ollama /api/embed response body.
type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaEmbedder turns text into unit-normalized embedding vectors through
// Ollama's /api/embed endpoint.
//
// # Description
//
// Vectors are returned unit-normalized so cosine similarity is a plain dot
// product (see Cosine). Each input text is embedded with its own call; calls
// for one Embed request run in parallel up to embedConcurrency.
//
// # Thread Safety
//
// Safe for concurrent use.
type OllamaEmbedder struct {
	url    string
	model  string
	client *http.Client
	logger *slog.Logger
}

// NewOllamaEmbedder creates an embedder.
//
// # Inputs
//
//   - url: /api/embed endpoint. Empty reads EMBEDDING_SERVICE_URL, then the default.
//   - model: Embedding model. Empty reads EMBEDDING_MODEL, then the default.
//   - timeout: Per-call HTTP timeout. Zero means 30s.
//   - logger: Logger for warnings. Nil uses slog.Default().
func NewOllamaEmbedder(url, model string, timeout time.Duration, logger *slog.Logger) *OllamaEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		url = os.Getenv("EMBEDDING_SERVICE_URL")
	}
	if url == "" {
		url = defaultEmbeddingURL
	}
	if model == "" {
		model = os.Getenv("EMBEDDING_MODEL")
	}
	if model == "" {
		model = defaultEmbeddingModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaEmbedder{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Model returns the embedding model name. It is part of persistent cache keys.
func (e *OllamaEmbedder) Model() string { return e.model }

// Embed returns one unit-normalized vector per input text, in input order.
//
// # Outputs
//
//   - [][]float32: Vectors aligned with texts.
//   - error: Non-nil if any text fails to embed. No partial result is returned.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, span := otel.Tracer(chatTracerName).Start(ctx, "llm.OllamaEmbedder.Embed",
		trace.WithAttributes(
			attribute.String("model", e.model),
			attribute.Int("text_count", len(texts)),
		),
	)
	defer span.End()

	start := time.Now()
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.embedOne(gctx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			out[i] = Normalize(vec)
			return nil
		})
	}
	err := g.Wait()
	recordEmbedMetrics(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("embedder: embed failed",
			slog.String("model", e.model),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("embed: %w", err)
	}
	return out, nil
}

// embedOne calls the Ollama /api/embed endpoint for a single text.
func (e *OllamaEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedReq{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, SafeLogString(string(body)))
	}

	var ollamaResp ollamaEmbedResp
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(ollamaResp.Embeddings) == 0 || len(ollamaResp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed service returned empty vector")
	}
	return ollamaResp.Embeddings[0], nil
}

// =============================================================================
// Vector Helpers
// =============================================================================

// Normalize returns a unit-length copy of v. A zero vector is returned as-is.
func Normalize(v []float32) []float32 {
	norm := l2Norm(v)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / float32(norm)
	}
	return out
}

// Cosine returns the cosine similarity of a and b. Zero vectors score 0.
// Mismatched lengths use the shorter prefix.
func Cosine(a, b []float32) float64 {
	na, nb := l2Norm(a), l2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(dotProduct(a, b)) / (na * nb)
}

// l2Norm computes the L2 (Euclidean) norm of a float32 vector.
func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// dotProduct computes the dot product of two float32 vectors.
// Both vectors must have the same length; mismatched lengths use the shorter.
func dotProduct(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
