// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifacts

import (
	"context"
	"fmt"
)

// Chunker splits query text into pieces to embed.
type Chunker interface {
	Chunk(text string) []string
}

// Embedder turns texts into vectors, one per text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkEmbedder builds an EmbeddingFunc that chunks the query, embeds every
// chunk in one call and uses the first chunk's vector as the query vector.
// A query that yields no chunks has no embedding.
func ChunkEmbedder(chunker Chunker, embedder Embedder) EmbeddingFunc {
	return func(ctx context.Context, query string) (Embedding, error) {
		texts := chunker.Chunk(query)
		if len(texts) == 0 {
			return Embedding{}, nil
		}
		vecs, err := embedder.Embed(ctx, texts)
		if err != nil {
			return Embedding{}, fmt.Errorf("artifacts: embed chunks: %w", err)
		}
		if len(vecs) != len(texts) {
			return Embedding{}, fmt.Errorf("artifacts: embedder returned %d vectors for %d chunks", len(vecs), len(texts))
		}
		chunks := make([]Chunk, len(texts))
		for i, t := range texts {
			chunks[i] = Chunk{Text: t, Embedding: vecs[i]}
		}
		return Embedding{Chunks: chunks, Vector: vecs[0]}, nil
	}
}
