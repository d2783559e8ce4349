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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	badgerstore "github.com/AleutianAI/AleutianAsk/services/storage/badger"
)

func openTestDB(t *testing.T) *badgerstore.DB {
	t.Helper()
	db, err := badgerstore.OpenDB(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBadgerEmbeddingStore_RoundTrip(t *testing.T) {
	store := NewBadgerEmbeddingStore(openTestDB(t), "nomic", 0, nil)
	ctx := context.Background()

	miss, err := store.Load(ctx, "how many users")
	require.NoError(t, err)
	assert.Nil(t, miss)

	emb := Embedding{
		Chunks: []Chunk{{Text: "how many users", Embedding: []float32{0.6, 0.8}}},
		Vector: []float32{0.6, 0.8},
	}
	require.NoError(t, store.Save(ctx, "how many users", emb))

	got, err := store.Load(ctx, "how many users")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, emb, *got)
}

func TestBadgerEmbeddingStore_ModelIsPartOfKey(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := NewBadgerEmbeddingStore(db, "model-a", 0, nil)
	b := NewBadgerEmbeddingStore(db, "model-b", 0, nil)
	require.NoError(t, a.Save(ctx, "q", Embedding{Vector: []float32{1}}))

	got, err := b.Load(ctx, "q")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBadgerEmbeddingStore_SkipsEmptyVector(t *testing.T) {
	store := NewBadgerEmbeddingStore(openTestDB(t), "m", 0, nil)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "q", Embedding{}))
	got, err := store.Load(ctx, "q")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBadgerEmbeddingStore_ServesCache(t *testing.T) {
	store := NewBadgerEmbeddingStore(openTestDB(t), "m", 0, nil)
	ctx := context.Background()
	calls := 0
	build := func(ctx context.Context, q string) (Embedding, error) {
		calls++
		return Embedding{Vector: []float32{1, 2}}, nil
	}

	NewCache(Options{Embeddings: build, Store: store}).For("Q").Embedding(ctx)
	// A fresh cache simulates a restart.
	got := NewCache(Options{Embeddings: build, Store: store}).For("q").Embedding(ctx)

	assert.Equal(t, []float32{1, 2}, got)
	assert.Equal(t, 1, calls)
}
