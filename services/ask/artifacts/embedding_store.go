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

// =============================================================================
// EmbeddingStore: query embedding persistence
// =============================================================================
//
// Query embeddings cost one embedding-service round trip per chunk. Users
// repeat questions, so the vectors are persisted in BadgerDB between restarts.
//
// Storage layout:
//
//	ask/emb/v1/{sha256(model + "\x00" + normalizedQuery)}  →  gob-encoded StoredEmbedding
//	                                                          TTL: 7 days
//
// The model name is part of the hash, so switching EMBEDDING_MODEL makes old
// entries unreachable. They expire through Badger's TTL GC.

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/AleutianAI/AleutianAsk/services/storage/badger"
)

// DefaultStoreTTL is the lifetime of a persisted embedding.
const DefaultStoreTTL = 7 * 24 * time.Hour

// StoreKeyPrefix prefixes every persisted embedding key. Versioned so the
// record format can change without collisions.
const StoreKeyPrefix = "ask/emb/v1/"

// errCacheMiss distinguishes "key not found" from a storage error in Load.
var errCacheMiss = errors.New("cache miss")

// EmbeddingStore persists query embeddings across service restarts.
//
// # Description
//
// Keys are normalized queries (see NormalizeKey). Load returns (nil, nil) on
// a miss. Save failures are non-fatal to callers: the embedding is already in
// memory and is simply recomputed after the next restart.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type EmbeddingStore interface {
	Load(ctx context.Context, key string) (*Embedding, error)
	Save(ctx context.Context, key string, emb Embedding) error
}

// StoredEmbedding is the persisted record. Query and Model are kept so the
// cache can be inspected offline.
type StoredEmbedding struct {
	Query     string
	Model     string
	Chunks    []Chunk
	Vector    []float32
	CreatedAt time.Time
}

// BadgerEmbeddingStore implements EmbeddingStore on a shared BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use. The store does not own the DB.
type BadgerEmbeddingStore struct {
	db     *badgerstore.DB
	model  string
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerEmbeddingStore creates a store backed by db.
//
// # Inputs
//
//   - db: Opened BadgerDB wrapper. Must not be nil.
//   - model: Embedding model name. Part of every key.
//   - ttl: Entry lifetime. Zero selects DefaultStoreTTL.
//   - logger: Logger for hit/miss diagnostics. May be nil.
func NewBadgerEmbeddingStore(db *badgerstore.DB, model string, ttl time.Duration, logger *slog.Logger) *BadgerEmbeddingStore {
	if db == nil {
		panic("NewBadgerEmbeddingStore: db must not be nil")
	}
	if ttl <= 0 {
		ttl = DefaultStoreTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerEmbeddingStore{db: db, model: model, ttl: ttl, logger: logger}
}

// Load implements EmbeddingStore.
func (s *BadgerEmbeddingStore) Load(ctx context.Context, key string) (*Embedding, error) {
	hash := storeHash(s.model, key)

	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(storeKey(hash))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})
	if errors.Is(err, errCacheMiss) {
		s.logger.Debug("embedding store: miss", slog.String("hash", shortHash(hash)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embedding store load: %w", err)
	}

	rec, err := DecodeStoredEmbedding(raw)
	if err != nil {
		return nil, fmt.Errorf("embedding store decode: %w", err)
	}
	s.logger.Debug("embedding store: hit",
		slog.String("hash", shortHash(hash)),
		slog.Int("chunks", len(rec.Chunks)),
	)
	return &Embedding{Chunks: rec.Chunks, Vector: rec.Vector}, nil
}

// Save implements EmbeddingStore. Embeddings without a vector are not stored.
func (s *BadgerEmbeddingStore) Save(ctx context.Context, key string, emb Embedding) error {
	if len(emb.Vector) == 0 {
		return nil
	}
	hash := storeHash(s.model, key)

	raw, err := gobEncode(StoredEmbedding{
		Query:     key,
		Model:     s.model,
		Chunks:    emb.Chunks,
		Vector:    emb.Vector,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("embedding store encode: %w", err)
	}

	err = s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.SetEntry(dgbadger.NewEntry(storeKey(hash), raw).WithTTL(s.ttl))
	})
	if err != nil {
		return fmt.Errorf("embedding store save: %w", err)
	}
	s.logger.Debug("embedding store: saved",
		slog.String("hash", shortHash(hash)),
		slog.Duration("ttl", s.ttl),
	)
	return nil
}

// DecodeStoredEmbedding decodes a persisted record.
func DecodeStoredEmbedding(data []byte) (StoredEmbedding, error) {
	var rec StoredEmbedding
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return StoredEmbedding{}, fmt.Errorf("gob decode: %w", err)
	}
	return rec, nil
}

func storeHash(model, key string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

func storeKey(hash string) []byte {
	return []byte(StoreKeyPrefix + hash)
}

// shortHash returns the first 8 characters of a hash for log display.
func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8] + "..."
	}
	return h
}

func gobEncode(rec StoredEmbedding) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}
