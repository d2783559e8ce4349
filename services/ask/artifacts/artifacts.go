// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package artifacts computes expensive per-query derivatives (keyword
// n-grams, query chunks and the query embedding) lazily and at most once per
// distinct normalized query.
//
// A Cache owns one entry per normalized query. Each entry guards its two
// computations with sync.Once so concurrent tool steps asking for the same
// artifact share one computation. Failures are logged and memoized as absent.
package artifacts

import (
	"container/list"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "ask.artifacts"

	// DefaultTimeout bounds one artifact computation.
	DefaultTimeout = 20 * time.Second

	// DefaultMaxEntries bounds how many distinct queries the cache remembers.
	DefaultMaxEntries = 1024
)

// Chunk is one embedded piece of the query text.
type Chunk struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Embedding is the output of one embedding computation: the query chunks and
// the vector that represents the whole query.
type Embedding struct {
	Chunks []Chunk
	Vector []float32
}

// NgramFunc extracts keyword n-grams from the raw query text.
type NgramFunc func(ctx context.Context, query string) ([]string, error)

// EmbeddingFunc chunks and embeds the raw query text.
type EmbeddingFunc func(ctx context.Context, query string) (Embedding, error)

// Options configures a Cache. Zero values select defaults; nil functions make
// the corresponding artifact permanently empty.
type Options struct {
	Ngrams     NgramFunc
	Embeddings EmbeddingFunc

	// Store persists embeddings across restarts. Optional.
	Store EmbeddingStore

	Timeout    time.Duration
	MaxEntries int
	Logger     *slog.Logger
}

// Cache memoizes query artifacts keyed by NormalizeKey(query).
//
// # Thread Safety
//
// Safe for concurrent use.
type Cache struct {
	opts Options

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = oldest
}

// entry holds the memoized artifacts of one normalized query. Its lifetime
// ends when it is evicted, invalidated, or the cache is reset.
type entry struct {
	key string

	ngramsOnce sync.Once
	ngrams     []string

	embedOnce sync.Once
	embedding Embedding
}

// NewCache creates an empty cache.
func NewCache(opts Options) *Cache {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		opts:    opts,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// NormalizeKey is the cache key of a query: trimmed and lowercased.
func NormalizeKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// For returns the artifacts handle for query, creating the cache entry on
// first use. Queries that differ only in case or surrounding whitespace share
// one entry. When the cache is full the oldest entry is evicted.
func (c *Cache) For(query string) *QueryArtifacts {
	key := NormalizeKey(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return &QueryArtifacts{raw: query, entry: el.Value.(*entry), cache: c}
	}
	cacheLookups.WithLabelValues("miss").Inc()

	for c.order.Len() >= c.opts.MaxEntries {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
		cacheEvictions.Inc()
	}
	e := &entry{key: key}
	c.entries[key] = c.order.PushBack(e)
	cacheEntries.Set(float64(c.order.Len()))
	return &QueryArtifacts{raw: query, entry: e, cache: c}
}

// Invalidate drops the entry for query. Handles already given out keep their
// memoized values; the next For starts a fresh entry.
func (c *Cache) Invalidate(query string) bool {
	key := NormalizeKey(query)
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.entries, key)
	cacheEntries.Set(float64(c.order.Len()))
	return true
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	cacheEntries.Set(0)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// =============================================================================
// QueryArtifacts
// =============================================================================

// QueryArtifacts is a per-request view over one cache entry.
//
// # Description
//
// Accessors compute on first use and return the memoized value afterwards.
// Computations run detached from the caller's cancellation so a step that is
// cancelled does not poison the shared value for its siblings; they are
// bounded by the cache's timeout instead. A nil *QueryArtifacts returns empty
// values from every accessor.
//
// # Thread Safety
//
// Safe for concurrent use.
type QueryArtifacts struct {
	raw   string
	entry *entry
	cache *Cache
}

// Query returns the raw query text the handle was created with.
func (qa *QueryArtifacts) Query() string {
	if qa == nil {
		return ""
	}
	return qa.raw
}

// Ngrams returns the keyword n-grams of the query, or nil when unavailable.
func (qa *QueryArtifacts) Ngrams(ctx context.Context) []string {
	if qa == nil {
		return nil
	}
	e := qa.entry
	e.ngramsOnce.Do(func() {
		fn := qa.cache.opts.Ngrams
		if fn == nil {
			return
		}
		cctx, span, cancel := qa.cache.startCompute(ctx, "ngrams")
		defer cancel()
		defer span.End()

		out, err := fn(cctx, qa.raw)
		qa.cache.finishCompute(span, "ngrams", err)
		if err != nil {
			return
		}
		e.ngrams = out
	})
	return e.ngrams
}

// Chunks returns the embedded query chunks, or nil when unavailable.
func (qa *QueryArtifacts) Chunks(ctx context.Context) []Chunk {
	if qa == nil {
		return nil
	}
	qa.ensureEmbedding(ctx)
	return qa.entry.embedding.Chunks
}

// Embedding returns the query vector, or nil when unavailable.
func (qa *QueryArtifacts) Embedding(ctx context.Context) []float32 {
	if qa == nil {
		return nil
	}
	qa.ensureEmbedding(ctx)
	return qa.entry.embedding.Vector
}

func (qa *QueryArtifacts) ensureEmbedding(ctx context.Context) {
	e := qa.entry
	e.embedOnce.Do(func() {
		c := qa.cache
		if c.opts.Embeddings == nil && c.opts.Store == nil {
			return
		}
		cctx, span, cancel := c.startCompute(ctx, "embedding")
		defer cancel()
		defer span.End()

		if c.opts.Store != nil {
			stored, err := c.opts.Store.Load(cctx, e.key)
			if err != nil {
				c.opts.Logger.Warn("artifacts: embedding store load failed",
					slog.String("error", err.Error()),
				)
			} else if stored != nil {
				span.SetAttributes(attribute.Bool("store_hit", true))
				storeLookups.WithLabelValues("hit").Inc()
				e.embedding = *stored
				return
			}
			storeLookups.WithLabelValues("miss").Inc()
		}
		if c.opts.Embeddings == nil {
			return
		}

		out, err := c.opts.Embeddings(cctx, qa.raw)
		c.finishCompute(span, "embedding", err)
		if err != nil {
			return
		}
		e.embedding = out

		if c.opts.Store != nil && len(out.Vector) > 0 {
			if err := c.opts.Store.Save(cctx, e.key, out); err != nil {
				c.opts.Logger.Warn("artifacts: embedding store save failed",
					slog.String("error", err.Error()),
				)
			}
		}
	})
}

func (c *Cache) startCompute(ctx context.Context, artifact string) (context.Context, trace.Span, context.CancelFunc) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
	cctx, span := otel.Tracer(tracerName).Start(cctx, "artifacts.compute",
		trace.WithAttributes(attribute.String("artifact", artifact)),
	)
	return cctx, span, cancel
}

func (c *Cache) finishCompute(span trace.Span, artifact string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		computations.WithLabelValues(artifact, "error").Inc()
		c.opts.Logger.Warn("artifacts: computation failed, treating as absent",
			slog.String("artifact", artifact),
			slog.String("error", err.Error()),
		)
		return
	}
	computations.WithLabelValues(artifact, "ok").Inc()
}
