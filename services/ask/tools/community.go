// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/compose"
)

// VectorSearcher finds documents near an embedding.
type VectorSearcher interface {
	NearVector(ctx context.Context, vec []float32, k int) ([]catalog.Doc, error)
}

// WeaviateConfig configures WeaviateSearcher.
type WeaviateConfig struct {
	Host   string
	Scheme string
	Class  string

	// HTTPClient carries requests; nil uses the weaviate client's default.
	HTTPClient *http.Client

	// Secrets, when it holds WeaviateSecret, authenticates every request
	// with a bearer token opened only for that request.
	Secrets Secrets
}

// WeaviateSearcher runs nearVector GraphQL queries against one class whose
// objects carry text, title and url properties.
type WeaviateSearcher struct {
	client *weaviate.Client
	class  string
}

// NewWeaviateSearcher creates a searcher. It does not contact the server.
func NewWeaviateSearcher(cfg WeaviateConfig) (*WeaviateSearcher, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("community: weaviate host is required")
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	wcfg := weaviate.Config{Host: cfg.Host, Scheme: cfg.Scheme, ConnectionClient: cfg.HTTPClient}
	if cfg.Secrets != nil && cfg.Secrets.Has(WeaviateSecret) {
		base := http.DefaultTransport
		hc := &http.Client{}
		if cfg.HTTPClient != nil {
			*hc = *cfg.HTTPClient
			if cfg.HTTPClient.Transport != nil {
				base = cfg.HTTPClient.Transport
			}
		}
		hc.Transport = &bearerTransport{base: base, secrets: cfg.Secrets, name: WeaviateSecret}
		wcfg.ConnectionClient = hc
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("community: weaviate client: %w", err)
	}
	return &WeaviateSearcher{client: client, class: cfg.Class}, nil
}

// NearVector implements VectorSearcher.
func (w *WeaviateSearcher) NearVector(ctx context.Context, vec []float32, k int) ([]catalog.Doc, error) {
	fields := []graphql.Field{
		{Name: "text"},
		{Name: "title"},
		{Name: "url"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}
	near := w.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	res, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(fields...).
		WithNearVector(near).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("community: weaviate query: %w", err)
	}
	if len(res.Errors) > 0 {
		msgs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("community: weaviate query: %s", strings.Join(msgs, "; "))
	}

	get, _ := res.Data["Get"].(map[string]any)
	objs, _ := get[w.class].([]any)
	docs := make([]catalog.Doc, 0, len(objs))
	for _, o := range objs {
		m, ok := o.(map[string]any)
		if !ok {
			continue
		}
		text, _ := m["text"].(string)
		if strings.TrimSpace(text) == "" {
			continue
		}
		title, _ := m["title"].(string)
		link, _ := m["url"].(string)
		docs = append(docs, catalog.Doc{Text: text, Source: "community", URL: link, Title: title})
	}
	return docs, nil
}

// CommunityEmbedSearch is semantic search over community forum posts.
type CommunityEmbedSearch struct {
	searcher VectorSearcher
	topK     int
}

// NewCommunityEmbedSearch creates the tool.
func NewCommunityEmbedSearch(searcher VectorSearcher, topK int) *CommunityEmbedSearch {
	if topK <= 0 {
		topK = 5
	}
	return &CommunityEmbedSearch{searcher: searcher, topK: topK}
}

// Spec implements catalog.Tool.
func (c *CommunityEmbedSearch) Spec() catalog.Spec {
	return catalog.Spec{
		ID:          IDCommunity,
		Name:        "Community semantic search",
		Description: "Semantic search over community forum posts and answers. Args: query (string), top_k (int, optional).",
		Produces:    catalog.KindDocs,
		Needs:       []catalog.Need{catalog.NeedEmbedding},
	}
}

// Run implements catalog.Tool. A missing query embedding yields no documents.
func (c *CommunityEmbedSearch) Run(ctx context.Context, args catalog.Args, qa *artifacts.QueryArtifacts) (catalog.Result, error) {
	vec := vectorArg(args, compose.ArgQueryEmbedding)
	if len(vec) == 0 {
		return catalog.Result{Kind: catalog.KindDocs, Value: []catalog.Doc{}, Preview: "community_embed:no-embedding"}, nil
	}
	docs, err := c.searcher.NearVector(ctx, vec, intArg(args, "top_k", c.topK))
	if err != nil {
		return catalog.Result{}, err
	}
	return catalog.Result{Kind: catalog.KindDocs, Value: docs, Preview: fmt.Sprintf("community_embed:%d", len(docs))}, nil
}

// bearerTransport sets "Authorization: Bearer <secret>" on each request,
// opening the secret only for the duration of the round trip.
type bearerTransport struct {
	base    http.RoundTripper
	secrets Secrets
	name    string
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := t.secrets.With(t.name, func(token string) error {
		r := req.Clone(req.Context())
		r.Header.Set("Authorization", "Bearer "+token)
		var err error
		resp, err = t.base.RoundTrip(r)
		return err
	})
	return resp, err
}
