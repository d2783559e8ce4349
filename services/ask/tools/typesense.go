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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/typesense/typesense-go/v3/typesense"
	"github.com/typesense/typesense-go/v3/typesense/api"
	"github.com/typesense/typesense-go/v3/typesense/api/pointer"
	"golang.org/x/net/html"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/compose"
)

const hierarchyLevels = 7

var hierarchyFields = func() string {
	f := make([]string, 0, hierarchyLevels)
	for i := 0; i < hierarchyLevels; i++ {
		f = append(f, fmt.Sprintf("hierarchy.lvl%d", i))
	}
	return strings.Join(f, ",")
}()

// TypesenseConfig configures TypesenseSearch.
type TypesenseConfig struct {
	URL          string
	Collection   string
	MaxResults   int
	FetchLive    bool
	MaxPageChars int
}

// TypesenseSearch searches the docs site index with one Typesense
// multi_search per n-gram, de-duplicates pages by URL and, when enabled,
// replaces the indexed snippet with the live page text.
type TypesenseSearch struct {
	client  *http.Client
	ts      *typesense.Client
	cfg     TypesenseConfig
	secrets Secrets
	logger  *slog.Logger
}

// NewTypesenseSearch creates the tool. The API key is opened from secrets on
// every request and never held by the client.
func NewTypesenseSearch(client *http.Client, cfg TypesenseConfig, secrets Secrets, logger *slog.Logger) (*TypesenseSearch, error) {
	if cfg.Collection == "" {
		cfg.Collection = "omni-docs"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.MaxPageChars <= 0 {
		cfg.MaxPageChars = 4000
	}
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	apiClient, err := api.NewClientWithResponses(strings.TrimRight(cfg.URL, "/"),
		api.WithHTTPClient(meteredDoer{client: client, tool: IDTypesense}),
		api.WithRequestEditorFn(func(_ context.Context, req *http.Request) error {
			return secrets.With(TypesenseSecret, func(key string) error {
				req.Header.Set(api.APIKeyHeader, key)
				return nil
			})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("typesense: creating client: %w", err)
	}
	return &TypesenseSearch{
		client:  client,
		ts:      typesense.NewClient(typesense.WithAPIClient(apiClient)),
		cfg:     cfg,
		secrets: secrets,
		logger:  logger,
	}, nil
}

// Spec implements catalog.Tool.
func (t *TypesenseSearch) Spec() catalog.Spec {
	return catalog.Spec{
		ID:          IDTypesense,
		Name:        "Docs keyword search",
		Description: "Keyword search over the documentation site with live page content. Args: query (string), max_results (int, optional).",
		Produces:    catalog.KindDocs,
		Needs:       []catalog.Need{catalog.NeedNgrams},
	}
}

// Run implements catalog.Tool.
func (t *TypesenseSearch) Run(ctx context.Context, args catalog.Args, qa *artifacts.QueryArtifacts) (catalog.Result, error) {
	terms := stringsArg(args, compose.ArgNgrams)
	if len(terms) == 0 {
		terms = []string{queryArg(args, qa)}
	}
	limit := intArg(args, "max_results", t.cfg.MaxResults)

	var docs []catalog.Doc
	seen := make(map[string]bool)
	var firstErr error
	for _, term := range terms {
		if len(docs) >= limit {
			break
		}
		hits, err := t.search(ctx, term)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			t.logger.Warn("typesense: search failed", slog.String("term", term), slog.String("error", err.Error()))
			continue
		}
		for _, doc := range hits {
			link, _ := doc["url"].(string)
			if link == "" || seen[link] {
				continue
			}
			seen[link] = true
			content, _ := doc["content"].(string)
			if t.cfg.FetchLive {
				if live, err := t.fetchLive(ctx, link); err == nil && live != "" {
					content = live
				}
			}
			docs = append(docs, catalog.Doc{Text: content, Source: "docs", URL: link, Title: hierarchyTitle(doc)})
			if len(docs) >= limit {
				break
			}
		}
	}
	if len(docs) == 0 && firstErr != nil {
		return catalog.Result{}, firstErr
	}
	return catalog.Result{Kind: catalog.KindDocs, Value: docs, Preview: fmt.Sprintf("typesense:%d", len(docs))}, nil
}

func (t *TypesenseSearch) search(ctx context.Context, term string) ([]map[string]any, error) {
	searches := api.MultiSearchSearchesParameter{Searches: []api.MultiSearchCollectionParameters{{
		Collection:              pointer.String(t.cfg.Collection),
		Q:                       pointer.String(term),
		QueryBy:                 pointer.String(hierarchyFields + ",content"),
		IncludeFields:           pointer.String(hierarchyFields + ",content,anchor,url,type,id"),
		GroupBy:                 pointer.String("url"),
		GroupLimit:              pointer.Int(3),
		SortBy:                  pointer.String("item_priority:desc"),
		SnippetThreshold:        pointer.Int(8),
		HighlightAffixNumTokens: pointer.Int(4),
	}}}

	res, err := t.ts.MultiSearch.Perform(ctx, &api.MultiSearchParams{}, searches)
	if err != nil {
		var he *typesense.HTTPError
		if errors.As(err, &he) {
			return nil, statusError(IDTypesense, he.Status, he.Body)
		}
		return nil, fmt.Errorf("typesense: multi_search: %w", err)
	}
	if len(res.Results) == 0 {
		return nil, nil
	}
	item := res.Results[0]
	if item.Error != nil && *item.Error != "" {
		return nil, fmt.Errorf("typesense: %s", *item.Error)
	}

	var hits []api.SearchResultHit
	if item.GroupedHits != nil {
		for _, g := range *item.GroupedHits {
			hits = append(hits, g.Hits...)
		}
	} else if item.Hits != nil {
		hits = *item.Hits
	}
	out := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		if h.Document != nil {
			out = append(out, *h.Document)
		}
	}
	return out, nil
}

func (t *TypesenseSearch) fetchLive(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; AleutianAsk)")
	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("typesense: live fetch %s: %d", link, resp.StatusCode)
	}
	text, err := HTMLText(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return truncate(text, t.cfg.MaxPageChars), nil
}

// hierarchyTitle joins the non-empty hierarchy levels with " > ".
func hierarchyTitle(doc map[string]any) string {
	parts := make([]string, 0, hierarchyLevels)
	for i := 0; i < hierarchyLevels; i++ {
		if s, ok := doc[fmt.Sprintf("hierarchy.lvl%d", i)].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " > ")
}

// HTMLText returns the visible text of an HTML document with runs of
// whitespace collapsed. Script, style, noscript, template and head content
// is skipped.
func HTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("html: parse: %w", err)
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(b.String()), " "), nil
}
