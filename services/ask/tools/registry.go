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
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/config"
)

// Skipped records a tool that was not registered and why.
type Skipped struct {
	ID     string
	Reason string
}

// Deps are the shared collaborators of the tools.
type Deps struct {
	Secrets Secrets

	// HTTPClient is shared by every HTTP tool. Nil builds one with the
	// configured timeout.
	HTTPClient *http.Client

	// Searcher overrides the Weaviate searcher of the community tool.
	Searcher VectorSearcher

	Logger *slog.Logger
}

// Build registers every enabled and configured tool in catalog order:
// slack, docs, community, typesense, metrics agent, meetings. The returned
// catalog is frozen.
func Build(cfg config.ToolsConfig, deps Deps) (*catalog.Catalog, []Skipped, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	has := func(name string) bool { return deps.Secrets != nil && deps.Secrets.Has(name) }

	cat, _ := catalog.New()
	var skipped []Skipped
	skip := func(id, reason string) { skipped = append(skipped, Skipped{ID: id, Reason: reason}) }
	add := func(t catalog.Tool) error { return cat.Register(t) }

	switch {
	case !cfg.Slack.Enabled:
		skip(IDSlack, "disabled")
	case !has(SlackSecret):
		skip(IDSlack, "no slack token")
	default:
		if err := add(NewSlackSearch(client, SlackConfig{
			BaseURL:    cfg.Slack.BaseURL,
			MaxQueries: cfg.Slack.MaxQueries,
			PerQuery:   cfg.Slack.PerQuery,
		}, deps.Secrets, logger)); err != nil {
			return nil, nil, err
		}
	}

	switch {
	case !cfg.Docs.Enabled:
		skip(IDDocs, "disabled")
	case cfg.Docs.IndexPath == "":
		skip(IDDocs, "no index path")
	default:
		idx, err := LoadDocsIndex(cfg.Docs.IndexPath)
		if err != nil {
			skip(IDDocs, err.Error())
			break
		}
		logger.Info("tools: docs index loaded", slog.Int("chunks", idx.Len()))
		if err := add(NewDocsEmbedSearch(idx, cfg.Docs.BaseURL, cfg.Docs.TopK)); err != nil {
			return nil, nil, err
		}
	}

	switch {
	case !cfg.Community.Enabled:
		skip(IDCommunity, "disabled")
	case deps.Searcher != nil:
		if err := add(NewCommunityEmbedSearch(deps.Searcher, cfg.Community.TopK)); err != nil {
			return nil, nil, err
		}
	case cfg.Community.Host == "":
		skip(IDCommunity, "no weaviate host")
	default:
		s, err := NewWeaviateSearcher(WeaviateConfig{
			Host:       cfg.Community.Host,
			Scheme:     cfg.Community.Scheme,
			Class:      cfg.Community.Class,
			HTTPClient: client,
			Secrets:    deps.Secrets,
		})
		if err != nil {
			skip(IDCommunity, err.Error())
			break
		}
		if err := add(NewCommunityEmbedSearch(s, cfg.Community.TopK)); err != nil {
			return nil, nil, err
		}
	}

	switch {
	case !cfg.Typesense.Enabled:
		skip(IDTypesense, "disabled")
	case cfg.Typesense.URL == "" || !has(TypesenseSecret):
		skip(IDTypesense, "no typesense url or key")
	default:
		ts, err := NewTypesenseSearch(client, TypesenseConfig{
			URL:          cfg.Typesense.URL,
			Collection:   cfg.Typesense.Collection,
			MaxResults:   cfg.Typesense.MaxResults,
			FetchLive:    cfg.Typesense.FetchLive,
			MaxPageChars: cfg.Typesense.MaxPageChars,
		}, deps.Secrets, logger)
		if err != nil {
			skip(IDTypesense, err.Error())
			break
		}
		if err := add(ts); err != nil {
			return nil, nil, err
		}
	}

	switch {
	case !cfg.MCP.Enabled:
		skip(IDMCP, "disabled")
	case cfg.MCP.URL == "":
		skip(IDMCP, "no metrics agent url")
	default:
		if err := add(NewMCPQuery(client, cfg.MCP.URL, cfg.MCP.ModelID, deps.Secrets)); err != nil {
			return nil, nil, err
		}
	}

	switch {
	case !cfg.Fathom.Enabled:
		skip(IDFathom, "disabled")
	case !has(FathomSecret):
		skip(IDFathom, "no fathom api key")
	default:
		if err := add(NewFathomMeetings(client, FathomConfig{
			BaseURL:           cfg.Fathom.BaseURL,
			RequestsPerSecond: cfg.Fathom.RequestsPerSecond,
			MaxRetries:        cfg.Fathom.MaxRetries,
			MaxPages:          cfg.Fathom.MaxPages,
		}, deps.Secrets, logger)); err != nil {
			return nil, nil, err
		}
	}

	for _, s := range skipped {
		logger.Info("tools: not registered", slog.String("tool", s.ID), slog.String("reason", s.Reason))
	}
	cat.Freeze()
	return cat, skipped, nil
}
