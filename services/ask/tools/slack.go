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
	"log/slog"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
)

// SlackConfig configures SlackSearch.
type SlackConfig struct {
	BaseURL    string
	MaxQueries int
	PerQuery   int
}

// SlackSearch searches messages with the Slack search.messages Web API.
//
// The first search uses the full query. Each injected n-gram is then searched
// with the query's exclusion terms (tokens starting with '-') carried over.
// Messages are de-duplicated by permalink.
type SlackSearch struct {
	client  *http.Client
	cfg     SlackConfig
	secrets Secrets
	logger  *slog.Logger
}

// NewSlackSearch creates the tool.
func NewSlackSearch(client *http.Client, cfg SlackConfig, secrets Secrets, logger *slog.Logger) *SlackSearch {
	if cfg.BaseURL == "" {
		cfg.BaseURL = slack.APIURL
	}
	// slack-go appends the method name to the endpoint verbatim.
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = 5
	}
	if cfg.PerQuery <= 0 {
		cfg.PerQuery = 10
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackSearch{client: client, cfg: cfg, secrets: secrets, logger: logger}
}

// Spec implements catalog.Tool.
func (s *SlackSearch) Spec() catalog.Spec {
	return catalog.Spec{
		ID:          IDSlack,
		Name:        "Slack search",
		Description: "Search Slack messages and threads and return relevant snippets. Args: query (string), limit (int, optional).",
		Produces:    catalog.KindDocs,
		Needs:       []catalog.Need{catalog.NeedExclusionFilter, catalog.NeedNgrams},
	}
}

// Run implements catalog.Tool.
func (s *SlackSearch) Run(ctx context.Context, args catalog.Args, qa *artifacts.QueryArtifacts) (catalog.Result, error) {
	query := queryArg(args, qa)
	limit := intArg(args, "limit", s.cfg.PerQuery)

	queries := []string{query}
	filters := exclusionTerms(query)
	for i, ng := range stringsArg(args, "ngrams") {
		if i == s.cfg.MaxQueries {
			break
		}
		queries = append(queries, strings.TrimSpace(ng+" "+filters))
	}

	var docs []catalog.Doc
	seen := make(map[string]bool)
	for i, q := range queries {
		matches, err := s.search(ctx, q)
		if err != nil {
			// The primary query must work; n-gram fan-out is best effort.
			if i == 0 {
				return catalog.Result{}, err
			}
			s.logger.Warn("slack: n-gram search failed", slog.String("error", err.Error()))
			continue
		}
		for _, m := range matches {
			key := m.Permalink
			if key == "" {
				key = m.Channel.Name + "/" + m.Timestamp
			}
			if seen[key] || strings.TrimSpace(m.Text) == "" {
				continue
			}
			seen[key] = true
			title := "slack"
			if m.Channel.Name != "" {
				title = "#" + m.Channel.Name
			}
			docs = append(docs, catalog.Doc{Text: m.Text, Source: "slack", URL: m.Permalink, Title: title})
			if len(docs) == limit {
				break
			}
		}
		if len(docs) == limit {
			break
		}
	}

	return catalog.Result{
		Kind:    catalog.KindDocs,
		Value:   docs,
		Preview: "slack:" + truncate(query, 60),
		Metadata: map[string]any{
			"queries": len(queries),
		},
	}, nil
}

// search runs one search.messages call. The client is built inside the
// secret scope so the token is only held for the duration of the call.
func (s *SlackSearch) search(ctx context.Context, q string) ([]slack.SearchMessage, error) {
	params := slack.NewSearchParameters()
	params.Count = s.cfg.PerQuery

	var res *slack.SearchMessages
	err := s.secrets.With(SlackSecret, func(token string) error {
		api := slack.New(token,
			slack.OptionHTTPClient(meteredDoer{client: s.client, tool: IDSlack}),
			slack.OptionAPIURL(s.cfg.BaseURL),
		)
		var serr error
		res, serr = api.SearchMessagesContext(ctx, q, params)
		return serr
	})
	if err != nil {
		var sce slack.StatusCodeError
		if errors.As(err, &sce) {
			return nil, statusError(IDSlack, sce.Code, []byte(sce.Status))
		}
		return nil, fmt.Errorf("slack: search.messages: %w", err)
	}
	return res.Matches, nil
}

// exclusionTerms returns the query tokens that start with '-'.
func exclusionTerms(q string) string {
	var out []string
	for _, f := range strings.Fields(q) {
		if len(f) > 1 && f[0] == '-' {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}
