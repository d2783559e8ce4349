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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
)

// DefaultFathomBaseURL is the public Fathom external API.
const DefaultFathomBaseURL = "https://api.fathom.ai/external/v1"

// fathomFilters are the filter keys accepted at the top level of the args as
// well as inside "params".
var fathomFilters = []string{
	"created_after", "created_before", "meeting_type", "participants",
	"calendar_invitees_domains", "include_summary", "include_transcript",
}

type fathomPage struct {
	Items      []map[string]any `json:"items"`
	NextCursor string           `json:"next_cursor"`
}

// FathomConfig configures FathomMeetings.
type FathomConfig struct {
	BaseURL           string
	RequestsPerSecond float64
	MaxRetries        int
	MaxPages          int
}

// FathomMeetings lists meeting records from the Fathom API.
//
// # Description
//
// Follows next_cursor pagination up to MaxPages. Requests are paced by a
// token bucket shared by all calls of the tool. 429 and 5xx responses are
// retried with exponential backoff capped at 8s. When retries run out after
// some pages were read, the meetings read so far are returned with the
// error in the metadata.
//
// # Thread Safety
//
// Safe for concurrent use.
type FathomMeetings struct {
	client  *http.Client
	cfg     FathomConfig
	secrets Secrets
	limiter *rate.Limiter
	logger  *slog.Logger

	// backoff returns the wait before retry n (0-based).
	backoff func(n int) time.Duration
}

// NewFathomMeetings creates the tool.
func NewFathomMeetings(client *http.Client, cfg FathomConfig, secrets Secrets, logger *slog.Logger) *FathomMeetings {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultFathomBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FathomMeetings{
		client:  client,
		cfg:     cfg,
		secrets: secrets,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
		backoff: fathomBackoff,
	}
}

func fathomBackoff(n int) time.Duration {
	d := time.Second << n
	if d > 8*time.Second || d <= 0 {
		d = 8 * time.Second
	}
	return d
}

// Spec implements catalog.Tool.
func (f *FathomMeetings) Spec() catalog.Spec {
	return catalog.Spec{
		ID:   IDFathom,
		Name: "Fathom meetings",
		Description: "List meeting records from the Fathom API. Always limit the number of meetings returned to the smallest set needed to answer the question. " +
			"Prefer recent time windows (e.g., last 7-14 days) unless the question specifies a longer period. " +
			"Args: 'params' object with filters: created_after (ISO 8601), created_before (ISO 8601), " +
			"meeting_type ('external' or 'internal'), participants (string or list), calendar_invitees_domains (list), " +
			"include_summary (bool), include_transcript (bool). Optional 'limit' (int).",
		Produces: catalog.KindJSON,
	}
}

// Run implements catalog.Tool.
func (f *FathomMeetings) Run(ctx context.Context, args catalog.Args, _ *artifacts.QueryArtifacts) (catalog.Result, error) {
	query := FathomQuery(args)
	limit := intArg(args, "limit", 0)

	var meetings []any
	var pageErr error
	cursor := ""
	for page := 0; page < f.cfg.MaxPages; page++ {
		q := cloneValues(query)
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		p, err := f.fetchPage(ctx, q)
		if err != nil {
			pageErr = err
			break
		}
		for _, m := range p.Items {
			meetings = append(meetings, m)
		}
		if limit > 0 && len(meetings) >= limit {
			meetings = meetings[:limit]
			break
		}
		if p.NextCursor == "" {
			break
		}
		cursor = p.NextCursor
	}

	if pageErr != nil && len(meetings) == 0 {
		return catalog.Result{}, pageErr
	}
	if meetings == nil {
		meetings = []any{}
	}
	res := catalog.Result{
		Kind:    catalog.KindJSON,
		Value:   meetings,
		Preview: fmt.Sprintf("fathom meetings: %d found", len(meetings)),
	}
	if pageErr != nil {
		res.Metadata = map[string]any{"error": pageErr.Error()}
	}
	return res, nil
}

func (f *FathomMeetings) fetchPage(ctx context.Context, q url.Values) (*fathomPage, error) {
	endpoint := strings.TrimRight(f.cfg.BaseURL, "/") + "/meetings?" + q.Encode()
	for attempt := 0; ; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fathom: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("fathom: creating request: %w", err)
		}
		var body []byte
		err = f.secrets.With(FathomSecret, func(key string) error {
			req.Header.Set("X-Api-Key", key)
			var derr error
			body, derr = do(f.client, IDFathom, req)
			return derr
		})
		if err == nil {
			var p fathomPage
			if err := json.Unmarshal(body, &p); err != nil {
				return nil, fmt.Errorf("fathom: decoding response: %w", err)
			}
			return &p, nil
		}

		var se *StatusError
		retryable := errors.As(err, &se) && (se.Code == http.StatusTooManyRequests || se.Code >= 500)
		if !retryable {
			return nil, err
		}
		if attempt >= f.cfg.MaxRetries {
			return nil, fmt.Errorf("fathom: max retries reached: %w", err)
		}
		wait := f.backoff(attempt)
		f.logger.Warn("fathom: retrying",
			slog.Int("status", se.Code),
			slog.Duration("wait", wait),
			slog.Int("attempt", attempt+1),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("fathom: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// FathomQuery builds the query string from args: the "params" object plus
// any known filter keys given at the top level. List values use the
// "key[]" form the API expects.
func FathomQuery(args map[string]any) url.Values {
	merged := make(map[string]any)
	if p, ok := args["params"].(map[string]any); ok {
		for k, v := range p {
			merged[k] = v
		}
	}
	for _, k := range fathomFilters {
		if v, ok := args[k]; ok {
			if _, set := merged[k]; !set {
				merged[k] = v
			}
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, k := range keys {
		switch v := merged[k].(type) {
		case nil:
		case []any:
			for _, x := range v {
				q.Add(k+"[]", fmt.Sprint(x))
			}
		case []string:
			for _, x := range v {
				q.Add(k+"[]", x)
			}
		case float64:
			q.Set(k, fmt.Sprintf("%g", v))
		default:
			q.Set(k, fmt.Sprint(v))
		}
	}
	return q
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
