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
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/compose"
	"github.com/AleutianAI/AleutianAsk/services/ask/config"
)

func secrets(kv ...string) *config.SecretStore {
	s := config.NewSecretStore()
	for i := 0; i+1 < len(kv); i += 2 {
		s.Set(kv[i], kv[i+1])
	}
	return s
}

func rawQuery(q string) *artifacts.QueryArtifacts {
	return artifacts.NewCache(artifacts.Options{}).For(q)
}

func docsOf(t *testing.T, res catalog.Result) []catalog.Doc {
	t.Helper()
	require.Equal(t, catalog.KindDocs, res.Kind)
	docs, ok := res.Value.([]catalog.Doc)
	require.True(t, ok, "value is %T", res.Value)
	return docs
}

// =============================================================================
// Slack
// =============================================================================

func TestSlackSearch_FanOutAndDedupe(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.messages", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "xoxp-test", r.FormValue("token"))
		assert.Equal(t, "", r.FormValue("sort"), "score is the default sort")
		q := r.FormValue("query")
		mu.Lock()
		queries = append(queries, q)
		mu.Unlock()

		matches := []map[string]any{
			{"text": "reset via settings", "permalink": "https://slack/p1", "ts": "1.1", "channel": map[string]any{"name": "support"}},
			{"text": "  ", "permalink": "https://slack/blank"},
		}
		if strings.HasPrefix(q, "dashboard") {
			matches = append(matches, map[string]any{"text": "dashboards reload nightly", "permalink": "https://slack/p2"})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "messages": map[string]any{"matches": matches}})
	}))
	defer srv.Close()

	tool := NewSlackSearch(srv.Client(), SlackConfig{BaseURL: srv.URL, MaxQueries: 2}, secrets(SlackSecret, "xoxp-test"), nil)
	res, err := tool.Run(context.Background(), catalog.Args{
		"query":  "reset dashboard -in:leadership -github",
		"ngrams": []string{"dashboard", "reset", "ignored"},
	}, rawQuery("reset dashboard"))
	require.NoError(t, err)

	docs := docsOf(t, res)
	require.Len(t, docs, 2)
	assert.Equal(t, catalog.Doc{Text: "reset via settings", Source: "slack", URL: "https://slack/p1", Title: "#support"}, docs[0])
	assert.Equal(t, catalog.Doc{Text: "dashboards reload nightly", Source: "slack", URL: "https://slack/p2", Title: "slack"}, docs[1])
	assert.Equal(t, []string{
		"reset dashboard -in:leadership -github",
		"dashboard -in:leadership -github",
		"reset -in:leadership -github",
	}, queries)
	assert.Equal(t, 3, res.Metadata["queries"])
}

func TestSlackSearch_NgramFailureIsBestEffort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("query") != "primary" {
			_, _ = w.Write([]byte(`{"ok":false,"error":"ratelimited"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"messages":{"matches":[{"text":"hit","permalink":"https://slack/p"}]}}`))
	}))
	defer srv.Close()

	tool := NewSlackSearch(srv.Client(), SlackConfig{BaseURL: srv.URL + "/"}, secrets(SlackSecret, "xoxp-test"), nil)
	res, err := tool.Run(context.Background(), catalog.Args{"query": "primary", "ngrams": []string{"other"}}, rawQuery("primary"))
	require.NoError(t, err)
	require.Len(t, docsOf(t, res), 1)
}

func TestSlackSearch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"invalid_auth"}`))
	}))
	defer srv.Close()

	tool := NewSlackSearch(srv.Client(), SlackConfig{BaseURL: srv.URL}, secrets(SlackSecret, "bad"), nil)
	_, err := tool.Run(context.Background(), catalog.Args{"query": "q"}, rawQuery("q"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_auth")
	assert.NotContains(t, err.Error(), "bad")

	noToken := NewSlackSearch(srv.Client(), SlackConfig{BaseURL: srv.URL}, secrets(), nil)
	_, err = noToken.Run(context.Background(), catalog.Args{"query": "q"}, rawQuery("q"))
	assert.Error(t, err)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	_, err = NewSlackSearch(down.Client(), SlackConfig{BaseURL: down.URL}, secrets(SlackSecret, "t"), nil).
		Run(context.Background(), catalog.Args{"query": "q"}, rawQuery("q"))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, IDSlack, se.Tool)
}

func TestExclusionTerms(t *testing.T) {
	assert.Equal(t, "-in:a -b", exclusionTerms("how - to -in:a x -b"))
	assert.Empty(t, exclusionTerms("plain query"))
}

// =============================================================================
// Docs index
// =============================================================================

func writeIndex(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	lines := []string{
		`{"chunk_text":"Reset a dashboard","embedding":[1,0,0],"metadata":{"path":"./docs/dashboards/reset.md","title":"Reset"}}`,
		`{"chunk_text":"Billing overview","embedding":[0,1,0],"metadata":{"path":"./docs/billing.md"}}`,
		`not json`,
		`{"chunk_text":"no vector"}`,
		`{"chunk_text":"Dashboards and tiles","embedding":[0.8,0.2,0],"metadata":{"path":"./docs/dashboards/index.md"}}`,
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs-000.jsonl"), []byte(strings.Join(lines, "\n")), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.json"),
		[]byte(`[{"chunk_text":"Extra","embedding":[0,0,1],"metadata":{}}]`), 0o600))
	return dir
}

func TestDocsIndex_LoadAndSearch(t *testing.T) {
	idx, err := LoadDocsIndex(writeIndex(t))
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len())

	hits := idx.Search([]float32{1, 0, 0}, 2)
	require.Len(t, hits, 2)
	assert.Equal(t, "Reset a dashboard", hits[0].Text)
	assert.Equal(t, "Dashboards and tiles", hits[1].Text)
	assert.Nil(t, idx.Search(nil, 2))

	_, err = LoadDocsIndex(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestDocURL(t *testing.T) {
	assert.Equal(t, "https://docs.omni.co/dashboards/reset",
		DocURL("https://docs.omni.co/", map[string]any{"path": "./docs/dashboards/reset.md"}))
	assert.Equal(t, "https://d/x", DocURL("https://d", map[string]any{"path": "x.md"}))
	assert.Empty(t, DocURL("https://d", nil))
}

func TestDocsEmbedSearch_Run(t *testing.T) {
	idx, err := LoadDocsIndex(writeIndex(t))
	require.NoError(t, err)
	tool := NewDocsEmbedSearch(idx, "", 1)

	res, err := tool.Run(context.Background(), catalog.Args{compose.ArgQueryEmbedding: []any{0.0, 1.0, 0.0}}, nil)
	require.NoError(t, err)
	docs := docsOf(t, res)
	require.Len(t, docs, 1)
	assert.Equal(t, catalog.Doc{Text: "Billing overview", Source: "docs", URL: "https://docs.omni.co/billing"}, docs[0])

	res, err = tool.Run(context.Background(), catalog.Args{}, nil)
	require.NoError(t, err)
	assert.Empty(t, docsOf(t, res))
}

// =============================================================================
// Community
// =============================================================================

type fakeSearcher struct {
	gotK int
}

func (f *fakeSearcher) NearVector(ctx context.Context, vec []float32, k int) ([]catalog.Doc, error) {
	f.gotK = k
	return []catalog.Doc{{Text: "use the API", Source: "community", Title: "Thread"}}, nil
}

func TestCommunityEmbedSearch_Run(t *testing.T) {
	fs := &fakeSearcher{}
	tool := NewCommunityEmbedSearch(fs, 0)

	res, err := tool.Run(context.Background(), catalog.Args{compose.ArgQueryEmbedding: []float32{1, 0}, "top_k": 3.0}, nil)
	require.NoError(t, err)
	assert.Len(t, docsOf(t, res), 1)
	assert.Equal(t, 3, fs.gotK)

	res, err = tool.Run(context.Background(), catalog.Args{}, nil)
	require.NoError(t, err)
	assert.Empty(t, docsOf(t, res))
}

func TestWeaviateSearcher_NearVector(t *testing.T) {
	var body string
	var graphqlCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer wk-secret", r.Header.Get("Authorization"), "path %s", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/meta":
			_, _ = w.Write([]byte(`{"version":"1.25.0"}`))
		case "/v1/graphql":
			graphqlCalls.Add(1)
			raw, _ := io.ReadAll(r.Body)
			body = string(raw)
			_, _ = w.Write([]byte(`{"data":{"Get":{"CommunityPost":[
				{"text":"Try the schedule tab","title":"Schedules","url":"https://community/t/1","_additional":{"distance":0.1}},
				{"text":"","title":"empty"}
			]}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := NewWeaviateSearcher(WeaviateConfig{
		Host:       strings.TrimPrefix(srv.URL, "http://"),
		Scheme:     "http",
		Class:      "CommunityPost",
		HTTPClient: srv.Client(),
		Secrets:    secrets(WeaviateSecret, "wk-secret"),
	})
	require.NoError(t, err)

	docs, err := s.NearVector(context.Background(), []float32{0.5, 0.5}, 4)
	require.NoError(t, err)
	assert.Equal(t, []catalog.Doc{{Text: "Try the schedule tab", Source: "community", URL: "https://community/t/1", Title: "Schedules"}}, docs)
	assert.Equal(t, int32(1), graphqlCalls.Load())
	assert.Contains(t, body, "nearVector")
	assert.Contains(t, body, "CommunityPost")
}

func TestBearerTransport_OpensSecretPerRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	}))
	defer srv.Close()

	store := secrets(WeaviateSecret, "first")
	hc := &http.Client{Transport: &bearerTransport{base: http.DefaultTransport, secrets: store, name: WeaviateSecret}}

	get := func() string {
		req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		resp, err := hc.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Empty(t, req.Header.Get("Authorization"), "caller's request is not modified")
		return string(raw)
	}

	assert.Equal(t, "Bearer first", get())
	store.Set(WeaviateSecret, "rotated")
	assert.Equal(t, "Bearer rotated", get(), "the key is read from the store on every request")

	store.Set(WeaviateSecret, "")
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = hc.Do(req)
	assert.Error(t, err, "a removed secret fails the request")
}

// =============================================================================
// Typesense
// =============================================================================

func TestTypesenseSearch_LiveFetchAndDedupe(t *testing.T) {
	var srvURL string
	var searches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/multi_search":
			searches.Add(1)
			assert.Equal(t, "ts-key", r.Header.Get("X-TYPESENSE-API-KEY"))
			var req struct {
				Searches []map[string]any `json:"searches"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if assert.Len(t, req.Searches, 1) {
				assert.Equal(t, "omni-docs", req.Searches[0]["collection"])
				assert.Equal(t, "url", req.Searches[0]["group_by"])
				assert.Equal(t, 3.0, req.Searches[0]["group_limit"])
				assert.Equal(t, "item_priority:desc", req.Searches[0]["sort_by"])
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{map[string]any{
				"grouped_hits": []any{map[string]any{"group_key": []any{"u"}, "hits": []any{
					map[string]any{"document": map[string]any{
						"url": srvURL + "/page", "content": "indexed snippet",
						"hierarchy.lvl0": "Docs", "hierarchy.lvl1": "Dashboards",
					}},
					map[string]any{"document": map[string]any{"url": srvURL + "/missing", "content": "fallback snippet"}},
				}}},
			}}})
		case "/page":
			_, _ = w.Write([]byte(`<html><head><title>x</title><script>var a=1;</script></head>
				<body><h1>Reset</h1><p>Open   the menu.</p><style>p{}</style></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	tool, err := NewTypesenseSearch(srv.Client(), TypesenseConfig{URL: srv.URL, FetchLive: true}, secrets(TypesenseSecret, "ts-key"), nil)
	require.NoError(t, err)
	res, err := tool.Run(context.Background(), catalog.Args{"ngrams": []any{"reset", "dashboard"}}, rawQuery("q"))
	require.NoError(t, err)

	docs := docsOf(t, res)
	require.Len(t, docs, 2)
	assert.Equal(t, catalog.Doc{Text: "Reset Open the menu.", Source: "docs", URL: srv.URL + "/page", Title: "Docs > Dashboards"}, docs[0])
	assert.Equal(t, "fallback snippet", docs[1].Text)
	assert.Equal(t, int32(2), searches.Load())
}

func TestTypesenseSearch_UngroupedHitsAndItemError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Searches []map[string]any `json:"searches"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Searches[0]["q"] == "broken" {
			_, _ = w.Write([]byte(`{"results":[{"code":404,"error":"Not found."}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"hits":[{"document":{"url":"https://docs/a","content":"plain hit"}}]}]}`))
	}))
	defer srv.Close()

	tool, err := NewTypesenseSearch(srv.Client(), TypesenseConfig{URL: srv.URL}, secrets(TypesenseSecret, "k"), nil)
	require.NoError(t, err)

	res, err := tool.Run(context.Background(), catalog.Args{"ngrams": []any{"broken", "fine"}}, rawQuery("q"))
	require.NoError(t, err, "one failing term does not fail the call")
	docs := docsOf(t, res)
	require.Len(t, docs, 1)
	assert.Equal(t, catalog.Doc{Text: "plain hit", Source: "docs", URL: "https://docs/a", Title: ""}, docs[0])

	_, err = tool.Run(context.Background(), catalog.Args{"query": "broken"}, rawQuery("broken"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not found.")
}

func TestTypesenseSearch_AllFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tool, err := NewTypesenseSearch(srv.Client(), TypesenseConfig{URL: srv.URL}, secrets(TypesenseSecret, "k"), nil)
	require.NoError(t, err)
	_, err = tool.Run(context.Background(), catalog.Args{"query": "q"}, rawQuery("q"))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Contains(t, se.Body, "nope")

	noKey, err := NewTypesenseSearch(srv.Client(), TypesenseConfig{URL: srv.URL}, secrets(), nil)
	require.NoError(t, err)
	_, err = noKey.Run(context.Background(), catalog.Args{"query": "q"}, rawQuery("q"))
	assert.Error(t, err, "a missing key fails before the request is sent")
}

func TestHTMLText(t *testing.T) {
	got, err := HTMLText(strings.NewReader(`<div>a<noscript>n</noscript><span> b </span><template>t</template></div>`))
	require.NoError(t, err)
	assert.Equal(t, "a b", got)
}

// =============================================================================
// Metrics agent
// =============================================================================

func TestMCPQuery_Run(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mcpRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "how many users?", req.Question)
		assert.Equal(t, "Bearer omni", r.Header.Get("Authorization"))
		assert.Equal(t, "model-1", r.Header.Get("X-MCP-MODEL-ID"))
		_, _ = w.Write([]byte(`{"answer":" 1,204 users ","reasoning_steps":["counted"]}`))
	}))
	defer srv.Close()

	tool := NewMCPQuery(srv.Client(), srv.URL, "model-1", secrets(MCPSecret, "omni"))
	res, err := tool.Run(context.Background(), catalog.Args{}, rawQuery("how many users?"))
	require.NoError(t, err)
	assert.Equal(t, catalog.KindText, res.Kind)
	assert.Equal(t, "1,204 users", res.Value)
	assert.Equal(t, []any{"counted"}, res.Metadata["reasoning"])
}

// =============================================================================
// Fathom
// =============================================================================

func TestFathomMeetings_PaginatesAndRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "fk", r.Header.Get("X-Api-Key"))
		assert.Equal(t, []string{"a.com", "b.com"}, r.URL.Query()["calendar_invitees_domains[]"])
		switch {
		case n == 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case r.URL.Query().Get("cursor") == "":
			_, _ = w.Write([]byte(`{"items":[{"meeting_title":"one"}],"next_cursor":"c2"}`))
		default:
			assert.Equal(t, "c2", r.URL.Query().Get("cursor"))
			_, _ = w.Write([]byte(`{"items":[{"meeting_title":"two"}],"next_cursor":""}`))
		}
	}))
	defer srv.Close()

	tool := NewFathomMeetings(srv.Client(), FathomConfig{BaseURL: srv.URL, RequestsPerSecond: 1000, MaxRetries: 2}, secrets(FathomSecret, "fk"), nil)
	tool.backoff = func(int) time.Duration { return time.Millisecond }

	res, err := tool.Run(context.Background(), catalog.Args{
		"params": map[string]any{"calendar_invitees_domains": []any{"a.com", "b.com"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, catalog.KindJSON, res.Kind)
	assert.Equal(t, []any{map[string]any{"meeting_title": "one"}, map[string]any{"meeting_title": "two"}}, res.Value)
	assert.Equal(t, "fathom meetings: 2 found", res.Preview)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFathomMeetings_MaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tool := NewFathomMeetings(srv.Client(), FathomConfig{BaseURL: srv.URL, RequestsPerSecond: 1000, MaxRetries: 2}, secrets(FathomSecret, "fk"), nil)
	tool.backoff = func(int) time.Duration { return time.Millisecond }

	_, err := tool.Run(context.Background(), catalog.Args{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
	assert.Equal(t, int32(3), calls.Load())
}

func TestFathomMeetings_Limit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":1},{"id":2},{"id":3}],"next_cursor":"more"}`))
	}))
	defer srv.Close()

	tool := NewFathomMeetings(srv.Client(), FathomConfig{BaseURL: srv.URL, RequestsPerSecond: 1000}, secrets(FathomSecret, "fk"), nil)
	res, err := tool.Run(context.Background(), catalog.Args{"limit": 2.0}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Value, 2)
}

func TestFathomQuery(t *testing.T) {
	q := FathomQuery(map[string]any{
		"params":       map[string]any{"meeting_type": "external", "include_summary": true},
		"participants": []string{"Ana"},
		"meeting_type": "internal",
		"unrelated":    "x",
	})
	assert.Equal(t, "external", q.Get("meeting_type"), "params win over top-level keys")
	assert.Equal(t, "true", q.Get("include_summary"))
	assert.Equal(t, []string{"Ana"}, q["participants[]"])
	assert.Empty(t, q.Get("unrelated"))
}

// =============================================================================
// Registry
// =============================================================================

func TestBuild_RegistersConfiguredTools(t *testing.T) {
	cfg, err := config.Defaults()
	require.NoError(t, err)
	tc := cfg.Tools
	tc.Docs.IndexPath = writeIndex(t)
	tc.MCP.URL = "http://metrics.local/ask"
	tc.Typesense.Enabled = false

	cat, skipped, err := Build(tc, Deps{
		Secrets:  secrets(SlackSecret, "xoxp", FathomSecret, "fk"),
		Searcher: &fakeSearcher{},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{IDSlack, IDDocs, IDCommunity, IDMCP, IDFathom}, cat.IDs())
	assert.Equal(t, []Skipped{{ID: IDTypesense, Reason: "disabled"}}, skipped)
	assert.ErrorIs(t, cat.Register(NewMCPQuery(nil, "", "", nil)), catalog.ErrFrozen)
}

func TestBuild_NothingConfigured(t *testing.T) {
	cfg, err := config.Defaults()
	require.NoError(t, err)

	cat, skipped, err := Build(cfg.Tools, Deps{})
	require.NoError(t, err)
	assert.Empty(t, cat.IDs())
	assert.Len(t, skipped, 6)
}
