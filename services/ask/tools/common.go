// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools holds the search and data adapters the planner can call:
// Slack, the embedded docs index, the community Weaviate index, Typesense,
// the metrics agent and the Fathom meetings API.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
	"github.com/AleutianAI/AleutianAsk/services/ask/config"
	"github.com/AleutianAI/AleutianAsk/services/llm"
)

// Tool ids.
const (
	IDSlack     = "slack_search"
	IDDocs      = "docs_embed_search"
	IDCommunity = "community_embed_search"
	IDTypesense = "typesense_search"
	IDMCP       = "mcp_query"
	IDFathom    = "fathom_list_meetings"
)

// Secret names the tools open.
const (
	SlackSecret     = config.SecretSlackToken
	TypesenseSecret = config.SecretTypesenseKey
	MCPSecret       = config.SecretMCPKey
	FathomSecret    = config.SecretFathomKey
	WeaviateSecret  = config.SecretWeaviateKey
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Secrets opens credentials for the duration of fn.
type Secrets interface {
	Has(name string) bool
	With(name string, fn func(value string) error) error
}

var (
	backendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ask",
		Subsystem: "tools",
		Name:      "backend_requests_total",
		Help:      "Backend HTTP requests made by tools, by tool and status code.",
	}, []string{"tool", "code"})

	backendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ask",
		Subsystem: "tools",
		Name:      "backend_request_duration_seconds",
		Help:      "Backend HTTP request latency by tool.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tool"})
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Tool string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: backend returned %d: %s", e.Tool, e.Code, e.Body)
}

// do sends req and returns the body of a 2xx response. Error bodies are
// truncated and scrubbed of credentials.
func do(client *http.Client, tool string, req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := client.Do(req)
	backendDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	if err != nil {
		backendRequests.WithLabelValues(tool, "error").Inc()
		return nil, fmt.Errorf("%s: request failed: %w", tool, err)
	}
	defer resp.Body.Close()
	backendRequests.WithLabelValues(tool, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", tool, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(tool, resp.StatusCode, body)
	}
	return body, nil
}

// meteredDoer records the backend metrics for SDK clients that only take an
// http.Client-shaped Do. Status handling is left to the SDK.
type meteredDoer struct {
	client *http.Client
	tool   string
}

func (d meteredDoer) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := d.client.Do(req)
	backendDuration.WithLabelValues(d.tool).Observe(time.Since(start).Seconds())
	if err != nil {
		backendRequests.WithLabelValues(d.tool, "error").Inc()
		return nil, err
	}
	backendRequests.WithLabelValues(d.tool, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

// statusError builds a StatusError with the body truncated and scrubbed.
func statusError(tool string, code int, body []byte) *StatusError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Tool: tool, Code: code, Body: llm.SafeLogString(string(body))}
}

// postJSON marshals payload, posts it and decodes the response into out.
func postJSON(ctx context.Context, client *http.Client, tool, url string, payload any, header http.Header, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshaling request: %w", tool, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", tool, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	body, err := do(client, tool, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", tool, err)
	}
	return nil
}

// =============================================================================
// Argument helpers
// =============================================================================

// queryArg returns args["query"], then args["question"], then the raw query.
func queryArg(args map[string]any, qa *artifacts.QueryArtifacts) string {
	for _, k := range []string{"query", "question"} {
		if s, ok := args[k].(string); ok && s != "" {
			return s
		}
	}
	return qa.Query()
}

// intArg reads a positive integer argument, accepting JSON numbers and
// numeric strings. def is returned otherwise.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// stringsArg reads a list of strings. A single string becomes a one-element
// list.
func stringsArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// vectorArg reads an embedding argument: []float32 as injected by the
// composer, or a JSON number list from a plan.
func vectorArg(args map[string]any, key string) []float32 {
	switch v := args[key].(type) {
	case []float32:
		return v
	case []float64:
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = float32(x)
		}
		return out
	case []any:
		out := make([]float32, 0, len(v))
		for _, x := range v {
			f, ok := x.(float64)
			if !ok {
				return nil
			}
			out = append(out, float32(f))
		}
		return out
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
