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
	"net/http"
	"strings"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
)

type mcpRequest struct {
	Question string `json:"question"`
}

type mcpResponse struct {
	Answer         string `json:"answer"`
	ReasoningSteps []any  `json:"reasoning_steps"`
}

// MCPQuery asks the metrics agent a question and returns its answer. The
// agent sits behind an HTTP endpoint accepting {"question"} and returning
// {"answer", "reasoning_steps"}.
type MCPQuery struct {
	client  *http.Client
	url     string
	modelID string
	secrets Secrets
}

// NewMCPQuery creates the tool.
func NewMCPQuery(client *http.Client, url, modelID string, secrets Secrets) *MCPQuery {
	return &MCPQuery{client: client, url: url, modelID: modelID, secrets: secrets}
}

// Spec implements catalog.Tool.
func (m *MCPQuery) Spec() catalog.Spec {
	return catalog.Spec{
		ID:          IDMCP,
		Name:        "Metrics agent",
		Description: "Ask the analytics agent a metrics question (counts, totals, reports) and get a synthesized answer with reasoning. Args: query (string).",
		Produces:    catalog.KindText,
		Needs:       []catalog.Need{catalog.NeedMetricGate},
	}
}

// Run implements catalog.Tool.
func (m *MCPQuery) Run(ctx context.Context, args catalog.Args, qa *artifacts.QueryArtifacts) (catalog.Result, error) {
	question := queryArg(args, qa)

	h := http.Header{}
	h.Set("Accept", "application/json")
	if m.modelID != "" {
		h.Set("X-MCP-MODEL-ID", m.modelID)
	}

	var resp mcpResponse
	call := func() error {
		return postJSON(ctx, m.client, IDMCP, m.url, mcpRequest{Question: question}, h, &resp)
	}
	var err error
	if m.secrets != nil && m.secrets.Has(MCPSecret) {
		err = m.secrets.With(MCPSecret, func(token string) error {
			h.Set("Authorization", "Bearer "+token)
			return call()
		})
	} else {
		err = call()
	}
	if err != nil {
		return catalog.Result{}, err
	}

	answer := strings.TrimSpace(resp.Answer)
	reasoning := resp.ReasoningSteps
	if reasoning == nil {
		reasoning = []any{}
	}
	return catalog.Result{
		Kind:     catalog.KindText,
		Value:    answer,
		Preview:  truncate(answer, 280),
		Metadata: map[string]any{"reasoning": reasoning},
	}, nil
}
