// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/executor"
	"github.com/AleutianAI/AleutianAsk/services/ask/plan"
)

func TestNormalize_DocsAndError(t *testing.T) {
	n := NewNormalizer(nil, nil)
	docs := n.Normalize([]Item{
		{Kind: catalog.KindDocs, Value: []any{map[string]any{"text": "a", "source": "x"}}, Source: "x"},
		{Kind: catalog.KindError, Value: "boom", Source: "x"},
	}, ModeDirect)

	require.Len(t, docs, 2)
	assert.Equal(t, Doc{Title: "x", Content: "a", Source: "x"}, docs[0])
	assert.Equal(t, Doc{Title: "x (error)", Content: "boom", Source: "x"}, docs[1])
}

func TestNormalize_PerKind(t *testing.T) {
	n := NewNormalizer(nil, nil)
	docs := n.Normalize([]Item{
		{Kind: catalog.KindDocs, Value: []catalog.Doc{
			{Text: "t1", Title: "Guide", URL: "https://docs/x"},
			{Text: "t2"},
		}, Source: "docs_embed_search"},
		{Kind: catalog.KindText, Value: "42 users", Source: "mcp_query"},
		{Kind: catalog.KindJSON, Value: map[string]any{"a": 1}, Source: "crm"},
		{Kind: catalog.KindList, Value: []any{"p", "q"}, Source: "lister"},
		{Kind: "", Value: 7, Source: ""},
	}, ModePlanned)

	require.Len(t, docs, 6)
	assert.Equal(t, Doc{Title: "Guide", URL: "https://docs/x", Content: "t1", Source: "docs_embed_search"}, docs[0])
	assert.Equal(t, Doc{Title: "doc", Content: "t2", Source: "docs_embed_search"}, docs[1])
	assert.Equal(t, Doc{Title: "mcp_query", Content: "42 users", Source: "mcp_query"}, docs[2])
	assert.Equal(t, Doc{Title: "crm (json)", Content: `{"a":1}`, Source: "crm"}, docs[3])
	assert.Equal(t, Doc{Title: "lister (list)", Content: `["p","q"]`, Source: "lister"}, docs[4])
	assert.Equal(t, Doc{Title: "tool (unknown)", Content: "7", Source: "tool"}, docs[5])
}

func TestNormalize_KeepsDocsWithBlankText(t *testing.T) {
	n := NewNormalizer(nil, nil)
	docs := n.Normalize([]Item{
		{Kind: catalog.KindDocs, Value: []any{
			map[string]any{"text": "body", "source": "x"},
			map[string]any{"text": "", "title": "Release notes", "url": "https://docs/rn"},
		}, Source: "docs_embed_search"},
	}, ModeDirect)

	require.Len(t, docs, 2, "one document per docs entry")
	assert.Equal(t, Doc{Title: "Release notes", URL: "https://docs/rn", Content: "", Source: "docs_embed_search"}, docs[1])
}

func TestNormalize_SkipsEmptyExceptErrors(t *testing.T) {
	n := NewNormalizer(nil, nil)
	docs := n.Normalize([]Item{
		{Kind: catalog.KindText, Value: "", Source: "mcp_query"},
		{Kind: catalog.KindText, Value: "   ", Source: "mcp_query"},
		{Kind: catalog.KindDocs, Value: []any{}, Source: "slack_search"},
		{Kind: catalog.KindJSON, Value: nil, Source: "fathom_list_meetings"},
		{Kind: catalog.KindError, Value: "", Source: "slack_search"},
	}, ModeDirect)

	require.Len(t, docs, 1)
	assert.Equal(t, "slack_search (error)", docs[0].Title)
	assert.Equal(t, "unknown error", docs[0].Content)
}

func TestNormalize_Budgets(t *testing.T) {
	n := NewNormalizer(nil, nil)
	long := strings.Repeat("é", 5000)

	for _, mode := range []string{ModeDirect, ModePlanned} {
		t.Run(mode, func(t *testing.T) {
			b := n.Budget(mode)
			var items []Item
			for i := 0; i < 50; i++ {
				items = append(items,
					Item{Kind: catalog.KindText, Value: long, Source: fmt.Sprintf("t%d", i)},
					Item{Kind: catalog.KindJSON, Value: map[string]any{"v": long}, Source: "j"},
				)
			}
			docs := n.Normalize(items, mode)
			assert.Len(t, docs, b.MaxDocs)
			assert.Equal(t, "t0", docs[0].Title, "input order is preserved")
			for _, d := range docs {
				limit := b.TextLen
				if strings.HasSuffix(d.Title, "(json)") {
					limit = b.JSONLen
				}
				assert.LessOrEqual(t, utf8.RuneCountInString(d.Content), limit)
			}
		})
	}
}

func TestNormalize_DocsExpansionRespectsMaxDocs(t *testing.T) {
	n := NewNormalizer(map[string]Budget{ModeDirect: {TextLen: 10, JSONLen: 10, MaxDocs: 3}}, nil)
	var many []catalog.Doc
	for i := 0; i < 10; i++ {
		many = append(many, catalog.Doc{Text: fmt.Sprintf("d%d", i)})
	}
	docs := n.Normalize([]Item{{Kind: catalog.KindDocs, Value: many, Source: "s"}}, ModeDirect)
	require.Len(t, docs, 3)
	assert.Equal(t, "d2", docs[2].Content)
}

func TestNormalizer_BudgetDefaults(t *testing.T) {
	n := NewNormalizer(map[string]Budget{ModePlanned: {TextLen: 1, JSONLen: 1, MaxDocs: 1}}, nil)
	assert.Equal(t, Budget{TextLen: 1, JSONLen: 1, MaxDocs: 1}, n.Budget(ModePlanned))
	assert.Equal(t, Budget{TextLen: 800, JSONLen: 500, MaxDocs: 12}, n.Budget(ModeDirect))
	assert.Equal(t, n.Budget(ModeDirect), n.Budget("other"))
}

func TestRenderMeetings(t *testing.T) {
	meeting := map[string]any{
		"meeting_title":        "Acme sync",
		"meeting_type":         "external",
		"recording_start_time": "2025-01-02T10:00:00Z",
		"recording_end_time":   "2025-01-02T10:30:00Z",
		"share_url":            "https://fathom.video/share/abc",
		"default_summary":      map[string]any{"markdown_formatted": "## Summary\n" + strings.Repeat("word ", 100)},
		"action_items": []any{
			map[string]any{"text": "send deck"},
			map[string]any{"text": "book follow-up"},
			"not-an-item",
			map[string]any{"text": "update CRM"},
			map[string]any{"text": "fourth action"},
		},
	}
	out := RenderMeetings([]any{meeting, "broken", map[string]any{"id": 7}, 42.0, []any{"a"}})
	lines := strings.Split(out, "\n")

	assert.Equal(t, "- Acme sync [external] 2025-01-02T10:00:00Z–2025-01-02T10:30:00Z https://fathom.video/share/abc", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "  summary: ## Summary word"))
	assert.LessOrEqual(t, utf8.RuneCountInString(strings.TrimPrefix(lines[1], "  summary: ")), 200)
	assert.Equal(t, []string{"  action: send deck", "  action: book follow-up", "  action: update CRM"}, lines[2:5])
	assert.Equal(t, `- "broken"`, lines[5])
	assert.Equal(t, `- {"id":7}`, lines[6])
	assert.Equal(t, `- 42`, lines[7])
	assert.Equal(t, `- ["a"]`, lines[8])
	assert.Len(t, lines, 9)
}

func TestRenderMeetings_CapsAndNonList(t *testing.T) {
	var list []map[string]any
	for i := 0; i < 15; i++ {
		list = append(list, map[string]any{"title": fmt.Sprintf("m%d", i)})
	}
	out := RenderMeetings(list)
	assert.Len(t, strings.Split(out, "\n"), 10)
	assert.Equal(t, `{"error":"x"}`, RenderMeetings(map[string]any{"error": "x"}))
	assert.Equal(t, `"not a list"`, RenderMeetings("not a list"))
}

func TestNormalize_MeetingsUseRendering(t *testing.T) {
	n := NewNormalizer(nil, nil)
	docs := n.Normalize([]Item{{
		Kind:   catalog.KindJSON,
		Value:  []any{map[string]any{"meeting_title": "Weekly"}},
		Source: MeetingsToolID,
	}}, ModePlanned)
	require.Len(t, docs, 1)
	assert.Equal(t, "fathom_list_meetings (json)", docs[0].Title)
	assert.Equal(t, "- Weekly", docs[0].Content)
}

func TestFromTrace(t *testing.T) {
	tools := map[string]catalog.Tool{
		"ok": catalog.Func{S: catalog.Spec{ID: "ok"}, Fn: func(ctx context.Context, _ catalog.Args, _ *artifacts.QueryArtifacts) (catalog.Result, error) {
			return catalog.Result{Kind: catalog.KindText, Value: "hello"}, nil
		}},
		"bad": catalog.Func{S: catalog.Spec{ID: "bad"}, Fn: func(ctx context.Context, _ catalog.Args, _ *artifacts.QueryArtifacts) (catalog.Result, error) {
			return catalog.Result{}, errors.New("down")
		}},
	}
	steps := []plan.Step{
		{ID: "s2", Tool: "bad", Args: map[string]any{}},
		{ID: "s1", Tool: "ok", Args: map[string]any{}},
	}
	out, err := executor.New(executor.Config{}).Execute(context.Background(), steps, lookup(tools), nil)
	require.NoError(t, err)

	items := FromTrace(steps, out.Trace)
	require.Len(t, items, 2)
	assert.Equal(t, catalog.KindError, items[0].Kind)
	assert.Equal(t, "bad", items[0].Source)
	assert.Contains(t, items[0].Value, "down")
	assert.Equal(t, Item{Kind: catalog.KindText, Value: "hello", Source: "ok"}, items[1])
}

type lookup map[string]catalog.Tool

func (l lookup) Get(id string) (catalog.Tool, bool) {
	t, ok := l[id]
	return t, ok
}
