// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evidence turns step outputs into the bounded document list handed
// to answer synthesis.
package evidence

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/executor"
	"github.com/AleutianAI/AleutianAsk/services/ask/plan"
)

// Mode names.
const (
	ModeDirect  = "direct"
	ModePlanned = "planned"
)

// MeetingsToolID is the tool whose JSON output gets meeting rendering.
const MeetingsToolID = "fathom_list_meetings"

var normalizedDocs = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ask",
	Subsystem: "evidence",
	Name:      "normalized_docs",
	Help:      "Documents produced per normalization, by mode.",
	Buckets:   []float64{0, 1, 2, 5, 10, 20, 30, 50},
}, []string{"mode"})

// Budget bounds the normalized output of one mode.
type Budget struct {
	TextLen int `yaml:"text_len" json:"text_len" validate:"gt=0"`
	JSONLen int `yaml:"json_len" json:"json_len" validate:"gt=0"`
	MaxDocs int `yaml:"max_docs" json:"max_docs" validate:"gt=0"`
}

// DefaultBudgets returns the built-in budgets per mode.
func DefaultBudgets() map[string]Budget {
	return map[string]Budget{
		ModePlanned: {TextLen: 1200, JSONLen: 800, MaxDocs: 30},
		ModeDirect:  {TextLen: 800, JSONLen: 500, MaxDocs: 12},
	}
}

// Item is one raw piece of evidence: a tool result value and the label of
// where it came from.
type Item struct {
	Kind   catalog.Kind `json:"kind"`
	Value  any          `json:"value"`
	Source string       `json:"source"`
}

// Doc is a normalized document.
type Doc struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Normalizer applies per-mode budgets.
//
// # Thread Safety
//
// Safe for concurrent use. Budgets are copied at construction.
type Normalizer struct {
	budgets map[string]Budget
	logger  *slog.Logger
}

// NewNormalizer creates a Normalizer. Modes missing from budgets use the
// defaults.
func NewNormalizer(budgets map[string]Budget, logger *slog.Logger) *Normalizer {
	b := DefaultBudgets()
	for mode, v := range budgets {
		b[mode] = v
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{budgets: b, logger: logger}
}

// Budget returns the budget for mode. Unknown modes get the direct budget.
func (n *Normalizer) Budget(mode string) Budget {
	if b, ok := n.budgets[mode]; ok {
		return b
	}
	return n.budgets[ModeDirect]
}

// Normalize converts items into documents.
//
// # Description
//
// Per kind: docs expand to one document each, blank text included (title
// falls back to the doc source, then "doc"); text becomes one document titled by its source; json
// is rendered as compact JSON, except meeting listings which are rendered as
// bullets; error becomes one document titled "<source> (error)"; any other
// kind is stringified and titled "<source> (<kind>)". Items with an empty
// value are skipped unless they are errors. Every content is cut to the
// mode's text or JSON budget and the list to its document budget, keeping
// input order.
//
// # Inputs
//
//   - items: Raw evidence in plan order.
//   - mode: "direct" or "planned".
//
// # Outputs
//
//   - []Doc: Never nil.
func (n *Normalizer) Normalize(items []Item, mode string) []Doc {
	b := n.Budget(mode)
	out := make([]Doc, 0, len(items))

	for _, it := range items {
		if len(out) >= b.MaxDocs {
			break
		}
		src := it.Source
		if src == "" {
			src = "tool"
		}
		if it.Kind != catalog.KindError && isEmptyValue(it.Value) {
			continue
		}

		switch it.Kind {
		case catalog.KindDocs:
			for _, d := range executor.DocsOf(it.Value) {
				source := d.Source
				if source == "" {
					source = src
				}
				title := d.Title
				if title == "" {
					title = d.Source
				}
				if title == "" {
					title = "doc"
				}
				out = append(out, Doc{Title: title, URL: d.URL, Content: Truncate(d.Text, b.TextLen), Source: source})
			}

		case catalog.KindText:
			out = append(out, Doc{Title: src, Content: Truncate(executor.Stringify(it.Value), b.TextLen), Source: src})

		case catalog.KindJSON:
			var content string
			if src == MeetingsToolID {
				content = Truncate(RenderMeetings(it.Value), b.TextLen)
			} else {
				content = Truncate(executor.Stringify(it.Value), b.JSONLen)
			}
			out = append(out, Doc{Title: src + " (json)", Content: content, Source: src})

		case catalog.KindError:
			msg := executor.Stringify(it.Value)
			if msg == "" {
				msg = "unknown error"
			}
			out = append(out, Doc{Title: src + " (error)", Content: Truncate(msg, b.TextLen), Source: src})

		default:
			kind := string(it.Kind)
			if kind == "" {
				kind = "unknown"
			}
			out = append(out, Doc{Title: src + " (" + kind + ")", Content: Truncate(executor.Stringify(it.Value), b.TextLen), Source: src})
		}
	}

	if len(out) > b.MaxDocs {
		out = out[:b.MaxDocs]
	}
	normalizedDocs.WithLabelValues(mode).Observe(float64(len(out)))
	n.logger.Debug("evidence: normalized",
		slog.String("mode", mode),
		slog.Int("items", len(items)),
		slog.Int("docs", len(out)),
	)
	return out
}

// FromTrace builds raw items from a trace in plan order, one per recorded
// step: successful outputs keep their kind and value, failures become error
// items carrying the error message. Each item is labelled with its tool id.
func FromTrace(steps []plan.Step, trace *executor.Trace) []Item {
	items := make([]Item, 0, len(steps))
	for _, s := range steps {
		e, ok := trace.Get(s.ID)
		if !ok {
			continue
		}
		src := e.Tool
		if src == "" {
			src = s.ID
		}
		switch {
		case e.Status == executor.StatusError:
			items = append(items, Item{Kind: catalog.KindError, Value: e.Error, Source: src})
		case e.Output != nil:
			items = append(items, Item{Kind: e.Output.Kind, Value: e.Output.Value, Source: src})
		}
	}
	return items
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []catalog.Doc:
		return len(t) == 0
	case []map[string]any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
