// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package refs resolves reference strings of the form
// "<stepId>.output<path>" against the outputs of earlier plan steps.
//
// # Path grammar
//
//	path    := segment*
//	segment := "." name | "[" inner "]"
//	inner   := integer            list index (negative counts from the end)
//	         | 'key' | "key"      map key, taken literally
//	         | subpath            spliced in, e.g. [value[0].text]
//
// Both the chained form "output[value][0].text" and the bracket-wrapped form
// "output[value[0].text]" address the same element. Integers only index
// lists and names only address maps; a map key spelled "0" needs ["0"].
//
// Resolution never panics. Any malformed path, missing key, out-of-range
// index, or unknown step resolves to absent. Values that are not plain JSON
// shapes (structs, typed slices) are viewed through their JSON encoding, so a
// tool result is addressed as {kind, value, preview, metadata}.
package refs

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianAsk/services/ask/plan"
)

// Source exposes the outputs of completed steps.
type Source interface {
	// Output returns the output of stepID, or false when the step has not
	// completed successfully.
	Output(stepID string) (any, bool)
}

// MapSource is a Source backed by a plain map.
type MapSource map[string]any

// Output implements Source.
func (m MapSource) Output(stepID string) (any, bool) {
	v, ok := m[stepID]
	return v, ok
}

type token struct {
	key     string
	index   int
	isIndex bool
}

// Resolve looks ref up in src. The boolean is false when the reference is
// malformed or points at nothing; a present JSON null resolves to (nil, true).
func Resolve(ref string, src Source) (any, bool) {
	if src == nil {
		return nil, false
	}
	stepID, path, ok := plan.SplitRef(ref)
	if !ok {
		return nil, false
	}
	toks, ok := parsePath(path)
	if !ok {
		return nil, false
	}
	root, ok := src.Output(stepID)
	if !ok {
		return nil, false
	}
	cur, ok := view(root)
	if !ok {
		return nil, false
	}
	for _, t := range toks {
		cur, ok = walk(cur, t)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Materialize returns a copy of args with every reference marker replaced by
// its resolved value. Unresolvable markers become nil.
func Materialize(args map[string]any, src Source) map[string]any {
	if args == nil {
		return nil
	}
	out, _ := materialize(args, src).(map[string]any)
	return out
}

func materialize(v any, src Source) any {
	switch t := v.(type) {
	case map[string]any:
		if ref, ok := plan.RefOf(t); ok {
			val, _ := Resolve(ref, src)
			return val
		}
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = materialize(x, src)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = materialize(x, src)
		}
		return out
	default:
		return v
	}
}

// =============================================================================
// Path parsing
// =============================================================================

func parsePath(p string) ([]token, bool) {
	var toks []token
	i := 0
	for i < len(p) {
		switch p[i] {
		case '.':
			i++
			j := i
			for j < len(p) && p[j] != '.' && p[j] != '[' {
				j++
			}
			if j == i {
				return nil, false
			}
			toks = append(toks, token{key: p[i:j]})
			i = j
		case '[':
			j := closingBracket(p, i)
			if j < 0 {
				return nil, false
			}
			sub, ok := parseBracket(strings.TrimSpace(p[i+1 : j]))
			if !ok {
				return nil, false
			}
			toks = append(toks, sub...)
			i = j + 1
		default:
			return nil, false
		}
	}
	return toks, true
}

func parseBracket(inner string) ([]token, bool) {
	if inner == "" {
		return nil, false
	}
	if n, err := strconv.Atoi(inner); err == nil {
		return []token{{index: n, isIndex: true}}, true
	}
	if len(inner) >= 2 {
		q := inner[0]
		if (q == '\'' || q == '"') && inner[len(inner)-1] == q {
			return []token{{key: inner[1 : len(inner)-1]}}, true
		}
	}
	if inner[0] == '[' {
		return parsePath(inner)
	}
	return parsePath("." + inner)
}

// closingBracket returns the index of the ']' matching the '[' at open,
// skipping brackets inside quotes. Returns -1 when unbalanced.
func closingBracket(p string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(p); i++ {
		c := p[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// =============================================================================
// Traversal
// =============================================================================

// walk applies one token. Integer tokens only index lists; field and quoted
// tokens only address maps, so [0] on a map with key "0" is absent.
func walk(cur any, t token) (any, bool) {
	switch c := cur.(type) {
	case map[string]any:
		if t.isIndex {
			return nil, false
		}
		v, ok := c[t.key]
		if !ok {
			return nil, false
		}
		return view(v)
	case []any:
		if !t.isIndex {
			return nil, false
		}
		idx := t.index
		if idx < 0 {
			idx += len(c)
		}
		if idx < 0 || idx >= len(c) {
			return nil, false
		}
		return view(c[idx])
	default:
		return nil, false
	}
}

// view returns v as a plain JSON-shaped value.
func view(v any) (any, bool) {
	switch v.(type) {
	case nil, map[string]any, []any, string, bool, float64, float32,
		int, int64, int32, json.Number:
		return v, true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}
