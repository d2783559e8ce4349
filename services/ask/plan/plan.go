// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plan holds the execution plan types shared by the planner, the
// executor and the reference resolver.
//
// A plan is an ordered list of steps. A step argument may contain a reference
// marker, a single-key object {"$ref": "<stepId>.output<path>"}, anywhere in
// its tree. The executor replaces each marker with the value it points to in
// the output of an earlier step.
package plan

import (
	"sort"
	"strings"
)

// RefKey is the key of a reference marker object.
const RefKey = "$ref"

// outputSegment separates the step id from the path in a reference.
const outputSegment = ".output"

// Step is one tool invocation in a plan.
type Step struct {
	ID            string         `json:"id"`
	Tool          string         `json:"tool"`
	Args          map[string]any `json:"args"`
	ParallelGroup string         `json:"parallel_group,omitempty"`
}

// Ref builds a reference marker for path inside stepID's output. path is
// appended verbatim, e.g. Ref("s1", "[value][0].text").
func Ref(stepID, path string) map[string]any {
	return map[string]any{RefKey: stepID + outputSegment + path}
}

// RefOf reports whether v is a reference marker and returns its reference
// string. Any map carrying a string "$ref" is a marker; other keys are ignored.
func RefOf(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	ref, ok := m[RefKey].(string)
	return ref, ok
}

// CollectRefs returns every reference string in the argument tree, in
// depth-first order with map keys visited in sorted order.
func CollectRefs(v any) []string {
	var out []string
	collect(v, &out)
	return out
}

func collect(v any, out *[]string) {
	switch t := v.(type) {
	case map[string]any:
		if ref, ok := RefOf(t); ok {
			*out = append(*out, ref)
			return
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collect(t[k], out)
		}
	case []any:
		for _, x := range t {
			collect(x, out)
		}
	}
}

// SplitRef splits "<stepId>.output<path>" into the step id and the path after
// "output". ok is false when the reference does not have that shape: the id
// must be non-empty without dots, and the path must be empty or start with
// '.' or '['.
func SplitRef(ref string) (stepID, path string, ok bool) {
	i := strings.Index(ref, outputSegment)
	if i <= 0 {
		return "", "", false
	}
	stepID = ref[:i]
	if strings.Contains(stepID, ".") {
		return "", "", false
	}
	path = ref[i+len(outputSegment):]
	if path != "" && path[0] != '.' && path[0] != '[' {
		return "", "", false
	}
	return stepID, path, true
}

// Dependencies returns the distinct step ids referenced by step's arguments
// that belong to known, in first-reference order. References to ids outside
// known are not dependencies; they resolve to absent at run time.
func Dependencies(step Step, known map[string]bool) []string {
	var deps []string
	seen := make(map[string]bool)
	for _, ref := range CollectRefs(step.Args) {
		id, _, ok := SplitRef(ref)
		if !ok || !known[id] || seen[id] {
			continue
		}
		seen[id] = true
		deps = append(deps, id)
	}
	return deps
}
