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
	"encoding/json"
	"fmt"
	"strings"
)

const (
	maxMeetings       = 10
	maxMeetingSummary = 200
	maxMeetingActions = 3
)

// RenderMeetings renders a meeting listing as one bullet per meeting. A
// bullet is "- <title> [<type>] <start>–<end> <url>", followed by an indented
// "summary:" line holding the first 200 runes of the summary and one
// indented "action:" line per action item.
//
// At most 10 meetings and 3 action items each are rendered. Records that are
// not objects or have no title are rendered as compact JSON. Values that are
// not lists are rendered as compact JSON.
func RenderMeetings(v any) string {
	list, ok := asList(v)
	if !ok {
		return compactJSON(v)
	}
	if len(list) > maxMeetings {
		list = list[:maxMeetings]
	}
	lines := make([]string, 0, len(list))
	for _, rec := range list {
		lines = append(lines, renderMeeting(rec))
	}
	return strings.Join(lines, "\n")
}

func renderMeeting(rec any) string {
	m, ok := rec.(map[string]any)
	if !ok {
		return "- " + compactJSON(rec)
	}
	title := firstString(m, "meeting_title", "title")
	if title == "" {
		return "- " + compactJSON(rec)
	}

	var b strings.Builder
	b.WriteString("- ")
	b.WriteString(title)
	if typ := firstString(m, "meeting_type"); typ != "" {
		fmt.Fprintf(&b, " [%s]", typ)
	}
	start := firstString(m, "recording_start_time", "scheduled_start_time", "created_at")
	end := firstString(m, "recording_end_time", "scheduled_end_time")
	if start != "" || end != "" {
		fmt.Fprintf(&b, " %s–%s", start, end)
	}
	if url := firstString(m, "share_url", "url"); url != "" {
		b.WriteString(" ")
		b.WriteString(url)
	}

	if sum, ok := m["default_summary"].(map[string]any); ok {
		if text := firstString(sum, "markdown_formatted"); text != "" {
			b.WriteString("\n  summary: ")
			b.WriteString(Truncate(strings.Join(strings.Fields(text), " "), maxMeetingSummary))
		}
	}

	if items, ok := m["action_items"].([]any); ok {
		n := 0
		for _, it := range items {
			if n == maxMeetingActions {
				break
			}
			am, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if text := firstString(am, "text", "description"); text != "" {
				b.WriteString("\n  action: ")
				b.WriteString(text)
				n++
			}
		}
	}
	return b.String()
}

// asList accepts []any and []map[string]any.
func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// compactJSON renders v as single-line JSON, strings included.
func compactJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
