// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"regexp"
)

// redactionPattern pairs a compiled regex with a replacement label.
//
// Thread Safety: This type is immutable after construction.
type redactionPattern struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// redactionPatterns is the ordered list of secret patterns to redact.
//
// IMPORTANT: Order matters. More specific patterns must appear before less
// specific ones. "sk-proj-..." must hit the project-key rule before the
// generic "sk-" rule, and header forms must run before the bare "key=" rule.
//
// Thread Safety: initialized once and never modified.
var redactionPatterns = []redactionPattern{
	// OpenAI project key: sk-proj-<base62 and dashes>
	{
		Pattern:     regexp.MustCompile(`sk-proj-[A-Za-z0-9_-]{20,}`),
		Replacement: "[REDACTED:openai_key]",
	},
	// OpenAI API key: sk-<base62, 20+ chars>
	{
		Pattern:     regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
		Replacement: "[REDACTED:openai_key]",
	},
	// Slack tokens: xoxb-, xoxp-, xoxa-, xoxs-
	{
		Pattern:     regexp.MustCompile(`xox[abps]-[A-Za-z0-9-]{10,}`),
		Replacement: "[REDACTED:slack_token]",
	},
	// Bearer token in Authorization header values
	{
		Pattern:     regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`),
		Replacement: "[REDACTED:bearer_token]",
	},
	// X-Api-Key header echoed in errors (Fathom, metrics agent)
	{
		Pattern:     regexp.MustCompile(`(?i)x-api-key:\s*[A-Za-z0-9._-]{8,}`),
		Replacement: "X-Api-Key: [REDACTED]",
	},
	// API key in URL query parameter: key=<value>, x-typesense-api-key=<value>
	{
		Pattern:     regexp.MustCompile(`key=[A-Za-z0-9._-]{10,}`),
		Replacement: "key=[REDACTED]",
	},
	// Password in connection strings or config: password=<value>
	{
		Pattern:     regexp.MustCompile(`password=[^\s&]{3,}`),
		Replacement: "password=[REDACTED]",
	},
}

// SafeLogString redacts known secret patterns from a string before it is
// logged, attached to a span, or wrapped into an error.
//
// Description:
//
//	Each match is replaced with a labeled placeholder such as
//	[REDACTED:slack_token] so a reader knows what class of secret was
//	present without seeing the value. Tool adapters pass upstream error
//	bodies through it because several backends echo the request URL,
//	and Typesense carries its key as a query parameter.
//
// Examples:
//
//	SafeLogString("multi_search?x-typesense-api-key=abcdefghijkl failed")
//	// Returns: "multi_search?x-typesense-api-key=[REDACTED] failed"
//
// Limitations:
//   - Pattern-based only. Keys without a recognizable shape pass through.
//   - Single-line matching.
//
// Thread Safety: This function is safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range redactionPatterns {
		s = p.Pattern.ReplaceAllString(s, p.Replacement)
	}
	return s
}
