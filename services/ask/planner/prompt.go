// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/llm"
)

const systemPrompt = `You are a query planner for an agent with multiple tools.
Decompose the user question into a sequence of tool calls whose combined outputs should answer the question.

Rules:
- Select only tools that materially contribute to the question.
- Use the tool id exactly as listed.
- If a step depends on an earlier step's output, reference it with: {"$ref": "<stepId>.output<path>"}
  where <path> is like [value][0].text or .value.
- Keep arguments concrete and minimal.
- Return ONLY a flat JSON array of steps. No commentary.

Step shape:
{"id": "step1", "tool": "<tool_id>", "args": { ... }, "parallel_group": "A"}
("parallel_group" is optional.)`

// BuildPrompt renders the planning messages for query over specs.
func BuildPrompt(query string, specs []catalog.Spec) []llm.Message {
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, s := range specs {
		name := s.Name
		if name == "" {
			name = s.ID
		}
		fmt.Fprintf(&b, "- %s (%s, returns %s): %s\n", s.ID, name, s.Produces, s.Description)
	}
	b.WriteString("\nUser question:\n")
	b.WriteString(query)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}
}
