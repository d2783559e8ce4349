// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/executor"
	"github.com/AleutianAI/AleutianAsk/services/ask/orchestrator"
	"github.com/AleutianAI/AleutianAsk/services/ask/tools"
)

// styles are the text styles of the CLI. The zero-configured set renders
// plain text.
type styles struct {
	heading lipgloss.Style
	label   lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	bad     lipgloss.Style
	answer  lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{heading: plain, label: plain, dim: plain, ok: plain, bad: plain, answer: plain}
	}
	return styles{
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		label:   lipgloss.NewStyle().Bold(true),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		answer:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("12")).Padding(0, 1),
	}
}

func renderResponse(w io.Writer, resp *orchestrator.Response, showTrace bool, st styles) {
	fmt.Fprintln(w, st.heading.Render("Answer"))
	fmt.Fprintln(w, st.answer.Render(resp.Answer))
	if resp.Error != "" {
		fmt.Fprintln(w, st.bad.Render("error: "+resp.Error))
	}

	if len(resp.Docs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.heading.Render("Sources"))
		for i, d := range resp.Docs {
			line := fmt.Sprintf("%d. %s", i+1, d.Title)
			if d.URL != "" {
				line += " " + st.dim.Render(d.URL)
			}
			fmt.Fprintln(w, line)
		}
	}

	meta := fmt.Sprintf("mode=%s steps=%d docs=%d elapsed=%dms request=%s",
		resp.Mode, len(resp.Steps), len(resp.Docs), resp.ElapsedMS, resp.RequestID)
	if resp.PlanFallback {
		meta += " fallback=" + resp.FallbackReason
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.dim.Render(meta))

	if showTrace {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.heading.Render("Trace"))
		for _, e := range resp.Trace {
			renderEntry(w, e, st)
		}
	}
}

func renderEntry(w io.Writer, e executor.Entry, st styles) {
	status := st.ok.Render(string(e.Status))
	detail := ""
	switch {
	case e.Status == executor.StatusError:
		status = st.bad.Render(string(e.Status))
		detail = e.Error
	case e.Output != nil:
		detail = e.Output.Preview
		if detail == "" {
			detail = executor.Stringify(e.Output.Value)
		}
	}
	fmt.Fprintf(w, "  [%d] %s %s %s %s\n", e.Batch, st.label.Render(e.StepID), e.Tool, status,
		st.dim.Render(fmt.Sprintf("%dms", e.ElapsedMS)))
	if detail != "" {
		fmt.Fprintf(w, "      %s\n", oneLine(detail, 120))
	}
}

func renderPlan(w io.Writer, res *orchestrator.PlanResponse, st styles) {
	title := "Plan"
	if res.Fallback {
		title += " (fallback: " + string(res.Reason) + ")"
	}
	fmt.Fprintln(w, st.heading.Render(title))
	for _, s := range res.Steps {
		args := executor.Stringify(s.Args)
		group := ""
		if s.ParallelGroup != "" {
			group = st.dim.Render(" group=" + s.ParallelGroup)
		}
		fmt.Fprintf(w, "  %s %s %s%s\n", st.label.Render(s.ID), s.Tool, args, group)
	}
	if len(res.Steps) == 0 {
		fmt.Fprintln(w, st.dim.Render("  (no steps)"))
	}
	for _, id := range res.UnknownTools {
		fmt.Fprintln(w, st.bad.Render("  unknown tool: "+id))
	}
}

func renderTools(w io.Writer, specs []catalog.Spec, skipped []tools.Skipped, st styles) {
	fmt.Fprintln(w, st.heading.Render("Tools"))
	if len(specs) == 0 {
		fmt.Fprintln(w, st.dim.Render("  No tools registered."))
	}
	for _, s := range specs {
		needs := make([]string, len(s.Needs))
		for i, n := range s.Needs {
			needs[i] = string(n)
		}
		line := fmt.Sprintf("  %s %s", st.label.Render(s.ID), st.dim.Render("("+string(s.Produces)+")"))
		if len(needs) > 0 {
			line += st.dim.Render(" needs " + strings.Join(needs, ","))
		}
		fmt.Fprintln(w, line)
		fmt.Fprintf(w, "      %s\n", oneLine(s.Description, 100))
	}
	if len(skipped) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.heading.Render("Not configured"))
		for _, s := range skipped {
			fmt.Fprintf(w, "  %s %s\n", s.ID, st.dim.Render(s.Reason))
		}
	}
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
