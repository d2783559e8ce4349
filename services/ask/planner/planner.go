// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner asks a chat model to decompose a question into a plan of
// tool calls and validates what comes back. Any failure yields a one-step
// fallback plan; the fallback and its reason are visible in the Result.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/plan"
	"github.com/AleutianAI/AleutianAsk/services/llm"
)

const (
	tracerName = "ask.planner"

	// DefaultTimeout bounds one planning call.
	DefaultTimeout = 30 * time.Second

	// FallbackStepID is the id of the single fallback step.
	FallbackStepID = "step1"
)

// Reason explains why a plan fell back.
type Reason string

const (
	ReasonNoChatClient  Reason = "no_chat_client"
	ReasonChatError     Reason = "chat_error"
	ReasonInvalidJSON   Reason = "invalid_json"
	ReasonNotArray      Reason = "not_array"
	ReasonEmptyPlan     Reason = "empty_plan"
	ReasonInvalidStep   Reason = "invalid_step"
	ReasonDuplicateStep Reason = "duplicate_step_id"
	ReasonUnknownTool   Reason = "unknown_tool"
)

// ValidationError is returned by Parse when the model output is not a usable
// plan.
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("planner: %s: %s", e.Reason, e.Detail)
}

var (
	planDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ask",
		Subsystem: "planner",
		Name:      "plan_duration_seconds",
		Help:      "Duration of planning calls, including fallbacks.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	planFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ask",
		Subsystem: "planner",
		Name:      "fallbacks_total",
		Help:      "Plans replaced by the fallback plan, by reason.",
	}, []string{"reason"})

	planSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ask",
		Subsystem: "planner",
		Name:      "plan_steps",
		Help:      "Number of steps in accepted plans.",
		Buckets:   []float64{1, 2, 3, 4, 6, 8, 12},
	})
)

// Result is the outcome of one planning call.
type Result struct {
	Steps    []plan.Step `json:"steps"`
	Fallback bool        `json:"fallback"`
	Reason   Reason      `json:"reason,omitempty"`
}

// Config configures a Planner.
type Config struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Planner produces plans.
//
// # Thread Safety
//
// Safe for concurrent use if the chat client is.
type Planner struct {
	chat    llm.ChatClient
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Planner. chat may be nil, in which case every plan is the
// fallback plan.
func New(chat llm.ChatClient, cfg Config) *Planner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Planner{chat: chat, timeout: cfg.Timeout, logger: cfg.Logger}
}

// Plan decomposes query into steps over the tools in specs.
//
// # Description
//
// Sends the planning prompt to the chat client and validates the reply with
// Parse. Chat errors, timeouts and validation failures all produce the
// fallback plan from Fallback; Plan itself never fails.
//
// # Inputs
//
//   - ctx: Cancellation for the chat call. The configured timeout applies on top.
//   - query: The user question.
//   - specs: The tools the plan may use, in catalog order.
//
// # Outputs
//
//   - Result: Accepted steps, or the fallback with Fallback=true and a Reason.
func (p *Planner) Plan(ctx context.Context, query string, specs []catalog.Spec) Result {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "planner.Plan")
	defer span.End()
	start := time.Now()
	defer func() { planDuration.Observe(time.Since(start).Seconds()) }()

	span.SetAttributes(attribute.Int("planner.tools", len(specs)))

	if p.chat == nil {
		return p.fallback(ctx, query, specs, ReasonNoChatClient, "chat client not configured")
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.chat.Chat(cctx, BuildPrompt(query, specs))
	if err != nil {
		span.RecordError(err)
		return p.fallback(ctx, query, specs, ReasonChatError, llm.SafeLogString(err.Error()))
	}

	steps, err := Parse(raw, specs)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return p.fallback(ctx, query, specs, verr.Reason, verr.Detail)
		}
		return p.fallback(ctx, query, specs, ReasonInvalidJSON, err.Error())
	}

	planSteps.Observe(float64(len(steps)))
	span.SetAttributes(attribute.Int("planner.steps", len(steps)))
	p.logger.Debug("planner: plan accepted", slog.Int("steps", len(steps)))
	return Result{Steps: steps}
}

func (p *Planner) fallback(ctx context.Context, query string, specs []catalog.Spec, reason Reason, detail string) Result {
	planFallbacks.WithLabelValues(string(reason)).Inc()
	span := trace.SpanFromContext(ctx)
	span.SetStatus(codes.Error, string(reason))
	span.SetAttributes(attribute.String("planner.fallback_reason", string(reason)))
	p.logger.Warn("planner: using fallback plan",
		slog.String("reason", string(reason)),
		slog.String("detail", detail),
	)
	return Result{Steps: Fallback(query, specs), Fallback: true, Reason: reason}
}

// Fallback is the plan used when planning fails: one step running the first
// catalog tool on the raw query, or no steps for an empty catalog.
func Fallback(query string, specs []catalog.Spec) []plan.Step {
	if len(specs) == 0 {
		return []plan.Step{}
	}
	return []plan.Step{{
		ID:   FallbackStepID,
		Tool: specs[0].ID,
		Args: map[string]any{"query": query},
	}}
}

// =============================================================================
// Parsing
// =============================================================================

// Parse validates model output against specs.
//
// # Description
//
// Strips code fences, then checks in order: the text is a JSON array; it is
// not empty; every element has a non-empty string id, a string tool and an
// object args; ids are unique; every tool is in specs.
func Parse(raw string, specs []catalog.Spec) ([]plan.Step, error) {
	text := StripFences(raw)

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, &ValidationError{Reason: ReasonInvalidJSON, Detail: err.Error()}
	}
	items, ok := doc.([]any)
	if !ok {
		return nil, &ValidationError{Reason: ReasonNotArray, Detail: fmt.Sprintf("got %T", doc)}
	}
	if len(items) == 0 {
		return nil, &ValidationError{Reason: ReasonEmptyPlan, Detail: "plan has no steps"}
	}

	known := make(map[string]bool, len(specs))
	for _, s := range specs {
		known[s.ID] = true
	}

	steps := make([]plan.Step, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		step, err := parseStep(i, item)
		if err != nil {
			return nil, err
		}
		if seen[step.ID] {
			return nil, &ValidationError{Reason: ReasonDuplicateStep, Detail: step.ID}
		}
		seen[step.ID] = true
		steps = append(steps, step)
	}
	for _, s := range steps {
		if !known[s.Tool] {
			return nil, &ValidationError{Reason: ReasonUnknownTool, Detail: s.Tool}
		}
	}
	return steps, nil
}

func parseStep(i int, item any) (plan.Step, error) {
	invalid := func(msg string) error {
		return &ValidationError{Reason: ReasonInvalidStep, Detail: fmt.Sprintf("step %d: %s", i, msg)}
	}
	m, ok := item.(map[string]any)
	if !ok {
		return plan.Step{}, invalid("not an object")
	}
	id, ok := m["id"].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return plan.Step{}, invalid("missing id")
	}
	tool, ok := m["tool"].(string)
	if !ok {
		return plan.Step{}, invalid("missing tool")
	}
	rawArgs, present := m["args"]
	if !present {
		return plan.Step{}, invalid("missing args")
	}
	args, ok := rawArgs.(map[string]any)
	if !ok {
		return plan.Step{}, invalid("args is not an object")
	}
	group, _ := m["parallel_group"].(string)
	return plan.Step{ID: id, Tool: tool, Args: args, ParallelGroup: group}, nil
}

// StripFences returns the body of the first ``` fenced block in s, dropping
// an optional language tag. Text without a fence is returned trimmed.
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	open := strings.Index(t, "```")
	if open < 0 {
		return t
	}
	body := t[open+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// The rest of the opening line is the language tag, if any.
		if tag := strings.TrimSpace(body[:nl]); !strings.ContainsAny(tag, "[{") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
