// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator answers one question end to end: it plans (or fans
// out directly), executes the tool DAG, normalizes the evidence and
// synthesizes an answer.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/compose"
	"github.com/AleutianAI/AleutianAsk/services/ask/config"
	"github.com/AleutianAI/AleutianAsk/services/ask/evidence"
	"github.com/AleutianAI/AleutianAsk/services/ask/executor"
	"github.com/AleutianAI/AleutianAsk/services/ask/plan"
	"github.com/AleutianAI/AleutianAsk/services/ask/planner"
	"github.com/AleutianAI/AleutianAsk/services/ask/synthesis"
	"github.com/AleutianAI/AleutianAsk/services/llm"
)

const tracerName = "ask.orchestrator"

// DirectStepPrefix prefixes the step id of each tool run in direct mode.
const DirectStepPrefix = "run:"

var (
	// ErrEmptyQuery is returned for blank questions.
	ErrEmptyQuery = errors.New("orchestrator: query is empty")

	// ErrUnknownMode is returned for modes other than direct and planned.
	ErrUnknownMode = errors.New("orchestrator: unknown mode")
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ask",
		Subsystem: "orchestrator",
		Name:      "requests_total",
		Help:      "Questions answered by mode and outcome.",
	}, []string{"mode", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ask",
		Subsystem: "orchestrator",
		Name:      "request_duration_seconds",
		Help:      "End to end question latency by mode.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"mode"})
)

// Request is one question.
type Request struct {
	Query string `json:"query"`

	// Mode is "direct" or "planned". Empty selects planned.
	Mode string `json:"mode,omitempty"`

	// Tools restricts the run to these tool ids. Empty allows every tool.
	Tools []string `json:"tools,omitempty"`

	// RequestID labels the run. Empty generates one.
	RequestID string `json:"-"`
}

// Response is the answer plus everything that produced it.
type Response struct {
	RequestID string `json:"request_id"`
	Mode      string `json:"mode"`
	Query     string `json:"query"`
	Answer    string `json:"answer"`

	Steps []plan.Step      `json:"steps"`
	Trace []executor.Entry `json:"trace"`

	// Docs is the normalized, budgeted evidence given to synthesis.
	Docs []evidence.Doc `json:"docs"`

	// Evidence is the raw flattened evidence feed of the trace.
	Evidence []catalog.Doc `json:"evidence"`

	Batches        [][]string `json:"batches"`
	PlanFallback   bool       `json:"plan_fallback"`
	FallbackReason string     `json:"fallback_reason,omitempty"`

	// Error is set when synthesis failed; the rest of the response is intact.
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// PlanResponse is a dry-run plan.
type PlanResponse struct {
	planner.Result
	UnknownTools []string `json:"unknown_tools,omitempty"`
}

// Deps are the long-lived collaborators of an Orchestrator.
type Deps struct {
	Catalog *catalog.Catalog
	Cache   *artifacts.Cache

	// Chat drives planning and synthesis. Nil makes every plan the fallback
	// plan and every non-empty synthesis an error.
	Chat llm.ChatClient

	// Config is read once per request.
	Config *config.Source

	Logger *slog.Logger
}

// Orchestrator runs questions.
//
// # Description
//
// The catalog and artifact cache are shared by all requests. Everything that
// depends on configuration (budgets, timeouts, exclusion suffix, metric
// keywords, parallelism) is built per request from one config snapshot, so
// a reload never splits a request across two configs.
//
// # Thread Safety
//
// Safe for concurrent use.
type Orchestrator struct {
	cat    *catalog.Catalog
	cache  *artifacts.Cache
	chat   llm.ChatClient
	src    *config.Source
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("orchestrator: catalog is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("orchestrator: artifact cache is required")
	}
	if deps.Config == nil || deps.Config.Current() == nil {
		return nil, fmt.Errorf("orchestrator: config is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		cat:    deps.Catalog,
		cache:  deps.Cache,
		chat:   deps.Chat,
		src:    deps.Config,
		logger: deps.Logger,
	}, nil
}

// Catalog returns the tool catalog.
func (o *Orchestrator) Catalog() *catalog.Catalog { return o.cat }

// Artifacts returns the shared artifact cache.
func (o *Orchestrator) Artifacts() *artifacts.Cache { return o.cache }

// Run answers req.
//
// # Description
//
// Direct mode runs every allowed tool once with {query} as step
// "run:<tool>". Planned mode asks the planner for a DAG over the allowed
// tools, falling back to the one-step plan on any planning failure. Both
// modes share the artifact cache entry of the query, execute through
// composed adapters, normalize with the mode's budgets and synthesize.
// Allowed tool ids missing from the catalog become error trace entries.
//
// # Outputs
//
//   - *Response: Non-nil when err is nil. A synthesis failure is reported
//     in Response.Error, not as err.
//   - error: ErrEmptyQuery, ErrUnknownMode, or the context error when ctx
//     ended before synthesis.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cfg := o.src.Current()
	id := req.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	resp := &Response{RequestID: id, Mode: string(mode), Query: query}
	logger := o.logger.With(slog.String("request_id", resp.RequestID), slog.String("mode", resp.Mode))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "orchestrator.Run",
		trace.WithAttributes(
			attribute.String("request_id", resp.RequestID),
			attribute.String("mode", resp.Mode),
			attribute.Int("allowed_tools", len(req.Tools)),
		),
	)
	defer span.End()

	qa := o.cache.For(query)
	allowed := dedupe(req.Tools)

	var steps []plan.Step
	var unknown []string
	var ids []string
	switch mode {
	case compose.ModeDirect:
		ids = allowed
		if len(ids) == 0 {
			ids = o.cat.IDs()
		}
		steps = DirectSteps(query, ids)
	default:
		var specs []catalog.Spec
		specs, unknown = o.cat.Subset(allowed)
		for _, s := range specs {
			ids = append(ids, s.ID)
		}
		res := planner.New(o.chat, planner.Config{Timeout: cfg.Planner.Timeout, Logger: logger}).Plan(ctx, query, specs)
		steps = res.Steps
		resp.PlanFallback = res.Fallback
		resp.FallbackReason = string(res.Reason)
	}
	resp.Steps = steps

	set := o.composer(cfg, logger).ComposeAll(o.cat, ids, mode)
	exec := executor.New(executor.Config{
		MaxParallel: cfg.Executor.MaxParallel,
		StepTimeout: cfg.Executor.StepTimeout,
		CyclePolicy: executor.CyclePolicy(cfg.Executor.CyclePolicy),
		Logger:      logger,
	})
	out, err := exec.Execute(ctx, steps, set, qa)
	if err != nil {
		o.finish(span, mode, "invalid_plan", start)
		return nil, fmt.Errorf("orchestrator: execute: %w", err)
	}
	resp.Trace = out.Entries
	resp.Batches = out.Batches
	resp.Evidence = out.Evidence
	for _, id := range unknown {
		resp.Trace = append(resp.Trace, executor.Entry{
			StepID: DirectStepPrefix + id,
			Tool:   id,
			Status: executor.StatusError,
			Error:  "unknown tool: " + id,
		})
	}

	items := evidence.FromTrace(steps, out.Trace)
	resp.Docs = evidence.NewNormalizer(cfg.Evidence.Budgets(), logger).Normalize(items, resp.Mode)

	if err := ctx.Err(); err != nil {
		o.finish(span, mode, "canceled", start)
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	answer, err := synthesis.New(o.chat, synthesis.Config{Timeout: cfg.Synthesis.Timeout, Logger: logger}).Answer(ctx, query, resp.Docs)
	resp.ElapsedMS = time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("orchestrator: synthesis failed", slog.String("error", llm.SafeLogString(err.Error())))
		resp.Error = err.Error()
		span.RecordError(err)
		o.finish(span, mode, "synthesis_error", start)
		return resp, nil
	}
	resp.Answer = answer

	logger.Info("orchestrator: answered",
		slog.Int("steps", len(steps)),
		slog.Int("docs", len(resp.Docs)),
		slog.Bool("plan_fallback", resp.PlanFallback),
		slog.Int64("elapsed_ms", resp.ElapsedMS),
	)
	o.finish(span, mode, "ok", start)
	return resp, nil
}

// Plan returns the plan Run would execute in planned mode without running it.
func (o *Orchestrator) Plan(ctx context.Context, query string, tools []string) (*PlanResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	cfg := o.src.Current()
	specs, unknown := o.cat.Subset(dedupe(tools))
	res := planner.New(o.chat, planner.Config{Timeout: cfg.Planner.Timeout, Logger: o.logger}).Plan(ctx, query, specs)
	return &PlanResponse{Result: res, UnknownTools: unknown}, nil
}

// DirectSteps builds the direct-mode plan: one independent step per tool.
func DirectSteps(query string, toolIDs []string) []plan.Step {
	steps := make([]plan.Step, 0, len(toolIDs))
	for _, id := range toolIDs {
		steps = append(steps, plan.Step{
			ID:   DirectStepPrefix + id,
			Tool: id,
			Args: map[string]any{compose.ArgQuery: query},
		})
	}
	return steps
}

func (o *Orchestrator) composer(cfg *config.Config, logger *slog.Logger) *compose.Composer {
	keywords := cfg.Compose.MetricKeywords
	if len(keywords) == 0 {
		keywords = nil
	}
	return compose.New(compose.Config{
		ExclusionSuffix: cfg.Compose.ExclusionSuffix,
		Classifier:      compose.NewKeywordClassifier(keywords),
		Logger:          logger,
	})
}

func (o *Orchestrator) finish(span trace.Span, mode compose.Mode, outcome string, start time.Time) {
	requestsTotal.WithLabelValues(string(mode), outcome).Inc()
	requestDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("outcome", outcome))
	if outcome != "ok" {
		span.SetStatus(codes.Error, outcome)
	}
}

func parseMode(s string) (compose.Mode, error) {
	if strings.TrimSpace(s) == "" {
		return compose.ModePlanned, nil
	}
	m, ok := compose.ParseMode(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// dedupe drops blank and repeated ids, keeping first occurrences.
func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
