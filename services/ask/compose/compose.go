// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose wraps catalog tools with the cross-cutting stages their
// specs declare (exclusion filter, n-gram injection, embedding injection and
// the metric gate) and hands the executor ready-to-run adapters.
package compose

import (
	"context"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
)

// Mode is the orchestration mode an adapter was composed for. It labels logs
// and metrics.
type Mode string

const (
	ModeDirect  Mode = "direct"
	ModePlanned Mode = "planned"
)

// ParseMode accepts "direct" and "planned" (case-insensitive).
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDirect:
		return ModeDirect, true
	case ModePlanned:
		return ModePlanned, true
	}
	return "", false
}

// Argument keys the stages read and write.
const (
	ArgQuery          = "query"
	ArgNgrams         = "ngrams"
	ArgQueryEmbedding = "query_embedding"
	ArgQueryChunks    = "query_chunks"
)

// DefaultExclusionSuffix is appended to message-board queries to keep alert
// and leadership channels out of the results.
const DefaultExclusionSuffix = " -in:customer-sla-breach -in:customer-triage -in:support-overflow " +
	"-in:omnis -in:customer-membership-alerts -in:vector-alerts " +
	"-in:notifications-alerts -cypress -github -sentry -squadcast -syften " +
	"-in:leadership -in:leaders"

// stageOrder is the pipeline order, innermost first. The metric gate is
// outermost so a skipped tool never triggers artifact computation.
var stageOrder = []catalog.Need{
	catalog.NeedExclusionFilter,
	catalog.NeedNgrams,
	catalog.NeedEmbedding,
	catalog.NeedMetricGate,
}

var gateSkips = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ask",
		Subsystem: "compose",
		Name:      "metric_gate_skips_total",
		Help:      "Tool calls skipped by the metric gate, by tool and mode.",
	},
	[]string{"tool", "mode"},
)

// RunFunc is the shape of a tool invocation.
type RunFunc func(ctx context.Context, args catalog.Args, qa *artifacts.QueryArtifacts) (catalog.Result, error)

// Config configures a Composer.
type Config struct {
	// ExclusionSuffix replaces DefaultExclusionSuffix when non-empty.
	ExclusionSuffix string

	// Classifier decides metric queries. Nil uses the default keyword list.
	Classifier Classifier

	Logger *slog.Logger
}

// Composer builds adapters. It is stateless after construction.
//
// # Thread Safety
//
// Safe for concurrent use.
type Composer struct {
	suffix     string
	classifier Classifier
	logger     *slog.Logger
}

// New creates a Composer.
func New(cfg Config) *Composer {
	c := &Composer{suffix: cfg.ExclusionSuffix, classifier: cfg.Classifier, logger: cfg.Logger}
	if c.suffix == "" {
		c.suffix = DefaultExclusionSuffix
	}
	if c.classifier == nil {
		c.classifier = NewKeywordClassifier(nil)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Pipeline lists the stages Compose would apply to spec, innermost first.
func (c *Composer) Pipeline(spec catalog.Spec) []catalog.Need {
	var out []catalog.Need
	for _, n := range stageOrder {
		if spec.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

// Compose wraps tool with the stages its spec declares.
func (c *Composer) Compose(tool catalog.Tool, mode Mode) *Adapter {
	spec := tool.Spec()
	stages := c.Pipeline(spec)
	run := RunFunc(tool.Run)
	for _, n := range stages {
		switch n {
		case catalog.NeedExclusionFilter:
			run = c.exclusionFilter(run)
		case catalog.NeedNgrams:
			run = injectNgrams(run)
		case catalog.NeedEmbedding:
			run = injectEmbedding(run)
		case catalog.NeedMetricGate:
			run = c.metricGate(spec.ID, mode, run)
		}
	}
	return &Adapter{spec: spec, mode: mode, stages: stages, run: run}
}

// ComposeAll composes the tools of cat named in ids (all tools when ids is
// empty). Ids missing from the catalog are left out of the set, so the
// executor reports them as unknown tools.
func (c *Composer) ComposeAll(cat *catalog.Catalog, ids []string, mode Mode) *Set {
	if len(ids) == 0 {
		ids = cat.IDs()
	}
	set := &Set{adapters: make(map[string]*Adapter, len(ids))}
	for _, id := range ids {
		if t, ok := cat.Get(id); ok {
			set.adapters[id] = c.Compose(t, mode)
		}
	}
	return set
}

// =============================================================================
// Stages
// =============================================================================

func (c *Composer) exclusionFilter(next RunFunc) RunFunc {
	return func(ctx context.Context, args catalog.Args, qa *artifacts.QueryArtifacts) (catalog.Result, error) {
		out := cloneArgs(args)
		out[ArgQuery] = queryOf(args, qa) + c.suffix
		return next(ctx, out, qa)
	}
}

func injectNgrams(next RunFunc) RunFunc {
	return func(ctx context.Context, args catalog.Args, qa *artifacts.QueryArtifacts) (catalog.Result, error) {
		if isEmpty(args[ArgNgrams]) {
			args = cloneArgs(args)
			args[ArgNgrams] = qa.Ngrams(ctx)
		}
		return next(ctx, args, qa)
	}
}

func injectEmbedding(next RunFunc) RunFunc {
	return func(ctx context.Context, args catalog.Args, qa *artifacts.QueryArtifacts) (catalog.Result, error) {
		if v, ok := args[ArgQueryEmbedding]; !ok || v == nil {
			args = cloneArgs(args)
			args[ArgQueryEmbedding] = qa.Embedding(ctx)
			args[ArgQueryChunks] = qa.Chunks(ctx)
		}
		return next(ctx, args, qa)
	}
}

func (c *Composer) metricGate(toolID string, mode Mode, next RunFunc) RunFunc {
	return func(ctx context.Context, args catalog.Args, qa *artifacts.QueryArtifacts) (catalog.Result, error) {
		q := queryOf(args, qa)
		if !c.classifier.IsMetric(q) {
			gateSkips.WithLabelValues(toolID, string(mode)).Inc()
			c.logger.Debug("compose: metric gate skipped tool",
				slog.String("tool", toolID),
				slog.String("mode", string(mode)),
			)
			return catalog.Result{Kind: catalog.KindText, Value: "", Preview: toolID + ":skipped(non-metric)"}, nil
		}
		return next(ctx, args, qa)
	}
}

// queryOf returns the "query" argument, falling back to the raw query.
func queryOf(args catalog.Args, qa *artifacts.QueryArtifacts) string {
	if q, ok := args[ArgQuery].(string); ok && q != "" {
		return q
	}
	return qa.Query()
}

func cloneArgs(args catalog.Args) catalog.Args {
	out := make(catalog.Args, len(args)+2)
	for k, v := range args {
		out[k] = v
	}
	return out
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// =============================================================================
// Adapter and Set
// =============================================================================

// Adapter is a composed tool. It implements catalog.Tool.
type Adapter struct {
	spec   catalog.Spec
	mode   Mode
	stages []catalog.Need
	run    RunFunc
}

// Spec implements catalog.Tool.
func (a *Adapter) Spec() catalog.Spec { return a.spec }

// Run implements catalog.Tool.
func (a *Adapter) Run(ctx context.Context, args catalog.Args, qa *artifacts.QueryArtifacts) (catalog.Result, error) {
	return a.run(ctx, args, qa)
}

// Mode returns the mode the adapter was composed for.
func (a *Adapter) Mode() Mode { return a.mode }

// Stages returns the applied stages, innermost first.
func (a *Adapter) Stages() []catalog.Need { return append([]catalog.Need(nil), a.stages...) }

// Set is a lookup of composed adapters by tool id.
type Set struct {
	adapters map[string]*Adapter
}

// Get returns the adapter for id.
func (s *Set) Get(id string) (catalog.Tool, bool) {
	a, ok := s.adapters[id]
	if !ok {
		return nil, false
	}
	return a, true
}

// Len returns the number of adapters.
func (s *Set) Len() int { return len(s.adapters) }
