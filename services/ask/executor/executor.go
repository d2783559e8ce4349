// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor schedules a plan into dependency-respecting batches and
// runs it, recording one trace entry per step.
//
// Steps inside a batch run concurrently. Batches run strictly in order.
// Arguments are materialized against the trace as it stood when the batch
// started, so a step can only see outputs of earlier batches. Nothing a step
// does escapes as an error or panic: failures become error entries and the
// rest of the plan keeps going.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/plan"
	"github.com/AleutianAI/AleutianAsk/services/ask/refs"
)

const tracerName = "ask.executor"

// PreviewLimit caps the evidence text taken from non-document results.
const PreviewLimit = 280

// Messages recorded for steps that never ran.
const (
	MsgCanceled = "canceled before dispatch"
	MsgCycle    = "dependency cycle"
)

// ErrInvalidPlan is returned for plans with empty or duplicate step ids.
var ErrInvalidPlan = errors.New("executor: invalid plan")

// Tools looks up the (composed) tool for a tool id.
type Tools interface {
	Get(id string) (catalog.Tool, bool)
}

// Config tunes an Executor.
type Config struct {
	// MaxParallel bounds concurrent steps within one batch. Zero or less
	// means unbounded.
	MaxParallel int

	// StepTimeout bounds one step. Zero disables the per-step timeout.
	StepTimeout time.Duration

	CyclePolicy CyclePolicy
	Logger      *slog.Logger
}

// Executor runs plans. It holds no per-plan state.
//
// # Thread Safety
//
// Safe for concurrent use; each Execute call owns its own trace.
type Executor struct {
	cfg Config
}

// New creates an Executor.
func New(cfg Config) *Executor {
	if cfg.CyclePolicy == "" {
		cfg.CyclePolicy = CycleBestEffort
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{cfg: cfg}
}

// Outcome is the result of one plan execution.
type Outcome struct {
	Trace *Trace

	// Entries lists the trace in plan order.
	Entries []Entry

	// Evidence is the flattened evidence feed in plan order.
	Evidence []catalog.Doc

	// Batches holds the step ids of each dispatched batch.
	Batches [][]string

	// Cyclic holds the ids of steps caught in a dependency cycle.
	Cyclic []string
}

// Execute runs steps and returns the trace and evidence.
//
// # Description
//
// Unknown tool ids, tool errors, panics, KindError results and per-step
// timeouts all produce error entries. A cancelled ctx stops dispatch at the
// next batch boundary; undispatched steps get MsgCanceled entries. Cyclic
// leftovers are handled by the configured CyclePolicy.
//
// # Inputs
//
//   - ctx: Cancellation for the whole plan.
//   - steps: The plan.
//   - tools: Tool lookup. Usually composed adapters.
//   - qa: Shared query artifacts passed to every tool. May be nil.
//
// # Outputs
//
//   - *Outcome: Always non-nil when err is nil.
//   - error: ErrInvalidPlan for empty or duplicate step ids.
func (e *Executor) Execute(ctx context.Context, steps []plan.Step, tools Tools, qa *artifacts.QueryArtifacts) (*Outcome, error) {
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: empty step id", ErrInvalidPlan)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: duplicate step id %q", ErrInvalidPlan, s.ID)
		}
		seen[s.ID] = true
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "executor.Execute",
		trace.WithAttributes(attribute.Int("steps", len(steps))),
	)
	defer span.End()

	sched := BuildSchedule(steps)
	batches := sched.Batches
	out := &Outcome{Trace: NewTrace()}

	if len(sched.Cyclic) > 0 {
		for _, i := range sched.Cyclic {
			out.Cyclic = append(out.Cyclic, steps[i].ID)
		}
		cycleLeftovers.WithLabelValues(string(e.cfg.CyclePolicy)).Add(float64(len(sched.Cyclic)))
		e.cfg.Logger.Warn("executor: dependency cycle in plan",
			slog.Any("steps", out.Cyclic),
			slog.String("policy", string(e.cfg.CyclePolicy)),
		)
		if e.cfg.CyclePolicy == CycleReject {
			for _, i := range sched.Cyclic {
				out.Trace.Record(Entry{StepID: steps[i].ID, Tool: steps[i].Tool, Status: StatusError, Args: steps[i].Args, Error: MsgCycle})
			}
		} else {
			batches = append(batches, sched.Cyclic)
		}
	}

	for bi, batch := range batches {
		if ctx.Err() != nil {
			for _, rest := range batches[bi:] {
				for _, i := range rest {
					out.Trace.Record(Entry{StepID: steps[i].ID, Tool: steps[i].Tool, Status: StatusError, Args: steps[i].Args, Error: MsgCanceled})
				}
			}
			span.AddEvent("canceled", trace.WithAttributes(attribute.Int("batch", bi+1)))
			break
		}

		ids := make([]string, len(batch))
		for j, i := range batch {
			ids[j] = steps[i].ID
		}
		out.Batches = append(out.Batches, ids)

		snapshot := out.Trace.Snapshot()
		var g errgroup.Group
		if e.cfg.MaxParallel > 0 {
			g.SetLimit(e.cfg.MaxParallel)
		}
		for _, i := range batch {
			step := steps[i]
			g.Go(func() error {
				out.Trace.Record(e.runStep(ctx, step, bi+1, snapshot, tools, qa))
				return nil
			})
		}
		_ = g.Wait()
	}
	batchesPerPlan.Observe(float64(len(out.Batches)))
	span.SetAttributes(attribute.Int("batches", len(out.Batches)))

	out.Entries = make([]Entry, 0, len(steps))
	for _, s := range steps {
		if entry, ok := out.Trace.Get(s.ID); ok {
			out.Entries = append(out.Entries, entry)
		}
	}
	out.Evidence = Flatten(out.Entries)
	return out, nil
}

type stepResult struct {
	res catalog.Result
	err error
}

// runStep executes one step and builds its trace entry.
func (e *Executor) runStep(ctx context.Context, step plan.Step, batch int, snapshot refs.Source, tools Tools, qa *artifacts.QueryArtifacts) Entry {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "executor.step",
		trace.WithAttributes(
			attribute.String("step_id", step.ID),
			attribute.String("tool", step.Tool),
			attribute.Int("batch", batch),
		),
	)
	defer span.End()

	start := time.Now()
	entry := Entry{StepID: step.ID, Tool: step.Tool, Batch: batch}
	finish := func() Entry {
		entry.Elapsed = time.Since(start)
		if entry.Status == StatusError {
			span.SetStatus(codes.Error, entry.Error)
		}
		stepDuration.WithLabelValues(step.Tool, string(entry.Status)).Observe(entry.Elapsed.Seconds())
		return entry
	}

	tool, ok := tools.Get(step.Tool)
	if !ok || tool == nil {
		entry.Status, entry.Error = StatusError, fmt.Sprintf("unknown tool: %s", step.Tool)
		entry.Args = step.Args
		return finish()
	}

	args := refs.Materialize(step.Args, snapshot)
	if args == nil {
		args = map[string]any{}
	}
	entry.Args = args

	sctx := ctx
	if e.cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, e.cfg.StepTimeout)
		defer cancel()
	}

	done := make(chan stepResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.cfg.Logger.Error("executor: tool panicked",
					slog.String("step_id", step.ID),
					slog.String("tool", step.Tool),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				done <- stepResult{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		res, err := tool.Run(sctx, args, qa)
		done <- stepResult{res: res, err: err}
	}()

	var r stepResult
	select {
	case r = <-done:
	case <-sctx.Done():
		// Prefer a result that raced the deadline.
		select {
		case r = <-done:
		default:
			if ctx.Err() != nil {
				r.err = ctx.Err()
			} else {
				r.err = fmt.Errorf("step timed out after %s", e.cfg.StepTimeout)
			}
		}
	}

	switch {
	case r.err != nil:
		entry.Status, entry.Error = StatusError, r.err.Error()
		span.RecordError(r.err)
		e.cfg.Logger.Warn("executor: step failed",
			slog.String("step_id", step.ID),
			slog.String("tool", step.Tool),
			slog.String("error", r.err.Error()),
		)
	case r.res.Kind == catalog.KindError:
		res := r.res
		entry.Status, entry.Output = StatusError, &res
		entry.Error = res.Preview
		if entry.Error == "" {
			entry.Error = Stringify(res.Value)
		}
	default:
		res := r.res
		entry.Status, entry.Output = StatusOK, &res
	}
	return finish()
}

// =============================================================================
// Evidence
// =============================================================================

// Flatten builds the evidence feed from entries: documents of docs results
// are expanded, every other successful result contributes its preview or its
// stringified value cut to PreviewLimit runes. Failed entries contribute
// nothing.
func Flatten(entries []Entry) []catalog.Doc {
	var out []catalog.Doc
	for _, e := range entries {
		if e.Status != StatusOK || e.Output == nil {
			continue
		}
		if e.Output.Kind == catalog.KindDocs {
			for _, d := range DocsOf(e.Output.Value) {
				if d.Source == "" {
					d.Source = e.Tool
				}
				out = append(out, d)
			}
			continue
		}
		text := e.Output.Preview
		if text == "" && e.Output.Value != nil {
			text = truncateRunes(Stringify(e.Output.Value), PreviewLimit)
		}
		out = append(out, catalog.Doc{Text: text, Source: e.Tool})
	}
	return out
}

// DocsOf extracts documents from a docs result value. It accepts []catalog.Doc
// and lists of JSON objects with text/source/url/title fields. Anything else
// yields no documents.
func DocsOf(v any) []catalog.Doc {
	switch t := v.(type) {
	case []catalog.Doc:
		return append([]catalog.Doc(nil), t...)
	case []map[string]any:
		out := make([]catalog.Doc, 0, len(t))
		for _, m := range t {
			out = append(out, docFromMap(m))
		}
		return out
	case []any:
		out := make([]catalog.Doc, 0, len(t))
		for _, x := range t {
			switch d := x.(type) {
			case map[string]any:
				out = append(out, docFromMap(d))
			case catalog.Doc:
				out = append(out, d)
			}
		}
		return out
	default:
		return nil
	}
}

func docFromMap(m map[string]any) catalog.Doc {
	s := func(k string) string {
		v, _ := m[k].(string)
		return v
	}
	return catalog.Doc{Text: s("text"), Source: s("source"), URL: s("url"), Title: s("title")}
}

// Stringify renders a result value as text: strings as-is, everything else
// as compact JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
