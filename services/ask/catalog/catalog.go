// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog defines the tool contract of the ask service and the
// ordered registry of available tools.
//
// The catalog is populated at startup and frozen before the first request.
// After Freeze it is read-only, so executors may read it without locking
// concerns.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
)

// Kind is the shape of a tool's output value.
type Kind string

const (
	KindText  Kind = "text"
	KindJSON  Kind = "json"
	KindDocs  Kind = "docs"
	KindList  Kind = "list"
	KindError Kind = "error" // results only; never declared by a tool
)

// Need is a cross-cutting capability a tool requires the composer to attach.
type Need string

const (
	NeedNgrams          Need = "ngrams"
	NeedEmbedding       Need = "embedding"
	NeedExclusionFilter Need = "exclusion-filter"
	NeedMetricGate      Need = "metric-gate"
)

// Sentinel errors.
var (
	ErrUnknownTool   = errors.New("catalog: unknown tool")
	ErrDuplicateTool = errors.New("catalog: duplicate tool id")
	ErrFrozen        = errors.New("catalog: registration after freeze")
)

// Spec describes a tool to the planner and the composer.
type Spec struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Produces    Kind   `json:"produces"`
	Needs       []Need `json:"needs,omitempty"`
}

// Has reports whether the spec declares need n.
func (s Spec) Has(n Need) bool {
	for _, x := range s.Needs {
		if x == n {
			return true
		}
	}
	return false
}

// Doc is one document inside a KindDocs result value.
type Doc struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
	URL    string `json:"url,omitempty"`
	Title  string `json:"title,omitempty"`
}

// Result is what a tool returns.
type Result struct {
	Kind     Kind           `json:"kind"`
	Value    any            `json:"value"`
	Preview  string         `json:"preview,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrorResult builds a KindError result carrying msg.
func ErrorResult(msg string) Result {
	return Result{Kind: KindError, Value: msg, Preview: msg}
}

// Args are the materialized arguments of one tool invocation.
type Args = map[string]any

// Tool is a search or data collaborator the executor can invoke.
//
// # Description
//
// Run receives fully materialized arguments (no reference markers) and the
// shared per-query artifacts. It returns a Result or an error; the executor
// turns errors, panics and KindError results into failed trace entries.
//
// # Thread Safety
//
// Run may be called concurrently from several steps.
type Tool interface {
	Spec() Spec
	Run(ctx context.Context, args Args, qa *artifacts.QueryArtifacts) (Result, error)
}

// Func adapts a spec and a function to the Tool interface.
type Func struct {
	S  Spec
	Fn func(ctx context.Context, args Args, qa *artifacts.QueryArtifacts) (Result, error)
}

// Spec implements Tool.
func (f Func) Spec() Spec { return f.S }

// Run implements Tool.
func (f Func) Run(ctx context.Context, args Args, qa *artifacts.QueryArtifacts) (Result, error) {
	return f.Fn(ctx, args, qa)
}

// =============================================================================
// Catalog
// =============================================================================

// Catalog is the ordered registry of tools. Registration order is the
// catalog order used by planner fallback and listings.
//
// # Thread Safety
//
// Safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]Tool
	frozen bool
}

// New creates an empty catalog, registering the given tools in order.
func New(tools ...Tool) (*Catalog, error) {
	c := &Catalog{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := c.Register(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a tool. Fails on an empty or duplicate id and after Freeze.
func (c *Catalog) Register(t Tool) error {
	spec := t.Spec()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return fmt.Errorf("%w: %s", ErrFrozen, spec.ID)
	}
	if spec.ID == "" {
		return fmt.Errorf("catalog: tool id is empty")
	}
	if _, ok := c.tools[spec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, spec.ID)
	}
	c.tools[spec.ID] = t
	c.order = append(c.order, spec.ID)
	return nil
}

// Freeze makes the catalog read-only.
func (c *Catalog) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// Get looks a tool up by id.
func (c *Catalog) Get(id string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[id]
	return t, ok
}

// Specs returns every spec in catalog order.
func (c *Catalog) Specs() []Spec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Spec, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tools[id].Spec())
	}
	return out
}

// IDs returns every tool id in catalog order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Subset returns the specs of the given ids that exist, in catalog order.
// Unknown ids are returned separately. An empty ids list selects everything.
func (c *Catalog) Subset(ids []string) (specs []Spec, unknown []string) {
	if len(ids) == 0 {
		return c.Specs(), nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.Get(id); !ok {
			unknown = append(unknown, id)
			continue
		}
		want[id] = true
	}
	for _, s := range c.Specs() {
		if want[s.ID] {
			specs = append(specs, s)
		}
	}
	return specs, unknown
}
