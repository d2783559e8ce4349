// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianAsk/services/ask/catalog"
	"github.com/AleutianAI/AleutianAsk/services/ask/refs"
)

// Status is the outcome of one step.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Entry is the trace record of one plan step.
//
// Batch is the 1-based batch the step was dispatched in, or 0 when the step
// was never dispatched (cancelled or rejected as part of a cycle).
type Entry struct {
	StepID    string          `json:"step_id"`
	Tool      string          `json:"tool"`
	Status    Status          `json:"status"`
	Args      map[string]any  `json:"args,omitempty"`
	Output    *catalog.Result `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Elapsed   time.Duration   `json:"-"`
	ElapsedMS int64           `json:"elapsed_ms"`
	Batch     int             `json:"batch"`
}

// Trace is the write-once record of a plan execution keyed by step id.
//
// # Thread Safety
//
// Safe for concurrent use. Record is the only mutation and each step id can
// be recorded once.
type Trace struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewTrace returns an empty trace.
func NewTrace() *Trace {
	return &Trace{entries: make(map[string]Entry)}
}

// Record stores e. It returns false, leaving the trace unchanged, if the
// step id was already recorded.
func (t *Trace) Record(e Entry) bool {
	e.ElapsedMS = e.Elapsed.Milliseconds()
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[e.StepID]; ok {
		return false
	}
	t.entries[e.StepID] = e
	return true
}

// Get returns the entry for stepID.
func (t *Trace) Get(stepID string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[stepID]
	return e, ok
}

// Len returns the number of recorded entries.
func (t *Trace) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Snapshot returns a reference source over the successful outputs recorded
// so far. Later writes to the trace are not visible through it.
func (t *Trace) Snapshot() refs.Source {
	t.mu.RLock()
	defer t.mu.RUnlock()
	src := make(refs.MapSource, len(t.entries))
	for id, e := range t.entries {
		if e.Status == StatusOK && e.Output != nil {
			src[id] = *e.Output
		}
	}
	return src
}

// MarshalJSON renders the trace as an object keyed by step id.
func (t *Trace) MarshalJSON() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return json.Marshal(t.entries)
}
