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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianAsk/services/ask/plan"
)

// CyclePolicy decides what happens to steps that can never become ready
// because their dependencies form a cycle.
type CyclePolicy string

const (
	// CycleBestEffort runs the leftover steps as one final batch. Their
	// references into each other resolve to absent.
	CycleBestEffort CyclePolicy = "best_effort"

	// CycleReject records every leftover step as an error without running it.
	CycleReject CyclePolicy = "reject"
)

// ParseCyclePolicy accepts "best_effort" and "reject". Empty selects
// best_effort.
func ParseCyclePolicy(s string) (CyclePolicy, error) {
	switch CyclePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", CycleBestEffort:
		return CycleBestEffort, nil
	case CycleReject:
		return CycleReject, nil
	default:
		return "", fmt.Errorf("executor: unknown cycle policy %q", s)
	}
}

// Schedule is the batch decomposition of a plan.
type Schedule struct {
	// Batches hold indexes into the plan, in plan order within a batch.
	Batches [][]int

	// Cyclic holds the indexes of steps that never became ready.
	Cyclic []int
}

// BuildSchedule runs Kahn's topological batch algorithm over steps.
//
// # Description
//
// A step depends on every step id referenced from its arguments that exists
// in the plan. Steps with no unmet dependencies form the first batch; each
// following batch holds the steps whose dependencies were all satisfied by
// earlier batches. No step ever shares a batch with a step it references.
// Steps caught in a cycle (including a step that references itself) are
// returned in Cyclic in plan order.
//
// # Inputs
//
//   - steps: The plan. Step ids must be unique.
//
// # Outputs
//
//   - Schedule: Batches and cyclic leftovers.
func BuildSchedule(steps []plan.Step) Schedule {
	known := make(map[string]bool, len(steps))
	for _, s := range steps {
		known[s.ID] = true
	}

	pending := make([]map[string]bool, len(steps))
	for i, s := range steps {
		deps := make(map[string]bool)
		for _, d := range plan.Dependencies(s, known) {
			deps[d] = true
		}
		pending[i] = deps
	}

	var sched Schedule
	done := make(map[string]bool, len(steps))
	placed := make([]bool, len(steps))
	for {
		var batch []int
		for i := range steps {
			if !placed[i] && len(pending[i]) == 0 {
				batch = append(batch, i)
			}
		}
		if len(batch) == 0 {
			break
		}
		for _, i := range batch {
			placed[i] = true
			done[steps[i].ID] = true
		}
		for i := range steps {
			if placed[i] {
				continue
			}
			for d := range pending[i] {
				if done[d] {
					delete(pending[i], d)
				}
			}
		}
		sched.Batches = append(sched.Batches, batch)
	}
	for i := range steps {
		if !placed[i] {
			sched.Cyclic = append(sched.Cyclic, i)
		}
	}
	return sched
}
