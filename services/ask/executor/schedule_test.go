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
	"math/rand"
	"testing"

	"github.com/AleutianAI/AleutianAsk/services/ask/plan"
)

// TestBuildSchedule_NoSameOrBackwardReferences checks, over random DAGs, that
// every step lands in a strictly later batch than each step it references.
func TestBuildSchedule_NoSameOrBackwardReferences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(8)
		steps := make([]plan.Step, n)
		for i := range steps {
			args := map[string]any{}
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					args[fmt.Sprintf("a%d", j)] = plan.Ref(fmt.Sprintf("s%d", j), "[value]")
				}
			}
			steps[i] = plan.Step{ID: fmt.Sprintf("s%d", i), Tool: "t", Args: args}
		}
		rng.Shuffle(len(steps), func(i, j int) { steps[i], steps[j] = steps[j], steps[i] })

		sched := BuildSchedule(steps)
		if len(sched.Cyclic) != 0 {
			t.Fatalf("trial %d: DAG reported cyclic steps %v", trial, sched.Cyclic)
		}
		batchOf := map[string]int{}
		total := 0
		for b, batch := range sched.Batches {
			for _, i := range batch {
				batchOf[steps[i].ID] = b
				total++
			}
		}
		if total != n {
			t.Fatalf("trial %d: scheduled %d of %d steps", trial, total, n)
		}
		known := map[string]bool{}
		for _, s := range steps {
			known[s.ID] = true
		}
		for _, s := range steps {
			for _, d := range plan.Dependencies(s, known) {
				if batchOf[d] >= batchOf[s.ID] {
					t.Errorf("trial %d: %s (batch %d) references %s (batch %d)", trial, s.ID, batchOf[s.ID], d, batchOf[d])
				}
			}
		}
	}
}

func TestBuildSchedule_Cycles(t *testing.T) {
	tests := []struct {
		name       string
		steps      []plan.Step
		wantCyclic []int
	}{
		{
			"two step cycle",
			[]plan.Step{
				{ID: "a", Args: map[string]any{"x": plan.Ref("b", "")}},
				{ID: "b", Args: map[string]any{"x": plan.Ref("a", "")}},
			},
			[]int{0, 1},
		},
		{
			"self reference",
			[]plan.Step{{ID: "a", Args: map[string]any{"x": plan.Ref("a", "[value]")}}},
			[]int{0},
		},
		{
			"dependent of a cycle is stuck too",
			[]plan.Step{
				{ID: "a", Args: map[string]any{"x": plan.Ref("b", "")}},
				{ID: "b", Args: map[string]any{"x": plan.Ref("a", "")}},
				{ID: "c", Args: map[string]any{"x": plan.Ref("a", "")}},
				{ID: "d"},
			},
			[]int{0, 1, 2},
		},
		{
			"dangling reference is not a dependency",
			[]plan.Step{{ID: "a", Args: map[string]any{"x": plan.Ref("ghost", "")}}},
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildSchedule(tt.steps).Cyclic
			if fmt.Sprint(got) != fmt.Sprint(tt.wantCyclic) {
				t.Errorf("Cyclic = %v, want %v", got, tt.wantCyclic)
			}
		})
	}
}
