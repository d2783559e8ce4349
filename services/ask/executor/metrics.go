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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// stepDuration measures step wall time.
	//
	// Labels:
	//   - tool: tool id
	//   - status: "ok" or "error"
	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ask",
			Subsystem: "executor",
			Name:      "step_duration_seconds",
			Help:      "Duration of plan steps in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool", "status"},
	)

	batchesPerPlan = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ask",
			Subsystem: "executor",
			Name:      "batches_per_plan",
			Help:      "Number of dispatched batches per executed plan.",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8},
		},
	)

	cycleLeftovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ask",
			Subsystem: "executor",
			Name:      "cycle_leftover_steps_total",
			Help:      "Steps caught in a dependency cycle, by cycle policy.",
		},
		[]string{"policy"},
	)
)
