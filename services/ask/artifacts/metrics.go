// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifacts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// computations counts artifact computations by artifact and outcome.
	computations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ask",
			Subsystem: "artifacts",
			Name:      "computations_total",
			Help:      "Artifact computations by artifact (ngrams, embedding) and status.",
		},
		[]string{"artifact", "status"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ask",
			Subsystem: "artifacts",
			Name:      "cache_lookups_total",
			Help:      "Artifact cache entry lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	storeLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ask",
			Subsystem: "artifacts",
			Name:      "store_lookups_total",
			Help:      "Persistent embedding store lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	cacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ask",
			Subsystem: "artifacts",
			Name:      "evictions_total",
			Help:      "Cache entries evicted because the cache was full.",
		},
	)

	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ask",
			Subsystem: "artifacts",
			Name:      "entries",
			Help:      "Live artifact cache entries.",
		},
	)
)
