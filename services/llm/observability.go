// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// chatTracerName is the shared OTel tracer name for chat and embedding calls.
const chatTracerName = "ask.llm"

// Package-level Prometheus metrics for chat and embedding calls.
var (
	// chatCallDuration measures the duration of ChatClient calls.
	//
	// Labels:
	//   - provider: "openai", "langchain-openai", "langchain-ollama"
	//   - status: "success" or "error"
	chatCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ask",
			Subsystem: "chat",
			Name:      "call_duration_seconds",
			Help:      "Duration of ChatClient calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)

	chatCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ask",
			Subsystem: "chat",
			Name:      "calls_total",
			Help:      "Total number of ChatClient calls.",
		},
		[]string{"provider", "status"},
	)

	// chatErrorsTotal counts ChatClient errors by type.
	//
	// Labels:
	//   - error_type: "timeout", "auth", "rate_limit", "server", "nil_client", "unknown"
	chatErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ask",
			Subsystem: "chat",
			Name:      "errors_total",
			Help:      "Total ChatClient errors by type.",
		},
		[]string{"provider", "error_type"},
	)

	embedCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ask",
			Subsystem: "embed",
			Name:      "call_duration_seconds",
			Help:      "Duration of embedding service calls in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 3},
		},
		[]string{"status"},
	)
)

// classifyChatError maps an error to a label-safe error type string.
//
// Description:
//
//	Inspects the error message to categorize it into one of the predefined
//	error types. Keeps Prometheus label cardinality fixed.
//
// Inputs:
//
//	err - The error to classify. May be nil.
//
// Outputs:
//
//	string - One of: "timeout", "auth", "rate_limit", "server",
//	         "nil_client", "unknown". Returns empty string for nil error.
//
// Thread Safety: Safe for concurrent use.
func classifyChatError(err error) string {
	if err == nil {
		return ""
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "client is nil"):
		return "nil_client"
	case strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "returned 401") ||
		strings.Contains(msg, "returned 403") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "api key"):
		return "auth"
	case strings.Contains(msg, "returned 429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests"):
		return "rate_limit"
	case strings.Contains(msg, "returned 500") ||
		strings.Contains(msg, "returned 502") ||
		strings.Contains(msg, "returned 503") ||
		strings.Contains(msg, "server error"):
		return "server"
	default:
		return "unknown"
	}
}

// recordChatMetrics records Prometheus metrics for a completed chat call.
func recordChatMetrics(provider string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		chatErrorsTotal.WithLabelValues(provider, classifyChatError(err)).Inc()
	}
	chatCallDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	chatCallsTotal.WithLabelValues(provider, status).Inc()
}

func recordEmbedMetrics(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	embedCallDuration.WithLabelValues(status).Observe(duration.Seconds())
}
