// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/AleutianAI/AleutianAsk/services/ask/config"
)

func restoreGlobal(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestSetup_Stdout(t *testing.T) {
	restoreGlobal(t)
	var buf bytes.Buffer

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Exporter: "stdout", ServiceName: "ask-test"}, &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "unit.span")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "unit.span")
	assert.Contains(t, buf.String(), "ask-test")
}

func TestSetup_None(t *testing.T) {
	restoreGlobal(t)
	otel.SetTracerProvider(noop.NewTracerProvider())

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Exporter: "none"}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.IsType(t, noop.TracerProvider{}, otel.GetTracerProvider())
}

func TestSetup_Errors(t *testing.T) {
	restoreGlobal(t)

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Exporter: "zipkin"}, nil)
	assert.Error(t, err)
	require.NotNil(t, shutdown, "failed setups still return a callable shutdown")
	assert.NoError(t, shutdown(context.Background()))

	_, err = Setup(context.Background(), config.TelemetryConfig{Exporter: "otlp"}, nil)
	assert.Error(t, err)
}

func TestSetup_OTLPIsLazy(t *testing.T) {
	restoreGlobal(t)

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Exporter: "otlp", OTLPEndpoint: "127.0.0.1:1"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
