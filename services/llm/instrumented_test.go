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
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInstrumentedChat_RecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ok := NewInstrumentedChat(ChatFunc(func(context.Context, []Message) (string, error) {
		return "fine", nil
	}), "openai", "gpt-4o-mini")
	out, err := ok.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "fine", out)

	bad := NewInstrumentedChat(ChatFunc(func(context.Context, []Message) (string, error) {
		return "", errors.New("openai: API returned 429: slow down")
	}), "openai", "gpt-4o-mini")
	_, err = bad.Chat(context.Background(), nil)
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "llm.InstrumentedChat.Chat", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestClassifyChatError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{context.DeadlineExceeded, "timeout"},
		{fmt.Errorf("openai: API returned 401: bad"), "auth"},
		{fmt.Errorf("openai: API returned 429: slow"), "rate_limit"},
		{fmt.Errorf("openai: API returned 503: down"), "server"},
		{fmt.Errorf("openai: client is nil"), "nil_client"},
		{errors.New("weird"), "unknown"},
	}
	for _, tt := range tests {
		if got := classifyChatError(tt.err); got != tt.want {
			t.Errorf("classifyChatError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
