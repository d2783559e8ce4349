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
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedChat wraps a ChatClient with an OTel span and Prometheus
// metrics per call.
//
// Thread Safety: safe for concurrent use if the wrapped client is.
type InstrumentedChat struct {
	inner    ChatClient
	provider string
	model    string
}

// NewInstrumentedChat wraps inner. provider labels the metrics.
func NewInstrumentedChat(inner ChatClient, provider, model string) *InstrumentedChat {
	return &InstrumentedChat{inner: inner, provider: provider, model: model}
}

// Chat implements ChatClient.
func (c *InstrumentedChat) Chat(ctx context.Context, messages []Message) (string, error) {
	if c.inner == nil {
		err := fmt.Errorf("%s: client is nil", c.provider)
		recordChatMetrics(c.provider, 0, err)
		return "", err
	}

	ctx, span := otel.Tracer(chatTracerName).Start(ctx, "llm.InstrumentedChat.Chat",
		trace.WithAttributes(
			attribute.String("provider", c.provider),
			attribute.String("model", c.model),
			attribute.Int("message_count", len(messages)),
		),
	)
	defer span.End()

	start := time.Now()
	out, err := c.inner.Chat(ctx, messages)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, SafeLogString(err.Error()))
		recordChatMetrics(c.provider, duration, err)
		return "", err
	}
	span.SetAttributes(attribute.Int("response_len", len(out)))
	recordChatMetrics(c.provider, duration, nil)
	return out, nil
}
