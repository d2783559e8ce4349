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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	got  []llms.MessageContent
	opts llms.CallOptions
	resp *llms.ContentResponse
	err  error
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = messages
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangChainClient_Chat(t *testing.T) {
	temp := float32(0.2)
	maxTokens := 256
	m := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "answer"}}}}
	c := NewLangChainClient(m, ChatOptions{Temperature: &temp, MaxTokens: &maxTokens})

	got, err := c.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "prior"},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", got)

	require.Len(t, m.got, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.got[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.got[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, m.got[2].Role)
	assert.InDelta(t, 0.2, m.opts.Temperature, 1e-6)
	assert.Equal(t, 256, m.opts.MaxTokens)
}

func TestLangChainClient_ChatErrors(t *testing.T) {
	_, err := NewLangChainClient(&fakeModel{err: errors.New("boom")}, ChatOptions{}).Chat(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = NewLangChainClient(&fakeModel{resp: &llms.ContentResponse{}}, ChatOptions{}).Chat(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")

	_, err = NewLangChainClient(nil, ChatOptions{}).Chat(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "nil_client", classifyChatError(err))
}
