// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package synthesis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAsk/services/ask/evidence"
	"github.com/AleutianAI/AleutianAsk/services/llm"
)

func TestAnswer_EmptyEvidenceSkipsModel(t *testing.T) {
	var calls atomic.Int32
	chat := llm.ChatFunc(func(ctx context.Context, _ []llm.Message) (string, error) {
		calls.Add(1)
		return "invented", nil
	})
	s := New(chat, Config{})

	for _, docs := range [][]evidence.Doc{nil, {{Title: "x", Content: "  ", Source: "x"}}} {
		got, err := s.Answer(context.Background(), "q", docs)
		require.NoError(t, err)
		assert.Equal(t, InsufficientContextAnswer, got)
	}
	assert.Zero(t, calls.Load())

	// No chat client is fine when there is nothing to say.
	got, err := New(nil, Config{}).Answer(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, InsufficientContextAnswer, got)
}

func TestAnswer_PromptCarriesContext(t *testing.T) {
	var seen []llm.Message
	chat := llm.ChatFunc(func(ctx context.Context, msgs []llm.Message) (string, error) {
		seen = msgs
		return "  Answer: 42  ", nil
	})
	docs := []evidence.Doc{
		{Title: "Guide", URL: "https://docs/x", Content: "Reset via settings.", Source: "docs_embed_search"},
		{Title: "empty", Content: "", Source: "slack_search"},
	}

	got, err := New(chat, Config{}).Answer(context.Background(), "How do I reset?", docs)
	require.NoError(t, err)
	assert.Equal(t, "Answer: 42", got)
	require.Len(t, seen, 2)
	assert.Equal(t, llm.RoleSystem, seen[0].Role)
	assert.Contains(t, seen[0].Content, "Use ONLY the provided context")
	assert.Contains(t, seen[1].Content, "User Question:\nHow do I reset?")
	assert.Contains(t, seen[1].Content, "docs_embed_search | Guide (https://docs/x):\nReset via settings.")
	assert.NotContains(t, seen[1].Content, "slack_search |")
}

func TestAnswer_Errors(t *testing.T) {
	docs := []evidence.Doc{{Title: "t", Content: "c", Source: "s"}}

	_, err := New(nil, Config{}).Answer(context.Background(), "q", docs)
	assert.ErrorIs(t, err, ErrNoChatClient)

	boom := errors.New("provider down")
	chat := llm.ChatFunc(func(ctx context.Context, _ []llm.Message) (string, error) { return "", boom })
	_, err = New(chat, Config{}).Answer(context.Background(), "q", docs)
	assert.ErrorIs(t, err, boom)
}

func TestBuildContext(t *testing.T) {
	got := BuildContext([]evidence.Doc{
		{Title: "A", Content: "one", Source: "s1"},
		{Content: "two", Source: "s2"},
		{Content: "three"},
	})
	assert.Equal(t, "s1 | A ():\none\n\ns2 | s2 ():\ntwo\n\n | doc ():\nthree", got)
}
