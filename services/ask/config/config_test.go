// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAsk/services/ask/evidence"
	"github.com/AleutianAI/AleutianAsk/services/ask/keywords"
)

func env(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadWith_Defaults(t *testing.T) {
	cfg, err := LoadWith("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8088", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Planner.Timeout)
	assert.Equal(t, "best_effort", cfg.Executor.CyclePolicy)
	assert.Equal(t, 168*time.Hour, cfg.Artifacts.StoreTTL)
	assert.Equal(t, []int{1, 2, 3}, cfg.Keywords.Sizes)
	assert.Equal(t, keywords.PruneWithinPhrase, cfg.Keywords.Mode)
	assert.Equal(t, evidence.DefaultBudgets(), cfg.Evidence.Budgets())
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 300, cfg.Embedding.ChunkMaxWords)
	assert.Equal(t, "https://api.fathom.ai/external/v1", cfg.Tools.Fathom.BaseURL)
	assert.Equal(t, "none", cfg.Telemetry.Exporter)
}

func TestLoadWith_OverlayAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ask.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
executor:
  max_parallel: 2
  cycle_policy: reject
evidence:
  direct:
    max_docs: 5
tools:
  docs:
    top_k: 9
`), 0o600))

	cfg, err := LoadWith("", env(map[string]string{
		EnvConfigPath:           path,
		"LLM_MODEL":             "gpt-4.1-mini",
		"EMBEDDING_SERVICE_URL": "http://embed:11434",
		"ASK_STEP_TIMEOUT":      "5s",
		"TYPESENSE_URL":         "",
	}))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Executor.MaxParallel)
	assert.Equal(t, "reject", cfg.Executor.CyclePolicy)
	assert.Equal(t, 5, cfg.Evidence.Direct.MaxDocs)
	assert.Equal(t, 800, cfg.Evidence.Direct.TextLen, "unset overlay keys keep defaults")
	assert.Equal(t, 9, cfg.Tools.Docs.TopK)
	assert.Equal(t, "gpt-4.1-mini", cfg.LLM.Model)
	assert.Equal(t, "http://embed:11434", cfg.Embedding.URL)
	assert.Equal(t, 5*time.Second, cfg.Executor.StepTimeout)
	assert.Empty(t, cfg.Tools.Typesense.URL)
}

func TestLoadWith_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		overlay string
		env     map[string]string
	}{
		{"cycle policy", "executor:\n  cycle_policy: explode\n", nil},
		{"zero budget", "evidence:\n  planned:\n    max_docs: 0\n", nil},
		{"otlp without endpoint", "telemetry:\n  exporter: otlp\n", nil},
		{"overlap too large", "embedding:\n  chunk_overlap_words: 400\n", nil},
		{"prune mode", "keywords:\n  prune_mode: sideways\n", nil},
		{"provider", "", map[string]string{"LLM_PROVIDER": "carrier-pigeon"}},
		{"bad int env", "", map[string]string{"ASK_MAX_PARALLEL": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.overlay != "" {
				path = filepath.Join(t.TempDir(), "ask.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.overlay), 0o600))
			}
			_, err := LoadWith(path, env(tt.env))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadWith_MissingFile(t *testing.T) {
	_, err := LoadWith(filepath.Join(t.TempDir(), "nope.yaml"), env(nil))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestSecretStore(t *testing.T) {
	s := LoadSecrets(env(map[string]string{
		"SLACK_API_KEY":  "xoxp-legacy",
		"FATHOM_API_KEY": "fathom-secret",
		"OPENAI_API_KEY": "",
	}))

	assert.True(t, s.Has(SecretSlackToken))
	assert.True(t, s.Has(SecretFathomKey))
	assert.False(t, s.Has(SecretOpenAIKey))

	var got string
	require.NoError(t, s.With(SecretFathomKey, func(v string) error {
		got = string([]byte(v))
		return nil
	}))
	assert.Equal(t, "fathom-secret", got)
	assert.Equal(t, "xoxp-legacy", s.Reveal(SecretSlackToken))
	assert.Empty(t, s.Reveal(SecretOpenAIKey))
	assert.Error(t, s.With(SecretOpenAIKey, func(string) error { return nil }))

	s.Set(SecretFathomKey, "")
	assert.False(t, s.Has(SecretFathomKey))

	var nilStore *SecretStore
	assert.False(t, nilStore.Has(SecretSlackToken))
}

func TestWatcher_ReloadsOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ask.yaml")
	require.NoError(t, os.WriteFile(path, []byte("executor:\n  max_parallel: 3\n"), 0o600))

	load := func(p string) (*Config, error) { return LoadWith(p, env(nil)) }
	initial, err := load(path)
	require.NoError(t, err)
	src := NewSource(initial)

	w := NewWatcher(path, src, load, nil)
	w.debounce = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// An invalid write keeps the previous config.
	require.NoError(t, os.WriteFile(path, []byte("executor:\n  cycle_policy: nope\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, src.Current().Executor.MaxParallel)

	require.NoError(t, os.WriteFile(path, []byte("executor:\n  max_parallel: 6\n"), 0o600))
	require.Eventually(t, func() bool {
		return src.Current().Executor.MaxParallel == 6
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, w.Reloads(), int64(1))
}
