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
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req ollamaEmbedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		vec := []float32{3, 4}
		if req.Input == "second" {
			vec = []float32{0, 2}
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResp{Embeddings: [][]float32{vec}})
	}))
	defer server.Close()

	e := NewOllamaEmbedder(server.URL, "test-model", 0, nil)
	assert.Equal(t, "test-model", e.Model())

	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[0][1], 1e-6)
	assert.InDelta(t, 1.0, vecs[1][1], 1e-6)
	assert.Equal(t, int32(2), calls.Load())

	empty, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestOllamaEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"empty vector", http.StatusOK, `{"embeddings":[]}`},
		{"bad json", http.StatusOK, `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewOllamaEmbedder(server.URL, "m", 0, nil).Embed(context.Background(), []string{"x"})
			assert.Error(t, err)
		})
	}
}

func TestNewOllamaEmbedder_EnvDefaults(t *testing.T) {
	t.Setenv("EMBEDDING_SERVICE_URL", "")
	t.Setenv("EMBEDDING_MODEL", "")
	e := NewOllamaEmbedder("", "", 0, nil)
	assert.Equal(t, defaultEmbeddingURL, e.url)
	assert.Equal(t, defaultEmbeddingModel, e.model)

	t.Setenv("EMBEDDING_MODEL", "custom")
	assert.Equal(t, "custom", NewOllamaEmbedder("", "", 0, nil).Model())
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
