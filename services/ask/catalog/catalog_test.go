// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAsk/services/ask/artifacts"
)

func stub(id string, needs ...Need) Tool {
	return Func{
		S: Spec{ID: id, Name: id, Produces: KindDocs, Needs: needs},
		Fn: func(context.Context, Args, *artifacts.QueryArtifacts) (Result, error) {
			return Result{Kind: KindText, Value: id}, nil
		},
	}
}

func TestCatalog_OrderAndLookup(t *testing.T) {
	c, err := New(stub("b"), stub("a"), stub("c"))
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a", "c"}, c.IDs())
	specs := c.Specs()
	require.Len(t, specs, 3)
	assert.Equal(t, "b", specs[0].ID)

	tool, ok := c.Get("a")
	require.True(t, ok)
	res, err := tool.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", res.Value)

	_, ok = c.Get("zzz")
	assert.False(t, ok)
}

func TestCatalog_RegisterErrors(t *testing.T) {
	c, err := New(stub("a"))
	require.NoError(t, err)

	assert.True(t, errors.Is(c.Register(stub("a")), ErrDuplicateTool))
	assert.Error(t, c.Register(stub("")))

	c.Freeze()
	assert.True(t, errors.Is(c.Register(stub("b")), ErrFrozen))
	assert.Equal(t, []string{"a"}, c.IDs())

	_, err = New(stub("x"), stub("x"))
	assert.True(t, errors.Is(err, ErrDuplicateTool))
}

func TestCatalog_Subset(t *testing.T) {
	c, err := New(stub("a"), stub("b"), stub("c"))
	require.NoError(t, err)

	specs, unknown := c.Subset([]string{"c", "nope", "a"})
	require.Len(t, specs, 2)
	assert.Equal(t, "a", specs[0].ID)
	assert.Equal(t, "c", specs[1].ID)
	assert.Equal(t, []string{"nope"}, unknown)

	all, unknown := c.Subset(nil)
	assert.Len(t, all, 3)
	assert.Empty(t, unknown)
}

func TestSpec_Has(t *testing.T) {
	s := Spec{Needs: []Need{NeedNgrams, NeedMetricGate}}
	assert.True(t, s.Has(NeedNgrams))
	assert.True(t, s.Has(NeedMetricGate))
	assert.False(t, s.Has(NeedEmbedding))
}
