// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, e := range Values() {
		parsed, err := Parse(e.String())
		require.NoError(t, err)
		assert.Equal(t, e, parsed)
	}
	parsed, err := Parse("reference")
	require.NoError(t, err)
	assert.Equal(t, Reference, parsed)

	_, err = Parse("cuda")
	require.Error(t, err)
	_, err = Parse("Invalid")
	require.Error(t, err)
}

func TestString(t *testing.T) {
	assert.Equal(t, "OCL", OCL.String())
	assert.Equal(t, "Type(17)", Type(17).String())
	assert.False(t, Invalid.IsValid())
	assert.True(t, XLA.IsValid())
	assert.Len(t, Values(), int(NumTypes)-1)
}
