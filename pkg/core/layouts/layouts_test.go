// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layouts

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	for _, f := range Formats() {
		parsed, err := ParseFormat(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
	}
	f, err := ParseFormat("bfyx")
	require.NoError(t, err)
	assert.Equal(t, BFYX, f)

	f, err = ParseFormat("any")
	require.NoError(t, err)
	assert.Equal(t, AnyFormat, f)
	assert.False(t, f.IsValid())

	_, err = ParseFormat("zyx")
	require.Error(t, err)
	assert.Equal(t, "Format(99)", Format(99).String())
}

func TestParseDType(t *testing.T) {
	dtype, err := ParseDType("Float32")
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, dtype)

	dtype, err = ParseDType("int8")
	require.NoError(t, err)
	assert.Equal(t, dtypes.Int8, dtype)

	_, err = ParseDType("float7")
	require.Error(t, err)
}

func TestLayout(t *testing.T) {
	l := Make(dtypes.Float32, BFYX, 2, 3, 4, 5)
	assert.Equal(t, 120, l.Size())
	assert.True(t, l.Equal(Make(dtypes.Float32, BFYX, 2, 3, 4, 5)))
	assert.False(t, l.Equal(Make(dtypes.Float32, BFYX, 2, 3, 4)))
	assert.False(t, l.Equal(Make(dtypes.Float16, BFYX, 2, 3, 4, 5)))
	assert.False(t, l.Equal(Make(dtypes.Float32, YXFB, 2, 3, 4, 5)))
	assert.Equal(t, 1, Make(dtypes.Int8, RowMajor).Size())
	assert.Equal(t, "(Float32, BFYX)[2 3 4 5]", l.String())
}
