// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapOfNames(t *testing.T) {
	assert.Equal(t, Float16, MapOfNames["Float16"])
	assert.Equal(t, Float16, MapOfNames["float16"])
	assert.Equal(t, Float16, MapOfNames["F16"])
	assert.Equal(t, Float16, MapOfNames["f16"])
	assert.Equal(t, BFloat16, MapOfNames["bf16"])
	assert.Equal(t, Int8, MapOfNames["s8"])
	assert.Equal(t, F8E4M3, MapOfNames["f8_e4m3"])
	assert.Equal(t, Bool, MapOfNames["boolean"])
}

func TestSize(t *testing.T) {
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 2, BFloat16.Size())
	assert.Equal(t, 1, F8E5M2.Size())
	assert.Equal(t, 8, Int64.Size())
	assert.Equal(t, 0, InvalidDType.Size())
	assert.Equal(t, 32, Float32.Bits())
	assert.Equal(t, 2*3*4*2, Float16.SizeForDimensions(2, 3, 4))
	assert.Equal(t, 4, Float32.SizeForDimensions())
	assert.Panics(t, func() { _ = Float32.SizeForDimensions(2, -1) })
}

func TestParse(t *testing.T) {
	dtype, err := Parse("F32")
	require.NoError(t, err)
	assert.Equal(t, Float32, dtype)

	dtype, err = Parse("BFLOAT16")
	require.NoError(t, err)
	assert.Equal(t, BFloat16, dtype)

	_, err = Parse("float128")
	require.Error(t, err)

	var fromText DType
	require.NoError(t, fromText.UnmarshalText([]byte("u8")))
	assert.Equal(t, Uint8, fromText)
	text, err := fromText.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Uint8", string(text))
}

func TestIsFloat(t *testing.T) {
	assert.True(t, Float32.IsFloat())
	assert.True(t, BFloat16.IsFloat())
	assert.False(t, Int8.IsFloat())
	assert.True(t, Int32.IsSupported())
	assert.False(t, DType(99).IsSupported())
	assert.Equal(t, "DType(99)", DType(99).String())
}
