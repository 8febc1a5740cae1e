// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reusableconcat

import (
	"testing"

	"github.com/gomlx/dnnprims/pkg/core/dtypes"
	"github.com/gomlx/dnnprims/pkg/core/memdesc"
	"github.com/gomlx/dnnprims/pkg/primitives"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nChw16c returns a layout with channels blocked by 16.
func nChw16c(dtype dtypes.DType, dims ...int) memdesc.Desc {
	return memdesc.MakeBlocked(dtype, dims, nil, memdesc.Block{Size: 16, Axis: 1})
}

func TestNormalizeDesc(t *testing.T) {
	testCases := []struct {
		name       string
		desc       memdesc.Desc
		axis       int
		dims       []int
		paddedDims []int
		strides    []int
		blocks     []memdesc.Block
	}{
		{
			name:       "plain",
			desc:       memdesc.Make(dtypes.Float32, 2, 3, 4),
			axis:       1,
			dims:       []int{2, 3, 4},
			paddedDims: []int{2, 3, 4},
			strides:    []int{12, 4, 1},
		},
		{
			name:       "plain first axis",
			desc:       memdesc.Make(dtypes.Float32, 2, 3, 4),
			axis:       0,
			dims:       []int{1, 2, 12},
			paddedDims: []int{1, 2, 12},
			strides:    []int{24, 12, 1},
		},
		{
			name:       "nhwc channels",
			desc:       memdesc.MakeBlocked(dtypes.Int8, []int{2, 8, 3, 5}, []int{0, 2, 3, 1}),
			axis:       1,
			dims:       []int{30, 8, 1},
			paddedDims: []int{30, 8, 1},
			strides:    []int{8, 1, 1},
		},
		{
			name:       "blocked channels",
			desc:       nChw16c(dtypes.Int8, 1, 26, 125, 125),
			axis:       1,
			dims:       []int{1, 26, 15625},
			paddedDims: []int{1, 32, 15625},
			strides:    []int{500000, 250000, 16},
			blocks:     []memdesc.Block{{Size: 16, Axis: axisConcat}},
		},
		{
			name:       "row view",
			desc:       memdesc.Make(dtypes.Float32, 2, 3, 4).WithStrides(24, 8, 1),
			axis:       2,
			dims:       []int{6, 4, 1},
			paddedDims: []int{6, 4, 1},
			strides:    []int{8, 1, 1},
		},
		{
			name:       "blocked inner axis",
			desc:       memdesc.MakeBlocked(dtypes.Float16, []int{2, 3, 5}, nil, memdesc.Block{Size: 8, Axis: 2}),
			axis:       1,
			dims:       []int{2, 3, 5},
			paddedDims: []int{2, 3, 8},
			strides:    []int{24, 8, 8},
			blocks:     []memdesc.Block{{Size: 8, Axis: axisInner}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := normalizeDesc(tc.desc, tc.axis)
			require.NoError(t, err)
			assert.Equal(t, tc.dims, n.Dims)
			assert.Equal(t, tc.paddedDims, n.PaddedDims)
			assert.Equal(t, tc.strides, n.Strides)
			if tc.blocks == nil {
				assert.Empty(t, n.InnerBlocks)
			} else {
				assert.Equal(t, tc.blocks, n.InnerBlocks)
			}
			assert.Equal(t, tc.desc.DType, n.DType)
		})
	}
}

func TestNormalizeDescRejects(t *testing.T) {
	testCases := []struct {
		name string
		desc memdesc.Desc
		axis int
	}{
		{"not blocked", memdesc.Make(dtypes.Float32, 2, 3).WithFormat(memdesc.FormatOpaque), 1},
		{"block on outer axis", nChw16c(dtypes.Float32, 2, 16, 3, 5), 2},
		{"inner axes not dense", memdesc.Make(dtypes.Float32, 2, 3, 4).WithStrides(24, 8, 1), 0},
		{"concat not dense", memdesc.Make(dtypes.Float32, 2, 3, 4).WithStrides(24, 8, 1), 1},
		{"blocked inner axes merged", memdesc.MakeBlocked(dtypes.Float32, []int{2, 3, 4, 5}, nil, memdesc.Block{Size: 4, Axis: 2}), 1},
		{"overlapping axes", memdesc.Make(dtypes.Float32, 2, 3, 4).WithStrides(4, 4, 1), 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := normalizeDesc(tc.desc, tc.axis)
			require.Error(t, err)
			assert.True(t, primitives.IsUnimplemented(err))
		})
	}
}

func TestNormalizationChunkSizes(t *testing.T) {
	n, err := newNormalization(memdesc.Make(dtypes.Float32, 2, 8, 4), 1)
	require.NoError(t, err)
	require.NoError(t, n.addSource(0, memdesc.Make(dtypes.Float32, 2, 3, 4)))
	require.NoError(t, n.addSource(1, memdesc.Make(dtypes.Float32, 2, 0, 4)))
	require.NoError(t, n.addSource(2, memdesc.Make(dtypes.Float32, 2, 5, 4)))
	assert.Equal(t, []int{0, 2}, n.inputs)
	assert.Len(t, n.srcs, 2)
	assert.Equal(t, 16, n.maxWriteSize)
	assert.Equal(t, 16, n.maxReadSize)
	assert.False(t, n.hasInternalPadding)
	assert.Equal(t, 4, n.dataTypeSize)

	// The pessimistic copy doesn't change the original.
	pessimistic := *n
	pessimistic.setPessimisticChunkSize()
	assert.Equal(t, 4, pessimistic.maxWriteSize)
	assert.Equal(t, 4, pessimistic.maxReadSize)
	assert.Equal(t, 16, n.maxWriteSize)

	// Blocked channels with a source boundary in the middle of a block: only single bytes are aligned.
	n, err = newNormalization(nChw16c(dtypes.Int8, 1, 26, 125, 125), 1)
	require.NoError(t, err)
	require.NoError(t, n.addSource(0, nChw16c(dtypes.Int8, 1, 10, 125, 125)))
	require.NoError(t, n.addSource(1, nChw16c(dtypes.Int8, 1, 16, 125, 125)))
	assert.True(t, n.hasInternalPadding)
	assert.Equal(t, 1, n.maxWriteSize)
	assert.Equal(t, 1, n.maxReadSize)

	// Offset of the destination limits the alignment.
	n, err = newNormalization(memdesc.Make(dtypes.Float32, 2, 8, 4).WithOffset0(2), 1)
	require.NoError(t, err)
	require.NoError(t, n.addSource(0, memdesc.Make(dtypes.Float32, 2, 8, 4)))
	assert.Equal(t, 8, n.maxWriteSize)
	assert.Equal(t, 16, n.maxReadSize)
}

func TestNormalizationSplitConcatAxis(t *testing.T) {
	n, err := newNormalization(memdesc.Make(dtypes.Int8, 4, 5, 96), 2)
	require.NoError(t, err)
	require.NoError(t, n.addSource(0, memdesc.Make(dtypes.Int8, 4, 5, 32)))
	require.NoError(t, n.addSource(1, memdesc.Make(dtypes.Int8, 4, 5, 64)))
	assert.Equal(t, 1, n.maxWriteSize)
	assert.Equal(t, 1, n.maxReadSize)

	n.splitConcatAxis()
	assert.Equal(t, []int{20, 3, 32}, n.dst.Dims)
	assert.Equal(t, []int{96, 32, 1}, n.dst.Strides)
	assert.Equal(t, []int{20, 1, 32}, n.srcs[0].Dims)
	assert.Equal(t, []int{20, 2, 32}, n.srcs[1].Dims)
	assert.Equal(t, []int{64, 32, 1}, n.srcs[1].Strides)
	assert.Equal(t, 3, n.paddedConcatTotal)
	assert.Equal(t, 32, n.maxWriteSize)
	assert.Equal(t, 32, n.maxReadSize)

	// Blocked concat axes are left alone.
	n, err = newNormalization(nChw16c(dtypes.Int8, 1, 32, 4, 4), 1)
	require.NoError(t, err)
	require.NoError(t, n.addSource(0, nChw16c(dtypes.Int8, 1, 16, 4, 4)))
	require.NoError(t, n.addSource(1, nChw16c(dtypes.Int8, 1, 16, 4, 4)))
	n.splitConcatAxis()
	assert.Equal(t, []int{1, 32, 16}, n.dst.Dims)
}

func TestNormalizationRejects(t *testing.T) {
	dst := nChw16c(dtypes.Int8, 1, 40, 4, 4)
	n, err := newNormalization(dst, 1)
	require.NoError(t, err)
	err = n.addSource(0, memdesc.Make(dtypes.Int8, 1, 20, 4, 4))
	assert.True(t, primitives.IsUnimplemented(err), "blocking differs")
	err = n.addSource(0, nChw16c(dtypes.Int16, 1, 20, 4, 4))
	assert.True(t, primitives.IsUnimplemented(err), "dtype differs")
	err = n.addSource(0, nChw16c(dtypes.Int8, 1, 20, 4, 5))
	assert.True(t, primitives.IsUnimplemented(err), "inner extent differs")

	// 20 (padded to 32) + 20 (padded to 32) doesn't fit in 40 (padded to 48).
	require.NoError(t, n.addSource(0, nChw16c(dtypes.Int8, 1, 20, 4, 4)))
	err = n.addSource(1, nChw16c(dtypes.Int8, 1, 20, 4, 4))
	assert.True(t, primitives.IsUnimplemented(err), "padded sources overflow")

	n, err = newNormalization(memdesc.Make(dtypes.Float32, 2, MaxInputs+1), 1)
	require.NoError(t, err)
	for i := range MaxInputs {
		require.NoError(t, n.addSource(i, memdesc.Make(dtypes.Float32, 2, 1)))
	}
	err = n.addSource(MaxInputs, memdesc.Make(dtypes.Float32, 2, 1))
	assert.True(t, primitives.IsUnimplemented(err), "too many inputs")
}
