// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reusableconcat

import (
	"math"
	"testing"

	"github.com/gomlx/dnnprims/backends"
	"github.com/gomlx/dnnprims/pkg/core/dtypes"
	"github.com/gomlx/dnnprims/pkg/core/memdesc"
	"github.com/gomlx/dnnprims/pkg/primitives"
	"github.com/gomlx/dnnprims/pkg/primitives/concat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDesc(t *testing.T, axis int, dst memdesc.Desc, srcs ...memdesc.Desc) *concat.Desc {
	desc, err := concat.NewDesc(axis, dst, srcs...)
	require.NoError(t, err)
	return desc
}

func TestPlanGeneral(t *testing.T) {
	desc := newDesc(t, 1, memdesc.Make(dtypes.Float32, 2, 8, 4),
		memdesc.Make(dtypes.Float32, 2, 3, 4),
		memdesc.Make(dtypes.Float32, 2, 5, 4))
	p, rt, err := Plan(newEngine(t, ""), desc)
	require.NoError(t, err)

	assert.Equal(t, Params{
		N:            2,
		Simd:         32,
		DataTypeSize: 2,
		ReadBlock:    32,
		WriteBlock:   8,
	}, p)
	assert.Equal(t, []int{0, 1}, rt.Inputs)
	assert.Equal(t, []int{48, 80}, rt.SrcExternDimSizes)
	assert.Equal(t, []int{0, 3}, rt.Offset)
	assert.Equal(t, []int{0, 3}, rt.PaddedOffset)
	assert.Equal(t, 128, rt.DstExternDimSize)
	assert.Equal(t, 8, rt.DstConcatAxis)
	assert.Equal(t, 8, rt.DstPaddedConcatAxis)
	assert.Equal(t, 8, rt.InnerAxis)
	assert.Equal(t, 32, rt.Gws0Block)
	assert.Equal(t, 4, rt.ReadOverlap)
	assert.Equal(t, backends.Range{32, 1, 8}, rt.GWS)
	assert.Equal(t, backends.Range{32, 1, 8}, rt.LWS)

	assert.Equal(t, []string{
		"-DWRITE_BLOCK=8", "-DREAD_BLOCK=32", "-DN_INPUTS=2", "-DBLOCK_DEPTH=0", "-DSIMD=32",
		"-DDATA_TYPE_SIZE=2", "-DUSE_LARGE_INDEX=0", "-DBYTES_PER_WORKITEM=0",
	}, p.KernelCtx().Options())
}

func TestPlanDstOffset(t *testing.T) {
	desc := newDesc(t, 1, memdesc.Make(dtypes.Float32, 2, 8, 4).WithOffset0(6),
		memdesc.Make(dtypes.Float32, 2, 3, 4),
		memdesc.Make(dtypes.Float32, 2, 5, 4))
	p, rt, err := Plan(newEngine(t, ""), desc)
	require.NoError(t, err)
	// Offset of 24 bytes: elements can be at most 8 bytes wide.
	assert.LessOrEqual(t, p.DataTypeSize, 8)
	assert.Equal(t, 6*4/p.DataTypeSize, rt.DstOffset0)
}

// internalPaddingProblem returns int8 nChw16c sources with 10 and 16 channels (the first one padded to
// 16), concatenated along the channels into a destination of width w.
func internalPaddingProblem(t *testing.T, w int) *concat.Desc {
	return newDesc(t, 1, nChw16c(dtypes.Int8, 1, 26, 125, w),
		nChw16c(dtypes.Int8, 1, 10, 125, w),
		nChw16c(dtypes.Int8, 1, 16, 125, w))
}

func TestPlanInternalPaddingBoundary(t *testing.T) {
	engine := newEngine(t, "")

	// 32 (padded channels) * 125 * 125 = 500,000 bytes: the smallest size above the threshold this
	// layout can have is the next width. At the threshold the general kernel is used.
	desc := internalPaddingProblem(t, 125)
	require.Equal(t, MinInternalPaddingProblemBytes, desc.Dst.Size())
	p, rt, err := Plan(engine, desc)
	require.NoError(t, err)
	assert.False(t, p.UseInternalPaddingKernel)
	assert.Equal(t, Params{
		N:            2,
		Simd:         32,
		DataTypeSize: 1,
		Blocks:       []int{16},
		Strides:      []int{1},
		ReadBlock:    256,
		WriteBlock:   1,
	}, p)
	assert.Equal(t, []int{0, 10}, rt.Offset)
	assert.Equal(t, []int{0, 16}, rt.PaddedOffset)
	assert.Equal(t, []int{250000, 250000}, rt.SrcExternDimSizes)
	assert.Equal(t, 500000, rt.DstExternDimSize)
	assert.Equal(t, 26, rt.DstConcatAxis)
	assert.Equal(t, 32, rt.DstPaddedConcatAxis)
	assert.Equal(t, 250000, rt.InnerAxis)
	assert.Equal(t, 4_000_000, rt.Gws0Block)
	assert.Equal(t, 256, rt.ReadOverlap)
	assert.Equal(t, backends.Range{500000, 1, 32}, rt.GWS)

	// 32 * 125 * 126 = 504,000 bytes: internal padding kernel.
	desc = internalPaddingProblem(t, 126)
	require.Greater(t, desc.Dst.Size(), MinInternalPaddingProblemBytes)
	p, rt, err = Plan(engine, desc)
	require.NoError(t, err)
	assert.Equal(t, Params{
		N:                        2,
		Simd:                     32,
		DataTypeSize:             1,
		Blocks:                   []int{16},
		Strides:                  []int{1},
		ReadBlock:                1,
		WriteBlock:               1,
		UseInternalPaddingKernel: true,
		BytesPerWorkitem:         16,
	}, p)
	assert.Equal(t, 15750, rt.InnerAxis)
	assert.Equal(t, [2]int{10, 16}, rt.SrcConcatAxis)
	assert.Equal(t, [2]int{16, 16}, rt.PaddedSrcConcatAxis)
	assert.Equal(t, backends.Range{31520, 1, 1}, rt.GWS)
	require.NoError(t, rt.NDRange().Validate())
	assert.Contains(t, p.KernelCtx().Options(), "-DBYTES_PER_WORKITEM=16")
	assert.Contains(t, p.KernelCtx().Options(), "-DBLOCK_B0=16")
	assert.Contains(t, p.KernelCtx().Options(), "-DBLOCK_S0=1")
}

func TestPlanInternalPaddingRejected(t *testing.T) {
	// Three inputs: the internal padding kernel only takes two.
	desc := newDesc(t, 1, nChw16c(dtypes.Int8, 1, 42, 125, 126),
		nChw16c(dtypes.Int8, 1, 16, 125, 126),
		nChw16c(dtypes.Int8, 1, 16, 125, 126),
		nChw16c(dtypes.Int8, 1, 10, 125, 126))
	p, _, err := Plan(newEngine(t, ""), desc)
	require.NoError(t, err)
	assert.False(t, p.UseInternalPaddingKernel)
	assert.Equal(t, 3, p.N)

	// Subgroups narrower than the block.
	p, _, err = Plan(newEngine(t, "maxsg=8,subgroups=8"), internalPaddingProblem(t, 126))
	require.NoError(t, err)
	assert.False(t, p.UseInternalPaddingKernel)
	assert.Equal(t, 8, p.Simd)

	// Offset destination: the internal padding kernel can't shift its writes.
	desc = internalPaddingProblem(t, 126)
	desc.Dst = desc.Dst.WithOffset0(128)
	p, rt, err := Plan(newEngine(t, ""), desc)
	require.NoError(t, err)
	assert.False(t, p.UseInternalPaddingKernel)
	assert.Equal(t, 128/p.DataTypeSize, rt.DstOffset0)

	// Unsupported block size.
	block3 := func(c int) memdesc.Desc {
		return memdesc.MakeBlocked(dtypes.Float32, []int{1, c, 250, 250}, nil, memdesc.Block{Size: 3, Axis: 1})
	}
	p, _, err = Plan(newEngine(t, ""), newDesc(t, 1, block3(5), block3(2), block3(3)))
	if err == nil {
		assert.False(t, p.UseInternalPaddingKernel)
	} else {
		assert.True(t, primitives.IsUnimplemented(err))
	}
}

func TestPlanPaddingWaste(t *testing.T) {
	// 2 channels padded to 16, written one byte at a time.
	desc := newDesc(t, 1, nChw16c(dtypes.Int8, 1, 2, 3, 3), nChw16c(dtypes.Int8, 1, 2, 3, 3))
	_, _, err := Plan(newEngine(t, ""), desc)
	require.Error(t, err)
	assert.True(t, primitives.IsUnimplemented(err))
}

func TestPlanNoSubgroups(t *testing.T) {
	desc := newDesc(t, 1, memdesc.Make(dtypes.Float32, 2, 8, 4),
		memdesc.Make(dtypes.Float32, 2, 3, 4),
		memdesc.Make(dtypes.Float32, 2, 5, 4))
	p, rt, err := Plan(newEngine(t, "subgroups="), desc)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Simd)
	assert.Equal(t, 8, p.DataTypeSize)
	assert.Equal(t, 2, p.WriteBlock)
	require.NoError(t, rt.NDRange().Validate())
}

func TestPlanLargeIndex(t *testing.T) {
	const half = 1 << 29
	desc := newDesc(t, 0, memdesc.Make(dtypes.Float32, 2, half),
		memdesc.Make(dtypes.Float32, 1, half),
		memdesc.Make(dtypes.Float32, 1, half))
	require.Greater(t, desc.Dst.Size(), math.MaxInt32)
	p, rt, err := Plan(newEngine(t, ""), desc)
	require.NoError(t, err)
	assert.True(t, p.UseLargeIndex)
	assert.Equal(t, 8, p.DataTypeSize)
	assert.Equal(t, 128, p.ReadBlock)
	assert.Equal(t, backends.Range{1 << 26, 1, 2}, rt.GWS)
	assert.Contains(t, p.KernelCtx().Options(), "-DUSE_LARGE_INDEX=1")
}

func TestPlanLastAxis(t *testing.T) {
	// Rows of 32 and 64 bytes are split in chunks of 32 bytes copied as 2-byte elements.
	desc := newDesc(t, 2, memdesc.Make(dtypes.Int8, 4, 5, 96),
		memdesc.Make(dtypes.Int8, 4, 5, 32),
		memdesc.Make(dtypes.Int8, 4, 5, 64))
	p, rt, err := Plan(newEngine(t, ""), desc)
	require.NoError(t, err)
	assert.Equal(t, Params{
		N:            2,
		Simd:         32,
		DataTypeSize: 2,
		ReadBlock:    32,
		WriteBlock:   16,
	}, p)
	assert.Equal(t, []int{32, 64}, rt.SrcExternDimSizes)
	assert.Equal(t, 96, rt.DstExternDimSize)
	assert.Equal(t, []int{0, 1}, rt.Offset)
	assert.Equal(t, []int{0, 1}, rt.PaddedOffset)
	assert.Equal(t, 3, rt.DstConcatAxis)
	assert.Equal(t, 3, rt.DstPaddedConcatAxis)
	assert.Equal(t, 16, rt.InnerAxis)
	assert.Equal(t, 32, rt.Gws0Block)
	assert.Equal(t, 2, rt.ReadOverlap)
	assert.Equal(t, backends.Range{32, 10, 3}, rt.GWS)

	// Extents sharing no factor are not split.
	desc = newDesc(t, 2, memdesc.Make(dtypes.Int8, 4, 5, 96),
		memdesc.Make(dtypes.Int8, 4, 5, 31),
		memdesc.Make(dtypes.Int8, 4, 5, 65))
	p, rt, err = Plan(newEngine(t, ""), desc)
	require.NoError(t, err)
	assert.Equal(t, 1, p.DataTypeSize)
	assert.Equal(t, []int{0, 31}, rt.Offset)
	assert.Equal(t, 96, rt.DstPaddedConcatAxis)
}

func TestPlanAllEmpty(t *testing.T) {
	desc := newDesc(t, 1, memdesc.Make(dtypes.Float32, 2, 0, 4),
		memdesc.Make(dtypes.Float32, 2, 0, 4),
		memdesc.Make(dtypes.Float32, 2, 0, 4))
	p, rt, err := Plan(newEngine(t, ""), desc)
	require.NoError(t, err)
	assert.Equal(t, 0, p.N)
	assert.Empty(t, rt.Inputs)
	assert.Equal(t, 0, rt.GWS.Size())
}

func TestPlanRejects(t *testing.T) {
	engine := newEngine(t, "")
	opaque := memdesc.Make(dtypes.Float32, 2, 8).WithFormat(memdesc.FormatOpaque)
	desc := newDesc(t, 1, opaque, memdesc.Make(dtypes.Float32, 2, 8))
	_, _, err := Plan(engine, desc)
	assert.True(t, primitives.IsUnimplemented(err))

	// Blocks on an outer axis.
	desc = newDesc(t, 2, nChw16c(dtypes.Float32, 2, 16, 6, 5),
		nChw16c(dtypes.Float32, 2, 16, 2, 5),
		nChw16c(dtypes.Float32, 2, 16, 4, 5))
	_, _, err = Plan(engine, desc)
	assert.True(t, primitives.IsUnimplemented(err))

	// Too many inputs.
	srcs := make([]memdesc.Desc, MaxInputs+1)
	for i := range srcs {
		srcs[i] = memdesc.Make(dtypes.Float32, 4, 1)
	}
	desc = newDesc(t, 1, memdesc.Make(dtypes.Float32, 4, MaxInputs+1), srcs...)
	_, _, err = Plan(engine, desc)
	assert.True(t, primitives.IsUnimplemented(err))

	// Exactly MaxInputs is fine.
	desc = newDesc(t, 1, memdesc.Make(dtypes.Float32, 4, MaxInputs), srcs[:MaxInputs]...)
	p, _, err := Plan(engine, desc)
	require.NoError(t, err)
	assert.Equal(t, MaxInputs, p.N)
}
