// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reusableconcat

import (
	"math"

	"github.com/gomlx/dnnprims/backends"
	"github.com/gomlx/dnnprims/pkg/core/memdesc"
	"github.com/gomlx/dnnprims/pkg/primitives"
	"github.com/gomlx/dnnprims/pkg/primitives/concat"
	"k8s.io/klog/v2"
)

// Plan computes the kernel configuration and the launch parameters of the concat for the device
// described by caps.
//
// The internal padding kernel is tried first, if any input or the output is padded along the concat
// axis, and the general kernel otherwise or if it is rejected. It returns an error wrapping
// primitives.ErrUnimplemented if neither kernel can handle the problem.
func Plan(caps backends.Capabilities, desc *concat.Desc) (Params, RuntimeParams, error) {
	if !desc.Dst.IsBlocked() {
		return Params{}, RuntimeParams{}, primitives.Unimplementedf("destination format %s not supported", desc.Dst.Format)
	}
	norm, err := newNormalization(desc.Dst, desc.Axis)
	if err != nil {
		return Params{}, RuntimeParams{}, err
	}
	for i, src := range desc.Srcs {
		if err := norm.addSource(i, src); err != nil {
			return Params{}, RuntimeParams{}, err
		}
	}
	norm.splitConcatAxis()

	if len(norm.srcs) == 0 {
		// Nothing to copy: the primitive never launches.
		p := Params{Simd: 1, DataTypeSize: norm.dataTypeSize, ReadBlock: 1, WriteBlock: 1}
		var rt RuntimeParams
		layoutSources(norm, &p, &rt)
		rt.LWS = backends.Range{1, 1, 1}
		return p, rt, nil
	}

	if norm.hasInternalPadding {
		p, rt, err := planInternalPadding(caps, desc, *norm)
		if err == nil {
			klog.V(1).Infof("reusable concat: internal padding kernel, simd=%d, gws=%s", p.Simd, rt.GWS)
			return p, rt, nil
		}
		klog.V(1).Infof("reusable concat: internal padding kernel rejected: %v", err)
	}
	p, rt, err := planGeneral(caps, desc, norm)
	if err != nil {
		return Params{}, RuntimeParams{}, err
	}
	klog.V(1).Infof("reusable concat: general kernel, simd=%d, type size=%d, read/write block=%d/%d, gws=%s",
		p.Simd, p.DataTypeSize, p.ReadBlock, p.WriteBlock, rt.GWS)
	return p, rt, nil
}

// maxTensorBytes returns the size of the largest tensor taking part in the concat.
func maxTensorBytes(desc *concat.Desc) int {
	maxBytes := desc.Dst.Size()
	for i, src := range desc.Srcs {
		if !desc.IsEmptySource(i) {
			maxBytes = max(maxBytes, src.Size())
		}
	}
	return maxBytes
}

// layoutSources fills the per-input runtime parameters and the destination extents along the concat
// axis, shared by both kernels. It returns the padded extent of all inputs along the concat axis.
func layoutSources(norm *normalization, p *Params, rt *RuntimeParams) (paddedTotal int) {
	dts := norm.dataTypeSize
	numInputs := len(norm.srcs)
	rt.Inputs = append([]int(nil), norm.inputs...)
	rt.SrcExternDimSizes = make([]int, numInputs)
	rt.Offset = make([]int, numInputs)
	rt.PaddedOffset = make([]int, numInputs)
	var offset, paddedOffset, finalPadding int
	for ii, src := range norm.srcs {
		rt.SrcExternDimSizes[ii] = src.Strides[axisOuter] * dts
		concatDim, concatPaddedDim := src.Dims[axisConcat], src.PaddedDims[axisConcat]
		rt.Offset[ii] = offset
		rt.PaddedOffset[ii] = paddedOffset
		finalPadding = concatPaddedDim - concatDim
		offset += concatDim
		paddedOffset += concatPaddedDim
		if ii < len(rt.SrcConcatAxis) {
			rt.SrcConcatAxis[ii] = concatDim
			rt.PaddedSrcConcatAxis[ii] = concatPaddedDim
		}
	}
	p.N = numInputs

	dst := norm.dst
	rt.DstExternDimSize = dst.Strides[axisOuter] * dts
	rt.DstPaddedConcatAxis = dst.PaddedDims[axisConcat]
	rt.DstConcatAxis = min(rt.DstPaddedConcatAxis, offset+finalPadding)
	return paddedOffset
}

// concatBlocks returns the blocks of dst along the concat axis and their strides, from the innermost
// block, in elements of typeSize bytes.
func concatBlocks(dst memdesc.Desc, dataTypeSize, typeSize int) (blocks, strides []int) {
	stride := 1
	last := len(dst.InnerBlocks) - 1
	for ii := last; ii >= 0; ii-- {
		blk := dst.InnerBlocks[ii]
		size := blk.Size
		if ii == last {
			size = size * dataTypeSize / typeSize
		}
		if blk.Axis == axisConcat {
			blocks = append(blocks, size)
			strides = append(strides, stride)
		}
		stride *= size
	}
	return
}

// planGeneral configures the general blocked-copy kernel.
func planGeneral(caps backends.Capabilities, desc *concat.Desc, norm *normalization) (Params, RuntimeParams, error) {
	var p Params
	var rt RuntimeParams
	dts := norm.dataTypeSize
	info, err := selectBlock(caps, desc.Dst.Size(), norm.maxWriteSize, norm.maxReadSize)
	if err != nil {
		return Params{}, RuntimeParams{}, err
	}
	paddedTotal := layoutSources(norm, &p, &rt)
	dst := norm.dst
	typeSize := info.typeSize
	p.Blocks, p.Strides = concatBlocks(dst, dts, typeSize)

	externAxis := dst.Dims[axisOuter]
	innerAxis := dst.PaddedDims[axisInner] * dts / typeSize
	p.Simd = info.simd
	p.DataTypeSize = typeSize
	p.ReadBlock = info.block
	p.WriteBlock = min(info.block, norm.maxWriteSize/typeSize)
	rt.InnerAxis = dst.Strides[axisConcat] * dts / typeSize
	rt.DstOffset0 = dst.Offset0 * dts / typeSize

	rt.Gws0Block = lcm(innerAxis, p.ReadBlock)
	rt.ReadOverlap = rt.Gws0Block / innerAxis
	rt.GWS = backends.Range{
		rt.Gws0Block * p.Simd / p.ReadBlock,
		divUp(externAxis, rt.ReadOverlap),
		paddedTotal,
	}

	// Writing padding one byte at a time is too costly.
	if p.WriteBlock*p.DataTypeSize == 1 && PaddingWasteRatio*dst.Dims[axisConcat] <= dst.PaddedDims[axisConcat] {
		return Params{}, RuntimeParams{}, primitives.Unimplementedf("byte writes with padded concat axis %d for %d elements",
			dst.PaddedDims[axisConcat], dst.Dims[axisConcat])
	}

	rt.LWS = caps.OptimalLocalSize(rt.GWS, -1)
	p.UseLargeIndex = maxTensorBytes(desc) > math.MaxInt32
	return p, rt, nil
}

// planInternalPadding configures the two-input kernel specialized in inputs padded along the concat axis.
func planInternalPadding(caps backends.Capabilities, desc *concat.Desc, norm normalization) (Params, RuntimeParams, error) {
	norm.setPessimisticChunkSize()
	dts := norm.dataTypeSize
	dstBytes := desc.Dst.Size()
	p := Params{ReadBlock: 1, WriteBlock: 1}
	var rt RuntimeParams
	layoutSources(&norm, &p, &rt)
	dst := norm.dst
	p.Blocks, p.Strides = concatBlocks(dst, dts, dts)
	if len(p.Blocks) == 0 {
		return Params{}, RuntimeParams{}, primitives.Unimplementedf("no block along the concat axis")
	}
	innermostBlock := p.Blocks[0]

	maxSimd := 1
	bytesPerWorkitem := PreferredBytesPerWorkitem
	for _, simd := range simdWidths {
		if simd > caps.MaxSubgroupSize() {
			continue
		}
		if simd > 1 && !caps.SupportsSubgroup(simd) {
			continue
		}
		if simd > dstBytes/dts {
			continue
		}
		bytesPerWorkitem = PreferredBytesPerWorkitem
		if dts == 8 {
			bytesPerWorkitem = 8
		}
		elemsPerSimd := simd * (bytesPerWorkitem / dts)
		if elemsPerSimd%innermostBlock == 0 && elemsPerSimd >= innermostBlock && simd >= innermostBlock {
			maxSimd = simd
			break
		}
	}
	if maxSimd == 1 {
		return Params{}, RuntimeParams{}, primitives.Unimplementedf("no simd width fits block %d", innermostBlock)
	}
	p.Simd = maxSimd
	p.DataTypeSize = dts
	p.UseLargeIndex = maxTensorBytes(desc) > math.MaxInt32

	innerAxis := dst.Dims[axisInner]
	loadsPerThread := bytesPerWorkitem / dts
	minBlockReadElements := p.Simd * loadsPerThread
	rowInnerElements := innermostBlock * innerAxis
	switch {
	case p.N != 2:
		return Params{}, RuntimeParams{}, primitives.Unimplementedf("%d non-empty inputs, internal padding kernel takes 2", p.N)
	case dst.Offset0 != 0:
		// The kernel has no destination offset argument.
		return Params{}, RuntimeParams{}, primitives.Unimplementedf("destination offset %d", dst.Offset0)
	case dts < MinSubgroupAlignmentBytes && dts*innermostBlock < MinSubgroupAlignmentBytes:
		return Params{}, RuntimeParams{}, primitives.Unimplementedf("block of %d bytes misaligned for subgroup reads", dts*innermostBlock)
	case rowInnerElements <= minBlockReadElements:
		return Params{}, RuntimeParams{}, primitives.Unimplementedf("inner row of %d elements too small", rowInnerElements)
	case !isSupportedInternalPaddingBlock(innermostBlock):
		return Params{}, RuntimeParams{}, primitives.Unimplementedf("block %d not supported", innermostBlock)
	case dstBytes <= MinInternalPaddingProblemBytes:
		return Params{}, RuntimeParams{}, primitives.Unimplementedf("problem of %d bytes too small", dstBytes)
	}

	p.UseInternalPaddingKernel = true
	p.BytesPerWorkitem = bytesPerWorkitem
	rt.InnerAxis = innerAxis
	rt.GWS = backends.Range{
		divUp(dst.PaddedDims[axisConcat]*innerAxis, p.Simd*loadsPerThread) * p.Simd,
		dst.Dims[axisOuter],
		1,
	}
	rt.LWS = caps.OptimalLocalSize(rt.GWS, -1)
	return p, rt, nil
}

// isSupportedInternalPaddingBlock returns whether the internal padding kernel handles concat blocks of
// the given size.
func isSupportedInternalPaddingBlock(block int) bool {
	switch block {
	case 4, 8, 16, 32:
		return true
	}
	return false
}
