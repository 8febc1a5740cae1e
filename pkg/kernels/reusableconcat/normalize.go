// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reusableconcat

import (
	"slices"

	"github.com/gomlx/dnnprims/pkg/core/memdesc"
	"github.com/gomlx/dnnprims/pkg/primitives"
)

// Axes of a normalized descriptor.
const (
	axisOuter = iota
	axisConcat
	axisInner
)

// normalization reinterprets the destination and the sources of a concat as rank-3 layouts
// {outer, concat, inner} relative to the concat axis, and measures the largest aligned chunks
// that can be read and written without crossing a source boundary.
type normalization struct {
	concatAxis   int
	dst          memdesc.Desc
	srcs         []memdesc.Desc // Normalized non-empty sources, in input order.
	inputs       []int          // Input index of each of srcs.
	dataTypeSize int

	maxWriteSize, maxReadSize int
	paddedConcatTotal         int
	hasInternalPadding        bool
}

func newNormalization(dst memdesc.Desc, concatAxis int) (*normalization, error) {
	nDst, err := normalizeDesc(dst, concatAxis)
	if err != nil {
		return nil, err
	}
	n := &normalization{
		concatAxis:         concatAxis,
		dst:                nDst,
		dataTypeSize:       dst.DType.Size(),
		hasInternalPadding: nDst.PaddedDims[axisConcat] > nDst.Dims[axisConcat],
	}
	n.updateChunkSizes()
	return n, nil
}

// addSource validates that src, the input number input, can be copied into the destination layout.
// Sources empty along the concat axis are ignored.
func (n *normalization) addSource(input int, src memdesc.Desc) error {
	if src.PaddedDims[n.concatAxis] == 0 {
		return nil
	}
	if len(n.srcs) == MaxInputs {
		return primitives.Unimplementedf("more than %d non-empty inputs", MaxInputs)
	}
	nSrc, err := normalizeDesc(src, n.concatAxis)
	if err != nil {
		return err
	}
	dst := n.dst
	switch {
	case nSrc.DType != dst.DType:
		return primitives.Unimplementedf("source dtype %s differs from destination dtype %s", nSrc.DType, dst.DType)
	case nSrc.Dims[axisOuter] != dst.Dims[axisOuter]:
		return primitives.Unimplementedf("source %s outer extent differs from destination %s", src, dst)
	case nSrc.Dims[axisInner] != dst.Dims[axisInner] || nSrc.PaddedDims[axisInner] != dst.PaddedDims[axisInner]:
		return primitives.Unimplementedf("source %s inner extent differs from destination %s", src, dst)
	case !slices.Equal(nSrc.InnerBlocks, dst.InnerBlocks):
		return primitives.Unimplementedf("source %s blocking differs from destination %s", src, dst)
	case nSrc.Strides[axisConcat] != dst.Strides[axisConcat] || nSrc.Strides[axisInner] != dst.Strides[axisInner]:
		return primitives.Unimplementedf("source %s inner layout differs from destination %s", src, dst)
	}
	n.paddedConcatTotal += nSrc.PaddedDims[axisConcat]
	if n.paddedConcatTotal > dst.PaddedDims[axisConcat] {
		return primitives.Unimplementedf("padded sources (%d) don't fit in padded destination (%d) along the concat axis",
			n.paddedConcatTotal, dst.PaddedDims[axisConcat])
	}
	if nSrc.PaddedDims[axisConcat] > nSrc.Dims[axisConcat] {
		n.hasInternalPadding = true
	}
	n.srcs = append(n.srcs, nSrc)
	n.inputs = append(n.inputs, input)
	n.updateChunkSizes()
	return nil
}

// splitConcatAxis moves the largest chunk shared by the destination and all sources along the
// concat axis into the inner axis, so rows can be copied with wider elements. It only applies to
// layouts with no blocks and no padding.
func (n *normalization) splitConcatAxis() {
	if len(n.srcs) == 0 || n.hasInternalPadding || len(n.dst.InnerBlocks) > 0 {
		return
	}
	chunk := n.dst.Dims[axisConcat]
	for _, src := range n.srcs {
		chunk = gcd(chunk, src.Dims[axisConcat])
	}
	if chunk <= 1 {
		return
	}
	n.dst = splitConcat(n.dst, chunk)
	for ii := range n.srcs {
		n.srcs[ii] = splitConcat(n.srcs[ii], chunk)
	}
	n.paddedConcatTotal /= chunk
	n.updateChunkSizes()
}

// splitConcat returns the normalized descriptor d with its concat axis split in rows of chunk
// elements, the rows merged into the inner axis.
func splitConcat(d memdesc.Desc, chunk int) memdesc.Desc {
	d = d.Clone()
	d.Dims[axisConcat] /= chunk
	d.PaddedDims[axisConcat] /= chunk
	d.Dims[axisInner] *= chunk
	d.PaddedDims[axisInner] *= chunk
	d.Strides[axisConcat] *= chunk
	return d
}

// updateChunkSizes recomputes maxWriteSize and maxReadSize after a source is added.
func (n *normalization) updateChunkSizes() {
	var extents int
	for _, src := range n.srcs {
		extents = gcd(extents, gcd(src.Dims[axisConcat], src.PaddedDims[axisConcat]))
	}
	n.maxWriteSize = pow2Divisor(contiguousBytes(n.dst, extents), MaxChunkBytes)
	var readBytes int
	for _, src := range n.srcs {
		readBytes = gcd(readBytes, contiguousBytes(src, gcd(src.Dims[axisConcat], src.PaddedDims[axisConcat])))
	}
	n.maxReadSize = pow2Divisor(readBytes, MaxChunkBytes)
}

// contiguousBytes returns the number of bytes that can be moved at once in the normalized layout d,
// when the data along the concat axis is split at multiples of concatGranularity.
//
// The result always divides the inner row, the outer stride and the offset of d.
func contiguousBytes(d memdesc.Desc, concatGranularity int) int {
	dts := d.DType.Size()
	var run int
	innermostConcat := -1
	for ii, blk := range d.InnerBlocks {
		if blk.Axis == axisConcat {
			innermostConcat = ii
		}
	}
	if innermostConcat >= 0 {
		run = gcd(d.InnerBlocks[innermostConcat].Size, concatGranularity)
		for _, blk := range d.InnerBlocks[innermostConcat+1:] {
			run *= blk.Size
		}
	} else {
		run = d.Strides[axisConcat] * concatGranularity
	}
	bytes := gcd(run*dts, d.PaddedDims[axisInner]*dts)
	if len(d.InnerBlocks) > 0 {
		// The innermost block is reinterpreted in units of the chunk.
		bytes = gcd(bytes, d.InnerBlocks[len(d.InnerBlocks)-1].Size*dts)
	}
	if d.Dims[axisOuter] > 1 {
		bytes = gcd(bytes, d.Strides[axisOuter]*dts)
	}
	return gcd(bytes, d.Offset0*dts)
}

// setPessimisticChunkSize limits reads and writes to one element at a time.
func (n *normalization) setPessimisticChunkSize() {
	n.maxWriteSize = n.dataTypeSize
	n.maxReadSize = n.dataTypeSize
}

// normalizeDesc reinterprets d as a rank-3 layout {outer, concat, inner}, with the axes laid out
// before the concat axis in memory merged into outer, and the ones after merged into inner.
//
// It fails with primitives.ErrUnimplemented if d can't be expressed this way: non-blocked formats,
// blocks on outer axes, blocked inner axes that would need merging, or inner axes that are not dense.
func normalizeDesc(d memdesc.Desc, concatAxis int) (memdesc.Desc, error) {
	if !d.IsBlocked() {
		return memdesc.Desc{}, primitives.Unimplementedf("%s format %s not supported", d, d.Format)
	}
	var outer, inner []int
	outerDims, outerPadded := 1, 1
	innerDims, innerPadded := 1, 1
	afterConcat := false
	for _, axis := range d.StrideOrder() {
		if axis == concatAxis {
			afterConcat = true
			continue
		}
		isUnit := d.PaddedDims[axis] <= 1 && d.BlockProduct(axis) == 1
		if afterConcat {
			innerDims *= d.Dims[axis]
			innerPadded *= d.PaddedDims[axis]
			if !isUnit {
				inner = append(inner, axis)
			}
		} else {
			outerDims *= d.Dims[axis]
			outerPadded *= d.PaddedDims[axis]
			if !isUnit {
				outer = append(outer, axis)
			}
		}
	}

	blocks := make([]memdesc.Block, len(d.InnerBlocks))
	for ii, blk := range d.InnerBlocks {
		switch {
		case blk.Axis == concatAxis:
			blocks[ii] = memdesc.Block{Size: blk.Size, Axis: axisConcat}
		case slices.Contains(outer, blk.Axis):
			return memdesc.Desc{}, primitives.Unimplementedf("%s has a block on axis %d, outside of the concat axis", d, blk.Axis)
		case len(inner) > 1:
			return memdesc.Desc{}, primitives.Unimplementedf("%s has a block on axis %d that can't be merged with the other inner axes", d, blk.Axis)
		default:
			blocks[ii] = memdesc.Block{Size: blk.Size, Axis: axisInner}
		}
	}

	// Inner axes must be dense, starting at the inner block.
	expected := d.InnerBlockTotal()
	innerStride := expected
	for ii := len(inner) - 1; ii >= 0; ii-- {
		axis := inner[ii]
		if d.Strides[axis] != expected {
			return memdesc.Desc{}, primitives.Unimplementedf("%s inner axis %d is not dense", d, axis)
		}
		expected = d.OuterExtent(axis) * d.Strides[axis]
	}
	concatStride := d.Strides[concatAxis]
	if d.OuterExtent(concatAxis) <= 1 {
		concatStride = expected
	} else if concatStride != expected {
		return memdesc.Desc{}, primitives.Unimplementedf("%s concat axis %d is not dense with the inner axes", d, concatAxis)
	}

	// Outer axes must chain densely among themselves, the innermost one can have any stride that
	// doesn't overlap the concat axis.
	expected = d.OuterExtent(concatAxis) * concatStride
	outerStride := expected
	for ii := len(outer) - 1; ii >= 0; ii-- {
		axis := outer[ii]
		if ii == len(outer)-1 {
			if d.Strides[axis] < expected {
				return memdesc.Desc{}, primitives.Unimplementedf("%s outer axis %d overlaps the concat axis", d, axis)
			}
			outerStride = d.Strides[axis]
		} else if d.Strides[axis] != expected {
			return memdesc.Desc{}, primitives.Unimplementedf("%s outer axis %d is not dense", d, axis)
		}
		expected = d.OuterExtent(axis) * d.Strides[axis]
	}

	return memdesc.Desc{
		DType:       d.DType,
		Dims:        []int{outerDims, d.Dims[concatAxis], innerDims},
		PaddedDims:  []int{outerPadded, d.PaddedDims[concatAxis], innerPadded},
		Strides:     []int{outerStride, concatStride, innerStride},
		InnerBlocks: blocks,
		Offset0:     d.Offset0,
		Format:      memdesc.FormatBlocked,
	}, nil
}
