// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package memdesc defines Desc, the description of how a tensor is laid out in memory.
//
// A Desc holds the logical dimensions of a tensor, the padded (physically allocated) dimensions,
// the per-axis strides and the inner block structure, in the "blocked" format used by GPU
// primitives:
//
//   - Strides[axis] is the stride, in elements, of the *outer* index of the axis, that is, of
//     index / BlockProduct(axis).
//   - InnerBlocks lists the blocks from the outermost to the innermost: e.g. the "nChw16c" layout
//     has a single block {Size: 16, Axis: 1}.
//   - PaddedDims[axis] is always a multiple of BlockProduct(axis).
//
// Desc values are treated as immutable: methods that "change" a Desc return a modified clone.
//
// ## Glossary
//
//   - Padded extent: the physically allocated size along an axis, which may exceed the logical
//     (valid data) extent due to blocking.
//   - Outer extent: PaddedDims[axis] / BlockProduct(axis), the number of blocks along the axis.
package memdesc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/dnnprims/pkg/core/dtypes"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// FormatKind of a memory descriptor. Only FormatBlocked describes a concrete layout.
type FormatKind int

const (
	FormatUndef FormatKind = iota
	// FormatAny lets the primitive choose the layout.
	FormatAny
	// FormatBlocked is a layout described by strides and inner blocks.
	FormatBlocked
	// FormatOpaque is an implementation specific layout.
	FormatOpaque
)

var formatNames = [...]string{"undef", "any", "blocked", "opaque"}

// String implements fmt.Stringer.
func (f FormatKind) String() string {
	if f >= 0 && int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("FormatKind(%d)", int(f))
}

// Block is one inner block of a blocked layout: Size consecutive indices of Axis are stored
// contiguously.
type Block struct {
	Size int `json:"size" yaml:"size"`
	Axis int `json:"axis" yaml:"axis"`
}

// Desc describes the memory layout of a tensor. See package documentation.
type Desc struct {
	DType       dtypes.DType `json:"dtype"`
	Dims        []int        `json:"dims"`
	PaddedDims  []int        `json:"padded_dims"`
	Strides     []int        `json:"strides"`
	InnerBlocks []Block      `json:"inner_blocks,omitempty"`
	Offset0     int          `json:"offset0,omitempty"`
	Format      FormatKind   `json:"format"`
}

// Make returns a plain (not blocked) dense row-major descriptor.
func Make(dtype dtypes.DType, dims ...int) Desc {
	return MakeBlocked(dtype, dims, nil)
}

// MakeBlocked returns a dense descriptor with the outer indices laid out in the given order
// (outermost first; nil means the identity order) and the given inner blocks
// (outermost first).
//
// It panics if the parameters are inconsistent, the same way shapes are validated on creation.
func MakeBlocked(dtype dtypes.DType, dims []int, order []int, blocks ...Block) Desc {
	rank := len(dims)
	if order == nil {
		order = make([]int, rank)
		for axis := range order {
			order[axis] = axis
		}
	}
	if len(order) != rank {
		exceptions.Panicf("memdesc.MakeBlocked(%s, %v): order %v doesn't match rank %d", dtype, dims, order, rank)
	}
	seen := make([]bool, rank)
	for _, axis := range order {
		if axis < 0 || axis >= rank || seen[axis] {
			exceptions.Panicf("memdesc.MakeBlocked(%s, %v): order %v is not a permutation of the axes", dtype, dims, order)
		}
		seen[axis] = true
	}
	for axis, dim := range dims {
		if dim < 0 {
			exceptions.Panicf("memdesc.MakeBlocked(%s, %v): axis %d has negative dimension", dtype, dims, axis)
		}
	}
	for _, blk := range blocks {
		if blk.Axis < 0 || blk.Axis >= rank || blk.Size <= 0 {
			exceptions.Panicf("memdesc.MakeBlocked(%s, %v): invalid block %+v", dtype, dims, blk)
		}
	}

	d := Desc{
		DType:       dtype,
		Dims:        slices.Clone(dims),
		PaddedDims:  make([]int, rank),
		Strides:     make([]int, rank),
		InnerBlocks: slices.Clone(blocks),
		Format:      FormatBlocked,
	}
	for axis, dim := range dims {
		d.PaddedDims[axis] = roundUp(dim, d.BlockProduct(axis))
	}
	stride := d.InnerBlockTotal()
	for ii := rank - 1; ii >= 0; ii-- {
		axis := order[ii]
		d.Strides[axis] = stride
		stride *= max(d.OuterExtent(axis), 1)
	}
	return d
}

// Rank returns the number of axes.
func (d Desc) Rank() int { return len(d.Dims) }

// IsBlocked returns whether the descriptor has a concrete blocked layout.
func (d Desc) IsBlocked() bool { return d.Format == FormatBlocked }

// BlockProduct returns the product of the sizes of the inner blocks of the given axis, 1 if
// the axis is not blocked.
func (d Desc) BlockProduct(axis int) int {
	product := 1
	for _, blk := range d.InnerBlocks {
		if blk.Axis == axis {
			product *= blk.Size
		}
	}
	return product
}

// InnerBlockTotal returns the number of elements in one inner block, 1 for plain layouts.
func (d Desc) InnerBlockTotal() int {
	total := 1
	for _, blk := range d.InnerBlocks {
		total *= blk.Size
	}
	return total
}

// OuterExtent returns the number of blocks along the axis: PaddedDims[axis] / BlockProduct(axis).
func (d Desc) OuterExtent(axis int) int {
	return d.PaddedDims[axis] / d.BlockProduct(axis)
}

// NumElements returns the number of logical elements.
func (d Desc) NumElements() int {
	n := 1
	for _, dim := range d.Dims {
		n *= dim
	}
	return n
}

// HasZeroDim returns whether any axis has a zero dimension, in which case the tensor is empty.
func (d Desc) HasZeroDim() bool {
	return slices.Contains(d.Dims, 0)
}

// Size returns the number of bytes spanned by the descriptor (not including Offset0).
//
// It is the largest extent over the axes of OuterExtent(axis)*Strides[axis] elements, times
// the element size. Empty tensors have size 0.
func (d Desc) Size() int {
	if d.Format != FormatBlocked || d.HasZeroDim() {
		return 0
	}
	maxElements := 1
	for axis := range d.Dims {
		maxElements = max(maxElements, d.OuterExtent(axis)*d.Strides[axis])
	}
	if maxElements == 1 && len(d.InnerBlocks) > 0 {
		maxElements = d.InnerBlockTotal()
	}
	return maxElements * d.DType.Size()
}

// StrideOrder returns the axes ordered from the outermost to the innermost in memory: by
// decreasing stride, then by decreasing outer extent, then by axis index.
func (d Desc) StrideOrder() []int {
	order := make([]int, d.Rank())
	for axis := range order {
		order[axis] = axis
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if d.Strides[a] != d.Strides[b] {
			return d.Strides[b] - d.Strides[a]
		}
		return d.OuterExtent(b) - d.OuterExtent(a)
	})
	return order
}

// Clone returns a deep copy.
func (d Desc) Clone() Desc {
	d2 := d
	d2.Dims = slices.Clone(d.Dims)
	d2.PaddedDims = slices.Clone(d.PaddedDims)
	d2.Strides = slices.Clone(d.Strides)
	d2.InnerBlocks = slices.Clone(d.InnerBlocks)
	return d2
}

// WithStrides returns a clone with the given strides, used to describe views into larger buffers.
func (d Desc) WithStrides(strides ...int) Desc {
	if len(strides) != d.Rank() {
		exceptions.Panicf("Desc.WithStrides(%v): rank mismatch for %s", strides, d)
	}
	d2 := d.Clone()
	copy(d2.Strides, strides)
	return d2
}

// WithOffset0 returns a clone with the given offset (in elements) of the first element.
func (d Desc) WithOffset0(offset0 int) Desc {
	d2 := d.Clone()
	d2.Offset0 = offset0
	return d2
}

// WithFormat returns a clone with the given format kind.
func (d Desc) WithFormat(format FormatKind) Desc {
	d2 := d.Clone()
	d2.Format = format
	return d2
}

// Validate checks the internal consistency of the descriptor.
func (d Desc) Validate() error {
	if !d.DType.IsSupported() {
		return errors.Errorf("memory descriptor has unsupported dtype %s", d.DType)
	}
	rank := d.Rank()
	if len(d.PaddedDims) != rank || len(d.Strides) != rank {
		return errors.Errorf("memory descriptor %s has mismatched dims/padded_dims/strides lengths", d)
	}
	for _, blk := range d.InnerBlocks {
		if blk.Axis < 0 || blk.Axis >= rank || blk.Size <= 0 {
			return errors.Errorf("memory descriptor %s has invalid inner block %+v", d, blk)
		}
	}
	for axis := range rank {
		if d.Dims[axis] < 0 {
			return errors.Errorf("memory descriptor %s has negative dimension on axis %d", d, axis)
		}
		if d.PaddedDims[axis] < d.Dims[axis] {
			return errors.Errorf("memory descriptor %s has padded dimension smaller than dimension on axis %d", d, axis)
		}
		if d.PaddedDims[axis]%d.BlockProduct(axis) != 0 {
			return errors.Errorf("memory descriptor %s padded dimension on axis %d is not a multiple of its blocks", d, axis)
		}
		if d.Strides[axis] < 0 {
			return errors.Errorf("memory descriptor %s has negative stride on axis %d", d, axis)
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (d Desc) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(%s)%v", d.DType, d.Dims)
	if d.Format != FormatBlocked {
		fmt.Fprintf(&sb, " format=%s", d.Format)
		return sb.String()
	}
	if !slices.Equal(d.Dims, d.PaddedDims) {
		fmt.Fprintf(&sb, " padded=%v", d.PaddedDims)
	}
	fmt.Fprintf(&sb, " strides=%v", d.Strides)
	if len(d.InnerBlocks) > 0 {
		parts := make([]string, 0, len(d.InnerBlocks))
		for _, blk := range d.InnerBlocks {
			parts = append(parts, fmt.Sprintf("%d@%d", blk.Size, blk.Axis))
		}
		fmt.Fprintf(&sb, " blocks=%s", strings.Join(parts, ","))
	}
	if d.Offset0 != 0 {
		fmt.Fprintf(&sb, " offset0=%d", d.Offset0)
	}
	return sb.String()
}

func roundUp(value, multiple int) int {
	return (value + multiple - 1) / multiple * multiple
}
