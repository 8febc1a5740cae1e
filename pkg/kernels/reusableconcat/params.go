// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reusableconcat

import (
	"fmt"
	"slices"

	"github.com/gomlx/dnnprims/backends"
)

// Params is the compile-time configuration of the concat kernels.
type Params struct {
	// N is the number of non-empty inputs.
	N int `json:"n"`

	Simd int `json:"simd"`

	// DataTypeSize is the size in bytes of the element type the copy is reinterpreted as.
	DataTypeSize int `json:"data_type_size"`

	// Blocks and Strides are the decomposition of the concat axis into blocks, from the innermost
	// block. Strides are in elements of DataTypeSize.
	Blocks  []int `json:"blocks"`
	Strides []int `json:"strides"`

	// ReadBlock and WriteBlock are the number of elements read and written per subgroup.
	ReadBlock  int `json:"read_block"`
	WriteBlock int `json:"write_block"`

	UseInternalPaddingKernel bool `json:"use_internal_padding_kernel"`
	UseLargeIndex            bool `json:"use_large_index"`
	BytesPerWorkitem         int  `json:"bytes_per_workitem"`
}

// KernelCtx returns the compile-time definitions of the kernel.
func (p *Params) KernelCtx() *backends.KernelCtx {
	kc := backends.NewKernelCtx()
	kc.DefineInt("WRITE_BLOCK", int64(p.WriteBlock))
	kc.DefineInt("READ_BLOCK", int64(p.ReadBlock))
	kc.DefineInt("N_INPUTS", int64(p.N))
	kc.DefineInt("BLOCK_DEPTH", int64(len(p.Blocks)))
	for ii, blk := range p.Blocks {
		kc.DefineInt(fmt.Sprintf("BLOCK_B%d", ii), int64(blk))
		kc.DefineInt(fmt.Sprintf("BLOCK_S%d", ii), int64(p.Strides[ii]))
	}
	kc.DefineInt("SIMD", int64(p.Simd))
	kc.DefineInt("DATA_TYPE_SIZE", int64(p.DataTypeSize))
	kc.DefineBool("USE_LARGE_INDEX", p.UseLargeIndex)
	kc.DefineInt("BYTES_PER_WORKITEM", int64(p.BytesPerWorkitem))
	return kc
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	p.Blocks = slices.Clone(p.Blocks)
	p.Strides = slices.Clone(p.Strides)
	return p
}

// RuntimeParams is the launch geometry and the values of the scalar kernel arguments.
//
// Per-input values are indexed by the non-empty input index: inputs empty along the concat axis
// don't take a slot.
type RuntimeParams struct {
	GWS backends.Range `json:"gws"`
	LWS backends.Range `json:"lws"`

	// Inputs maps the non-empty input index to the index of the input in the concat descriptor.
	Inputs []int `json:"inputs"`

	// SrcExternDimSizes are the strides in bytes of the outer axis of each input.
	SrcExternDimSizes []int `json:"src_extern_dim_sizes"`

	// Offset and PaddedOffset are the positions of each input along the concat axis of the
	// destination, without and with the padding of the previous inputs.
	Offset       []int `json:"offset"`
	PaddedOffset []int `json:"padded_offset"`

	// DstExternDimSize is the stride in bytes of the outer axis of the destination.
	DstExternDimSize    int `json:"dst_extern_dim_size"`
	DstConcatAxis       int `json:"dst_concat_axis"`
	DstPaddedConcatAxis int `json:"dst_padded_concat_axis"`
	DstOffset0          int `json:"dst_offset0"`

	InnerAxis   int `json:"inner_axis"`
	Gws0Block   int `json:"gws0_block"`
	ReadOverlap int `json:"read_overlap"`

	// SrcConcatAxis and PaddedSrcConcatAxis are the logical and padded extents along the concat
	// axis of the two inputs of the internal padding kernel.
	SrcConcatAxis       [2]int `json:"src_concat_axis"`
	PaddedSrcConcatAxis [2]int `json:"padded_src_concat_axis"`
}

// NDRange returns the launch geometry.
func (rt *RuntimeParams) NDRange() backends.NDRange {
	return backends.NDRange{Global: rt.GWS, Local: rt.LWS}
}

// Clone returns a deep copy.
func (rt RuntimeParams) Clone() RuntimeParams {
	rt.Inputs = slices.Clone(rt.Inputs)
	rt.SrcExternDimSizes = slices.Clone(rt.SrcExternDimSizes)
	rt.Offset = slices.Clone(rt.Offset)
	rt.PaddedOffset = slices.Clone(rt.PaddedOffset)
	return rt
}
