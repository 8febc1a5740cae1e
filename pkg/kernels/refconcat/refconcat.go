// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package refconcat implements a reference concat: one element-wise copy kernel per non-empty input.
//
// It is slow but handles any pair of blocked layouts, and it's used when the optimized
// implementations reject a problem.
package refconcat

import (
	"context"

	"github.com/gomlx/dnnprims/backends"
	"github.com/gomlx/dnnprims/pkg/core/memdesc"
	"github.com/gomlx/dnnprims/pkg/primitives"
	"github.com/gomlx/dnnprims/pkg/primitives/concat"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// ImplementationName is the name of this concat implementation.
	ImplementationName = "ref"

	// KernelName is the name of the copy kernel.
	KernelName = "ref_concat_copy"
)

// Implementation implements concat.Implementation.
type Implementation struct{}

var _ concat.Implementation = Implementation{}

// Name implements concat.Implementation.
func (Implementation) Name() string { return ImplementationName }

// Init implements concat.Implementation.
func (Implementation) Init(engine backends.Engine, desc *concat.Desc) (concat.Primitive, error) {
	if !desc.Dst.IsBlocked() {
		return nil, primitives.Unimplementedf("destination format %s not supported", desc.Dst.Format)
	}
	p := &Primitive{engine: engine, desc: desc}
	var offset int
	for i, src := range desc.Srcs {
		if !src.IsBlocked() {
			return nil, primitives.Unimplementedf("source #%d format %s not supported", i, src.Format)
		}
		elements := src.NumElements()
		if elements > 0 {
			p.copies = append(p.copies, Copy{Input: i, ConcatOffset: offset, GWS: backends.Range{elements, 1, 1}})
		}
		offset += src.Dims[desc.Axis]
	}

	kernelCtx := backends.NewKernelCtx()
	kernelCtx.DefineInt("DATA_TYPE_SIZE", int64(desc.Dst.DType.Size()))
	kernelCtx.DefineInt("NDIMS", int64(desc.Dst.Rank()))
	kernelCtx.DefineInt("CONCAT_AXIS", int64(desc.Axis))
	var err error
	p.kernel, err = engine.CreateKernel(KernelName, kernelCtx)
	if err != nil {
		return nil, errors.WithMessagef(err, "creating kernel %q", KernelName)
	}
	klog.V(1).Infof("ref concat: %d copies", len(p.copies))
	return p, nil
}

// Copy is one kernel launch of the reference concat.
type Copy struct {
	// Input is the index of the source copied.
	Input int `json:"input"`

	// ConcatOffset is the position of the source along the concat axis of the destination.
	ConcatOffset int `json:"concat_offset"`

	// GWS has one work item per element of the source.
	GWS backends.Range `json:"gws"`
}

// Primitive is a configured reference concat.
type Primitive struct {
	engine backends.Engine
	desc   *concat.Desc
	copies []Copy
	kernel backends.Kernel
}

var _ concat.Primitive = &Primitive{}

// Name implements concat.Primitive.
func (p *Primitive) Name() string { return ImplementationName }

// Desc implements concat.Primitive.
func (p *Primitive) Desc() *concat.Desc { return p.desc }

// Copies returns the launches of one execution.
func (p *Primitive) Copies() []Copy {
	return append([]Copy(nil), p.copies...)
}

// Execute implements concat.Primitive. It launches one copy per non-empty source, in input order.
func (p *Primitive) Execute(ctx context.Context, args primitives.ExecArgs) error {
	if len(p.copies) == 0 {
		return nil
	}
	if err := concat.CheckExecArgs(p.desc, args); err != nil {
		return err
	}
	for _, c := range p.copies {
		list := &backends.ArgList{}
		list.AppendMemory(args.Dst)
		list.AppendMemory(args.Srcs[c.Input])
		backends.Append(list, int64(c.ConcatOffset))
		appendLayout(list, p.desc.Srcs[c.Input])
		appendLayout(list, p.desc.Dst)
		ndRange := backends.NDRange{Global: c.GWS, Local: backends.Range{1, 1, 1}}
		if err := p.engine.ParallelFor(ctx, ndRange, p.kernel, list); err != nil {
			return errors.WithMessagef(err, "copying concat source #%d", c.Input)
		}
	}
	return nil
}

// appendLayout appends the arguments the copy kernel needs to compute the offset of an element of d:
// offset, dims, padded dims and strides of each axis, then the number of inner blocks followed by
// their (axis, size) pairs.
func appendLayout(list *backends.ArgList, d memdesc.Desc) {
	backends.Append(list, int64(d.Offset0))
	for axis := range d.Rank() {
		backends.Append(list, int64(d.Dims[axis]))
		backends.Append(list, int64(d.PaddedDims[axis]))
		backends.Append(list, int64(d.Strides[axis]))
	}
	backends.Append(list, int64(len(d.InnerBlocks)))
	for _, blk := range d.InnerBlocks {
		backends.Append(list, int64(blk.Axis))
		backends.Append(list, int64(blk.Size))
	}
}
