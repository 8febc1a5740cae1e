// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package concat defines the concatenation primitive: its descriptor and the interfaces of its
// implementations, and selects the first implementation that accepts a problem.
package concat

import (
	"context"
	"fmt"
	"slices"

	"github.com/gomlx/dnnprims/backends"
	"github.com/gomlx/dnnprims/pkg/core/memdesc"
	"github.com/gomlx/dnnprims/pkg/primitives"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Desc describes a concatenation of Srcs along Axis into Dst.
type Desc struct {
	Axis int
	Srcs []memdesc.Desc
	Dst  memdesc.Desc
}

// NewDesc returns a validated concatenation descriptor.
//
// If dst.Format is memdesc.FormatAny, the destination gets a dense layout with the same axes order
// and inner blocks as the first source.
func NewDesc(axis int, dst memdesc.Desc, srcs ...memdesc.Desc) (*Desc, error) {
	if len(srcs) == 0 {
		return nil, errors.New("concat needs at least one source")
	}
	if dst.Format == memdesc.FormatAny {
		src0 := srcs[0]
		if err := src0.Validate(); err != nil {
			return nil, errors.WithMessage(err, "concat source #0")
		}
		dims := slices.Clone(src0.Dims)
		if axis >= 0 && axis < len(dims) {
			dims[axis] = 0
			for _, src := range srcs {
				if axis < src.Rank() {
					dims[axis] += src.Dims[axis]
				}
			}
		}
		dst = memdesc.MakeBlocked(src0.DType, dims, src0.StrideOrder(), src0.InnerBlocks...)
	}
	desc := &Desc{Axis: axis, Srcs: srcs, Dst: dst}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return desc, nil
}

// NumInputs returns the number of sources, including the empty ones.
func (d *Desc) NumInputs() int { return len(d.Srcs) }

// IsEmptySource returns whether source i has no padded extent along the concat axis: empty sources
// take no part in the concatenation.
func (d *Desc) IsEmptySource(i int) bool {
	return d.Srcs[i].PaddedDims[d.Axis] == 0
}

// NumNonEmpty returns the number of sources with a non-zero padded extent along the concat axis.
func (d *Desc) NumNonEmpty() int {
	var n int
	for i := range d.Srcs {
		if !d.IsEmptySource(i) {
			n++
		}
	}
	return n
}

// Validate checks that the sources can be concatenated into the destination.
func (d *Desc) Validate() error {
	if err := d.Dst.Validate(); err != nil {
		return errors.WithMessage(err, "concat destination")
	}
	rank := d.Dst.Rank()
	if d.Axis < 0 || d.Axis >= rank {
		return errors.Errorf("concat axis %d out of range for destination %s", d.Axis, d.Dst)
	}
	var concatDim int
	for i, src := range d.Srcs {
		if err := src.Validate(); err != nil {
			return errors.WithMessagef(err, "concat source #%d", i)
		}
		if src.Rank() != rank {
			return errors.Errorf("concat source #%d %s has rank %d, destination %s has rank %d", i, src, src.Rank(), d.Dst, rank)
		}
		if src.DType != d.Dst.DType {
			return errors.Errorf("concat source #%d %s has dtype %s, destination has dtype %s", i, src, src.DType, d.Dst.DType)
		}
		for axis := range rank {
			if axis != d.Axis && src.Dims[axis] != d.Dst.Dims[axis] {
				return errors.Errorf("concat source #%d %s doesn't match destination %s on axis %d", i, src, d.Dst, axis)
			}
		}
		concatDim += src.Dims[d.Axis]
	}
	if concatDim != d.Dst.Dims[d.Axis] {
		return errors.Errorf("concat sources add up to %d along axis %d, but destination %s has %d",
			concatDim, d.Axis, d.Dst, d.Dst.Dims[d.Axis])
	}
	return nil
}

// String implements fmt.Stringer.
func (d *Desc) String() string {
	return fmt.Sprintf("concat(axis=%d, srcs=%v) -> %s", d.Axis, d.Srcs, d.Dst)
}

// Implementation of the concat primitive.
type Implementation interface {
	// Name of the implementation.
	Name() string

	// Init configures the implementation for the problem. It returns an error wrapping
	// primitives.ErrUnimplemented if the implementation can't handle it.
	Init(engine backends.Engine, desc *Desc) (Primitive, error)
}

// Primitive is a configured concat, ready to execute.
type Primitive interface {
	// Name of the implementation that created the primitive.
	Name() string

	// Desc is the problem the primitive was configured for.
	Desc() *Desc

	// Execute the concatenation with the given buffers: one source per input of the descriptor.
	Execute(ctx context.Context, args primitives.ExecArgs) error
}

// Create returns the primitive of the first implementation that accepts the problem.
//
// Implementations that return primitives.ErrUnimplemented are skipped; any other error is returned
// immediately.
func Create(engine backends.Engine, desc *Desc, impls ...Implementation) (Primitive, error) {
	for _, impl := range impls {
		p, err := impl.Init(engine, desc)
		if err == nil {
			klog.V(1).Infof("concat: using %q for %s", impl.Name(), desc)
			return p, nil
		}
		if primitives.IsUnimplemented(err) {
			klog.V(1).Infof("concat: %q skipped: %v", impl.Name(), err)
			continue
		}
		return nil, errors.WithMessagef(err, "concat implementation %q", impl.Name())
	}
	return nil, errors.Wrapf(primitives.ErrUnimplemented, "no concat implementation for %s", desc)
}

// CheckExecArgs validates the number of buffers given to Primitive.Execute.
func CheckExecArgs(desc *Desc, args primitives.ExecArgs) error {
	if args.Dst == nil {
		return errors.New("concat execution without destination buffer")
	}
	if len(args.Srcs) != desc.NumInputs() {
		return errors.Errorf("concat execution with %d source buffers, descriptor has %d inputs", len(args.Srcs), desc.NumInputs())
	}
	for i, src := range args.Srcs {
		if src == nil && !desc.IsEmptySource(i) {
			return errors.Errorf("concat execution without buffer for source #%d", i)
		}
	}
	return nil
}
