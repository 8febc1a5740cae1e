// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package reusableconcat implements the concat primitive with the "reusable simple concat" GPU
// kernels.
//
// The kernels are generic: all the problem specific information is resolved on the host when the
// primitive is created, and passed to the kernel either as compile-time definitions (see
// Params.KernelCtx) or as scalar arguments of the launch (see RuntimeParams). Planning goes through:
//
//   - Normalization: destination and sources are reinterpreted as {outer, concat, inner} layouts.
//   - Block/SIMD selection: the subgroup width and the element size the copy is reinterpreted as.
//   - Variant selection: a two-input kernel specialized in inputs padded along the concat axis,
//     or the general blocked-copy kernel.
//   - Launch geometry and kernel arguments.
//
// Problems it can't handle are rejected with primitives.ErrUnimplemented, so the next concat
// implementation can be tried.
package reusableconcat

import (
	"context"

	"github.com/gomlx/dnnprims/backends"
	"github.com/gomlx/dnnprims/pkg/primitives"
	"github.com/gomlx/dnnprims/pkg/primitives/concat"
	"github.com/pkg/errors"
)

// Tuning constants. They were tuned empirically for the GPU families listed in backends.GPUArch.
const (
	// MaxInputs is the maximum number of non-empty inputs.
	MaxInputs = 64

	// MaxChunkBytes is the largest contiguous chunk, in bytes, read or written at once.
	MaxChunkBytes = 128

	// MaxBlockRegisters is the maximum number of registers a subgroup block read can fill.
	MaxBlockRegisters = 16

	// MinInternalPaddingProblemBytes is the destination size above which the internal padding kernel
	// is worth it.
	MinInternalPaddingProblemBytes = 500_000

	// PreferredBytesPerWorkitem is the number of bytes loaded per work item by the internal padding
	// kernel, halved for 8-byte types.
	PreferredBytesPerWorkitem = 16

	// MinSubgroupAlignmentBytes is the alignment required by subgroup block reads.
	MinSubgroupAlignmentBytes = 4

	// PaddingWasteRatio is the padded/logical concat extent ratio from which writing one byte at a
	// time is rejected.
	PaddingWasteRatio = 4
)

// Kernel names.
const (
	KernelName                = "reusable_simple_concat"
	InternalPaddingKernelName = "internal_padding_block_concat2"
)

// ImplementationName is the name of this concat implementation.
const ImplementationName = "reusable_simple"

// Implementation implements concat.Implementation.
type Implementation struct{}

var _ concat.Implementation = Implementation{}

// Name implements concat.Implementation.
func (Implementation) Name() string { return ImplementationName }

// Init implements concat.Implementation: it plans the concat and builds the kernel.
func (Implementation) Init(engine backends.Engine, desc *concat.Desc) (concat.Primitive, error) {
	params, rt, err := Plan(engine, desc)
	if err != nil {
		return nil, err
	}
	name := KernelName
	if params.UseInternalPaddingKernel {
		name = InternalPaddingKernelName
	}
	kernel, err := engine.CreateKernel(name, params.KernelCtx())
	if err != nil {
		return nil, errors.WithMessagef(err, "creating kernel %q", name)
	}
	return &Primitive{engine: engine, desc: desc, params: params, rt: rt, kernel: kernel}, nil
}

// Primitive is a configured reusable concat. It is immutable and can be executed concurrently.
type Primitive struct {
	engine backends.Engine
	desc   *concat.Desc
	params Params
	rt     RuntimeParams
	kernel backends.Kernel
}

var _ concat.Primitive = &Primitive{}

// Name implements concat.Primitive.
func (p *Primitive) Name() string { return ImplementationName }

// Desc implements concat.Primitive.
func (p *Primitive) Desc() *concat.Desc { return p.desc }

// Params returns a copy of the kernel configuration.
func (p *Primitive) Params() Params { return p.params.Clone() }

// RuntimeParams returns a copy of the launch parameters.
func (p *Primitive) RuntimeParams() RuntimeParams { return p.rt.Clone() }

// Kernel returns the kernel the primitive launches.
func (p *Primitive) Kernel() backends.Kernel { return p.kernel }

// Execute implements concat.Primitive. It enqueues one kernel, or none if all inputs are empty.
func (p *Primitive) Execute(ctx context.Context, args primitives.ExecArgs) error {
	if p.params.N == 0 {
		return nil
	}
	if err := concat.CheckExecArgs(p.desc, args); err != nil {
		return err
	}
	argList := PackArgs(&p.params, &p.rt, args)
	if err := p.engine.ParallelFor(ctx, p.rt.NDRange(), p.kernel, argList); err != nil {
		return errors.WithMessagef(err, "launching %q", p.kernel.Name())
	}
	return nil
}
