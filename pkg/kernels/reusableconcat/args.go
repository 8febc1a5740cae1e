// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reusableconcat

import (
	"github.com/gomlx/dnnprims/backends"
	"github.com/gomlx/dnnprims/pkg/primitives"
)

// index is the type of the index arguments of the kernels, selected by Params.UseLargeIndex.
type index interface {
	int32 | uint64
}

// PackArgs returns the arguments of the kernel launch, in the order the kernel declares them.
func PackArgs(p *Params, rt *RuntimeParams, args primitives.ExecArgs) *backends.ArgList {
	list := &backends.ArgList{}
	list.AppendMemory(args.Dst)
	if p.UseInternalPaddingKernel {
		if p.UseLargeIndex {
			appendInternalPaddingArgs[uint64](list, rt, args)
		} else {
			appendInternalPaddingArgs[int32](list, rt, args)
		}
		return list
	}

	backends.Append(list, uint64(rt.DstOffset0))
	backends.Append(list, uint64(rt.DstExternDimSize/p.DataTypeSize))
	if p.UseLargeIndex {
		appendArgs[uint64](list, p, rt, args)
	} else {
		appendArgs[int32](list, p, rt, args)
	}
	return list
}

// appendArgs appends the index arguments of the general kernel.
func appendArgs[T index](list *backends.ArgList, p *Params, rt *RuntimeParams, args primitives.ExecArgs) {
	cutoff := rt.DstConcatAxis%rt.ReadOverlap != 0
	for ii, input := range rt.Inputs {
		list.AppendMemory(args.Srcs[input])
		backends.Append(list, T(rt.SrcExternDimSizes[ii]/p.DataTypeSize))
		backends.Append(list, T(rt.Offset[ii]))
		backends.Append(list, T(rt.PaddedOffset[ii]))
		srcConcatEnd := rt.DstConcatAxis
		if ii+1 < p.N {
			srcConcatEnd = rt.Offset[ii+1]
		}
		backends.Append(list, T(srcConcatEnd))
		cutoff = cutoff || rt.Offset[ii]%rt.ReadOverlap != 0
	}
	backends.Append(list, T(rt.DstConcatAxis))
	backends.Append(list, T(rt.DstPaddedConcatAxis))
	backends.Append(list, T(rt.ReadOverlap))
	backends.Append(list, T(rt.Gws0Block))
	backends.Append(list, T(rt.InnerAxis))

	// Reads of a work-group may extend past the concat axis: then the outer index has to be
	// computed for every write.
	mustComputeExtIdx := rt.ReadOverlap*rt.Gws0Block > rt.InnerAxis || cutoff
	var flag uint8
	if mustComputeExtIdx {
		flag = 1
	}
	backends.Append(list, flag)
}

// appendInternalPaddingArgs appends the arguments of the internal padding kernel, after the destination.
func appendInternalPaddingArgs[T index](list *backends.ArgList, rt *RuntimeParams, args primitives.ExecArgs) {
	backends.Append(list, T(rt.DstConcatAxis))
	backends.Append(list, T(rt.DstPaddedConcatAxis))
	for ii, input := range rt.Inputs {
		list.AppendMemory(args.Srcs[input])
		backends.Append(list, T(rt.Offset[ii]))
		backends.Append(list, T(rt.PaddedOffset[ii]))
		slot := min(ii, len(rt.SrcConcatAxis)-1)
		backends.Append(list, int64(rt.SrcConcatAxis[slot]))
		backends.Append(list, int64(rt.PaddedSrcConcatAxis[slot]))
	}
	backends.Append(list, T(rt.InnerAxis))
}
