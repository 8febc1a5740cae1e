// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reusableconcat

import (
	"fmt"
	"slices"

	"github.com/gomlx/dnnprims/backends"
	"github.com/gomlx/dnnprims/pkg/primitives"
	"k8s.io/klog/v2"
)

var (
	// simdWidths are the candidate subgroup widths, widest first.
	simdWidths = []int{32, 16, 8, 1}

	// elementBytes are the candidate sizes of the element type the copy is reinterpreted as.
	elementBytes = []int{8, 4, 2, 1}

	// blockMultiples are the candidate numbers of elements per work item.
	blockMultiples = []int{8, 4, 2, 1}
)

// prbInfo is one candidate vectorization of the copy.
type prbInfo struct {
	simd     int
	typeSize int
	maxElems int

	// block is the number of elements read per subgroup, 0 if no block fits the constraints.
	block int
}

// newPrbInfo returns the candidate with the largest block: simd times one of blockMultiples, not
// above maxElems, fitting MaxBlockRegisters registers, and with typeSize dividing maxReadSize.
func newPrbInfo(simd, typeSize, maxElems, maxReadSize, registerBytes int) prbInfo {
	info := prbInfo{simd: simd, typeSize: typeSize, maxElems: maxElems}
	if maxReadSize%typeSize != 0 {
		return info
	}
	for _, k := range blockMultiples {
		block := simd * k
		if block <= maxElems && block*typeSize <= MaxBlockRegisters*registerBytes {
			info.block = block
			break
		}
	}
	return info
}

// comparePrbInfo orders candidates from best to worst: valid block first, then higher simd, then
// larger block in bytes, then larger element type.
func comparePrbInfo(a, b prbInfo) int {
	if aValid, bValid := a.block > 0, b.block > 0; aValid != bValid {
		if aValid {
			return -1
		}
		return 1
	}
	if a.simd != b.simd {
		return b.simd - a.simd
	}
	if aBytes, bBytes := a.block*a.typeSize, b.block*b.typeSize; aBytes != bBytes {
		return bBytes - aBytes
	}
	return b.typeSize - a.typeSize
}

// String implements fmt.Stringer.
func (info prbInfo) String() string {
	return fmt.Sprintf("{simd=%d, type_size=%d, max_elems=%d, block=%d}", info.simd, info.typeSize, info.maxElems, info.block)
}

// selectBlock enumerates the (simd, element size) candidates allowed by the device for a
// destination of dstBytes bytes, and returns the best one.
//
// Element sizes must divide maxWriteSize. Candidates whose simd exceeds the number of elements each
// work item needs to process (to keep all hardware threads busy, rounded up to a full register) are
// discarded.
func selectBlock(caps backends.Capabilities, dstBytes, maxWriteSize, maxReadSize int) (prbInfo, error) {
	registerBytes := caps.Arch().RegisterBytes()
	hwThreads := max(caps.HWThreadCount(), 1)
	maxSubgroup := caps.MaxSubgroupSize()

	var infos []prbInfo
	for _, simd := range simdWidths {
		if simd > maxSubgroup {
			continue
		}
		if simd > 1 && !caps.SupportsSubgroup(simd) {
			continue
		}
		for _, bytes := range elementBytes {
			if maxWriteSize%bytes != 0 {
				continue
			}
			totalElems := dstBytes / bytes
			concurrentElems := divUp(simd*totalElems, hwThreads)
			elemsPerReg := registerBytes / bytes
			maxElems := rndUp(concurrentElems, elemsPerReg)
			if simd > maxElems {
				continue
			}
			infos = append(infos, newPrbInfo(simd, bytes, maxElems, maxReadSize, registerBytes))
		}
	}
	if len(infos) == 0 {
		return prbInfo{}, primitives.Unimplementedf("no simd/element size candidate for %d bytes", dstBytes)
	}
	slices.SortStableFunc(infos, comparePrbInfo)
	if klog.V(2).Enabled() {
		klog.Infof("reusable concat candidates: %v", infos)
	}
	if infos[0].block == 0 {
		return prbInfo{}, primitives.Unimplementedf("no valid block among %d candidates", len(infos))
	}
	return infos[0], nil
}
