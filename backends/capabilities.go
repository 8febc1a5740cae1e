// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Capabilities are the hardware queries a primitive makes at configuration time.
type Capabilities interface {
	// MaxSubgroupSize is the widest subgroup (SIMD width) the device supports.
	MaxSubgroupSize() int

	// SupportsSubgroup returns whether kernels can be compiled for the given subgroup width.
	SupportsSubgroup(width int) bool

	// HWThreadCount is the number of hardware threads that can run concurrently on the device.
	HWThreadCount() int

	// Arch of the device.
	Arch() GPUArch

	// OptimalLocalSize returns the local work size to use with the given global work size.
	// axisHint is the axis that should get the largest local size, or -1 for no preference.
	OptimalLocalSize(gws Range, axisHint int) Range
}

// GPUArch enumerates the GPU architecture families, in chronological order.
type GPUArch int

const (
	ArchUnknown GPUArch = iota
	ArchGen9
	ArchGen11
	ArchXeLP
	ArchXeHP
	ArchXeHPG
	ArchXeHPC
	ArchXe2
	ArchXe3
)

var archNames = [...]string{"unknown", "gen9", "gen11", "xe_lp", "xe_hp", "xe_hpg", "xe_hpc", "xe2", "xe3"}

// String implements fmt.Stringer.
func (arch GPUArch) String() string {
	if arch >= 0 && int(arch) < len(archNames) {
		return archNames[arch]
	}
	return fmt.Sprintf("GPUArch(%d)", int(arch))
}

// ParseGPUArch converts names like "xe_hpc" (or "XeHPC") to a GPUArch.
func ParseGPUArch(name string) (GPUArch, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for arch, archName := range archNames {
		if normalized == archName || normalized == strings.ReplaceAll(archName, "_", "") {
			return GPUArch(arch), nil
		}
	}
	return ArchUnknown, errors.Errorf("unknown GPU architecture %q", name)
}

// RegisterBytes returns the size in bytes of one general register file entry (GRF) of the
// architecture: 64 bytes from XeHPC on, 32 bytes before.
func (arch GPUArch) RegisterBytes() int {
	if arch >= ArchXeHPC {
		return 64
	}
	return 32
}

// MaxWorkGroupSize returns the largest number of work items in one work-group used by OptimalLWS.
func (arch GPUArch) MaxWorkGroupSize() int {
	if arch >= ArchXeHP {
		return 512
	}
	return 256
}
