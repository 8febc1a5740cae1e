// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphtest

import (
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Device where memory is requested.
type Device int

const (
	CPU Device = iota
	GPU
	numDevices
)

// String implements fmt.Stringer.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	}
	return fmt.Sprintf("Device(%d)", int(d))
}

// RequestKind is what the memory is requested for.
type RequestKind int

const (
	// GraphUser is memory for the partition inputs and outputs of the graph path.
	GraphUser RequestKind = iota

	// Reference is memory of the reference path: reference computation, comparison and mapping.
	Reference
	numRequestKinds
)

// MemoryRequests accumulates the memory requested by a test, per device and request kind.
// It is safe for concurrent use. The zero value is ready to use.
type MemoryRequests struct {
	counters [numDevices][numRequestKinds]atomic.Uint64
}

// Increase adds bytes to the requests of the device and kind.
func (r *MemoryRequests) Increase(device Device, kind RequestKind, bytes uint64) {
	r.counters[device][kind].Add(bytes)
}

// GetKind returns the bytes requested on the device for the given kind.
func (r *MemoryRequests) GetKind(device Device, kind RequestKind) uint64 {
	return r.counters[device][kind].Load()
}

// Get returns the total bytes requested on the device.
func (r *MemoryRequests) Get(device Device) uint64 {
	var total uint64
	for kind := range numRequestKinds {
		total += r.counters[device][kind].Load()
	}
	return total
}

// Reset zeroes all requests.
func (r *MemoryRequests) Reset() {
	for device := range numDevices {
		for kind := range numRequestKinds {
			r.counters[device][kind].Store(0)
		}
	}
}

// State of a test after a check.
type State int

const (
	Untested State = iota
	Skipped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Untested:
		return "UNTESTED"
	case Skipped:
		return "SKIPPED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ReasonNotEnoughRAM is the reason of tests skipped for not fitting in memory.
const ReasonNotEnoughRAM = "not enough RAM"

// Result of a memory check.
type Result struct {
	State  State
	Reason string
}

// Mode is a bit set of the benchmark modes that affect the reference memory.
type Mode int

const (
	ModeCorrectness Mode = 1 << iota
	ModeBitwise
	ModePerformance
)

// Has returns whether all bits of other are set.
func (m Mode) Has(other Mode) bool { return m&other == other }

// MemSizeArgs are the sizes, in bytes, one op of the reference path allocates.
type MemSizeArgs struct {
	// TotalSizeDevice is the memory for the inputs and outputs of the op on the test device.
	TotalSizeDevice uint64

	// TotalSizeRef is the memory for the reference computation.
	TotalSizeRef uint64

	// TotalSizeCompare is the memory for comparing results.
	TotalSizeCompare uint64

	// TotalSizeMapped is the memory for mapping device memory on the host.
	TotalSizeMapped uint64

	// TotalRefMDSize are the sizes of the f32 plain reference inputs and outputs.
	TotalRefMDSize [2]uint64
}

// MemoryChecker checks that the memory requested by tests fits the limits of the host and the
// device, and records the requests.
type MemoryChecker struct {
	Requests *MemoryRequests
	CPULimit uint64
	GPULimit uint64

	// OnGPU is set if tests run on the GPU, otherwise the device memory is host memory.
	OnGPU bool
}

func (c *MemoryChecker) checkFit(device Device, required, limit uint64, result *Result) {
	if required <= limit {
		return
	}
	klog.V(2).Infof("[CHECK_MEM]: Not enough %s RAM for a problem. Allocation of size %s doesn't fit allocation limit of %s.",
		device, humanize.Bytes(required), humanize.Bytes(limit))
	result.State = Skipped
	result.Reason = ReasonNotEnoughRAM
}

// CheckPartitionTotalSize checks the memory of the graph path of op: its tensors that are inputs or
// outputs of the partition. The request is recorded even if it doesn't fit.
func (c *MemoryChecker) CheckPartitionTotalSize(p *Partition, op *Op) (Result, error) {
	var result Result
	var newReq uint64
	for _, id := range p.InOutLogicalTensorIDs(op) {
		lt, found := p.LogicalTensor(id)
		if !found {
			return result, errors.Errorf("tensor %d of op %d not found in partition", id, op.ID)
		}
		newReq += uint64(lt.MemSize())
	}
	device, limit := CPU, c.CPULimit
	if c.OnGPU {
		device, limit = GPU, c.GPULimit
	}
	c.checkFit(device, c.Requests.Get(device)+newReq, limit, &result)
	c.Requests.Increase(device, GraphUser, newReq)
	return result, nil
}

// CheckReferenceTotalSize checks the memory of the reference path of one op. isOutput tells whether
// the op produces an output of the partition: only those need memory for the correctness check.
func (c *MemoryChecker) CheckReferenceTotalSize(args MemSizeArgs, isOutput bool, mode Mode) Result {
	var result Result
	isCorrectness := mode.Has(ModeCorrectness)
	isBitwise := mode.Has(ModeBitwise)
	var outputRefSize uint64
	if isCorrectness || isBitwise {
		outputRefSize = args.TotalRefMDSize[1]
	}

	newCPUReq := args.TotalSizeRef + args.TotalSizeCompare + args.TotalSizeMapped
	newGPUReq := args.TotalSizeDevice
	if !c.OnGPU {
		newCPUReq += args.TotalSizeDevice
	}
	if isCorrectness && !isOutput {
		newCPUReq = saturatingSub(newCPUReq, outputRefSize)
		if isBitwise {
			newCPUReq = saturatingSub(newCPUReq, outputRefSize)
		}
	}

	c.checkFit(CPU, c.Requests.Get(CPU)+newCPUReq, c.CPULimit, &result)
	if c.OnGPU {
		c.checkFit(GPU, c.Requests.Get(GPU)+newGPUReq, c.GPULimit, &result)
		c.Requests.Increase(GPU, Reference, newGPUReq)
	}
	c.Requests.Increase(CPU, Reference, newCPUReq)
	return result
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// ParseLimit parses a humanized byte size, like "8GB" or "512 MiB".
func ParseLimit(limit string) (uint64, error) {
	bytes, err := humanize.ParseBytes(limit)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid memory limit %q", limit)
	}
	return bytes, nil
}

// ReferenceMemSizeArgs estimates the memory the reference path of op allocates: its tensors on the
// device, plain f32 copies of them for the reference computation, f32 outputs for the comparison,
// and host mappings of the device tensors when running on the GPU.
func ReferenceMemSizeArgs(op *Op, onGPU bool) MemSizeArgs {
	var args MemSizeArgs
	f32Size := func(lt LogicalTensor) uint64 {
		f32 := lt
		f32.DataType, f32.Stride = "f32", nil
		return uint64(f32.MemSize())
	}
	for _, lt := range op.Inputs {
		args.TotalSizeDevice += uint64(lt.MemSize())
		args.TotalRefMDSize[0] += f32Size(lt)
	}
	for _, lt := range op.Outputs {
		args.TotalSizeDevice += uint64(lt.MemSize())
		args.TotalRefMDSize[1] += f32Size(lt)
	}
	args.TotalSizeRef = args.TotalRefMDSize[0] + args.TotalRefMDSize[1]
	args.TotalSizeCompare = args.TotalRefMDSize[1]
	if onGPU {
		args.TotalSizeMapped = args.TotalSizeDevice
	}
	return args
}

// CheckPartition runs the reference and the graph path checks for each op of the partition, and
// stops at the first op that doesn't fit.
func (c *MemoryChecker) CheckPartition(p *Partition, mode Mode) (Result, error) {
	for _, op := range p.ops {
		result := c.CheckReferenceTotalSize(ReferenceMemSizeArgs(op, c.OnGPU), p.IsOutputOp(op), mode)
		if result.State == Skipped {
			return result, nil
		}
		result, err := c.CheckPartitionTotalSize(p, op)
		if err != nil || result.State == Skipped {
			return result, err
		}
	}
	return Result{}, nil
}
