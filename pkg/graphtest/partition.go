// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphtest

import (
	"slices"

	"github.com/gomlx/dnnprims/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// Partition is a subset of the ops of a graph that is compiled and executed as a unit.
type Partition struct {
	graph     *Graph
	ops       []*Op // In graph order.
	tensors   map[int]LogicalTensor
	inputIDs  []int
	outputIDs []int
}

// NewPartition returns the partition of g with the given op ids.
//
// Partition inputs are the tensors consumed by its ops but not produced by any of them. Partition
// outputs are the tensors its ops produce that are consumed outside of the partition, or not
// consumed at all.
func NewPartition(g *Graph, opIDs []int) (*Partition, error) {
	p := &Partition{graph: g, tensors: make(map[int]LogicalTensor)}
	for ii := range g.Ops {
		op := &g.Ops[ii]
		if !slices.Contains(opIDs, op.ID) {
			continue
		}
		p.ops = append(p.ops, op)
		for _, lt := range slices.Concat(op.Inputs, op.Outputs) {
			if _, found := p.tensors[lt.ID]; !found {
				p.tensors[lt.ID] = lt
			}
		}
	}
	if len(p.ops) != len(opIDs) {
		return nil, errors.Errorf("partition ops %v not all found in the graph", opIDs)
	}

	producedInside := make(map[int]bool)
	for _, op := range p.ops {
		for _, lt := range op.Outputs {
			producedInside[lt.ID] = true
		}
	}
	for _, op := range p.ops {
		for _, lt := range op.Inputs {
			if !producedInside[lt.ID] && !slices.Contains(p.inputIDs, lt.ID) {
				p.inputIDs = append(p.inputIDs, lt.ID)
			}
		}
	}
	for _, op := range p.ops {
		for _, lt := range op.Outputs {
			if p.isConsumedOnlyInside(lt.ID) {
				continue
			}
			p.outputIDs = append(p.outputIDs, lt.ID)
		}
	}
	return p, nil
}

// SplitPartitions returns the partitions listed in g. If g lists none, the whole graph is one partition.
func (g *Graph) SplitPartitions() ([]*Partition, error) {
	opIDLists := g.Partitions
	if len(opIDLists) == 0 {
		all := make([]int, len(g.Ops))
		for ii, op := range g.Ops {
			all[ii] = op.ID
		}
		opIDLists = [][]int{all}
	}
	partitions := make([]*Partition, 0, len(opIDLists))
	for ii, opIDs := range opIDLists {
		p, err := NewPartition(g, opIDs)
		if err != nil {
			return nil, errors.WithMessagef(err, "partition #%d", ii)
		}
		partitions = append(partitions, p)
	}
	return partitions, nil
}

// isConsumedOnlyInside returns whether the tensor is consumed, and only by ops of the partition.
func (p *Partition) isConsumedOnlyInside(ltID int) bool {
	consumed := false
	for ii := range p.graph.Ops {
		op := &p.graph.Ops[ii]
		if !slices.ContainsFunc(op.Inputs, func(lt LogicalTensor) bool { return lt.ID == ltID }) {
			continue
		}
		if !p.contains(op) {
			return false
		}
		consumed = true
	}
	return consumed
}

func (p *Partition) contains(op *Op) bool {
	return slices.Contains(p.ops, op)
}

// Ops returns the ops of the partition, in graph order.
func (p *Partition) Ops() []*Op { return slices.Clone(p.ops) }

// InputIDs returns the ids of the partition inputs.
func (p *Partition) InputIDs() []int { return slices.Clone(p.inputIDs) }

// OutputIDs returns the ids of the partition outputs.
func (p *Partition) OutputIDs() []int { return slices.Clone(p.outputIDs) }

// LogicalTensor returns the tensor ltID used by an op of the partition.
func (p *Partition) LogicalTensor(ltID int) (LogicalTensor, bool) {
	lt, found := p.tensors[ltID]
	return lt, found
}

// ParentOp returns the op of the partition producing ltID. It returns nil for single op partitions.
func (p *Partition) ParentOp(ltID int) *Op {
	if len(p.ops) < 2 {
		return nil
	}
	parent := p.graph.OpByOutput(ltID)
	if parent == nil || !p.contains(parent) {
		return nil
	}
	return parent
}

// HasParentOp returns whether the inputs of op are produced inside the partition: all of them if
// checkAll is set, at least one otherwise.
func (p *Partition) HasParentOp(op *Op, checkAll bool) bool {
	if len(p.ops) < 2 {
		return false
	}
	for _, lt := range op.Inputs {
		hasParent := p.ParentOp(lt.ID) != nil
		if checkAll && !hasParent {
			return false
		}
		if !checkAll && hasParent {
			return true
		}
	}
	return checkAll
}

// ChildOp returns the op of the partition consuming an output of op, or nil.
func (p *Partition) ChildOp(op *Op) *Op {
	if len(p.ops) < 2 {
		return nil
	}
	for _, lt := range op.Outputs {
		child := p.graph.OpByInput(lt.ID)
		if child != nil && p.contains(child) {
			return child
		}
	}
	return nil
}

// IsOutputOp returns whether op produces an output of the partition.
func (p *Partition) IsOutputOp(op *Op) bool {
	return slices.ContainsFunc(op.Outputs, func(lt LogicalTensor) bool {
		return slices.Contains(p.outputIDs, lt.ID)
	})
}

// InOutLogicalTensorIDs returns the ids of the tensors of op that are inputs or outputs of the
// partition: inputs first.
func (p *Partition) InOutLogicalTensorIDs(op *Op) []int {
	var ids []int
	for _, lt := range op.Inputs {
		if slices.Contains(p.inputIDs, lt.ID) {
			ids = append(ids, lt.ID)
		}
	}
	for _, lt := range op.Outputs {
		if slices.Contains(p.outputIDs, lt.ID) {
			ids = append(ids, lt.ID)
		}
	}
	return ids
}

// Op kinds that change how reference outputs are cropped.
const (
	KindTypeCast = "TypeCast"
	KindQuantize = "Quantize"
)

// NeedUnfusableOutputCrop returns whether the output outIdx of op must be rounded to a lower precision
// dtype (and back) in the reference computation, to match what the fused partition does, and that
// dtype.
func (p *Partition) NeedUnfusableOutputCrop(op *Op, outIdx int) (dtypes.DType, bool) {
	child := p.ChildOp(op)
	if child == nil {
		return dtypes.InvalidDType, false
	}
	if child.Kind != KindTypeCast {
		return outputDType(op, outIdx), true
	}
	// The type cast converts to f32 and back.
	next := p.ChildOp(child)
	if next == nil || next.Kind == KindQuantize {
		return dtypes.InvalidDType, false
	}
	if next.Kind == KindTypeCast {
		return outputDType(next, outIdx), true
	}
	return outputDType(child, outIdx), true
}

func outputDType(op *Op, outIdx int) dtypes.DType {
	if outIdx < 0 || outIdx >= len(op.Outputs) {
		return dtypes.InvalidDType
	}
	return op.Outputs[outIdx].DType()
}
