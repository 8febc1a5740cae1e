// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphtest holds the support for testing partitions of serialized operation graphs: the
// graph and partition topology, and the accounting of the memory the tests allocate, used to skip
// problems that don't fit the host or the device.
package graphtest

import (
	"os"
	"slices"

	json "github.com/goccy/go-json"
	"github.com/gomlx/dnnprims/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// LogicalTensor is a tensor of the graph, consumed and produced by ops.
type LogicalTensor struct {
	ID       int    `json:"id"`
	DataType string `json:"data_type"`
	Shape    []int  `json:"shape"`

	// Stride is optional: if empty the tensor is dense.
	Stride []int `json:"stride,omitempty"`
}

// DType returns the dtype of the tensor, or dtypes.InvalidDType if the data type is unknown.
func (lt LogicalTensor) DType() dtypes.DType {
	dtype, err := dtypes.Parse(lt.DataType)
	if err != nil {
		return dtypes.InvalidDType
	}
	return dtype
}

// MemSize returns the number of bytes spanned by the tensor.
func (lt LogicalTensor) MemSize() int {
	if len(lt.Shape) == 0 {
		return lt.DType().Size()
	}
	for _, dim := range lt.Shape {
		if dim <= 0 {
			return 0
		}
	}
	elements := 1
	if len(lt.Stride) == len(lt.Shape) {
		for axis, dim := range lt.Shape {
			elements += (dim - 1) * lt.Stride[axis]
		}
	} else {
		for _, dim := range lt.Shape {
			elements *= dim
		}
	}
	return elements * lt.DType().Size()
}

// Op is one operation of the graph.
type Op struct {
	ID      int             `json:"id"`
	Name    string          `json:"name,omitempty"`
	Kind    string          `json:"kind"`
	Inputs  []LogicalTensor `json:"inputs"`
	Outputs []LogicalTensor `json:"outputs"`
}

// Graph is a deserialized graph: ops in topological order, and the partitions they were split into.
type Graph struct {
	Ops        []Op    `json:"graph"`
	Partitions [][]int `json:"partitions,omitempty"`
}

// ParseGraph deserializes a graph from JSON and validates it.
func ParseGraph(data []byte) (*Graph, error) {
	g := &Graph{}
	if err := json.Unmarshal(data, g); err != nil {
		return nil, errors.Wrap(err, "failed to parse graph")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadGraph reads and deserializes a graph from a JSON file.
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read graph from %q", path)
	}
	g, err := ParseGraph(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "graph %q", path)
	}
	return g, nil
}

// Validate checks that op ids are unique, that each tensor is produced at most once, that data types
// are known and that partitions reference existing ops.
func (g *Graph) Validate() error {
	opIDs := make(map[int]bool, len(g.Ops))
	produced := make(map[int]int)
	for _, op := range g.Ops {
		if opIDs[op.ID] {
			return errors.Errorf("graph has duplicate op id %d", op.ID)
		}
		opIDs[op.ID] = true
		for _, lt := range slices.Concat(op.Inputs, op.Outputs) {
			if lt.DType() == dtypes.InvalidDType {
				return errors.Errorf("op %d (%s) tensor %d has unknown data type %q", op.ID, op.Kind, lt.ID, lt.DataType)
			}
		}
		for _, lt := range op.Outputs {
			if producer, found := produced[lt.ID]; found {
				return errors.Errorf("tensor %d produced by ops %d and %d", lt.ID, producer, op.ID)
			}
			produced[lt.ID] = op.ID
		}
	}
	for ii, partition := range g.Partitions {
		for _, id := range partition {
			if !opIDs[id] {
				return errors.Errorf("partition #%d references unknown op %d", ii, id)
			}
		}
	}
	return nil
}

// OpByOutput returns the op producing the tensor ltID, or nil.
func (g *Graph) OpByOutput(ltID int) *Op {
	for ii := range g.Ops {
		for _, lt := range g.Ops[ii].Outputs {
			if lt.ID == ltID {
				return &g.Ops[ii]
			}
		}
	}
	return nil
}

// OpByInput returns the first op consuming the tensor ltID, or nil.
func (g *Graph) OpByInput(ltID int) *Op {
	for ii := range g.Ops {
		for _, lt := range g.Ops[ii].Inputs {
			if lt.ID == ltID {
				return &g.Ops[ii]
			}
		}
	}
	return nil
}
