// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/gomlx/dnnprims/pkg/core/dtypes"
	"github.com/gomlx/dnnprims/pkg/core/memdesc"
	"github.com/gomlx/dnnprims/pkg/primitives/concat"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Problem is a concat problem, as read from a YAML file:
//
//	dtype: s8
//	axis: 1
//	sources:
//	  - dims: [1, 10, 125, 126]
//	    blocks: [{axis: 1, size: 16}]
//	  - dims: [1, 16, 125, 126]
//	    blocks: [{axis: 1, size: 16}]
//
// The destination is optional: if missing it takes the layout of the first source.
type Problem struct {
	DType       dtypes.DType   `yaml:"dtype" json:"dtype"`
	Axis        int            `yaml:"axis" json:"axis"`
	Sources     []TensorLayout `yaml:"sources" json:"sources"`
	Destination *TensorLayout  `yaml:"destination,omitempty" json:"destination,omitempty"`
}

// TensorLayout describes the dimensions and the layout of one tensor.
type TensorLayout struct {
	// Dims are the logical dimensions. They are ignored for the destination.
	Dims []int `yaml:"dims,omitempty" json:"dims,omitempty"`

	// Order of the axes in memory, outermost first. Defaults to the axes order.
	Order  []int           `yaml:"order,omitempty" json:"order,omitempty"`
	Blocks []memdesc.Block `yaml:"blocks,omitempty" json:"blocks,omitempty"`

	// Offset0 in elements.
	Offset0 int `yaml:"offset0,omitempty" json:"offset0,omitempty"`
}

// ParseProblem parses a YAML problem.
func ParseProblem(data []byte) (*Problem, error) {
	problem := &Problem{}
	if err := yaml.Unmarshal(data, problem); err != nil {
		return nil, errors.Wrap(err, "failed to parse problem")
	}
	if len(problem.Sources) == 0 {
		return nil, errors.New("problem has no sources")
	}
	return problem, nil
}

// LoadProblem reads a YAML problem file.
func LoadProblem(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read problem from %q", path)
	}
	problem, err := ParseProblem(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "problem %q", path)
	}
	return problem, nil
}

// Desc builds the concat descriptor of the problem. Malformed layouts are reported as errors.
func (p *Problem) Desc() (desc *concat.Desc, err error) {
	err = exceptions.TryCatch[error](func() {
		srcs := make([]memdesc.Desc, len(p.Sources))
		for i, src := range p.Sources {
			srcs[i] = memdesc.MakeBlocked(p.DType, src.Dims, src.Order, src.Blocks...).WithOffset0(src.Offset0)
		}
		dst := memdesc.Desc{DType: p.DType, Format: memdesc.FormatAny}
		if p.Destination != nil {
			dims := make([]int, len(srcs[0].Dims))
			copy(dims, srcs[0].Dims)
			if p.Axis >= 0 && p.Axis < len(dims) {
				dims[p.Axis] = 0
				for _, src := range srcs {
					if p.Axis < len(src.Dims) {
						dims[p.Axis] += src.Dims[p.Axis]
					}
				}
			}
			dst = memdesc.MakeBlocked(p.DType, dims, p.Destination.Order, p.Destination.Blocks...).
				WithOffset0(p.Destination.Offset0)
		}
		var descErr error
		desc, descErr = concat.NewDesc(p.Axis, dst, srcs...)
		if descErr != nil {
			panic(descErr)
		}
	})
	if err != nil {
		return nil, errors.WithMessage(err, "invalid problem")
	}
	return desc, nil
}
