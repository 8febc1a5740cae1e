// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernels lists the available concat implementations.
package kernels

import (
	"github.com/gomlx/dnnprims/backends"
	"github.com/gomlx/dnnprims/pkg/kernels/refconcat"
	"github.com/gomlx/dnnprims/pkg/kernels/reusableconcat"
	"github.com/gomlx/dnnprims/pkg/primitives/concat"
)

// Default returns the concat implementations in order of preference: the reusable GPU kernels first,
// the reference copy last.
func Default() []concat.Implementation {
	return []concat.Implementation{reusableconcat.Implementation{}, refconcat.Implementation{}}
}

// CreateConcat creates a concat primitive with the first of the Default implementations that
// accepts desc.
func CreateConcat(engine backends.Engine, desc *concat.Desc) (concat.Primitive, error) {
	return concat.Create(engine, desc, Default()...)
}
