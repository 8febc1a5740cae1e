// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package primitives holds what is shared by all primitives: the error taxonomy and the execution
// arguments.
//
// A primitive implementation either accepts a problem, producing a fully resolved configuration,
// or rejects it with ErrUnimplemented, in which case the caller tries the next implementation.
// Rejections are never fatal, and an implementation never exposes a partially built configuration.
package primitives

import (
	"github.com/gomlx/dnnprims/backends"
	"github.com/pkg/errors"
)

// ErrUnimplemented is returned (possibly wrapped) by an implementation that can't handle a problem.
var ErrUnimplemented = errors.New("unimplemented")

// Unimplementedf returns an error wrapping ErrUnimplemented with the formatted reason.
func Unimplementedf(format string, args ...any) error {
	return errors.Wrapf(ErrUnimplemented, format, args...)
}

// IsUnimplemented returns whether err is or wraps ErrUnimplemented.
func IsUnimplemented(err error) bool {
	return errors.Is(err, ErrUnimplemented)
}

// ExecArgs are the buffers of one execution of a primitive.
type ExecArgs struct {
	// Dst is the output buffer.
	Dst backends.Memory

	// Srcs are the input buffers, one per input of the primitive descriptor, including the empty ones.
	Srcs []backends.Memory
}
