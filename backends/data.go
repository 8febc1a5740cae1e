// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

// Memory represents a buffer stored in the device that executes the kernels.
// It's used as input/output of kernel launches.
//
// It is opaque from the primitives' perspective: they only forward it to the engine in the
// argument list of a launch.
type Memory interface {
	// Size in bytes of the buffer.
	Size() int

	// ID is a unique identifier of the buffer within its engine, used for logging and debugging.
	ID() string

	// Finalize allows the client to inform the engine that the buffer is no longer needed and associated
	// resources can be freed immediately -- as opposed to waiting for a GC.
	//
	// A finalized buffer should never be used again.
	Finalize() error
}
