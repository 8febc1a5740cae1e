// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kernel is a compiled kernel ready to be launched with Engine.ParallelFor.
type Kernel interface {
	// Name of the kernel entry point.
	Name() string

	// Ctx returns the compile-time definitions the kernel was built with.
	Ctx() *KernelCtx
}

// Range is a 3D work size. Unused dimensions are 1.
type Range [3]int

// Size returns the total number of work items: the product of the dimensions.
func (r Range) Size() int {
	return r[0] * r[1] * r[2]
}

// String implements fmt.Stringer.
func (r Range) String() string {
	return fmt.Sprintf("%dx%dx%d", r[0], r[1], r[2])
}

// NDRange is the geometry of a kernel launch: the global work size and the local (work-group) size.
type NDRange struct {
	Global Range `json:"global"`
	Local  Range `json:"local"`
}

// String implements fmt.Stringer.
func (nd NDRange) String() string {
	return fmt.Sprintf("gws=%s lws=%s", nd.Global, nd.Local)
}

// Validate checks that every local dimension evenly divides its global dimension.
func (nd NDRange) Validate() error {
	for axis := range nd.Global {
		if nd.Global[axis] < 0 || nd.Local[axis] <= 0 {
			return errors.Errorf("invalid range %s on axis %d", nd, axis)
		}
		if nd.Global[axis]%nd.Local[axis] != 0 {
			return errors.Errorf("invalid range %s: local size doesn't divide global size on axis %d", nd, axis)
		}
	}
	return nil
}

// KernelCtx holds the named integer compile-time definitions of a kernel.
//
// Definitions keep the order they were first defined in.
type KernelCtx struct {
	names  []string
	values map[string]int64
}

// NewKernelCtx returns an empty KernelCtx.
func NewKernelCtx() *KernelCtx {
	return &KernelCtx{values: make(map[string]int64)}
}

// DefineInt sets the definition name to value. Redefining a name keeps its original position.
func (kc *KernelCtx) DefineInt(name string, value int64) {
	if kc.values == nil {
		kc.values = make(map[string]int64)
	}
	if _, found := kc.values[name]; !found {
		kc.names = append(kc.names, name)
	}
	kc.values[name] = value
}

// DefineBool sets the definition name to 1 if value is true, 0 otherwise.
func (kc *KernelCtx) DefineBool(name string, value bool) {
	var v int64
	if value {
		v = 1
	}
	kc.DefineInt(name, v)
}

// Get returns the value of a definition and whether it is defined.
func (kc *KernelCtx) Get(name string) (value int64, found bool) {
	value, found = kc.values[name]
	return
}

// Names returns the defined names in definition order.
func (kc *KernelCtx) Names() []string {
	return append([]string(nil), kc.names...)
}

// Options renders the definitions as build options "-DNAME=value", in definition order.
func (kc *KernelCtx) Options() []string {
	options := make([]string, 0, len(kc.names))
	for _, name := range kc.names {
		options = append(options, fmt.Sprintf("-D%s=%d", name, kc.values[name]))
	}
	return options
}

// String implements fmt.Stringer.
func (kc *KernelCtx) String() string {
	return strings.Join(kc.Options(), " ")
}

// ArgKind is the type of one kernel argument.
type ArgKind int

const (
	ArgMemory ArgKind = iota
	ArgInt32
	ArgInt64
	ArgUint64
	ArgUint8
)

var argKindNames = [...]string{"memory", "int32", "int64", "uint64", "uint8"}

// String implements fmt.Stringer.
func (k ArgKind) String() string {
	if k >= 0 && int(k) < len(argKindNames) {
		return argKindNames[k]
	}
	return fmt.Sprintf("ArgKind(%d)", int(k))
}

// Arg is one typed kernel argument: either a Memory or a scalar.
type Arg struct {
	Kind   ArgKind
	Memory Memory

	// Scalar holds the value of scalar arguments, converted to int64.
	Scalar int64
}

// String implements fmt.Stringer.
func (a Arg) String() string {
	if a.Kind == ArgMemory {
		if a.Memory == nil {
			return "memory(nil)"
		}
		return fmt.Sprintf("memory(%s)", a.Memory.ID())
	}
	if a.Kind == ArgUint64 {
		return fmt.Sprintf("%s(%d)", a.Kind, uint64(a.Scalar))
	}
	return fmt.Sprintf("%s(%d)", a.Kind, a.Scalar)
}

// ArgList is the flattened, ordered list of arguments of one kernel launch.
type ArgList struct {
	args []Arg
}

// Scalar enumerates the types of scalar kernel arguments.
type Scalar interface {
	int32 | int64 | uint64 | uint8
}

// AppendMemory appends a buffer argument.
func (l *ArgList) AppendMemory(memory Memory) {
	l.args = append(l.args, Arg{Kind: ArgMemory, Memory: memory})
}

// Append appends a scalar argument, with its kind taken from its Go type.
func Append[T Scalar](l *ArgList, value T) {
	var kind ArgKind
	switch any(value).(type) {
	case int32:
		kind = ArgInt32
	case int64:
		kind = ArgInt64
	case uint64:
		kind = ArgUint64
	case uint8:
		kind = ArgUint8
	}
	l.args = append(l.args, Arg{Kind: kind, Scalar: int64(value)})
}

// Len returns the number of arguments.
func (l *ArgList) Len() int { return len(l.args) }

// At returns the i-th argument.
func (l *ArgList) At(i int) Arg { return l.args[i] }

// Args returns a copy of the arguments.
func (l *ArgList) Args() []Arg {
	return append([]Arg(nil), l.args...)
}

// Count returns the number of arguments of the given kind.
func (l *ArgList) Count(kind ArgKind) int {
	var count int
	for _, arg := range l.args {
		if arg.Kind == kind {
			count++
		}
	}
	return count
}

// String implements fmt.Stringer.
func (l *ArgList) String() string {
	parts := make([]string, len(l.args))
	for ii, arg := range l.args {
		parts[ii] = arg.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
