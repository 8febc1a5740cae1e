// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes includes the DType enum for the element types a memory descriptor can hold.
//
// It is a trimmed down fork of GoMLX's own dtypes package: primitives only need to know the
// byte size of an element and how to parse its name, so none of the Go type conversion
// machinery is carried over.
package dtypes

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

func init() {
	// Add a mapping to the lower-case version of dtypes.
	keys := slices.Collect(maps.Keys(MapOfNames))
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		if lowerKey == key {
			continue
		}
		if _, found := MapOfNames[lowerKey]; found {
			continue
		}
		MapOfNames[lowerKey] = MapOfNames[key]
	}
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if name, found := dtypeNames[dtype]; found {
		return name
	}
	return fmt.Sprintf("DType(%d)", int32(dtype))
}

// Size returns the number of bytes for the given DType, or 0 for InvalidDType.
func (dtype DType) Size() int {
	return dtypeSizes[dtype]
}

// Bits returns the number of bits for the given DType.
func (dtype DType) Bits() int {
	return dtype.Size() * 8
}

// SizeForDimensions returns the size in bytes used for the given dimensions, densely packed.
//
// It works also for scalar (one element) shapes where the list of dimensions is empty.
func (dtype DType) SizeForDimensions(dimensions ...int) int {
	numElements := 1
	for _, dim := range dimensions {
		if dim < 0 {
			panic(errors.Errorf("dim cannot be negative for SizeForDimensions, got %v", dimensions))
		}
		numElements *= dim
	}
	return numElements * dtype.Size()
}

// IsSupported returns whether dtype is one of the known element types.
func (dtype DType) IsSupported() bool {
	_, found := dtypeSizes[dtype]
	return found
}

// IsFloat returns whether dtype is a floating point type of any precision.
func (dtype DType) IsFloat() bool {
	switch dtype {
	case Float16, BFloat16, Float32, Float64, F8E5M2, F8E4M3:
		return true
	}
	return false
}

// Parse returns the DType for the given name, accepting the aliases in MapOfNames.
func Parse(name string) (DType, error) {
	if dtype, found := MapOfNames[name]; found {
		return dtype, nil
	}
	if dtype, found := MapOfNames[strings.ToLower(name)]; found {
		return dtype, nil
	}
	return InvalidDType, errors.Errorf("unknown dtype %q", name)
}

// UnmarshalText implements encoding.TextUnmarshaler, so DType can be used in configuration files.
func (dtype *DType) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*dtype = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (dtype DType) MarshalText() ([]byte, error) {
	return []byte(dtype.String()), nil
}
