// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

// DType is an enum that represents the data type of the elements of a memory descriptor.
//
// The numbering follows the XLA/PJRT buffer types where they overlap, so that values can be
// exchanged with other GoMLX packages without a translation table.
type DType int32

const (
	// InvalidDType is the zero value, used for unset descriptors.
	InvalidDType DType = 0

	// Bool is a one-byte predicate.
	Bool DType = 1

	// Int8 is a signed 8-bit integer (oneDNN "s8").
	Int8 DType = 2

	// Int16 is a signed 16-bit integer.
	Int16 DType = 3

	// Int32 is a signed 32-bit integer (oneDNN "s32").
	Int32 DType = 4

	// Int64 is a signed 64-bit integer.
	Int64 DType = 5

	// Uint8 is an unsigned 8-bit integer (oneDNN "u8").
	Uint8 DType = 6

	// Uint16 is an unsigned 16-bit integer.
	Uint16 DType = 7

	// Uint32 is an unsigned 32-bit integer.
	Uint32 DType = 8

	// Uint64 is an unsigned 64-bit integer.
	Uint64 DType = 9

	// Float16 is IEEE half precision (oneDNN "f16").
	Float16 DType = 10

	// Float32 is IEEE single precision (oneDNN "f32").
	Float32 DType = 11

	// Float64 is IEEE double precision (oneDNN "f64").
	Float64 DType = 12

	// BFloat16 is the truncated 16-bit floating point format: 1 bit sign, 8 bits exponent and 7 bits mantissa.
	BFloat16 DType = 13

	// F8E5M2 is an 8-bit floating point with 5 bits exponent and 2 bits mantissa (oneDNN "f8_e5m2").
	F8E5M2 DType = 16

	// F8E4M3 is an 8-bit floating point with 4 bits exponent and 3 bits mantissa (oneDNN "f8_e4m3").
	F8E4M3 DType = 26
)

// Aliases using the short names.
const (
	S8   = Int8
	S32  = Int32
	U8   = Uint8
	F16  = Float16
	F32  = Float32
	F64  = Float64
	BF16 = BFloat16
)

// MapOfNames to their dtypes. It includes also aliases to the various dtypes, including the ones
// used by oneDNN graph serialization (e.g. "f32", "bf16", "s8", "f8_e4m3").
//
// It is also later initialized to include the lower-case version of the names.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"undef":        InvalidDType,
	"Bool":         Bool,
	"boolean":      Bool,
	"Int8":         Int8,
	"S8":           Int8,
	"Int16":        Int16,
	"S16":          Int16,
	"Int32":        Int32,
	"S32":          Int32,
	"Int64":        Int64,
	"S64":          Int64,
	"Uint8":        Uint8,
	"U8":           Uint8,
	"Uint16":       Uint16,
	"U16":          Uint16,
	"Uint32":       Uint32,
	"U32":          Uint32,
	"Uint64":       Uint64,
	"U64":          Uint64,
	"Float16":      Float16,
	"F16":          Float16,
	"Float32":      Float32,
	"F32":          Float32,
	"Float64":      Float64,
	"F64":          Float64,
	"BFloat16":     BFloat16,
	"BF16":         BFloat16,
	"F8E5M2":       F8E5M2,
	"f8_e5m2":      F8E5M2,
	"F8E4M3":       F8E4M3,
	"f8_e4m3":      F8E4M3,
}

var dtypeNames = map[DType]string{
	InvalidDType: "InvalidDType",
	Bool:         "Bool",
	Int8:         "Int8",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	Uint8:        "Uint8",
	Uint16:       "Uint16",
	Uint32:       "Uint32",
	Uint64:       "Uint64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
	BFloat16:     "BFloat16",
	F8E5M2:       "F8E5M2",
	F8E4M3:       "F8E4M3",
}

var dtypeSizes = map[DType]int{
	Bool:     1,
	Int8:     1,
	Int16:    2,
	Int32:    4,
	Int64:    8,
	Uint8:    1,
	Uint16:   2,
	Uint32:   4,
	Uint64:   8,
	Float16:  2,
	Float32:  4,
	Float64:  8,
	BFloat16: 2,
	F8E5M2:   1,
	F8E4M3:   1,
}
