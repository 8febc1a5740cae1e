// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package concat

import (
	"context"
	"testing"

	"github.com/gomlx/dnnprims/backends"
	"github.com/gomlx/dnnprims/pkg/core/dtypes"
	"github.com/gomlx/dnnprims/pkg/core/memdesc"
	"github.com/gomlx/dnnprims/pkg/primitives"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDesc(t *testing.T) {
	src0 := memdesc.Make(dtypes.Float32, 2, 3, 4)
	src1 := memdesc.Make(dtypes.Float32, 2, 5, 4)
	desc, err := NewDesc(1, memdesc.Make(dtypes.Float32, 2, 8, 4), src0, src1)
	require.NoError(t, err)
	assert.Equal(t, 2, desc.NumInputs())
	assert.Equal(t, 2, desc.NumNonEmpty())

	_, err = NewDesc(1, memdesc.Make(dtypes.Float32, 2, 9, 4), src0, src1)
	require.Error(t, err)
	_, err = NewDesc(3, memdesc.Make(dtypes.Float32, 2, 8, 4), src0, src1)
	require.Error(t, err)
	_, err = NewDesc(1, memdesc.Make(dtypes.Float16, 2, 8, 4), src0, memdesc.Make(dtypes.Float16, 2, 5, 4))
	require.Error(t, err)
	_, err = NewDesc(1, memdesc.Make(dtypes.Float32, 2, 8, 5), src0, memdesc.Make(dtypes.Float32, 2, 5, 5))
	require.Error(t, err)
	_, err = NewDesc(1, memdesc.Make(dtypes.Float32, 2, 8, 4))
	require.Error(t, err)
}

func TestNewDescAnyDst(t *testing.T) {
	nhwc := []int{0, 2, 3, 1}
	src0 := memdesc.MakeBlocked(dtypes.Int8, []int{1, 3, 4, 4}, nhwc)
	src1 := memdesc.MakeBlocked(dtypes.Int8, []int{1, 0, 4, 4}, nhwc)
	src2 := memdesc.MakeBlocked(dtypes.Int8, []int{1, 5, 4, 4}, nhwc)
	desc, err := NewDesc(1, memdesc.Desc{Format: memdesc.FormatAny}, src0, src1, src2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 8, 4, 4}, desc.Dst.Dims)
	assert.Equal(t, memdesc.MakeBlocked(dtypes.Int8, []int{1, 8, 4, 4}, nhwc).Strides, desc.Dst.Strides)
	assert.True(t, desc.IsEmptySource(1))
	assert.Equal(t, 2, desc.NumNonEmpty())
}

type stubImpl struct {
	name string
	err  error
}

func (s stubImpl) Name() string { return s.name }

func (s stubImpl) Init(_ backends.Engine, desc *Desc) (Primitive, error) {
	if s.err != nil {
		return nil, s.err
	}
	return stubPrimitive{name: s.name, desc: desc}, nil
}

type stubPrimitive struct {
	name string
	desc *Desc
}

func (p stubPrimitive) Name() string { return p.name }
func (p stubPrimitive) Desc() *Desc  { return p.desc }
func (p stubPrimitive) Execute(_ context.Context, args primitives.ExecArgs) error {
	return CheckExecArgs(p.desc, args)
}

func TestCreate(t *testing.T) {
	desc, err := NewDesc(0, memdesc.Make(dtypes.Float32, 4), memdesc.Make(dtypes.Float32, 1), memdesc.Make(dtypes.Float32, 3))
	require.NoError(t, err)

	p, err := Create(nil, desc,
		stubImpl{name: "picky", err: primitives.Unimplementedf("too picky")},
		stubImpl{name: "generic"})
	require.NoError(t, err)
	assert.Equal(t, "generic", p.Name())
	assert.Same(t, desc, p.Desc())

	hardErr := errors.New("device lost")
	_, err = Create(nil, desc, stubImpl{name: "broken", err: hardErr}, stubImpl{name: "generic"})
	require.ErrorIs(t, err, hardErr)

	_, err = Create(nil, desc, stubImpl{name: "picky", err: primitives.Unimplementedf("too picky")})
	require.True(t, primitives.IsUnimplemented(err))

	err = p.Execute(context.Background(), primitives.ExecArgs{})
	require.Error(t, err)
}
