// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package refconcat

import (
	"context"
	"testing"

	"github.com/gomlx/dnnprims/backends"
	"github.com/gomlx/dnnprims/backends/fake"
	"github.com/gomlx/dnnprims/pkg/core/dtypes"
	"github.com/gomlx/dnnprims/pkg/core/memdesc"
	"github.com/gomlx/dnnprims/pkg/primitives"
	"github.com/gomlx/dnnprims/pkg/primitives/concat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefConcat(t *testing.T) {
	engine, err := fake.New("")
	require.NoError(t, err)
	desc, err := concat.NewDesc(1, memdesc.Make(dtypes.Float32, 2, 8, 4),
		memdesc.Make(dtypes.Float32, 2, 3, 4),
		memdesc.Make(dtypes.Float32, 2, 0, 4),
		memdesc.Make(dtypes.Float32, 2, 5, 4))
	require.NoError(t, err)

	prim, err := Implementation{}.Init(engine, desc)
	require.NoError(t, err)
	assert.Equal(t, ImplementationName, prim.Name())
	ref := prim.(*Primitive)
	assert.Equal(t, []Copy{
		{Input: 0, ConcatOffset: 0, GWS: backends.Range{24, 1, 1}},
		{Input: 2, ConcatOffset: 3, GWS: backends.Range{40, 1, 1}},
	}, ref.Copies())
	require.Len(t, engine.Kernels(), 1)
	assert.Equal(t, []string{"-DDATA_TYPE_SIZE=4", "-DNDIMS=3", "-DCONCAT_AXIS=1"}, engine.Kernels()[0].Ctx().Options())

	args := primitives.ExecArgs{Srcs: make([]backends.Memory, 3)}
	args.Dst, err = engine.NewMemory(desc.Dst.Size())
	require.NoError(t, err)
	for _, i := range []int{0, 2} {
		args.Srcs[i], err = engine.NewMemory(desc.Srcs[i].Size())
		require.NoError(t, err)
	}
	require.NoError(t, prim.Execute(context.Background(), args))
	launches := engine.Launches()
	require.Len(t, launches, 2)
	for ii, input := range []int{0, 2} {
		launch := launches[ii]
		assert.Equal(t, ref.Copies()[ii].GWS, launch.NDRange.Global)
		assert.Same(t, args.Dst, launch.Args[0].Memory)
		assert.Same(t, args.Srcs[input], launch.Args[1].Memory)
		// dst, src, offset, 2 layouts of 1 + 3*rank + 1 scalars.
		assert.Len(t, launch.Args, 3+2*(1+3*3+1))
	}
	assert.EqualValues(t, 3, launches[1].Args[2].Scalar)
}

func TestRefConcatBlocked(t *testing.T) {
	engine, err := fake.New("")
	require.NoError(t, err)
	nChw16c := func(c int) memdesc.Desc {
		return memdesc.MakeBlocked(dtypes.Int8, []int{1, c, 3, 3}, nil, memdesc.Block{Size: 16, Axis: 1})
	}
	desc, err := concat.NewDesc(1, nChw16c(4), nChw16c(2), nChw16c(2))
	require.NoError(t, err)
	prim, err := Implementation{}.Init(engine, desc)
	require.NoError(t, err)
	copies := prim.(*Primitive).Copies()
	require.Len(t, copies, 2)
	assert.Equal(t, backends.Range{18, 1, 1}, copies[1].GWS)
	assert.Equal(t, 2, copies[1].ConcatOffset)
}

func TestRefConcatRejects(t *testing.T) {
	engine, err := fake.New("")
	require.NoError(t, err)
	opaque := memdesc.Make(dtypes.Float32, 2, 8).WithFormat(memdesc.FormatOpaque)
	desc, err := concat.NewDesc(1, memdesc.Make(dtypes.Float32, 2, 8), opaque)
	require.NoError(t, err)
	_, err = Implementation{}.Init(engine, desc)
	require.Error(t, err)
	assert.True(t, primitives.IsUnimplemented(err))
	assert.Empty(t, engine.Kernels())
}
