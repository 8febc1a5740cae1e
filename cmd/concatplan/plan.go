// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"
	"github.com/gomlx/dnnprims/backends"
	"github.com/gomlx/dnnprims/pkg/kernels"
	"github.com/gomlx/dnnprims/pkg/kernels/refconcat"
	"github.com/gomlx/dnnprims/pkg/kernels/reusableconcat"
	"github.com/gomlx/dnnprims/pkg/primitives/concat"
	"github.com/janpfeifer/must"
	"github.com/urfave/cli/v3"
)

// planReport is the outcome of planning one problem.
type planReport struct {
	Problem        string                        `json:"problem"`
	Engine         string                        `json:"engine"`
	Implementation string                        `json:"implementation"`
	Kernel         string                        `json:"kernel"`
	Options        []string                      `json:"options"`
	DstBytes       int                           `json:"dst_bytes"`
	Params         *reusableconcat.Params        `json:"params,omitempty"`
	RuntimeParams  *reusableconcat.RuntimeParams `json:"runtime_params,omitempty"`
	Copies         []refconcat.Copy              `json:"copies,omitempty"`
}

// planProblem creates the concat primitive for desc with the default implementations.
func planProblem(engine backends.Engine, desc *concat.Desc) (*planReport, error) {
	prim, err := kernels.CreateConcat(engine, desc)
	if err != nil {
		return nil, err
	}
	report := &planReport{
		Problem:        desc.String(),
		Engine:         engine.Name(),
		Implementation: prim.Name(),
		DstBytes:       desc.Dst.Size(),
	}
	switch p := prim.(type) {
	case *reusableconcat.Primitive:
		params, rt := p.Params(), p.RuntimeParams()
		report.Params, report.RuntimeParams = &params, &rt
		report.Kernel = p.Kernel().Name()
		report.Options = p.Kernel().Ctx().Options()
	case *refconcat.Primitive:
		report.Copies = p.Copies()
		report.Kernel = refconcat.KernelName
	}
	return report, nil
}

// variant returns a short name of the kernel chosen.
func (r *planReport) variant() string {
	if r.Params == nil {
		return r.Implementation
	}
	if r.Params.UseInternalPaddingKernel {
		return "internal_padding"
	}
	return "general"
}

func (r *planReport) table() string {
	t := newReportTable([]string{"Field", "Value"}, lipgloss.Left)
	t.Row(false, "problem", r.Problem)
	t.Row(false, "engine", r.Engine)
	t.Row(false, "destination", humanize.Bytes(uint64(r.DstBytes)))
	t.Row(r.Params == nil, "implementation", r.Implementation)
	t.Row(false, "kernel", r.Kernel)
	if p := r.Params; p != nil {
		rt := r.RuntimeParams
		t.Row(false, "inputs", fmt.Sprintf("%d %v", p.N, rt.Inputs))
		t.Row(false, "simd", fmt.Sprint(p.Simd))
		t.Row(false, "data type size", fmt.Sprint(p.DataTypeSize))
		t.Row(false, "read/write block", fmt.Sprintf("%d/%d", p.ReadBlock, p.WriteBlock))
		t.Row(false, "blocks", fmt.Sprintf("%v strides %v", p.Blocks, p.Strides))
		t.Row(p.UseLargeIndex, "large index", fmt.Sprint(p.UseLargeIndex))
		t.Row(false, "launch", rt.NDRange().String())
		t.Row(false, "offsets", fmt.Sprintf("%v padded %v", rt.Offset, rt.PaddedOffset))
		t.Row(false, "concat axis", fmt.Sprintf("%d padded %d", rt.DstConcatAxis, rt.DstPaddedConcatAxis))
		t.Row(false, "inner axis", humanize.Comma(int64(rt.InnerAxis)))
	}
	for _, c := range r.Copies {
		t.Row(false, fmt.Sprintf("copy #%d", c.Input), fmt.Sprintf("offset %d gws=%s", c.ConcatOffset, c.GWS))
	}
	if len(r.Options) > 0 {
		t.Row(false, "options", strings.Join(r.Options, " "))
	}
	return t.String()
}

func planCmd() *cli.Command {
	var (
		problemPath string
		asJSON      bool
	)
	return &cli.Command{
		Name:  "plan",
		Usage: "Plans the concat described in a YAML problem file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "problem",
				Aliases:     []string{"p"},
				Usage:       "path to the YAML problem file",
				Destination: &problemPath,
				Required:    true,
			},
			&cli.BoolFlag{Name: "json", Usage: "print the plan as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			problem, err := LoadProblem(problemPath)
			if err != nil {
				return err
			}
			desc, err := problem.Desc()
			if err != nil {
				return err
			}
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Finalize()
			report, err := planProblem(engine, desc)
			if err != nil {
				return err
			}
			if asJSON {
				fmt.Println(string(must.M1(json.MarshalIndent(report, "", "  "))))
				return nil
			}
			fmt.Println(report.table())
			return nil
		},
	}
}
