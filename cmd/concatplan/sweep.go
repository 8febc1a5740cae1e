// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/dnnprims/backends"
	"github.com/gomlx/dnnprims/internal/workerspool"
	"github.com/gomlx/dnnprims/pkg/core/dtypes"
	"github.com/gomlx/dnnprims/pkg/core/memdesc"
	"github.com/gomlx/dnnprims/pkg/primitives/concat"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"
)

// sweepProblems returns two-input channel concats of nChw16c tensors over a grid of dtypes, channel
// splits and spatial sizes.
func sweepProblems() []*concat.Desc {
	channelSplits := [][2]int{{16, 16}, {10, 16}, {2, 2}, {24, 40}, {3, 61}, {64, 64}}
	spatial := [][2]int{{7, 7}, {56, 56}, {125, 125}, {125, 126}, {224, 224}}
	nChw16c := func(dtype dtypes.DType, c, h, w int) memdesc.Desc {
		return memdesc.MakeBlocked(dtype, []int{1, c, h, w}, nil, memdesc.Block{Size: 16, Axis: 1})
	}
	var descs []*concat.Desc
	for _, dtype := range []dtypes.DType{dtypes.Int8, dtypes.BFloat16, dtypes.Float32} {
		for _, split := range channelSplits {
			for _, hw := range spatial {
				desc, err := concat.NewDesc(1, nChw16c(dtype, split[0]+split[1], hw[0], hw[1]),
					nChw16c(dtype, split[0], hw[0], hw[1]), nChw16c(dtype, split[1], hw[0], hw[1]))
				if err != nil {
					klog.Fatalf("invalid sweep problem: %+v", err)
				}
				descs = append(descs, desc)
			}
		}
	}
	return descs
}

// sweepResult of one problem.
type sweepResult struct {
	desc    *concat.Desc
	variant string
	err     error
}

// runSweep plans all descs concurrently.
func runSweep(engine backends.Engine, descs []*concat.Desc, pool *workerspool.Pool, onDone func()) []sweepResult {
	results := make([]sweepResult, len(descs))
	var mu sync.Mutex
	pool.Run(len(descs), func(i int) {
		results[i].desc = descs[i]
		report, err := planProblem(engine, descs[i])
		if err != nil {
			results[i].err = err
		} else {
			results[i].variant = report.variant()
		}
		mu.Lock()
		defer mu.Unlock()
		if onDone != nil {
			onDone()
		}
	})
	return results
}

func sweepCmd() *cli.Command {
	var parallelism int
	return &cli.Command{
		Name:  "sweep",
		Usage: "Plans a grid of blocked two-input concats and reports which kernel each one uses",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "parallelism",
				Usage:       "number of problems planned in parallel, 0 to plan them sequentially, -1 for unlimited",
				Value:       workerspool.New().MaxParallelism(),
				Destination: &parallelism,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Finalize()

			descs := sweepProblems()
			bar := progressbar.NewOptions(len(descs),
				progressbar.OptionSetDescription("planning"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionSetTheme(progressbar.ThemeASCII),
				progressbar.OptionClearOnFinish(),
			)
			results := runSweep(engine, descs, workerspool.NewWithParallelism(parallelism), func() {
				_ = bar.Add(1)
			})
			_ = bar.Finish()

			counts := make(map[string]int)
			details := newReportTable([]string{"Problem", "Destination", "Variant"}, lipgloss.Left, lipgloss.Right, lipgloss.Left)
			for _, result := range results {
				variant := result.variant
				if result.err != nil {
					variant = "failed"
					klog.V(1).Infof("%s: %v", result.desc, result.err)
				}
				counts[variant]++
				details.Row(result.err != nil, result.desc.String(), humanize.Bytes(uint64(result.desc.Dst.Size())), variant)
			}
			fmt.Println(details)

			summary := newReportTable([]string{"Variant", "Problems"}, lipgloss.Left, lipgloss.Right)
			for _, variant := range slices.Sorted(maps.Keys(counts)) {
				summary.Row(variant == "failed", variant, humanize.Comma(int64(counts[variant])))
			}
			fmt.Println(summary)
			return nil
		},
	}
}
