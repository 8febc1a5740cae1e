// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/dnnprims/pkg/graphtest"
	"github.com/urfave/cli/v3"
)

// memcheckRow is the outcome of the memory check of one partition.
type memcheckRow struct {
	partition int
	numOps    int
	result    graphtest.Result
	cpuBytes  uint64
	gpuBytes  uint64
}

// checkGraph runs the memory checks of all partitions of g, accumulating their requests in checker.
func checkGraph(g *graphtest.Graph, checker *graphtest.MemoryChecker, mode graphtest.Mode) ([]memcheckRow, error) {
	partitions, err := g.SplitPartitions()
	if err != nil {
		return nil, err
	}
	rows := make([]memcheckRow, 0, len(partitions))
	for ii, p := range partitions {
		result, err := checker.CheckPartition(p, mode)
		if err != nil {
			return nil, err
		}
		rows = append(rows, memcheckRow{
			partition: ii,
			numOps:    len(p.Ops()),
			result:    result,
			cpuBytes:  checker.Requests.Get(graphtest.CPU),
			gpuBytes:  checker.Requests.Get(graphtest.GPU),
		})
	}
	return rows, nil
}

func memcheckCmd() *cli.Command {
	var (
		graphPath          string
		onGPU, bitwise     bool
		cpuLimit, gpuLimit string
	)
	return &cli.Command{
		Name:  "memcheck",
		Usage: "Checks that the partitions of a serialized graph fit in memory when tested",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "graph",
				Aliases:     []string{"g"},
				Usage:       "path to the JSON graph",
				Destination: &graphPath,
				Required:    true,
			},
			&cli.BoolFlag{Name: "gpu", Usage: "tests run on the GPU", Destination: &onGPU},
			&cli.BoolFlag{Name: "bitwise", Usage: "account for the bitwise mode of the correctness check", Destination: &bitwise},
			&cli.StringFlag{Name: "cpu-limit", Usage: "host memory limit", Value: "8GB", Destination: &cpuLimit},
			&cli.StringFlag{Name: "gpu-limit", Usage: "device memory limit", Value: "4GB", Destination: &gpuLimit},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			g, err := graphtest.LoadGraph(graphPath)
			if err != nil {
				return err
			}
			checker := &graphtest.MemoryChecker{Requests: &graphtest.MemoryRequests{}, OnGPU: onGPU}
			if checker.CPULimit, err = graphtest.ParseLimit(cpuLimit); err != nil {
				return err
			}
			if checker.GPULimit, err = graphtest.ParseLimit(gpuLimit); err != nil {
				return err
			}
			mode := graphtest.ModeCorrectness
			if bitwise {
				mode |= graphtest.ModeBitwise
			}
			rows, err := checkGraph(g, checker, mode)
			if err != nil {
				return err
			}

			t := newReportTable([]string{"Partition", "Ops", "State", "CPU requested", "GPU requested"},
				lipgloss.Right, lipgloss.Right, lipgloss.Left, lipgloss.Right)
			for _, row := range rows {
				state := row.result.State.String()
				if row.result.Reason != "" {
					state = fmt.Sprintf("%s (%s)", state, row.result.Reason)
				}
				t.Row(row.result.State == graphtest.Skipped, fmt.Sprint(row.partition), fmt.Sprint(row.numOps), state,
					humanize.Bytes(row.cpuBytes), humanize.Bytes(row.gpuBytes))
			}
			fmt.Println(t)
			return nil
		},
	}
}
