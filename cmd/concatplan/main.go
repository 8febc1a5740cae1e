// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// concatplan shows how concat problems are planned on a device, and checks the memory graph tests
// would need.
//
// Commands:
//
//	concatplan plan --problem p.yaml [--json]
//	concatplan sweep [--parallelism 8]
//	concatplan memcheck --graph g.json [--gpu] [--cpu-limit 8GB] [--gpu-limit 4GB]
//
// The device is selected with --engine (or $DNNPRIMS_ENGINE), e.g. "fake:arch=xe_hpg,maxsg=16".
package main

import (
	"context"
	"flag"
	"os"
	"strconv"

	"github.com/gomlx/dnnprims/backends"
	_ "github.com/gomlx/dnnprims/backends/default"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"
)

var (
	engineConfig string
	verbosity    int
)

func main() {
	app := &cli.Command{
		Name:  "concatplan",
		Usage: "Plans concat primitives and checks graph test memory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "engine",
				Usage:       "engine configuration \"<name>:<key>=<value>,...\", defaults to $" + backends.EngineEnv,
				Destination: &engineConfig,
			},
			&cli.IntFlag{
				Name:        "v",
				Usage:       "logging verbosity: 1 logs planning decisions, 2 the candidates considered",
				Destination: &verbosity,
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
			klog.InitFlags(klogFlags)
			if err := klogFlags.Set("v", strconv.Itoa(verbosity)); err != nil {
				return ctx, errors.Wrap(err, "failed to set verbosity")
			}
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			planCmd(),
			sweepCmd(),
			memcheckCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		klog.Errorf("concatplan: %+v", err)
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}

// newEngine creates the engine selected by --engine, or the default one.
func newEngine() (backends.Engine, error) {
	if engineConfig == "" {
		return backends.New()
	}
	return backends.NewWithConfig(engineConfig)
}
