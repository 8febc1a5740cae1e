// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fake implements a compute engine that doesn't compute anything: it reports configurable
// hardware capabilities and records the kernels created and launched on it.
//
// It is used to plan primitives for a given device without the device, and to test the primitives.
//
// Configuration is a comma-separated list of "key=value" options, e.g.:
//
//	backends.NewWithConfig("fake:arch=xe_lp,maxsg=16,threads=672,subgroups=8+16")
//
// Options:
//
//   - arch: GPU architecture name (see backends.ParseGPUArch). Default "xe_hpc".
//   - maxsg: max subgroup size. Default 32.
//   - threads: number of hardware threads. Default 4096.
//   - subgroups: "+" separated list of supported subgroup widths. Default "8+16+32".
//   - lws: fixed local work size "XxYxZ", instead of backends.OptimalLWS.
package fake

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/gomlx/dnnprims/backends"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EngineName to be used in DNNPRIMS_ENGINE to specify this engine.
const EngineName = "fake"

func init() {
	backends.Register(EngineName, func(config string) (backends.Engine, error) {
		return New(config)
	})
}

// Launch is one recorded call to Engine.ParallelFor.
type Launch struct {
	Kernel  *Kernel
	NDRange backends.NDRange
	Args    []backends.Arg
}

// Engine implements backends.Engine.
type Engine struct {
	arch          backends.GPUArch
	maxSubgroup   int
	hwThreads     int
	subgroups     []int
	fixedLWS      *backends.Range
	isFinalized   bool
	mu            sync.Mutex
	kernels       []*Kernel
	launches      []Launch
	liveMemory    map[string]*Memory
	allocatedSize int
}

// Compile-time check that fake.Engine implements backends.Engine.
var _ backends.Engine = &Engine{}

// New constructs a new fake Engine with the given configuration. See package documentation.
func New(config string) (*Engine, error) {
	e := &Engine{
		arch:        backends.ArchXeHPC,
		maxSubgroup: 32,
		hwThreads:   4096,
		subgroups:   []int{8, 16, 32},
		liveMemory:  make(map[string]*Memory),
	}
	if config == "" {
		return e, nil
	}
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return nil, errors.Errorf("invalid configuration option %q for %q engine, expected key=value", part, EngineName)
		}
		var err error
		switch key {
		case "arch":
			e.arch, err = backends.ParseGPUArch(value)
		case "maxsg":
			e.maxSubgroup, err = parsePositive(value)
		case "threads":
			e.hwThreads, err = parsePositive(value)
		case "subgroups":
			e.subgroups = e.subgroups[:0:0]
			if value != "" {
				for _, width := range strings.Split(value, "+") {
					var w int
					w, err = parsePositive(width)
					if err != nil {
						break
					}
					e.subgroups = append(e.subgroups, w)
				}
			}
		case "lws":
			var lws backends.Range
			lws, err = parseRange(value)
			e.fixedLWS = &lws
		default:
			err = errors.New("unknown option")
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "configuration option %q for %q engine", part, EngineName)
		}
	}
	return e, nil
}

func parsePositive(value string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid integer %q", value)
	}
	if v <= 0 {
		return 0, errors.Errorf("value %d must be positive", v)
	}
	return v, nil
}

func parseRange(value string) (backends.Range, error) {
	var r backends.Range
	parts := strings.Split(value, "x")
	if len(parts) != len(r) {
		return r, errors.Errorf("invalid range %q, expected format XxYxZ", value)
	}
	for ii, part := range parts {
		v, err := parsePositive(part)
		if err != nil {
			return r, err
		}
		r[ii] = v
	}
	return r, nil
}

// Name implements backends.Engine.
func (e *Engine) Name() string { return EngineName }

// String implements fmt.Stringer.
func (e *Engine) String() string {
	return fmt.Sprintf("%s:arch=%s,maxsg=%d,threads=%d,subgroups=%v", EngineName, e.arch, e.maxSubgroup, e.hwThreads, e.subgroups)
}

// MaxSubgroupSize implements backends.Capabilities.
func (e *Engine) MaxSubgroupSize() int { return e.maxSubgroup }

// SupportsSubgroup implements backends.Capabilities.
func (e *Engine) SupportsSubgroup(width int) bool {
	return width <= e.maxSubgroup && slices.Contains(e.subgroups, width)
}

// HWThreadCount implements backends.Capabilities.
func (e *Engine) HWThreadCount() int { return e.hwThreads }

// Arch implements backends.Capabilities.
func (e *Engine) Arch() backends.GPUArch { return e.arch }

// OptimalLocalSize implements backends.Capabilities.
func (e *Engine) OptimalLocalSize(gws backends.Range, axisHint int) backends.Range {
	if e.fixedLWS != nil {
		return *e.fixedLWS
	}
	return backends.OptimalLWS(gws, axisHint, e.arch)
}

// Kernel implements backends.Kernel.
type Kernel struct {
	name string
	ctx  *backends.KernelCtx
	id   uuid.UUID
}

// Name implements backends.Kernel.
func (k *Kernel) Name() string { return k.name }

// Ctx implements backends.Kernel.
func (k *Kernel) Ctx() *backends.KernelCtx { return k.ctx }

// ID returns the unique id of the kernel.
func (k *Kernel) ID() string { return k.id.String() }

// CreateKernel implements backends.Engine. It records the kernel, and never fails unless the engine
// has been finalized.
func (e *Engine) CreateKernel(name string, kernelCtx *backends.KernelCtx) (backends.Kernel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isFinalized {
		return nil, errors.Errorf("%q engine has already been finalized", EngineName)
	}
	if kernelCtx == nil {
		kernelCtx = backends.NewKernelCtx()
	}
	k := &Kernel{name: name, ctx: kernelCtx, id: uuid.New()}
	e.kernels = append(e.kernels, k)
	klog.V(2).Infof("fake: created kernel %s (%s) with %s", name, k.id, kernelCtx)
	return k, nil
}

// ParallelFor implements backends.Engine. It validates and records the launch.
func (e *Engine) ParallelFor(ctx context.Context, ndRange backends.NDRange, kernel backends.Kernel, args *backends.ArgList) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "%q engine launch of %q", EngineName, kernel.Name())
	}
	k, ok := kernel.(*Kernel)
	if !ok {
		return errors.Errorf("kernel %q was not created by the %q engine", kernel.Name(), EngineName)
	}
	if err := ndRange.Validate(); err != nil {
		return errors.WithMessagef(err, "%q engine launch of %q", EngineName, k.name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isFinalized {
		return errors.Errorf("%q engine has already been finalized", EngineName)
	}
	for ii, arg := range args.Args() {
		if arg.Kind != backends.ArgMemory {
			continue
		}
		m, ok := arg.Memory.(*Memory)
		if !ok || m == nil {
			return errors.Errorf("argument #%d of %q is not a %q engine memory", ii, k.name, EngineName)
		}
		if _, live := e.liveMemory[m.id.String()]; !live {
			return errors.Errorf("argument #%d of %q uses memory %s that was finalized", ii, k.name, m.ID())
		}
	}
	e.launches = append(e.launches, Launch{Kernel: k, NDRange: ndRange, Args: args.Args()})
	klog.V(2).Infof("fake: launched %s with %s, %d arguments", k.name, ndRange, args.Len())
	return nil
}

// Kernels returns the kernels created so far.
func (e *Engine) Kernels() []*Kernel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.kernels)
}

// Launches returns the launches recorded so far.
func (e *Engine) Launches() []Launch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.launches)
}

// Reset forgets the recorded kernels and launches.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kernels = nil
	e.launches = nil
}

// Finalize implements backends.Engine.
func (e *Engine) Finalize() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isFinalized = true
	if len(e.liveMemory) > 0 {
		klog.Warningf("fake: engine finalized with %d live buffers (%d bytes)", len(e.liveMemory), e.allocatedSize)
	}
	e.liveMemory = make(map[string]*Memory)
	e.allocatedSize = 0
}
