// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface to the compute engines that compile and launch the GPU
// kernels configured by the primitives.
//
// The primitives only consume an engine: they query its hardware capabilities while planning
// (see Capabilities), ask it to build a kernel from a KernelCtx, and enqueue it with a flattened
// ArgList. Compiling and running kernels is entirely up to the engine.
//
// Engines register themselves with Register (usually in an init function) and are created
// from a configuration string with New or NewWithConfig.
package backends

import (
	"context"
	"os"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// Engine is the API a compute engine needs to implement to run primitives.
type Engine interface {
	// Name returns the short name of the engine. E.g.: "fake".
	Name() string

	// Capabilities of the device the engine targets, used at configuration time.
	Capabilities

	// CreateKernel builds the named kernel with the compile-time definitions in kernelCtx.
	CreateKernel(name string, kernelCtx *KernelCtx) (Kernel, error)

	// NewMemory allocates a device buffer of the given size in bytes.
	NewMemory(sizeBytes int) (Memory, error)

	// ParallelFor enqueues the kernel over the given range with the given arguments.
	ParallelFor(ctx context.Context, ndRange NDRange, kernel Kernel, args *ArgList) error

	// Finalize releases all the associated resources immediately, and makes the engine invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns an Engine.
type Constructor func(config string) (Engine, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register engine with the given name, and a default constructor that takes as input a configuration
// string that is passed along to the engine constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List returns the names of the registered engines, sorted.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the name of the default engine configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// EngineEnv is the environment variable with the default engine configuration to use.
//
// The format of config is "<engine_name>:<engine_configuration>".
const EngineEnv = "DNNPRIMS_ENGINE"

// New returns a new default Engine.
//
// The default is:
//
// 1. The environment DNNPRIMS_ENGINE is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered engine is used with an empty configuration.
func New() (Engine, error) {
	config, found := os.LookupEnv(EngineEnv)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configuration string formatted as "<engine_name>:<engine_configuration>".
//
// The "<engine_name>" is the name of a registered engine (e.g.: "fake") and
// "<engine_configuration>" is engine specific. If the name is omitted, the first registered
// engine is used.
func NewWithConfig(config string) (Engine, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.New(`no registered compute engines -- maybe import the fake one with import _ "github.com/gomlx/dnnprims/backends/fake"?`)
	}
	engineName := firstRegistered
	engineConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		engineName = config[:idx]
		engineConfig = config[idx+1:]
	} else if _, found := registeredConstructors[config]; found {
		engineName = config
		engineConfig = ""
	}
	constructor, found := registeredConstructors[engineName]
	if !found {
		return nil, errors.Errorf("can't find engine %q for configuration %q given", engineName, config)
	}
	engine, err := constructor(engineConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create engine %q", engineName)
	}
	return engine, nil
}
