// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fake

import (
	"github.com/gomlx/dnnprims/backends"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Memory implements backends.Memory. It holds no data.
type Memory struct {
	engine *Engine
	id     uuid.UUID
	size   int
}

var _ backends.Memory = &Memory{}

// NewMemory implements backends.Engine.
func (e *Engine) NewMemory(sizeBytes int) (backends.Memory, error) {
	if sizeBytes < 0 {
		return nil, errors.Errorf("%q engine can't allocate %d bytes", EngineName, sizeBytes)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isFinalized {
		return nil, errors.Errorf("%q engine has already been finalized", EngineName)
	}
	m := &Memory{engine: e, id: uuid.New(), size: sizeBytes}
	e.liveMemory[m.id.String()] = m
	e.allocatedSize += sizeBytes
	return m, nil
}

// AllocatedSize returns the number of bytes in live (not finalized) memory.
func (e *Engine) AllocatedSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocatedSize
}

// Size implements backends.Memory.
func (m *Memory) Size() int { return m.size }

// ID implements backends.Memory.
func (m *Memory) ID() string { return m.id.String() }

// Finalize implements backends.Memory.
func (m *Memory) Finalize() error {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	key := m.id.String()
	if _, found := e.liveMemory[key]; !found {
		return errors.Errorf("memory %s already finalized", key)
	}
	delete(e.liveMemory, key)
	e.allocatedSize -= m.size
	return nil
}
