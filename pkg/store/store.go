// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package store provides the byte-addressable persistent medium the signal
// box keeps its Input definitions in, and the record tables laid out on it.
package store

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/signalbox/pkg/layout"
)

// DefaultSize is the size of the persistent image in bytes.
const DefaultSize = 4096

// ErrOutOfRange is returned for accesses past the end of the medium.
var ErrOutOfRange = errors.New("offset out of range")

// Store is a byte-addressable persistent medium.
type Store interface {
	Get(offset, length int) ([]byte, error)
	Put(offset int, data []byte) error
}

// Sized is implemented by stores that know their capacity.
type Sized interface {
	Size() int
}

func checkRange(offset, length, size int) error {
	if offset < 0 || length < 0 || offset+length > size {
		return fmt.Errorf("%w: [%d,%d) of %d", ErrOutOfRange, offset, offset+length, size)
	}
	return nil
}

// Memory is a Store held in RAM.
type Memory struct {
	data []byte
}

// NewMemory creates a zero-filled in-memory store of size bytes
func NewMemory(size int) *Memory {
	return &Memory{data: make([]byte, size)}
}

// Get implements Store
func (m *Memory) Get(offset, length int) ([]byte, error) {
	if err := checkRange(offset, length, len(m.data)); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.data[offset:])
	return out, nil
}

// Put implements Store
func (m *Memory) Put(offset int, data []byte) error {
	if err := checkRange(offset, len(data), len(m.data)); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

// Size implements Sized
func (m *Memory) Size() int {
	return len(m.data)
}

// Layout decides where each Input record lives on the medium.
type Layout interface {
	InputOffset(node, pin uint8) int
}

// FixedLayout places Input records back to back starting at Base.
type FixedLayout struct {
	Base int
}

// DefaultLayout leaves the first 256 bytes for system settings.
var DefaultLayout = FixedLayout{Base: 0x100}

// InputOffset implements Layout
func (l FixedLayout) InputOffset(node, pin uint8) int {
	return l.Base + (int(node)*layout.InputPins+int(pin))*layout.InputDefSize
}

// InputTable loads and saves InputDefs for every Input node and pin.
type InputTable struct {
	store  Store
	layout Layout
}

// NewInputTable creates a table over s using l for record placement
func NewInputTable(s Store, l Layout) *InputTable {
	return &InputTable{store: s, layout: l}
}

// Load reads the InputDef of one Input pin.
func (t *InputTable) Load(node, pin uint8) (*layout.InputDef, error) {
	if node >= layout.InputNodes || pin >= layout.InputPins {
		return nil, fmt.Errorf("input %d:%d: %w", node, pin, ErrOutOfRange)
	}
	buf, err := t.store.Get(t.layout.InputOffset(node, pin), layout.InputDefSize)
	if err != nil {
		return nil, fmt.Errorf("load input %d:%d: %w", node, pin, err)
	}
	return layout.UnmarshalInputDef(buf)
}

// Save writes the InputDef of one Input pin.
func (t *InputTable) Save(node, pin uint8, def *layout.InputDef) error {
	if node >= layout.InputNodes || pin >= layout.InputPins {
		return fmt.Errorf("input %d:%d: %w", node, pin, ErrOutOfRange)
	}
	if errs := layout.ValidateInputDef(def); len(errs) > 0 {
		return &errs[0]
	}
	if err := t.store.Put(t.layout.InputOffset(node, pin), layout.MarshalInputDef(def)); err != nil {
		return fmt.Errorf("save input %d:%d: %w", node, pin, err)
	}
	return nil
}
