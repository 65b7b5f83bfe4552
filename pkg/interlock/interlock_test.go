// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package interlock

import (
	"testing"

	"github.com/Thermoquad/signalbox/pkg/layout"
	"github.com/Thermoquad/signalbox/pkg/registry"
	"github.com/stretchr/testify/assert"
)

// countingSource wraps a registry and counts lookups per node
type countingSource struct {
	reg   *registry.Registry
	reads map[uint8]int
}

func (c *countingSource) State(ref layout.Ref) (bool, bool) {
	c.reads[ref.Node]++
	return c.reg.State(ref)
}

func newSource() *countingSource {
	return &countingSource{reg: registry.New(), reads: make(map[uint8]int)}
}

func TestIsLocked_ShortCircuit(t *testing.T) {
	src := newSource()
	src.reg.SetPresent(1, true)
	src.reg.SetStateByte(1, 0b0000_0001)
	src.reg.SetPresent(2, true)
	src.reg.SetStateByte(2, 0b0000_0001)

	def := &layout.OutputDef{}
	def.HiLocks[0] = layout.Lock{Enabled: true, State: true, Ref: layout.Ref{Node: 1, Pin: 0}}
	def.HiLocks[1] = layout.Lock{Enabled: true, State: true, Ref: layout.Ref{Node: 2, Pin: 0}}

	res := NewEvaluator(src).IsLocked(def, true)
	assert.True(t, res.Blocked)
	assert.Equal(t, 0, res.LockIndex)
	assert.Equal(t, 1, src.reads[1])
	assert.Zero(t, src.reads[2], "lock 1 must not be consulted")
}

func TestIsLocked_FailOpen(t *testing.T) {
	for _, required := range []bool{false, true} {
		src := newSource()
		def := &layout.OutputDef{}
		def.LoLocks[2] = layout.Lock{Enabled: true, State: required, Ref: layout.Ref{Node: 7, Pin: 3}}

		res := NewEvaluator(src).IsLocked(def, false)
		assert.False(t, res.Blocked, "required=%v", required)
		assert.Equal(t, -1, res.LockIndex)
	}
}

func TestIsLocked_Selection(t *testing.T) {
	src := newSource()
	src.reg.SetPresent(3, true)
	src.reg.SetStateByte(3, 0b0001_0000) // pin 4 Hi, pin 5 Lo

	hi4 := layout.Ref{Node: 3, Pin: 4}
	lo5 := layout.Ref{Node: 3, Pin: 5}

	tests := []struct {
		name      string
		def       layout.OutputDef
		requested bool
		blocked   bool
		index     int
	}{
		{
			name:      "hi lock matches",
			def:       layout.OutputDef{HiLocks: [4]layout.Lock{{Enabled: true, State: true, Ref: hi4}}},
			requested: true,
			blocked:   true,
			index:     0,
		},
		{
			name:      "hi lock ignored when requesting lo",
			def:       layout.OutputDef{HiLocks: [4]layout.Lock{{Enabled: true, State: true, Ref: hi4}}},
			requested: false,
			index:     -1,
		},
		{
			name:      "required state differs",
			def:       layout.OutputDef{LoLocks: [4]layout.Lock{{Enabled: true, State: true, Ref: lo5}}},
			requested: false,
			index:     -1,
		},
		{
			name: "disabled lock skipped, later lock blocks",
			def: layout.OutputDef{LoLocks: [4]layout.Lock{
				{Enabled: false, State: true, Ref: hi4},
				{},
				{Enabled: true, State: false, Ref: lo5},
			}},
			requested: false,
			blocked:   true,
			index:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewEvaluator(src).IsLocked(&tt.def, tt.requested)
			assert.Equal(t, tt.blocked, res.Blocked)
			assert.Equal(t, tt.index, res.LockIndex)
		})
	}
}
