// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package registry

import (
	"testing"

	"github.com/Thermoquad/signalbox/pkg/layout"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_StateRequiresPresence(t *testing.T) {
	r := New()
	ref := layout.Ref{Node: 4, Pin: 1}

	r.SetStateByte(4, 0xFF)
	_, ok := r.State(ref)
	assert.False(t, ok, "absent node must not report state")

	r.SetPresent(4, true)
	r.SetStateByte(4, 0b0000_0010)
	state, ok := r.State(ref)
	assert.True(t, ok)
	assert.True(t, state)

	// Clearing presence drops the cache
	r.SetPresent(4, false)
	r.SetPresent(4, true)
	state, ok = r.State(ref)
	assert.True(t, ok)
	assert.False(t, state)
}

func TestRegistry_SetState(t *testing.T) {
	r := New()
	r.SetPresent(0, true)

	r.SetState(layout.Ref{Node: 0, Pin: 7}, true)
	r.SetState(layout.Ref{Node: 0, Pin: 0}, true)
	assert.Equal(t, byte(0x81), r.StateByte(0))

	r.SetState(layout.Ref{Node: 0, Pin: 7}, false)
	assert.Equal(t, byte(0x01), r.StateByte(0))

	// Out of range is ignored
	r.SetState(layout.Ref{Node: 40, Pin: 0}, true)
	r.SetPresent(40, true)
	assert.False(t, r.IsPresent(40))
}

func TestRegistry_SwapOutputs(t *testing.T) {
	r := New()
	r.SetPresent(5, true)
	r.SetStateByte(5, 0b0000_0001)
	r.SetPresent(9, true)
	r.SetStateByte(9, 0b0000_0100)

	r.SwapOutputs(5, 9)
	assert.Equal(t, byte(0b0000_0100), r.StateByte(5))
	assert.Equal(t, byte(0b0000_0001), r.StateByte(9))

	// Move onto an empty address
	r.SwapOutputs(9, 12)
	assert.False(t, r.IsPresent(9))
	assert.True(t, r.IsPresent(12))
	assert.Equal(t, byte(0b0000_0001), r.StateByte(12))
	assert.Equal(t, []uint8{5, 12}, r.PresentOutputs())
}

func TestRegistry_Inputs(t *testing.T) {
	r := New()
	r.SetInputLevels(3, 0xBEEF)
	assert.Equal(t, uint16(0), r.InputLevels(3))

	r.SetInputPresent(3, true)
	r.SetInputLevels(3, 0xBEEF)
	assert.Equal(t, uint16(0xBEEF), r.InputLevels(3))
	assert.Equal(t, []uint8{3}, r.PresentInputs())

	r.SetInputPresent(3, false)
	assert.Equal(t, uint16(0), r.InputLevels(3))
	assert.Empty(t, r.PresentInputs())
}
