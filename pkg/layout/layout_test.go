// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Ref Tests
// ============================================================

func TestRef_PackUnpack(t *testing.T) {
	for node := uint8(0); node < OutputNodes; node++ {
		for pin := uint8(0); pin < OutputPins; pin++ {
			r := Ref{Node: node, Pin: pin}
			b := r.Pack()
			assert.Equal(t, node<<3|pin, b)
			assert.Equal(t, r, UnpackRef(b))
		}
	}
}

func TestRef_Valid(t *testing.T) {
	assert.True(t, Ref{Node: 31, Pin: 7}.Valid())
	assert.False(t, Ref{Node: 32, Pin: 0}.Valid())
	assert.False(t, Ref{Node: 0, Pin: 8}.Valid())
}

func TestOutputType_Names(t *testing.T) {
	for ty := TypeServo; ty < typeCount; ty++ {
		parsed, err := ParseOutputType(ty.String())
		require.NoError(t, err)
		assert.Equal(t, ty, parsed)
	}

	_, err := ParseOutputType("TURNTABLE")
	assert.Error(t, err)
	assert.Equal(t, "TYPE_99", OutputType(99).String())
}

func TestOutputDef_Locks(t *testing.T) {
	def := &OutputDef{}
	def.HiLocks[1].Enabled = true

	assert.True(t, def.Locks(true)[1].Enabled)
	assert.False(t, def.Locks(false)[1].Enabled)
}

// ============================================================
// InputDef Record Tests
// ============================================================

func TestInputDef_Record(t *testing.T) {
	def := &InputDef{Mode: ModeOnOff}
	def.Slots[0] = Slot{Used: true, Ref: Ref{Node: 5, Pin: 3}}
	def.Slots[1] = Slot{Used: true, Delay: true, Ticks: 20}
	def.Slots[4] = Slot{Used: true, Ref: Ref{Node: 31, Pin: 7}}

	buf := MarshalInputDef(def)
	require.Len(t, buf, InputDefSize)
	assert.Equal(t, byte(ModeOnOff), buf[0])
	assert.Equal(t, byte(0b010011), buf[1])
	assert.Equal(t, byte(0b000010), buf[2])
	assert.Equal(t, byte(5<<3|3), buf[3])
	assert.Equal(t, byte(20), buf[4])

	decoded, err := UnmarshalInputDef(buf)
	require.NoError(t, err)
	assert.Equal(t, def, decoded)
}

func TestInputDef_RecordLength(t *testing.T) {
	_, err := UnmarshalInputDef(make([]byte, InputDefSize-1))
	assert.Error(t, err)
}

func TestInputDef_Targets(t *testing.T) {
	def := &InputDef{}
	def.Slots[2] = Slot{Used: true, Ref: Ref{Node: 9, Pin: 1}}
	def.Slots[3] = Slot{Used: true, Delay: true, Ticks: 9}

	assert.True(t, def.Targets(9))
	assert.False(t, def.Targets(1))
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidateOutputDef(t *testing.T) {
	self := Ref{Node: 4, Pin: 2}

	tests := []struct {
		name  string
		def   OutputDef
		kinds []AnomalyType
	}{
		{
			name: "valid",
			def: OutputDef{Type: TypeServo, HiLocks: [MaxLocks]Lock{
				{Enabled: true, Ref: Ref{Node: 4, Pin: 3}},
			}},
		},
		{
			name: "self lock",
			def: OutputDef{Type: TypeSignal, LoLocks: [MaxLocks]Lock{
				{}, {Enabled: true, Ref: self},
			}},
			kinds: []AnomalyType{AnomalySelfLock},
		},
		{
			name: "disabled self lock is ignored",
			def: OutputDef{Type: TypeSignal, LoLocks: [MaxLocks]Lock{
				{Enabled: false, Ref: self},
			}},
		},
		{
			name:  "invalid type and ref",
			def:   OutputDef{Type: OutputType(40), HiLocks: [MaxLocks]Lock{{Enabled: true, Ref: Ref{Node: 40}}}},
			kinds: []AnomalyType{AnomalyInvalidType, AnomalyInvalidRef},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateOutputDef(&tt.def, self)
			var kinds []AnomalyType
			for _, e := range errs {
				kinds = append(kinds, e.Type)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestValidateInputDef(t *testing.T) {
	def := &InputDef{Mode: InputMode(9)}
	def.Slots[0] = Slot{Used: true, Ref: Ref{Node: 33}}
	def.Slots[1] = Slot{Used: true, Delay: true, Ticks: 255}

	errs := ValidateInputDef(def)
	require.Len(t, errs, 2)
	assert.Equal(t, AnomalyInvalidMode, errs[0].Type)
	assert.Equal(t, AnomalyInvalidRef, errs[1].Type)
}
