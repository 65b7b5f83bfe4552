// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package layout defines the signal box data model: nodes, pins, Output
// definitions with their interlocks, and Input definitions that fan out to
// Outputs.
//
// Output nodes carry 8 pins each and are addressed 0-31. Input nodes carry 16
// switch pins each and are addressed 0-15.
package layout

import "fmt"

// Node and pin limits
const (
	OutputNodes = 32
	OutputPins  = 8
	InputNodes  = 16
	InputPins   = 16
)

// Definition limits
const (
	MaxLocks   = 4
	InputSlots = 6
)

// Ref identifies one Output pin. On the wire it packs into a single byte as
// node<<3 | pin.
type Ref struct {
	Node uint8
	Pin  uint8
}

// Pack returns the single-byte wire form of the reference.
func (r Ref) Pack() byte {
	return (r.Node&0x1F)<<3 | r.Pin&0x07
}

// UnpackRef decodes a node<<3|pin byte.
func UnpackRef(b byte) Ref {
	return Ref{Node: b >> 3, Pin: b & 0x07}
}

// Valid reports whether the reference addresses an existing Output pin.
func (r Ref) Valid() bool {
	return r.Node < OutputNodes && r.Pin < OutputPins
}

func (r Ref) String() string {
	return fmt.Sprintf("%02d:%d", r.Node, r.Pin)
}

// OutputType is the kind of peripheral driven by an Output pin
type OutputType uint8

// Output type values
const (
	TypeServo OutputType = iota
	TypeSignal
	TypeLED
	TypeLED4
	TypeRoadUK
	TypeRoadRW
	TypeFlash
	TypeBlink
	TypeRandom
	typeCount
)

var outputTypeNames = [...]string{
	TypeServo:  "SERVO",
	TypeSignal: "SIGNAL",
	TypeLED:    "LED",
	TypeLED4:   "LED_4",
	TypeRoadUK: "ROAD_UK",
	TypeRoadRW: "ROAD_RW",
	TypeFlash:  "FLASH",
	TypeBlink:  "BLINK",
	TypeRandom: "RANDOM",
}

func (t OutputType) String() string {
	if t < typeCount {
		return outputTypeNames[t]
	}
	return fmt.Sprintf("TYPE_%d", uint8(t))
}

// Valid reports whether t is a known output type.
func (t OutputType) Valid() bool {
	return t < typeCount
}

// Paired reports whether the type drives its sibling pin as a side effect.
// Paired types occupy an even/odd pin pair on the node; moving one pin moves
// the other, which the command that triggered it cannot see.
func (t OutputType) Paired() bool {
	switch t {
	case TypeLED4, TypeRoadUK, TypeRoadRW, TypeFlash:
		return true
	}
	return false
}

// ParseOutputType resolves a type name as printed by String.
func ParseOutputType(name string) (OutputType, error) {
	for i, n := range outputTypeNames {
		if n == name {
			return OutputType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown output type %q", name)
}

// Lock blocks a transition while the referenced Output is in State.
type Lock struct {
	Enabled bool
	State   bool
	Ref     Ref
}

// OutputDef is the authoritative definition of one Output pin. The Output
// node owns it; the controller only ever holds a working copy after a read.
type OutputDef struct {
	Type  OutputType
	State bool
	Lo    uint8
	Hi    uint8
	Pace  uint8
	Reset uint8

	LoLocks [MaxLocks]Lock
	HiLocks [MaxLocks]Lock
}

// Locks returns the lock list guarding a transition to the requested state.
func (d *OutputDef) Locks(requested bool) *[MaxLocks]Lock {
	if requested {
		return &d.HiLocks
	}
	return &d.LoLocks
}

// InputMode selects how an Input pin's level maps to a desired Output state
type InputMode uint8

// Input mode values
const (
	ModeToggle InputMode = iota
	ModeOnOff
	ModeOn
	ModeOff
	modeCount
)

var inputModeNames = [...]string{
	ModeToggle: "TOGGLE",
	ModeOnOff:  "ON_OFF",
	ModeOn:     "ON",
	ModeOff:    "OFF",
}

func (m InputMode) String() string {
	if m < modeCount {
		return inputModeNames[m]
	}
	return fmt.Sprintf("MODE_%d", uint8(m))
}

// Valid reports whether m is a known input mode.
func (m InputMode) Valid() bool {
	return m < modeCount
}

// Slot is one entry of an Input's output list. A slot is either a real Output
// reference or a delay of Ticks, never both.
type Slot struct {
	Used  bool
	Delay bool
	Ref   Ref
	Ticks uint8
}

// InputDef is the set of Output actions (or delays) one Input pin triggers.
type InputDef struct {
	Mode  InputMode
	Slots [InputSlots]Slot
}

// Targets reports whether any used slot references node.
func (d *InputDef) Targets(node uint8) bool {
	for _, s := range d.Slots {
		if s.Used && !s.Delay && s.Ref.Node == node {
			return true
		}
	}
	return false
}
