// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bus implements the command and record encoding used between the
// signal box master and its Output and Input nodes on the two-wire bus.
//
// Every request starts with a command byte: a 4-bit opcode in the high
// nibble and a 4-bit option in the low nibble. For pin-level opcodes the
// option is the pin; for SYSTEM it selects a sub-command.
//
// Exchanges are synchronous. The codec never retries; the caller decides
// what a failure means for the node.
package bus

// Opcode is the high nibble of a command byte
type Opcode uint8

// Opcode values
const (
	OpSystem Opcode = 0x0
	OpDebug  Opcode = 0x1
	OpSetLo  Opcode = 0x2
	OpSetHi  Opcode = 0x3
	OpRead   Opcode = 0x4
	OpWrite  Opcode = 0x5
	OpSave   Opcode = 0x6
	OpReset  Opcode = 0x7
	OpSet    Opcode = 0x8
	OpInpLo  Opcode = 0x9
	OpInpHi  Opcode = 0xA
	OpNone   Opcode = 0xF
)

// SYSTEM sub-commands, carried in the option nibble
const (
	SysGateway   uint8 = 0x0
	SysOutStates uint8 = 0x1
	SysInpStates uint8 = 0x2
	SysRenumber  uint8 = 0x3
	SysMoveLocks uint8 = 0x4
)

// Domain selects the Output or Input side of the bus
type Domain uint8

const (
	DomainOutput Domain = iota
	DomainInput
)

func (d Domain) String() string {
	if d == DomainInput {
		return "input"
	}
	return "output"
}

// Bus address bases. Output node n answers at OutputBase+n, Input node n at
// InputBase+n.
const (
	OutputBase = 0x40
	InputBase  = 0x20
)

// Record and response sizes
const (
	OutputDefSize   = 15
	OutStatesSize   = 1
	InpStatesSize   = 2
	RenumberRspSize = 1
)

// Address returns the bus address of node in domain d.
func Address(d Domain, node uint8) uint8 {
	if d == DomainInput {
		return InputBase + node&0x0F
	}
	return OutputBase + node&0x1F
}
