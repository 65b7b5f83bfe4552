// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import "fmt"

// PackCommand builds a command byte from an opcode and its option.
func PackCommand(op Opcode, option uint8) byte {
	return byte(op&0x0F)<<4 | option&0x0F
}

// UnpackCommand splits a command byte into opcode and option.
func UnpackCommand(b byte) (Opcode, uint8) {
	return Opcode(b >> 4), b & 0x0F
}

var opcodeNames = map[Opcode]string{
	OpSystem: "SYSTEM",
	OpDebug:  "DEBUG",
	OpSetLo:  "SET_LO",
	OpSetHi:  "SET_HI",
	OpRead:   "READ",
	OpWrite:  "WRITE",
	OpSave:   "SAVE",
	OpReset:  "RESET",
	OpSet:    "SET",
	OpInpLo:  "INP_LO",
	OpInpHi:  "INP_HI",
	OpNone:   "NONE",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OP_%X", uint8(o))
}

// FormatCommand returns the human-readable name for a command byte
func FormatCommand(b byte) string {
	op, option := UnpackCommand(b)
	if op != OpSystem {
		return fmt.Sprintf("%s(%d)", op, option)
	}
	switch option {
	case SysGateway:
		return "SYSTEM/GATEWAY"
	case SysOutStates:
		return "SYSTEM/OUT_STATES"
	case SysInpStates:
		return "SYSTEM/INP_STATES"
	case SysRenumber:
		return "SYSTEM/RENUMBER"
	case SysMoveLocks:
		return "SYSTEM/MOVE_LOCKS"
	default:
		return fmt.Sprintf("SYSTEM/%X", option)
	}
}
