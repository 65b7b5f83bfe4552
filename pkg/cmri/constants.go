// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package cmri bridges the signal box to a CMRI host.
//
// Frames on the wire are
//
//	SYN SYN STX <address> <type> <body...> ETX
//
// where any body byte at or below DLE is sent preceded by DLE. The host
// polls for Input and Output state and transmits bits that action Inputs
// or toggle Outputs.
package cmri

// Framing bytes
const (
	SYN = 0xFF
	STX = 0x02
	ETX = 0x03
	DLE = 0x10
)

// Message types
const (
	TypeInit     = 'I'
	TypePoll     = 'P'
	TypeReceive  = 'R'
	TypeTransmit = 'T'
	TypeError    = 'E'
)

// AddressBase is added to the node address (UA) on the wire.
const AddressBase = 'A'

// MaxBodySize bounds the decoded body of one frame.
const MaxBodySize = 256

// State is a decoder state
type State int

const (
	StateIdle State = iota
	StateSyn
	StateStx
	StateAddr
	StateType
	StateData
	StateDleEscape
	StateSkipToEtx
	StateSkipToEtxDle
)

var stateNames = [...]string{
	StateIdle:         "Idle",
	StateSyn:          "Syn",
	StateStx:          "Stx",
	StateAddr:         "Addr",
	StateType:         "Type",
	StateData:         "Data",
	StateDleEscape:    "DleEscape",
	StateSkipToEtx:    "SkipToEtx",
	StateSkipToEtxDle: "SkipToEtxDle",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// ValidType reports whether t is a known message type
func ValidType(t byte) bool {
	switch t {
	case TypeInit, TypePoll, TypeReceive, TypeTransmit, TypeError:
		return true
	}
	return false
}
