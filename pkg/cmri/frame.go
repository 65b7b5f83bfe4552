// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Frame is one decoded CMRI message
type Frame struct {
	// Address is the node address (UA), not the wire byte.
	Address   uint8
	Type      byte
	Body      []byte
	Timestamp time.Time
}

// Encode renders the frame for the wire.
func (f *Frame) Encode() []byte {
	out := make([]byte, 0, 6+2*len(f.Body))
	out = append(out, SYN, SYN, STX, AddressBase+f.Address, f.Type)
	for _, b := range f.Body {
		if b <= DLE {
			out = append(out, DLE)
		}
		out = append(out, b)
	}
	return append(out, ETX)
}

// Init is the body of an INIT message
type Init struct {
	NodeType byte
	Delay    uint16
	Sets     uint8
}

// ParseInit decodes an INIT body. Trailing card-type bytes are ignored.
func ParseInit(body []byte) (Init, error) {
	if len(body) < 4 {
		return Init{}, fmt.Errorf("init body too short: %d bytes", len(body))
	}
	return Init{
		NodeType: body[0],
		Delay:    binary.BigEndian.Uint16(body[1:3]),
		Sets:     body[3],
	}, nil
}

// FramingError reports a byte that did not fit the frame grammar. The
// decoder has already moved on to SkipToEtx when it is returned.
type FramingError struct {
	State State
	Byte  byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("unexpected byte 0x%02X in state %s", e.Byte, e.State)
}
