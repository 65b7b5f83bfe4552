// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import (
	"fmt"
	"time"
)

// Decoder implements the CMRI frame decoder state machine
type Decoder struct {
	state   State
	address uint8
	msgType byte
	body    []byte
	raw     []byte // Accumulate raw bytes including framing
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		body: make([]byte, 0, MaxBodySize),
		raw:  make([]byte, 0, 2*MaxBodySize),
	}
}

// Reset returns the decoder to Idle
func (d *Decoder) Reset() {
	d.state = StateIdle
	d.address = 0
	d.msgType = 0
	d.body = d.body[:0]
	d.raw = d.raw[:0]
}

// State returns the current decoder state
func (d *Decoder) State() State {
	return d.state
}

// RawBytes returns the raw bytes seen since the last frame boundary
func (d *Decoder) RawBytes() []byte {
	return d.raw
}

// skip abandons the current frame and scans for the next unescaped ETX
func (d *Decoder) skip(b byte) error {
	err := &FramingError{State: d.state, Byte: b}
	switch b {
	case ETX:
		// The offending byte already ends the frame
		d.state = StateIdle
	case DLE:
		d.state = StateSkipToEtxDle
	default:
		d.state = StateSkipToEtx
	}
	d.body = d.body[:0]
	return err
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns a *FramingError when the byte forced a resync.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if d.state == StateIdle {
		d.raw = d.raw[:0]
	}
	d.raw = append(d.raw, b)

	switch d.state {
	case StateIdle:
		// Noise between frames is dropped silently
		if b == SYN {
			d.state = StateSyn
		}
		return nil, nil

	case StateSyn:
		if b != SYN {
			return nil, d.skip(b)
		}
		d.state = StateStx
		return nil, nil

	case StateStx:
		switch b {
		case SYN:
			// Hosts may send extra SYNs for line turnaround
		case STX:
			d.state = StateAddr
		default:
			return nil, d.skip(b)
		}
		return nil, nil

	case StateAddr:
		if b < AddressBase || b == SYN {
			return nil, d.skip(b)
		}
		d.address = b - AddressBase
		d.state = StateType
		return nil, nil

	case StateType:
		if !ValidType(b) {
			return nil, d.skip(b)
		}
		d.msgType = b
		d.body = d.body[:0]
		d.state = StateData
		return nil, nil

	case StateData:
		switch b {
		case DLE:
			d.state = StateDleEscape
			return nil, nil
		case ETX:
			f := &Frame{
				Address:   d.address,
				Type:      d.msgType,
				Body:      append([]byte{}, d.body...),
				Timestamp: time.Now(),
			}
			d.state = StateIdle
			d.body = d.body[:0]
			return f, nil
		}
		return nil, d.appendBody(b)

	case StateDleEscape:
		// The escaped byte is data even when it is ETX or DLE
		if len(d.body) >= MaxBodySize {
			err := &FramingError{State: d.state, Byte: b}
			d.state = StateSkipToEtx
			d.body = d.body[:0]
			return nil, err
		}
		d.body = append(d.body, b)
		d.state = StateData
		return nil, nil

	case StateSkipToEtx:
		switch b {
		case DLE:
			d.state = StateSkipToEtxDle
		case ETX:
			d.state = StateIdle
		}
		return nil, nil

	case StateSkipToEtxDle:
		d.state = StateSkipToEtx
		return nil, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

func (d *Decoder) appendBody(b byte) error {
	if len(d.body) >= MaxBodySize {
		return d.skip(b)
	}
	d.body = append(d.body, b)
	return nil
}
