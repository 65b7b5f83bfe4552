// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"fmt"
)

// Gateway link framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// MaxFrameSize bounds the unstuffed body of a gateway frame, CRC included.
const MaxFrameSize = 64

// Gateway request operations and response status
const (
	gwOpWrite = 'W'
	gwOpRead  = 'R'

	gwStatusAck  = 0x00
	gwStatusNack = 0x01
)

// Decoder states (internal)
const (
	frameIdle = iota
	frameBody
)

// EncodeFrame wraps a gateway payload with CRC, byte stuffing and framing.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload)+2 > MaxFrameSize {
		return nil, fmt.Errorf("gateway payload too large: %d bytes (max %d)", len(payload), MaxFrameSize-2)
	}

	data := make([]byte, 0, len(payload)+2)
	data = append(data, payload...)
	crc := CalculateCRC(payload)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)

	return frame, nil
}

// stuffBytes applies byte stuffing to escape special bytes.
// Special bytes (START, END, ESC) are replaced with ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)

	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}

	return result
}

// FrameDecoder implements the gateway frame decoder state machine
type FrameDecoder struct {
	state      int
	buffer     []byte
	escapeNext bool
}

// NewFrameDecoder creates a new gateway frame decoder
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{
		state:  frameIdle,
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset resets the decoder state to idle
func (d *FrameDecoder) Reset() {
	d.state = frameIdle
	d.buffer = d.buffer[:0]
	d.escapeNext = false
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns the frame payload (CRC stripped) once an END byte closes a frame
// with a valid CRC, nil while the frame is incomplete.
func (d *FrameDecoder) DecodeByte(b byte) ([]byte, error) {
	// START always begins a new frame, even mid-frame
	if b == StartByte {
		d.Reset()
		d.state = frameBody
		return nil, nil
	}

	if d.state == frameIdle {
		return nil, nil
	}

	if b == EndByte {
		data := d.buffer
		d.state = frameIdle
		d.escapeNext = false
		if len(data) < 2 {
			d.buffer = d.buffer[:0]
			return nil, fmt.Errorf("frame too short: %d bytes", len(data))
		}
		payload := make([]byte, len(data)-2)
		copy(payload, data)
		got := uint16(data[len(data)-2])<<8 | uint16(data[len(data)-1])
		d.buffer = d.buffer[:0]
		if want := CalculateCRC(payload); got != want {
			return nil, fmt.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", want, got)
		}
		return payload, nil
	}

	// Handle byte stuffing
	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}
	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	if len(d.buffer) >= MaxFrameSize {
		d.Reset()
		return nil, fmt.Errorf("buffer overflow: frame exceeds max size")
	}
	d.buffer = append(d.buffer, b)
	return nil, nil
}
