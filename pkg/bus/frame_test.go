// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_KnownValues(t *testing.T) {
	assert.Equal(t, uint16(crcInitial), CalculateCRC(nil))
	// Standard CRC-16-CCITT check value
	assert.Equal(t, uint16(0x29B1), CalculateCRC([]byte("123456789")))
}

// ============================================================
// Frame Tests
// ============================================================

func decodeAll(t *testing.T, d *FrameDecoder, data []byte) [][]byte {
	t.Helper()
	var frames [][]byte
	for _, b := range data {
		payload, err := d.DecodeByte(b)
		require.NoError(t, err)
		if payload != nil {
			frames = append(frames, payload)
		}
	}
	return frames
}

func TestFrame_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		{gwOpWrite, 0x45, 0},
		{gwOpWrite, 0x40, 2, 0x35, 0x00},
		{StartByte, EndByte, EscByte, 0x00, 0xFF},
		{},
	}

	for _, p := range payloads {
		frame, err := EncodeFrame(p)
		require.NoError(t, err)
		assert.Equal(t, byte(StartByte), frame[0])
		assert.Equal(t, byte(EndByte), frame[len(frame)-1])
		// Framing bytes never appear inside the stuffed body
		body := frame[1 : len(frame)-1]
		assert.False(t, bytes.ContainsAny(body, string([]byte{StartByte, EndByte})))

		frames := decodeAll(t, NewFrameDecoder(), frame)
		require.Len(t, frames, 1)
		assert.Equal(t, p, frames[0])
	}
}

func TestFrame_TooLarge(t *testing.T) {
	_, err := EncodeFrame(make([]byte, MaxFrameSize))
	assert.Error(t, err)
}

func TestFrameDecoder_CRCMismatch(t *testing.T) {
	frame, err := EncodeFrame([]byte{1, 2, 3})
	require.NoError(t, err)
	frame[2] ^= 0x01

	d := NewFrameDecoder()
	var lastErr error
	for _, b := range frame {
		_, lastErr = d.DecodeByte(b)
	}
	require.Error(t, lastErr)
	assert.Contains(t, lastErr.Error(), "CRC mismatch")
}

func TestFrameDecoder_StartResyncs(t *testing.T) {
	good, err := EncodeFrame([]byte{9, 8, 7})
	require.NoError(t, err)

	// Truncated frame followed by a complete one
	stream := append([]byte{StartByte, 0x01, 0x02}, good...)
	frames := decodeAll(t, NewFrameDecoder(), stream)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{9, 8, 7}, frames[0])
}

func TestFrameDecoder_IgnoresNoiseWhileIdle(t *testing.T) {
	frames := decodeAll(t, NewFrameDecoder(), []byte{0x00, 0x55, EscByte, 0x12})
	assert.Empty(t, frames)
}

// ============================================================
// Gateway Tests
// ============================================================

// fakeGateway answers gateway frames the way the USB bridge does
type fakeGateway struct {
	decoder *FrameDecoder
	out     bytes.Buffer
	handle  func(req []byte) []byte
	writes  [][]byte
}

func (f *fakeGateway) Write(p []byte) (int, error) {
	for _, b := range p {
		payload, err := f.decoder.DecodeByte(b)
		if err != nil {
			return 0, err
		}
		if payload != nil {
			f.writes = append(f.writes, payload)
			if rsp := f.handle(payload); rsp != nil {
				frame, err := EncodeFrame(rsp)
				if err != nil {
					return 0, err
				}
				f.out.Write(frame)
			}
		}
	}
	return len(p), nil
}

func (f *fakeGateway) Read(p []byte) (int, error) {
	if f.out.Len() == 0 {
		return 0, nil
	}
	return f.out.Read(p)
}

func TestGateway_WriteRead(t *testing.T) {
	fake := &fakeGateway{decoder: NewFrameDecoder()}
	fake.handle = func(req []byte) []byte {
		switch req[0] {
		case gwOpWrite:
			if req[1] == 0x41 {
				return []byte{gwStatusNack}
			}
			return []byte{gwStatusAck}
		case gwOpRead:
			return []byte{gwStatusAck, 0xA5}
		}
		return nil
	}
	gw := NewGateway(fake, 50*time.Millisecond, nil)

	require.NoError(t, gw.Write(0x40, []byte{0x01}))
	assert.Equal(t, []byte{gwOpWrite, 0x40, 1, 0x01}, fake.writes[0])

	err := gw.Write(0x41, nil)
	assert.True(t, errors.Is(err, ErrNoAck))

	rsp, err := gw.Read(0x40, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA5}, rsp)
	assert.Equal(t, []byte{gwOpRead, 0x40, 1}, fake.writes[2])
}

func TestGateway_Timeout(t *testing.T) {
	fake := &fakeGateway{decoder: NewFrameDecoder(), handle: func([]byte) []byte { return nil }}
	gw := NewGateway(fake, 20*time.Millisecond, nil)

	err := gw.Write(0x40, nil)
	assert.True(t, errors.Is(err, ErrTimeout))
}
