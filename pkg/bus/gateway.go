// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// serialPollInterval is the serial read timeout used while waiting for a
// gateway reply, so the deadline is checked between reads.
const serialPollInterval = 10 * time.Millisecond

// Gateway is a Transport that reaches the two-wire bus through a USB bus
// gateway. Each bus transfer is one request frame and one reply frame.
type Gateway struct {
	rw      io.ReadWriter
	timeout time.Duration
	decoder *FrameDecoder
	buf     []byte
	logger  *zap.Logger
}

// NewGateway creates a gateway transport over an open byte stream
func NewGateway(rw io.ReadWriter, timeout time.Duration, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		rw:      rw,
		timeout: timeout,
		decoder: NewFrameDecoder(),
		buf:     make([]byte, 64),
		logger:  logger,
	}
}

// OpenSerialGateway opens the gateway on a serial port
func OpenSerialGateway(portName string, baudRate int, timeout time.Duration, logger *zap.Logger) (*Gateway, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open bus gateway %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(serialPollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	return NewGateway(port, timeout, logger), nil
}

// Close closes the underlying stream if it can be closed
func (g *Gateway) Close() error {
	if c, ok := g.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Write implements Transport
func (g *Gateway) Write(addr uint8, data []byte) error {
	req := make([]byte, 0, 3+len(data))
	req = append(req, gwOpWrite, addr, uint8(len(data)))
	req = append(req, data...)

	rsp, err := g.exchange(req)
	if err != nil {
		return err
	}
	if rsp[0] != gwStatusAck {
		return ErrNoAck
	}
	return nil
}

// Read implements Transport
func (g *Gateway) Read(addr uint8, n int) ([]byte, error) {
	rsp, err := g.exchange([]byte{gwOpRead, addr, uint8(n)})
	if err != nil {
		return nil, err
	}
	if rsp[0] != gwStatusAck {
		return nil, ErrNoAck
	}
	return rsp[1:], nil
}

// exchange sends one request frame and waits for the reply frame
func (g *Gateway) exchange(req []byte) ([]byte, error) {
	frame, err := EncodeFrame(req)
	if err != nil {
		return nil, err
	}

	g.decoder.Reset()
	if _, err := g.rw.Write(frame); err != nil {
		return nil, fmt.Errorf("gateway write failed: %w", err)
	}

	deadline := time.Now().Add(g.timeout)
	for time.Now().Before(deadline) {
		n, err := g.rw.Read(g.buf)
		if err != nil {
			return nil, fmt.Errorf("gateway read failed: %w", err)
		}

		for i := 0; i < n; i++ {
			payload, decodeErr := g.decoder.DecodeByte(g.buf[i])
			if decodeErr != nil {
				g.logger.Warn("Gateway frame dropped", zap.Error(decodeErr))
				continue
			}
			if payload == nil {
				continue
			}
			if len(payload) == 0 {
				return nil, fmt.Errorf("gateway reply without status")
			}
			return payload, nil
		}
	}

	return nil, ErrTimeout
}
