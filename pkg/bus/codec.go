// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"encoding/binary"
	"fmt"

	"github.com/Thermoquad/signalbox/pkg/layout"
	"go.uber.org/zap"
)

// Transport moves raw bytes to and from a bus address. A Write with no data
// is an address-only probe.
type Transport interface {
	Write(addr uint8, data []byte) error
	Read(addr uint8, n int) ([]byte, error)
}

// Codec encodes commands and records onto a Transport
type Codec struct {
	tr     Transport
	logger *zap.Logger
}

// NewCodec creates a codec on top of the given transport
func NewCodec(tr Transport, logger *zap.Logger) *Codec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{tr: tr, logger: logger}
}

// Probe reports whether the node answers its address.
func (c *Codec) Probe(d Domain, node uint8) bool {
	return c.tr.Write(Address(d, node), nil) == nil
}

// SendCommand sends a command with optional data and expects no response.
func (c *Codec) SendCommand(d Domain, node uint8, op Opcode, option uint8, data ...byte) error {
	cmd := PackCommand(op, option)
	c.logger.Debug("Bus command",
		zap.Stringer("domain", d),
		zap.Uint8("node", node),
		zap.String("command", FormatCommand(cmd)),
		zap.Binary("data", data))

	if err := c.tr.Write(Address(d, node), append([]byte{cmd}, data...)); err != nil {
		return &Error{Domain: d, Node: node, Command: cmd, Err: err}
	}
	return nil
}

// SendAndReceive sends a command and reads back exactly expectedLen bytes.
func (c *Codec) SendAndReceive(d Domain, node uint8, op Opcode, option uint8, expectedLen int, data ...byte) ([]byte, error) {
	if err := c.SendCommand(d, node, op, option, data...); err != nil {
		return nil, err
	}

	cmd := PackCommand(op, option)
	rsp, err := c.tr.Read(Address(d, node), expectedLen)
	if err != nil {
		return nil, &Error{Domain: d, Node: node, Command: cmd, Err: err}
	}
	if len(rsp) != expectedLen {
		return nil, &Error{
			Domain:  d,
			Node:    node,
			Command: cmd,
			Err:     fmt.Errorf("%w: got %d, want %d", ErrShortResponse, len(rsp), expectedLen),
		}
	}
	return rsp, nil
}

// OutputStates reads the Hi/Lo state byte of an Output node.
func (c *Codec) OutputStates(node uint8) (byte, error) {
	rsp, err := c.SendAndReceive(DomainOutput, node, OpSystem, SysOutStates, OutStatesSize)
	if err != nil {
		return 0, err
	}
	return rsp[0], nil
}

// InputStates reads the 16 switch levels of an Input node.
func (c *Codec) InputStates(node uint8) (uint16, error) {
	rsp, err := c.SendAndReceive(DomainInput, node, OpSystem, SysInpStates, InpStatesSize)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(rsp), nil
}

// ReadOutput reads the definition of one Output pin.
func (c *Codec) ReadOutput(ref layout.Ref) (*layout.OutputDef, error) {
	rsp, err := c.SendAndReceive(DomainOutput, ref.Node, OpRead, ref.Pin, OutputDefSize)
	if err != nil {
		return nil, err
	}
	return DecodeOutputDef(rsp)
}

// WriteOutput replaces the working definition of one Output pin.
func (c *Codec) WriteOutput(ref layout.Ref, def *layout.OutputDef) error {
	return c.SendCommand(DomainOutput, ref.Node, OpWrite, ref.Pin, EncodeOutputDef(def)...)
}

// SetOutput moves an Output pin Hi or Lo after delay ticks.
func (c *Codec) SetOutput(ref layout.Ref, state bool, delay uint8) error {
	op := OpSetLo
	if state {
		op = OpSetHi
	}
	return c.SendCommand(DomainOutput, ref.Node, op, ref.Pin, delay)
}

// SaveOutput persists the working definition on the node.
func (c *Codec) SaveOutput(ref layout.Ref) error {
	return c.SendCommand(DomainOutput, ref.Node, OpSave, ref.Pin)
}

// ResetOutput discards the working definition and reloads the saved one.
func (c *Codec) ResetOutput(ref layout.Ref) error {
	return c.SendCommand(DomainOutput, ref.Node, OpReset, ref.Pin)
}

// TuneOutput drives an Output pin to a live value while it is adjusted.
func (c *Codec) TuneOutput(ref layout.Ref, value uint8) error {
	return c.SendCommand(DomainOutput, ref.Node, OpSet, ref.Pin, value)
}

// InputEvent reports an input transition for ref to its Output node.
func (c *Codec) InputEvent(ref layout.Ref, state bool) error {
	op := OpInpLo
	if state {
		op = OpInpHi
	}
	return c.SendCommand(DomainOutput, ref.Node, op, ref.Pin)
}

// Debug sets the diagnostic level of a node.
func (c *Codec) Debug(d Domain, node uint8, level uint8) error {
	return c.SendCommand(d, node, OpDebug, level)
}

// Gateway switches a node's gateway mode.
func (c *Codec) Gateway(d Domain, node uint8, enable bool) error {
	var v byte
	if enable {
		v = 1
	}
	return c.SendCommand(d, node, OpSystem, SysGateway, v)
}

// Renumber asks an Output node to move to newNode. The node may clamp or
// refuse the request; the returned value is the address it adopted.
func (c *Codec) Renumber(node, newNode uint8) (uint8, error) {
	rsp, err := c.SendAndReceive(DomainOutput, node, OpSystem, SysRenumber, RenumberRspSize, newNode)
	if err != nil {
		return 0, err
	}
	if rsp[0] >= layout.OutputNodes {
		return 0, &Error{
			Domain:  DomainOutput,
			Node:    node,
			Command: PackCommand(OpSystem, SysRenumber),
			Err:     ErrBadResponse,
		}
	}
	return rsp[0], nil
}

// MoveLocks tells an Output node to swap every lock reference to oldNode
// with newNode and vice versa.
func (c *Codec) MoveLocks(node, oldNode, newNode uint8) error {
	return c.SendCommand(DomainOutput, node, OpSystem, SysMoveLocks, oldNode, newNode)
}
