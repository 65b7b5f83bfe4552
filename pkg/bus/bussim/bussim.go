// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bussim simulates Output and Input nodes behind a bus.Transport.
//
// It answers every command the master sends the way node firmware does,
// including the side effects the master cannot see directly: paired output
// types move their sibling pin, RENUMBER swaps with an existing occupant, and
// MOVE_LOCKS rewrites stored lock references. It backs the package tests and
// the --simulate mode of the CLI.
package bussim

import (
	"encoding/binary"
	"sync"

	"github.com/Thermoquad/signalbox/pkg/bus"
	"github.com/Thermoquad/signalbox/pkg/layout"
)

// OutputNode is the simulated state of one Output node
type OutputNode struct {
	Defs    [layout.OutputPins]layout.OutputDef
	Saved   [layout.OutputPins]layout.OutputDef
	Tuned   [layout.OutputPins]uint8
	Delays  [layout.OutputPins]uint8
	Inputs  [layout.OutputPins]int
	Debug   uint8
	Gateway bool
}

// States returns the Hi/Lo state byte of the node
func (n *OutputNode) States() byte {
	var b byte
	for i, d := range n.Defs {
		if d.State {
			b |= 1 << i
		}
	}
	return b
}

// InputNode is the simulated state of one Input node
type InputNode struct {
	Levels uint16
}

// Transfer is one recorded write to the bus
type Transfer struct {
	Addr uint8
	Data []byte
}

// Bus is an in-memory bus populated with simulated nodes
type Bus struct {
	mu      sync.Mutex
	outputs map[uint8]*OutputNode
	inputs  map[uint8]*InputNode
	pending map[uint8][]byte
	failing map[uint8]bool
	log     []Transfer
}

// New creates an empty simulated bus
func New() *Bus {
	return &Bus{
		outputs: make(map[uint8]*OutputNode),
		inputs:  make(map[uint8]*InputNode),
		pending: make(map[uint8][]byte),
		failing: make(map[uint8]bool),
	}
}

// AddOutputNode attaches an Output node with all pins Lo
func (b *Bus) AddOutputNode(node uint8) *OutputNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := &OutputNode{}
	b.outputs[node] = n
	return n
}

// AddInputNode attaches an Input node with all switches open (Hi)
func (b *Bus) AddInputNode(node uint8) *InputNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := &InputNode{Levels: 0xFFFF}
	b.inputs[node] = n
	return n
}

// RemoveOutputNode detaches an Output node
func (b *Bus) RemoveOutputNode(node uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.outputs, node)
}

// OutputNode returns the simulated Output node at node, or nil
func (b *Bus) OutputNode(node uint8) *OutputNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outputs[node]
}

// OutputNodes returns the addresses of all attached Output nodes
func (b *Bus) OutputNodes() []uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var nodes []uint8
	for n := uint8(0); n < layout.OutputNodes; n++ {
		if _, ok := b.outputs[n]; ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// SetInput sets the level of one switch on an Input node
func (b *Bus) SetInput(node, pin uint8, level bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.inputs[node]
	if !ok {
		return
	}
	if level {
		n.Levels |= 1 << pin
	} else {
		n.Levels &^= 1 << pin
	}
}

// Fail makes a node stop acknowledging until cleared
func (b *Bus) Fail(d bus.Domain, node uint8, failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing[bus.Address(d, node)] = failing
}

// Transfers returns the recorded writes since the last ClearLog
func (b *Bus) Transfers() []Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Transfer(nil), b.log...)
}

// Commands returns the command bytes written to one address
func (b *Bus) Commands(d bus.Domain, node uint8) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	addr := bus.Address(d, node)
	var cmds []byte
	for _, t := range b.log {
		if t.Addr == addr && len(t.Data) > 0 {
			cmds = append(cmds, t.Data[0])
		}
	}
	return cmds
}

// ClearLog forgets recorded writes
func (b *Bus) ClearLog() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = nil
}

// Write implements bus.Transport
func (b *Bus) Write(addr uint8, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failing[addr] {
		return bus.ErrNoAck
	}

	if addr >= bus.OutputBase && addr < bus.OutputBase+layout.OutputNodes {
		node := addr - bus.OutputBase
		n, ok := b.outputs[node]
		if !ok {
			return bus.ErrNoAck
		}
		if len(data) == 0 {
			return nil
		}
		b.log = append(b.log, Transfer{Addr: addr, Data: append([]byte(nil), data...)})
		return b.outputCommand(node, n, data)
	}

	if addr >= bus.InputBase && addr < bus.InputBase+layout.InputNodes {
		n, ok := b.inputs[addr-bus.InputBase]
		if !ok {
			return bus.ErrNoAck
		}
		if len(data) == 0 {
			return nil
		}
		b.log = append(b.log, Transfer{Addr: addr, Data: append([]byte(nil), data...)})
		op, option := bus.UnpackCommand(data[0])
		if op != bus.OpSystem || option != bus.SysInpStates {
			return bus.ErrNoAck
		}
		rsp := make([]byte, bus.InpStatesSize)
		binary.LittleEndian.PutUint16(rsp, n.Levels)
		b.pending[addr] = rsp
		return nil
	}

	return bus.ErrNoAck
}

// Read implements bus.Transport
func (b *Bus) Read(addr uint8, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failing[addr] {
		return nil, bus.ErrNoAck
	}
	rsp, ok := b.pending[addr]
	if !ok {
		return nil, bus.ErrNoAck
	}
	delete(b.pending, addr)
	return rsp, nil
}

// outputCommand applies one command to an Output node (lock held)
func (b *Bus) outputCommand(node uint8, n *OutputNode, data []byte) error {
	op, option := bus.UnpackCommand(data[0])
	args := data[1:]
	addr := bus.Address(bus.DomainOutput, node)

	switch op {
	case bus.OpSystem:
		return b.systemCommand(node, n, option, args)

	case bus.OpDebug:
		n.Debug = option

	case bus.OpSetLo, bus.OpSetHi:
		if len(args) < 1 {
			return bus.ErrNoAck
		}
		pin := option & 0x07
		hi := op == bus.OpSetHi
		n.Defs[pin].State = hi
		n.Delays[pin] = args[0]
		if n.Defs[pin].Type.Paired() {
			n.Defs[pin^1].State = !hi
		}

	case bus.OpRead:
		b.pending[addr] = bus.EncodeOutputDef(&n.Defs[option&0x07])

	case bus.OpWrite:
		def, err := bus.DecodeOutputDef(args)
		if err != nil {
			return bus.ErrNoAck
		}
		n.Defs[option&0x07] = *def

	case bus.OpSave:
		n.Saved[option&0x07] = n.Defs[option&0x07]

	case bus.OpReset:
		n.Defs[option&0x07] = n.Saved[option&0x07]

	case bus.OpSet:
		if len(args) < 1 {
			return bus.ErrNoAck
		}
		n.Tuned[option&0x07] = args[0]

	case bus.OpInpLo, bus.OpInpHi:
		n.Inputs[option&0x07]++

	default:
		return bus.ErrNoAck
	}
	return nil
}

func (b *Bus) systemCommand(node uint8, n *OutputNode, option uint8, args []byte) error {
	addr := bus.Address(bus.DomainOutput, node)

	switch option {
	case bus.SysOutStates:
		b.pending[addr] = []byte{n.States()}

	case bus.SysGateway:
		n.Gateway = len(args) > 0 && args[0] != 0

	case bus.SysRenumber:
		if len(args) < 1 {
			return bus.ErrNoAck
		}
		target := args[0]
		if target >= layout.OutputNodes {
			// Refuse: stay where we are
			target = node
		}
		if target != node {
			occupant, taken := b.outputs[target]
			b.outputs[target] = n
			if taken {
				b.outputs[node] = occupant
			} else {
				delete(b.outputs, node)
			}
		}
		b.pending[addr] = []byte{target}

	case bus.SysMoveLocks:
		if len(args) < 2 {
			return bus.ErrNoAck
		}
		for i := range n.Defs {
			moveLocks(&n.Defs[i], args[0], args[1])
			moveLocks(&n.Saved[i], args[0], args[1])
		}

	default:
		return bus.ErrNoAck
	}
	return nil
}

func moveLocks(def *layout.OutputDef, oldNode, newNode uint8) {
	for _, locks := range []*[layout.MaxLocks]layout.Lock{&def.LoLocks, &def.HiLocks} {
		for i := range locks {
			switch locks[i].Ref.Node {
			case oldNode:
				locks[i].Ref.Node = newNode
			case newNode:
				locks[i].Ref.Node = oldNode
			}
		}
	}
}
