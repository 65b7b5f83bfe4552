// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package snapshot backs up and restores a signal box: the persistent
// image holding the Input definitions plus the OutputDefs read from every
// Output node. Snapshots are CBOR with integer keys.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/signalbox/pkg/bus"
	"github.com/Thermoquad/signalbox/pkg/layout"
	"github.com/Thermoquad/signalbox/pkg/store"
	"github.com/fxamacker/cbor/v2"
)

// Version is the snapshot format version
const Version = 1

// Snapshot is a full configuration backup
type Snapshot struct {
	Version uint   `cbor:"1,keyasint"`
	Created int64  `cbor:"2,keyasint"`
	Image   []byte `cbor:"3,keyasint"`
	Outputs []Node `cbor:"4,keyasint,omitempty"`
}

// Node holds the wire records of one Output node's pins
type Node struct {
	Node uint8    `cbor:"1,keyasint"`
	Defs [][]byte `cbor:"2,keyasint"`
}

// OutputReader reads OutputDefs from the bus
type OutputReader interface {
	ReadOutput(ref layout.Ref) (*layout.OutputDef, error)
}

// OutputWriter writes OutputDefs to the bus
type OutputWriter interface {
	WriteOutput(ref layout.Ref, def *layout.OutputDef) error
}

// Capture reads the whole image from src and the OutputDefs of nodes.
func Capture(src store.Store, size int, outputs OutputReader, nodes []uint8) (*Snapshot, error) {
	image, err := src.Get(0, size)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	s := &Snapshot{
		Version: Version,
		Created: time.Now().Unix(),
		Image:   image,
	}

	for _, node := range nodes {
		n := Node{Node: node}
		for pin := uint8(0); pin < layout.OutputPins; pin++ {
			def, err := outputs.ReadOutput(layout.Ref{Node: node, Pin: pin})
			if err != nil {
				return nil, fmt.Errorf("read output %02d:%d: %w", node, pin, err)
			}
			n.Defs = append(n.Defs, bus.EncodeOutputDef(def))
		}
		s.Outputs = append(s.Outputs, n)
	}

	return s, nil
}

// Restore writes the image back to dst and every OutputDef to its node.
// Outputs are best effort: a failing node does not stop the others.
func Restore(s *Snapshot, dst store.Store, outputs OutputWriter) error {
	if err := dst.Put(0, s.Image); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if outputs == nil {
		return nil
	}

	var errs []error
	for _, n := range s.Outputs {
		for pin, rec := range n.Defs {
			ref := layout.Ref{Node: n.Node, Pin: uint8(pin)}
			def, err := bus.DecodeOutputDef(rec)
			if err != nil {
				errs = append(errs, fmt.Errorf("output %s: %w", ref, err))
				continue
			}
			if err := outputs.WriteOutput(ref, def); err != nil {
				errs = append(errs, fmt.Errorf("output %s: %w", ref, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Marshal encodes a snapshot
func Marshal(s *Snapshot) ([]byte, error) {
	return cbor.Marshal(s)
}

// Unmarshal decodes and checks a snapshot
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	for _, n := range s.Outputs {
		if n.Node >= layout.OutputNodes {
			return nil, fmt.Errorf("output node %d out of range", n.Node)
		}
		if len(n.Defs) > layout.OutputPins {
			return nil, fmt.Errorf("output node %d has %d pins", n.Node, len(n.Defs))
		}
	}
	return &s, nil
}
