// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package registry holds the last-known state of every node on the bus: which
// Output and Input nodes answered recently, the Hi/Lo state byte of each
// Output node and the switch levels of each Input node.
//
// Cached state is only meaningful while the node is present. Clearing a
// node's presence also clears its cache so a stale value can never be read
// back as if it were current.
package registry

import "github.com/Thermoquad/signalbox/pkg/layout"

// Registry is the master's view of the bus. It is owned by the controller
// loop and is not safe for concurrent use.
type Registry struct {
	outPresent [layout.OutputNodes]bool
	outStates  [layout.OutputNodes]byte

	inPresent [layout.InputNodes]bool
	inLevels  [layout.InputNodes]uint16
}

// New creates a registry with no nodes present
func New() *Registry {
	return &Registry{}
}

// SetPresent marks an Output node present or absent.
func (r *Registry) SetPresent(node uint8, present bool) {
	if node >= layout.OutputNodes {
		return
	}
	r.outPresent[node] = present
	if !present {
		r.outStates[node] = 0
	}
}

// IsPresent reports whether an Output node answered recently.
func (r *Registry) IsPresent(node uint8) bool {
	return node < layout.OutputNodes && r.outPresent[node]
}

// State returns the cached state of an Output pin. ok is false when the node
// is not present and the cached value must not be trusted.
func (r *Registry) State(ref layout.Ref) (state bool, ok bool) {
	if !r.IsPresent(ref.Node) || ref.Pin >= layout.OutputPins {
		return false, false
	}
	return r.outStates[ref.Node]&(1<<ref.Pin) != 0, true
}

// StateByte returns the cached state byte of an Output node, or 0 when the
// node is not present.
func (r *Registry) StateByte(node uint8) byte {
	if !r.IsPresent(node) {
		return 0
	}
	return r.outStates[node]
}

// SetStateByte overwrites the whole state byte after a full read.
func (r *Registry) SetStateByte(node uint8, states byte) {
	if node >= layout.OutputNodes {
		return
	}
	r.outStates[node] = states
}

// SetState updates a single pin after a targeted write.
func (r *Registry) SetState(ref layout.Ref, state bool) {
	if !ref.Valid() {
		return
	}
	if state {
		r.outStates[ref.Node] |= 1 << ref.Pin
	} else {
		r.outStates[ref.Node] &^= 1 << ref.Pin
	}
}

// SwapOutputs exchanges presence and cached state of two Output nodes.
// When b was absent this moves a to b and leaves a absent.
func (r *Registry) SwapOutputs(a, b uint8) {
	if a >= layout.OutputNodes || b >= layout.OutputNodes {
		return
	}
	r.outPresent[a], r.outPresent[b] = r.outPresent[b], r.outPresent[a]
	r.outStates[a], r.outStates[b] = r.outStates[b], r.outStates[a]
}

// PresentOutputs returns the present Output nodes in ascending order.
func (r *Registry) PresentOutputs() []uint8 {
	var nodes []uint8
	for n := range r.outPresent {
		if r.outPresent[n] {
			nodes = append(nodes, uint8(n))
		}
	}
	return nodes
}

// SetInputPresent marks an Input node present or absent.
func (r *Registry) SetInputPresent(node uint8, present bool) {
	if node >= layout.InputNodes {
		return
	}
	r.inPresent[node] = present
	if !present {
		r.inLevels[node] = 0
	}
}

// IsInputPresent reports whether an Input node answered recently.
func (r *Registry) IsInputPresent(node uint8) bool {
	return node < layout.InputNodes && r.inPresent[node]
}

// InputLevels returns the cached switch levels of an Input node, or 0 when
// the node is not present.
func (r *Registry) InputLevels(node uint8) uint16 {
	if !r.IsInputPresent(node) {
		return 0
	}
	return r.inLevels[node]
}

// SetInputLevels overwrites the cached switch levels of an Input node.
func (r *Registry) SetInputLevels(node uint8, levels uint16) {
	if node >= layout.InputNodes {
		return
	}
	r.inLevels[node] = levels
}

// PresentInputs returns the present Input nodes in ascending order.
func (r *Registry) PresentInputs() []uint8 {
	var nodes []uint8
	for n := range r.inPresent {
		if r.inPresent[n] {
			nodes = append(nodes, uint8(n))
		}
	}
	return nodes
}
