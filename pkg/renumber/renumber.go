// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package renumber moves an Output node to a new bus address and repairs
// every cross-reference to it.
//
// The sequence is not transactional. Once the node has adopted its new
// address, failures while repairing Input definitions or broadcasting lock
// moves are collected and reported as a Partial error; nothing is rolled back.
package renumber

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/signalbox/pkg/layout"
	"go.uber.org/zap"
)

// Stage says how far a failed renumber got
type Stage int

const (
	// Aborted means the node did not move and nothing was changed.
	Aborted Stage = iota
	// Partial means the node moved but some references may be stale.
	Partial
)

func (s Stage) String() string {
	if s == Aborted {
		return "aborted"
	}
	return "partial"
}

// Error reports a failed renumber
type Error struct {
	Stage   Stage
	Old     uint8
	Adopted uint8
	Err     error
}

func (e *Error) Error() string {
	if e.Stage == Aborted {
		return fmt.Sprintf("renumber %d aborted: %v", e.Old, e.Err)
	}
	return fmt.Sprintf("renumber %d -> %d partially applied: %v", e.Old, e.Adopted, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrBadAddress is returned when a node reports adopting an address outside
// the Output range.
var ErrBadAddress = errors.New("adopted address out of range")

// Bus is the subset of the bus codec the coordinator drives.
type Bus interface {
	Renumber(node, newNode uint8) (uint8, error)
	MoveLocks(node, oldNode, newNode uint8) error
	OutputStates(node uint8) (byte, error)
}

// Registry is the presence and state cache the coordinator keeps in step.
type Registry interface {
	SwapOutputs(a, b uint8)
	SetPresent(node uint8, present bool)
	IsPresent(node uint8) bool
	SetStateByte(node uint8, states byte)
	PresentOutputs() []uint8
}

// InputStore loads and saves InputDefs.
type InputStore interface {
	Load(node, pin uint8) (*layout.InputDef, error)
	Save(node, pin uint8, def *layout.InputDef) error
}

// Coordinator runs renumber sequences
type Coordinator struct {
	bus      Bus
	registry Registry
	inputs   InputStore
	logger   *zap.Logger
}

// NewCoordinator creates a coordinator
func NewCoordinator(b Bus, reg Registry, inputs InputStore, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{bus: b, registry: reg, inputs: inputs, logger: logger}
}

// Renumber asks Output node old to move to requested and repairs references.
// It returns the address the node actually adopted, which is valid even when
// a Partial error is returned.
func (c *Coordinator) Renumber(old, requested uint8) (uint8, error) {
	adopted, err := c.bus.Renumber(old, requested)
	if err == nil && adopted >= layout.OutputNodes {
		err = fmt.Errorf("%w: node %d reported %d", ErrBadAddress, old, adopted)
	}
	if err != nil {
		c.logger.Warn("Renumber refused", zap.Uint8("node", old), zap.Error(err))
		return old, &Error{Stage: Aborted, Old: old, Adopted: old, Err: err}
	}
	if adopted == old {
		c.logger.Info("Renumber left node in place",
			zap.Uint8("node", old), zap.Uint8("requested", requested))
		return old, nil
	}

	stateErr := c.moveEntry(old, adopted)
	rewritten, inputErr := c.repairInputs(old, adopted)
	lockErr := c.broadcastMoveLocks(old, adopted)

	c.logger.Info("Renumbered output node",
		zap.Uint8("old", old),
		zap.Uint8("requested", requested),
		zap.Uint8("adopted", adopted),
		zap.Int("inputs_rewritten", rewritten))

	if err := errors.Join(stateErr, inputErr, lockErr); err != nil {
		return adopted, &Error{Stage: Partial, Old: old, Adopted: adopted, Err: err}
	}
	return adopted, nil
}

// moveEntry marks adopted present and carries the cache entry of old across.
// A node already at adopted has been swapped into old and keeps its entry.
// When old was not known the cached byte is untrusted and is read afresh.
func (c *Coordinator) moveEntry(old, adopted uint8) error {
	known := c.registry.IsPresent(old)
	c.registry.SwapOutputs(old, adopted)
	c.registry.SetPresent(adopted, true)
	if known {
		return nil
	}

	states, err := c.bus.OutputStates(adopted)
	if err != nil {
		c.logger.Warn("State refresh failed",
			zap.Uint8("node", adopted), zap.Error(err))
		c.registry.SetPresent(adopted, false)
		return err
	}
	c.registry.SetStateByte(adopted, states)
	return nil
}

// repairInputs swaps references to a and b in every stored InputDef,
// saving each changed record as it is found.
func (c *Coordinator) repairInputs(a, b uint8) (int, error) {
	var errs []error
	rewritten := 0

	for node := uint8(0); node < layout.InputNodes; node++ {
		for pin := uint8(0); pin < layout.InputPins; pin++ {
			def, err := c.inputs.Load(node, pin)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !SwapSlots(def, a, b) {
				continue
			}
			if err := c.inputs.Save(node, pin, def); err != nil {
				errs = append(errs, err)
				continue
			}
			rewritten++
		}
	}

	return rewritten, errors.Join(errs...)
}

// broadcastMoveLocks asks every present Output node to swap lock references.
// A node that fails is marked absent and the broadcast continues.
func (c *Coordinator) broadcastMoveLocks(a, b uint8) error {
	var errs []error

	for _, node := range c.registry.PresentOutputs() {
		if err := c.bus.MoveLocks(node, a, b); err != nil {
			c.logger.Warn("Move locks failed",
				zap.Uint8("node", node), zap.Error(err))
			c.registry.SetPresent(node, false)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// SwapSlots rewrites output references to node a as b and to b as a.
// Delay slots are left alone. Reports whether anything changed.
func SwapSlots(def *layout.InputDef, a, b uint8) bool {
	changed := false
	for i := range def.Slots {
		s := &def.Slots[i]
		if !s.Used || s.Delay {
			continue
		}
		switch s.Ref.Node {
		case a:
			s.Ref.Node = b
			changed = true
		case b:
			s.Ref.Node = a
			changed = true
		}
	}
	return changed
}
