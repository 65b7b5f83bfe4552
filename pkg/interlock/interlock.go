// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package interlock decides whether an Output may move to a requested state.
//
// An OutputDef carries four locks for each direction. A lock blocks the
// transition while the Output it references sits in the lock's required
// state. Locks are checked in index order and the first match wins.
//
// A lock whose referenced node is not present never blocks. The evaluator
// cannot tell a thrown point from a missing one, and it fails open rather
// than freezing the layout when a node drops off the bus.
package interlock

import "github.com/Thermoquad/signalbox/pkg/layout"

// StateSource supplies cached Output states. ok is false when the node is
// not present.
type StateSource interface {
	State(ref layout.Ref) (state bool, ok bool)
}

// Result is the outcome of one interlock check.
type Result struct {
	Blocked bool
	// LockIndex is the index of the blocking lock within the selected list;
	// meaningful only when Blocked.
	LockIndex int
	Lock      layout.Lock
}

// Evaluator checks OutputDef locks against cached states
type Evaluator struct {
	states StateSource
}

// NewEvaluator creates an evaluator reading states from src
func NewEvaluator(src StateSource) *Evaluator {
	return &Evaluator{states: src}
}

// IsLocked reports whether moving def to requested is blocked.
func (e *Evaluator) IsLocked(def *layout.OutputDef, requested bool) Result {
	locks := def.Locks(requested)

	for i, l := range locks {
		if !l.Enabled {
			continue
		}
		state, ok := e.states.State(l.Ref)
		if !ok {
			continue
		}
		if state == l.State {
			return Result{Blocked: true, LockIndex: i, Lock: l}
		}
	}

	return Result{LockIndex: -1}
}
