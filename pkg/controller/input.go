// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/signalbox/pkg/bus"
	"github.com/Thermoquad/signalbox/pkg/layout"
	"go.uber.org/zap"
)

// DesiredState computes what an Input's Outputs should be driven to.
// level is the new Input level: Lo (false) means the switch is closed.
// current is the cached state of the Input's first Output. act is false
// when the transition requires no action.
func DesiredState(mode layout.InputMode, level, current bool) (desired bool, act bool) {
	switch mode {
	case layout.ModeToggle:
		if level {
			return false, false
		}
		return !current, true

	case layout.ModeOnOff:
		desired = !level
		if desired == current && !desired {
			return false, false
		}
		return desired, true

	case layout.ModeOn:
		if level {
			return false, false
		}
		return true, true

	case layout.ModeOff:
		if level {
			return false, false
		}
		return false, true
	}
	return false, false
}

// firstTarget returns the first real Output an InputDef drives
func firstTarget(def *layout.InputDef) (layout.Ref, bool) {
	for _, s := range def.Slots {
		if s.Used && !s.Delay {
			return s.Ref, true
		}
	}
	return layout.Ref{}, false
}

// OnInputChanged handles one Input pin moving to level.
func (c *Controller) OnInputChanged(node, pin uint8, level bool) error {
	if node >= layout.InputNodes || pin >= layout.InputPins {
		return fmt.Errorf("input %d:%d out of range", node, pin)
	}
	inputEvents.Inc()
	c.publish(Event{Kind: EventInput, Domain: bus.DomainInput, Ref: layout.Ref{Node: node, Pin: pin}, State: level})

	def, err := c.inputs.Load(node, pin)
	if err != nil {
		return fmt.Errorf("input %d:%d: %w", node, pin, err)
	}

	first, ok := firstTarget(def)
	if !ok {
		return nil
	}
	current, _ := c.registry.State(first)

	desired, act := DesiredState(def.Mode, level, current)
	if !act {
		return nil
	}

	c.logger.Debug("Input changed",
		zap.Uint8("node", node),
		zap.Uint8("pin", pin),
		zap.Bool("level", level),
		zap.Stringer("mode", def.Mode),
		zap.Bool("desired", desired))

	return c.DriveInputOutputs(def, desired)
}

// DriveInputOutputs applies desired to every Output slot of def. Slots are
// walked in ascending order when driving Hi and descending when driving Lo.
// Delay slots add to the delay of every later slot. Each Output is
// interlock-checked on its own; a blocked slot is skipped and the rest
// still run. Earlier slots are not rolled back.
func (c *Controller) DriveInputOutputs(def *layout.InputDef, desired bool) error {
	var errs []error
	var delay uint8

	for k := 0; k < layout.InputSlots; k++ {
		i := k
		if !desired {
			i = layout.InputSlots - 1 - k
		}
		s := def.Slots[i]
		if !s.Used {
			continue
		}
		if s.Delay {
			delay = addTicks(delay, s.Ticks)
			continue
		}
		if _, err := c.actuate(s.Ref, desired, delay); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// addTicks adds without wrapping past the largest encodable delay
func addTicks(a, b uint8) uint8 {
	if int(a)+int(b) > 0xFF {
		return 0xFF
	}
	return a + b
}

// LoadInput returns the stored definition of an Input pin
func (c *Controller) LoadInput(node, pin uint8) (*layout.InputDef, error) {
	return c.inputs.Load(node, pin)
}

// SaveInput stores the definition of an Input pin
func (c *Controller) SaveInput(node, pin uint8, def *layout.InputDef) error {
	return c.inputs.Save(node, pin, def)
}
