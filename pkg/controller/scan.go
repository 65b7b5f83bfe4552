// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"errors"

	"github.com/Thermoquad/signalbox/pkg/bus"
	"github.com/Thermoquad/signalbox/pkg/layout"
	"go.uber.org/zap"
)

// Rescan probes every node address. Newly answering Output nodes get their
// state byte read; newly answering Input nodes get their levels read
// without actioning them. Nodes that stop answering are forgotten.
func (c *Controller) Rescan() {
	for node := uint8(0); node < layout.OutputNodes; node++ {
		was := c.registry.IsPresent(node)
		now := c.bus.Probe(bus.DomainOutput, node)

		switch {
		case now && !was:
			c.registry.SetPresent(node, true)
			if err := c.refresh(node); err != nil {
				continue
			}
			c.logger.Info("Output node found", zap.Uint8("node", node))
			c.publish(Event{Kind: EventNodeFound, Domain: bus.DomainOutput, Ref: layout.Ref{Node: node}})
		case !now && was:
			c.markAbsent(bus.DomainOutput, node, bus.ErrNoAck)
		}
	}

	for node := uint8(0); node < layout.InputNodes; node++ {
		was := c.registry.IsInputPresent(node)
		now := c.bus.Probe(bus.DomainInput, node)

		switch {
		case now && !was:
			levels, err := c.bus.InputStates(node)
			if err != nil {
				busErrors.WithLabelValues(bus.DomainInput.String()).Inc()
				continue
			}
			c.registry.SetInputPresent(node, true)
			c.registry.SetInputLevels(node, levels)
			c.logger.Info("Input node found", zap.Uint8("node", node))
			c.publish(Event{Kind: EventNodeFound, Domain: bus.DomainInput, Ref: layout.Ref{Node: node}})
		case !now && was:
			c.markAbsent(bus.DomainInput, node, bus.ErrNoAck)
		}
	}

	c.updatePresenceGauges()
}

// ScanInputs reads every present Input node and handles each pin whose
// level changed. Pins are handled in ascending order.
func (c *Controller) ScanInputs() error {
	var errs []error

	for _, node := range c.registry.PresentInputs() {
		levels, err := c.bus.InputStates(node)
		if err != nil {
			c.markAbsent(bus.DomainInput, node, err)
			errs = append(errs, err)
			continue
		}

		changed := levels ^ c.registry.InputLevels(node)
		if changed == 0 {
			continue
		}
		c.registry.SetInputLevels(node, levels)

		for pin := uint8(0); pin < layout.InputPins; pin++ {
			mask := uint16(1) << pin
			if changed&mask == 0 {
				continue
			}
			if err := c.OnInputChanged(node, pin, levels&mask != 0); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}
