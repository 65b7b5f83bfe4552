// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"github.com/Thermoquad/signalbox/pkg/bus"
	"github.com/Thermoquad/signalbox/pkg/layout"
)

// Configuration and debug pass-throughs. A bus failure marks the node
// absent like any other transaction.

// ReadOutput fetches an Output's definition from its node
func (c *Controller) ReadOutput(ref layout.Ref) (*layout.OutputDef, error) {
	def, err := c.bus.ReadOutput(ref)
	if err != nil {
		c.markAbsent(bus.DomainOutput, ref.Node, err)
		return nil, err
	}
	return def, nil
}

// WriteOutput validates and stores an Output's definition on its node.
// The node's state byte is refreshed since the write can move the pin.
func (c *Controller) WriteOutput(ref layout.Ref, def *layout.OutputDef) error {
	if errs := layout.ValidateOutputDef(def, ref); len(errs) > 0 {
		return &errs[0]
	}
	if err := c.bus.WriteOutput(ref, def); err != nil {
		c.markAbsent(bus.DomainOutput, ref.Node, err)
		return err
	}
	return c.refresh(ref.Node)
}

// SaveOutput asks the node to persist the Output's live definition
func (c *Controller) SaveOutput(ref layout.Ref) error {
	if err := c.bus.SaveOutput(ref); err != nil {
		c.markAbsent(bus.DomainOutput, ref.Node, err)
		return err
	}
	return nil
}

// ResetOutput restores the Output's saved definition on the node
func (c *Controller) ResetOutput(ref layout.Ref) error {
	if err := c.bus.ResetOutput(ref); err != nil {
		c.markAbsent(bus.DomainOutput, ref.Node, err)
		return err
	}
	return c.refresh(ref.Node)
}

// TuneOutput sets a live position value while adjusting an Output
func (c *Controller) TuneOutput(ref layout.Ref, value uint8) error {
	if err := c.bus.TuneOutput(ref, value); err != nil {
		c.markAbsent(bus.DomainOutput, ref.Node, err)
		return err
	}
	return nil
}

// ReportInput forwards an Input transition to an Output node
func (c *Controller) ReportInput(ref layout.Ref, state bool) error {
	if err := c.bus.InputEvent(ref, state); err != nil {
		c.markAbsent(bus.DomainOutput, ref.Node, err)
		return err
	}
	return nil
}

// Debug sets a node's debug level
func (c *Controller) Debug(d bus.Domain, node uint8, level uint8) error {
	if err := c.bus.Debug(d, node, level); err != nil {
		c.markAbsent(d, node, err)
		return err
	}
	return nil
}

// Gateway switches a node's gateway mode
func (c *Controller) Gateway(d bus.Domain, node uint8, enable bool) error {
	if err := c.bus.Gateway(d, node, enable); err != nil {
		c.markAbsent(d, node, err)
		return err
	}
	return nil
}
