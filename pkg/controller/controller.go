// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package controller owns the signal box state and turns Input transitions,
// CMRI requests and operator commands into interlock-checked Output
// actuations on the bus.
//
// A Controller is not safe for concurrent use. Everything runs on the
// control loop (see Loop); other goroutines reach it through Loop.Submit.
package controller

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/signalbox/pkg/bus"
	"github.com/Thermoquad/signalbox/pkg/interlock"
	"github.com/Thermoquad/signalbox/pkg/layout"
	"github.com/Thermoquad/signalbox/pkg/registry"
	"github.com/Thermoquad/signalbox/pkg/renumber"
	"go.uber.org/zap"
)

// ErrNotPresent is returned for operations on a node that is not answering.
var ErrNotPresent = errors.New("node not present")

// Bus is the bus codec the controller drives
type Bus interface {
	Probe(d bus.Domain, node uint8) bool
	OutputStates(node uint8) (byte, error)
	InputStates(node uint8) (uint16, error)
	ReadOutput(ref layout.Ref) (*layout.OutputDef, error)
	WriteOutput(ref layout.Ref, def *layout.OutputDef) error
	SetOutput(ref layout.Ref, state bool, delay uint8) error
	SaveOutput(ref layout.Ref) error
	ResetOutput(ref layout.Ref) error
	TuneOutput(ref layout.Ref, value uint8) error
	InputEvent(ref layout.Ref, state bool) error
	Debug(d bus.Domain, node uint8, level uint8) error
	Gateway(d bus.Domain, node uint8, enable bool) error
	Renumber(node, newNode uint8) (uint8, error)
	MoveLocks(node, oldNode, newNode uint8) error
}

// InputStore loads and saves InputDefs
type InputStore interface {
	Load(node, pin uint8) (*layout.InputDef, error)
	Save(node, pin uint8, def *layout.InputDef) error
}

// Options configures a Controller
type Options struct {
	// WarningDelay separates the two warning pulses after a block.
	WarningDelay time.Duration
	Events       EventSink
	Logger       *zap.Logger
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultWarningDelay is used when Options.WarningDelay is zero
const DefaultWarningDelay = 500 * time.Millisecond

type pendingWarning struct {
	due time.Time
	ref layout.Ref
}

// Controller is the signal box aggregate
type Controller struct {
	bus       Bus
	registry  *registry.Registry
	evaluator *interlock.Evaluator
	inputs    InputStore
	renumber  *renumber.Coordinator

	events       EventSink
	warningDelay time.Duration
	warnings     []pendingWarning
	now          func() time.Time
	logger       *zap.Logger
}

// New creates a controller over the given bus and Input store
func New(b Bus, inputs InputStore, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = discardSink{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WarningDelay <= 0 {
		opts.WarningDelay = DefaultWarningDelay
	}

	reg := registry.New()
	return &Controller{
		bus:          b,
		registry:     reg,
		evaluator:    interlock.NewEvaluator(reg),
		inputs:       inputs,
		renumber:     renumber.NewCoordinator(b, reg, inputs, opts.Logger.Named("renumber")),
		events:       opts.Events,
		warningDelay: opts.WarningDelay,
		now:          opts.Now,
		logger:       opts.Logger,
	}
}

// Registry exposes the presence and state cache for read-only display
func (c *Controller) Registry() *registry.Registry {
	return c.registry
}

func (c *Controller) publish(e Event) {
	e.Time = c.now()
	c.events.Publish(e)
}

// markAbsent forgets a node after a bus failure
func (c *Controller) markAbsent(d bus.Domain, node uint8, err error) {
	busErrors.WithLabelValues(d.String()).Inc()

	var present bool
	if d == bus.DomainOutput {
		present = c.registry.IsPresent(node)
		c.registry.SetPresent(node, false)
	} else {
		present = c.registry.IsInputPresent(node)
		c.registry.SetInputPresent(node, false)
	}
	if !present {
		return
	}

	c.logger.Warn("Node stopped answering",
		zap.Stringer("domain", d), zap.Uint8("node", node), zap.Error(err))
	c.publish(Event{Kind: EventNodeLost, Domain: d, Ref: layout.Ref{Node: node}, Err: err})
	c.updatePresenceGauges()
}

func (c *Controller) updatePresenceGauges() {
	nodesPresent.WithLabelValues(bus.DomainOutput.String()).Set(float64(len(c.registry.PresentOutputs())))
	nodesPresent.WithLabelValues(bus.DomainInput.String()).Set(float64(len(c.registry.PresentInputs())))
}

// refresh re-reads a node's whole state byte and publishes every pin that
// moved, including siblings moved by paired Output types.
func (c *Controller) refresh(node uint8) error {
	states, err := c.bus.OutputStates(node)
	if err != nil {
		c.markAbsent(bus.DomainOutput, node, err)
		return err
	}

	old := c.registry.StateByte(node)
	c.registry.SetStateByte(node, states)

	for pin := uint8(0); pin < layout.OutputPins; pin++ {
		mask := byte(1) << pin
		if (old^states)&mask != 0 {
			c.publish(Event{
				Kind:  EventStateChanged,
				Ref:   layout.Ref{Node: node, Pin: pin},
				State: states&mask != 0,
			})
		}
	}
	return nil
}

// actuate drives one Output through the interlock. A block is not an error.
func (c *Controller) actuate(ref layout.Ref, state bool, delay uint8) (bool, error) {
	if !ref.Valid() {
		return false, fmt.Errorf("output %s: invalid reference", ref)
	}
	if !c.registry.IsPresent(ref.Node) {
		c.logger.Debug("Skipping absent output", zap.Stringer("ref", ref))
		return false, fmt.Errorf("output %s: %w", ref, ErrNotPresent)
	}

	def, err := c.bus.ReadOutput(ref)
	if err != nil {
		c.markAbsent(bus.DomainOutput, ref.Node, err)
		return false, err
	}

	if res := c.evaluator.IsLocked(def, state); res.Blocked {
		interlockDenials.WithLabelValues(stateLabel(state)).Inc()
		c.logger.Info("Transition blocked",
			zap.Stringer("ref", ref),
			zap.Bool("state", state),
			zap.Int("lock", res.LockIndex),
			zap.Stringer("lock_ref", res.Lock.Ref))
		c.publish(Event{Kind: EventBlocked, Ref: ref, State: state, Lock: res.LockIndex})
		c.warn(ref)
		return false, nil
	}

	if err := c.bus.SetOutput(ref, state, delay); err != nil {
		c.markAbsent(bus.DomainOutput, ref.Node, err)
		return false, err
	}
	actuations.WithLabelValues(stateLabel(state)).Inc()

	if err := c.refresh(ref.Node); err != nil {
		return true, err
	}
	return true, nil
}

// warn emits the first warning pulse now and queues the second
func (c *Controller) warn(ref layout.Ref) {
	c.publish(Event{Kind: EventWarning, Ref: ref, Pulse: 1})
	c.warnings = append(c.warnings, pendingWarning{due: c.now().Add(c.warningDelay), ref: ref})
}

// Housekeeping fires deferred warning pulses that are due
func (c *Controller) Housekeeping(now time.Time) {
	kept := c.warnings[:0]
	for _, w := range c.warnings {
		if now.Before(w.due) {
			kept = append(kept, w)
			continue
		}
		c.publish(Event{Kind: EventWarning, Ref: w.ref, Pulse: 2})
	}
	c.warnings = kept
}

// PendingWarnings reports how many deferred pulses are queued
func (c *Controller) PendingWarnings() int {
	return len(c.warnings)
}

// SetOutput drives one Output to state through the interlock. It reports
// whether the command was sent.
func (c *Controller) SetOutput(ref layout.Ref, state bool) (bool, error) {
	return c.actuate(ref, state, 0)
}

// ToggleOutput drives one Output to the opposite of its cached state
func (c *Controller) ToggleOutput(ref layout.Ref) error {
	current, ok := c.registry.State(ref)
	if !ok {
		return fmt.Errorf("output %s: %w", ref, ErrNotPresent)
	}
	_, err := c.actuate(ref, !current, 0)
	return err
}

// InputLevels returns the cached levels of an Input node
func (c *Controller) InputLevels(node uint8) uint16 {
	return c.registry.InputLevels(node)
}

// OutputStates returns the cached state byte of an Output node
func (c *Controller) OutputStates(node uint8) byte {
	return c.registry.StateByte(node)
}

// Renumber moves an Output node and repairs references to it
func (c *Controller) Renumber(old, requested uint8) (uint8, error) {
	adopted, err := c.renumber.Renumber(old, requested)

	result := "ok"
	var rerr *renumber.Error
	if errors.As(err, &rerr) {
		result = rerr.Stage.String()
	}
	renumbers.WithLabelValues(result).Inc()

	var berr *bus.Error
	if rerr != nil && rerr.Stage == renumber.Aborted && errors.As(err, &berr) {
		c.markAbsent(bus.DomainOutput, old, err)
	}

	c.publish(Event{Kind: EventRenumbered, Old: old, New: adopted, Err: err})
	c.updatePresenceGauges()
	return adopted, err
}
