// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"fmt"
	"time"

	"github.com/Thermoquad/signalbox/pkg/bus"
	"github.com/Thermoquad/signalbox/pkg/layout"
)

// EventKind identifies what an Event reports
type EventKind int

const (
	// EventStateChanged: an Output pin's cached state changed.
	EventStateChanged EventKind = iota
	// EventBlocked: an interlock refused a transition.
	EventBlocked
	// EventWarning: one pulse of the operator warning after a block.
	EventWarning
	// EventInput: an Input pin changed level.
	EventInput
	// EventNodeFound: a node started answering.
	EventNodeFound
	// EventNodeLost: a node stopped answering.
	EventNodeLost
	// EventRenumbered: a renumber finished, possibly with Err set.
	EventRenumbered
)

var eventNames = [...]string{
	EventStateChanged: "STATE",
	EventBlocked:      "BLOCKED",
	EventWarning:      "WARNING",
	EventInput:        "INPUT",
	EventNodeFound:    "FOUND",
	EventNodeLost:     "LOST",
	EventRenumbered:   "RENUMBER",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "UNKNOWN"
}

// Event is published to the presentation layer
type Event struct {
	Kind   EventKind
	Time   time.Time
	Domain bus.Domain
	// Ref is the Output pin, or the Input node and pin for EventInput.
	Ref   layout.Ref
	State bool
	// Lock is the blocking lock index for EventBlocked.
	Lock int
	// Pulse is 1 for the immediate warning and 2 for the deferred one.
	Pulse int
	// Old and New are the node addresses for EventRenumbered.
	Old uint8
	New uint8
	Err error
}

func (e Event) String() string {
	ts := e.Time.Format("15:04:05.000")
	switch e.Kind {
	case EventStateChanged:
		return fmt.Sprintf("[%s] %s %s -> %s", ts, e.Kind, e.Ref, stateLabel(e.State))
	case EventBlocked:
		return fmt.Sprintf("[%s] %s %s -> %s by lock %d", ts, e.Kind, e.Ref, stateLabel(e.State), e.Lock)
	case EventWarning:
		return fmt.Sprintf("[%s] %s %s pulse %d", ts, e.Kind, e.Ref, e.Pulse)
	case EventInput:
		return fmt.Sprintf("[%s] %s %02d:%d %s", ts, e.Kind, e.Ref.Node, e.Ref.Pin, stateLabel(e.State))
	case EventNodeFound, EventNodeLost:
		return fmt.Sprintf("[%s] %s %s node %d", ts, e.Kind, e.Domain, e.Ref.Node)
	case EventRenumbered:
		if e.Err != nil {
			return fmt.Sprintf("[%s] %s %d -> %d: %v", ts, e.Kind, e.Old, e.New, e.Err)
		}
		return fmt.Sprintf("[%s] %s %d -> %d", ts, e.Kind, e.Old, e.New)
	}
	return fmt.Sprintf("[%s] %s", ts, e.Kind)
}

// EventSink receives controller events. Publish is called on the control
// loop and must not block.
type EventSink interface {
	Publish(Event)
}

// EventFunc adapts a function to EventSink
type EventFunc func(Event)

// Publish implements EventSink
func (f EventFunc) Publish(e Event) {
	f(e)
}

// ChanSink delivers events to a channel, dropping them when it is full.
type ChanSink chan Event

// Publish implements EventSink
func (c ChanSink) Publish(e Event) {
	select {
	case c <- e:
	default:
	}
}

type discardSink struct{}

func (discardSink) Publish(Event) {}
