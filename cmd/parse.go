// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/signalbox/pkg/bus"
	"github.com/Thermoquad/signalbox/pkg/layout"
)

// parseNode parses a node number below limit
func parseNode(s string, limit int) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || int(n) >= limit {
		return 0, fmt.Errorf("invalid node %q (0-%d)", s, limit-1)
	}
	return uint8(n), nil
}

// parsePin parses "node:pin" with the given limits
func parsePin(s string, nodes, pins int) (uint8, uint8, error) {
	ns, ps, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid pin %q (want node:pin)", s)
	}
	node, err := parseNode(ns, nodes)
	if err != nil {
		return 0, 0, err
	}
	p, err := strconv.ParseUint(ps, 10, 8)
	if err != nil || int(p) >= pins {
		return 0, 0, fmt.Errorf("invalid pin %q (0-%d)", ps, pins-1)
	}
	return node, uint8(p), nil
}

// parseRef parses an Output reference "node:pin"
func parseRef(s string) (layout.Ref, error) {
	node, pin, err := parsePin(s, layout.OutputNodes, layout.OutputPins)
	if err != nil {
		return layout.Ref{}, err
	}
	return layout.Ref{Node: node, Pin: pin}, nil
}

// parseLevel parses hi/lo, on/off or 1/0
func parseLevel(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "hi", "on", "1", "true":
		return true, nil
	case "lo", "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid level %q (want hi or lo)", s)
}

// parseDomain parses output or input
func parseDomain(s string) (bus.Domain, int, error) {
	switch strings.ToLower(s) {
	case "output", "out", "o":
		return bus.DomainOutput, layout.OutputNodes, nil
	case "input", "in", "i":
		return bus.DomainInput, layout.InputNodes, nil
	}
	return 0, 0, fmt.Errorf("invalid domain %q (want output or input)", s)
}

// parseLock parses "node:pin=hi" into an enabled lock
func parseLock(s string) (layout.Lock, error) {
	refs, states, ok := strings.Cut(s, "=")
	if !ok {
		return layout.Lock{}, fmt.Errorf("invalid lock %q (want node:pin=hi|lo)", s)
	}
	ref, err := parseRef(refs)
	if err != nil {
		return layout.Lock{}, err
	}
	state, err := parseLevel(states)
	if err != nil {
		return layout.Lock{}, err
	}
	return layout.Lock{Enabled: true, State: state, Ref: ref}, nil
}

// parseSlot parses an Input slot: "node:pin" or "delay:ticks"
func parseSlot(s string) (layout.Slot, error) {
	if ticks, ok := strings.CutPrefix(strings.ToLower(s), "delay:"); ok {
		t, err := strconv.ParseUint(ticks, 10, 8)
		if err != nil {
			return layout.Slot{}, fmt.Errorf("invalid delay %q", ticks)
		}
		return layout.Slot{Used: true, Delay: true, Ticks: uint8(t)}, nil
	}
	ref, err := parseRef(s)
	if err != nil {
		return layout.Slot{}, err
	}
	return layout.Slot{Used: true, Ref: ref}, nil
}

// parseMode resolves an input mode name
func parseMode(s string) (layout.InputMode, error) {
	name := strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	for m := layout.ModeToggle; m.Valid(); m++ {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown input mode %q", s)
}

func levelName(state bool) string {
	if state {
		return "HI"
	}
	return "LO"
}

// formatSlot is the inverse of parseSlot
func formatSlot(s layout.Slot) string {
	if s.Delay {
		return fmt.Sprintf("delay:%d", s.Ticks)
	}
	return s.Ref.String()
}
