// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// actuations counts Output commands issued.
	// Labels: state (hi, lo)
	actuations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signalbox",
		Subsystem: "controller",
		Name:      "actuations_total",
		Help:      "Total Output actuations sent to the bus",
	}, []string{"state"})

	// interlockDenials counts transitions refused by a lock.
	// Labels: state (requested state)
	interlockDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signalbox",
		Subsystem: "interlock",
		Name:      "denials_total",
		Help:      "Total Output transitions blocked by an interlock",
	}, []string{"state"})

	// busErrors counts failed bus transactions.
	// Labels: domain (output, input)
	busErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signalbox",
		Subsystem: "bus",
		Name:      "errors_total",
		Help:      "Total bus transactions that failed",
	}, []string{"domain"})

	// nodesPresent tracks how many nodes currently answer.
	// Labels: domain (output, input)
	nodesPresent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "signalbox",
		Subsystem: "bus",
		Name:      "nodes_present",
		Help:      "Nodes currently answering on the bus",
	}, []string{"domain"})

	// inputEvents counts Input transitions handled.
	inputEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signalbox",
		Subsystem: "controller",
		Name:      "input_events_total",
		Help:      "Total Input transitions handled",
	})

	// renumbers counts renumber attempts.
	// Labels: result (ok, aborted, partial)
	renumbers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signalbox",
		Subsystem: "renumber",
		Name:      "attempts_total",
		Help:      "Total renumber attempts by outcome",
	}, []string{"result"})

	// tickDuration measures one pass of the control loop.
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "signalbox",
		Subsystem: "loop",
		Name:      "tick_duration_seconds",
		Help:      "Duration of one control loop tick",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
)

func stateLabel(state bool) string {
	if state {
		return "hi"
	}
	return "lo"
}
