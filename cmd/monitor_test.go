// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"
	"time"

	"github.com/Thermoquad/signalbox/pkg/bus"
	"github.com/Thermoquad/signalbox/pkg/bus/bussim"
	"github.com/Thermoquad/signalbox/pkg/controller"
	"github.com/Thermoquad/signalbox/pkg/layout"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T) (monitorModel, *controller.Loop, *bussim.Bus) {
	t.Helper()
	sim := newDemoBus()
	c := controller.New(bus.NewCodec(sim, nil), nil, controller.Options{})
	loop := controller.NewLoop(c, nil, controller.LoopConfig{Tick: time.Millisecond})
	return newMonitorModel("Simulated bus", &running{loop: loop}), loop, sim
}

func TestMonitor_StateArrivesOnTick(t *testing.T) {
	m, loop, _ := newTestMonitor(t)
	loop.Tick(time.Now())

	// A tick asks the loop for state, the loop answers, the next tick
	// picks it up
	next, _ := m.Update(monitorTickMsg(time.Now()))
	assert.False(t, next.(monitorModel).haveData)
	loop.Tick(time.Now())
	next, _ = next.Update(monitorTickMsg(time.Now()))

	mm := next.(monitorModel)
	require.True(t, mm.haveData)
	assert.True(t, mm.state.outPres[0])
	assert.True(t, mm.state.outPres[1])
	assert.False(t, mm.state.outPres[2])
	assert.True(t, mm.state.inPres[0])
	assert.Nil(t, mm.state.link)
	assert.Contains(t, mm.View(), "Outputs (2)")
}

func TestMonitor_PromptTogglesOutput(t *testing.T) {
	m, loop, sim := newTestMonitor(t)
	loop.Tick(time.Now())

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(":")})
	require.True(t, next.(monitorModel).prompting)
	for _, r := range "01:4" {
		next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, next.(monitorModel).prompting)

	loop.Tick(time.Now())
	assert.True(t, sim.OutputNode(1).Defs[4].State)
}

func TestMonitor_BadRefIsLogged(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(":")})
	for _, r := range "99:9" {
		next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEnter})

	mm := next.(monitorModel)
	require.Len(t, mm.log, 1)
	assert.True(t, mm.log[0].isError)
}

func TestMonitor_EventsFiltered(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	next, _ := m.Update(eventMsg{Kind: controller.EventStateChanged, Ref: layout.Ref{Node: 1}})
	assert.Empty(t, next.(monitorModel).log)

	next, _ = next.Update(eventMsg{Kind: controller.EventNodeLost})
	mm := next.(monitorModel)
	require.Len(t, mm.log, 1)
	assert.True(t, mm.log[0].isError)
}

func TestBits(t *testing.T) {
	hi := hiStyle.Render("●")
	lo := loStyle.Render("○")
	assert.Equal(t, hi+lo+hi, bits(0b101, 3, false))
	// Inputs read Lo when closed
	assert.Equal(t, lo+hi+lo, bits(0b101, 3, true))
}
