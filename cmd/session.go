// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/signalbox/internal/config"
	"github.com/Thermoquad/signalbox/pkg/bus"
	"github.com/Thermoquad/signalbox/pkg/bus/bussim"
	"github.com/Thermoquad/signalbox/pkg/controller"
	"github.com/Thermoquad/signalbox/pkg/layout"
	"github.com/Thermoquad/signalbox/pkg/store"
	"go.uber.org/zap"
)

// session is everything a command needs to talk to the signal box
type session struct {
	cfg        *config.Config
	logger     *zap.Logger
	codec      *bus.Codec
	store      *store.Badger
	inputs     *store.InputTable
	controller *controller.Controller
	info       string

	closers []func() error
}

// openSession loads config and opens the bus and the store. events may be
// nil. The controller has not scanned yet; callers run Rescan or a Loop.
func openSession(events controller.EventSink) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.Log.Logger()
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger}
	s.closers = append(s.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	var tr bus.Transport
	if cfg.Bus.Simulate {
		tr = newDemoBus()
		s.info = "Simulated bus"
	} else {
		gw, err := bus.OpenSerialGateway(cfg.Bus.Port, cfg.Bus.Baud, cfg.Bus.Timeout, logger.Named("gateway"))
		if err != nil {
			s.Close()
			return nil, err
		}
		tr = gw
		s.closers = append(s.closers, gw.Close)
		s.info = fmt.Sprintf("Serial: %s @ %d baud", cfg.Bus.Port, cfg.Bus.Baud)
	}
	s.codec = bus.NewCodec(tr, logger.Named("bus"))

	sc := store.DefaultConfig(cfg.Store.Path)
	if cfg.Store.InMemory {
		sc = store.InMemoryConfig()
	}
	sc.Logger = logger.Named("store")
	st, err := store.Open(sc)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.store = st
	s.closers = append(s.closers, st.Close)
	s.inputs = store.NewInputTable(st, store.DefaultLayout)

	s.controller = controller.New(s.codec, s.inputs, controller.Options{
		WarningDelay: cfg.Loop.WarningDelay,
		Events:       events,
		Logger:       logger,
	})

	logger.Debug("Session opened",
		zap.String("bus", s.info),
		zap.String("store", cfg.Store.Path),
		zap.Bool("in_memory", cfg.Store.InMemory))
	return s, nil
}

// loopConfig translates the loop section
func (s *session) loopConfig() controller.LoopConfig {
	return controller.LoopConfig{
		Tick:           s.cfg.Loop.Tick,
		ScanInterval:   s.cfg.Loop.ScanInterval,
		RescanInterval: s.cfg.Loop.RescanInterval,
	}
}

// Close releases everything in reverse order of opening
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// newDemoBus builds a small simulated layout: a turnout servo guarded by
// its home signal, a two-aspect signal and a panel with switches.
func newDemoBus() *bussim.Bus {
	sim := bussim.New()

	n0 := sim.AddOutputNode(0)
	n0.Defs[0] = layout.OutputDef{Type: layout.TypeServo, Lo: 40, Hi: 140, Pace: 4}
	n0.Defs[1] = layout.OutputDef{
		Type: layout.TypeSignal, Lo: 30, Hi: 150, Pace: 8,
		HiLocks: [layout.MaxLocks]layout.Lock{
			{Enabled: true, State: true, Ref: layout.Ref{Node: 0, Pin: 0}},
		},
	}
	n0.Defs[2] = layout.OutputDef{Type: layout.TypeLED, Hi: 255}
	n0.Saved = n0.Defs

	n1 := sim.AddOutputNode(1)
	for pin := range n1.Defs {
		n1.Defs[pin] = layout.OutputDef{Type: layout.TypeLED, Hi: 200}
	}
	n1.Saved = n1.Defs

	sim.AddInputNode(0)
	return sim
}

// withSession opens a session, finds the nodes present and runs fn
// directly on the controller. No loop runs, so fn owns the controller.
func withSession(fn func(*session) error) error {
	s, err := openSession(nil)
	if err != nil {
		return err
	}
	defer s.Close()

	s.controller.Rescan()
	return fn(s)
}

// waitWarnings runs housekeeping until queued warning pulses have gone out
func waitWarnings(s *session) error {
	for s.controller.PendingWarnings() > 0 {
		time.Sleep(s.cfg.Loop.Tick)
		s.controller.Housekeeping(time.Now())
	}
	return nil
}
