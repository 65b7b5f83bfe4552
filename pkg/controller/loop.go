// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Servicer is serviced once per tick and must not block. cmri.Link
// satisfies it.
type Servicer interface {
	Service() bool
}

// LoopConfig sets the loop cadence
type LoopConfig struct {
	// Tick is the period of Run.
	Tick time.Duration
	// ScanInterval is the minimum gap between Input scans.
	ScanInterval time.Duration
	// RescanInterval is the gap between presence rescans. Zero disables
	// periodic rescans; RequestRescan still works.
	RescanInterval time.Duration
}

// DefaultLoopConfig returns the standard cadence
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Tick:           time.Millisecond,
		ScanInterval:   20 * time.Millisecond,
		RescanInterval: 5 * time.Second,
	}
}

// Loop is the single cooperative control loop. Each tick services, in
// order, pending requests and rescans, Input scans, one CMRI byte, then
// housekeeping.
type Loop struct {
	c        *Controller
	link     Servicer
	cfg      LoopConfig
	requests chan func(*Controller)

	rescanPending bool
	lastRescan    time.Time
	lastScan      time.Time
	logger        *zap.Logger
}

// NewLoop creates a loop. link may be nil when no CMRI host is attached.
func NewLoop(c *Controller, link Servicer, cfg LoopConfig) *Loop {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultLoopConfig().Tick
	}
	return &Loop{
		c:             c,
		link:          link,
		cfg:           cfg,
		requests:      make(chan func(*Controller), 64),
		rescanPending: true,
		logger:        c.logger.Named("loop"),
	}
}

// RequestRescan schedules a presence rescan on the next tick
func (l *Loop) RequestRescan() {
	l.rescanPending = true
}

// Submit queues fn to run on the loop. It is the only way for other
// goroutines to touch the controller. Returns false if the queue is full.
func (l *Loop) Submit(fn func(*Controller)) bool {
	select {
	case l.requests <- fn:
		return true
	default:
		return false
	}
}

// Tick runs one pass of the loop
func (l *Loop) Tick(now time.Time) {
	start := time.Now()
	defer func() { tickDuration.Observe(time.Since(start).Seconds()) }()

	// Requests run to completion before anything else, so a submitted
	// renumber never interleaves with input-driven actuation.
	for drained := false; !drained; {
		select {
		case fn := <-l.requests:
			fn(l.c)
		default:
			drained = true
		}
	}

	if l.cfg.RescanInterval > 0 && now.Sub(l.lastRescan) >= l.cfg.RescanInterval {
		l.rescanPending = true
	}
	if l.rescanPending {
		l.c.Rescan()
		l.rescanPending = false
		l.lastRescan = now
	}

	if now.Sub(l.lastScan) >= l.cfg.ScanInterval {
		if err := l.c.ScanInputs(); err != nil {
			l.logger.Debug("Input scan", zap.Error(err))
		}
		l.lastScan = now
	}

	if l.link != nil {
		l.link.Service()
	}

	l.c.Housekeeping(now)
}

// Run ticks until ctx is done
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Tick)
	defer ticker.Stop()

	l.logger.Info("Control loop started", zap.Duration("tick", l.cfg.Tick))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Control loop stopped")
			return nil
		case now := <-ticker.C:
			l.Tick(now)
		}
	}
}
