// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/signalbox/pkg/cmri"
	"github.com/Thermoquad/signalbox/pkg/controller"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the signal box",
	Long: `Run the control loop: rescan for nodes, scan Input switches and drive the
Outputs they are mapped to, and serve a CMRI host if one is configured.

Prometheus metrics are served on --metrics-addr when set.

Examples:
  signalbox run --port /dev/ttyACM0 --cmri-port /dev/ttyUSB0 --cmri
  signalbox run --simulate --metrics-addr :9120`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("metrics-addr", "", "Listen address for /metrics (empty disables)")
	_ = v.BindPFlag("metrics.addr", runCmd.Flags().Lookup("metrics-addr"))
}

// cmriBuffer is the depth of the receive channel between the reader and the
// loop, enough for a full RECEIVE-sized TRANSMIT with escapes.
const cmriBuffer = 1024

// attachCMRI opens the CMRI host connection and returns the link to service
// from the loop plus the pump to run beside it
func attachCMRI(ctx context.Context, s *session) (*cmri.Link, func(context.Context) error, error) {
	conn, info, err := OpenCMRI(ctx, s.cfg.CMRI)
	if err != nil {
		return nil, nil, err
	}
	s.closers = append(s.closers, conn.Close)

	ch := make(chan byte, cmriBuffer)
	link := cmri.NewLink(cmri.Config{
		Address:     s.cfg.CMRI.Address,
		InputNodes:  s.cfg.CMRI.InputNodes,
		OutputNodes: s.cfg.CMRI.OutputNodes,
	}, cmri.ChanSource(ch), conn, s.controller, s.logger.Named("cmri"))

	s.logger.Info("CMRI host attached",
		zap.String("connection", info),
		zap.Uint8("address", s.cfg.CMRI.Address))

	pump := func(ctx context.Context) error {
		// Closing the connection unblocks a pending read
		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		err := cmri.Pump(ctx, conn, ch)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("cmri connection: %w", err)
	}
	return link, pump, nil
}

// serveMetrics serves /metrics until ctx is done
func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// running is a started control loop and what runs beside it
type running struct {
	loop  *controller.Loop
	link  *cmri.Link
	group *errgroup.Group
}

// startLoop wires the optional CMRI link and metrics server around the
// control loop and starts them
func startLoop(ctx context.Context, s *session) (*running, error) {
	var (
		servicer controller.Servicer
		link     *cmri.Link
		pump     func(context.Context) error
	)
	if s.cfg.CMRI.Enabled {
		var err error
		if link, pump, err = attachCMRI(ctx, s); err != nil {
			return nil, err
		}
		servicer = link
	}

	loop := controller.NewLoop(s.controller, servicer, s.loopConfig())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	if pump != nil {
		g.Go(func() error { return pump(gctx) })
	}
	if addr := s.cfg.Metrics.Addr; addr != "" {
		g.Go(func() error { return serveMetrics(gctx, addr, s.logger) })
	}
	return &running{loop: loop, link: link, group: g}, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(controller.EventFunc(func(e controller.Event) {
		// Events are already counted in metrics; log the ones an operator
		// needs to see
		switch e.Kind {
		case controller.EventBlocked, controller.EventNodeLost, controller.EventRenumbered:
			zap.L().Info(e.String())
		}
	}))
	if err != nil {
		return err
	}
	defer s.Close()
	zap.ReplaceGlobals(s.logger)

	s.logger.Info("Signal box starting", zap.String("bus", s.info))

	r, err := startLoop(ctx, s)
	if err != nil {
		return err
	}

	err = r.group.Wait()
	s.logger.Info("Signal box stopped")
	return err
}
