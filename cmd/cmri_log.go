// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/signalbox/pkg/cmri"
	"github.com/spf13/cobra"
)

var (
	logErrorsOnly    bool
	logStatsInterval int
)

var cmriLogCmd = &cobra.Command{
	Use:   "cmri_log",
	Short: "Decode and display CMRI traffic",
	Long: `Listen on a CMRI line and print every frame as it arrives, without
answering. Framing errors are highlighted and the decoder resynchronises on
the next SYN SYN STX.

Until the first good frame, framing errors are counted but not reported, so
attaching mid-frame does not produce a spurious error.

Supports both serial and WebSocket connections.`,
	RunE: runCMRILog,
}

func init() {
	rootCmd.AddCommand(cmriLogCmd)
	cmriLogCmd.Flags().BoolVar(&logErrorsOnly, "errors-only", false, "Only show framing errors")
	cmriLogCmd.Flags().IntVar(&logStatsInterval, "stats-interval", 10, "Statistics interval in seconds (0 disables)")
}

func runCMRILog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, info, err := OpenCMRI(ctx, cfg.CMRI)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Signalbox - CMRI Log\n")
	fmt.Printf("Connection: %s\n", info)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ch := make(chan byte, cmriBuffer)
	pumpErr := make(chan error, 1)
	go func() {
		pumpErr <- cmri.Pump(ctx, conn, ch)
	}()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	decoder := cmri.NewDecoder()
	stats := cmri.NewStatistics()
	synced := false
	skipped := 0

	var statsTick <-chan time.Time
	if logStatsInterval > 0 {
		t := time.NewTicker(time.Duration(logStatsInterval) * time.Second)
		defer t.Stop()
		statsTick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(stats.String())
			return nil

		case err := <-pumpErr:
			if ctx.Err() != nil {
				continue
			}
			if errors.Is(err, ErrConnectionClosed) {
				fmt.Println("Connection closed")
				return nil
			}
			return fmt.Errorf("read: %w", err)

		case <-statsTick:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case b := <-ch:
			f, err := decoder.DecodeByte(b)
			if err != nil {
				if !synced {
					skipped++
					continue
				}
				stats.Update(nil, err)
				fmt.Printf("[%s] \033[1;31mFRAMING ERROR:\033[0m %v\n",
					time.Now().Format("15:04:05.000"), err)
				continue
			}
			if f == nil {
				continue
			}

			if !synced {
				synced = true
				if skipped > 0 {
					fmt.Printf("[SYNC] Synchronized after discarding %d partial frames\n\n", skipped)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}
			stats.Update(f, nil)
			if !logErrorsOnly {
				fmt.Print(cmri.FormatFrame(f))
			}
		}
	}
}
