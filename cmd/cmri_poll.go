// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/signalbox/pkg/cmri"
	"github.com/spf13/cobra"
)

var (
	pollTimeout int
	pollCount   int
)

var cmriPollCmd = &cobra.Command{
	Use:   "cmri_poll",
	Short: "Poll a signal box over CMRI as a host would",
	Long: `Act as a CMRI host: send INIT, then POLL the signal box at --address and
wait for its RECEIVE.

This is useful for verifying:
  - the serial line or WebSocket bridge is up
  - the signal box answers its node address
  - the state image has the expected length

Exit codes:
  0 - All polls answered
  1 - One or more polls failed or timed out
  2 - Connection error`,
	RunE: runCMRIPoll,
}

func init() {
	rootCmd.AddCommand(cmriPollCmd)
	cmriPollCmd.Flags().IntVar(&pollTimeout, "timeout", 2, "Timeout in seconds for each poll")
	cmriPollCmd.Flags().IntVar(&pollCount, "count", 3, "Number of polls to send")
}

func runCMRIPoll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	conn, info, err := OpenCMRI(ctx, cfg.CMRI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	ua := cfg.CMRI.Address
	fmt.Printf("Signalbox - CMRI Poll\n")
	fmt.Printf("Connection: %s\n", info)
	fmt.Printf("Address: %d, timeout %ds, %d polls\n\n", ua, pollTimeout, pollCount)

	// One reader for the whole run; frames for other nodes are dropped
	frames := make(chan *cmri.Frame, 8)
	readErr := make(chan error, 1)
	go func() {
		decoder := cmri.NewDecoder()
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			for i := 0; i < n; i++ {
				f, _ := decoder.DecodeByte(buf[i])
				if f != nil && f.Address == ua && f.Type == cmri.TypeReceive {
					select {
					case frames <- f:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	ini := &cmri.Frame{Address: ua, Type: cmri.TypeInit, Body: []byte{'N', 0, 0, 0}}
	if _, err := conn.Write(ini.Encode()); err != nil {
		fmt.Fprintf(os.Stderr, "INIT failed: %v\n", err)
		os.Exit(2)
	}

	ok, failed := 0, 0
	poll := (&cmri.Frame{Address: ua, Type: cmri.TypePoll}).Encode()
	for i := 1; i <= pollCount; i++ {
		fmt.Printf("Poll %d/%d: ", i, pollCount)

		start := time.Now()
		if _, err := conn.Write(poll); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failed++
			continue
		}

		select {
		case f := <-frames:
			rtt := time.Since(start)
			fmt.Printf("RECEIVE %d bytes, rtt=%v\n  set bits: %s\n",
				len(f.Body), rtt.Round(time.Millisecond), cmri.FormatBits(f.Body))
			ok++

		case err := <-readErr:
			fmt.Printf("READ FAILED: %v\n", err)
			failed += pollCount - i + 1
			i = pollCount

		case <-time.After(time.Duration(pollTimeout) * time.Second):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pollTimeout)
			failed++
		}

		if i < pollCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Poll statistics ---\n")
	fmt.Printf("%d polls sent, %d answered, %.0f%% loss\n",
		pollCount, ok, float64(failed)/float64(max(pollCount, 1))*100)

	if failed > 0 {
		conn.Close()
		os.Exit(1)
	}
	return nil
}
