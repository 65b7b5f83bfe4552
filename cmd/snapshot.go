// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/signalbox/pkg/snapshot"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Back up or restore the whole signal box",
	Long: `A snapshot holds the controller's store (every Input definition) and the
definition of every pin on every Output node present when it was taken.`,
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write a snapshot to file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			nodes := s.controller.Registry().PresentOutputs()
			snap, err := snapshot.Capture(s.store, s.store.Size(), s.controller, nodes)
			if err != nil {
				return err
			}
			data, err := snapshot.Marshal(snap)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], data, 0600); err != nil {
				return err
			}
			fmt.Printf("Wrote %s: %d bytes of store, %d Output nodes\n", args[0], len(snap.Image), len(nodes))
			return nil
		})
	},
}

var restoreStoreOnly bool

var snapshotImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Restore a snapshot from file",
	Long: `Restore the store and write every Output definition back to its node.
A node that fails does not stop the others; the failures are listed at the
end. With --store-only the Output nodes are left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		snap, err := snapshot.Unmarshal(data)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		return withSession(func(s *session) error {
			s.logger.Info("Restoring snapshot",
				zap.String("file", args[0]),
				zap.Time("created", time.Unix(snap.Created, 0)),
				zap.Int("outputs", len(snap.Outputs)))

			var outputs snapshot.OutputWriter
			if !restoreStoreOnly {
				outputs = s.controller
			}
			if err := snapshot.Restore(snap, s.store, outputs); err != nil {
				return err
			}
			fmt.Printf("Restored %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotExportCmd, snapshotImportCmd)
	snapshotImportCmd.Flags().BoolVar(&restoreStoreOnly, "store-only", false, "Restore the store only")
}
