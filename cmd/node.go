// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/Thermoquad/signalbox/pkg/layout"
	"github.com/Thermoquad/signalbox/pkg/renumber"
	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Discover and manage bus nodes",
}

var nodeProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "List the nodes answering on the bus",
	Long: `Probe every Output and Input address and list the nodes that answer, with
their current Output states or Input levels.

Exit codes:
  0 - at least one node found
  1 - no nodes found
  2 - connection error`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
		defer s.Close()

		fmt.Printf("Signalbox - Node Probe\n")
		fmt.Printf("Bus: %s\n\n", s.info)

		s.controller.Rescan()
		reg := s.controller.Registry()

		outputs := reg.PresentOutputs()
		inputs := reg.PresentInputs()

		fmt.Printf("Output nodes: %d\n", len(outputs))
		for _, n := range outputs {
			fmt.Printf("  %02d  states=%08b\n", n, reg.StateByte(n))
		}
		fmt.Printf("Input nodes: %d\n", len(inputs))
		for _, n := range inputs {
			fmt.Printf("  %02d  levels=%016b\n", n, reg.InputLevels(n))
		}

		if len(outputs)+len(inputs) == 0 {
			fmt.Println("\nNo nodes found")
			s.Close()
			os.Exit(1)
		}
		return nil
	},
}

var nodeRenumberCmd = &cobra.Command{
	Use:   "renumber <old> <new>",
	Short: "Move an Output node to a new number",
	Long: `Ask Output node <old> to answer at <new>. If <new> is occupied the two
nodes swap. Input definitions and every node's lock references are rewritten
to follow the move.

The node may refuse, in which case nothing changes. If the node moves but a
follow-up step fails, the rest still run and the failures are listed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldNode, err := parseNode(args[0], layout.OutputNodes)
		if err != nil {
			return err
		}
		newNode, err := parseNode(args[1], layout.OutputNodes)
		if err != nil {
			return err
		}

		return withSession(func(s *session) error {
			adopted, err := s.controller.Renumber(oldNode, newNode)

			var rerr *renumber.Error
			switch {
			case err == nil && adopted == oldNode:
				fmt.Printf("Node %02d refused %02d and kept its number\n", oldNode, newNode)
			case err == nil:
				fmt.Printf("Node %02d is now %02d\n", oldNode, adopted)
			case errors.As(err, &rerr) && rerr.Stage == renumber.Partial:
				fmt.Printf("Node %02d is now %02d, with errors:\n", oldNode, adopted)
				return err
			default:
				return err
			}
			return nil
		})
	},
}

var nodeDebugCmd = &cobra.Command{
	Use:   "debug <output|input> <node> <level>",
	Short: "Set a node's debug level",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, limit, err := parseDomain(args[0])
		if err != nil {
			return err
		}
		node, err := parseNode(args[1], limit)
		if err != nil {
			return err
		}
		level, err := strconv.ParseUint(args[2], 10, 4)
		if err != nil {
			return fmt.Errorf("invalid debug level %q (0-15)", args[2])
		}
		return withSession(func(s *session) error {
			return s.controller.Debug(d, node, uint8(level))
		})
	},
}

var nodeGatewayCmd = &cobra.Command{
	Use:   "gateway <output|input> <node> <on|off>",
	Short: "Enable or disable a node's gateway mode",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, limit, err := parseDomain(args[0])
		if err != nil {
			return err
		}
		node, err := parseNode(args[1], limit)
		if err != nil {
			return err
		}
		enable, err := parseLevel(args[2])
		if err != nil {
			return err
		}
		return withSession(func(s *session) error {
			return s.controller.Gateway(d, node, enable)
		})
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.AddCommand(nodeProbeCmd, nodeRenumberCmd, nodeDebugCmd, nodeGatewayCmd)
}
