// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/signalbox/pkg/layout"
	"github.com/spf13/cobra"
)

var inputCmd = &cobra.Command{
	Use:   "input",
	Short: "Inspect and configure Input switches",
	Long: `Input definitions live in the controller's store. Each switch has a mode
and up to six slots, each an Output pin (node:pin) or a delay (delay:ticks).
Outputs are driven in slot order when the result is Hi and in reverse order
when it is Lo.

Modes:
  TOGGLE   each press flips the first Output
  ON_OFF   closed drives Lo, open drives Hi
  ON       a press drives Hi
  OFF      a press drives Lo`,
}

var inputShowCmd = &cobra.Command{
	Use:   "show <node|node:pin>",
	Short: "Show Input definitions and live levels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		node, pin, err := parsePin(args[0], layout.InputNodes, layout.InputPins)
		pins := []uint8{pin}
		if err != nil {
			if node, err = parseNode(args[0], layout.InputNodes); err != nil {
				return err
			}
			pins = pins[:0]
			for p := uint8(0); p < layout.InputPins; p++ {
				pins = append(pins, p)
			}
		}

		return withSession(func(s *session) error {
			reg := s.controller.Registry()
			present := reg.IsInputPresent(node)
			levels := reg.InputLevels(node)
			for _, p := range pins {
				def, err := s.controller.LoadInput(node, p)
				if err != nil {
					return err
				}
				level := "--"
				if present {
					level = levelName(levels&(1<<p) != 0)
				}
				printInputDef(node, p, level, def, len(pins) > 1)
			}
			return nil
		})
	},
}

var (
	setMode  string
	setSlots []string
)

var inputSetCmd = &cobra.Command{
	Use:   "set <node:pin>",
	Short: "Define what an Input switch drives",
	Long: `Replace an Input definition. Slots are given in order:
  signalbox input set 00:3 --mode on_off --slot 02:0 --slot delay:10 --slot 02:1

With no --slot the switch is cleared.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		node, pin, err := parsePin(args[0], layout.InputNodes, layout.InputPins)
		if err != nil {
			return err
		}
		mode, err := parseMode(setMode)
		if err != nil {
			return err
		}
		if len(setSlots) > layout.InputSlots {
			return fmt.Errorf("at most %d slots", layout.InputSlots)
		}

		def := &layout.InputDef{Mode: mode}
		for i, arg := range setSlots {
			if def.Slots[i], err = parseSlot(arg); err != nil {
				return err
			}
		}

		return withSession(func(s *session) error {
			if err := s.controller.SaveInput(node, pin, def); err != nil {
				return err
			}
			printInputDef(node, pin, "", def, false)
			return nil
		})
	},
}

var inputTriggerCmd = &cobra.Command{
	Use:   "trigger <node:pin> [hi|lo]",
	Short: "Act on an Input as if its switch changed",
	Long: `Run an Input's definition as if its level had just changed. The default
level is lo, a closed switch.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		node, pin, err := parsePin(args[0], layout.InputNodes, layout.InputPins)
		if err != nil {
			return err
		}
		level := false
		if len(args) == 2 {
			if level, err = parseLevel(args[1]); err != nil {
				return err
			}
		}
		return withSession(func(s *session) error {
			if err := s.controller.OnInputChanged(node, pin, level); err != nil {
				return err
			}
			return waitWarnings(s)
		})
	},
}

var inputReportCmd = &cobra.Command{
	Use:   "report <node:pin> <hi|lo>",
	Short: "Tell an Output node an Input changed",
	Long: `Send an Input event to the Output node owning node:pin so node-local
behaviour keyed on that Input runs. No interlocks are evaluated.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseRef(args[0])
		if err != nil {
			return err
		}
		level, err := parseLevel(args[1])
		if err != nil {
			return err
		}
		return withSession(func(s *session) error {
			return s.controller.ReportInput(ref, level)
		})
	},
}

func init() {
	rootCmd.AddCommand(inputCmd)
	inputCmd.AddCommand(inputShowCmd, inputSetCmd, inputTriggerCmd, inputReportCmd)

	inputSetCmd.Flags().StringVar(&setMode, "mode", "toggle", "Input mode (toggle, on_off, on, off)")
	inputSetCmd.Flags().StringArrayVar(&setSlots, "slot", nil, "Slot: node:pin or delay:ticks (repeatable)")
}

func printInputDef(node, pin uint8, level string, def *layout.InputDef, skipEmpty bool) {
	var slots []string
	for _, s := range def.Slots {
		if s.Used {
			slots = append(slots, formatSlot(s))
		}
	}
	if skipEmpty && len(slots) == 0 {
		return
	}
	if level != "" {
		level += " "
	}
	fmt.Printf("%02d:%02d  %s%-7s %s\n", node, pin, level, def.Mode, strings.Join(slots, " "))
}
