// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/Thermoquad/signalbox/pkg/layout"
	"github.com/spf13/cobra"
)

var outputCmd = &cobra.Command{
	Use:   "output",
	Short: "Inspect and configure Output pins",
	Long: `Read, drive and reconfigure Output pins. Pins are written node:pin, for
example 05:3 or 5:3.

Drives go through the interlocks exactly as switch presses do: a blocked
change is reported and the guarding Outputs flash a warning.`,
}

var outputShowCmd = &cobra.Command{
	Use:   "show <node|node:pin>",
	Short: "Show Output definitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var refs []layout.Ref
		if ref, err := parseRef(args[0]); err == nil {
			refs = append(refs, ref)
		} else {
			node, err := parseNode(args[0], layout.OutputNodes)
			if err != nil {
				return err
			}
			for pin := uint8(0); pin < layout.OutputPins; pin++ {
				refs = append(refs, layout.Ref{Node: node, Pin: pin})
			}
		}

		return withSession(func(s *session) error {
			for _, ref := range refs {
				def, err := s.controller.ReadOutput(ref)
				if err != nil {
					return fmt.Errorf("output %s: %w", ref, err)
				}
				printOutputDef(ref, def)
			}
			return nil
		})
	},
}

var outputSetCmd = &cobra.Command{
	Use:   "set <node:pin> <hi|lo>",
	Short: "Drive an Output to a state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseRef(args[0])
		if err != nil {
			return err
		}
		state, err := parseLevel(args[1])
		if err != nil {
			return err
		}
		return withSession(func(s *session) error {
			done, err := s.controller.SetOutput(ref, state)
			if err != nil {
				return err
			}
			reportDrive(ref, state, done)
			return waitWarnings(s)
		})
	},
}

var outputToggleCmd = &cobra.Command{
	Use:   "toggle <node:pin>",
	Short: "Toggle an Output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseRef(args[0])
		if err != nil {
			return err
		}
		return withSession(func(s *session) error {
			if err := s.controller.ToggleOutput(ref); err != nil {
				return err
			}
			state, _ := s.controller.Registry().State(ref)
			fmt.Printf("%s is %s\n", ref, levelName(state))
			return waitWarnings(s)
		})
	},
}

var (
	writeType   string
	writeLoLock []string
	writeHiLock []string
	writeSave   bool
)

var outputWriteCmd = &cobra.Command{
	Use:   "write <node:pin>",
	Short: "Change an Output definition",
	Long: `Read the current definition, apply the given flags and write it back.
Locks replace the whole list for that side when given, e.g.
  --hi-lock 03:1=hi --hi-lock 03:2=lo

With --save the node also stores the definition in its own memory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseRef(args[0])
		if err != nil {
			return err
		}
		flags := cmd.Flags()

		return withSession(func(s *session) error {
			def, err := s.controller.ReadOutput(ref)
			if err != nil {
				return err
			}

			if flags.Changed("type") {
				if def.Type, err = layout.ParseOutputType(writeType); err != nil {
					return err
				}
			}
			for name, dst := range map[string]*uint8{"lo": &def.Lo, "hi": &def.Hi, "pace": &def.Pace, "reset": &def.Reset} {
				if !flags.Changed(name) {
					continue
				}
				val, _ := flags.GetInt(name)
				if val < 0 || val > 255 {
					return fmt.Errorf("--%s %d out of range 0-255", name, val)
				}
				*dst = uint8(val)
			}
			if flags.Changed("lo-lock") {
				if err := fillLocks(&def.LoLocks, writeLoLock); err != nil {
					return err
				}
			}
			if flags.Changed("hi-lock") {
				if err := fillLocks(&def.HiLocks, writeHiLock); err != nil {
					return err
				}
			}

			if err := s.controller.WriteOutput(ref, def); err != nil {
				return err
			}
			if writeSave {
				if err := s.controller.SaveOutput(ref); err != nil {
					return err
				}
			}
			printOutputDef(ref, def)
			return nil
		})
	},
}

func fillLocks(dst *[layout.MaxLocks]layout.Lock, args []string) error {
	if len(args) > layout.MaxLocks {
		return fmt.Errorf("at most %d locks per side", layout.MaxLocks)
	}
	*dst = [layout.MaxLocks]layout.Lock{}
	for i, arg := range args {
		lock, err := parseLock(arg)
		if err != nil {
			return err
		}
		dst[i] = lock
	}
	return nil
}

var outputSaveCmd = &cobra.Command{
	Use:   "save <node:pin>",
	Short: "Store an Output definition in the node",
	Args:  cobra.ExactArgs(1),
	RunE: refCommand(func(s *session, ref layout.Ref) error {
		return s.controller.SaveOutput(ref)
	}),
}

var outputResetCmd = &cobra.Command{
	Use:   "reset <node:pin>",
	Short: "Revert an Output to its stored definition",
	Args:  cobra.ExactArgs(1),
	RunE: refCommand(func(s *session, ref layout.Ref) error {
		return s.controller.ResetOutput(ref)
	}),
}

var outputTuneCmd = &cobra.Command{
	Use:   "tune <node:pin> <value>",
	Short: "Move an Output to a raw position for adjustment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseRef(args[0])
		if err != nil {
			return err
		}
		val, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return fmt.Errorf("invalid value %q (0-255)", args[1])
		}
		return withSession(func(s *session) error {
			return s.controller.TuneOutput(ref, uint8(val))
		})
	},
}

func init() {
	rootCmd.AddCommand(outputCmd)
	outputCmd.AddCommand(outputShowCmd, outputSetCmd, outputToggleCmd, outputWriteCmd,
		outputSaveCmd, outputResetCmd, outputTuneCmd)

	f := outputWriteCmd.Flags()
	f.StringVar(&writeType, "type", "", "Output type (SERVO, SIGNAL, LED, ...)")
	f.Int("lo", 0, "Lo position or brightness")
	f.Int("hi", 0, "Hi position or brightness")
	f.Int("pace", 0, "Movement pace")
	f.Int("reset", 0, "Reset timeout")
	f.StringArrayVar(&writeLoLock, "lo-lock", nil, "Lock guarding the move to Lo (node:pin=hi|lo)")
	f.StringArrayVar(&writeHiLock, "hi-lock", nil, "Lock guarding the move to Hi (node:pin=hi|lo)")
	f.BoolVar(&writeSave, "save", false, "Also store the definition in the node")
}

// refCommand adapts a single-ref action to a cobra RunE
func refCommand(fn func(*session, layout.Ref) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ref, err := parseRef(args[0])
		if err != nil {
			return err
		}
		return withSession(func(s *session) error {
			if err := fn(s, ref); err != nil {
				return fmt.Errorf("output %s: %w", ref, err)
			}
			fmt.Printf("%s: %s OK\n", cmd.Name(), ref)
			return nil
		})
	}
}

func reportDrive(ref layout.Ref, state, done bool) {
	if done {
		fmt.Printf("%s -> %s\n", ref, levelName(state))
	} else {
		fmt.Printf("%s -> %s \033[1;33mBLOCKED\033[0m by interlock\n", ref, levelName(state))
	}
}

func printOutputDef(ref layout.Ref, def *layout.OutputDef) {
	fmt.Printf("%s  %-7s %s  lo=%-3d hi=%-3d pace=%-3d reset=%-3d\n",
		ref, def.Type, levelName(def.State), def.Lo, def.Hi, def.Pace, def.Reset)
	printLocks("lo", def.LoLocks[:])
	printLocks("hi", def.HiLocks[:])
}

func printLocks(side string, locks []layout.Lock) {
	for i, l := range locks {
		if l.Enabled {
			fmt.Printf("          %s-lock %d: %s=%s\n", side, i, l.Ref, levelName(l.State))
		}
	}
}
