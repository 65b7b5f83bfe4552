// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/signalbox/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "signalbox",
	Short: "Model railway signal box controller",
	Long: `Signalbox - master controller for a model railway signal box.

Drives Output nodes (servos, signals, LEDs) and scans Input nodes (panel
switches) on the node bus, enforcing interlocks before every actuation. A
layout computer can attach over CMRI to read and set state.

Bus connection:
  Serial:    --port /dev/ttyACM0 [--baud 115200]
  Simulated: --simulate

CMRI host connection (run and monitor):
  Serial:    --cmri-port /dev/ttyUSB0 [--cmri-baud 9600]
  WebSocket: --url ws://host/path [--username user]

Settings may also come from signalbox.yaml (see --config) or from
SIGNALBOX_* environment variables, e.g. SIGNALBOX_BUS_PORT.

For WebSocket authentication, the password is read from the SIGNALBOX_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (default ./signalbox.yaml)")

	// Node bus
	flags.StringP("port", "p", "", "Bus gateway serial port")
	flags.IntP("baud", "b", 115200, "Bus gateway baud rate")
	flags.Bool("simulate", false, "Use a simulated bus instead of a gateway")

	// CMRI host
	flags.Bool("cmri", false, "Serve a CMRI host (run and monitor)")
	flags.String("cmri-port", "", "CMRI serial port")
	flags.Int("cmri-baud", 9600, "CMRI baud rate (serial only)")
	flags.StringP("url", "u", "", "CMRI WebSocket URL (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	flags.Uint8("address", 0, "CMRI node address (UA)")

	flags.String("store", "signalbox.db", "Directory of the persistent store")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")

	bind := map[string]string{
		"bus.port":           "port",
		"bus.baud":           "baud",
		"bus.simulate":       "simulate",
		"cmri.enabled":       "cmri",
		"cmri.port":          "cmri-port",
		"cmri.baud":          "cmri-baud",
		"cmri.url":           "url",
		"cmri.username":      "username",
		"cmri.no_ssl_verify": "no-ssl-verify",
		"cmri.address":       "address",
		"store.path":         "store",
		"log.level":          "log-level",
	}
	for key, name := range bind {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind %s: %v", name, err))
		}
	}
}

// loadConfig resolves flags, file and environment into a Config
func loadConfig() (*config.Config, error) {
	return config.Load(v, cfgFile)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
