// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xbeestat/internal/config"
	"github.com/Thermoquad/xbeestat/internal/logging"
)

const version = "1.0.0"

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Device flags
	modeName     string
	protocolName string
	logLevel     string

	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "xbeestat",
	Short: "XBee API frame analyzer and driver",
	Long: `xbeestat - A CLI tool for talking to XBee radio modules over their API frame
protocol.

Provides commands for passive frame logging, error detection, AT commands,
node discovery, data transmission and monitoring of remote devices.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

Settings are read from xbeestat.yaml (or --config) and XBEESTAT_* environment
variables; flags override both.

For WebSocket authentication, the password is read from the XBEESTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Device flags
	rootCmd.PersistentFlags().StringVarP(&modeName, "mode", "m", "auto", "Operating mode: auto, api, api_escaped, at")
	rootCmd.PersistentFlags().StringVar(&protocolName, "protocol", "unknown", "Protocol family: zigbee, 802.15.4, digimesh, digipoint, smartenergy")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadOptional(configPath)
	}
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Serial.BaudRate = baudRate
	}
	if flags.Changed("url") {
		cfg.WebSocket.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.WebSocket.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.WebSocket.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("mode") {
		cfg.Device.Mode = modeName
	}
	if flags.Changed("protocol") {
		cfg.Device.Protocol = protocolName
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	logger = logging.New(cfg.Logging, version)
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
