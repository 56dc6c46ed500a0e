// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// xbeestat - XBee API frame analyzer and host-side protocol engine
//
// A CLI tool for talking to Digi XBee modules over serial or WebSocket:
// AT commands, node discovery, data transmission, monitoring and frame
// error analysis.

package main

import (
	"os"

	"github.com/Thermoquad/xbeestat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
