// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display XBee API frames as they arrive.

Each frame is shown with timestamp, frame type and decoded payload. The module
is not probed or written to; with --mode auto the stream is decoded as
unescaped API frames (use --mode api_escaped for AP=2 modules).

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	conn, connInfo, err := openLink(ctx, false,
		link.WithDecodeErrorHandler(func(err error) {
			fmt.Printf("[ERROR] %v\n", err)
		}),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.AddFrameListener(func(f *xbee.Frame) error {
		fmt.Print(xbee.FormatFrame(f))
		return nil
	})

	fmt.Printf("xbeestat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	select {
	case <-ctx.Done():
	case <-conn.Done():
		fmt.Println("Connection closed")
	}
	return nil
}
