// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

var (
	packetTestTimeout int
	packetTestQuery   bool
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid API frame",
	Long: `Wait for a valid XBee API frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
API frame. It ignores invalid bytes and waits for a complete frame with a
correct checksum. With --query an AT "VR" request is sent so a quiet module
still answers.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	packetTestCmd.Flags().BoolVar(&packetTestQuery, "query", false, "Send an AT VR request to provoke a response")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	conn, connInfo, err := openLink(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("xbeestat - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid API frame...\n\n")

	frameChan := make(chan *xbee.Frame, 1)
	conn.AddFrameListener(func(f *xbee.Frame) error {
		select {
		case frameChan <- f:
		default:
		}
		return nil
	})

	if packetTestQuery {
		go func() {
			// The answer arrives through the frame listener either way
			_, _ = conn.SendCommand(ctx, "VR", nil, time.Duration(packetTestTimeout)*time.Second)
		}()
	}

	select {
	case f := <-frameChan:
		if skipped := conn.Statistics().SkippedBytes; skipped > 0 {
			fmt.Printf("(skipped %d invalid bytes before sync)\n", skipped)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", f.Type(), uint8(f.Type()))
		if f.HasID() {
			fmt.Printf("  Frame ID: %d\n", f.ID())
		}
		fmt.Printf("  Length: %d bytes\n", f.Length())
		fmt.Printf("  Checksum: 0x%02X\n", f.Checksum())
		conn.Close()
		os.Exit(0)

	case <-conn.Done():
		fmt.Fprintf(os.Stderr, "Connection closed\n")
		os.Exit(2)

	case <-ctx.Done():
		return nil

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		conn.Close()
		os.Exit(1)
	}

	return nil
}
