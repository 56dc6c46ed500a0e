// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

var (
	sendBroadcast bool
	sendAddr16    string
	sendAsync     bool
	sendTimeout   int
)

var sendCmd = &cobra.Command{
	Use:   "send [ADDR64|NODE_ID] DATA",
	Short: "Send data to a remote device",
	Long: `Send a data payload to a remote device or broadcast it to the network.

The target is a 64-bit address in hex or a node identifier. Node identifiers
are resolved from the device store first, then by node discovery. DATA
starting with 0x is sent as hex bytes, anything else as text.

Examples:
  # Unicast by address
  xbeestat send 0013A20040A1B2C3 "hello" --port /dev/ttyUSB0

  # Unicast by node identifier
  xbeestat send Yoda 0x01020304 --port /dev/ttyUSB0

  # Broadcast to every node
  xbeestat send --broadcast "ping" --port /dev/ttyUSB0

Exit codes:
  0 - Delivered (or queued with --async)
  1 - Delivery failed or timed out
  2 - Connection error`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&sendBroadcast, "broadcast", false, "Broadcast to all nodes")
	sendCmd.Flags().StringVar(&sendAddr16, "addr16", "", "16-bit network address of the target, if known")
	sendCmd.Flags().BoolVar(&sendAsync, "async", false, "Do not wait for the transmit status")
	sendCmd.Flags().IntVar(&sendTimeout, "timeout", 0, "Node discovery timeout in seconds when resolving a node identifier")
}

func runSend(cmd *cobra.Command, args []string) error {
	if sendBroadcast != (len(args) == 1) {
		return fmt.Errorf("expected DATA with --broadcast, or ADDR64|NODE_ID and DATA")
	}

	data, err := parseATValue(args[len(args)-1])
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("data must not be empty")
	}

	addr16 := xbee.No16()
	if sendAddr16 != "" {
		a, err := xbee.ParseAddress16(sendAddr16)
		if err != nil {
			return err
		}
		addr16 = xbee.Some16(a)
	}

	ctx, cancel := signalContext()
	defer cancel()

	conn, _, err := openFramedLink(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	if db, err := openStore(ctx, conn); err != nil {
		logger.Warn("device store unavailable", "error", err)
	} else {
		defer db.Close()
	}

	var target string
	switch {
	case sendBroadcast:
		target = "broadcast"
		err = conn.SendBroadcastData(ctx, data)

	default:
		var dev *link.RemoteDevice
		dev, err = resolveDevice(ctx, conn, args[0], time.Duration(sendTimeout)*time.Second)
		if err != nil {
			break
		}
		if addr16.IsKnown() {
			a, _ := addr16.Get()
			if uerr := conn.Registry().UpdateAddress16(dev.Addr64(), a); uerr != nil {
				logger.Warn("ignoring --addr16", "error", uerr)
			}
		}
		target = dev.String()
		if sendAsync {
			err = conn.SendDataAsync(ctx, dev, data)
		} else {
			err = conn.SendData(ctx, dev, data)
		}
	}

	if err != nil {
		var txErr *link.TransmitError
		switch {
		case errors.As(err, &txErr):
			fmt.Fprintf(os.Stderr, "Delivery failed: %v\n", txErr)
		case errors.Is(err, link.ErrDeviceNotFound):
			fmt.Fprintf(os.Stderr, "Device not found: %v\n", err)
		default:
			fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		}
		conn.Close()
		os.Exit(1)
	}

	if sendAsync {
		fmt.Printf("Queued %d bytes for %s\n", len(data), target)
	} else {
		fmt.Printf("Sent %d bytes to %s\n", len(data), target)
	}
	return nil
}
