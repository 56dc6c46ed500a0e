// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

var (
	pingTimeout int
	pingCount   int
	pingRemote  string
	pingCommand string
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure AT command round trips to the local or a remote module",
	Long: `Send AT commands and wait for their responses, like ping.

Each round trip sends one AT command (VR by default) and waits for the
matching response frame. With --remote the command travels over the air
to the remote module and back.

This is useful for verifying:
  - The serial or WebSocket connection is established
  - The module is in API mode and answering
  - Frame IDs are matched to responses
  - A remote module is reachable

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().StringVar(&pingRemote, "remote", "", "Remote device (64-bit address or node identifier)")
	pingCmd.Flags().StringVar(&pingCommand, "command", "VR", "AT command used for each ping")
}

func runPing(cmd *cobra.Command, args []string) error {
	if err := xbee.ValidateATCommandName(pingCommand); err != nil {
		return err
	}
	if pingCount < 1 {
		return fmt.Errorf("count must be at least 1")
	}

	ctx, cancel := signalContext()
	defer cancel()

	conn, connInfo, err := openFramedLink(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	timeout := time.Duration(pingTimeout) * time.Second

	var dev *link.RemoteDevice
	target := "local module"
	if pingRemote != "" {
		dev, err = resolveDevice(ctx, conn, pingRemote, timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			conn.Close()
			os.Exit(1)
		}
		target = dev.String()
	}

	fmt.Printf("xbeestat - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Target: %s\n", target)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0
	var minRTT, maxRTT, totalRTT time.Duration

	for i := 1; i <= pingCount && ctx.Err() == nil; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		var resp *xbee.ATCommandResponse
		if dev != nil {
			resp, err = conn.SendRemoteATCommand(ctx, dev, pingCommand, nil, false, timeout)
		} else {
			resp, err = conn.SendCommand(ctx, pingCommand, nil, timeout)
		}
		rtt := time.Since(startTime)

		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		} else {
			fmt.Printf("AT%s = %s, id=%d, rtt=%v\n", resp.Command, xbee.FormatValue(resp.Value), resp.FrameID, rtt.Round(time.Millisecond))
			successCount++
			totalRTT += rtt
			if minRTT == 0 || rtt < minRTT {
				minRTT = rtt
			}
			if rtt > maxRTT {
				maxRTT = rtt
			}
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	sent := successCount + failCount
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		sent, successCount, float64(failCount)/float64(max(sent, 1))*100)
	if successCount > 0 {
		fmt.Printf("rtt min/avg/max = %v/%v/%v\n",
			minRTT.Round(time.Millisecond),
			(totalRTT / time.Duration(successCount)).Round(time.Millisecond),
			maxRTT.Round(time.Millisecond))
	}

	if failCount > 0 {
		conn.Close()
		os.Exit(1)
	}
	return nil
}
