// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

var (
	atRemote  string
	atApply   bool
	atTimeout int
)

var atCmd = &cobra.Command{
	Use:   "at NAME [VALUE]",
	Short: "Send an AT command to the local or a remote module",
	Long: `Send an AT command and print the response.

Without VALUE the parameter is read; with VALUE it is set. Values starting
with 0x are sent as big-endian hex bytes, anything else as text.

Examples:
  # Read the firmware version
  xbeestat at VR --port /dev/ttyUSB0

  # Set the node identifier
  xbeestat at NI Yoda --port /dev/ttyUSB0

  # Set a remote module's PAN ID and apply it immediately
  xbeestat at ID 0x3332 --remote 0013A20040A1B2C3 --apply --port /dev/ttyUSB0

Exit codes:
  0 - Command succeeded
  1 - Command rejected or timed out
  2 - Connection error`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAT,
}

func init() {
	rootCmd.AddCommand(atCmd)
	atCmd.Flags().StringVar(&atRemote, "remote", "", "Remote device (64-bit address or node identifier)")
	atCmd.Flags().BoolVar(&atApply, "apply", false, "Apply changes on the remote immediately")
	atCmd.Flags().IntVar(&atTimeout, "timeout", 0, "Response timeout in seconds (0 uses device.receive_timeout)")
}

func runAT(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := xbee.ValidateATCommandName(name); err != nil {
		return err
	}

	var value []byte
	if len(args) == 2 {
		var err error
		value, err = parseATValue(args[1])
		if err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	conn, _, err := openFramedLink(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	timeout := time.Duration(atTimeout) * time.Second

	var resp *xbee.ATCommandResponse
	if atRemote != "" {
		dev, rerr := resolveDevice(ctx, conn, atRemote, timeout)
		if rerr != nil {
			fmt.Fprintf(os.Stderr, "%v\n", rerr)
			conn.Close()
			os.Exit(1)
		}
		resp, err = conn.SendRemoteATCommand(ctx, dev, name, value, atApply, timeout)
	} else {
		resp, err = conn.SendCommand(ctx, name, value, timeout)
	}

	if err != nil {
		var rejected *link.CommandRejectedError
		switch {
		case errors.As(err, &rejected):
			fmt.Fprintf(os.Stderr, "AT%s rejected: %s\n", rejected.Command, rejected.Status)
		case errors.Is(err, link.ErrTimeout):
			fmt.Fprintf(os.Stderr, "AT%s: no response\n", strings.ToUpper(name))
		default:
			fmt.Fprintf(os.Stderr, "AT%s: %v\n", strings.ToUpper(name), err)
		}
		conn.Close()
		os.Exit(1)
	}

	printATResponse(resp)
	return nil
}

// printATResponse prints a successful response the way the console does.
func printATResponse(resp *xbee.ATCommandResponse) {
	prefix := ""
	if resp.Remote {
		prefix = fmt.Sprintf("[%s] ", resp.Source64)
	}
	if len(resp.Value) == 0 {
		fmt.Printf("%sAT%s: %s\n", prefix, resp.Command, resp.Status)
		return
	}
	fmt.Printf("%sAT%s = %s\n", prefix, resp.Command, xbee.FormatValue(resp.Value))
}
