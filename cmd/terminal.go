// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// terminalEscape ends a terminal session (Ctrl+]).
const terminalEscape = 0x1D

var terminalCmd = &cobra.Command{
	Use:   "terminal",
	Short: "Raw terminal to a module in transparent mode",
	Long: `Connect the keyboard and screen to a module in transparent (AT) mode.

Keystrokes are sent to the module unmodified and everything the module
receives over the air is printed. Enter command mode with "+++" (no Enter,
respecting the guard time) and leave it with "ATCN".

Press Ctrl+] to exit.`,
	RunE: runTerminal,
}

func init() {
	rootCmd.AddCommand(terminalCmd)
}

func runTerminal(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	conn, connInfo, err := openLink(ctx, true)
	if err != nil {
		return err
	}
	defer conn.Close()

	if conn.Mode() != xbee.ModeTransparentAT {
		return fmt.Errorf("module is in %s mode; use --mode at or set AP=0", conn.Mode())
	}

	rx, stopTap := conn.OpenRawTap()
	defer stopTap()

	fmt.Fprintf(os.Stderr, "Connected: %s\r\n", connInfo)
	fmt.Fprintf(os.Stderr, "Press Ctrl+] to exit\r\n")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer term.Restore(fd, state)
	}

	keys := make(chan []byte)
	go func() {
		defer close(keys)
		buf := make([]byte, 256)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				keys <- chunk
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-conn.Done():
			fmt.Fprintf(os.Stderr, "\r\nConnection closed\r\n")
			return nil

		case b := <-rx:
			os.Stdout.Write(b)

		case chunk, ok := <-keys:
			if !ok {
				return nil
			}
			if i := bytes.IndexByte(chunk, terminalEscape); i >= 0 {
				if i > 0 {
					conn.WriteRaw(chunk[:i])
				}
				fmt.Fprintf(os.Stderr, "\r\n")
				return nil
			}
			if err := conn.WriteRaw(chunk); err != nil {
				return err
			}
		}
	}
}
