// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive AT command console",
	Long: `Open an interactive console to the local module.

Lines are sent as AT commands ("NI", "ATNI", "NI Yoda", "ID 0x3332").
Incoming data and modem status frames are printed as they arrive.

` + consoleHelp,
	RunE: runConsole,
}

const consoleHelp = `Console commands:
  help                          Show this help
  remote TARGET NAME [VALUE]    Send an AT command to a remote device
  send TARGET DATA              Send data to a remote device
  broadcast DATA                Broadcast data to all nodes
  discover                      Run node discovery
  devices                       List known devices
  stats                         Show frame statistics
  quit                          Leave the console
`

func init() {
	rootCmd.AddCommand(consoleCmd)
}

// console is one interactive session.
type console struct {
	conn *link.Conn
	rl   *readline.Instance
	out  io.Writer
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	conn, connInfo, err := openFramedLink(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if db, err := openStore(ctx, conn); err != nil {
		logger.Warn("device store unavailable", "error", err)
	} else {
		defer func() {
			if err := db.SaveRegistry(context.Background(), conn.Registry()); err != nil {
				logger.Warn("saving devices failed", "error", err)
			}
			db.Close()
		}()
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "xbee> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	c := &console{conn: conn, rl: rl, out: rl.Stdout()}
	fmt.Fprintf(c.out, "Connected: %s\n", connInfo)
	fmt.Fprintln(c.out, "Type 'help' for commands, 'quit' to exit")

	conn.AddDataListener(func(m *link.XBeeMessage) error {
		fmt.Fprintf(c.out, "<< %s\n", m)
		return nil
	})
	conn.AddStatusListener(func(f *xbee.Frame) error {
		fmt.Fprintf(c.out, "<< %s: %s\n", f.Type(), xbee.FormatPayload(f))
		return nil
	})

	go func() {
		select {
		case <-conn.Done():
			fmt.Fprintln(c.out, "Connection closed")
			rl.Close()
		case <-ctx.Done():
			rl.Close()
		}
	}()

	c.run(ctx)
	return nil
}

func (c *console) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		fields := strings.Fields(input)
		switch strings.ToLower(fields[0]) {
		case "help", "?":
			fmt.Fprint(c.out, consoleHelp)
		case "quit", "exit", "q":
			fmt.Fprintln(c.out, "Exiting...")
			return
		case "remote":
			c.cmdRemote(ctx, input)
		case "send":
			c.cmdSend(ctx, input)
		case "broadcast":
			c.cmdBroadcast(ctx, input)
		case "discover":
			c.cmdDiscover(ctx)
		case "devices":
			c.cmdDevices()
		case "stats":
			stats := c.conn.Statistics()
			fmt.Fprint(c.out, stats.String())
		default:
			c.cmdAT(ctx, input)
		}
	}
}

func (c *console) cmdAT(ctx context.Context, input string) {
	name, raw := splitATLine(input)
	value, err := parseATValue(raw)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	resp, err := c.conn.SendCommand(ctx, name, value, 0)
	c.printResponse(name, resp, err)
}

func (c *console) cmdRemote(ctx context.Context, input string) {
	target, rest, ok := cutWord(strings.TrimSpace(input[len("remote"):]))
	if !ok || rest == "" {
		fmt.Fprintln(c.out, "Usage: remote TARGET NAME [VALUE]")
		return
	}
	name, raw := splitATLine(rest)
	value, err := parseATValue(raw)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	dev, err := resolveDevice(ctx, c.conn, target, 0)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	resp, err := c.conn.SendRemoteATCommand(ctx, dev, name, value, true, 0)
	c.printResponse(name, resp, err)
}

func (c *console) cmdSend(ctx context.Context, input string) {
	target, raw, ok := cutWord(strings.TrimSpace(input[len("send"):]))
	if !ok || raw == "" {
		fmt.Fprintln(c.out, "Usage: send TARGET DATA")
		return
	}
	data, err := parseATValue(raw)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	dev, err := resolveDevice(ctx, c.conn, target, 0)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if err := c.conn.SendData(ctx, dev, data); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "OK")
}

func (c *console) cmdBroadcast(ctx context.Context, input string) {
	raw := strings.TrimSpace(input[len("broadcast"):])
	data, err := parseATValue(raw)
	if err != nil || len(data) == 0 {
		fmt.Fprintln(c.out, "Usage: broadcast DATA")
		return
	}
	if err := c.conn.SendBroadcastData(ctx, data); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "OK")
}

func (c *console) cmdDiscover(ctx context.Context) {
	start := time.Now()
	devices, err := c.conn.Discover(ctx, 0)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%d device(s) answered in %s\n", len(devices), time.Since(start).Round(time.Millisecond))
	for _, d := range devices {
		fmt.Fprintf(c.out, "  %s\n", d)
	}
}

func (c *console) cmdDevices() {
	devices := c.conn.Registry().Devices()
	if len(devices) == 0 {
		fmt.Fprintln(c.out, "No known devices")
		return
	}
	for _, d := range devices {
		fmt.Fprintf(c.out, "  %s  last seen %s\n", d, d.LastSeen().Format("15:04:05"))
	}
}

func (c *console) printResponse(name string, resp *xbee.ATCommandResponse, err error) {
	var rejected *link.CommandRejectedError
	switch {
	case err == nil:
		if len(resp.Value) == 0 {
			fmt.Fprintln(c.out, "OK")
			return
		}
		fmt.Fprintln(c.out, xbee.FormatValue(resp.Value))
	case errors.As(err, &rejected):
		fmt.Fprintf(c.out, "AT%s: %s\n", rejected.Command, rejected.Status)
	case errors.Is(err, link.ErrTimeout):
		fmt.Fprintf(c.out, "AT%s: no response\n", strings.ToUpper(name))
	default:
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
}

// cutWord splits off the first whitespace-separated word.
func cutWord(s string) (word, rest string, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", false
	}
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, "", true
	}
	return s[:i], strings.TrimSpace(s[i:]), true
}
