// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track frame errors, malformed data, and anomalous values with statistics.

This command validates each frame and detects:
  - Checksum errors and truncated frames
  - Malformed frames (payload too short, unknown frame types)
  - Anomalous values (invalid AT command names or status codes)
  - Statistics and trends (frame rate, error rate, skipped bytes)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// frameEvent is one decoded frame or one recovered decode error.
type frameEvent struct {
	frame            *xbee.Frame
	decodeErr        error
	validationErrors []xbee.ValidationError
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	events := make(chan frameEvent, 256)
	send := func(ev frameEvent) {
		select {
		case events <- ev:
		default:
		}
	}

	conn, connInfo, err := openLink(ctx, false,
		link.WithDecodeErrorHandler(func(err error) {
			send(frameEvent{decodeErr: err})
		}),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.AddFrameListener(func(f *xbee.Frame) error {
		send(frameEvent{frame: f, validationErrors: xbee.ValidateFrame(f)})
		return nil
	})

	if useTUI {
		return runTUIMode(ctx, conn, connInfo, events)
	}
	return runTextMode(ctx, conn, connInfo, events)
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> FRAME DISCARDED <<<\n\n")
}

// printModemStatus prints a modem status event
func printModemStatus(f *xbee.Frame) {
	timestamp := f.Timestamp().Format("15:04:05.000")
	s, err := xbee.ParseModemStatus(f)
	if err != nil {
		fmt.Printf("[%s] \033[1;32mMODEM_STATUS:\033[0m %v\n\n", timestamp, err)
		return
	}
	fmt.Printf("[%s] \033[1;32mMODEM_STATUS:\033[0m %s (0x%02X)\n\n", timestamp, s, uint8(s))
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(f *xbee.Frame, errors []xbee.ValidationError) {
	timestamp := f.Timestamp().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp, f.Type(), uint8(f.Type()))
	fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")

	for i, err := range errors {
		switch err.Type {
		case xbee.AnomalyLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if length, ok := err.Details["length"].(int); ok {
				if minimum, ok := err.Details["minimum"].(int); ok {
					fmt.Printf("    Payload: received=%d, minimum=%d\n", length, minimum)
				}
			}

		case xbee.AnomalyUnknownFrameType:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)

		case xbee.AnomalyInvalidCommand, xbee.AnomalyInvalidValue:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  Data: %s", xbee.FormatHex(f.Data()))
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(ctx context.Context, conn *link.Conn, connInfo string, events <-chan frameEvent) error {
	m := initialModel(connInfo, statsInterval, showAll, conn.Statistics)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	go func() {
		synchronized := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-conn.Done():
				p.Send(connectionLostMsg{})
				return
			case ev := <-events:
				if ev.frame != nil && !synchronized {
					synchronized = true
					p.Send(syncMsg{invalidBytes: conn.Statistics().SkippedBytes})
				}
				p.Send(frameDataMsg{event: ev, synchronized: synchronized})
			}
		}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(ctx context.Context, conn *link.Conn, connInfo string, events <-chan frameEvent) error {
	fmt.Printf("xbeestat - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// Sync tracking - ignore decode errors until first valid frame
	synchronized := false

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	printStats := func() {
		stats := conn.Statistics()
		fmt.Println()
		fmt.Print(stats.String())
		fmt.Println()
	}

	for {
		select {
		case ev := <-events:
			switch {
			case ev.decodeErr != nil:
				if synchronized {
					printDecodeError(ev.decodeErr)
				}

			case ev.frame != nil:
				if !synchronized {
					synchronized = true
					if skipped := conn.Statistics().SkippedBytes; skipped > 0 {
						fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", skipped)
					} else {
						fmt.Printf("[SYNC] Synchronized\n\n")
					}
				}

				if len(ev.validationErrors) > 0 {
					printValidationErrors(ev.frame, ev.validationErrors)
				} else if ev.frame.Type() == xbee.FrameModemStatus {
					// Always print modem status (resets, network joins)
					printModemStatus(ev.frame)
				} else if showAll {
					fmt.Print(xbee.FormatFrame(ev.frame))
				}
			}

		case <-statsTicker.C:
			printStats()

		case <-conn.Done():
			fmt.Println("Connection closed")
			printStats()
			return nil

		case <-ctx.Done():
			printStats()
			return nil
		}
	}
}
