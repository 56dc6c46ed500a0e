// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xbeestat/internal/capture"
	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

var (
	replaySession   string
	replayDirection string
	replayType      string
	replayValidate  bool
	replayStats     bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print frames from a capture file",
	Long: `Read a capture file written by "monitor --capture" and print its frames.

Filters:
  --session ID       Only frames from one capture session
  --direction in|out Only received or only sent frames
  --type 0x90        Only frames of one API frame type

With --validate each frame is checked the same way error_detection does and
problems are printed below it. With --stats a statistics summary follows.`,
	Args: cobra.ExactArgs(1),
	// Replay works offline and needs no connection settings
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replaySession, "session", "", "Only frames from this capture session")
	replayCmd.Flags().StringVar(&replayDirection, "direction", "", "Only frames in this direction (in or out)")
	replayCmd.Flags().StringVar(&replayType, "type", "", "Only frames of this type (hex, e.g. 0x90)")
	replayCmd.Flags().BoolVar(&replayValidate, "validate", false, "Validate each frame")
	replayCmd.Flags().BoolVar(&replayStats, "stats", false, "Print statistics at the end")
}

// replayFilter builds the capture filter from the command-line flags.
func replayFilter(session, direction, frameType string) (capture.Filter, error) {
	f := capture.Filter{SessionID: session}

	switch strings.ToLower(direction) {
	case "":
	case "in", "rx":
		d := link.DirectionIn
		f.Direction = &d
	case "out", "tx":
		d := link.DirectionOut
		f.Direction = &d
	default:
		return f, fmt.Errorf("invalid direction %q (want in or out)", direction)
	}

	if frameType != "" {
		b, err := parseATValue(frameType)
		if err != nil {
			return f, err
		}
		if !strings.HasPrefix(strings.ToLower(frameType), "0x") || len(b) != 1 {
			return f, fmt.Errorf("invalid frame type %q (want one hex byte, e.g. 0x90)", frameType)
		}
		t := b[0]
		f.FrameType = &t
	}
	return f, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	filter, err := replayFilter(replaySession, replayDirection, replayType)
	if err != nil {
		return err
	}

	r, err := capture.Open(args[0], filter)
	if err != nil {
		return err
	}
	defer r.Close()

	stats := xbee.NewStatistics()
	count := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		count++

		fmt.Println(rec.String())

		f := rec.Frame()
		validationErrors := xbee.ValidateFrame(f)
		stats.Update(f, nil, validationErrors)
		if replayValidate {
			for _, v := range validationErrors {
				fmt.Printf("    ! %s\n", v.Message)
			}
		}
	}

	if count == 0 {
		fmt.Println("No matching frames")
	}
	if replayStats {
		fmt.Println()
		fmt.Print(stats.String())
	}
	return nil
}
