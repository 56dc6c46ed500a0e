// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xbeestat/internal/bridge"
	"github.com/Thermoquad/xbeestat/internal/capture"
	"github.com/Thermoquad/xbeestat/internal/store"
	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

var (
	monitorCapture string
	monitorMQTT    bool
	monitorTUI     bool
	monitorHex     bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor data and status frames from remote devices",
	Long: `Print data received from remote devices and modem status events.

Options:
  --capture FILE   Record every frame in both directions to a CBOR capture
                   file for later replay
  --mqtt           Bridge received data to MQTT and MQTT transmit topics
                   back to the radio (settings from the mqtt config section)
  --tui            Interactive terminal UI with a device list, a send box
                   and automatic reconnection on connection loss

Devices seen while monitoring are saved to the device database on exit.

MQTT topics (prefix from mqtt.topic_prefix):
  <prefix>/status           online/offline (retained)
  <prefix>/modem            modem status events
  <prefix>/<ADDR64>/rx      data received from a device
  <prefix>/<ADDR64>/tx      publish here to send to a device
  <prefix>/broadcast/tx     publish here to broadcast`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorCapture, "capture", "", "Record frames to a capture file")
	monitorCmd.Flags().BoolVar(&monitorMQTT, "mqtt", false, "Enable the MQTT bridge")
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "Use terminal UI")
	monitorCmd.Flags().BoolVar(&monitorHex, "hex", false, "Always print data as hex")
}

// monitorSession holds what outlives a single connection: the capture
// file, the MQTT client and the device store.
type monitorSession struct {
	recorder *capture.Writer
	mqtt     *bridge.Client
	db       *store.DB
}

func newMonitorSession() (*monitorSession, error) {
	s := &monitorSession{}

	path := monitorCapture
	if path == "" {
		path = cfg.Capture.Path
	}
	if path != "" {
		w, err := capture.Create(path)
		if err != nil {
			return nil, err
		}
		s.recorder = w
		logger.Info("capturing frames", "path", path, "session", w.SessionID())
	}

	if monitorMQTT || cfg.MQTT.Enabled {
		c, err := bridge.Connect(cfg.MQTT, logger.With("component", "mqtt"))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.mqtt = c
	}

	return s, nil
}

// options returns the link options the session needs.
func (s *monitorSession) options() []link.Option {
	if s.recorder == nil {
		return nil
	}
	return []link.Option{link.WithRecorder(s.recorder)}
}

// attach wires a freshly opened connection into the session. The returned
// function detaches it again.
func (s *monitorSession) attach(ctx context.Context, conn *link.Conn) func() {
	if s.db == nil {
		if db, err := openStore(ctx, conn); err != nil {
			logger.Warn("device store unavailable", "error", err)
		} else {
			s.db = db
		}
	} else if _, err := s.db.RestoreRegistry(ctx, conn.Registry()); err != nil {
		logger.Warn("restoring devices failed", "error", err)
	}

	var b *bridge.Bridge
	if s.mqtt != nil {
		b = bridge.New(conn, s.mqtt, cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS), logger.With("component", "bridge").Logger)
		if err := b.Start(); err != nil {
			logger.Warn("MQTT bridge not started", "error", err)
			b = nil
		}
	}

	return func() {
		if b != nil {
			b.Stop()
		}
		if s.db != nil {
			if err := s.db.SaveRegistry(context.Background(), conn.Registry()); err != nil {
				logger.Warn("saving devices failed", "error", err)
			}
		}
	}
}

// Close releases everything the session opened.
func (s *monitorSession) Close() {
	if s.mqtt != nil {
		s.mqtt.Close()
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			logger.Warn("closing capture failed", "error", err)
		} else {
			logger.Info("capture closed", "frames", s.recorder.Count())
		}
	}
	if s.db != nil {
		s.db.Close()
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	session, err := newMonitorSession()
	if err != nil {
		return err
	}
	defer session.Close()

	if monitorTUI {
		return runMonitorTUI(ctx, session)
	}

	conn, connInfo, err := openFramedLink(ctx, session.options()...)
	if err != nil {
		return err
	}
	defer conn.Close()

	detach := session.attach(ctx, conn)
	defer detach()

	fmt.Printf("xbeestat - Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Protocol: %s\n", conn.Protocol())
	if session.recorder != nil {
		fmt.Printf("Capture session: %s\n", session.recorder.SessionID())
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	conn.AddDataListener(func(m *link.XBeeMessage) error {
		fmt.Println(formatMessage(m, monitorHex))
		return nil
	})
	conn.AddStatusListener(func(f *xbee.Frame) error {
		fmt.Printf("[%s] %s: %s\n", f.Timestamp().Format("15:04:05.000"), f.Type(), xbee.FormatPayload(f))
		return nil
	})

	select {
	case <-ctx.Done():
	case <-conn.Done():
		fmt.Println("Connection closed")
	}
	return nil
}

// formatMessage renders a received message on one line.
func formatMessage(m *link.XBeeMessage, hex bool) string {
	kind := "RX"
	if m.IsBroadcast() {
		kind = "BC"
	}
	value := xbee.FormatValue(m.Data())
	if hex {
		value = xbee.FormatHex(m.Data())
	}
	return fmt.Sprintf("[%s] %s %s (%d bytes): %s",
		m.Timestamp().Format("15:04:05.000"), kind, m.Device(), len(m.Data()), value)
}

// monitorReconnectBackoff bounds the delay between reconnect attempts.
var monitorReconnectBackoff = struct{ initial, max time.Duration }{time.Second, 30 * time.Second}
