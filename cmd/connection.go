// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/xbeestat/internal/store"
	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/transport"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// openTransport opens either a serial or WebSocket connection based on the
// configuration.
func openTransport(ctx context.Context) (link.Transport, string, error) {
	if cfg.WebSocket.URL != "" {
		password := ""
		if cfg.WebSocket.Username != "" {
			var err error
			password, err = transport.GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		ws, err := transport.OpenWebSocket(ctx, transport.WebSocketConfig{
			URL:           cfg.WebSocket.URL,
			Username:      cfg.WebSocket.Username,
			Password:      password,
			SkipTLSVerify: cfg.WebSocket.NoSSLVerify,
		})
		if err != nil {
			return nil, "", err
		}
		return ws, fmt.Sprintf("WebSocket: %s", cfg.WebSocket.URL), nil
	}

	if cfg.Serial.Port != "" {
		s, err := transport.OpenSerial(transport.SerialConfig{
			Port:        cfg.Serial.Port,
			BaudRate:    cfg.Serial.BaudRate,
			ReadTimeout: cfg.Serial.ReadTimeout,
		})
		if err != nil {
			return nil, "", err
		}
		return s, s.String(), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// linkOptions builds the engine options from the configuration.
func linkOptions(extra ...link.Option) []link.Option {
	d := cfg.Device
	opts := []link.Option{
		link.WithLogger(logger.With("component", "link").Logger),
		link.WithOperatingMode(d.OperatingMode()),
		link.WithProtocol(d.ProtocolFamily()),
		link.WithReceiveTimeout(d.ReceiveTimeout),
		link.WithProbeTimeout(d.ProbeTimeout),
		link.WithFrameTimeout(d.FrameTimeout),
		link.WithGuardTime(d.GuardTime),
		link.WithMaxFrameLength(d.MaxFrameLength),
	}
	return append(opts, extra...)
}

// openLink opens the transport and starts the engine. When the mode is
// "auto" the module is probed; passive callers pass probe=false and get API
// framing instead.
func openLink(ctx context.Context, probe bool, extra ...link.Option) (*link.Conn, string, error) {
	t, info, err := openTransport(ctx)
	if err != nil {
		return nil, "", err
	}

	opts := linkOptions(extra...)
	if !probe && cfg.Device.OperatingMode() == xbee.ModeUnknown {
		opts = append(opts, link.WithOperatingMode(xbee.ModeAPI))
	}

	conn, err := link.Open(t, opts...)
	if err != nil {
		t.Close()
		return nil, "", err
	}

	if probe && conn.Mode() == xbee.ModeUnknown {
		mode, err := conn.ProbeMode(ctx)
		if err != nil {
			conn.Close()
			if errors.Is(err, link.ErrModeUndetermined) {
				return nil, "", fmt.Errorf("no response from module on %s; check wiring, baud rate and --mode", info)
			}
			return nil, "", fmt.Errorf("probing operating mode: %w", err)
		}
		logger.Info("operating mode detected", "mode", mode.String())
	}

	return conn, fmt.Sprintf("%s (%s mode)", info, conn.Mode()), nil
}

// openFramedLink is openLink for commands that exchange API frames.
func openFramedLink(ctx context.Context, extra ...link.Option) (*link.Conn, string, error) {
	conn, info, err := openLink(ctx, true, extra...)
	if err != nil {
		return nil, "", err
	}
	if !conn.Mode().IsFramed() {
		conn.Close()
		return nil, "", fmt.Errorf("module is in %s mode; set AP=1 or AP=2 to use API frames", conn.Mode())
	}
	return conn, info, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// resolveDevice finds a remote device by 64-bit address or node identifier.
// A hex address is trusted as-is; a node identifier is looked up in the
// registry first and discovered over the air when unknown.
func resolveDevice(ctx context.Context, conn *link.Conn, target string, timeout time.Duration) (*link.RemoteDevice, error) {
	if addr, err := xbee.ParseAddress64(target); err == nil {
		return conn.Registry().FindOrCreate(addr, xbee.No16(), "")
	}
	if dev, ok := conn.Registry().LookupNodeID(target); ok {
		return dev, nil
	}
	dev, err := conn.DiscoverNode(ctx, target, timeout)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", target, err)
	}
	return dev, nil
}

// openStoreOnly opens the device database without a radio connection.
func openStoreOnly(ctx context.Context) (*store.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return store.Open(ctx, cfg.Database)
}

// openStore opens the device database and loads known devices into the
// connection's registry.
func openStore(ctx context.Context, conn *link.Conn) (*store.DB, error) {
	db, err := openStoreOnly(ctx)
	if err != nil {
		return nil, err
	}
	n, err := db.RestoreRegistry(ctx, conn.Registry())
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("restored devices", "count", n, "path", db.Path())
	return db, nil
}
