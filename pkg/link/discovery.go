// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// Discovery timing
const (
	// DefaultDiscoveryTimeout applies when the module's NT value cannot be
	// read.
	DefaultDiscoveryTimeout = 10 * time.Second

	// discoveryMargin is added to the module's own NT window so late
	// responses still count.
	discoveryMargin = 3 * time.Second
)

// Discover runs network discovery (ND) and returns every node that
// answered within timeout. Discovered nodes are merged into the registry.
// A timeout of zero or less derives the window from the module's NT value.
func (c *Conn) Discover(ctx context.Context, timeout time.Duration) ([]*RemoteDevice, error) {
	return c.discover(ctx, "", timeout)
}

// DiscoverNode asks the network for the node with identifier nodeID. It
// returns ErrDeviceNotFound when no node answers.
func (c *Conn) DiscoverNode(ctx context.Context, nodeID string, timeout time.Duration) (*RemoteDevice, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("node identifier: %w", ErrNullArgument)
	}
	devices, err := c.discover(ctx, nodeID, timeout)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.NodeID() == nodeID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, nodeID)
}

func (c *Conn) discover(ctx context.Context, nodeID string, timeout time.Duration) ([]*RemoteDevice, error) {
	mode, err := c.checkFramed("node discovery")
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = c.discoveryTimeout(ctx)
	}

	w, err := c.pending.AllocateStream(timeout)
	if err != nil {
		return nil, err
	}
	defer w.Cancel()

	var value []byte
	if nodeID != "" {
		value = []byte(nodeID)
	}
	f, err := xbee.BuildATCommand(w.ID(), "ND", value, false)
	if err != nil {
		return nil, err
	}
	if err := c.writeFrame(f, mode); err != nil {
		return nil, err
	}
	c.logger.Info("node discovery started", "timeout", timeout.String(), "node_id", nodeID)

	var devices []*RemoteDevice
	for {
		frame, err := w.Next(ctx)
		if err != nil {
			return devices, err
		}
		if frame == nil {
			break
		}

		resp, err := xbee.ParseATCommandResponse(frame)
		if err != nil {
			c.logger.Debug("bad discovery response", "error", err)
			continue
		}
		if !resp.HasStatus {
			c.logger.Debug("discovery response without status")
			continue
		}
		if !resp.OK() {
			return devices, &CommandRejectedError{Command: "ND", Status: resp.Status}
		}
		if len(resp.Value) == 0 {
			// Some firmware closes the window with an empty OK response
			break
		}

		info, err := xbee.ParseNodeDiscovery(resp.Value, c.opts.protocol)
		if err != nil {
			c.logger.Debug("bad discovery response", "error", err)
			continue
		}
		dev, err := c.registry.Merge(info)
		if err != nil {
			c.logger.Warn("discovered node not registered", "addr64", info.Addr64.String(), "error", err)
			continue
		}
		c.logger.Debug("node discovered", "addr64", info.Addr64.String(), "node_id", info.NodeID)
		devices = append(devices, dev)

		if nodeID != "" {
			break
		}
	}

	c.logger.Info("node discovery finished", "found", len(devices))
	return devices, nil
}

// discoveryTimeout reads NT, in units of 100 ms, and adds a margin.
func (c *Conn) discoveryTimeout(ctx context.Context) time.Duration {
	value, err := c.GetParameter(ctx, "NT")
	if err != nil || len(value) == 0 {
		c.logger.Debug("NT unavailable, using default discovery timeout", "error", err)
		return DefaultDiscoveryTimeout
	}
	var nt uint64
	for _, b := range value {
		nt = nt<<8 | uint64(b)
	}
	return time.Duration(nt)*100*time.Millisecond + discoveryMargin
}
