// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// SendData transmits data to dev and waits for the transmit status. A
// delivery failure is returned as *TransmitError.
func (c *Conn) SendData(ctx context.Context, dev *RemoteDevice, data []byte) error {
	if dev == nil {
		return fmt.Errorf("remote device: %w", ErrNullArgument)
	}
	return c.SendDataTo(ctx, dev.Addr64(), dev.Addr16(), data)
}

// SendDataTo transmits data to the given addresses and waits for the
// transmit status.
func (c *Conn) SendDataTo(ctx context.Context, addr64 xbee.Address64, addr16 xbee.MaybeAddress16, data []byte) error {
	if data == nil {
		return fmt.Errorf("data: %w", ErrNullArgument)
	}
	if err := xbee.ValidateRemoteAddressing(c.opts.protocol, addr64, addr16); err != nil {
		return err
	}
	return c.transmit(ctx, addr64, addr16, data, true)
}

// SendBroadcastData transmits data to every node and waits for the local
// transmit status.
func (c *Conn) SendBroadcastData(ctx context.Context, data []byte) error {
	if data == nil {
		return fmt.Errorf("data: %w", ErrNullArgument)
	}
	return c.transmit(ctx, xbee.Broadcast64, xbee.No16(), data, true)
}

// SendDataAsync transmits data to dev with frame ID 0, so the module sends
// no transmit status. It returns once the frame is written.
func (c *Conn) SendDataAsync(ctx context.Context, dev *RemoteDevice, data []byte) error {
	if dev == nil {
		return fmt.Errorf("remote device: %w", ErrNullArgument)
	}
	if data == nil {
		return fmt.Errorf("data: %w", ErrNullArgument)
	}
	if err := xbee.ValidateRemoteAddressing(c.opts.protocol, dev.Addr64(), dev.Addr16()); err != nil {
		return err
	}
	return c.transmit(ctx, dev.Addr64(), dev.Addr16(), data, false)
}

func (c *Conn) transmit(ctx context.Context, addr64 xbee.Address64, addr16 xbee.MaybeAddress16, data []byte, wait bool) error {
	mode, err := c.checkFramed("data transmission")
	if err != nil {
		return err
	}

	if !wait {
		return c.writeFrame(c.buildTransmit(0, addr64, addr16, data), mode)
	}

	w, err := c.pending.Allocate(c.ReceiveTimeout())
	if err != nil {
		return err
	}
	if err := c.writeFrame(c.buildTransmit(w.ID(), addr64, addr16, data), mode); err != nil {
		w.Cancel()
		return err
	}

	frame, err := w.Wait(ctx)
	if err != nil {
		return err
	}
	status, err := xbee.ParseTransmitStatus(frame)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if !status.OK() {
		return &TransmitError{Status: status.Delivery}
	}
	return nil
}

// buildTransmit picks the transmit request the module's family expects.
func (c *Conn) buildTransmit(id uint8, addr64 xbee.Address64, addr16 xbee.MaybeAddress16, data []byte) *xbee.Frame {
	a16, has16 := addr16.Get()
	if c.opts.protocol.UsesLegacyTransmit() {
		if addr64.IsUnknown() && has16 {
			return xbee.BuildTx16Request(id, a16, xbee.TransmitOptionNone, data)
		}
		return xbee.BuildTx64Request(id, addr64, xbee.TransmitOptionNone, data)
	}
	if !addr16.IsKnown() {
		a16 = xbee.Unknown16
	}
	return xbee.BuildTransmitRequest(id, addr64, a16, xbee.BroadcastRadius, xbee.TransmitOptionNone, data)
}
