// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// SendCommand sends a local AT command and waits for its response.
//
// The name must be exactly two ASCII letters. The transport must be open and
// the module must be in API or API escaped mode. A timeout of zero or less
// uses the connection's receive timeout. The returned response always has an
// OK status; other outcomes are errors:
//
//   - ErrNullArgument or ErrInvalidParameterName: bad name, nothing written
//   - ErrInterfaceNotOpen: transport closed at call time
//   - *ModeError: module not in a framed mode
//   - *TransportError: the write failed
//   - ErrTimeout: no response before the deadline
//   - ErrProtocol: the response had no status
//   - *CommandRejectedError: the module answered with a non-OK status
//   - ErrTransportClosed: the connection closed while waiting
//
// Setting AP through this path updates the connection's operating mode.
func (c *Conn) SendCommand(ctx context.Context, name string, value []byte, timeout time.Duration) (*xbee.ATCommandResponse, error) {
	if err := xbee.ValidateATCommandName(name); err != nil {
		return nil, err
	}
	mode, err := c.checkFramed("AT command " + strings.ToUpper(name))
	if err != nil {
		return nil, err
	}

	resp, err := c.execute(ctx, name, value, c.timeoutOrDefault(timeout), mode)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(name, "AP") && len(value) > 0 {
		if m := xbee.ModeFromAPValue(value[len(value)-1]); m != xbee.ModeUnknown {
			if err := c.mode.Set(ctx, m); err != nil {
				c.logger.Warn("operating mode update failed", "error", err)
			}
		}
	}
	return resp, nil
}

// execute runs one AT command exchange in the given codec mode.
func (c *Conn) execute(ctx context.Context, name string, value []byte, timeout time.Duration, mode xbee.OperatingMode) (*xbee.ATCommandResponse, error) {
	w, err := c.pending.Allocate(timeout)
	if err != nil {
		return nil, err
	}

	f, err := xbee.BuildATCommand(w.ID(), name, value, false)
	if err != nil {
		w.Cancel()
		return nil, err
	}
	if err := c.writeFrame(f, mode); err != nil {
		w.Cancel()
		return nil, err
	}

	frame, err := w.Wait(ctx)
	if err != nil {
		c.logger.Debug("AT command failed", "command", strings.ToUpper(name), "id", w.ID(), "error", err)
		return nil, err
	}
	return checkATResponse(frame, name)
}

// checkATResponse turns a response frame into a result or an error.
func checkATResponse(frame *xbee.Frame, name string) (*xbee.ATCommandResponse, error) {
	resp, err := xbee.ParseATCommandResponse(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if !resp.HasStatus {
		return nil, fmt.Errorf("%w: no response status for %s", ErrProtocol, resp.Command)
	}
	if !resp.OK() {
		cmd := resp.Command
		if cmd == "" {
			cmd = strings.ToUpper(name)
		}
		return nil, &CommandRejectedError{Command: cmd, Status: resp.Status}
	}
	return resp, nil
}

// SetParameter sets an AT parameter. The value is required.
func (c *Conn) SetParameter(ctx context.Context, name string, value []byte) error {
	if err := xbee.ValidateATCommandName(name); err != nil {
		return err
	}
	if value == nil {
		return fmt.Errorf("value for %s: %w", strings.ToUpper(name), ErrNullArgument)
	}
	_, err := c.SendCommand(ctx, name, value, 0)
	return err
}

// GetParameter reads an AT parameter.
func (c *Conn) GetParameter(ctx context.Context, name string) ([]byte, error) {
	resp, err := c.SendCommand(ctx, name, nil, 0)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// ExecuteParameter runs an AT command that takes no value, such as WR or AC.
func (c *Conn) ExecuteParameter(ctx context.Context, name string) error {
	_, err := c.SendCommand(ctx, name, nil, 0)
	return err
}

// SendRemoteATCommand sends an AT command to a remote device and waits for
// its response. Outcomes match SendCommand. With apply set the remote
// applies the change immediately.
func (c *Conn) SendRemoteATCommand(ctx context.Context, dev *RemoteDevice, name string, value []byte, apply bool, timeout time.Duration) (*xbee.ATCommandResponse, error) {
	if err := xbee.ValidateATCommandName(name); err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("remote device: %w", ErrNullArgument)
	}
	mode, err := c.checkFramed("remote AT command " + strings.ToUpper(name))
	if err != nil {
		return nil, err
	}

	addr64 := dev.Addr64()
	addr16 := xbee.Unknown16
	if a, ok := dev.Addr16().Get(); ok {
		addr16 = a
	}
	if err := xbee.ValidateRemoteAddressing(c.opts.protocol, addr64, dev.Addr16()); err != nil {
		return nil, err
	}

	options := uint8(xbee.RemoteATOptionNone)
	if apply {
		options = xbee.RemoteATOptionApplyChanges
	}

	w, err := c.pending.Allocate(c.timeoutOrDefault(timeout))
	if err != nil {
		return nil, err
	}
	f, err := xbee.BuildRemoteATCommand(w.ID(), addr64, addr16, options, name, value)
	if err != nil {
		w.Cancel()
		return nil, err
	}
	if err := c.writeFrame(f, mode); err != nil {
		w.Cancel()
		return nil, err
	}

	frame, err := w.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return checkATResponse(frame, name)
}
