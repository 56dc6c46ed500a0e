// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// Operating mode states
const (
	stateUnknown    = "unknown"
	stateAT         = "at"
	stateAPI        = "api"
	stateAPIEscaped = "api_escaped"
)

// Operating mode events
const (
	eventDetectAT         = "detect_at"
	eventDetectAPI        = "detect_api"
	eventDetectAPIEscaped = "detect_api_escaped"
	eventReset            = "reset"
)

var allStates = []string{stateUnknown, stateAT, stateAPI, stateAPIEscaped}

func stateForMode(m xbee.OperatingMode) string {
	switch m {
	case xbee.ModeTransparentAT:
		return stateAT
	case xbee.ModeAPI:
		return stateAPI
	case xbee.ModeAPIEscaped:
		return stateAPIEscaped
	}
	return stateUnknown
}

func eventForMode(m xbee.OperatingMode) string {
	switch m {
	case xbee.ModeTransparentAT:
		return eventDetectAT
	case xbee.ModeAPI:
		return eventDetectAPI
	case xbee.ModeAPIEscaped:
		return eventDetectAPIEscaped
	}
	return eventReset
}

func modeForState(s string) xbee.OperatingMode {
	switch s {
	case stateAT:
		return xbee.ModeTransparentAT
	case stateAPI:
		return xbee.ModeAPI
	case stateAPIEscaped:
		return xbee.ModeAPIEscaped
	}
	return xbee.ModeUnknown
}

// modeMachine tracks the module's operating mode. The state machine holds the
// confirmed mode; wire holds the mode the codec uses, which probing may
// change temporarily without confirming anything.
type modeMachine struct {
	fsm    *fsm.FSM
	mode   atomic.Int32
	wire   atomic.Int32
	logger *slog.Logger
}

func newModeMachine(initial xbee.OperatingMode, logger *slog.Logger) *modeMachine {
	m := &modeMachine{logger: logger}
	m.mode.Store(int32(initial))
	m.wire.Store(int32(initial))

	m.fsm = fsm.NewFSM(
		stateForMode(initial),
		fsm.Events{
			{Name: eventDetectAT, Src: allStates, Dst: stateAT},
			{Name: eventDetectAPI, Src: allStates, Dst: stateAPI},
			{Name: eventDetectAPIEscaped, Src: allStates, Dst: stateAPIEscaped},
			{Name: eventReset, Src: allStates, Dst: stateUnknown},
		},
		fsm.Callbacks{
			"enter_state": m.onEnterState,
		},
	)
	return m
}

func (m *modeMachine) onEnterState(_ context.Context, e *fsm.Event) {
	mode := modeForState(e.Dst)
	m.mode.Store(int32(mode))
	m.wire.Store(int32(mode))
	m.logger.Info("operating mode changed", "from", modeForState(e.Src).String(), "to", mode.String())
}

// Mode returns the confirmed operating mode.
func (m *modeMachine) Mode() xbee.OperatingMode {
	return xbee.OperatingMode(m.mode.Load())
}

// Wire returns the mode the codec currently uses.
func (m *modeMachine) Wire() xbee.OperatingMode {
	return xbee.OperatingMode(m.wire.Load())
}

// setWire changes the codec mode without confirming it.
func (m *modeMachine) setWire(mode xbee.OperatingMode) {
	m.wire.Store(int32(mode))
}

// Set confirms mode. Setting the current mode again is not an error.
func (m *modeMachine) Set(ctx context.Context, mode xbee.OperatingMode) error {
	err := m.fsm.Event(ctx, eventForMode(mode))
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		// Already there; a probe may have left the wire mode elsewhere
		m.wire.Store(int32(mode))
		return nil
	}
	return err
}

// Mode returns the confirmed operating mode of the local module.
func (c *Conn) Mode() xbee.OperatingMode {
	return c.mode.Mode()
}

// ProbeMode determines the operating mode by asking the module. It tries an
// AP query framed for API mode, then for API escaped mode, then enters
// command mode with the "+++" escape sequence. When nothing answers the mode
// stays unknown and ErrModeUndetermined is returned.
func (c *Conn) ProbeMode(ctx context.Context) (xbee.OperatingMode, error) {
	if !c.IsOpen() {
		return xbee.ModeUnknown, ErrInterfaceNotOpen
	}

	for _, candidate := range []xbee.OperatingMode{xbee.ModeAPI, xbee.ModeAPIEscaped} {
		c.mode.setWire(candidate)
		resp, err := c.execute(ctx, "AP", nil, c.opts.probeTimeout, candidate)
		var rejected *CommandRejectedError
		switch {
		case err == nil:
			mode := candidate
			if len(resp.Value) > 0 && xbee.ModeFromAPValue(resp.Value[len(resp.Value)-1]).IsFramed() {
				mode = xbee.ModeFromAPValue(resp.Value[len(resp.Value)-1])
			}
			return mode, c.mode.Set(ctx, mode)
		case errors.As(err, &rejected), errors.Is(err, ErrProtocol):
			// A framed answer of any kind proves the framing
			return candidate, c.mode.Set(ctx, candidate)
		case errors.Is(err, ErrTimeout):
			c.logger.Debug("no response to AP probe", "mode", candidate.String())
		default:
			c.mode.setWire(c.mode.Mode())
			return xbee.ModeUnknown, err
		}
	}

	ok, err := c.probeCommandMode(ctx)
	if err != nil {
		c.mode.setWire(c.mode.Mode())
		return xbee.ModeUnknown, err
	}
	if ok {
		return xbee.ModeTransparentAT, c.mode.Set(ctx, xbee.ModeTransparentAT)
	}

	if err := c.mode.Set(ctx, xbee.ModeUnknown); err != nil {
		return xbee.ModeUnknown, err
	}
	return xbee.ModeUnknown, ErrModeUndetermined
}

// probeCommandMode sends the command mode escape sequence surrounded by
// guard times and waits for "OK\r". On success it leaves command mode again.
func (c *Conn) probeCommandMode(ctx context.Context) (bool, error) {
	c.mode.setWire(xbee.ModeUnknown)
	tap := c.openTap()
	defer c.closeTap()

	if err := sleepCtx(ctx, c.opts.guardTime); err != nil {
		return false, err
	}
	if err := c.writeRaw([]byte("+++")); err != nil {
		return false, err
	}

	deadline := time.NewTimer(c.opts.guardTime + c.opts.probeTimeout)
	defer deadline.Stop()

	var got []byte
	for {
		select {
		case chunk := <-tap:
			got = append(got, chunk...)
			if bytes.Contains(got, []byte("OK\r")) {
				if err := c.writeRaw([]byte("ATCN\r")); err != nil {
					return false, err
				}
				return true, nil
			}
		case <-deadline.C:
			return false, nil
		case <-c.closing:
			return false, ErrTransportClosed
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
