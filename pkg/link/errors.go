// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// Caller misuse, detected before any I/O
var (
	ErrInvalidParameterName = xbee.ErrInvalidParameterName
	ErrNullArgument         = xbee.ErrNullArgument
)

// Engine errors
var (
	// ErrInterfaceNotOpen is returned when the transport is closed at call time.
	ErrInterfaceNotOpen = errors.New("interface not open")

	// ErrTimeout is returned when no response arrives before the deadline.
	ErrTimeout = errors.New("timed out waiting for response")

	// ErrProtocol is returned when a response is missing required fields.
	ErrProtocol = errors.New("protocol error")

	// ErrTransportClosed completes every pending request when the reader
	// stops or the connection is closed.
	ErrTransportClosed = errors.New("transport closed")

	// ErrDuplicateFrameID is returned when registering an already-pending ID.
	ErrDuplicateFrameID = errors.New("frame ID already pending")

	// ErrNoFrameID is returned when all 255 frame IDs are in flight.
	ErrNoFrameID = errors.New("no free frame ID")

	// ErrModeUndetermined is returned when probing finds no responding mode.
	ErrModeUndetermined = errors.New("operating mode could not be determined")

	// ErrDeviceNotFound is returned for registry updates of unknown devices.
	ErrDeviceNotFound = errors.New("remote device not found")
)

// ModeError reports an operation attempted in the wrong operating mode.
type ModeError struct {
	Mode xbee.OperatingMode
	Op   string
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("%s not supported in %s operating mode", e.Op, e.Mode)
}

// CommandRejectedError reports an AT command the module answered with a
// non-OK status. This is a valid protocol outcome.
type CommandRejectedError struct {
	Command string
	Status  xbee.ATCommandStatus
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("AT command %s rejected: %s", e.Command, e.Status)
}

// TransmitError reports a data transmission the module could not deliver.
type TransmitError struct {
	Status xbee.DeliveryStatus
}

func (e *TransmitError) Error() string {
	return fmt.Sprintf("transmit failed: %s", e.Status)
}

// TransportError wraps an I/O failure on the underlying byte stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
