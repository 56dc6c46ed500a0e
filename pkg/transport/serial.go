// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides byte streams to a local XBee module: a serial
// port, or a WebSocket bridge to a remote serial port.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Serial defaults
const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = 100 * time.Millisecond
)

// SerialConfig describes a serial port.
type SerialConfig struct {
	Port     string
	BaudRate int

	// ReadTimeout bounds each Read so the reader can notice stalled frames.
	// Zero uses DefaultReadTimeout.
	ReadTimeout time.Duration
}

// Serial wraps a serial port. A Read that times out returns 0, nil.
type Serial struct {
	port   serial.Port
	name   string
	closed atomic.Bool
}

// OpenSerial opens a serial port with 8N1 framing.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("serial port not specified")
	}
	baud := cfg.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Port, err)
	}

	return &Serial{port: port, name: fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, baud)}, nil
}

// Read reads from the port. Once the device is unplugged the port reports
// closed on every call; that is returned as io.EOF and the port is marked
// closed.
func (s *Serial) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil && portClosed(err) {
		s.closed.Store(true)
		return n, io.EOF
	}
	return n, err
}

func portClosed(err error) bool {
	var pe *serial.PortError
	if errors.As(err, &pe) {
		return pe.Code() == serial.PortClosed
	}
	var pv serial.PortError
	if errors.As(err, &pv) {
		return pv.Code() == serial.PortClosed
	}
	return false
}

func (s *Serial) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Close closes the port. Closing twice is not an error.
func (s *Serial) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.port.Close()
}

// IsOpen reports whether the port is still usable: Close has not been
// called and the device has not gone away.
func (s *Serial) IsOpen() bool {
	return !s.closed.Load()
}

// String describes the connection for display.
func (s *Serial) String() string {
	return s.name
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// ListPortDetails returns the serial ports with USB identification where the
// platform provides it.
func ListPortDetails() ([]*enumerator.PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	return ports, nil
}
