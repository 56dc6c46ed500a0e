// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import (
	"fmt"
	"strings"
)

// ATCommandStatus is the status byte of an AT command response.
type ATCommandStatus uint8

const (
	ATStatusOK               ATCommandStatus = 0x00
	ATStatusError            ATCommandStatus = 0x01
	ATStatusInvalidCommand   ATCommandStatus = 0x02
	ATStatusInvalidParameter ATCommandStatus = 0x03
	ATStatusTxFailure        ATCommandStatus = 0x04
)

// String returns the status name
func (s ATCommandStatus) String() string {
	switch s {
	case ATStatusOK:
		return "OK"
	case ATStatusError:
		return "ERROR"
	case ATStatusInvalidCommand:
		return "INVALID_COMMAND"
	case ATStatusInvalidParameter:
		return "INVALID_PARAMETER"
	case ATStatusTxFailure:
		return "TX_FAILURE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(s))
	}
}

// ValidateATCommandName checks that name is exactly two ASCII letters, in
// either case. An empty name is a missing argument rather than a bad one.
func ValidateATCommandName(name string) error {
	if name == "" {
		return fmt.Errorf("AT command name: %w", ErrNullArgument)
	}
	if len(name) != 2 {
		return fmt.Errorf("%w: %q must be 2 characters", ErrInvalidParameterName, name)
	}
	for i := 0; i < 2; i++ {
		c := name[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= 'a' && c <= 'z') {
			return fmt.Errorf("%w: %q contains non-letter 0x%02X", ErrInvalidParameterName, name, c)
		}
	}
	return nil
}

// BuildATCommand builds a local AT command frame (0x08). With queued set the
// frame is an AT command queue frame (0x09) whose value is held until AC.
func BuildATCommand(id uint8, name string, value []byte, queued bool) (*Frame, error) {
	if err := ValidateATCommandName(name); err != nil {
		return nil, err
	}
	payload := make([]byte, 0, 2+len(value))
	payload = append(payload, strings.ToUpper(name)...)
	payload = append(payload, value...)

	t := FrameATCommand
	if queued {
		t = FrameATCommandQueue
	}
	return NewFrame(t, id, payload), nil
}

// ParseATCommand extracts the name and value from a local AT command frame.
func ParseATCommand(f *Frame) (string, []byte, error) {
	if f.Type() != FrameATCommand && f.Type() != FrameATCommandQueue {
		return "", nil, fmt.Errorf("%w: %s", ErrUnexpectedFrameType, f.Type())
	}
	p := f.Payload()
	if len(p) < 2 {
		return "", nil, fmt.Errorf("%w: AT command needs 2 name bytes, got %d", ErrShortPayload, len(p))
	}
	return string(p[:2]), p[2:], nil
}

// ATCommandResponse is a decoded local (0x88) or remote (0x97) AT response.
type ATCommandResponse struct {
	FrameID   uint8
	Command   string
	Status    ATCommandStatus
	HasStatus bool
	Value     []byte

	// Set for remote responses only
	Source64 Address64
	Source16 MaybeAddress16
	Remote   bool
}

// OK reports whether the response carries a successful status.
func (r *ATCommandResponse) OK() bool {
	return r.HasStatus && r.Status == ATStatusOK
}

// ParseATCommandResponse decodes an AT command response frame. A response
// that ends right after the command name has HasStatus false.
func ParseATCommandResponse(f *Frame) (*ATCommandResponse, error) {
	p := f.Payload()
	r := &ATCommandResponse{FrameID: f.ID()}

	switch f.Type() {
	case FrameATCommandResponse:
	case FrameRemoteATResponse:
		if len(p) < 10 {
			return nil, fmt.Errorf("%w: remote AT response needs 10 address bytes, got %d", ErrShortPayload, len(p))
		}
		r.Remote = true
		r.Source64, _ = Address64FromBytes(p[0:8])
		a16, _ := Address16FromBytes(p[8:10])
		r.Source16 = Some16(a16)
		p = p[10:]
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedFrameType, f.Type())
	}

	if len(p) < 2 {
		return nil, fmt.Errorf("%w: AT response needs 2 name bytes, got %d", ErrShortPayload, len(p))
	}
	r.Command = string(p[:2])
	if len(p) > 2 {
		r.Status = ATCommandStatus(p[2] & 0x0F) // upper bits are flags on some firmware
		r.HasStatus = true
		r.Value = append([]byte(nil), p[3:]...)
	}
	return r, nil
}

// BuildRemoteATCommand builds a remote AT command request (0x17).
func BuildRemoteATCommand(id uint8, dest64 Address64, dest16 Address16, options uint8, name string, value []byte) (*Frame, error) {
	if err := ValidateATCommandName(name); err != nil {
		return nil, err
	}
	payload := make([]byte, 0, 13+len(value))
	payload = append(payload, dest64.Bytes()...)
	payload = append(payload, dest16.Bytes()...)
	payload = append(payload, options)
	payload = append(payload, strings.ToUpper(name)...)
	payload = append(payload, value...)
	return NewFrame(FrameRemoteATCommand, id, payload), nil
}

// BuildATCommandResponse builds a local AT command response frame as a
// module would send it. Mainly useful for simulators and tests.
func BuildATCommandResponse(id uint8, name string, status ATCommandStatus, value []byte) *Frame {
	payload := make([]byte, 0, 3+len(value))
	payload = append(payload, strings.ToUpper(name)...)
	payload = append(payload, byte(status))
	payload = append(payload, value...)
	return NewFrame(FrameATCommandResponse, id, payload)
}
