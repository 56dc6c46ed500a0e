// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import (
	"errors"
	"fmt"
)

// Codec and payload errors
var (
	// ErrIncomplete means the decoder needs more bytes to finish a frame.
	ErrIncomplete = errors.New("incomplete frame")

	// ErrChecksum matches every *ChecksumError.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrFormat matches every *FormatError.
	ErrFormat = errors.New("malformed frame")

	// ErrModeNotFramed is returned when encoding in a mode that has no framing.
	ErrModeNotFramed = errors.New("operating mode does not use API frames")

	// ErrFrameTooLarge is returned when frame data exceeds the length field.
	ErrFrameTooLarge = errors.New("frame data exceeds 65535 bytes")

	// ErrInvalidParameterName is returned for AT command names that are not
	// exactly two ASCII letters.
	ErrInvalidParameterName = errors.New("invalid AT parameter name")

	// ErrNullArgument is returned when a required argument is absent.
	ErrNullArgument = errors.New("required argument is missing")

	// ErrShortPayload is returned when a payload is too short to parse.
	ErrShortPayload = errors.New("payload too short")

	// ErrUnexpectedFrameType is returned when parsing a frame of the wrong type.
	ErrUnexpectedFrameType = errors.New("unexpected frame type")
)

// ChecksumError reports a frame whose checksum does not match its data.
type ChecksumError struct {
	Expected uint8
	Actual   uint8
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected 0x%02X, got 0x%02X", e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrChecksum) hold.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksum
}

// FormatError reports a frame that is structurally invalid: bad length,
// truncated by a new delimiter, or abandoned mid-frame.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "malformed frame: " + e.Reason
}

// Is makes errors.Is(err, ErrFormat) hold.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func formatErrorf(format string, args ...interface{}) *FormatError {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}
