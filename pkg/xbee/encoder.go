// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import (
	"encoding/binary"
	"fmt"
)

// Encode renders a frame to wire format for the given operating mode.
// In ModeAPIEscaped every byte after the start delimiter is escaped as
// needed. Modes without framing return ErrModeNotFramed.
func Encode(f *Frame, mode OperatingMode) ([]byte, error) {
	if !mode.IsFramed() {
		return nil, fmt.Errorf("encode %s in %s mode: %w", f.Type(), mode, ErrModeNotFramed)
	}

	data := f.Data()
	if len(data) > MaxFrameLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	// Body: length + data + checksum
	body := make([]byte, 2, 2+len(data)+1)
	binary.BigEndian.PutUint16(body, uint16(len(data)))
	body = append(body, data...)
	body = append(body, CalculateChecksum(data))

	if mode == ModeAPIEscaped {
		body = Escape(body)
	}

	wire := make([]byte, 0, 1+len(body))
	wire = append(wire, StartDelimiter)
	return append(wire, body...), nil
}

// EncodeFrame builds and encodes a frame in one step.
func EncodeFrame(t FrameType, id uint8, payload []byte, mode OperatingMode) ([]byte, error) {
	return Encode(NewFrame(t, id, payload), mode)
}

// needsEscape reports whether b must be escaped in API escaped mode.
func needsEscape(b byte) bool {
	return b == StartDelimiter || b == EscapeByte || b == XON || b == XOFF
}

// Escape applies API escaped-mode byte stuffing. Each special byte is
// replaced with EscapeByte followed by the byte XOR EscapeXor.
func Escape(data []byte) []byte {
	result := make([]byte, 0, len(data)+len(data)/4)
	for _, b := range data {
		if needsEscape(b) {
			result = append(result, EscapeByte, b^EscapeXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}

// Unescape removes API escaped-mode byte stuffing.
// This is the inverse of Escape.
func Unescape(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, b^EscapeXor)
			escapeNext = false
		} else if b == EscapeByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}

	return result, nil
}
