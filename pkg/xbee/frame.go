// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import "time"

// Frame represents one API frame, either built for transmission or decoded
// from the wire.
type Frame struct {
	frameType FrameType
	id        uint8
	payload   []byte
	checksum  uint8
	timestamp time.Time
	raw       []byte // wire bytes as received, nil for locally built frames
}

// NewFrame builds a frame for transmission. The id is ignored for frame types
// that do not carry a frame ID.
func NewFrame(t FrameType, id uint8, payload []byte) *Frame {
	if !t.HasFrameID() {
		id = 0
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	f := &Frame{
		frameType: t,
		id:        id,
		payload:   p,
		timestamp: time.Now(),
	}
	f.checksum = CalculateChecksum(f.Data())
	return f
}

// Type returns the frame type
func (f *Frame) Type() FrameType {
	return f.frameType
}

// ID returns the frame ID. It is 0 for frame types without one and for
// requests that solicit no response.
func (f *Frame) ID() uint8 {
	return f.id
}

// HasID reports whether the frame type carries a frame ID byte.
func (f *Frame) HasID() bool {
	return f.frameType.HasFrameID()
}

// Payload returns the bytes following the frame type and frame ID.
func (f *Frame) Payload() []byte {
	return f.payload
}

// Checksum returns the frame checksum
func (f *Frame) Checksum() uint8 {
	return f.checksum
}

// Timestamp returns when the frame was built or decoded.
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Raw returns the wire bytes of a decoded frame, including the delimiter
// and any escape bytes.
func (f *Frame) Raw() []byte {
	return f.raw
}

// Data returns the checksummed section: type, frame ID if present, payload.
func (f *Frame) Data() []byte {
	n := 1 + len(f.payload)
	if f.HasID() {
		n++
	}
	data := make([]byte, 0, n)
	data = append(data, byte(f.frameType))
	if f.HasID() {
		data = append(data, f.id)
	}
	return append(data, f.payload...)
}

// Length returns the value of the length field for this frame.
func (f *Frame) Length() int {
	n := 1 + len(f.payload)
	if f.HasID() {
		n++
	}
	return n
}

// frameFromData splits a checksummed data section into a frame.
func frameFromData(data []byte, checksum uint8, raw []byte) *Frame {
	t := FrameType(data[0])
	f := &Frame{
		frameType: t,
		checksum:  checksum,
		timestamp: time.Now(),
		raw:       raw,
	}
	rest := data[1:]
	if t.HasFrameID() && len(rest) > 0 {
		f.id = rest[0]
		rest = rest[1:]
	}
	f.payload = make([]byte, len(rest))
	copy(f.payload, rest)
	return f
}
