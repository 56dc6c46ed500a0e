// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import "fmt"

// ReceivePacket is the decoded form of a data-bearing frame from a remote
// node: 0x90 receive packet, 0x91 explicit receive, 0x80/0x81 802.15.4 receive.
type ReceivePacket struct {
	Source64 Address64
	Source16 MaybeAddress16
	Options  uint8
	RSSI     uint8 // 802.15.4 frames only
	HasRSSI  bool
	Data     []byte

	// Explicit addressing, 0x91 only
	SourceEndpoint uint8
	DestEndpoint   uint8
	ClusterID      uint16
	ProfileID      uint16
}

// IsBroadcast reports whether the packet was sent as a broadcast.
func (r *ReceivePacket) IsBroadcast() bool {
	if r.HasRSSI {
		return r.Options&(ReceiveOptionBroadcast|ReceiveOptionPANBroadcast) != 0
	}
	return r.Options&ReceiveOptionBroadcast != 0
}

// ParseReceivePacket decodes a receive-data frame.
func ParseReceivePacket(f *Frame) (*ReceivePacket, error) {
	p := f.Payload()
	r := &ReceivePacket{}

	switch f.Type() {
	case FrameReceivePacket:
		// addr64(8) addr16(2) options(1) data
		if len(p) < 11 {
			return nil, fmt.Errorf("%w: RECEIVE_PACKET needs 11 bytes, got %d", ErrShortPayload, len(p))
		}
		r.Source64, _ = Address64FromBytes(p[0:8])
		a16, _ := Address16FromBytes(p[8:10])
		r.Source16 = Some16(a16)
		r.Options = p[10]
		r.Data = p[11:]

	case FrameExplicitRx:
		// addr64(8) addr16(2) srcEP(1) dstEP(1) cluster(2) profile(2) options(1) data
		if len(p) < 17 {
			return nil, fmt.Errorf("%w: EXPLICIT_RX_INDICATOR needs 17 bytes, got %d", ErrShortPayload, len(p))
		}
		r.Source64, _ = Address64FromBytes(p[0:8])
		a16, _ := Address16FromBytes(p[8:10])
		r.Source16 = Some16(a16)
		r.SourceEndpoint = p[10]
		r.DestEndpoint = p[11]
		r.ClusterID = uint16(p[12])<<8 | uint16(p[13])
		r.ProfileID = uint16(p[14])<<8 | uint16(p[15])
		r.Options = p[16]
		r.Data = p[17:]

	case FrameRx64:
		// addr64(8) rssi(1) options(1) data
		if len(p) < 10 {
			return nil, fmt.Errorf("%w: RX_64 needs 10 bytes, got %d", ErrShortPayload, len(p))
		}
		r.Source64, _ = Address64FromBytes(p[0:8])
		r.Source16 = No16()
		r.RSSI = p[8]
		r.HasRSSI = true
		r.Options = p[9]
		r.Data = p[10:]

	case FrameRx16:
		// addr16(2) rssi(1) options(1) data
		if len(p) < 4 {
			return nil, fmt.Errorf("%w: RX_16 needs 4 bytes, got %d", ErrShortPayload, len(p))
		}
		r.Source64 = Unknown64
		a16, _ := Address16FromBytes(p[0:2])
		r.Source16 = Some16(a16)
		r.RSSI = p[2]
		r.HasRSSI = true
		r.Options = p[3]
		r.Data = p[4:]

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedFrameType, f.Type())
	}

	r.Data = append([]byte(nil), r.Data...)
	return r, nil
}

// BuildReceivePacket builds a 0x90 receive frame as a module would send it.
func BuildReceivePacket(src64 Address64, src16 Address16, options uint8, data []byte) *Frame {
	payload := make([]byte, 0, 11+len(data))
	payload = append(payload, src64.Bytes()...)
	payload = append(payload, src16.Bytes()...)
	payload = append(payload, options)
	payload = append(payload, data...)
	return NewFrame(FrameReceivePacket, 0, payload)
}

// BuildRx16Packet builds a 0x81 802.15.4 receive frame.
func BuildRx16Packet(src16 Address16, rssi, options uint8, data []byte) *Frame {
	payload := make([]byte, 0, 4+len(data))
	payload = append(payload, src16.Bytes()...)
	payload = append(payload, rssi, options)
	payload = append(payload, data...)
	return NewFrame(FrameRx16, 0, payload)
}

// BuildRx64Packet builds a 0x80 802.15.4 receive frame.
func BuildRx64Packet(src64 Address64, rssi, options uint8, data []byte) *Frame {
	payload := make([]byte, 0, 10+len(data))
	payload = append(payload, src64.Bytes()...)
	payload = append(payload, rssi, options)
	payload = append(payload, data...)
	return NewFrame(FrameRx64, 0, payload)
}
