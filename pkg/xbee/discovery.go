// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import (
	"bytes"
	"fmt"
)

// DeviceType is the network role reported during node discovery.
type DeviceType uint8

const (
	DeviceCoordinator DeviceType = 0x00
	DeviceRouter      DeviceType = 0x01
	DeviceEndDevice   DeviceType = 0x02
	DeviceTypeUnknown DeviceType = 0xFF
)

// String returns the device type name
func (t DeviceType) String() string {
	switch t {
	case DeviceCoordinator:
		return "COORDINATOR"
	case DeviceRouter:
		return "ROUTER"
	case DeviceEndDevice:
		return "END_DEVICE"
	default:
		return "UNKNOWN"
	}
}

// NodeInfo describes a node reported by node discovery (ND) or by a node
// identification indicator (0x95).
type NodeInfo struct {
	Addr64         Address64
	Addr16         MaybeAddress16
	NodeID         string
	Parent16       MaybeAddress16
	DeviceType     DeviceType
	Status         uint8
	ProfileID      uint16
	ManufacturerID uint16
	RSSI           uint8
	HasRSSI        bool
}

// ParseNodeDiscovery decodes the value of an ND response. The layout after
// the node identifier differs for 802.15.4 modules.
func ParseNodeDiscovery(value []byte, p Protocol) (*NodeInfo, error) {
	// MY(2) SH(4) SL(4)
	if len(value) < 10 {
		return nil, fmt.Errorf("%w: ND response needs 10 address bytes, got %d", ErrShortPayload, len(value))
	}
	n := &NodeInfo{DeviceType: DeviceTypeUnknown}
	a16, _ := Address16FromBytes(value[0:2])
	n.Addr16 = Some16(a16)
	n.Addr64, _ = Address64FromBytes(value[2:10])
	rest := value[10:]

	if p.HasRSSIInDiscovery() {
		if len(rest) < 1 {
			return nil, fmt.Errorf("%w: ND response missing RSSI", ErrShortPayload)
		}
		n.RSSI = rest[0]
		n.HasRSSI = true
		n.NodeID, _ = readNodeID(rest[1:])
		return n, nil
	}

	id, rest := readNodeID(rest)
	n.NodeID = id
	n.Parent16 = No16()

	// parent(2) type(1) status(1) profile(2) manufacturer(2), all optional
	if len(rest) >= 2 {
		parent, _ := Address16FromBytes(rest[0:2])
		n.Parent16 = Some16(parent)
	}
	if len(rest) >= 3 {
		n.DeviceType = DeviceType(rest[2])
	}
	if len(rest) >= 4 {
		n.Status = rest[3]
	}
	if len(rest) >= 6 {
		n.ProfileID = uint16(rest[4])<<8 | uint16(rest[5])
	}
	if len(rest) >= 8 {
		n.ManufacturerID = uint16(rest[6])<<8 | uint16(rest[7])
	}
	return n, nil
}

// ParseNodeIdentification decodes a 0x95 node identification indicator.
// The returned NodeInfo describes the remote node that identified itself.
func ParseNodeIdentification(f *Frame) (*NodeInfo, error) {
	if f.Type() != FrameNodeIdentifier {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedFrameType, f.Type())
	}
	// src64(8) src16(2) options(1) remote16(2) remote64(8) NI\0 ...
	p := f.Payload()
	if len(p) < 21 {
		return nil, fmt.Errorf("%w: NODE_IDENTIFICATION needs 21 bytes, got %d", ErrShortPayload, len(p))
	}
	n := &NodeInfo{DeviceType: DeviceTypeUnknown, Parent16: No16()}
	a16, _ := Address16FromBytes(p[11:13])
	n.Addr16 = Some16(a16)
	n.Addr64, _ = Address64FromBytes(p[13:21])

	id, rest := readNodeID(p[21:])
	n.NodeID = id
	if len(rest) >= 2 {
		parent, _ := Address16FromBytes(rest[0:2])
		n.Parent16 = Some16(parent)
	}
	if len(rest) >= 3 {
		n.DeviceType = DeviceType(rest[2])
	}
	if len(rest) >= 6 {
		n.ProfileID = uint16(rest[4])<<8 | uint16(rest[5])
	}
	if len(rest) >= 8 {
		n.ManufacturerID = uint16(rest[6])<<8 | uint16(rest[7])
	}
	return n, nil
}

// BuildNodeDiscoveryValue builds an ND response value. Used by simulators
// and tests.
func BuildNodeDiscoveryValue(n *NodeInfo, p Protocol) []byte {
	a16, ok := n.Addr16.Get()
	if !ok {
		a16 = Unknown16
	}
	v := append(a16.Bytes(), n.Addr64.Bytes()...)
	if p.HasRSSIInDiscovery() {
		v = append(v, n.RSSI)
		v = append(v, n.NodeID...)
		return append(v, 0)
	}
	v = append(v, n.NodeID...)
	v = append(v, 0)
	parent, ok := n.Parent16.Get()
	if !ok {
		parent = Unknown16
	}
	v = append(v, parent.Bytes()...)
	v = append(v, byte(n.DeviceType), n.Status,
		byte(n.ProfileID>>8), byte(n.ProfileID),
		byte(n.ManufacturerID>>8), byte(n.ManufacturerID))
	return v
}

// readNodeID splits a NUL-terminated node identifier off b. A missing
// terminator takes the whole slice.
func readNodeID(b []byte) (string, []byte) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return string(b), nil
	}
	return string(b[:i]), b[i+1:]
}
