// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import (
	"errors"
	"fmt"
	"strings"
)

// Protocol is the radio protocol family of a module. Behavior differences
// between families are data, checked by the functions below.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolZigBee
	ProtocolRaw802154
	ProtocolDigiMesh
	ProtocolDigiPoint
	ProtocolSmartEnergy
)

// ErrInvalidAddressing is returned when an address combination is not
// usable for a protocol family.
var ErrInvalidAddressing = errors.New("invalid addressing for protocol")

// String returns the protocol name
func (p Protocol) String() string {
	switch p {
	case ProtocolZigBee:
		return "ZIGBEE"
	case ProtocolRaw802154:
		return "RAW_802_15_4"
	case ProtocolDigiMesh:
		return "DIGI_MESH"
	case ProtocolDigiPoint:
		return "DIGI_POINT"
	case ProtocolSmartEnergy:
		return "SMART_ENERGY"
	default:
		return "UNKNOWN"
	}
}

// ParseProtocol parses a protocol family name as used in configuration.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", ".", "", " ", "").Replace(s)) {
	case "", "unknown", "auto":
		return ProtocolUnknown, nil
	case "zigbee":
		return ProtocolZigBee, nil
	case "802154", "raw802154":
		return ProtocolRaw802154, nil
	case "digimesh":
		return ProtocolDigiMesh, nil
	case "digipoint":
		return ProtocolDigiPoint, nil
	case "smartenergy":
		return ProtocolSmartEnergy, nil
	}
	return ProtocolUnknown, fmt.Errorf("unknown protocol %q", s)
}

// UsesLegacyTransmit reports whether data is sent with the 802.15.4
// 0x00/0x01 transmit requests instead of 0x10.
func (p Protocol) UsesLegacyTransmit() bool {
	return p == ProtocolRaw802154
}

// Supports16BitAddressing reports whether devices of this family may be
// reached by a 16-bit address alone.
func (p Protocol) Supports16BitAddressing() bool {
	return p == ProtocolRaw802154 || p == ProtocolUnknown
}

// HasRSSIInDiscovery reports whether node discovery responses carry RSSI
// directly after the serial number instead of the ZigBee-style trailer.
func (p Protocol) HasRSSIInDiscovery() bool {
	return p == ProtocolRaw802154
}

// ValidateRemoteAddressing checks that a remote device can be built for
// family p from the given addresses. At least one usable address is always
// required. ZigBee-style families need the 64-bit address; 802.15.4 devices
// may be known by their 16-bit address alone.
func ValidateRemoteAddressing(p Protocol, addr64 Address64, addr16 MaybeAddress16) error {
	has64 := !addr64.IsUnknown()
	has16 := addr16.IsKnown()

	if !has64 && !has16 {
		return fmt.Errorf("%w: %s device needs a 64-bit or 16-bit address", ErrInvalidAddressing, p)
	}
	if !has64 && !p.Supports16BitAddressing() {
		return fmt.Errorf("%w: %s device needs a 64-bit address", ErrInvalidAddressing, p)
	}
	if addr64.IsBroadcast() {
		return fmt.Errorf("%w: broadcast address is not a device", ErrInvalidAddressing)
	}
	if a, ok := addr16.Get(); ok && a.IsBroadcast() {
		return fmt.Errorf("%w: broadcast address is not a device", ErrInvalidAddressing)
	}
	return nil
}
