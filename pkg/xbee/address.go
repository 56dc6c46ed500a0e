// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Address64 is the permanent 64-bit hardware address of a radio module.
type Address64 uint64

// Address16 is the short network address a module may be assigned.
type Address16 uint16

// Reserved 64-bit addresses
const (
	Coordinator64 Address64 = 0x0000000000000000
	Broadcast64   Address64 = 0x000000000000FFFF
	Unknown64     Address64 = 0xFFFFFFFFFFFFFFFF
)

// Reserved 16-bit addresses
const (
	Broadcast16 Address16 = 0xFFFF
	Unknown16   Address16 = 0xFFFE
)

// ParseAddress64 parses a hexadecimal 64-bit address. A leading "0x" is
// optional and up to 16 hex digits are accepted.
func ParseAddress64(s string) (Address64, error) {
	v, err := parseHexAddress(s, 64)
	if err != nil {
		return 0, err
	}
	return Address64(v), nil
}

// ParseAddress16 parses a hexadecimal 16-bit address.
func ParseAddress16(s string) (Address16, error) {
	v, err := parseHexAddress(s, 16)
	if err != nil {
		return 0, err
	}
	return Address16(v), nil
}

func parseHexAddress(s string, bits int) (uint64, error) {
	h := strings.TrimSpace(s)
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	if h == "" {
		return 0, fmt.Errorf("empty address %q", s)
	}
	if len(h) > bits/4 {
		return 0, fmt.Errorf("address %q longer than %d hex digits", s, bits/4)
	}
	v, err := strconv.ParseUint(h, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return v, nil
}

// Address64FromBytes reads a big-endian 64-bit address from b.
func Address64FromBytes(b []byte) (Address64, error) {
	if len(b) < 8 {
		return 0, fmt.Errorf("64-bit address needs 8 bytes, got %d", len(b))
	}
	return Address64(binary.BigEndian.Uint64(b)), nil
}

// Address16FromBytes reads a big-endian 16-bit address from b.
func Address16FromBytes(b []byte) (Address16, error) {
	if len(b) < 2 {
		return 0, fmt.Errorf("16-bit address needs 2 bytes, got %d", len(b))
	}
	return Address16(binary.BigEndian.Uint16(b)), nil
}

// Bytes returns the big-endian wire form of the address.
func (a Address64) Bytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(a))
	return b
}

// String renders the address as 16 upper-case hex digits.
func (a Address64) String() string {
	return fmt.Sprintf("%016X", uint64(a))
}

// Compare orders addresses numerically, returning -1, 0 or +1.
func (a Address64) Compare(b Address64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// IsUnknown reports whether a is the "not yet known" sentinel.
func (a Address64) IsUnknown() bool { return a == Unknown64 }

// IsBroadcast reports whether a is the broadcast sentinel.
func (a Address64) IsBroadcast() bool { return a == Broadcast64 }

// Bytes returns the big-endian wire form of the address.
func (a Address16) Bytes() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(a))
	return b
}

// String renders the address as 4 upper-case hex digits.
func (a Address16) String() string {
	return fmt.Sprintf("%04X", uint16(a))
}

// IsUnknown reports whether a is the "not yet known" sentinel.
func (a Address16) IsUnknown() bool { return a == Unknown16 }

// IsBroadcast reports whether a is the broadcast sentinel.
func (a Address16) IsBroadcast() bool { return a == Broadcast16 }

// MaybeAddress16 is a 16-bit address that may be absent. A device that has
// never been seen with a short address has none; this is distinct from the
// Unknown16 sentinel the radio reports on the wire.
type MaybeAddress16 struct {
	addr Address16
	ok   bool
}

// Some16 wraps a present 16-bit address.
func Some16(a Address16) MaybeAddress16 {
	return MaybeAddress16{addr: a, ok: true}
}

// No16 is the absent 16-bit address.
func No16() MaybeAddress16 {
	return MaybeAddress16{}
}

// Get returns the address and whether it is present.
func (m MaybeAddress16) Get() (Address16, bool) {
	return m.addr, m.ok
}

// IsKnown reports whether the address is present and not a reserved sentinel.
func (m MaybeAddress16) IsKnown() bool {
	return m.ok && !m.addr.IsUnknown() && !m.addr.IsBroadcast()
}

// String renders the address, or "-" when absent.
func (m MaybeAddress16) String() string {
	if !m.ok {
		return "-"
	}
	return m.addr.String()
}
