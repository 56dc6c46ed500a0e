// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import (
	"fmt"
	"strings"
)

// OperatingMode is how the local module talks over its serial link.
type OperatingMode int

const (
	ModeUnknown OperatingMode = iota
	ModeTransparentAT
	ModeAPI
	ModeAPIEscaped
)

// String returns the mode name
func (m OperatingMode) String() string {
	switch m {
	case ModeTransparentAT:
		return "AT"
	case ModeAPI:
		return "API"
	case ModeAPIEscaped:
		return "API_ESCAPED"
	default:
		return "UNKNOWN"
	}
}

// IsFramed reports whether frames can be exchanged in this mode.
func (m OperatingMode) IsFramed() bool {
	return m == ModeAPI || m == ModeAPIEscaped
}

// APValue returns the value of the AP parameter that selects this mode.
func (m OperatingMode) APValue() (byte, bool) {
	switch m {
	case ModeTransparentAT:
		return 0, true
	case ModeAPI:
		return 1, true
	case ModeAPIEscaped:
		return 2, true
	}
	return 0, false
}

// ModeFromAPValue maps an AP parameter value to an operating mode.
func ModeFromAPValue(v byte) OperatingMode {
	switch v {
	case 0:
		return ModeTransparentAT
	case 1:
		return ModeAPI
	case 2:
		return ModeAPIEscaped
	}
	return ModeUnknown
}

// ParseOperatingMode parses a mode name as used in configuration files.
func ParseOperatingMode(s string) (OperatingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "unknown":
		return ModeUnknown, nil
	case "at", "transparent":
		return ModeTransparentAT, nil
	case "api":
		return ModeAPI, nil
	case "api_escaped", "api2", "escaped":
		return ModeAPIEscaped, nil
	}
	return ModeUnknown, fmt.Errorf("unknown operating mode %q", s)
}
