// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// parseATValue turns a command-line parameter value into bytes. "0x" hex
// is sent as big-endian bytes, anything else as text.
func parseATValue(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	h, ok := strings.CutPrefix(strings.ToLower(s), "0x")
	if !ok {
		return []byte(s), nil
	}
	if h == "" {
		return nil, fmt.Errorf("empty hex value %q", s)
	}
	if len(h)%2 == 1 {
		h = "0" + h
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value %q: %w", s, err)
	}
	return b, nil
}

// splitATLine splits console input such as "ATNI Yoda", "NI Yoda" or
// "NI" into a command name and its value.
func splitATLine(line string) (name, value string) {
	line = strings.TrimSpace(line)
	if len(line) >= 4 && strings.EqualFold(line[:2], "AT") {
		line = strings.TrimSpace(line[2:])
	}
	if len(line) <= 2 {
		return strings.ToUpper(line), ""
	}
	return strings.ToUpper(line[:2]), strings.TrimSpace(line[2:])
}
