// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

// CalculateChecksum computes the frame checksum over the frame data (type,
// frame ID and payload): 0xFF minus the low byte of the sum.
func CalculateChecksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return 0xFF - sum
}

// VerifyChecksum reports whether data followed by checksum sums to 0xFF.
func VerifyChecksum(data []byte, checksum uint8) bool {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return sum+checksum == 0xFF
}
