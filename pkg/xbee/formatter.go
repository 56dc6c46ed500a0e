// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import (
	"fmt"
	"strings"
	"unicode"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")

	result := fmt.Sprintf("[%s] %s (0x%02X)", timestamp, f.Type(), uint8(f.Type()))
	if f.HasID() {
		result += fmt.Sprintf(" id=%d", f.ID())
	}
	result += fmt.Sprintf(" len=%d\n", f.Length())
	result += FormatPayload(f)

	return result
}

// FormatPayload formats the payload of a frame based on its type
func FormatPayload(f *Frame) string {
	switch f.Type() {
	case FrameATCommand, FrameATCommandQueue:
		name, value, err := ParseATCommand(f)
		if err != nil {
			return formatParseError(err)
		}
		return fmt.Sprintf("  Command: %s, Value: %s\n", name, FormatValue(value))

	case FrameRemoteATCommand:
		p := f.Payload()
		if len(p) < 13 {
			return formatParseError(fmt.Errorf("%w: %d bytes", ErrShortPayload, len(p)))
		}
		dest64, _ := Address64FromBytes(p[0:8])
		dest16, _ := Address16FromBytes(p[8:10])
		return fmt.Sprintf("  Dest: %s/%s, Options: 0x%02X, Command: %s, Value: %s\n",
			dest64, dest16, p[10], string(p[11:13]), FormatValue(p[13:]))

	case FrameATCommandResponse, FrameRemoteATResponse:
		r, err := ParseATCommandResponse(f)
		if err != nil {
			return formatParseError(err)
		}
		status := "(none)"
		if r.HasStatus {
			status = r.Status.String()
		}
		result := ""
		if r.Remote {
			result = fmt.Sprintf("  Source: %s/%s\n", r.Source64, r.Source16)
		}
		return result + fmt.Sprintf("  Command: %s, Status: %s, Value: %s\n", r.Command, status, FormatValue(r.Value))

	case FrameTransmitRequest:
		p := f.Payload()
		if len(p) < 12 {
			return formatParseError(fmt.Errorf("%w: %d bytes", ErrShortPayload, len(p)))
		}
		dest64, _ := Address64FromBytes(p[0:8])
		dest16, _ := Address16FromBytes(p[8:10])
		return fmt.Sprintf("  Dest: %s/%s, Radius: %d, Options: 0x%02X, Data: %s\n",
			dest64, dest16, p[10], p[11], FormatValue(p[12:]))

	case FrameTx64Request:
		p := f.Payload()
		if len(p) < 9 {
			return formatParseError(fmt.Errorf("%w: %d bytes", ErrShortPayload, len(p)))
		}
		dest64, _ := Address64FromBytes(p[0:8])
		return fmt.Sprintf("  Dest: %s, Options: 0x%02X, Data: %s\n", dest64, p[8], FormatValue(p[9:]))

	case FrameTx16Request:
		p := f.Payload()
		if len(p) < 3 {
			return formatParseError(fmt.Errorf("%w: %d bytes", ErrShortPayload, len(p)))
		}
		dest16, _ := Address16FromBytes(p[0:2])
		return fmt.Sprintf("  Dest: %s, Options: 0x%02X, Data: %s\n", dest16, p[2], FormatValue(p[3:]))

	case FrameTransmitStatus, FrameTxStatus:
		s, err := ParseTransmitStatus(f)
		if err != nil {
			return formatParseError(err)
		}
		if f.Type() == FrameTxStatus {
			return fmt.Sprintf("  Delivery: %s\n", s.Delivery)
		}
		return fmt.Sprintf("  Dest16: %s, Retries: %d, Delivery: %s, Discovery: 0x%02X\n",
			s.Dest16, s.Retries, s.Delivery, s.Discovery)

	case FrameModemStatus:
		s, err := ParseModemStatus(f)
		if err != nil {
			return formatParseError(err)
		}
		return fmt.Sprintf("  Status: %s (0x%02X)\n", s, uint8(s))

	case FrameReceivePacket, FrameExplicitRx, FrameRx64, FrameRx16:
		r, err := ParseReceivePacket(f)
		if err != nil {
			return formatParseError(err)
		}
		result := fmt.Sprintf("  Source: %s/%s, Options: 0x%02X", r.Source64, r.Source16, r.Options)
		if r.IsBroadcast() {
			result += " (broadcast)"
		}
		if r.HasRSSI {
			result += fmt.Sprintf(", RSSI: -%d dBm", r.RSSI)
		}
		if f.Type() == FrameExplicitRx {
			result += fmt.Sprintf(", EP: %02X->%02X, Cluster: 0x%04X, Profile: 0x%04X",
				r.SourceEndpoint, r.DestEndpoint, r.ClusterID, r.ProfileID)
		}
		return result + fmt.Sprintf("\n  Data: %s\n", FormatValue(r.Data))

	case FrameNodeIdentifier:
		n, err := ParseNodeIdentification(f)
		if err != nil {
			return formatParseError(err)
		}
		return fmt.Sprintf("  Node: %s/%s %q, Type: %s\n", n.Addr64, n.Addr16, n.NodeID, n.DeviceType)

	default:
		if len(f.Payload()) == 0 {
			return "  (no payload)\n"
		}
		return fmt.Sprintf("  Payload: %s\n", FormatHex(f.Payload()))
	}
}

// FormatValue renders a byte value as quoted text when printable and as
// hex otherwise.
func FormatValue(b []byte) string {
	if len(b) == 0 {
		return "(empty)"
	}
	if isPrintable(b) {
		return fmt.Sprintf("%q", string(b))
	}
	return FormatHex(b)
}

// FormatHex formats bytes as space-separated upper-case hex
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

func formatParseError(err error) string {
	return fmt.Sprintf("  (parse error: %v)\n", err)
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c > unicode.MaxASCII || !unicode.IsPrint(rune(c)) {
			return false
		}
	}
	return true
}
