// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package xbee implements the XBee API frame protocol used between a host and
// an XBee radio module over a serial link.
//
// Frames on the wire look like:
//
//	0x7E | length (u16, big-endian) | frame type | [frame ID] | payload | checksum
//
// The length counts the frame type, frame ID and payload. The checksum is
// 0xFF minus the low byte of the sum of those same bytes. In escaped API mode
// every byte after the start delimiter that collides with a control byte is
// sent as 0x7D followed by the byte XOR 0x20.
//
// This package provides the address model, frame encoding and resumable
// decoding, payload builders and parsers for the frame types the host uses,
// and human-readable formatting for diagnostics.
package xbee

// Protocol framing bytes
const (
	StartDelimiter = 0x7E
	EscapeByte     = 0x7D
	XON            = 0x11
	XOFF           = 0x13
	EscapeXor      = 0x20
)

// Frame size limits
const (
	HeaderSize   = 3 // delimiter + 2 length bytes
	ChecksumSize = 1

	// MaxFrameLength is the largest value the 16-bit length field can carry.
	MaxFrameLength = 0xFFFF

	// DefaultMaxFrameLength bounds what the decoder will buffer for a single
	// frame unless configured otherwise. Radio modules never emit frames
	// anywhere near the 16-bit limit.
	DefaultMaxFrameLength = 1024
)

// FrameType identifies the API frame variant carried in the first data byte.
type FrameType uint8

// Frame types - host to module
const (
	FrameTx64Request      FrameType = 0x00
	FrameTx16Request      FrameType = 0x01
	FrameATCommand        FrameType = 0x08
	FrameATCommandQueue   FrameType = 0x09
	FrameTransmitRequest  FrameType = 0x10
	FrameExplicitTransmit FrameType = 0x11
	FrameRemoteATCommand  FrameType = 0x17
)

// Frame types - module to host
const (
	FrameRx64              FrameType = 0x80
	FrameRx16              FrameType = 0x81
	FrameRx64IO            FrameType = 0x82
	FrameRx16IO            FrameType = 0x83
	FrameATCommandResponse FrameType = 0x88
	FrameTxStatus          FrameType = 0x89
	FrameModemStatus       FrameType = 0x8A
	FrameTransmitStatus    FrameType = 0x8B
	FrameReceivePacket     FrameType = 0x90
	FrameExplicitRx        FrameType = 0x91
	FrameIODataSample      FrameType = 0x92
	FrameNodeIdentifier    FrameType = 0x95
	FrameRemoteATResponse  FrameType = 0x97
)

// HasFrameID reports whether frames of this type carry a frame ID byte
// directly after the frame type.
func (t FrameType) HasFrameID() bool {
	switch t {
	case FrameTx64Request, FrameTx16Request, FrameATCommand, FrameATCommandQueue,
		FrameTransmitRequest, FrameExplicitTransmit, FrameRemoteATCommand,
		FrameATCommandResponse, FrameTxStatus, FrameTransmitStatus,
		FrameRemoteATResponse:
		return true
	}
	return false
}

// IsResponse reports whether the frame type answers a host request and is
// therefore correlated by frame ID.
func (t FrameType) IsResponse() bool {
	switch t {
	case FrameATCommandResponse, FrameTxStatus, FrameTransmitStatus, FrameRemoteATResponse:
		return true
	}
	return false
}

// IsReceiveData reports whether the frame type carries data from a remote node.
func (t FrameType) IsReceiveData() bool {
	switch t {
	case FrameReceivePacket, FrameExplicitRx, FrameRx64, FrameRx16:
		return true
	}
	return false
}

// String returns the frame type name
func (t FrameType) String() string {
	switch t {
	case FrameTx64Request:
		return "TX_64_REQUEST"
	case FrameTx16Request:
		return "TX_16_REQUEST"
	case FrameATCommand:
		return "AT_COMMAND"
	case FrameATCommandQueue:
		return "AT_COMMAND_QUEUE"
	case FrameTransmitRequest:
		return "TRANSMIT_REQUEST"
	case FrameExplicitTransmit:
		return "EXPLICIT_ADDRESSING_COMMAND"
	case FrameRemoteATCommand:
		return "REMOTE_AT_COMMAND_REQUEST"
	case FrameRx64:
		return "RX_64"
	case FrameRx16:
		return "RX_16"
	case FrameRx64IO:
		return "RX_IO_64"
	case FrameRx16IO:
		return "RX_IO_16"
	case FrameATCommandResponse:
		return "AT_COMMAND_RESPONSE"
	case FrameTxStatus:
		return "TX_STATUS"
	case FrameModemStatus:
		return "MODEM_STATUS"
	case FrameTransmitStatus:
		return "TRANSMIT_STATUS"
	case FrameReceivePacket:
		return "RECEIVE_PACKET"
	case FrameExplicitRx:
		return "EXPLICIT_RX_INDICATOR"
	case FrameIODataSample:
		return "IO_DATA_SAMPLE_RX_INDICATOR"
	case FrameNodeIdentifier:
		return "NODE_IDENTIFICATION_INDICATOR"
	case FrameRemoteATResponse:
		return "REMOTE_AT_COMMAND_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// Receive options bits
const (
	ReceiveOptionAcknowledged  = 0x01
	ReceiveOptionBroadcast     = 0x02
	ReceiveOptionPANBroadcast  = 0x04 // 802.15.4 only
	ReceiveOptionAPSEncrypted  = 0x20
	ReceiveOptionFromEndDevice = 0x40
)

// Transmit options
const (
	TransmitOptionNone       = 0x00
	TransmitOptionDisableAck = 0x01
)

// Remote AT command options
const (
	RemoteATOptionNone         = 0x00
	RemoteATOptionApplyChanges = 0x02
)

// BroadcastRadius 0 means "use the module's maximum hop count".
const BroadcastRadius = 0x00
