// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyUnknownFrameType
	AnomalyInvalidValue
	AnomalyInvalidCommand
	AnomalyChecksumError
	AnomalyDecodeError
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyLengthMismatch:
		return "LENGTH_MISMATCH"
	case AnomalyUnknownFrameType:
		return "UNKNOWN_FRAME_TYPE"
	case AnomalyInvalidValue:
		return "INVALID_VALUE"
	case AnomalyInvalidCommand:
		return "INVALID_COMMAND"
	case AnomalyChecksumError:
		return "CHECKSUM_ERROR"
	case AnomalyDecodeError:
		return "DECODE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// minimum payload sizes after the frame ID
var minPayload = map[FrameType]int{
	FrameTx64Request:       9,
	FrameTx16Request:       3,
	FrameATCommand:         2,
	FrameATCommandQueue:    2,
	FrameTransmitRequest:   12,
	FrameExplicitTransmit:  18,
	FrameRemoteATCommand:   13,
	FrameRx64:              10,
	FrameRx16:              4,
	FrameATCommandResponse: 3,
	FrameTxStatus:          1,
	FrameModemStatus:       1,
	FrameTransmitStatus:    5,
	FrameReceivePacket:     11,
	FrameExplicitRx:        17,
	FrameIODataSample:      12,
	FrameNodeIdentifier:    21,
	FrameRemoteATResponse:  13,
}

// ValidateFrame checks a decoded frame's structure and field values.
// Returns a slice of validation errors (empty if the frame is valid)
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}

	minLen, known := minPayload[f.Type()]
	if !known {
		return append(errors, ValidationError{
			Type:    AnomalyUnknownFrameType,
			Message: fmt.Sprintf("Unknown frame type 0x%02X", uint8(f.Type())),
			Details: map[string]interface{}{"type": uint8(f.Type())},
		})
	}

	if len(f.Payload()) < minLen {
		return append(errors, ValidationError{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s payload too short (expected at least %d bytes)", f.Type(), minLen),
			Details: map[string]interface{}{"length": len(f.Payload()), "minimum": minLen},
		})
	}

	switch f.Type() {
	case FrameATCommand, FrameATCommandQueue:
		errors = append(errors, validateCommandName(f.Payload()[0:2])...)
	case FrameRemoteATCommand:
		errors = append(errors, validateCommandName(f.Payload()[11:13])...)
	case FrameATCommandResponse:
		errors = append(errors, validateATResponse(f.Payload()[0:2], f.Payload()[2])...)
	case FrameRemoteATResponse:
		errors = append(errors, validateATResponse(f.Payload()[10:12], f.Payload()[12])...)
	case FrameModemStatus:
		errors = append(errors, validateModemStatus(ModemStatus(f.Payload()[0]))...)
	}

	return errors
}

// validateCommandName checks that a command name on the wire is two letters
func validateCommandName(name []byte) []ValidationError {
	if err := ValidateATCommandName(string(name)); err != nil {
		return []ValidationError{{
			Type:    AnomalyInvalidCommand,
			Message: fmt.Sprintf("Invalid AT command name %q", string(name)),
			Details: map[string]interface{}{"command": string(name)},
		}}
	}
	return nil
}

// validateATResponse checks command name and status byte
func validateATResponse(name []byte, status byte) []ValidationError {
	errors := validateCommandName(name)
	if s := ATCommandStatus(status & 0x0F); s > ATStatusTxFailure {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Invalid AT status=%d (max %d)", s, ATStatusTxFailure),
			Details: map[string]interface{}{"status": uint8(s), "max": uint8(ATStatusTxFailure)},
		})
	}
	return errors
}

// validateModemStatus flags event codes no firmware documents
func validateModemStatus(s ModemStatus) []ValidationError {
	if s >= ModemStackErrorBase {
		return nil
	}
	switch s {
	case ModemHardwareReset, ModemWatchdogReset, ModemJoinedNetwork, ModemDisassociated,
		ModemSyncLost, ModemCoordinatorRealignment, ModemCoordinatorStarted,
		ModemSecurityKeyUpdated, ModemNetworkWokeUp, ModemNetworkSleeping,
		ModemVoltageExceeded, ModemConfigChangedWhileJoin:
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyInvalidValue,
		Message: fmt.Sprintf("Unknown modem status=0x%02X", uint8(s)),
		Details: map[string]interface{}{"status": uint8(s)},
	}}
}
