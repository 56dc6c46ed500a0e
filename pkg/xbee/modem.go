// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import "fmt"

// ModemStatus is the event code of a 0x8A modem status frame.
type ModemStatus uint8

const (
	ModemHardwareReset          ModemStatus = 0x00
	ModemWatchdogReset          ModemStatus = 0x01
	ModemJoinedNetwork          ModemStatus = 0x02
	ModemDisassociated          ModemStatus = 0x03
	ModemSyncLost               ModemStatus = 0x04
	ModemCoordinatorRealignment ModemStatus = 0x05
	ModemCoordinatorStarted     ModemStatus = 0x06
	ModemSecurityKeyUpdated     ModemStatus = 0x07
	ModemNetworkWokeUp          ModemStatus = 0x0B
	ModemNetworkSleeping        ModemStatus = 0x0C
	ModemVoltageExceeded        ModemStatus = 0x0D
	ModemConfigChangedWhileJoin ModemStatus = 0x11
	ModemStackErrorBase         ModemStatus = 0x80
)

// String returns the modem status name
func (s ModemStatus) String() string {
	switch s {
	case ModemHardwareReset:
		return "HARDWARE_RESET"
	case ModemWatchdogReset:
		return "WATCHDOG_TIMER_RESET"
	case ModemJoinedNetwork:
		return "JOINED_NETWORK"
	case ModemDisassociated:
		return "DISASSOCIATED"
	case ModemSyncLost:
		return "SYNCHRONIZATION_LOST"
	case ModemCoordinatorRealignment:
		return "COORDINATOR_REALIGNMENT"
	case ModemCoordinatorStarted:
		return "COORDINATOR_STARTED"
	case ModemSecurityKeyUpdated:
		return "NETWORK_SECURITY_KEY_UPDATED"
	case ModemNetworkWokeUp:
		return "NETWORK_WOKE_UP"
	case ModemNetworkSleeping:
		return "NETWORK_WENT_TO_SLEEP"
	case ModemVoltageExceeded:
		return "VOLTAGE_SUPPLY_LIMIT_EXCEEDED"
	case ModemConfigChangedWhileJoin:
		return "MODEM_CONFIG_CHANGED_WHILE_JOINING"
	}
	if s >= ModemStackErrorBase {
		return fmt.Sprintf("STACK_ERROR(0x%02X)", uint8(s))
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(s))
}

// ParseModemStatus decodes a modem status frame.
func ParseModemStatus(f *Frame) (ModemStatus, error) {
	if f.Type() != FrameModemStatus {
		return 0, fmt.Errorf("%w: %s", ErrUnexpectedFrameType, f.Type())
	}
	if len(f.Payload()) < 1 {
		return 0, fmt.Errorf("%w: MODEM_STATUS needs 1 byte", ErrShortPayload)
	}
	return ModemStatus(f.Payload()[0]), nil
}

// BuildModemStatus builds a 0x8A modem status frame.
func BuildModemStatus(s ModemStatus) *Frame {
	return NewFrame(FrameModemStatus, 0, []byte{byte(s)})
}
