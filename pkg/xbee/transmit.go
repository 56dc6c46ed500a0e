// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import "fmt"

// DeliveryStatus is the delivery result of a transmit request.
type DeliveryStatus uint8

const (
	DeliverySuccess             DeliveryStatus = 0x00
	DeliveryMACAckFailure       DeliveryStatus = 0x01
	DeliveryCCAFailure          DeliveryStatus = 0x02
	DeliveryPurged              DeliveryStatus = 0x03
	DeliveryInvalidEndpoint     DeliveryStatus = 0x15
	DeliveryNetworkAckFailure   DeliveryStatus = 0x21
	DeliveryNotJoined           DeliveryStatus = 0x22
	DeliverySelfAddressed       DeliveryStatus = 0x23
	DeliveryAddressNotFound     DeliveryStatus = 0x24
	DeliveryRouteNotFound       DeliveryStatus = 0x25
	DeliveryBroadcastRelayFail  DeliveryStatus = 0x26
	DeliveryInvalidBindingIndex DeliveryStatus = 0x2B
	DeliveryResourceError       DeliveryStatus = 0x2C
	DeliveryPayloadTooLarge     DeliveryStatus = 0x74
	DeliveryIndirectMessage     DeliveryStatus = 0x75
)

// String returns the delivery status name
func (s DeliveryStatus) String() string {
	switch s {
	case DeliverySuccess:
		return "SUCCESS"
	case DeliveryMACAckFailure:
		return "MAC_ACK_FAILURE"
	case DeliveryCCAFailure:
		return "CCA_FAILURE"
	case DeliveryPurged:
		return "PURGED"
	case DeliveryInvalidEndpoint:
		return "INVALID_ENDPOINT"
	case DeliveryNetworkAckFailure:
		return "NETWORK_ACK_FAILURE"
	case DeliveryNotJoined:
		return "NOT_JOINED"
	case DeliverySelfAddressed:
		return "SELF_ADDRESSED"
	case DeliveryAddressNotFound:
		return "ADDRESS_NOT_FOUND"
	case DeliveryRouteNotFound:
		return "ROUTE_NOT_FOUND"
	case DeliveryBroadcastRelayFail:
		return "BROADCAST_RELAY_FAILURE"
	case DeliveryInvalidBindingIndex:
		return "INVALID_BINDING_INDEX"
	case DeliveryResourceError:
		return "RESOURCE_ERROR"
	case DeliveryPayloadTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case DeliveryIndirectMessage:
		return "INDIRECT_MESSAGE_UNREQUESTED"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(s))
	}
}

// TransmitStatus is a decoded 0x8B transmit status or 0x89 TX status.
type TransmitStatus struct {
	FrameID   uint8
	Dest16    MaybeAddress16
	Retries   uint8
	Delivery  DeliveryStatus
	Discovery uint8
}

// OK reports whether the transmission was delivered.
func (s *TransmitStatus) OK() bool {
	return s.Delivery == DeliverySuccess
}

// ParseTransmitStatus decodes a transmit status frame.
func ParseTransmitStatus(f *Frame) (*TransmitStatus, error) {
	p := f.Payload()
	s := &TransmitStatus{FrameID: f.ID()}

	switch f.Type() {
	case FrameTransmitStatus:
		// addr16(2) retries(1) delivery(1) discovery(1)
		if len(p) < 5 {
			return nil, fmt.Errorf("%w: TRANSMIT_STATUS needs 5 bytes, got %d", ErrShortPayload, len(p))
		}
		a16, _ := Address16FromBytes(p[0:2])
		s.Dest16 = Some16(a16)
		s.Retries = p[2]
		s.Delivery = DeliveryStatus(p[3])
		s.Discovery = p[4]
	case FrameTxStatus:
		if len(p) < 1 {
			return nil, fmt.Errorf("%w: TX_STATUS needs 1 byte", ErrShortPayload)
		}
		s.Dest16 = No16()
		s.Delivery = DeliveryStatus(p[0])
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedFrameType, f.Type())
	}
	return s, nil
}

// BuildTransmitRequest builds a 0x10 transmit request.
func BuildTransmitRequest(id uint8, dest64 Address64, dest16 Address16, radius, options uint8, data []byte) *Frame {
	payload := make([]byte, 0, 12+len(data))
	payload = append(payload, dest64.Bytes()...)
	payload = append(payload, dest16.Bytes()...)
	payload = append(payload, radius, options)
	payload = append(payload, data...)
	return NewFrame(FrameTransmitRequest, id, payload)
}

// BuildTx64Request builds a 0x00 802.15.4 transmit request to a 64-bit address.
func BuildTx64Request(id uint8, dest64 Address64, options uint8, data []byte) *Frame {
	payload := make([]byte, 0, 9+len(data))
	payload = append(payload, dest64.Bytes()...)
	payload = append(payload, options)
	payload = append(payload, data...)
	return NewFrame(FrameTx64Request, id, payload)
}

// BuildTx16Request builds a 0x01 802.15.4 transmit request to a 16-bit address.
func BuildTx16Request(id uint8, dest16 Address16, options uint8, data []byte) *Frame {
	payload := make([]byte, 0, 3+len(data))
	payload = append(payload, dest16.Bytes()...)
	payload = append(payload, options)
	payload = append(payload, data...)
	return NewFrame(FrameTx16Request, id, payload)
}

// BuildTransmitStatus builds a 0x8B transmit status frame.
func BuildTransmitStatus(id uint8, dest16 Address16, retries uint8, delivery DeliveryStatus, discovery uint8) *Frame {
	payload := append(dest16.Bytes(), retries, byte(delivery), discovery)
	return NewFrame(FrameTransmitStatus, id, payload)
}
