// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// BroadcastSegment is the device segment of the broadcast transmit topic.
const BroadcastSegment = "broadcast"

// Topics builds the bridge's topic names under a prefix.
//
//	<prefix>/status          bridge online/offline (retained)
//	<prefix>/modem           local modem status events
//	<prefix>/<addr64>/rx     data received from a device
//	<prefix>/<addr64>/tx     data to send to a device
//	<prefix>/broadcast/tx    data to broadcast
type Topics struct {
	prefix string
}

// NewTopics returns topic helpers for prefix. Surrounding slashes are
// trimmed.
func NewTopics(prefix string) Topics {
	return Topics{prefix: strings.Trim(prefix, "/")}
}

// Status is the retained bridge status topic.
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// Modem is the modem status topic.
func (t Topics) Modem() string {
	return t.prefix + "/modem"
}

// Receive is the topic data from addr is published on.
func (t Topics) Receive(addr xbee.Address64) string {
	return fmt.Sprintf("%s/%s/rx", t.prefix, addr)
}

// Transmit is the topic for data to send to addr.
func (t Topics) Transmit(addr xbee.Address64) string {
	return fmt.Sprintf("%s/%s/tx", t.prefix, addr)
}

// TransmitWildcard matches every transmit topic.
func (t Topics) TransmitWildcard() string {
	return t.prefix + "/+/tx"
}

// ParseTransmit extracts the destination from a transmit topic. broadcast
// is true for the broadcast topic.
func (t Topics) ParseTransmit(topic string) (addr xbee.Address64, broadcast bool, err error) {
	rest, ok := strings.CutPrefix(topic, t.prefix+"/")
	if !ok {
		return 0, false, fmt.Errorf("%w: %q outside prefix %q", ErrInvalidTopic, topic, t.prefix)
	}
	segment, ok := strings.CutSuffix(rest, "/tx")
	if !ok || segment == "" || strings.Contains(segment, "/") {
		return 0, false, fmt.Errorf("%w: %q is not a transmit topic", ErrInvalidTopic, topic)
	}
	if segment == BroadcastSegment {
		return xbee.Broadcast64, true, nil
	}
	addr, err = xbee.ParseAddress64(segment)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrInvalidTopic, err)
	}
	return addr, false, nil
}
