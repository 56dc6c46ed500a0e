// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// RemoteDevice is a node the local module has heard from or discovered.
// The registry owns devices; the pointer stays valid when addresses change.
type RemoteDevice struct {
	mu         sync.RWMutex
	addr64     xbee.Address64
	addr16     xbee.MaybeAddress16
	nodeID     string
	protocol   xbee.Protocol
	deviceType xbee.DeviceType
	firstSeen  time.Time
	lastSeen   time.Time
}

func newRemoteDevice(p xbee.Protocol, addr64 xbee.Address64, addr16 xbee.MaybeAddress16, nodeID string, now time.Time) *RemoteDevice {
	return &RemoteDevice{
		addr64:     addr64,
		addr16:     addr16,
		nodeID:     nodeID,
		protocol:   p,
		deviceType: xbee.DeviceTypeUnknown,
		firstSeen:  now,
		lastSeen:   now,
	}
}

// Addr64 returns the 64-bit address, or xbee.Unknown64 for a device only
// known by its 16-bit address.
func (d *RemoteDevice) Addr64() xbee.Address64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.addr64
}

// Addr16 returns the 16-bit network address, which may be absent.
func (d *RemoteDevice) Addr16() xbee.MaybeAddress16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.addr16
}

// NodeID returns the node identifier string (NI).
func (d *RemoteDevice) NodeID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nodeID
}

// SetNodeID replaces the node identifier.
func (d *RemoteDevice) SetNodeID(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodeID = id
}

// Protocol returns the device's protocol family.
func (d *RemoteDevice) Protocol() xbee.Protocol {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.protocol
}

// DeviceType returns the role reported by discovery, if any.
func (d *RemoteDevice) DeviceType() xbee.DeviceType {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.deviceType
}

// FirstSeen returns when the registry first learned of the device.
func (d *RemoteDevice) FirstSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.firstSeen
}

// LastSeen returns when the device was last heard from or discovered.
func (d *RemoteDevice) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}

func (d *RemoteDevice) String() string {
	s := d.Snapshot()
	if s.NodeID != "" {
		return fmt.Sprintf("%s (%s/%s)", s.NodeID, s.Addr64, s.Addr16)
	}
	return fmt.Sprintf("%s/%s", s.Addr64, s.Addr16)
}

// DeviceSnapshot is a point-in-time copy of a RemoteDevice, used for
// listing and persistence.
type DeviceSnapshot struct {
	Addr64     xbee.Address64
	Addr16     xbee.MaybeAddress16
	NodeID     string
	Protocol   xbee.Protocol
	DeviceType xbee.DeviceType
	FirstSeen  time.Time
	LastSeen   time.Time
}

// Snapshot copies the device's current state.
func (d *RemoteDevice) Snapshot() DeviceSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return DeviceSnapshot{
		Addr64:     d.addr64,
		Addr16:     d.addr16,
		NodeID:     d.nodeID,
		Protocol:   d.protocol,
		DeviceType: d.deviceType,
		FirstSeen:  d.firstSeen,
		LastSeen:   d.lastSeen,
	}
}

// XBeeMessage is data received from a remote device. It is immutable.
type XBeeMessage struct {
	device    *RemoteDevice
	data      []byte
	broadcast bool
	timestamp time.Time
}

// NewXBeeMessage creates a message. data is copied.
func NewXBeeMessage(dev *RemoteDevice, data []byte, broadcast bool, ts time.Time) *XBeeMessage {
	return &XBeeMessage{
		device:    dev,
		data:      append([]byte(nil), data...),
		broadcast: broadcast,
		timestamp: ts,
	}
}

// Device returns the sender.
func (m *XBeeMessage) Device() *RemoteDevice { return m.device }

// Data returns a copy of the payload.
func (m *XBeeMessage) Data() []byte { return append([]byte(nil), m.data...) }

// IsBroadcast reports whether the data was sent as a broadcast.
func (m *XBeeMessage) IsBroadcast() bool { return m.broadcast }

// Timestamp returns when the frame carrying the data was decoded.
func (m *XBeeMessage) Timestamp() time.Time { return m.timestamp }

func (m *XBeeMessage) String() string {
	kind := "unicast"
	if m.broadcast {
		kind = "broadcast"
	}
	return fmt.Sprintf("%s from %s: %s", kind, m.device, xbee.FormatValue(m.data))
}
