// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// Registry is the table of remote devices keyed by 64-bit address, with a
// secondary index on known 16-bit addresses for devices heard only by
// their short address. Merges never discard what is already known.
type Registry struct {
	mu       sync.RWMutex
	protocol xbee.Protocol
	by64     map[xbee.Address64]*RemoteDevice
	by16     map[xbee.Address16]*RemoteDevice
	now      func() time.Time
}

// NewRegistry creates an empty registry for devices of family p.
func NewRegistry(p xbee.Protocol) *Registry {
	return &Registry{
		protocol: p,
		by64:     make(map[xbee.Address64]*RemoteDevice),
		by16:     make(map[xbee.Address16]*RemoteDevice),
		now:      time.Now,
	}
}

// Protocol returns the family new devices are tagged with.
func (r *Registry) Protocol() xbee.Protocol {
	return r.protocol
}

// FindOrCreate returns the device for the given addresses, creating it if
// needed. An existing entry learns any new address or node identifier; a
// device previously known only by its 16-bit address is promoted in place
// when its 64-bit address arrives. An empty nodeID leaves the stored one.
func (r *Registry) FindOrCreate(addr64 xbee.Address64, addr16 xbee.MaybeAddress16, nodeID string) (*RemoteDevice, error) {
	if err := xbee.ValidateRemoteAddressing(r.protocol, addr64, addr16); err != nil {
		return nil, err
	}
	if !addr16.IsKnown() {
		addr16 = xbee.No16()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	d := r.findLocked(addr64, addr16)
	if d == nil {
		d = newRemoteDevice(r.protocol, addr64, addr16, nodeID, now)
		if !addr64.IsUnknown() {
			r.by64[addr64] = d
		}
		if a, ok := addr16.Get(); ok {
			r.claim16Locked(d, a)
		}
		return d, nil
	}

	r.mergeLocked(d, addr64, addr16, nodeID, now)
	return d, nil
}

// findLocked resolves an existing device by 64-bit address first, then by
// 16-bit address. A 16-bit match belonging to a different 64-bit device is
// not a match.
func (r *Registry) findLocked(addr64 xbee.Address64, addr16 xbee.MaybeAddress16) *RemoteDevice {
	if !addr64.IsUnknown() {
		if d, ok := r.by64[addr64]; ok {
			return d
		}
	}
	a, ok := addr16.Get()
	if !ok {
		return nil
	}
	d, ok := r.by16[a]
	if !ok {
		return nil
	}
	if !addr64.IsUnknown() && !d.addr64.IsUnknown() {
		// The short address was reassigned to another node
		return nil
	}
	return d
}

// mergeLocked folds newly observed facts into d.
func (r *Registry) mergeLocked(d *RemoteDevice, addr64 xbee.Address64, addr16 xbee.MaybeAddress16, nodeID string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.addr64.IsUnknown() && !addr64.IsUnknown() {
		d.addr64 = addr64
		r.by64[addr64] = d
	}
	if a, ok := addr16.Get(); ok {
		if old, had := d.addr16.Get(); had && old != a {
			if cur := r.by16[old]; cur == d {
				delete(r.by16, old)
			}
		}
		d.addr16 = addr16
		r.claim16Locked(d, a)
	}
	if nodeID != "" {
		d.nodeID = nodeID
	}
	d.lastSeen = now
}

// claim16Locked maps a to d. A device that held a before no longer has a
// 16-bit address. d.mu may be held by the caller.
func (r *Registry) claim16Locked(d *RemoteDevice, a xbee.Address16) {
	if prev, ok := r.by16[a]; ok && prev != d {
		prev.mu.Lock()
		if cur, had := prev.addr16.Get(); had && cur == a {
			prev.addr16 = xbee.No16()
		}
		prev.mu.Unlock()
	}
	r.by16[a] = d
}

// Merge records a node reported by discovery or node identification.
func (r *Registry) Merge(info *xbee.NodeInfo) (*RemoteDevice, error) {
	d, err := r.FindOrCreate(info.Addr64, info.Addr16, info.NodeID)
	if err != nil {
		return nil, err
	}
	if info.DeviceType != xbee.DeviceTypeUnknown {
		d.mu.Lock()
		d.deviceType = info.DeviceType
		d.mu.Unlock()
	}
	return d, nil
}

// Lookup64 returns the device with the given 64-bit address.
func (r *Registry) Lookup64(addr xbee.Address64) (*RemoteDevice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.by64[addr]
	return d, ok
}

// Lookup16 returns the device currently using the given 16-bit address.
func (r *Registry) Lookup16(addr xbee.Address16) (*RemoteDevice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.by16[addr]
	return d, ok
}

// LookupNodeID returns the first device, in address order, whose node
// identifier matches id.
func (r *Registry) LookupNodeID(id string) (*RemoteDevice, bool) {
	for _, d := range r.Devices() {
		if d.NodeID() == id {
			return d, true
		}
	}
	return nil, false
}

// UpdateAddress16 changes the 16-bit address of the device with the given
// 64-bit address.
func (r *Registry) UpdateAddress16(addr64 xbee.Address64, addr16 xbee.Address16) error {
	if !xbee.Some16(addr16).IsKnown() {
		return fmt.Errorf("%w: %s is not a device address", xbee.ErrInvalidAddressing, addr16)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.by64[addr64]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, addr64)
	}
	r.mergeLocked(d, addr64, xbee.Some16(addr16), "", r.now())
	return nil
}

// Remove drops d from the registry. It reports false when d was not
// registered.
func (r *Registry) Remove(d *RemoteDevice) bool {
	if d == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	d.mu.RLock()
	addr64, addr16 := d.addr64, d.addr16
	d.mu.RUnlock()

	if cur, ok := r.by64[addr64]; ok && cur == d {
		delete(r.by64, addr64)
		removed = true
	}
	if a, ok := addr16.Get(); ok {
		if cur := r.by16[a]; cur == d {
			delete(r.by16, a)
			removed = true
		}
	}
	return removed
}

// Devices returns every device ordered by 64-bit address. Devices known
// only by their 16-bit address come last, ordered by that address.
func (r *Registry) Devices() []*RemoteDevice {
	r.mu.RLock()
	seen := make(map[*RemoteDevice]struct{}, len(r.by64))
	devices := make([]*RemoteDevice, 0, len(r.by64))
	for _, d := range r.by64 {
		seen[d] = struct{}{}
		devices = append(devices, d)
	}
	for _, d := range r.by16 {
		if _, dup := seen[d]; !dup {
			seen[d] = struct{}{}
			devices = append(devices, d)
		}
	}
	r.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		a, b := devices[i].Snapshot(), devices[j].Snapshot()
		if c := a.Addr64.Compare(b.Addr64); c != 0 {
			return c < 0
		}
		a16, _ := a.Addr16.Get()
		b16, _ := b.Addr16.Get()
		return a16 < b16
	})
	return devices
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	return len(r.Devices())
}

// Restore loads devices saved earlier, keeping their timestamps. Entries
// merge with devices already present.
func (r *Registry) Restore(snapshots []DeviceSnapshot) error {
	for _, s := range snapshots {
		if err := xbee.ValidateRemoteAddressing(r.protocol, s.Addr64, s.Addr16); err != nil {
			return fmt.Errorf("restore %s: %w", s.Addr64, err)
		}
		addr16 := s.Addr16
		if !addr16.IsKnown() {
			addr16 = xbee.No16()
		}

		r.mu.Lock()
		d := r.findLocked(s.Addr64, addr16)
		if d == nil {
			d = newRemoteDevice(r.protocol, s.Addr64, addr16, s.NodeID, s.FirstSeen)
			d.lastSeen = s.LastSeen
			if !s.Addr64.IsUnknown() {
				r.by64[s.Addr64] = d
			}
			if a, ok := addr16.Get(); ok {
				r.claim16Locked(d, a)
			}
		} else {
			seen := d.LastSeen()
			r.mergeLocked(d, s.Addr64, addr16, s.NodeID, seen)
			d.mu.Lock()
			if s.LastSeen.After(seen) {
				d.lastSeen = s.LastSeen
			}
			if !s.FirstSeen.IsZero() && s.FirstSeen.Before(d.firstSeen) {
				d.firstSeen = s.FirstSeen
			}
			d.mu.Unlock()
		}
		if s.DeviceType != xbee.DeviceTypeUnknown {
			d.mu.Lock()
			d.deviceType = s.DeviceType
			d.mu.Unlock()
		}
		r.mu.Unlock()
	}
	return nil
}
