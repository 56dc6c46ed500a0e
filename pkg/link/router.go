// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

// DataListener receives data sent by remote devices. A returned error is
// logged and does not stop delivery to other listeners.
type DataListener func(msg *XBeeMessage) error

// FrameListener receives decoded frames.
type FrameListener func(f *xbee.Frame) error

type listener[T any] struct {
	id ListenerID
	fn T
}

// listenerSet keeps listeners in registration order.
type listenerSet[T any] struct {
	mu        sync.RWMutex
	listeners []listener[T]
}

func (s *listenerSet[T]) add(id ListenerID, fn T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener[T]{id: id, fn: fn})
}

func (s *listenerSet[T]) remove(id ListenerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot lets delivery run without the lock, so listeners may add or
// remove listeners.
func (s *listenerSet[T]) snapshot() []listener[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]listener[T], len(s.listeners))
	copy(out, s.listeners)
	return out
}

func (s *listenerSet[T]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Router delivers inbound frames that answer no pending request. Data from
// remote devices goes to data listeners; everything else goes to status
// listeners. Listeners run on the dispatch goroutine and must not block on
// a request through the same connection.
type Router struct {
	registry *Registry
	logger   *slog.Logger

	idMu   sync.Mutex
	nextID ListenerID

	data   listenerSet[DataListener]
	status listenerSet[FrameListener]
	frames listenerSet[FrameListener]
}

func newRouter(registry *Registry, logger *slog.Logger) *Router {
	return &Router{registry: registry, logger: logger}
}

func (r *Router) newID() ListenerID {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	r.nextID++
	return r.nextID
}

// AddDataListener registers fn for received data.
func (r *Router) AddDataListener(fn DataListener) ListenerID {
	id := r.newID()
	r.data.add(id, fn)
	return id
}

// RemoveDataListener unregisters a data listener.
func (r *Router) RemoveDataListener(id ListenerID) bool {
	return r.data.remove(id)
}

// AddStatusListener registers fn for unsolicited non-data frames.
func (r *Router) AddStatusListener(fn FrameListener) ListenerID {
	id := r.newID()
	r.status.add(id, fn)
	return id
}

// RemoveStatusListener unregisters a status listener.
func (r *Router) RemoveStatusListener(id ListenerID) bool {
	return r.status.remove(id)
}

// AddFrameListener registers fn for every decoded frame.
func (r *Router) AddFrameListener(fn FrameListener) ListenerID {
	id := r.newID()
	r.frames.add(id, fn)
	return id
}

// RemoveFrameListener unregisters a frame listener.
func (r *Router) RemoveFrameListener(id ListenerID) bool {
	return r.frames.remove(id)
}

// ListenerCount returns the number of data, status and frame listeners.
func (r *Router) ListenerCount() (data, status, frames int) {
	return r.data.len(), r.status.len(), r.frames.len()
}

// notifyFrame hands f to every frame listener.
func (r *Router) notifyFrame(f *xbee.Frame) {
	for _, l := range r.frames.snapshot() {
		r.call("frame", l.id, func() error { return l.fn(f) })
	}
}

// route delivers an unsolicited frame.
func (r *Router) route(f *xbee.Frame) {
	switch {
	case f.Type().IsReceiveData():
		if r.routeData(f) {
			return
		}
	case f.Type() == xbee.FrameNodeIdentifier:
		if info, err := xbee.ParseNodeIdentification(f); err != nil {
			r.logger.Debug("bad node identification", "error", err)
		} else if _, err := r.registry.Merge(info); err != nil {
			r.logger.Debug("node identification not registered", "error", err)
		}
	}
	r.notifyStatus(f)
}

// routeData turns a receive frame into a message for the data listeners.
// It reports false when the frame could not be attributed to a device.
func (r *Router) routeData(f *xbee.Frame) bool {
	pkt, err := xbee.ParseReceivePacket(f)
	if err != nil {
		r.logger.Debug("bad receive frame", "type", f.Type().String(), "error", err)
		return false
	}
	dev, err := r.registry.FindOrCreate(pkt.Source64, pkt.Source16, "")
	if err != nil {
		r.logger.Warn("receive frame from unusable address",
			"addr64", pkt.Source64.String(), "addr16", pkt.Source16.String(), "error", err)
		return false
	}

	msg := NewXBeeMessage(dev, pkt.Data, pkt.IsBroadcast(), f.Timestamp())
	for _, l := range r.data.snapshot() {
		r.call("data", l.id, func() error { return l.fn(msg) })
	}
	return true
}

func (r *Router) notifyStatus(f *xbee.Frame) {
	for _, l := range r.status.snapshot() {
		r.call("status", l.id, func() error { return l.fn(f) })
	}
}

// call runs one listener, containing errors and panics.
func (r *Router) call(kind string, id ListenerID, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("listener panicked", "kind", kind, "listener", uint64(id), "panic", fmt.Sprint(p))
		}
	}()
	if err := fn(); err != nil {
		r.logger.Warn("listener failed", "kind", kind, "listener", uint64(id), "error", err)
	}
}
