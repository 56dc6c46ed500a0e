// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// entry is one in-flight request.
type entry struct {
	id     uint8
	stream bool
	frames chan *xbee.Frame
	done   chan struct{}
	once   sync.Once
	err    error
	timer  *time.Timer
}

// complete finishes the entry exactly once.
func (e *entry) complete(err error) {
	e.once.Do(func() {
		e.err = err
		if e.timer != nil {
			e.timer.Stop()
		}
		close(e.done)
	})
}

// PendingTable correlates outbound requests with inbound responses by
// frame ID. IDs 1..255 are allocated cyclically, skipping IDs still in
// flight. Each entry completes exactly once: by a response, by expiry, by
// cancellation or by shutdown.
type PendingTable struct {
	mu       sync.Mutex
	entries  map[uint8]*entry
	next     uint8
	shutdown error
}

// NewPendingTable creates an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{
		entries: make(map[uint8]*entry),
		next:    1,
	}
}

// Register reserves id for a single response. Expiry after timeout completes
// the waiter with ErrTimeout and frees the ID.
func (p *PendingTable) Register(id uint8, timeout time.Duration) (*Waiter, error) {
	return p.register(id, timeout, false)
}

// RegisterStream reserves id for every response that arrives until timeout.
// Used where one request produces many responses sharing a frame ID.
func (p *PendingTable) RegisterStream(id uint8, timeout time.Duration) (*Waiter, error) {
	return p.register(id, timeout, true)
}

// Allocate picks the next free ID and registers it.
func (p *PendingTable) Allocate(timeout time.Duration) (*Waiter, error) {
	return p.allocate(timeout, false)
}

// AllocateStream picks the next free ID and registers it as a stream.
func (p *PendingTable) AllocateStream(timeout time.Duration) (*Waiter, error) {
	return p.allocate(timeout, true)
}

func (p *PendingTable) allocate(timeout time.Duration, stream bool) (*Waiter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown != nil {
		return nil, p.shutdown
	}
	for i := 0; i < 255; i++ {
		id := p.next
		p.next++
		if p.next == 0 {
			p.next = 1
		}
		if _, busy := p.entries[id]; !busy {
			return p.addLocked(id, timeout, stream), nil
		}
	}
	return nil, ErrNoFrameID
}

func (p *PendingTable) register(id uint8, timeout time.Duration, stream bool) (*Waiter, error) {
	if id == 0 {
		return nil, fmt.Errorf("frame ID 0 solicits no response: %w", ErrNoFrameID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown != nil {
		return nil, p.shutdown
	}
	if _, busy := p.entries[id]; busy {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateFrameID, id)
	}
	return p.addLocked(id, timeout, stream), nil
}

func (p *PendingTable) addLocked(id uint8, timeout time.Duration, stream bool) *Waiter {
	e := &entry{
		id:     id,
		stream: stream,
		frames: make(chan *xbee.Frame, 1),
		done:   make(chan struct{}),
	}
	if stream {
		e.frames = make(chan *xbee.Frame, 64)
	}
	p.entries[id] = e
	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() { p.expire(e) })
	}
	return &Waiter{table: p, e: e}
}

// expire completes e with ErrTimeout if it is still the entry for its ID.
func (p *PendingTable) expire(e *entry) {
	p.mu.Lock()
	if cur, ok := p.entries[e.id]; ok && cur == e {
		delete(p.entries, e.id)
	}
	p.mu.Unlock()

	if e.stream {
		// Streams end normally when their window closes
		e.complete(nil)
		return
	}
	e.complete(ErrTimeout)
}

// remove deregisters e without completing it.
func (p *PendingTable) remove(e *entry) {
	p.mu.Lock()
	if cur, ok := p.entries[e.id]; ok && cur == e {
		delete(p.entries, e.id)
	}
	p.mu.Unlock()
}

// Resolve delivers f to the waiter registered under id. It reports false
// when no entry is pending for that ID.
func (p *PendingTable) Resolve(id uint8, f *xbee.Frame) bool {
	p.mu.Lock()
	e, ok := p.entries[id]
	if ok && !e.stream {
		delete(p.entries, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}

	if e.stream {
		select {
		case e.frames <- f:
		default:
			// Slow consumer; newest response is dropped
		}
		return true
	}

	select {
	case e.frames <- f:
	default:
	}
	e.complete(nil)
	return true
}

// Shutdown completes every pending entry with err and rejects new
// registrations with the same error.
func (p *PendingTable) Shutdown(err error) {
	p.mu.Lock()
	if p.shutdown == nil {
		p.shutdown = err
	}
	entries := p.entries
	p.entries = make(map[uint8]*entry)
	p.mu.Unlock()

	for _, e := range entries {
		e.complete(err)
	}
}

// Len returns the number of entries in flight.
func (p *PendingTable) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// IsPending reports whether id is in flight.
func (p *PendingTable) IsPending(id uint8) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[id]
	return ok
}

// Waiter is the caller's handle on a pending entry.
type Waiter struct {
	table *PendingTable
	e     *entry
}

// ID returns the frame ID the entry was registered under.
func (w *Waiter) ID() uint8 {
	return w.e.id
}

// Wait blocks until the single response arrives. It returns ErrTimeout on
// expiry, the shutdown error on closure, or ctx.Err() on cancellation, which
// also frees the ID.
func (w *Waiter) Wait(ctx context.Context) (*xbee.Frame, error) {
	cancelled := false
	select {
	case <-w.e.done:
	case <-ctx.Done():
		w.Cancel()
		cancelled = true
	}

	// A response may have won the race with cancellation
	select {
	case f := <-w.e.frames:
		return f, nil
	default:
	}
	if cancelled && w.e.err == context.Canceled {
		return nil, ctx.Err()
	}
	if w.e.err != nil {
		return nil, w.e.err
	}
	return nil, ErrTimeout
}

// Next returns the next response of a stream entry. It returns (nil, nil)
// once the stream's window has closed and all responses were read.
func (w *Waiter) Next(ctx context.Context) (*xbee.Frame, error) {
	select {
	case f := <-w.e.frames:
		return f, nil
	default:
	}

	select {
	case f := <-w.e.frames:
		return f, nil
	case <-w.e.done:
		select {
		case f := <-w.e.frames:
			return f, nil
		default:
		}
		return nil, w.e.err
	case <-ctx.Done():
		w.Cancel()
		return nil, ctx.Err()
	}
}

// Cancel deregisters the entry. A later response for its ID is routed as
// unsolicited.
func (w *Waiter) Cancel() {
	w.table.remove(w.e)
	w.e.complete(context.Canceled)
}
