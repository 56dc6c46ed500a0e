// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link is the host-side engine for an XBee module attached over a
// byte stream. It owns the operating mode, frames outbound requests,
// correlates responses by frame ID, and routes everything else to listeners.
package link

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// Transport is the byte stream to the local module.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	IsOpen() bool
}

// Conn is an open session with the local module. One goroutine reads the
// transport and feeds decoded frames to a second goroutine that resolves
// pending requests and routes the rest. Writes are serialised by a single
// lock. All methods are safe for concurrent use.
type Conn struct {
	t      Transport
	opts   options
	logger *slog.Logger

	mode     *modeMachine
	pending  *PendingTable
	router   *Router
	registry *Registry

	writeMu sync.Mutex

	statsMu sync.Mutex
	stats   *xbee.Statistics

	tapMu sync.Mutex
	tap   chan []byte

	receiveTimeout atomic.Int64

	inbound   chan *xbee.Frame
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open starts a session on t. The transport must already be open.
func Open(t Transport, opts ...Option) (*Conn, error) {
	if t == nil || !t.IsOpen() {
		return nil, ErrInterfaceNotOpen
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	registry := o.registry
	if registry == nil {
		registry = NewRegistry(o.protocol)
	}

	c := &Conn{
		t:        t,
		opts:     o,
		logger:   o.logger,
		mode:     newModeMachine(o.mode, o.logger),
		pending:  NewPendingTable(),
		registry: registry,
		stats:    xbee.NewStatistics(),
		inbound:  make(chan *xbee.Frame, inboundBuffer),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.router = newRouter(registry, o.logger)
	c.receiveTimeout.Store(int64(o.receiveTimeout))

	c.wg.Add(2)
	go c.readLoop()
	go c.dispatchLoop()

	c.logger.Info("connection opened", "mode", o.mode.String(), "protocol", o.protocol.String())
	return c, nil
}

// Close stops the session, closes the transport and completes every pending
// request with ErrTransportClosed.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		err = c.t.Close()
		c.pending.Shutdown(ErrTransportClosed)

		finished := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(DefaultCloseTimeout):
			c.logger.Warn("reader did not stop within close timeout")
		}
		c.logger.Info("connection closed")
	})
	return err
}

// Done is closed once the reader has stopped and every pending request has
// been completed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// IsOpen reports whether the session and its transport are open.
func (c *Conn) IsOpen() bool {
	select {
	case <-c.closing:
		return false
	case <-c.done:
		return false
	default:
	}
	return c.t.IsOpen()
}

// Protocol returns the protocol family of the local module.
func (c *Conn) Protocol() xbee.Protocol {
	return c.opts.protocol
}

// Registry returns the remote device registry.
func (c *Conn) Registry() *Registry {
	return c.registry
}

// Router returns the receive router for listener registration.
func (c *Conn) Router() *Router {
	return c.router
}

// ReceiveTimeout returns the default response deadline.
func (c *Conn) ReceiveTimeout() time.Duration {
	return time.Duration(c.receiveTimeout.Load())
}

// SetReceiveTimeout changes the default response deadline.
func (c *Conn) SetReceiveTimeout(d time.Duration) {
	if d > 0 {
		c.receiveTimeout.Store(int64(d))
	}
}

// Statistics returns a snapshot of the inbound frame statistics.
func (c *Conn) Statistics() xbee.Statistics {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return *c.stats
}

// Pending returns the number of requests awaiting a response.
func (c *Conn) Pending() int {
	return c.pending.Len()
}

// AddDataListener registers fn for data received from remote devices.
func (c *Conn) AddDataListener(fn DataListener) ListenerID {
	return c.router.AddDataListener(fn)
}

// RemoveDataListener unregisters a data listener.
func (c *Conn) RemoveDataListener(id ListenerID) bool {
	return c.router.RemoveDataListener(id)
}

// AddStatusListener registers fn for unsolicited frames that carry no data.
func (c *Conn) AddStatusListener(fn FrameListener) ListenerID {
	return c.router.AddStatusListener(fn)
}

// RemoveStatusListener unregisters a status listener.
func (c *Conn) RemoveStatusListener(id ListenerID) bool {
	return c.router.RemoveStatusListener(id)
}

// AddFrameListener registers fn for every decoded inbound frame, before
// correlation.
func (c *Conn) AddFrameListener(fn FrameListener) ListenerID {
	return c.router.AddFrameListener(fn)
}

// RemoveFrameListener unregisters a frame listener.
func (c *Conn) RemoveFrameListener(id ListenerID) bool {
	return c.router.RemoveFrameListener(id)
}

// writeFrame encodes f for mode and writes it under the writer lock.
func (c *Conn) writeFrame(f *xbee.Frame, mode xbee.OperatingMode) error {
	wire, err := xbee.Encode(f, mode)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.t.Write(wire); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	c.logger.Debug("frame sent", "type", f.Type().String(), "id", f.ID(), "len", len(wire))
	c.record(DirectionOut, f, wire)
	return nil
}

// writeRaw writes unframed bytes under the writer lock.
func (c *Conn) writeRaw(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.t.Write(b); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// WriteRaw writes bytes to the transport without framing. It is meant for
// transparent mode sessions.
func (c *Conn) WriteRaw(b []byte) error {
	if !c.IsOpen() {
		return ErrInterfaceNotOpen
	}
	return c.writeRaw(b)
}

func (c *Conn) record(dir Direction, f *xbee.Frame, wire []byte) {
	if c.opts.recorder == nil {
		return
	}
	if err := c.opts.recorder.Record(dir, f, wire); err != nil {
		c.logger.Warn("capture failed", "error", err)
	}
}

// checkFramed returns the codec mode for a framed operation, or the error
// the caller should see.
func (c *Conn) checkFramed(op string) (xbee.OperatingMode, error) {
	if !c.IsOpen() {
		return xbee.ModeUnknown, ErrInterfaceNotOpen
	}
	mode := c.mode.Mode()
	if !mode.IsFramed() {
		return mode, &ModeError{Mode: mode, Op: op}
	}
	return mode, nil
}

func (c *Conn) timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return c.ReceiveTimeout()
	}
	return d
}
