// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"io"
	"time"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// readLoop reads the transport until it closes, decoding frames in the
// current codec mode and handing them to the dispatcher.
func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer close(c.inbound)

	wire := c.mode.Wire()
	dec := xbee.NewDecoder(wire, xbee.WithMaxFrameLength(c.opts.maxFrameLength))
	buf := make([]byte, 128)
	lastByte := time.Now()

	for {
		n, err := c.t.Read(buf)

		if mode := c.mode.Wire(); mode != wire {
			// Bytes of the old framing are meaningless now
			wire = mode
			dec.Reset()
			dec.SetMode(wire)
		}

		if n > 0 {
			chunk := buf[:n]
			now := time.Now()

			if !wire.IsFramed() {
				c.offerRaw(chunk)
			} else {
				if dec.InFrame() && now.Sub(lastByte) > c.opts.frameTimeout {
					c.decodeError(dec.Abandon())
				}
				dec.Feed(chunk)
				c.drain(dec)
			}
			lastByte = now
		} else if dec.InFrame() && time.Since(lastByte) > c.opts.frameTimeout {
			c.decodeError(dec.Abandon())
		}

		if err != nil {
			if c.isClosing() || errors.Is(err, io.EOF) || !c.t.IsOpen() {
				c.logger.Info("reader stopped", "reason", err.Error())
				return
			}
			c.logger.Debug("transient read error", "error", err)
			select {
			case <-time.After(readRetryDelay):
			case <-c.closing:
				return
			}
		}
	}
}

// drain pulls every complete frame out of the decoder.
func (c *Conn) drain(dec *xbee.Decoder) {
	before := dec.Skipped()
	defer func() {
		if skipped := dec.Skipped() - before; skipped > 0 {
			c.statsMu.Lock()
			c.stats.AddSkipped(skipped)
			c.statsMu.Unlock()
		}
	}()

	for {
		f, err := dec.Next()
		if err == xbee.ErrIncomplete {
			return
		}
		if err != nil {
			c.decodeError(err)
			continue
		}
		select {
		case c.inbound <- f:
		case <-c.closing:
			return
		}
	}
}

// decodeError counts, logs and reports a recovered codec error.
func (c *Conn) decodeError(err error) {
	if err == nil {
		return
	}
	c.statsMu.Lock()
	c.stats.Update(nil, err, nil)
	c.statsMu.Unlock()

	c.logger.Debug("decode error", "error", err)
	if c.opts.onDecodeError != nil {
		c.opts.onDecodeError(err)
	}
}

// dispatchLoop consumes decoded frames until the reader stops, then fails
// every request still pending.
func (c *Conn) dispatchLoop() {
	defer c.wg.Done()
	defer close(c.done)

	for f := range c.inbound {
		c.dispatch(f)
	}
	c.pending.Shutdown(ErrTransportClosed)
}

// dispatch resolves a pending request if f answers one and routes it
// otherwise.
func (c *Conn) dispatch(f *xbee.Frame) {
	c.record(DirectionIn, f, f.Raw())

	c.statsMu.Lock()
	c.stats.Update(f, nil, xbee.ValidateFrame(f))
	c.statsMu.Unlock()

	c.router.notifyFrame(f)

	if f.HasID() && f.ID() != 0 && c.pending.Resolve(f.ID(), f) {
		return
	}
	c.router.route(f)
}

func (c *Conn) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

// openTap starts copying raw chunks read in an unframed mode to the
// returned channel.
func (c *Conn) openTap() <-chan []byte {
	c.tapMu.Lock()
	defer c.tapMu.Unlock()
	c.tap = make(chan []byte, 16)
	return c.tap
}

func (c *Conn) closeTap() {
	c.tapMu.Lock()
	defer c.tapMu.Unlock()
	c.tap = nil
}

// offerRaw hands an unframed chunk to the tap, dropping it if nobody reads.
func (c *Conn) offerRaw(chunk []byte) {
	c.tapMu.Lock()
	defer c.tapMu.Unlock()
	if c.tap == nil {
		return
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	select {
	case c.tap <- cp:
	default:
	}
}

// OpenRawTap exposes unframed bytes read while the module is in transparent
// mode. Call the returned function to stop.
func (c *Conn) OpenRawTap() (<-chan []byte, func()) {
	return c.openTap(), c.closeTap
}
