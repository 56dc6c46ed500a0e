// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"log/slog"
	"time"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// Defaults
const (
	DefaultReceiveTimeout = 2 * time.Second
	DefaultFrameTimeout   = 500 * time.Millisecond
	DefaultGuardTime      = 1 * time.Second
	DefaultProbeTimeout   = 1 * time.Second
	DefaultCloseTimeout   = 2 * time.Second

	readRetryDelay = 50 * time.Millisecond
	inboundBuffer  = 64
)

// Direction tells a Recorder which way a frame travelled.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

// String returns the direction name
func (d Direction) String() string {
	if d == DirectionOut {
		return "out"
	}
	return "in"
}

// Recorder receives a copy of every frame written or decoded.
type Recorder interface {
	Record(dir Direction, f *xbee.Frame, wire []byte) error
}

type options struct {
	logger         *slog.Logger
	mode           xbee.OperatingMode
	protocol       xbee.Protocol
	receiveTimeout time.Duration
	frameTimeout   time.Duration
	guardTime      time.Duration
	probeTimeout   time.Duration
	maxFrameLength int
	recorder       Recorder
	onDecodeError  func(error)
	registry       *Registry
}

func defaultOptions() options {
	return options{
		logger:         slog.New(slog.DiscardHandler),
		mode:           xbee.ModeUnknown,
		protocol:       xbee.ProtocolUnknown,
		receiveTimeout: DefaultReceiveTimeout,
		frameTimeout:   DefaultFrameTimeout,
		guardTime:      DefaultGuardTime,
		probeTimeout:   DefaultProbeTimeout,
		maxFrameLength: xbee.DefaultMaxFrameLength,
	}
}

// Option configures a Conn.
type Option func(*options)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOperatingMode confirms the module's operating mode at open, skipping
// the need to probe.
func WithOperatingMode(m xbee.OperatingMode) Option {
	return func(o *options) { o.mode = m }
}

// WithProtocol sets the protocol family of the local module.
func WithProtocol(p xbee.Protocol) Option {
	return func(o *options) { o.protocol = p }
}

// WithReceiveTimeout sets the default response deadline for commands.
func WithReceiveTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.receiveTimeout = d
		}
	}
}

// WithFrameTimeout sets how long a partial frame may stall before the
// reader abandons it.
func WithFrameTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.frameTimeout = d
		}
	}
}

// WithGuardTime sets the silence kept around the command mode sequence.
func WithGuardTime(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.guardTime = d
		}
	}
}

// WithProbeTimeout sets the response deadline for each mode probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.probeTimeout = d
		}
	}
}

// WithMaxFrameLength bounds the frames the reader will buffer.
func WithMaxFrameLength(n int) Option {
	return func(o *options) { o.maxFrameLength = n }
}

// WithRecorder sends a copy of every frame to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithDecodeErrorHandler is called for every checksum or format error the
// reader recovers from.
func WithDecodeErrorHandler(fn func(error)) Option {
	return func(o *options) { o.onDecodeError = fn }
}

// WithRegistry shares an existing device registry, for example one restored
// from storage.
func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}
