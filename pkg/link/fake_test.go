// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// fakeTransport is a scripted in-memory module. Bytes passed to inject are
// returned by Read; every Write is recorded and handed to onWrite.
type fakeTransport struct {
	rx     chan []byte
	closed chan struct{}
	eof    chan struct{}

	closeOnce sync.Once
	eofOnce   sync.Once

	mu       sync.Mutex
	leftover []byte
	writes   [][]byte
	onWrite  func(b []byte)
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		rx:     make(chan []byte, 256),
		closed: make(chan struct{}),
		eof:    make(chan struct{}),
	}
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	f.mu.Lock()
	if len(f.leftover) > 0 {
		n := copy(p, f.leftover)
		f.leftover = f.leftover[n:]
		f.mu.Unlock()
		return n, nil
	}
	f.mu.Unlock()

	select {
	case b := <-f.rx:
		n := copy(p, b)
		if n < len(b) {
			f.mu.Lock()
			f.leftover = append(f.leftover, b[n:]...)
			f.mu.Unlock()
		}
		return n, nil
	case <-f.eof:
		return 0, io.EOF
	case <-f.closed:
		return 0, errors.New("port closed")
	}
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	if f.writeErr != nil {
		err := f.writeErr
		f.mu.Unlock()
		return 0, err
	}
	b := append([]byte(nil), p...)
	f.writes = append(f.writes, b)
	fn := f.onWrite
	f.mu.Unlock()

	if fn != nil {
		fn(b)
	}
	return len(p), nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	select {
	case <-f.closed:
		return false
	default:
		return true
	}
}

// hangUp makes the next Read return io.EOF, as when a device is unplugged.
func (f *fakeTransport) hangUp() {
	f.eofOnce.Do(func() { close(f.eof) })
}

func (f *fakeTransport) inject(b []byte) {
	f.rx <- append([]byte(nil), b...)
}

func (f *fakeTransport) injectFrame(t *testing.T, fr *xbee.Frame, mode xbee.OperatingMode) {
	t.Helper()
	wire, err := xbee.Encode(fr, mode)
	require.NoError(t, err)
	f.inject(wire)
}

func (f *fakeTransport) setOnWrite(fn func(b []byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onWrite = fn
}

func (f *fakeTransport) setWriteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *fakeTransport) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// respond answers every framed request decoded in mode with the frames fn
// returns, encoded in the same mode.
func (f *fakeTransport) respond(mode xbee.OperatingMode, fn func(req *xbee.Frame) []*xbee.Frame) {
	f.setOnWrite(func(b []byte) {
		frames, _ := xbee.Decode(b, mode)
		for _, req := range frames {
			for _, reply := range fn(req) {
				wire, err := xbee.Encode(reply, mode)
				if err != nil {
					panic(err)
				}
				f.inject(wire)
			}
		}
	})
}

// writtenFrames decodes every write made so far.
func writtenFrames(t *testing.T, f *fakeTransport, mode xbee.OperatingMode) []*xbee.Frame {
	t.Helper()
	var out []*xbee.Frame
	for _, w := range f.written() {
		frames, errs := xbee.Decode(w, mode)
		require.Empty(t, errs)
		out = append(out, frames...)
	}
	return out
}

// answerAT replies to local AT commands through fn, which returns the status
// and value for a command name.
func answerAT(fn func(name string, value []byte) (xbee.ATCommandStatus, []byte)) func(req *xbee.Frame) []*xbee.Frame {
	return func(req *xbee.Frame) []*xbee.Frame {
		if req.Type() != xbee.FrameATCommand {
			return nil
		}
		name, value, err := xbee.ParseATCommand(req)
		if err != nil {
			return nil
		}
		status, reply := fn(name, value)
		return []*xbee.Frame{xbee.BuildATCommandResponse(req.ID(), name, status, reply)}
	}
}

// openTestConn opens a connection on ft in API mode with short timeouts.
func openTestConn(t *testing.T, ft *fakeTransport, opts ...Option) *Conn {
	t.Helper()
	base := []Option{
		WithOperatingMode(xbee.ModeAPI),
		WithReceiveTimeout(500 * time.Millisecond),
		WithFrameTimeout(100 * time.Millisecond),
	}
	c, err := Open(ft, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// collector gathers values delivered to listeners from the dispatch
// goroutine.
type collector[T any] struct {
	mu    sync.Mutex
	items []T
}

func (c *collector[T]) add(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, v)
}

func (c *collector[T]) get() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

func (c *collector[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
