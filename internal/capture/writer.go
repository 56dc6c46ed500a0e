// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// ErrClosed is returned when recording to a closed Writer.
var ErrClosed = errors.New("capture writer closed")

// Writer appends frames to a capture. It implements link.Recorder and is
// safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	closer  io.Closer
	encoder *cbor.Encoder
	session string
	closed  bool
	count   uint64
}

// Create opens path for appending, creating it if needed.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return NewWriter(f), nil
}

// NewWriter writes records to w under a new session ID. Close closes w if
// it is an io.Closer.
func NewWriter(w io.Writer) *Writer {
	cw := &Writer{
		encoder: encMode.NewEncoder(w),
		session: uuid.New().String(),
	}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}
	return cw
}

// SessionID identifies the records written by this Writer.
func (w *Writer) SessionID() string {
	return w.session
}

// Count returns the number of records written.
func (w *Writer) Count() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Record writes one frame.
func (w *Writer) Record(dir link.Direction, f *xbee.Frame, wire []byte) error {
	ts := f.Timestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := Record{
		Timestamp: ts,
		SessionID: w.session,
		Direction: dir,
		FrameType: uint8(f.Type()),
		FrameID:   f.ID(),
		Payload:   f.Payload(),
		Wire:      wire,
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if err := w.encoder.Encode(rec); err != nil {
		return err
	}
	w.count++
	return nil
}

// Close stops recording. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

var _ link.Recorder = (*Writer)(nil)
