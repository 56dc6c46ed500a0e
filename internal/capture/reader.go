// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/xbeestat/pkg/link"
)

// Filter selects records. Zero fields match everything.
type Filter struct {
	SessionID string
	Direction *link.Direction
	FrameType *uint8
}

func (f *Filter) matches(r *Record) bool {
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if f.Direction != nil && r.Direction != *f.Direction {
		return false
	}
	if f.FrameType != nil && r.FrameType != *f.FrameType {
		return false
	}
	return true
}

// Reader streams records from a capture.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	filter  Filter
}

// Open opens a capture file for reading.
func Open(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewReader(f, filter)
	r.closer = f
	return r, nil
}

// NewReader reads records from r.
func NewReader(r io.Reader, filter Filter) *Reader {
	return &Reader{decoder: decMode.NewDecoder(r), filter: filter}
}

// Next returns the next matching record, or io.EOF at the end.
func (r *Reader) Next() (*Record, error) {
	for {
		var rec Record
		if err := r.decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				// Truncated final record from an interrupted session
				return nil, io.EOF
			}
			return nil, err
		}
		if r.filter.matches(&rec) {
			return &rec, nil
		}
	}
}

// ReadAll returns every remaining matching record.
func (r *Reader) ReadAll() ([]*Record, error) {
	var out []*Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
