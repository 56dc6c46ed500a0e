// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records XBee frames to a CBOR file and reads them back.
// A capture file is a sequence of CBOR-encoded Records; several sessions
// may append to the same file.
package capture

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// Record is one captured frame. CBOR encoding uses integer keys.
type Record struct {
	Timestamp time.Time      `cbor:"1,keyasint"`
	SessionID string         `cbor:"2,keyasint"`
	Direction link.Direction `cbor:"3,keyasint"`
	FrameType uint8          `cbor:"4,keyasint"`
	FrameID   uint8          `cbor:"5,keyasint,omitempty"`
	Payload   []byte         `cbor:"6,keyasint"`
	Wire      []byte         `cbor:"7,keyasint,omitempty"`
}

// Frame rebuilds the captured frame.
func (r *Record) Frame() *xbee.Frame {
	return xbee.NewFrame(xbee.FrameType(r.FrameType), r.FrameID, r.Payload)
}

// String formats the record for display.
func (r *Record) String() string {
	arrow := "<-"
	if r.Direction == link.DirectionOut {
		arrow = "->"
	}
	f := r.Frame()
	return fmt.Sprintf("[%s] %s %s (0x%02X) id=%d len=%d\n%s",
		r.Timestamp.Format("15:04:05.000"), arrow, f.Type(), r.FrameType, r.FrameID, len(r.Payload),
		xbee.FormatPayload(f))
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR decoder mode: %v", err))
	}
}

// EncodeRecord encodes a record to CBOR.
func EncodeRecord(r Record) ([]byte, error) {
	return encMode.Marshal(r)
}

// DecodeRecord decodes a CBOR record.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := decMode.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}
