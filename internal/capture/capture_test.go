// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

func atRequest(t *testing.T) *xbee.Frame {
	t.Helper()
	f, err := xbee.BuildATCommand(1, "NI", nil, false)
	require.NoError(t, err)
	return f
}

func TestWriterReader_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.cbor")

	w, err := Create(path)
	require.NoError(t, err)

	req := atRequest(t)
	wire, err := xbee.Encode(req, xbee.ModeAPI)
	require.NoError(t, err)
	require.NoError(t, w.Record(link.DirectionOut, req, wire))
	require.NoError(t, w.Record(link.DirectionIn, xbee.BuildATCommandResponse(1, "NI", xbee.ATStatusOK, []byte("Yoda")), nil))
	assert.Equal(t, uint64(2), w.Count())
	require.NoError(t, w.Close())

	r, err := Open(path, Filter{})
	require.NoError(t, err)
	defer r.Close()

	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, w.SessionID(), records[0].SessionID)
	assert.Equal(t, link.DirectionOut, records[0].Direction)
	assert.Equal(t, wire, records[0].Wire)
	assert.Equal(t, req.Data(), records[0].Frame().Data())

	resp, err := xbee.ParseATCommandResponse(records[1].Frame())
	require.NoError(t, err)
	assert.Equal(t, []byte("Yoda"), resp.Value)
	assert.Contains(t, records[1].String(), "AT_COMMAND_RESPONSE")
}

func TestReader_Filter(t *testing.T) {
	var buf bytes.Buffer
	first := NewWriter(&buf)
	second := NewWriter(&buf)
	assert.NotEqual(t, first.SessionID(), second.SessionID())

	require.NoError(t, first.Record(link.DirectionOut, atRequest(t), nil))
	require.NoError(t, second.Record(link.DirectionIn, xbee.BuildModemStatus(xbee.ModemHardwareReset), nil))
	require.NoError(t, first.Record(link.DirectionIn, xbee.BuildModemStatus(xbee.ModemJoinedNetwork), nil))

	records, err := NewReader(bytes.NewReader(buf.Bytes()), Filter{SessionID: first.SessionID()}).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 2)

	in := link.DirectionIn
	records, err = NewReader(bytes.NewReader(buf.Bytes()), Filter{Direction: &in}).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 2)

	modem := uint8(xbee.FrameModemStatus)
	records, err = NewReader(bytes.NewReader(buf.Bytes()), Filter{FrameType: &modem, SessionID: second.SessionID()}).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestReader_TruncatedTail(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Record(link.DirectionIn, xbee.BuildModemStatus(xbee.ModemHardwareReset), nil))
	require.NoError(t, w.Record(link.DirectionIn, xbee.BuildModemStatus(xbee.ModemJoinedNetwork), nil))

	data := buf.Bytes()
	records, err := NewReader(bytes.NewReader(data[:len(data)-3]), Filter{}).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestWriter_ClosedRejectsRecords(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Record(link.DirectionIn, xbee.BuildModemStatus(xbee.ModemHardwareReset), nil), ErrClosed)
}

func TestEncodeDecodeRecord(t *testing.T) {
	rec := Record{SessionID: "s", Direction: link.DirectionOut, FrameType: 0x08, FrameID: 3, Payload: []byte("NI")}
	data, err := EncodeRecord(rec)
	require.NoError(t, err)

	got, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, rec.FrameID, got.FrameID)
	assert.Equal(t, rec.Payload, got.Payload)
	assert.Equal(t, rec.Direction, got.Direction)
}
