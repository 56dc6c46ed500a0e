// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import (
	"bytes"
	"errors"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// mustEncode encodes a frame or fails the test
func mustEncode(t *testing.T, f *Frame, mode OperatingMode) []byte {
	t.Helper()
	wire, err := Encode(f, mode)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return wire
}

// nextFrame pulls one frame from the decoder or fails the test
func nextFrame(t *testing.T, d *Decoder) *Frame {
	t.Helper()
	f, err := d.Next()
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	return f
}

// ============================================================
// Checksum Tests
// ============================================================

func TestCalculateChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint8
	}{
		{"empty", []byte{}, 0xFF},
		{"AT NJ", []byte{0x08, 0x52, 0x4E, 0x4A}, 0x0D},
		{"wraps", []byte{0xFF, 0x01}, 0xFF},
		{"modem status only", []byte{0x8A}, 0x75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateChecksum(tt.data); got != tt.expected {
				t.Errorf("checksum mismatch: expected 0x%02X, got 0x%02X", tt.expected, got)
			}
			if !VerifyChecksum(tt.data, tt.expected) {
				t.Error("VerifyChecksum rejected a correct checksum")
			}
		})
	}
}

// ============================================================
// Address Tests
// ============================================================

func TestParseAddress64(t *testing.T) {
	tests := []struct {
		in      string
		want    Address64
		wantErr bool
	}{
		{"0013A20040A1B2C3", 0x0013A20040A1B2C3, false},
		{"0x0013a20040a1b2c3", 0x0013A20040A1B2C3, false},
		{"FFFF", Broadcast64, false},
		{"", 0, true},
		{"0x", 0, true},
		{"12345678901234567", 0, true},
		{"zz", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress64(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAddress64_StringAndBytes(t *testing.T) {
	a := Address64(0x0013A20040A1B2C3)
	if a.String() != "0013A20040A1B2C3" {
		t.Errorf("String() = %s", a.String())
	}
	back, err := Address64FromBytes(a.Bytes())
	if err != nil || back != a {
		t.Errorf("bytes round trip: got %s, %v", back, err)
	}
	if _, err := Address64FromBytes([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short input")
	}
}

func TestAddress64_Compare(t *testing.T) {
	if Address64(1).Compare(2) != -1 || Address64(2).Compare(1) != 1 || Address64(3).Compare(3) != 0 {
		t.Error("Compare does not order numerically")
	}
}

func TestAddress_Sentinels(t *testing.T) {
	if !Unknown64.IsUnknown() || Unknown64.IsBroadcast() {
		t.Error("Unknown64 misclassified")
	}
	if !Broadcast64.IsBroadcast() || Broadcast64.IsUnknown() {
		t.Error("Broadcast64 misclassified")
	}
	if Coordinator64.IsUnknown() || Coordinator64.IsBroadcast() {
		t.Error("Coordinator64 misclassified")
	}
	if !Unknown16.IsUnknown() || !Broadcast16.IsBroadcast() {
		t.Error("16-bit sentinels misclassified")
	}
}

func TestMaybeAddress16(t *testing.T) {
	none := No16()
	if _, ok := none.Get(); ok {
		t.Error("No16 should be absent")
	}
	if none.IsKnown() || none.String() != "-" {
		t.Errorf("No16 IsKnown=%v String=%s", none.IsKnown(), none.String())
	}

	some := Some16(0x1234)
	if a, ok := some.Get(); !ok || a != 0x1234 {
		t.Errorf("Some16 Get = %s, %v", a, ok)
	}
	if !some.IsKnown() || some.String() != "1234" {
		t.Errorf("Some16 IsKnown=%v String=%s", some.IsKnown(), some.String())
	}

	// Present but a sentinel: not a usable address
	if Some16(Unknown16).IsKnown() {
		t.Error("Some16(Unknown16) should not be known")
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncode_ATCommand(t *testing.T) {
	f, err := BuildATCommand(0x52, "NJ", nil, false)
	if err != nil {
		t.Fatalf("BuildATCommand error: %v", err)
	}
	wire := mustEncode(t, f, ModeAPI)
	expected := []byte{0x7E, 0x00, 0x04, 0x08, 0x52, 0x4E, 0x4A, 0x0D}
	if !bytes.Equal(wire, expected) {
		t.Errorf("wire mismatch:\n  got  % X\n  want % X", wire, expected)
	}
}

func TestEncode_Escaped(t *testing.T) {
	f := NewFrame(FrameType(0x23), 0, []byte{0x11})
	wire := mustEncode(t, f, ModeAPIEscaped)
	expected := []byte{0x7E, 0x00, 0x02, 0x23, 0x7D, 0x31, 0xCB}
	if !bytes.Equal(wire, expected) {
		t.Errorf("wire mismatch:\n  got  % X\n  want % X", wire, expected)
	}

	// Delimiter is never escaped and never reappears
	if bytes.IndexByte(wire[1:], StartDelimiter) >= 0 {
		t.Error("escaped frame contains a second delimiter")
	}
}

func TestEncode_NotFramedModes(t *testing.T) {
	f := NewFrame(FrameModemStatus, 0, []byte{0x00})
	for _, mode := range []OperatingMode{ModeUnknown, ModeTransparentAT} {
		if _, err := Encode(f, mode); !errors.Is(err, ErrModeNotFramed) {
			t.Errorf("%s: expected ErrModeNotFramed, got %v", mode, err)
		}
	}
}

func TestEncode_TooLarge(t *testing.T) {
	f := NewFrame(FrameReceivePacket, 0, make([]byte, MaxFrameLength))
	if _, err := Encode(f, ModeAPI); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}

	// Exactly at the limit is fine
	f = NewFrame(FrameReceivePacket, 0, make([]byte, MaxFrameLength-1))
	if _, err := Encode(f, ModeAPI); err != nil {
		t.Errorf("frame at limit rejected: %v", err)
	}
}

func TestNewFrame_DropsIDForTypesWithoutOne(t *testing.T) {
	f := NewFrame(FrameModemStatus, 9, []byte{0x06})
	if f.ID() != 0 || f.HasID() {
		t.Errorf("modem status should not carry a frame ID, got %d", f.ID())
	}
	if f.Length() != 2 {
		t.Errorf("Length() = %d, want 2", f.Length())
	}
}

// ============================================================
// Escape Tests
// ============================================================

func TestEscape_AllSpecialBytes(t *testing.T) {
	in := []byte{0x7E, 0x7D, 0x11, 0x13, 0x00, 0xFF}
	expected := []byte{0x7D, 0x5E, 0x7D, 0x5D, 0x7D, 0x31, 0x7D, 0x33, 0x00, 0xFF}
	if got := Escape(in); !bytes.Equal(got, expected) {
		t.Errorf("Escape:\n  got  % X\n  want % X", got, expected)
	}
}

func TestUnescape_Identity(t *testing.T) {
	in := make([]byte, 256)
	for i := range in {
		in[i] = byte(i)
	}
	out, err := Unescape(Escape(in))
	if err != nil {
		t.Fatalf("Unescape error: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Error("Unescape(Escape(x)) != x")
	}
}

func TestUnescape_TrailingEscape(t *testing.T) {
	if _, err := Unescape([]byte{0x01, 0x7D}); err == nil {
		t.Error("expected error for trailing escape byte")
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_SingleFrame(t *testing.T) {
	d := NewDecoder(ModeAPI)
	d.Feed([]byte{0x7E, 0x00, 0x04, 0x08, 0x52, 0x4E, 0x4A, 0x0D})

	f := nextFrame(t, d)
	if f.Type() != FrameATCommand || f.ID() != 0x52 {
		t.Errorf("got %s id=%d", f.Type(), f.ID())
	}
	if string(f.Payload()) != "NJ" {
		t.Errorf("payload = %q", f.Payload())
	}
	if f.Checksum() != 0x0D {
		t.Errorf("checksum = 0x%02X", f.Checksum())
	}
	if len(f.Raw()) != 8 {
		t.Errorf("raw length = %d", len(f.Raw()))
	}

	if _, err := d.Next(); err != ErrIncomplete {
		t.Errorf("expected ErrIncomplete after last frame, got %v", err)
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	for _, mode := range []OperatingMode{ModeAPI, ModeAPIEscaped} {
		t.Run(mode.String(), func(t *testing.T) {
			f := BuildReceivePacket(0x0013A20040A1B2C3, 0x7D11, 0x02, []byte{0x7E, 0x13, 'h', 'i'})
			wire := mustEncode(t, f, mode)

			d := NewDecoder(mode)
			var got *Frame
			for i, b := range wire {
				d.Feed([]byte{b})
				frame, err := d.Next()
				if i < len(wire)-1 {
					if err != ErrIncomplete {
						t.Fatalf("byte %d: expected ErrIncomplete, got %v", i, err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("final byte: %v", err)
				}
				got = frame
			}
			if !bytes.Equal(got.Payload(), f.Payload()) {
				t.Errorf("payload mismatch:\n  got  % X\n  want % X", got.Payload(), f.Payload())
			}
			if !bytes.Equal(got.Raw(), wire) {
				t.Error("raw bytes do not match wire bytes")
			}
		})
	}
}

func TestDecoder_MultipleFramesOneChunk(t *testing.T) {
	a := mustEncode(t, BuildModemStatus(ModemJoinedNetwork), ModeAPI)
	b := mustEncode(t, BuildATCommandResponse(3, "NI", ATStatusOK, []byte("Yoda")), ModeAPI)

	d := NewDecoder(ModeAPI)
	d.Feed(append(append([]byte{}, a...), b...))

	if f := nextFrame(t, d); f.Type() != FrameModemStatus {
		t.Errorf("first frame %s", f.Type())
	}
	if f := nextFrame(t, d); f.Type() != FrameATCommandResponse || f.ID() != 3 {
		t.Errorf("second frame %s id=%d", f.Type(), f.ID())
	}
	if _, err := d.Next(); err != ErrIncomplete {
		t.Errorf("expected ErrIncomplete, got %v", err)
	}
}

func TestDecoder_SkipsGarbage(t *testing.T) {
	wire := mustEncode(t, BuildModemStatus(ModemHardwareReset), ModeAPI)
	d := NewDecoder(ModeAPI)
	d.Feed(append([]byte{0x01, 0x02, 0x03}, wire...))

	if f := nextFrame(t, d); f.Type() != FrameModemStatus {
		t.Errorf("got %s", f.Type())
	}
	if d.Skipped() != 3 {
		t.Errorf("Skipped() = %d, want 3", d.Skipped())
	}
}

func TestDecoder_ChecksumErrorResyncs(t *testing.T) {
	bad := mustEncode(t, BuildModemStatus(ModemJoinedNetwork), ModeAPI)
	bad[len(bad)-1] ^= 0xFF
	good := mustEncode(t, BuildModemStatus(ModemDisassociated), ModeAPI)

	d := NewDecoder(ModeAPI)
	d.Feed(append(append([]byte{}, bad...), good...))

	_, err := d.Next()
	var ce *ChecksumError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ChecksumError, got %v", err)
	}
	if !errors.Is(err, ErrChecksum) {
		t.Error("ChecksumError should match ErrChecksum")
	}

	f := nextFrame(t, d)
	if s, _ := ParseModemStatus(f); s != ModemDisassociated {
		t.Errorf("after resync got status %s", s)
	}
}

func TestDecoder_FlippedByteIsChecksumError(t *testing.T) {
	f, _ := BuildATCommand(7, "NI", []byte("Yoda"), false)
	wire := mustEncode(t, f, ModeAPI)

	// Every byte from frame type through payload
	for i := 3; i < len(wire)-1; i++ {
		corrupt := append([]byte{}, wire...)
		corrupt[i] ^= 0x01
		d := NewDecoder(ModeAPI)
		d.Feed(corrupt)
		if _, err := d.Next(); !errors.Is(err, ErrChecksum) {
			t.Errorf("byte %d flipped: expected checksum error, got %v", i, err)
		}
	}
}

func TestDecoder_LengthLimits(t *testing.T) {
	tests := []struct {
		name    string
		wire    []byte
		opts    []DecoderOption
		wantErr error
	}{
		{"zero length", []byte{0x7E, 0x00, 0x00, 0xFF}, nil, ErrFormat},
		{"over default max", []byte{0x7E, 0x04, 0x01}, nil, ErrFormat},
		{"over configured max", []byte{0x7E, 0x00, 0x05}, []DecoderOption{WithMaxFrameLength(4)}, ErrFormat},
		{"type only", []byte{0x7E, 0x00, 0x01, 0x8A, 0x75}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(ModeAPI, tt.opts...)
			d.Feed(tt.wire)
			f, err := d.Next()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(f.Payload()) != 0 {
					t.Errorf("expected empty payload, got % X", f.Payload())
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDecoder_MaxFrameLengthClamped(t *testing.T) {
	if d := NewDecoder(ModeAPI, WithMaxFrameLength(1<<20)); d.MaxFrameLength() != MaxFrameLength {
		t.Errorf("max not clamped: %d", d.MaxFrameLength())
	}
	if d := NewDecoder(ModeAPI, WithMaxFrameLength(0)); d.MaxFrameLength() != 1 {
		t.Errorf("min not clamped: %d", d.MaxFrameLength())
	}
}

func TestDecoder_EscapedTruncatedByDelimiter(t *testing.T) {
	good := mustEncode(t, BuildModemStatus(ModemCoordinatorStarted), ModeAPIEscaped)

	d := NewDecoder(ModeAPIEscaped)
	d.Feed([]byte{0x7E, 0x00, 0x04, 0x08, 0x52})
	d.Feed(good)

	_, err := d.Next()
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FormatError, got %v", err)
	}

	f := nextFrame(t, d)
	if s, _ := ParseModemStatus(f); s != ModemCoordinatorStarted {
		t.Errorf("got status %s", s)
	}
}

func TestDecoder_EscapedLengthAndChecksum(t *testing.T) {
	// Length 0x11 and 0x13 are escaped on the wire
	for _, n := range []int{0x11 - 2, 0x13 - 2, 0x7D - 2, 0x7E - 2} {
		f := NewFrame(FrameATCommandResponse, 1, append([]byte("NI\x00"), bytes.Repeat([]byte{0x13}, n-3)...))
		wire := mustEncode(t, f, ModeAPIEscaped)

		d := NewDecoder(ModeAPIEscaped)
		d.Feed(wire)
		got := nextFrame(t, d)
		if !bytes.Equal(got.Payload(), f.Payload()) {
			t.Errorf("n=%d: payload mismatch", n)
		}
	}
}

func TestDecoder_Abandon(t *testing.T) {
	d := NewDecoder(ModeAPI)
	if err := d.Abandon(); err != nil {
		t.Errorf("Abandon with nothing buffered: %v", err)
	}

	d.Feed([]byte{0x7E, 0x00, 0x04, 0x08})
	if _, err := d.Next(); err != ErrIncomplete {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if !d.InFrame() {
		t.Fatal("decoder should be mid-frame")
	}

	if err := d.Abandon(); !errors.Is(err, ErrFormat) {
		t.Errorf("expected format error, got %v", err)
	}
	if d.InFrame() {
		t.Error("decoder still mid-frame after Abandon")
	}

	// Decoder keeps working afterwards
	d.Feed(mustEncode(t, BuildModemStatus(ModemHardwareReset), ModeAPI))
	nextFrame(t, d)
}

func TestDecoder_SetModeKeepsBuffer(t *testing.T) {
	d := NewDecoder(ModeAPI)
	d.Feed([]byte{0x7E, 0x00})
	d.SetMode(ModeAPIEscaped)
	if !d.Escaped() || d.Buffered() != 2 {
		t.Errorf("Escaped=%v Buffered=%d", d.Escaped(), d.Buffered())
	}
	d.Reset()
	if d.Buffered() != 0 {
		t.Error("Reset did not clear buffer")
	}
}

func TestDecode_CollectsErrors(t *testing.T) {
	a := mustEncode(t, BuildModemStatus(ModemHardwareReset), ModeAPI)
	bad := append([]byte{}, a...)
	bad[len(bad)-1]++

	frames, errs := Decode(append(append(append([]byte{}, a...), bad...), a...), ModeAPI)
	if len(frames) != 2 || len(errs) != 1 {
		t.Errorf("got %d frames, %d errors", len(frames), len(errs))
	}
}
