// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

// Decoder turns a byte stream into frames. It is resumable: bytes may arrive
// in arbitrary chunks through Feed, and Next yields frames as they complete.
//
// After a checksum or format error the decoder drops the failed frame's start
// delimiter and hunts for the next one, so a corrupt frame costs at most the
// bytes up to the next delimiter.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	escaped bool
	maxLen  int
	buf     []byte // unconsumed wire bytes
	skipped uint64 // bytes discarded while hunting for a delimiter
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxFrameLength sets the largest length field the decoder will accept
// before reporting a FormatError. Values are clamped to 1..MaxFrameLength.
func WithMaxFrameLength(n int) DecoderOption {
	return func(d *Decoder) {
		if n < 1 {
			n = 1
		}
		if n > MaxFrameLength {
			n = MaxFrameLength
		}
		d.maxLen = n
	}
}

// NewDecoder creates a decoder for the given operating mode. Only
// ModeAPIEscaped changes decoding; any other mode decodes plain API frames.
func NewDecoder(mode OperatingMode, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		escaped: mode == ModeAPIEscaped,
		maxLen:  DefaultMaxFrameLength,
		buf:     make([]byte, 0, 256),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetMode switches between plain and escaped decoding. Buffered bytes are
// kept.
func (d *Decoder) SetMode(mode OperatingMode) {
	d.escaped = mode == ModeAPIEscaped
}

// Escaped reports whether the decoder unescapes input.
func (d *Decoder) Escaped() bool {
	return d.escaped
}

// MaxFrameLength returns the configured maximum length field.
func (d *Decoder) MaxFrameLength() int {
	return d.maxLen
}

// Feed appends received bytes to the decoder's buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Reset drops all buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// Buffered returns the number of bytes held but not yet consumed.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Skipped returns the number of bytes discarded while hunting for a start
// delimiter.
func (d *Decoder) Skipped() uint64 {
	return d.skipped
}

// InFrame reports whether a partial frame is buffered.
func (d *Decoder) InFrame() bool {
	return len(d.buf) > 0 && d.buf[0] == StartDelimiter
}

// Abandon gives up on a buffered partial frame, reporting it as a
// FormatError and resynchronising after its delimiter. It returns nil when
// no frame is in progress.
func (d *Decoder) Abandon() error {
	d.hunt()
	if !d.InFrame() {
		return nil
	}
	n := len(d.buf)
	d.resync()
	return formatErrorf("partial frame abandoned after %d bytes", n)
}

// Next returns the next complete frame. It returns ErrIncomplete when more
// bytes are needed, *ChecksumError or *FormatError for a bad frame. After an
// error Next may be called again to continue with the remaining bytes.
func (d *Decoder) Next() (*Frame, error) {
	d.hunt()
	if len(d.buf) == 0 {
		return nil, ErrIncomplete
	}

	// Walk the wire bytes after the delimiter, unescaping as we go
	var (
		header  [2]byte
		data    []byte
		length  = -1
		got     int
		i       = 1
		escNext bool
	)
	for i < len(d.buf) {
		b := d.buf[i]
		i++

		if d.escaped {
			if b == StartDelimiter {
				// Unescaped delimiter: current frame is truncated
				d.consume(i - 1)
				return nil, formatErrorf("frame truncated by start delimiter after %d bytes", got)
			}
			if escNext {
				b ^= EscapeXor
				escNext = false
			} else if b == EscapeByte {
				escNext = true
				continue
			}
		}

		switch {
		case got < 2:
			header[got] = b
			got++
			if got == 2 {
				length = int(header[0])<<8 | int(header[1])
				if length == 0 {
					d.resync()
					return nil, formatErrorf("zero length frame")
				}
				if length > d.maxLen {
					d.resync()
					return nil, formatErrorf("length %d exceeds maximum %d", length, d.maxLen)
				}
				data = make([]byte, 0, length)
			}
		case len(data) < length:
			data = append(data, b)
			got++
		default:
			// Checksum byte
			if !VerifyChecksum(data, b) {
				d.resync()
				return nil, &ChecksumError{Expected: CalculateChecksum(data), Actual: b}
			}
			raw := make([]byte, i)
			copy(raw, d.buf[:i])
			d.consume(i)
			return frameFromData(data, b, raw), nil
		}
	}

	return nil, ErrIncomplete
}

// hunt discards bytes up to the next start delimiter.
func (d *Decoder) hunt() {
	for i, b := range d.buf {
		if b == StartDelimiter {
			d.skipped += uint64(i)
			d.consume(i)
			return
		}
	}
	d.skipped += uint64(len(d.buf))
	d.buf = d.buf[:0]
}

// resync drops the current frame's delimiter so hunting resumes with the
// byte after it.
func (d *Decoder) resync() {
	d.consume(1)
}

func (d *Decoder) consume(n int) {
	if n >= len(d.buf) {
		d.buf = d.buf[:0]
		return
	}
	d.buf = append(d.buf[:0], d.buf[n:]...)
}

// Decode is a convenience wrapper that decodes every complete frame in b.
// Decode errors are collected and returned alongside the frames.
func Decode(b []byte, mode OperatingMode) ([]*Frame, []error) {
	d := NewDecoder(mode, WithMaxFrameLength(MaxFrameLength))
	d.Feed(b)
	var (
		frames []*Frame
		errs   []error
	)
	for {
		f, err := d.Next()
		if err == ErrIncomplete {
			return frames, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		frames = append(frames, f)
	}
}
