// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xbee

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// knownFrameTypes lists every frame type the package names
var knownFrameTypes = []FrameType{
	FrameTx64Request, FrameTx16Request, FrameATCommand, FrameATCommandQueue,
	FrameTransmitRequest, FrameExplicitTransmit, FrameRemoteATCommand,
	FrameRx64, FrameRx16, FrameRx64IO, FrameRx16IO, FrameATCommandResponse,
	FrameTxStatus, FrameModemStatus, FrameTransmitStatus, FrameReceivePacket,
	FrameExplicitRx, FrameIODataSample, FrameNodeIdentifier, FrameRemoteATResponse,
}

// randomFrame builds a frame with random type, ID and payload. The payload
// is biased towards bytes that need escaping.
func randomFrame(rng *rand.Rand) *Frame {
	t := knownFrameTypes[rng.Intn(len(knownFrameTypes))]
	payload := make([]byte, rng.Intn(128))
	for i := range payload {
		if rng.Intn(4) == 0 {
			payload[i] = []byte{StartDelimiter, EscapeByte, XON, XOFF}[rng.Intn(4)]
		} else {
			payload[i] = byte(rng.Intn(256))
		}
	}
	return NewFrame(t, uint8(rng.Intn(256)), payload)
}

// feedInChunks splits data into random chunks and collects every frame
func feedInChunks(t *testing.T, rng *rand.Rand, d *Decoder, data []byte) []*Frame {
	t.Helper()
	var frames []*Frame
	for len(data) > 0 {
		n := rng.Intn(len(data)) + 1
		d.Feed(data[:n])
		data = data[n:]
		for {
			f, err := d.Next()
			if err == ErrIncomplete {
				break
			}
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			frames = append(frames, f)
		}
	}
	return frames
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder
// and verifies it doesn't crash or loop forever
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		mode := ModeAPI
		if rng.Intn(2) == 1 {
			mode = ModeAPIEscaped
		}
		d := NewDecoder(mode)

		length := rng.Intn(512) + 1
		data := make([]byte, length)
		rng.Read(data)
		d.Feed(data)

		// Every call either yields a frame, an error that consumes at least
		// one byte, or ErrIncomplete
		for steps := 0; ; steps++ {
			if steps > length+1 {
				t.Fatalf("decoder did not settle after %d steps", steps)
			}
			before := d.Buffered()
			_, err := d.Next()
			if err == ErrIncomplete {
				break
			}
			if d.Buffered() >= before {
				t.Fatalf("Next made no progress (err=%v)", err)
			}
		}
	}
}

// TestFuzzDecoder_RoundTrip encodes random frames, feeds them in random
// chunks, and checks each one decodes back unchanged
func TestFuzzDecoder_RoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		mode := ModeAPI
		if rng.Intn(2) == 1 {
			mode = ModeAPIEscaped
		}

		count := rng.Intn(4) + 1
		var sent []*Frame
		var wire []byte
		for j := 0; j < count; j++ {
			f := randomFrame(rng)
			w, err := Encode(f, mode)
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			sent = append(sent, f)
			wire = append(wire, w...)
		}

		got := feedInChunks(t, rng, NewDecoder(mode), wire)
		if len(got) != len(sent) {
			t.Fatalf("round %d (%s): sent %d frames, decoded %d", i, mode, len(sent), len(got))
		}
		for j := range sent {
			if got[j].Type() != sent[j].Type() || got[j].ID() != sent[j].ID() ||
				!bytes.Equal(got[j].Payload(), sent[j].Payload()) {
				t.Fatalf("round %d frame %d mismatch:\n  sent %s id=%d % X\n  got  %s id=%d % X",
					i, j, sent[j].Type(), sent[j].ID(), sent[j].Payload(),
					got[j].Type(), got[j].ID(), got[j].Payload())
			}
		}
	}
}

// TestFuzzDecoder_CorruptionRecovery corrupts one frame in a stream and
// checks that the following frame still decodes
func TestFuzzDecoder_CorruptionRecovery(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		mode := ModeAPIEscaped

		// Payload without 0x7E after escaping only appears as escaped
		// sequences, so a flipped checksum cannot hide the next delimiter
		bad, _ := Encode(randomFrame(rng), mode)
		bad[len(bad)-1] ^= byte(rng.Intn(255) + 1)
		if bad[len(bad)-1] == StartDelimiter || bad[len(bad)-1] == EscapeByte {
			bad[len(bad)-1] = 0x00
		}

		marker := NewFrame(FrameModemStatus, 0, []byte{byte(ModemJoinedNetwork)})
		good, _ := Encode(marker, mode)

		d := NewDecoder(mode)
		d.Feed(append(append([]byte{}, bad...), good...))

		var found bool
		for {
			f, err := d.Next()
			if err == ErrIncomplete {
				break
			}
			if err != nil {
				if !errors.Is(err, ErrChecksum) && !errors.Is(err, ErrFormat) {
					t.Fatalf("unexpected error type: %v", err)
				}
				continue
			}
			if f.Type() == FrameModemStatus && bytes.Equal(f.Payload(), marker.Payload()) {
				found = true
			}
		}
		if !found {
			t.Fatalf("round %d: frame after corruption was lost", i)
		}
	}
}

// TestFuzzEscape_Identity checks Unescape(Escape(x)) == x for random data
func TestFuzzEscape_Identity(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(256))
		rng.Read(data)
		escaped := Escape(data)
		for _, b := range escaped {
			if b == StartDelimiter || b == XON || b == XOFF {
				t.Fatalf("escaped output contains 0x%02X", b)
			}
		}
		out, err := Unescape(escaped)
		if err != nil {
			t.Fatalf("Unescape error: %v", err)
		}
		if !bytes.Equal(out, data) {
			t.Fatalf("round %d: identity failed", i)
		}
	}
}
