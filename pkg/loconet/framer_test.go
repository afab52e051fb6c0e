// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package loconet

import (
	"bytes"
	"errors"
	"testing"
)

// pushAll feeds raw into f and returns the emitted frames and errors.
func pushAll(f *Framer, raw []byte) ([][]byte, []error) {
	var frames [][]byte
	var errs []error
	for _, b := range raw {
		frame, err := f.PushByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames, errs
}

// ============================================================================
// Reassembly
// ============================================================================

func TestFramerReassembly(t *testing.T) {
	f := NewFramer()
	var stream []byte
	for _, tc := range frameVectors {
		stream = append(stream, tc.frame...)
	}

	frames, errs := pushAll(f, stream)
	if len(errs) != 0 {
		t.Fatalf("unexpected framing errors: %v", errs)
	}
	if len(frames) != len(frameVectors) {
		t.Fatalf("frame count mismatch: expected %d, got %d", len(frameVectors), len(frames))
	}
	for i, tc := range frameVectors {
		if !bytes.Equal(frames[i], tc.frame) {
			t.Errorf("frame %d (%s) mismatch: expected [% x], got [% x]", i, tc.name, tc.frame, frames[i])
		}
	}
	if f.StrayBytes() != 0 {
		t.Errorf("stray count mismatch: expected 0, got %d", f.StrayBytes())
	}
}

func TestFramerSkipsStrayBytes(t *testing.T) {
	// Two data bytes precede a valid sensor report. Both are skipped
	// without an error and exactly one frame comes out.
	f := NewFramer()
	frames, errs := pushAll(f, []byte{0x42, 0x63, 0xB2, 0x10, 0x30, 0x6D})
	if len(errs) != 0 {
		t.Fatalf("unexpected framing errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("frame count mismatch: expected 1, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], []byte{0xB2, 0x10, 0x30, 0x6D}) {
		t.Errorf("frame mismatch: got [% x]", frames[0])
	}
	if f.StrayBytes() != 2 {
		t.Errorf("stray count mismatch: expected 2, got %d", f.StrayBytes())
	}

	msg, err := Decode(frames[0])
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := msg.(SensorReport); !ok {
		t.Errorf("expected SensorReport, got %#v", msg)
	}
}

func TestFramerTruncatesOnNewOpcode(t *testing.T) {
	// A power-on frame interrupts a half-received speed frame. The partial
	// frame is dropped, the power-on survives.
	f := NewFramer()
	frames, errs := pushAll(f, []byte{0xA0, 0x05, 0x83, 0x7C})
	if len(errs) != 1 || !errors.Is(errs[0], ErrTruncatedFrame) {
		t.Fatalf("expected one ErrTruncatedFrame, got %v", errs)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], []byte{0x83, 0x7C}) {
		t.Fatalf("expected the power-on frame, got %v", frames)
	}
}

func TestFramerResyncAfterOpcodeNoise(t *testing.T) {
	// 0x99 looks like an opcode, so it opens a bogus frame that the real
	// opcode then truncates. Still exactly one report comes out.
	f := NewFramer()
	frames, errs := pushAll(f, []byte{0x42, 0x99, 0xB2, 0x10, 0x30, 0x6D})
	if len(frames) != 1 || !bytes.Equal(frames[0], []byte{0xB2, 0x10, 0x30, 0x6D}) {
		t.Fatalf("expected exactly the sensor report, got %v", frames)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrTruncatedFrame) {
		t.Fatalf("expected one ErrTruncatedFrame, got %v", errs)
	}
	if f.StrayBytes() != 1 {
		t.Errorf("stray count mismatch: expected 1, got %d", f.StrayBytes())
	}
}

func TestFramerChecksumFailureResync(t *testing.T) {
	// A corrupted checksum drops the frame; the next frame is unaffected.
	f := NewFramer()
	frames, errs := pushAll(f, []byte{0xA0, 0x05, 0x28, 0x73, 0x83, 0x7C})
	if len(errs) != 1 || !errors.Is(errs[0], ErrBadChecksum) {
		t.Fatalf("expected one ErrBadChecksum, got %v", errs)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], []byte{0x83, 0x7C}) {
		t.Fatalf("expected the power-on frame, got %v", frames)
	}
	// The dropped frame's three non-opcode bytes count as strays.
	if f.StrayBytes() != 3 {
		t.Errorf("stray count mismatch: expected 3, got %d", f.StrayBytes())
	}
}

func TestFramerRejectsBadVariableLength(t *testing.T) {
	f := NewFramer()
	frames, errs := pushAll(f, []byte{0xE7, 0x01, 0x83, 0x7C})
	if len(errs) != 1 || !errors.Is(errs[0], ErrBadLength) {
		t.Fatalf("expected one ErrBadLength, got %v", errs)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], []byte{0x83, 0x7C}) {
		t.Fatalf("expected the power-on frame, got %v", frames)
	}
}

// Any prefix of data bytes before a valid frame must yield exactly that
// frame and nothing else.
func TestFramerStrayPrefixProperty(t *testing.T) {
	prefixes := [][]byte{
		nil,
		{0x00},
		{0x7F},
		{0x01, 0x02, 0x03},
		{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70},
	}
	for _, tc := range frameVectors {
		for _, prefix := range prefixes {
			f := NewFramer()
			stream := append(append([]byte{}, prefix...), tc.frame...)
			frames, errs := pushAll(f, stream)
			if len(errs) != 0 {
				t.Fatalf("%s with %d strays: unexpected errors %v", tc.name, len(prefix), errs)
			}
			if len(frames) != 1 || !bytes.Equal(frames[0], tc.frame) {
				t.Fatalf("%s with %d strays: expected one frame [% x], got %v", tc.name, len(prefix), tc.frame, frames)
			}
			if f.StrayBytes() != uint64(len(prefix)) {
				t.Fatalf("%s: stray count mismatch: expected %d, got %d", tc.name, len(prefix), f.StrayBytes())
			}
		}
	}
}

func TestFramerPendingAndReset(t *testing.T) {
	f := NewFramer()
	if _, err := f.PushByte(0xA0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.PushByte(0x05); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Pending() != 2 {
		t.Errorf("pending mismatch: expected 2, got %d", f.Pending())
	}
	f.Reset()
	if f.Pending() != 0 {
		t.Errorf("pending after reset: expected 0, got %d", f.Pending())
	}

	// A fresh frame parses after the reset.
	frames, errs := pushAll(f, []byte{0x83, 0x7C})
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("expected clean frame after reset, got frames=%v errs=%v", frames, errs)
	}
}
