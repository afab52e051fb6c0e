// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package loconet

import "errors"

// Framer errors
var (
	ErrTruncatedFrame = errors.New("loconet: frame truncated by new opcode")
	ErrBadLength      = errors.New("loconet: declared frame length out of range")
)

// Framer reassembles frames from a raw byte stream.
//
// LocoNet has no frame delimiter; a listener joining mid-traffic must
// resynchronize on the MSB invariant alone (opcodes set it, data and
// checksum bytes never do). Stray data bytes outside a frame are skipped
// and counted, an opcode arriving inside a frame truncates it and opens a
// new one, and a checksum failure costs exactly one byte before the scan
// resumes.
//
// A Framer is not safe for concurrent use.
type Framer struct {
	buf      []byte
	expected int
	strays   uint64
}

// NewFramer returns a Framer ready to accept bytes.
func NewFramer() *Framer {
	return &Framer{buf: make([]byte, 0, MaxFrameLength)}
}

// Reset discards any partially assembled frame. Stray counters survive.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.expected = 0
}

// Pending returns the number of buffered bytes of an unfinished frame.
func (f *Framer) Pending() int { return len(f.buf) }

// StrayBytes returns how many data bytes arrived outside any frame. This
// includes the remainder of frames dropped for a bad checksum.
func (f *Framer) StrayBytes() uint64 { return f.strays }

// PushByte feeds one byte into the framer. It returns a complete,
// checksum-valid frame when b finishes one, or an error when b reveals a
// framing fault. Both results are nil while a frame is still assembling or
// b is a skipped stray.
func (f *Framer) PushByte(b byte) ([]byte, error) {
	if len(f.buf) == 0 {
		if b&0x80 == 0 {
			f.strays++
			return nil, nil
		}
		f.buf = append(f.buf, b)
		f.expected = fixedLength(b)
		return nil, nil
	}

	if b&0x80 != 0 {
		// A new opcode truncates whatever was assembling.
		f.buf = append(f.buf[:0], b)
		f.expected = fixedLength(b)
		return nil, ErrTruncatedFrame
	}

	f.buf = append(f.buf, b)
	if f.expected == 0 {
		// b is the length byte of a variable-class frame.
		if int(b) < MinFrameLength+1 {
			f.Reset()
			return nil, ErrBadLength
		}
		f.expected = int(b)
	}
	if len(f.buf) < f.expected {
		return nil, nil
	}

	frame := make([]byte, f.expected)
	copy(frame, f.buf)
	f.Reset()
	if !ChecksumOK(frame) {
		// Resync discards only the opcode. The remaining bytes hold no
		// opcode (one would have truncated the frame above), so they are
		// strays by definition.
		f.strays += uint64(len(frame) - 1)
		return nil, ErrBadChecksum
	}
	return frame, nil
}

// fixedLength maps an opcode to its frame length, or 0 when the length
// arrives in the second byte.
func fixedLength(opcode byte) int {
	switch (opcode >> 5) & 0x03 {
	case 0:
		return 2
	case 1:
		return 4
	case 2:
		return 6
	}
	return 0
}
