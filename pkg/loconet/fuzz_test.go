// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package loconet

import (
	"math/rand"
	"os"
	"reflect"
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

// randMessage builds a random well-formed message.
func randMessage(rng *rand.Rand) Message {
	b7 := func() uint8 { return uint8(rng.Intn(0x80)) }
	flag := func() bool { return rng.Intn(2) == 1 }
	switch rng.Intn(17) {
	case 0:
		return Busy{}
	case 1:
		return PowerOff{}
	case 2:
		return PowerOn{}
	case 3:
		return LocoSpeed{Slot: b7(), Speed: b7()}
	case 4:
		return LocoDirFunc{
			Slot: b7(), Direction: Direction(rng.Intn(2)),
			F0: flag(), F1: flag(), F2: flag(), F3: flag(), F4: flag(),
		}
	case 5:
		return LocoSound{Slot: b7(), F5: flag(), F6: flag(), F7: flag(), F8: flag()}
	case 6:
		return LocoFunc2{Slot: b7(), F9: flag(), F10: flag(), F11: flag(), F12: flag()}
	case 7:
		banks := []uint8{FuncBankF13, FuncBankF21, FuncBankF28}
		return LocoFunc3{Slot: b7(), Bank: banks[rng.Intn(len(banks))], Bits: b7()}
	case 8:
		return SwitchRequest{Address: uint16(rng.Intn(0x800)), Thrown: flag(), Engage: flag()}
	case 9:
		return SwitchReport{Address: uint16(rng.Intn(0x800)), Thrown: flag(), Engage: flag()}
	case 10:
		return SensorReport{Address: uint16(rng.Intn(0x1000)), Level: flag()}
	case 11:
		return LongAck{Request: b7(), Code: b7()}
	case 12:
		return MoveSlots{Src: b7(), Dst: b7()}
	case 13:
		return LocoAddressRequest{Address: uint16(rng.Intn(0x4000))}
	case 14:
		return Timestamp{
			Hour:       uint8(rng.Intn(24)),
			Minute:     uint8(rng.Intn(60)),
			Second:     uint8(rng.Intn(60)),
			Hundredths: uint8(rng.Intn(100)),
		}
	case 15:
		payload := make([]byte, rng.Intn(16))
		for i := range payload {
			payload[i] = uint8(rng.Intn(0x80))
		}
		return ImmPacket{Payload: payload}
	default:
		fields := SlotFields{
			Slot:      b7(),
			Status:    b7(),
			Address:   uint16(rng.Intn(0x4000)),
			Speed:     b7(),
			Direction: Direction(rng.Intn(2)),
			F0:        flag(), F1: flag(), F2: flag(), F3: flag(), F4: flag(),
			F5:        flag(), F6: flag(), F7: flag(), F8: flag(),
			Track:     b7(), Status2: b7(), ID1: b7(), ID2: b7(),
		}
		if flag() {
			return SlotWrite{fields}
		}
		return SlotData{fields}
	}
}

// ============================================================
// Codec Fuzz Tests
// ============================================================

// TestFuzzCodec_RoundTrip encodes random messages and verifies the decoder
// reproduces them exactly
func TestFuzzCodec_RoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		msg := randMessage(rng)
		frame, err := Encode(msg)
		if err != nil {
			t.Fatalf("Round %d: Encode failed for %#v: %v", i, msg, err)
		}
		if !ChecksumOK(frame) {
			t.Fatalf("Round %d: encoded frame fails checksum: [% x]", i, frame)
		}
		got, err := Decode(frame)
		if err != nil {
			t.Fatalf("Round %d: Decode failed for [% x]: %v", i, frame, err)
		}
		if !reflect.DeepEqual(got, msg) {
			t.Fatalf("Round %d: round trip mismatch: expected %#v, got %#v", i, msg, got)
		}
	}
}

// ============================================================
// Framer Fuzz Tests
// ============================================================

// TestFuzzFramer_RandomBytes feeds random bytes to the framer and verifies
// it never panics and never emits an invalid frame
func TestFuzzFramer_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		f := NewFramer()
		length := rng.Intn(512) + 1
		data := make([]byte, length)
		rng.Read(data)

		for _, b := range data {
			frame, _ := f.PushByte(b)
			if frame == nil {
				continue
			}
			if len(frame) < MinFrameLength || len(frame) > MaxFrameLength {
				t.Fatalf("Round %d: emitted frame with bad length %d", i, len(frame))
			}
			if !ChecksumOK(frame) {
				t.Fatalf("Round %d: emitted frame fails checksum: [% x]", i, frame)
			}
		}
	}
}

// TestFuzzFramer_MessageStream frames a stream of random encoded messages
// with random stray padding and verifies every message survives in order
func TestFuzzFramer_MessageStream(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		f := NewFramer()
		count := rng.Intn(10) + 1
		var want []Message
		var stream []byte
		for j := 0; j < count; j++ {
			// Random run of stray data bytes between frames.
			for k := rng.Intn(4); k > 0; k-- {
				stream = append(stream, uint8(rng.Intn(0x80)))
			}
			msg := randMessage(rng)
			frame, err := Encode(msg)
			if err != nil {
				t.Fatalf("Round %d: Encode failed: %v", i, err)
			}
			want = append(want, msg)
			stream = append(stream, frame...)
		}

		var got []Message
		for _, b := range stream {
			frame, err := f.PushByte(b)
			if err != nil {
				t.Fatalf("Round %d: unexpected framing error: %v", i, err)
			}
			if frame == nil {
				continue
			}
			msg, err := Decode(frame)
			if err != nil {
				t.Fatalf("Round %d: Decode failed: %v", i, err)
			}
			got = append(got, msg)
		}

		if len(got) != len(want) {
			t.Fatalf("Round %d: message count mismatch: expected %d, got %d", i, len(want), len(got))
		}
		for j := range want {
			if !reflect.DeepEqual(got[j], want[j]) {
				t.Fatalf("Round %d: message %d mismatch: expected %#v, got %#v", i, j, want[j], got[j])
			}
		}
	}
}

// TestFuzzFramer_ResyncAfterGarbage verifies that a valid frame following
// arbitrary garbage always comes out of the framer
func TestFuzzFramer_ResyncAfterGarbage(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		f := NewFramer()
		garbage := make([]byte, rng.Intn(64))
		rng.Read(garbage)
		for _, b := range garbage {
			f.PushByte(b)
		}

		msg := randMessage(rng)
		frame, err := Encode(msg)
		if err != nil {
			t.Fatalf("Round %d: Encode failed: %v", i, err)
		}

		var last []byte
		for _, b := range frame {
			if out, _ := f.PushByte(b); out != nil {
				last = out
			}
		}
		if last == nil {
			t.Fatalf("Round %d: frame [% x] lost after garbage [% x]", i, frame, garbage)
		}
		if !reflect.DeepEqual(mustDecode(t, last), msg) {
			t.Fatalf("Round %d: resynced frame mismatch: expected %#v, got %#v", i, msg, mustDecode(t, last))
		}
	}
}

// TestFuzzFramer_CorruptedFrames corrupts one byte per frame and verifies
// the framer neither panics nor emits a checksum-invalid frame
func TestFuzzFramer_CorruptedFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		f := NewFramer()
		frame, err := Encode(randMessage(rng))
		if err != nil {
			t.Fatalf("Round %d: Encode failed: %v", i, err)
		}
		idx := rng.Intn(len(frame))
		frame[idx] ^= byte(rng.Intn(255) + 1)

		for _, b := range frame {
			if out, _ := f.PushByte(b); out != nil && !ChecksumOK(out) {
				t.Fatalf("Round %d: emitted invalid frame [% x]", i, out)
			}
		}
	}
}

func mustDecode(t *testing.T, frame []byte) Message {
	t.Helper()
	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed for [% x]: %v", frame, err)
	}
	return msg
}
