// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package loconet

import "time"

// NewTimestamp captures the wall-clock time of t for interleaving into a
// capture stream.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{
		Hour:       uint8(t.Hour()),
		Minute:     uint8(t.Minute()),
		Second:     uint8(t.Second()),
		Hundredths: uint8(t.Nanosecond() / int(10*time.Millisecond)),
	}
}

// NewSensorStateRequest builds the conventional sensor query: an INPUT_REP
// with the level bit clear, which the sensor hardware answers with a fresh
// report.
func NewSensorStateRequest(address uint16) SensorReport {
	return SensorReport{Address: address}
}

// NewLocoFunc3 packs a bank of upper functions into a LOCO_F1328 frame.
// The fns map is keyed by function number; only the numbers the bank
// addresses are consulted.
func NewLocoFunc3(slot uint8, bank uint8, fns map[uint8]bool) LocoFunc3 {
	var bits uint8
	switch bank {
	case FuncBankF13:
		for i := uint8(0); i < 7; i++ {
			if fns[13+i] {
				bits |= 1 << i
			}
		}
	case FuncBankF21:
		for i := uint8(0); i < 7; i++ {
			if fns[21+i] {
				bits |= 1 << i
			}
		}
	case FuncBankF28:
		if fns[12] {
			bits |= 0x10
		}
		if fns[20] {
			bits |= 0x20
		}
		if fns[28] {
			bits |= 0x40
		}
	}
	return LocoFunc3{Slot: slot, Bank: bank, Bits: bits}
}

// FuncBankFor returns the LOCO_F1328 bank that carries function fn, or 0
// when fn is outside the banked range. Note that F12 appears both in
// LOCO_F912 and in the F28 bank; the lower frame wins here.
func FuncBankFor(fn uint8) uint8 {
	switch {
	case fn >= 13 && fn <= 19:
		return FuncBankF13
	case fn >= 21 && fn <= 27:
		return FuncBankF21
	case fn == 20 || fn == 28:
		return FuncBankF28
	default:
		return 0
	}
}
