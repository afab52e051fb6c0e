// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package loconet

import "errors"

// Decode errors
var (
	ErrTooShort    = errors.New("loconet: frame too short")
	ErrBadChecksum = errors.New("loconet: checksum mismatch")
	ErrNotOpcode   = errors.New("loconet: leading byte is not an opcode")
)

// FrameLength returns the total frame length implied by an opcode. The
// second frame byte is consulted only for the variable length class, where
// it carries the total length itself.
func FrameLength(opcode, second byte) int {
	switch (opcode >> 5) & 0x03 {
	case 0:
		return 2
	case 1:
		return 4
	case 2:
		return 6
	default:
		return int(second)
	}
}

// Decode parses exactly one frame from the start of raw. Bytes past the
// frame's declared length are ignored. Checksum-valid frames with an
// unmodeled opcode decode to Unknown; transport faults return an error.
func Decode(raw []byte) (Message, error) {
	if len(raw) < MinFrameLength {
		return nil, ErrTooShort
	}
	op := raw[0]
	if op&0x80 == 0 {
		return nil, ErrNotOpcode
	}
	length := FrameLength(op, raw[1])
	if length < MinFrameLength || len(raw) < length {
		return nil, ErrTooShort
	}
	frame := raw[:length]
	if !ChecksumOK(frame) {
		return nil, ErrBadChecksum
	}

	switch op {
	case OpcBusy:
		return Busy{}, nil
	case OpcPowerOff:
		return PowerOff{}, nil
	case OpcPowerOn:
		return PowerOn{}, nil
	case OpcLocoSpeed:
		return LocoSpeed{Slot: frame[1], Speed: frame[2]}, nil
	case OpcLocoDirFunc:
		m := LocoDirFunc{Slot: frame[1], Direction: directionBit(frame[2])}
		m.F0, m.F1, m.F2, m.F3, m.F4 = dirfBits(frame[2])
		return m, nil
	case OpcLocoSound:
		m := LocoSound{Slot: frame[1]}
		m.F5, m.F6, m.F7, m.F8 = sndBits(frame[2])
		return m, nil
	case OpcLocoFunc2:
		bits := frame[2]
		return LocoFunc2{
			Slot: frame[1],
			F9:   bits&fn2F9 != 0,
			F10:  bits&fn2F10 != 0,
			F11:  bits&fn2F11 != 0,
			F12:  bits&fn2F12 != 0,
		}, nil
	case OpcSwitchRequest:
		return SwitchRequest{
			Address: switchAddress(frame[1], frame[2]),
			Thrown:  frame[2]&swThrown != 0,
			Engage:  frame[2]&swEngage != 0,
		}, nil
	case OpcSwitchReport:
		return SwitchReport{
			Address: switchAddress(frame[1], frame[2]),
			Thrown:  frame[2]&swThrown != 0,
			Engage:  frame[2]&swEngage != 0,
		}, nil
	case OpcSensorReport:
		in1, in2 := frame[1], frame[2]
		addr := (uint16(in2&0x0F)<<7|uint16(in1&0x7F))<<1 | uint16(in2&inAddrLow)>>5
		return SensorReport{Address: addr, Level: in2&inLevel != 0}, nil
	case OpcLongAck:
		return LongAck{Request: frame[1], Code: frame[2]}, nil
	case OpcMoveSlots:
		return MoveSlots{Src: frame[1], Dst: frame[2]}, nil
	case OpcSlotDataRequest:
		return SlotDataRequest{Slot: frame[1]}, nil
	case OpcSwitchStateRequest:
		return SwitchStateRequest{Address: switchAddress(frame[1], frame[2])}, nil
	case OpcLocoAddressRequest:
		return LocoAddressRequest{Address: uint16(frame[1]) | uint16(frame[2])<<7}, nil
	case OpcTimestamp:
		return Timestamp{Hour: frame[1], Minute: frame[2], Second: frame[3], Hundredths: frame[4]}, nil
	case OpcLocoFunc3:
		if frame[1] != locoFunc3Marker {
			break
		}
		switch frame[3] {
		case FuncBankF13, FuncBankF21, FuncBankF28:
			return LocoFunc3{Slot: frame[2], Bank: frame[3], Bits: frame[4]}, nil
		}
	case OpcSlotData:
		if length == 14 {
			return SlotData{parseSlotFields(frame)}, nil
		}
	case OpcSlotWrite:
		if length == 14 {
			return SlotWrite{parseSlotFields(frame)}, nil
		}
	case OpcImmPacket:
		payload := make([]byte, length-3)
		copy(payload, frame[2:length-1])
		return ImmPacket{Payload: payload}, nil
	}

	data := make([]byte, length-2)
	copy(data, frame[1:length-1])
	return Unknown{Op: op, Data: data}, nil
}

// switchAddress assembles the 11-bit switch address carried by SW_REQ,
// SW_REP and SW_STATE frames.
func switchAddress(in1, in2 byte) uint16 {
	return uint16(in1&0x7F) | uint16(in2&0x0F)<<7
}

func directionBit(dirf byte) Direction {
	if dirf&dirfDirection != 0 {
		return Reverse
	}
	return Forward
}

func dirfBits(dirf byte) (f0, f1, f2, f3, f4 bool) {
	return dirf&dirfF0 != 0, dirf&dirfF1 != 0, dirf&dirfF2 != 0, dirf&dirfF3 != 0, dirf&dirfF4 != 0
}

func sndBits(snd byte) (f5, f6, f7, f8 bool) {
	return snd&sndF5 != 0, snd&sndF6 != 0, snd&sndF7 != 0, snd&sndF8 != 0
}

func parseSlotFields(frame []byte) SlotFields {
	f := SlotFields{
		Slot:      frame[2],
		Status:    frame[3],
		Address:   uint16(frame[4]) | uint16(frame[9])<<7,
		Speed:     frame[5],
		Direction: directionBit(frame[6]),
		Track:     frame[7],
		Status2:   frame[8],
		ID1:       frame[11],
		ID2:       frame[12],
	}
	f.F0, f.F1, f.F2, f.F3, f.F4 = dirfBits(frame[6])
	f.F5, f.F6, f.F7, f.F8 = sndBits(frame[10])
	return f
}
