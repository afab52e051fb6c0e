// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package loconet

import "time"

// Message is one decoded LocoNet frame. Concrete message types are plain
// structs that round-trip byte-exact through Decode and Encode. Frames whose
// opcode this package does not model decode to Unknown rather than an error.
type Message interface {
	// Opcode returns the frame's first byte.
	Opcode() byte
}

// Busy reports that the command station is busy (GPBUSY).
type Busy struct{}

// PowerOff turns track power off globally (GPOFF).
type PowerOff struct{}

// PowerOn turns track power on globally (GPON).
type PowerOn struct{}

// LocoSpeed sets the raw speed byte of a slot (LOCO_SPD). Speed 0 is a
// normal stop, 1 is an emergency stop, 2..127 scale to the throttle range.
type LocoSpeed struct {
	Slot  uint8
	Speed uint8
}

// LocoDirFunc sets the direction and function bits F0..F4 of a slot
// (LOCO_DIRF). F0 conventionally drives the headlights.
type LocoDirFunc struct {
	Slot      uint8
	Direction Direction
	F0        bool
	F1        bool
	F2        bool
	F3        bool
	F4        bool
}

// LocoSound sets the function bits F5..F8 of a slot (LOCO_SND).
type LocoSound struct {
	Slot uint8
	F5   bool
	F6   bool
	F7   bool
	F8   bool
}

// LocoFunc2 sets the function bits F9..F12 of a slot (LOCO_F912).
type LocoFunc2 struct {
	Slot uint8
	F9   bool
	F10  bool
	F11  bool
	F12  bool
}

// LocoFunc3 sets one bank of upper function bits of a slot (LOCO_F1328).
// A single frame carries exactly one bank; Bank selects which functions the
// Bits byte addresses.
type LocoFunc3 struct {
	Slot uint8
	Bank uint8 // FuncBankF13, FuncBankF21 or FuncBankF28
	Bits uint8
}

// Functions expands the bank into explicit function states, keyed by
// function number. Unrecognized banks yield an empty map.
func (m LocoFunc3) Functions() map[uint8]bool {
	fns := make(map[uint8]bool)
	switch m.Bank {
	case FuncBankF13:
		for i := uint8(0); i < 7; i++ {
			fns[13+i] = m.Bits&(1<<i) != 0
		}
	case FuncBankF21:
		for i := uint8(0); i < 7; i++ {
			fns[21+i] = m.Bits&(1<<i) != 0
		}
	case FuncBankF28:
		fns[12] = m.Bits&0x10 != 0
		fns[20] = m.Bits&0x20 != 0
		fns[28] = m.Bits&0x40 != 0
	}
	return fns
}

// SwitchRequest commands a switch to a position (SW_REQ). Thrown selects the
// diverging route; Engage energizes the coil and is cleared by a follow-up
// frame on solenoid hardware.
type SwitchRequest struct {
	Address uint16
	Thrown  bool
	Engage  bool
}

// SwitchReport reports a switch position, usually sent by the command
// station after it processed a request (SW_REP).
type SwitchReport struct {
	Address uint16
	Thrown  bool
	Engage  bool
}

// SensorReport reports an occupancy sensor level (INPUT_REP). Sending one
// with Level false also serves as a state query that sensor hardware
// answers with a fresh report.
type SensorReport struct {
	Address uint16
	Level   bool
}

// LongAck is the command station's refusal or status answer to a prior
// request (LONG_ACK). Request echoes the request opcode with its MSB
// cleared; the meaning of Code depends on that opcode, with 0 generally
// meaning "rejected".
type LongAck struct {
	Request byte
	Code    byte
}

// MoveSlots transfers the contents of slot Src to slot Dst (MOVE_SLOTS).
// Moving a slot onto itself marks it in use.
type MoveSlots struct {
	Src uint8
	Dst uint8
}

// SlotDataRequest asks the command station to send SLOT_RD_DATA for a slot
// (RQ_SL_DATA).
type SlotDataRequest struct {
	Slot uint8
}

// SwitchStateRequest asks for the state of a switch (SW_STATE). The answer
// arrives as a LONG_ACK.
type SwitchStateRequest struct {
	Address uint16
}

// LocoAddressRequest asks the command station to assign a slot to a
// locomotive address (LOCO_ADR). The answer arrives as SLOT_RD_DATA.
type LocoAddressRequest struct {
	Address uint16
}

// Timestamp is a wall-clock marker interleaved into capture files so replay
// can restore the original pacing. It never appears on the wire.
type Timestamp struct {
	Hour       uint8
	Minute     uint8
	Second     uint8
	Hundredths uint8
}

// DayHundredths returns the timestamp as hundredths of a second since
// midnight.
func (t Timestamp) DayHundredths() int64 {
	return ((int64(t.Hour)*60+int64(t.Minute))*60+int64(t.Second))*100 + int64(t.Hundredths)
}

// SinceMidnight returns the timestamp as a duration from midnight.
func (t Timestamp) SinceMidnight() time.Duration {
	return time.Duration(t.DayHundredths()) * 10 * time.Millisecond
}

// SlotFields is the payload shared by SLOT_RD_DATA and WR_SL_DATA frames.
// Status carries the raw STAT byte; use SlotStatus, Consist and Steps for
// the decoded views.
type SlotFields struct {
	Slot      uint8
	Status    byte
	Address   uint16
	Speed     uint8
	Direction Direction
	F0        bool
	F1        bool
	F2        bool
	F3        bool
	F4        bool
	F5        bool
	F6        bool
	F7        bool
	F8        bool
	Track     byte
	Status2   byte
	ID1       byte
	ID2       byte
}

// SlotStatus returns the decoded usage state of the STAT byte.
func (f SlotFields) SlotStatus() SlotStatus { return DecodeSlotStatus(f.Status) }

// Consist returns the decoded consist linkage of the STAT byte.
func (f SlotFields) Consist() ConsistState { return DecodeConsist(f.Status) }

// Steps returns the decoder speed-step count selected by the STAT byte.
func (f SlotFields) Steps() int { return SpeedSteps(f.Status) }

// SlotData is the command station's dump of one slot (SLOT_RD_DATA).
type SlotData struct {
	SlotFields
}

// SlotWrite overwrites one slot on the command station (WR_SL_DATA). The
// station acknowledges it with a LONG_ACK.
type SlotWrite struct {
	SlotFields
}

// ImmPacket carries a raw DCC packet for immediate transmission to the
// track (IMM_PACKET). The payload is kept opaque.
type ImmPacket struct {
	Payload []byte
}

// Unknown preserves a checksum-valid frame whose opcode this package does
// not model. Data holds every byte between the opcode and the checksum, so
// the frame re-encodes byte-exact.
type Unknown struct {
	Op   byte
	Data []byte
}

// Opcode implementations, one per variant.

func (Busy) Opcode() byte               { return OpcBusy }
func (PowerOff) Opcode() byte           { return OpcPowerOff }
func (PowerOn) Opcode() byte            { return OpcPowerOn }
func (LocoSpeed) Opcode() byte          { return OpcLocoSpeed }
func (LocoDirFunc) Opcode() byte        { return OpcLocoDirFunc }
func (LocoSound) Opcode() byte          { return OpcLocoSound }
func (LocoFunc2) Opcode() byte          { return OpcLocoFunc2 }
func (LocoFunc3) Opcode() byte          { return OpcLocoFunc3 }
func (SwitchRequest) Opcode() byte      { return OpcSwitchRequest }
func (SwitchReport) Opcode() byte       { return OpcSwitchReport }
func (SensorReport) Opcode() byte       { return OpcSensorReport }
func (LongAck) Opcode() byte            { return OpcLongAck }
func (MoveSlots) Opcode() byte          { return OpcMoveSlots }
func (SlotDataRequest) Opcode() byte    { return OpcSlotDataRequest }
func (SwitchStateRequest) Opcode() byte { return OpcSwitchStateRequest }
func (LocoAddressRequest) Opcode() byte { return OpcLocoAddressRequest }
func (Timestamp) Opcode() byte          { return OpcTimestamp }
func (SlotData) Opcode() byte           { return OpcSlotData }
func (SlotWrite) Opcode() byte          { return OpcSlotWrite }
func (ImmPacket) Opcode() byte          { return OpcImmPacket }
func (m Unknown) Opcode() byte          { return m.Op }
