// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

// Package loconet implements framing, checksumming, and message codecs for
// the LocoNet command/control bus used by model railroad command stations.
//
// A LocoNet frame opens with an opcode byte (MSB always set) whose upper
// three bits select the frame length, followed by data bytes (MSB always
// clear) and a single checksum byte. The package provides the streaming
// Framer, frame <-> Message codecs, builders for outbound commands, and
// human-readable formatting for monitors.
package loconet

// Opcodes (first byte of every frame)
const (
	OpcBusy               = 0x81
	OpcPowerOff           = 0x82
	OpcPowerOn            = 0x83
	OpcLocoSpeed          = 0xA0
	OpcLocoDirFunc        = 0xA1
	OpcLocoSound          = 0xA2
	OpcLocoFunc2          = 0xA3
	OpcSwitchRequest      = 0xB0
	OpcSwitchReport       = 0xB1
	OpcSensorReport       = 0xB2
	OpcLongAck            = 0xB4
	OpcMoveSlots          = 0xBA
	OpcSlotDataRequest    = 0xBB
	OpcSwitchStateRequest = 0xBC
	OpcLocoAddressRequest = 0xBF
	OpcTimestamp          = 0xC0
	OpcLocoFunc3          = 0xD4
	OpcSlotData           = 0xE7
	OpcImmPacket          = 0xED
	OpcSlotWrite          = 0xEF
)

// Frame size limits
const (
	MinFrameLength = 2
	MaxFrameLength = 0x7F // variable-class length byte is itself MSB-clear
)

// DIRF byte bits (0xA1 and byte 6 of slot data)
const (
	dirfDirection = 0x20
	dirfF0        = 0x10
	dirfF1        = 0x01
	dirfF2        = 0x02
	dirfF3        = 0x04
	dirfF4        = 0x08
)

// SND byte bits (0xA2 and byte 10 of slot data)
const (
	sndF5 = 0x01
	sndF6 = 0x02
	sndF7 = 0x04
	sndF8 = 0x08
)

// Function group 2 bits (0xA3)
const (
	fn2F9  = 0x01
	fn2F10 = 0x02
	fn2F11 = 0x04
	fn2F12 = 0x08
)

// Switch command bits (0xB0, 0xB1)
const (
	swThrown = 0x20
	swEngage = 0x10
)

// Sensor report bits (second data byte of 0xB2)
const (
	inLevel   = 0x10
	inAddrLow = 0x20 // least-significant address bit
)

// Function banks carried by 0xD4. The fourth frame byte selects the bank,
// the fifth holds the bits.
const (
	FuncBankF13 = 0x08 // F13..F19 at bits 0..6
	FuncBankF21 = 0x09 // F21..F27 at bits 0..6
	FuncBankF28 = 0x05 // F12 at 0x10, F20 at 0x20, F28 at 0x40
)

const locoFunc3Marker = 0x20 // fixed second byte of 0xD4 frames

// Slot STAT byte bits
const (
	statUsageMask = 0x30
	statUsageIdle = 0x20
	statConsistUp = 0x40
	statConsistDn = 0x08
	statStepMask  = 0x07
)

// Direction of travel. The wire carries it as DIRF bit 0x20, set for reverse.
type Direction uint8

// Direction values
const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "REVERSE"
	}
	return "FORWARD"
}

// SlotStatus is the slot usage state from STAT bits D5..D4
type SlotStatus int

// Slot usage values
const (
	SlotFree SlotStatus = iota
	SlotCommon
	SlotIdle
	SlotInUse
)

func (s SlotStatus) String() string {
	switch s {
	case SlotFree:
		return "FREE"
	case SlotCommon:
		return "COMMON"
	case SlotIdle:
		return "IDLE"
	case SlotInUse:
		return "IN_USE"
	default:
		return "UNKNOWN"
	}
}

// ConsistState is the slot consist linkage from STAT bits D6 and D3
type ConsistState int

// Consist linkage values
const (
	ConsistNone ConsistState = iota
	ConsistTop
	ConsistSub
	ConsistMid
)

func (c ConsistState) String() string {
	switch c {
	case ConsistNone:
		return "NONE"
	case ConsistTop:
		return "TOP"
	case ConsistSub:
		return "SUB"
	case ConsistMid:
		return "MID"
	default:
		return "UNKNOWN"
	}
}

// DecodeSlotStatus extracts the usage state from a raw STAT byte.
func DecodeSlotStatus(stat byte) SlotStatus {
	return SlotStatus((stat & statUsageMask) >> 4)
}

// DecodeConsist extracts the consist linkage from a raw STAT byte.
func DecodeConsist(stat byte) ConsistState {
	up := stat&statConsistUp != 0
	dn := stat&statConsistDn != 0
	switch {
	case up && dn:
		return ConsistMid
	case up:
		return ConsistSub
	case dn:
		return ConsistTop
	default:
		return ConsistNone
	}
}

// SpeedSteps returns the decoder speed-step count selected by STAT bits
// D2..D0. Unassigned encodings fall back to 28 steps.
func SpeedSteps(stat byte) int {
	switch stat & statStepMask {
	case 2:
		return 14
	case 3, 7:
		return 128
	default:
		return 28
	}
}
