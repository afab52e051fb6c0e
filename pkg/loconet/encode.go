// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package loconet

import "fmt"

// ArgumentError reports a message field whose value does not fit its wire
// encoding.
type ArgumentError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("loconet: %s %d out of range %d..%d", e.Field, e.Value, e.Min, e.Max)
}

func check7(field string, v byte) error {
	if v > 0x7F {
		return &ArgumentError{Field: field, Value: int(v), Max: 0x7F}
	}
	return nil
}

// Encode serializes m into a complete frame with a freshly computed
// checksum. Fields that do not fit their wire encoding yield an
// *ArgumentError.
func Encode(m Message) ([]byte, error) {
	body, err := encodeBody(m)
	if err != nil {
		return nil, err
	}
	return AppendChecksum(body), nil
}

func encodeBody(m Message) ([]byte, error) {
	switch v := m.(type) {
	case Busy:
		return []byte{OpcBusy}, nil
	case PowerOff:
		return []byte{OpcPowerOff}, nil
	case PowerOn:
		return []byte{OpcPowerOn}, nil

	case LocoSpeed:
		if err := check7("slot", v.Slot); err != nil {
			return nil, err
		}
		if err := check7("speed", v.Speed); err != nil {
			return nil, err
		}
		return []byte{OpcLocoSpeed, v.Slot, v.Speed}, nil

	case LocoDirFunc:
		if err := check7("slot", v.Slot); err != nil {
			return nil, err
		}
		return []byte{OpcLocoDirFunc, v.Slot, dirfByte(v.Direction, v.F0, v.F1, v.F2, v.F3, v.F4)}, nil

	case LocoSound:
		if err := check7("slot", v.Slot); err != nil {
			return nil, err
		}
		return []byte{OpcLocoSound, v.Slot, sndByte(v.F5, v.F6, v.F7, v.F8)}, nil

	case LocoFunc2:
		if err := check7("slot", v.Slot); err != nil {
			return nil, err
		}
		var bits byte
		if v.F9 {
			bits |= fn2F9
		}
		if v.F10 {
			bits |= fn2F10
		}
		if v.F11 {
			bits |= fn2F11
		}
		if v.F12 {
			bits |= fn2F12
		}
		return []byte{OpcLocoFunc2, v.Slot, bits}, nil

	case LocoFunc3:
		if err := check7("slot", v.Slot); err != nil {
			return nil, err
		}
		switch v.Bank {
		case FuncBankF13, FuncBankF21, FuncBankF28:
		default:
			return nil, &ArgumentError{Field: "bank", Value: int(v.Bank), Max: 0x7F}
		}
		if err := check7("bits", v.Bits); err != nil {
			return nil, err
		}
		return []byte{OpcLocoFunc3, locoFunc3Marker, v.Slot, v.Bank, v.Bits}, nil

	case SwitchRequest:
		return switchBody(OpcSwitchRequest, v.Address, v.Thrown, v.Engage)
	case SwitchReport:
		return switchBody(OpcSwitchReport, v.Address, v.Thrown, v.Engage)

	case SensorReport:
		if v.Address > 0x0FFF {
			return nil, &ArgumentError{Field: "address", Value: int(v.Address), Max: 0x0FFF}
		}
		in1 := byte(v.Address>>1) & 0x7F
		in2 := byte(v.Address>>8)&0x0F | byte(v.Address&0x01)<<5
		if v.Level {
			in2 |= inLevel
		}
		return []byte{OpcSensorReport, in1, in2}, nil

	case LongAck:
		if err := check7("request", v.Request); err != nil {
			return nil, err
		}
		if err := check7("code", v.Code); err != nil {
			return nil, err
		}
		return []byte{OpcLongAck, v.Request, v.Code}, nil

	case MoveSlots:
		if err := check7("src", v.Src); err != nil {
			return nil, err
		}
		if err := check7("dst", v.Dst); err != nil {
			return nil, err
		}
		return []byte{OpcMoveSlots, v.Src, v.Dst}, nil

	case SlotDataRequest:
		if err := check7("slot", v.Slot); err != nil {
			return nil, err
		}
		return []byte{OpcSlotDataRequest, v.Slot, 0}, nil

	case SwitchStateRequest:
		if v.Address > 0x07FF {
			return nil, &ArgumentError{Field: "address", Value: int(v.Address), Max: 0x07FF}
		}
		return []byte{OpcSwitchStateRequest, byte(v.Address) & 0x7F, byte(v.Address>>7) & 0x0F}, nil

	case LocoAddressRequest:
		if v.Address > 0x3FFF {
			return nil, &ArgumentError{Field: "address", Value: int(v.Address), Max: 0x3FFF}
		}
		return []byte{OpcLocoAddressRequest, byte(v.Address) & 0x7F, byte(v.Address>>7) & 0x7F}, nil

	case Timestamp:
		if v.Hour > 23 {
			return nil, &ArgumentError{Field: "hour", Value: int(v.Hour), Max: 23}
		}
		if v.Minute > 59 {
			return nil, &ArgumentError{Field: "minute", Value: int(v.Minute), Max: 59}
		}
		if v.Second > 59 {
			return nil, &ArgumentError{Field: "second", Value: int(v.Second), Max: 59}
		}
		if v.Hundredths > 99 {
			return nil, &ArgumentError{Field: "hundredths", Value: int(v.Hundredths), Max: 99}
		}
		return []byte{OpcTimestamp, v.Hour, v.Minute, v.Second, v.Hundredths}, nil

	case SlotData:
		return slotFieldsBody(OpcSlotData, v.SlotFields)
	case SlotWrite:
		return slotFieldsBody(OpcSlotWrite, v.SlotFields)

	case ImmPacket:
		if len(v.Payload) > MaxFrameLength-3 {
			return nil, &ArgumentError{Field: "payload", Value: len(v.Payload), Max: MaxFrameLength - 3}
		}
		body := make([]byte, 0, len(v.Payload)+2)
		body = append(body, OpcImmPacket, byte(len(v.Payload)+3))
		for i, b := range v.Payload {
			if b > 0x7F {
				return nil, &ArgumentError{Field: fmt.Sprintf("payload[%d]", i), Value: int(b), Max: 0x7F}
			}
			body = append(body, b)
		}
		return body, nil

	case Unknown:
		return unknownBody(v)

	default:
		return nil, fmt.Errorf("loconet: cannot encode %T", m)
	}
}

func dirfByte(dir Direction, f0, f1, f2, f3, f4 bool) byte {
	var b byte
	if dir == Reverse {
		b |= dirfDirection
	}
	if f0 {
		b |= dirfF0
	}
	if f1 {
		b |= dirfF1
	}
	if f2 {
		b |= dirfF2
	}
	if f3 {
		b |= dirfF3
	}
	if f4 {
		b |= dirfF4
	}
	return b
}

func sndByte(f5, f6, f7, f8 bool) byte {
	var b byte
	if f5 {
		b |= sndF5
	}
	if f6 {
		b |= sndF6
	}
	if f7 {
		b |= sndF7
	}
	if f8 {
		b |= sndF8
	}
	return b
}

func switchBody(op byte, address uint16, thrown, engage bool) ([]byte, error) {
	if address > 0x07FF {
		return nil, &ArgumentError{Field: "address", Value: int(address), Max: 0x07FF}
	}
	sw2 := byte(address>>7) & 0x0F
	if thrown {
		sw2 |= swThrown
	}
	if engage {
		sw2 |= swEngage
	}
	return []byte{op, byte(address) & 0x7F, sw2}, nil
}

func slotFieldsBody(op byte, f SlotFields) ([]byte, error) {
	if err := check7("slot", f.Slot); err != nil {
		return nil, err
	}
	if err := check7("status", f.Status); err != nil {
		return nil, err
	}
	if f.Address > 0x3FFF {
		return nil, &ArgumentError{Field: "address", Value: int(f.Address), Max: 0x3FFF}
	}
	if err := check7("speed", f.Speed); err != nil {
		return nil, err
	}
	for _, c := range []struct {
		field string
		value byte
	}{{"track", f.Track}, {"status2", f.Status2}, {"id1", f.ID1}, {"id2", f.ID2}} {
		if err := check7(c.field, c.value); err != nil {
			return nil, err
		}
	}
	return []byte{
		op, 14,
		f.Slot,
		f.Status,
		byte(f.Address) & 0x7F,
		f.Speed,
		dirfByte(f.Direction, f.F0, f.F1, f.F2, f.F3, f.F4),
		f.Track,
		f.Status2,
		byte(f.Address>>7) & 0x7F,
		sndByte(f.F5, f.F6, f.F7, f.F8),
		f.ID1,
		f.ID2,
	}, nil
}

func unknownBody(v Unknown) ([]byte, error) {
	if v.Op&0x80 == 0 {
		return nil, &ArgumentError{Field: "opcode", Value: int(v.Op), Min: 0x80, Max: 0xFF}
	}
	length := len(v.Data) + 2
	if length > MaxFrameLength {
		return nil, &ArgumentError{Field: "data", Value: len(v.Data), Max: MaxFrameLength - 2}
	}
	if variable := (v.Op>>5)&0x03 == 3; variable {
		// The first data byte doubles as the declared frame length.
		if len(v.Data) == 0 || int(v.Data[0]) != length {
			return nil, &ArgumentError{Field: "data", Value: len(v.Data), Min: 1, Max: MaxFrameLength - 2}
		}
	} else if want := FrameLength(v.Op, 0); want != length {
		return nil, &ArgumentError{Field: "data", Value: len(v.Data), Min: want - 2, Max: want - 2}
	}
	body := make([]byte, 0, length-1)
	body = append(body, v.Op)
	for i, b := range v.Data {
		if b > 0x7F {
			return nil, &ArgumentError{Field: fmt.Sprintf("data[%d]", i), Value: int(b), Max: 0x7F}
		}
		body = append(body, b)
	}
	return body, nil
}
