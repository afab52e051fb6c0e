// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package loconet

import "fmt"

// OpcodeName returns the conventional mnemonic for an opcode.
func OpcodeName(op byte) string {
	switch op {
	case OpcBusy:
		return "GPBUSY"
	case OpcPowerOff:
		return "GPOFF"
	case OpcPowerOn:
		return "GPON"
	case OpcLocoSpeed:
		return "LOCO_SPD"
	case OpcLocoDirFunc:
		return "LOCO_DIRF"
	case OpcLocoSound:
		return "LOCO_SND"
	case OpcLocoFunc2:
		return "LOCO_F912"
	case OpcSwitchRequest:
		return "SW_REQ"
	case OpcSwitchReport:
		return "SW_REP"
	case OpcSensorReport:
		return "INPUT_REP"
	case OpcLongAck:
		return "LONG_ACK"
	case OpcMoveSlots:
		return "MOVE_SLOTS"
	case OpcSlotDataRequest:
		return "RQ_SL_DATA"
	case OpcSwitchStateRequest:
		return "SW_STATE"
	case OpcLocoAddressRequest:
		return "LOCO_ADR"
	case OpcTimestamp:
		return "CAPTURE_TS"
	case OpcLocoFunc3:
		return "LOCO_F1328"
	case OpcSlotData:
		return "SL_RD_DATA"
	case OpcImmPacket:
		return "IMM_PACKET"
	case OpcSlotWrite:
		return "WR_SL_DATA"
	default:
		return "UNKNOWN"
	}
}

// FormatMessage renders a message on one line for monitor output.
func FormatMessage(m Message) string {
	switch v := m.(type) {
	case Busy:
		return "GPBUSY"
	case PowerOff:
		return "GPOFF"
	case PowerOn:
		return "GPON"
	case LocoSpeed:
		return fmt.Sprintf("LOCO_SPD slot=%d speed=%d", v.Slot, v.Speed)
	case LocoDirFunc:
		return fmt.Sprintf("LOCO_DIRF slot=%d dir=%s f0=%s f1=%s f2=%s f3=%s f4=%s",
			v.Slot, v.Direction, onOff(v.F0), onOff(v.F1), onOff(v.F2), onOff(v.F3), onOff(v.F4))
	case LocoSound:
		return fmt.Sprintf("LOCO_SND slot=%d f5=%s f6=%s f7=%s f8=%s",
			v.Slot, onOff(v.F5), onOff(v.F6), onOff(v.F7), onOff(v.F8))
	case LocoFunc2:
		return fmt.Sprintf("LOCO_F912 slot=%d f9=%s f10=%s f11=%s f12=%s",
			v.Slot, onOff(v.F9), onOff(v.F10), onOff(v.F11), onOff(v.F12))
	case LocoFunc3:
		return fmt.Sprintf("LOCO_F1328 slot=%d bank=0x%02x bits=0x%02x", v.Slot, v.Bank, v.Bits)
	case SwitchRequest:
		return fmt.Sprintf("SW_REQ switch=%d dir=%s engage=%s", v.Address, thrownClosed(v.Thrown), onOff(v.Engage))
	case SwitchReport:
		return fmt.Sprintf("SW_REP switch=%d dir=%s engage=%s", v.Address, thrownClosed(v.Thrown), onOff(v.Engage))
	case SensorReport:
		return fmt.Sprintf("INPUT_REP sensor=%d level=%s", v.Address, hiLo(v.Level))
	case LongAck:
		return fmt.Sprintf("LONG_ACK req=0x%02x code=%d", v.Request, v.Code)
	case MoveSlots:
		return fmt.Sprintf("MOVE_SLOTS src=%d dst=%d", v.Src, v.Dst)
	case SlotDataRequest:
		return fmt.Sprintf("RQ_SL_DATA slot=%d", v.Slot)
	case SwitchStateRequest:
		return fmt.Sprintf("SW_STATE switch=%d", v.Address)
	case LocoAddressRequest:
		return fmt.Sprintf("LOCO_ADR address=%d", v.Address)
	case Timestamp:
		return fmt.Sprintf("CAPTURE_TS %02d:%02d:%02d.%02d", v.Hour, v.Minute, v.Second, v.Hundredths)
	case SlotData:
		return "SL_RD_DATA " + formatSlotFields(v.SlotFields)
	case SlotWrite:
		return "WR_SL_DATA " + formatSlotFields(v.SlotFields)
	case ImmPacket:
		return fmt.Sprintf("IMM_PACKET payload=[% x]", v.Payload)
	case Unknown:
		return fmt.Sprintf("UNKNOWN op=0x%02x data=[% x]", v.Op, v.Data)
	default:
		return fmt.Sprintf("UNKNOWN %T", m)
	}
}

func formatSlotFields(f SlotFields) string {
	return fmt.Sprintf("slot=%d address=%d status=%s consist=%s steps=%d speed=%d dir=%s f0..f8=%s",
		f.Slot, f.Address, f.SlotStatus(), f.Consist(), f.Steps(), f.Speed, f.Direction,
		funcBits(f.F0, f.F1, f.F2, f.F3, f.F4, f.F5, f.F6, f.F7, f.F8))
}

func funcBits(fns ...bool) string {
	bits := make([]byte, len(fns))
	for i, on := range fns {
		if on {
			bits[i] = '1'
		} else {
			bits[i] = '0'
		}
	}
	return string(bits)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func thrownClosed(thrown bool) string {
	if thrown {
		return "THROWN"
	}
	return "CLOSED"
}

func hiLo(level bool) string {
	if level {
		return "HI"
	}
	return "LO"
}
