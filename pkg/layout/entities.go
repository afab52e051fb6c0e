// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package layout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spoorlab/lnmon/pkg/loconet"
)

// SensorState is the last reported level of an occupancy sensor.
type SensorState int

// Sensor states
const (
	SensorUnknown SensorState = iota
	SensorInactive
	SensorActive
)

func (s SensorState) String() string {
	switch s {
	case SensorActive:
		return "ACTIVE"
	case SensorInactive:
		return "INACTIVE"
	default:
		return "UNKNOWN"
	}
}

// SwitchPosition is the last reported position of a turnout.
type SwitchPosition int

// Switch positions
const (
	PositionUnknown SwitchPosition = iota
	PositionClosed
	PositionThrown
)

func (p SwitchPosition) String() string {
	switch p {
	case PositionClosed:
		return "CLOSED"
	case PositionThrown:
		return "THROWN"
	default:
		return "UNKNOWN"
	}
}

// Sensor mirrors one occupancy sensor. Address is the zero-based bus
// address; displays conventionally show it one-based.
type Sensor struct {
	Address uint16
	State   SensorState
}

func (s Sensor) String() string {
	return fmt.Sprintf("Sensor(%2d): %s", s.Address+1, s.State)
}

// Switch mirrors one turnout. Engaged reports whether the last request
// left the drive coil powered.
type Switch struct {
	Address  uint16
	Position SwitchPosition
	Engaged  bool
}

func (s Switch) String() string {
	return fmt.Sprintf("Switch(%2d): %s, engaged=%v", s.Address+1, s.Position, s.Engaged)
}

// Slot mirrors one command station slot. Status carries the raw STAT
// byte; Track, Status2, ID1 and ID2 are carried verbatim from the last
// slot data so a full write can reproduce them. Functions holds every
// function state seen so far, keyed by function number F0..F28; upper
// functions appear only once a frame carrying their bank has been
// observed.
type Slot struct {
	Number    uint8
	Address   uint16
	Speed     uint8
	Direction loconet.Direction
	Status    byte
	Functions map[uint8]bool
	Track     byte
	Status2   byte
	ID1       byte
	ID2       byte
}

// SlotStatus returns the decoded usage state of the STAT byte.
func (s Slot) SlotStatus() loconet.SlotStatus { return loconet.DecodeSlotStatus(s.Status) }

// Consist returns the decoded consist linkage of the STAT byte.
func (s Slot) Consist() loconet.ConsistState { return loconet.DecodeConsist(s.Status) }

// Steps returns the decoder speed-step count selected by the STAT byte.
func (s Slot) Steps() int { return loconet.SpeedSteps(s.Status) }

func (s Slot) String() string {
	var fns strings.Builder
	nums := make([]int, 0, len(s.Functions))
	for fn := range s.Functions {
		nums = append(nums, int(fn))
	}
	sort.Ints(nums)
	for i, fn := range nums {
		if i > 0 {
			fns.WriteByte(' ')
		}
		state := "OFF"
		if s.Functions[uint8(fn)] {
			state = "ON"
		}
		fmt.Fprintf(&fns, "f%d:%s", fn, state)
	}
	return fmt.Sprintf("Slot(%2d): loc=%d, %s, dir=%s, speed=%d/%d, [%s]",
		s.Number, s.Address, s.SlotStatus(), s.Direction, s.Speed, s.Steps(), fns.String())
}

// clone returns a copy with its own Functions map so callers can hold it
// without racing the keeper.
func (s Slot) clone() Slot {
	cp := s
	cp.Functions = make(map[uint8]bool, len(s.Functions))
	for fn, on := range s.Functions {
		cp.Functions[fn] = on
	}
	return cp
}

// function reports the remembered state of fn, defaulting to off.
func (s Slot) function(fn uint8) bool {
	return s.Functions[fn]
}
