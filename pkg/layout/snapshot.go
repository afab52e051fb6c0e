// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package layout

import (
	"fmt"
	"strings"
	"time"
)

// SlotInfo is the JSON projection of a slot.
type SlotInfo struct {
	Slot      uint8          `json:"slot"`
	Address   uint16         `json:"address"`
	Speed     uint8          `json:"speed"`
	Direction string         `json:"direction"`
	Status    string         `json:"status"`
	Consist   string         `json:"consist"`
	Steps     int            `json:"steps"`
	Functions map[uint8]bool `json:"functions"`
}

// SensorInfo is the JSON projection of a sensor. Address is the raw bus
// address; displays add one.
type SensorInfo struct {
	Address uint16 `json:"address"`
	State   string `json:"state"`
}

// SwitchInfo is the JSON projection of a switch.
type SwitchInfo struct {
	Address  uint16 `json:"address"`
	Position string `json:"position"`
	Engaged  bool   `json:"engaged"`
}

// Snapshot is a point-in-time copy of the whole mirror, shaped for JSON.
// The collections are never nil, so clients always see arrays.
type Snapshot struct {
	Time     time.Time    `json:"time"`
	Power    string       `json:"power"`
	Slots    []SlotInfo   `json:"slots"`
	Sensors  []SensorInfo `json:"sensors"`
	Switches []SwitchInfo `json:"switches"`
}

// Snapshot captures the current mirror contents, entries sorted by slot
// number and address.
func (s *Scrollkeeper) Snapshot() Snapshot {
	snap := Snapshot{
		Time:     time.Now(),
		Power:    s.TrackPower().String(),
		Slots:    []SlotInfo{},
		Sensors:  []SensorInfo{},
		Switches: []SwitchInfo{},
	}
	for _, sl := range s.Slots() {
		snap.Slots = append(snap.Slots, SlotInfo{
			Slot:      sl.Number,
			Address:   sl.Address,
			Speed:     sl.Speed,
			Direction: sl.Direction.String(),
			Status:    sl.SlotStatus().String(),
			Consist:   sl.Consist().String(),
			Steps:     sl.Steps(),
			Functions: sl.Functions,
		})
	}
	for _, sn := range s.Sensors() {
		snap.Sensors = append(snap.Sensors, SensorInfo{
			Address: sn.Address,
			State:   sn.State.String(),
		})
	}
	for _, sw := range s.Switches() {
		snap.Switches = append(snap.Switches, SwitchInfo{
			Address:  sw.Address,
			Position: sw.Position.String(),
			Engaged:  sw.Engaged,
		})
	}
	return snap
}

// String renders the periodic plain-text report: a header with the time
// and track power, then one line per slot, switch and sensor, sorted.
func (s *Scrollkeeper) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scrollkeeper %s, track power %s\n",
		time.Now().Format("15:04:05"), s.TrackPower())
	for _, sl := range s.Slots() {
		b.WriteString(sl.String())
		b.WriteByte('\n')
	}
	for _, sw := range s.Switches() {
		b.WriteString(sw.String())
		b.WriteByte('\n')
	}
	for _, sn := range s.Sensors() {
		b.WriteString(sn.String())
		b.WriteByte('\n')
	}
	return b.String()
}
