// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

// Package layout keeps a live mirror of the model railroad: slots,
// switches, sensors and track power, reconstructed purely from observed
// bus traffic. Nothing is invented; an entity exists in the mirror only
// once a message mentioning it has crossed the wire.
package layout

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spoorlab/lnmon/pkg/loconet"
)

// ErrWaitTimeout is returned when a wait expires before the layout
// reaches the requested state.
var ErrWaitTimeout = errors.New("wait timed out")

// ErrUnknownEntity is returned when a command target is still unknown
// after the bounded number of state requests.
var ErrUnknownEntity = errors.New("unknown entity")

// PowerState is the global track power as last announced on the bus.
type PowerState int

// Track power states
const (
	PowerUnknown PowerState = iota
	PowerOff
	PowerOn
)

func (p PowerState) String() string {
	switch p {
	case PowerOn:
		return "ON"
	case PowerOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// Ack is the most recent LONG_ACK seen on the bus. Request echoes the
// opcode it answers with the MSB cleared; Code 0 conventionally means the
// command station refused.
type Ack struct {
	Request byte
	Code    byte
	Time    time.Time
}

// Accepted reports whether the command station accepted the request.
func (a Ack) Accepted() bool { return a.Code != 0 }

// Sender puts one message on the bus. *link.Link satisfies it.
type Sender interface {
	Send(loconet.Message) error
}

// Options tunes a Scrollkeeper. The zero value is usable.
type Options struct {
	// Logger receives mirror diagnostics. Nil disables logging.
	Logger *zap.Logger
	// ResolveAttempts bounds how often a command against an unknown
	// entity re-requests its state before failing with ErrUnknownEntity
	// (default 3).
	ResolveAttempts int
	// ResolveTimeout is the per-attempt wait for the state reply
	// (default 2s).
	ResolveTimeout time.Duration
}

const (
	defaultResolveAttempts = 3
	defaultResolveTimeout  = 2 * time.Second
)

// Scrollkeeper is the layout mirror. Feed it every inbound message via
// OnMessage, typically by subscribing it to a Link; commands go out
// through the Sender it was built with.
//
// Each collection carries a generation channel that is closed and
// replaced on every update, which is what the Wait and resolve methods
// block on. Sends never happen while a collection lock is held.
type Scrollkeeper struct {
	sender Sender
	log    *zap.Logger

	attempts    int
	resolveWait time.Duration

	slotMu  sync.Mutex
	slots   map[uint8]*Slot
	slotGen chan struct{}

	switchMu  sync.Mutex
	switches  map[uint16]*Switch
	switchGen chan struct{}

	sensorMu  sync.Mutex
	sensors   map[uint16]*Sensor
	sensorGen chan struct{}

	stateMu sync.Mutex
	power   PowerState
	lastAck *Ack
}

// New builds a Scrollkeeper that sends commands through sender.
func New(sender Sender, opts Options) *Scrollkeeper {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	attempts := opts.ResolveAttempts
	if attempts <= 0 {
		attempts = defaultResolveAttempts
	}
	wait := opts.ResolveTimeout
	if wait <= 0 {
		wait = defaultResolveTimeout
	}
	return &Scrollkeeper{
		sender:      sender,
		log:         log,
		attempts:    attempts,
		resolveWait: wait,
		slots:       make(map[uint8]*Slot),
		slotGen:     make(chan struct{}),
		switches:    make(map[uint16]*Switch),
		switchGen:   make(chan struct{}),
		sensors:     make(map[uint16]*Sensor),
		sensorGen:   make(chan struct{}),
	}
}

// OnMessage folds one observed message into the mirror. It is shaped as
// a Link subscription callback. Messages that carry no layout state,
// including observed slot writes, pass through without effect; the
// command station's own slot data is the authority.
func (s *Scrollkeeper) OnMessage(m loconet.Message) {
	switch m := m.(type) {
	case loconet.PowerOn:
		s.setPower(PowerOn)
	case loconet.PowerOff:
		s.setPower(PowerOff)
	case loconet.SensorReport:
		s.updateSensor(m.Address, m.Level)
	case loconet.SwitchRequest:
		s.updateSwitch(m.Address, m.Thrown, m.Engage)
	case loconet.SwitchReport:
		s.updateSwitch(m.Address, m.Thrown, m.Engage)
	case loconet.LongAck:
		s.recordAck(m)
	case loconet.SlotData:
		s.updateSlotData(m.SlotFields)
	case loconet.LocoSpeed:
		s.withSlot(m.Slot, func(sl *Slot) {
			sl.Speed = m.Speed
		})
	case loconet.LocoDirFunc:
		s.withSlot(m.Slot, func(sl *Slot) {
			sl.Direction = m.Direction
			sl.Functions[0] = m.F0
			sl.Functions[1] = m.F1
			sl.Functions[2] = m.F2
			sl.Functions[3] = m.F3
			sl.Functions[4] = m.F4
		})
	case loconet.LocoSound:
		s.withSlot(m.Slot, func(sl *Slot) {
			sl.Functions[5] = m.F5
			sl.Functions[6] = m.F6
			sl.Functions[7] = m.F7
			sl.Functions[8] = m.F8
		})
	case loconet.LocoFunc2:
		s.withSlot(m.Slot, func(sl *Slot) {
			sl.Functions[9] = m.F9
			sl.Functions[10] = m.F10
			sl.Functions[11] = m.F11
			sl.Functions[12] = m.F12
		})
	case loconet.LocoFunc3:
		fns := m.Functions()
		s.withSlot(m.Slot, func(sl *Slot) {
			for fn, on := range fns {
				sl.Functions[fn] = on
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Mirror updates
// ----------------------------------------------------------------------------

func (s *Scrollkeeper) setPower(p PowerState) {
	s.stateMu.Lock()
	s.power = p
	s.stateMu.Unlock()
	s.log.Debug("track power", zap.Stringer("state", p))
}

func (s *Scrollkeeper) recordAck(m loconet.LongAck) {
	s.stateMu.Lock()
	s.lastAck = &Ack{Request: m.Request, Code: m.Code, Time: time.Now()}
	s.stateMu.Unlock()
}

func (s *Scrollkeeper) updateSensor(addr uint16, level bool) {
	state := SensorInactive
	if level {
		state = SensorActive
	}
	s.sensorMu.Lock()
	sn, ok := s.sensors[addr]
	if !ok {
		sn = &Sensor{Address: addr}
		s.sensors[addr] = sn
	}
	sn.State = state
	close(s.sensorGen)
	s.sensorGen = make(chan struct{})
	s.sensorMu.Unlock()
}

func (s *Scrollkeeper) updateSwitch(addr uint16, thrown, engage bool) {
	pos := PositionClosed
	if thrown {
		pos = PositionThrown
	}
	s.switchMu.Lock()
	sw, ok := s.switches[addr]
	if !ok {
		sw = &Switch{Address: addr}
		s.switches[addr] = sw
	}
	sw.Position = pos
	sw.Engaged = engage
	close(s.switchGen)
	s.switchGen = make(chan struct{})
	s.switchMu.Unlock()
}

func (s *Scrollkeeper) updateSlotData(f loconet.SlotFields) {
	s.slotMu.Lock()
	sl, ok := s.slots[f.Slot]
	if !ok {
		sl = &Slot{Number: f.Slot, Functions: make(map[uint8]bool)}
		s.slots[f.Slot] = sl
	} else if sl.Address != f.Address && sl.SlotStatus() != loconet.SlotFree {
		s.log.Warn("slot reassigned without an intervening free",
			zap.Uint8("slot", f.Slot),
			zap.Uint16("old_address", sl.Address),
			zap.Uint16("new_address", f.Address))
	}
	sl.Address = f.Address
	sl.Speed = f.Speed
	sl.Direction = f.Direction
	sl.Status = f.Status
	sl.Track = f.Track
	sl.Status2 = f.Status2
	sl.ID1 = f.ID1
	sl.ID2 = f.ID2
	sl.Functions[0] = f.F0
	sl.Functions[1] = f.F1
	sl.Functions[2] = f.F2
	sl.Functions[3] = f.F3
	sl.Functions[4] = f.F4
	sl.Functions[5] = f.F5
	sl.Functions[6] = f.F6
	sl.Functions[7] = f.F7
	sl.Functions[8] = f.F8
	close(s.slotGen)
	s.slotGen = make(chan struct{})
	s.slotMu.Unlock()
}

// withSlot applies fn to a known slot. Traffic for a slot the mirror has
// never seen triggers a slot data request instead; the station's reply
// creates the entry.
func (s *Scrollkeeper) withSlot(num uint8, fn func(*Slot)) {
	s.slotMu.Lock()
	sl, ok := s.slots[num]
	if ok {
		fn(sl)
		close(s.slotGen)
		s.slotGen = make(chan struct{})
	}
	s.slotMu.Unlock()
	if !ok {
		s.log.Debug("traffic for unknown slot, requesting data", zap.Uint8("slot", num))
		if err := s.sender.Send(loconet.SlotDataRequest{Slot: num}); err != nil {
			s.log.Warn("slot data request failed", zap.Uint8("slot", num), zap.Error(err))
		}
	}
}

// ----------------------------------------------------------------------------
// Queries
// ----------------------------------------------------------------------------

// GetSlot returns a copy of slot num.
func (s *Scrollkeeper) GetSlot(num uint8) (Slot, bool) {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	sl, ok := s.slots[num]
	if !ok {
		return Slot{}, false
	}
	return sl.clone(), true
}

// GetSlotForAddress returns a copy of the slot serving the locomotive at
// addr. When the station has leaked the address into several slots the
// lowest slot number wins.
func (s *Scrollkeeper) GetSlotForAddress(addr uint16) (Slot, bool) {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	return s.slotForAddressLocked(addr)
}

func (s *Scrollkeeper) slotForAddressLocked(addr uint16) (Slot, bool) {
	best := -1
	for num, sl := range s.slots {
		if sl.Address == addr && (best < 0 || int(num) < best) {
			best = int(num)
		}
	}
	if best < 0 {
		return Slot{}, false
	}
	return s.slots[uint8(best)].clone(), true
}

// GetSwitch returns a copy of the switch at addr.
func (s *Scrollkeeper) GetSwitch(addr uint16) (Switch, bool) {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	sw, ok := s.switches[addr]
	if !ok {
		return Switch{}, false
	}
	return *sw, true
}

// GetSensor returns a copy of the sensor at addr.
func (s *Scrollkeeper) GetSensor(addr uint16) (Sensor, bool) {
	s.sensorMu.Lock()
	defer s.sensorMu.Unlock()
	sn, ok := s.sensors[addr]
	if !ok {
		return Sensor{}, false
	}
	return *sn, true
}

// Slots returns copies of every known slot ordered by slot number.
func (s *Scrollkeeper) Slots() []Slot {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	nums := make([]int, 0, len(s.slots))
	for n := range s.slots {
		nums = append(nums, int(n))
	}
	sort.Ints(nums)
	out := make([]Slot, 0, len(nums))
	for _, n := range nums {
		out = append(out, s.slots[uint8(n)].clone())
	}
	return out
}

// Switches returns copies of every known switch ordered by address.
func (s *Scrollkeeper) Switches() []Switch {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	addrs := make([]int, 0, len(s.switches))
	for a := range s.switches {
		addrs = append(addrs, int(a))
	}
	sort.Ints(addrs)
	out := make([]Switch, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, *s.switches[uint16(a)])
	}
	return out
}

// Sensors returns copies of every known sensor ordered by address.
func (s *Scrollkeeper) Sensors() []Sensor {
	s.sensorMu.Lock()
	defer s.sensorMu.Unlock()
	addrs := make([]int, 0, len(s.sensors))
	for a := range s.sensors {
		addrs = append(addrs, int(a))
	}
	sort.Ints(addrs)
	out := make([]Sensor, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, *s.sensors[uint16(a)])
	}
	return out
}

// Counts reports how many slots, switches and sensors the mirror holds.
func (s *Scrollkeeper) Counts() (slots, switches, sensors int) {
	s.slotMu.Lock()
	slots = len(s.slots)
	s.slotMu.Unlock()
	s.switchMu.Lock()
	switches = len(s.switches)
	s.switchMu.Unlock()
	s.sensorMu.Lock()
	sensors = len(s.sensors)
	s.sensorMu.Unlock()
	return slots, switches, sensors
}

// TrackPower returns the last announced global power state.
func (s *Scrollkeeper) TrackPower() PowerState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.power
}

// LastAck returns the most recent LONG_ACK, if one has arrived yet.
func (s *Scrollkeeper) LastAck() (Ack, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.lastAck == nil {
		return Ack{}, false
	}
	return *s.lastAck, true
}

// ----------------------------------------------------------------------------
// Waits
// ----------------------------------------------------------------------------

// WaitForSensor blocks until the sensor at addr reports state or timeout
// passes, whichever comes first.
func (s *Scrollkeeper) WaitForSensor(addr uint16, state SensorState, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		s.sensorMu.Lock()
		sn, ok := s.sensors[addr]
		if ok && sn.State == state {
			s.sensorMu.Unlock()
			return nil
		}
		gen := s.sensorGen
		s.sensorMu.Unlock()
		if err := waitGen(gen, deadline); err != nil {
			return fmt.Errorf("layout: sensor %d: %w", addr+1, err)
		}
	}
}

// WaitForSwitch blocks until the switch at addr reports pos or timeout
// passes, whichever comes first.
func (s *Scrollkeeper) WaitForSwitch(addr uint16, pos SwitchPosition, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		s.switchMu.Lock()
		sw, ok := s.switches[addr]
		if ok && sw.Position == pos {
			s.switchMu.Unlock()
			return nil
		}
		gen := s.switchGen
		s.switchMu.Unlock()
		if err := waitGen(gen, deadline); err != nil {
			return fmt.Errorf("layout: switch %d: %w", addr+1, err)
		}
	}
}

// waitGen blocks until the generation channel closes or the deadline
// passes.
func waitGen(gen <-chan struct{}, deadline time.Time) error {
	remain := time.Until(deadline)
	if remain <= 0 {
		return ErrWaitTimeout
	}
	t := time.NewTimer(remain)
	defer t.Stop()
	select {
	case <-gen:
		return nil
	case <-t.C:
		return ErrWaitTimeout
	}
}

// ----------------------------------------------------------------------------
// Commands
// ----------------------------------------------------------------------------

// SetSwitch commands the turnout at addr to the thrown or closed
// position, with the drive coil engaged. An unknown switch is first
// interrogated so the mirror learns it exists.
func (s *Scrollkeeper) SetSwitch(addr uint16, thrown bool) error {
	if err := s.resolveSwitch(addr); err != nil {
		return err
	}
	return s.sender.Send(loconet.SwitchRequest{Address: addr, Thrown: thrown, Engage: true})
}

// SetLocoSpeed commands the locomotive at addr to the raw speed byte
// 0..127. Speed 0 is a normal stop, 1 an emergency stop.
func (s *Scrollkeeper) SetLocoSpeed(addr uint16, speed uint8) error {
	sl, err := s.resolveSlot(addr)
	if err != nil {
		return err
	}
	return s.sender.Send(loconet.LocoSpeed{Slot: sl.Number, Speed: speed})
}

// SetLocoDirection commands the running direction of the locomotive at
// addr, preserving the remembered F0..F4 states the frame also carries.
func (s *Scrollkeeper) SetLocoDirection(addr uint16, dir loconet.Direction) error {
	sl, err := s.resolveSlot(addr)
	if err != nil {
		return err
	}
	return s.sender.Send(loconet.LocoDirFunc{
		Slot:      sl.Number,
		Direction: dir,
		F0:        sl.function(0),
		F1:        sl.function(1),
		F2:        sl.function(2),
		F3:        sl.function(3),
		F4:        sl.function(4),
	})
}

// SetLocoFunction switches function fn (F0..F28) of the locomotive at
// addr. The function number selects the frame class; siblings in the
// same frame keep their remembered state.
func (s *Scrollkeeper) SetLocoFunction(addr uint16, fn uint8, on bool) error {
	if fn > 28 {
		return &loconet.ArgumentError{Field: "function", Value: int(fn), Max: 28}
	}
	sl, err := s.resolveSlot(addr)
	if err != nil {
		return err
	}
	fns := sl.Functions
	fns[fn] = on
	switch {
	case fn <= 4:
		return s.sender.Send(loconet.LocoDirFunc{
			Slot:      sl.Number,
			Direction: sl.Direction,
			F0:        fns[0],
			F1:        fns[1],
			F2:        fns[2],
			F3:        fns[3],
			F4:        fns[4],
		})
	case fn <= 8:
		return s.sender.Send(loconet.LocoSound{
			Slot: sl.Number,
			F5:   fns[5],
			F6:   fns[6],
			F7:   fns[7],
			F8:   fns[8],
		})
	case fn <= 12:
		return s.sender.Send(loconet.LocoFunc2{
			Slot: sl.Number,
			F9:   fns[9],
			F10:  fns[10],
			F11:  fns[11],
			F12:  fns[12],
		})
	default:
		return s.sender.Send(loconet.NewLocoFunc3(sl.Number, loconet.FuncBankFor(fn), fns))
	}
}

// RequestSensorState asks the sensor hardware at addr for a fresh report.
func (s *Scrollkeeper) RequestSensorState(addr uint16) error {
	return s.sender.Send(loconet.NewSensorStateRequest(addr))
}

// resolveSlot returns the slot serving addr, asking the command station
// to assign one when none is known yet. Each attempt sends a LOCO_ADR and
// waits for the SLOT_RD_DATA reply to land in the mirror.
func (s *Scrollkeeper) resolveSlot(addr uint16) (Slot, error) {
	if sl, ok := s.GetSlotForAddress(addr); ok {
		return sl, nil
	}
	for attempt := 0; attempt < s.attempts; attempt++ {
		s.log.Debug("requesting slot for locomotive",
			zap.Uint16("address", addr), zap.Int("attempt", attempt+1))
		if err := s.sender.Send(loconet.LocoAddressRequest{Address: addr}); err != nil {
			return Slot{}, err
		}
		if sl, ok := s.awaitSlotForAddress(addr, s.resolveWait); ok {
			return sl, nil
		}
	}
	return Slot{}, fmt.Errorf("layout: locomotive %d: %w", addr, ErrUnknownEntity)
}

func (s *Scrollkeeper) awaitSlotForAddress(addr uint16, wait time.Duration) (Slot, bool) {
	deadline := time.Now().Add(wait)
	for {
		s.slotMu.Lock()
		sl, ok := s.slotForAddressLocked(addr)
		gen := s.slotGen
		s.slotMu.Unlock()
		if ok {
			return sl, true
		}
		if waitGen(gen, deadline) != nil {
			return Slot{}, false
		}
	}
}

// resolveSwitch makes sure the switch at addr is in the mirror, sending
// SW_STATE requests until a report about it shows up.
func (s *Scrollkeeper) resolveSwitch(addr uint16) error {
	if _, ok := s.GetSwitch(addr); ok {
		return nil
	}
	for attempt := 0; attempt < s.attempts; attempt++ {
		s.log.Debug("requesting switch state",
			zap.Uint16("address", addr), zap.Int("attempt", attempt+1))
		if err := s.sender.Send(loconet.SwitchStateRequest{Address: addr}); err != nil {
			return err
		}
		if s.awaitSwitchKnown(addr, s.resolveWait) {
			return nil
		}
	}
	return fmt.Errorf("layout: switch %d: %w", addr+1, ErrUnknownEntity)
}

func (s *Scrollkeeper) awaitSwitchKnown(addr uint16, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for {
		s.switchMu.Lock()
		_, ok := s.switches[addr]
		gen := s.switchGen
		s.switchMu.Unlock()
		if ok {
			return true
		}
		if waitGen(gen, deadline) != nil {
			return false
		}
	}
}
