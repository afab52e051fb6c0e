// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

// Package script is a small imperative surface for layout automation:
// throw switches, drive locomotives, wait for sensors. Everything goes
// through the layout mirror, so commands against entities the bus has
// not mentioned yet are resolved with status requests first.
package script

import (
	"time"

	"go.uber.org/zap"

	"github.com/spoorlab/lnmon/pkg/layout"
	"github.com/spoorlab/lnmon/pkg/loconet"
)

// Script runs automation steps against one layout mirror.
type Script struct {
	keeper *layout.Scrollkeeper
	log    *zap.Logger
}

// New builds a Script on top of keeper. A nil logger disables logging.
func New(keeper *layout.Scrollkeeper, logger *zap.Logger) *Script {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Script{keeper: keeper, log: logger}
}

// ThrowSwitch moves the turnout at addr to the thrown position.
func (s *Script) ThrowSwitch(addr uint16) error {
	s.log.Debug("throw switch", zap.Uint16("address", addr))
	return s.keeper.SetSwitch(addr, true)
}

// CloseSwitch moves the turnout at addr to the closed position.
func (s *Script) CloseSwitch(addr uint16) error {
	s.log.Debug("close switch", zap.Uint16("address", addr))
	return s.keeper.SetSwitch(addr, false)
}

// SetSpeed commands the locomotive at addr to the raw speed byte 0..127.
func (s *Script) SetSpeed(addr uint16, speed uint8) error {
	return s.keeper.SetLocoSpeed(addr, speed)
}

// SetDirection commands the running direction of the locomotive at addr.
func (s *Script) SetDirection(addr uint16, dir loconet.Direction) error {
	return s.keeper.SetLocoDirection(addr, dir)
}

// SetFunction switches function fn of the locomotive at addr.
func (s *Script) SetFunction(addr uint16, fn uint8, on bool) error {
	return s.keeper.SetLocoFunction(addr, fn, on)
}

// WaitForSensor blocks until the sensor at addr reports state or timeout
// passes. A sensor the bus has not mentioned yet is asked for a fresh
// report first.
func (s *Script) WaitForSensor(addr uint16, state layout.SensorState, timeout time.Duration) error {
	if _, ok := s.keeper.GetSensor(addr); !ok {
		s.log.Debug("sensor unknown, requesting state", zap.Uint16("address", addr))
		if err := s.keeper.RequestSensorState(addr); err != nil {
			return err
		}
	}
	return s.keeper.WaitForSensor(addr, state, timeout)
}

// Wait pauses the script.
func (s *Script) Wait(d time.Duration) {
	time.Sleep(d)
}
