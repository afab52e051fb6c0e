// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package script

import (
	"time"

	"go.uber.org/zap"

	"github.com/spoorlab/lnmon/pkg/loconet"
)

// Function numbers with a conventional meaning on sound decoders.
const (
	fnLights  = 0
	fnSound   = 1
	fnWhistle = 2
)

const whistleDuration = time.Second

// Throttle drives one locomotive. It carries no state of its own; every
// command resolves the locomotive's slot through the layout mirror.
type Throttle struct {
	script *Script
	addr   uint16
}

// Throttle returns a throttle for the locomotive at addr.
func (s *Script) Throttle(addr uint16) *Throttle {
	return &Throttle{script: s, addr: addr}
}

// Forward sets the direction forward, then the raw speed byte.
func (t *Throttle) Forward(speed uint8) error {
	if err := t.script.SetDirection(t.addr, loconet.Forward); err != nil {
		return err
	}
	return t.script.SetSpeed(t.addr, speed)
}

// Reverse sets the direction reverse, then the raw speed byte.
func (t *Throttle) Reverse(speed uint8) error {
	if err := t.script.SetDirection(t.addr, loconet.Reverse); err != nil {
		return err
	}
	return t.script.SetSpeed(t.addr, speed)
}

// Stop brings the locomotive to a normal stop.
func (t *Throttle) Stop() error {
	return t.script.SetSpeed(t.addr, 0)
}

// EmergencyStop halts the locomotive immediately, bypassing deceleration.
func (t *Throttle) EmergencyStop() error {
	return t.script.SetSpeed(t.addr, 1)
}

// Lights switches the headlights (F0).
func (t *Throttle) Lights(on bool) error {
	return t.Function(fnLights, on, 0)
}

// Sound switches the decoder sound (F1).
func (t *Throttle) Sound(on bool) error {
	return t.Function(fnSound, on, 0)
}

// Whistle blows the whistle (F2) and releases it automatically.
func (t *Throttle) Whistle() error {
	return t.Function(fnWhistle, true, whistleDuration)
}

// Function switches function fn. A positive duration schedules the
// inverse command that long after the first one went out.
func (t *Throttle) Function(fn uint8, on bool, duration time.Duration) error {
	if err := t.script.SetFunction(t.addr, fn, on); err != nil {
		return err
	}
	if duration > 0 {
		time.AfterFunc(duration, func() {
			if err := t.script.SetFunction(t.addr, fn, !on); err != nil {
				t.script.log.Warn("timed function release failed",
					zap.Uint16("address", t.addr),
					zap.Uint8("function", fn),
					zap.Error(err))
			}
		})
	}
	return nil
}
