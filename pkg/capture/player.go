// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package capture

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spoorlab/lnmon/pkg/loconet"
)

// centisPerDay is the wrap point of CAPTURE_TS, which only carries a
// time of day.
const centisPerDay = 24 * 60 * 60 * 100

// maxReplayGap clamps pauses between frames. A larger gap is a hole in the
// recording, not a pause worth reproducing.
const maxReplayGap = time.Hour

// Player replays a capture stream as a link Connection. Read hands out the
// recorded frames, pausing between them per the interleaved CAPTURE_TS
// frames (or not at all in fast mode), and returns io.EOF at the end of
// the recording. Writes are swallowed and counted, so command paths stay
// callable against a replay.
type Player struct {
	src  io.Reader
	fast bool

	framer  *loconet.Framer
	pending []byte
	rbuf    [256]byte
	n, off  int

	lastCentis int64
	sleep      func(d time.Duration, abort <-chan struct{})

	discarded atomic.Uint64
	once      sync.Once
	closed    chan struct{}
}

// NewPlayer wraps an open capture stream. With fast set, recorded pauses
// are skipped.
func NewPlayer(src io.Reader, fast bool) *Player {
	return &Player{
		src:        src,
		fast:       fast,
		framer:     loconet.NewFramer(),
		lastCentis: -1,
		sleep:      sleepUntil,
		closed:     make(chan struct{}),
	}
}

// Open opens a capture file for replay. The Player owns the file.
func Open(path string, fast bool) (*Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewPlayer(f, fast), nil
}

// Discarded returns how many outbound frames were swallowed.
func (p *Player) Discarded() uint64 {
	return p.discarded.Load()
}

func (p *Player) Read(buf []byte) (int, error) {
	for len(p.pending) == 0 {
		frame, err := p.next()
		if err != nil {
			return 0, err
		}
		p.pending = frame
	}
	n := copy(buf, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// next assembles the following frame from the capture, pausing on
// timestamp frames. Corrupted stretches are skipped the same way a live
// link would skip them.
func (p *Player) next() ([]byte, error) {
	for {
		select {
		case <-p.closed:
			return nil, io.EOF
		default:
		}

		if p.off < p.n {
			b := p.rbuf[p.off]
			p.off++
			frame, err := p.framer.PushByte(b)
			if err != nil || frame == nil {
				continue
			}
			if msg, derr := loconet.Decode(frame); derr == nil {
				if ts, ok := msg.(loconet.Timestamp); ok {
					p.pause(ts)
				}
			}
			return frame, nil
		}

		n, err := p.src.Read(p.rbuf[:])
		if n == 0 {
			if err == nil {
				err = io.EOF
			}
			return nil, err
		}
		p.n, p.off = n, 0
	}
}

// pause sleeps for the gap between the previous timestamp and ts.
func (p *Player) pause(ts loconet.Timestamp) {
	centis := ts.DayHundredths()
	last := p.lastCentis
	p.lastCentis = centis
	if last < 0 {
		return
	}

	delta := centis - last
	if delta < 0 {
		// The recording ran across midnight.
		delta += centisPerDay
	}
	d := time.Duration(delta) * 10 * time.Millisecond
	if d > maxReplayGap {
		return
	}
	if p.fast || d <= 0 {
		return
	}
	p.sleep(d, p.closed)
}

func sleepUntil(d time.Duration, abort <-chan struct{}) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-abort:
	}
}

// Write swallows outbound frames; a replayed command station answers
// through the recording alone.
func (p *Player) Write(frame []byte) (int, error) {
	p.discarded.Add(1)
	return len(frame), nil
}

// Close stops any pending pause and closes the source when it is a file.
func (p *Player) Close() error {
	p.once.Do(func() { close(p.closed) })
	if c, ok := p.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
