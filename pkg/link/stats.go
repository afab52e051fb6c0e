// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package link

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spoorlab/lnmon/pkg/loconet"
)

// counters hold the live link tallies. They are written from the reader,
// writer and dispatcher goroutines, so every field is atomic.
type counters struct {
	messagesIn  atomic.Uint64
	messagesOut atomic.Uint64
	bytesIn     atomic.Uint64
	bytesOut    atomic.Uint64

	checksumErrors atomic.Uint64
	truncations    atomic.Uint64
	strayBytes     atomic.Uint64
	inboundDropped atomic.Uint64
	writeErrors    atomic.Uint64
	callbackPanics atomic.Uint64

	inOpcodes [256]atomic.Uint64
}

// Stats is a point-in-time snapshot of link counters.
type Stats struct {
	Started time.Time

	MessagesIn  uint64
	MessagesOut uint64
	BytesIn     uint64
	BytesOut    uint64

	ChecksumErrors uint64
	Truncations    uint64
	StrayBytes     uint64
	InboundDropped uint64
	WriteErrors    uint64
	CallbackPanics uint64
}

// MessageRate returns inbound messages per second since the link started.
func (s Stats) MessageRate() float64 {
	elapsed := time.Since(s.Started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.MessagesIn) / elapsed
}

// ErrorCount returns the sum of all fault counters.
func (s Stats) ErrorCount() uint64 {
	return s.ChecksumErrors + s.Truncations + s.InboundDropped + s.WriteErrors + s.CallbackPanics
}

// String returns a formatted statistics summary
func (s Stats) String() string {
	elapsed := time.Since(s.Started)

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Messages In:     %8d\n", s.MessagesIn)
	result += fmt.Sprintf("Messages Out:    %8d\n", s.MessagesOut)
	result += fmt.Sprintf("Bytes In:        %8d\n", s.BytesIn)
	result += fmt.Sprintf("Bytes Out:       %8d\n", s.BytesOut)

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", s.ChecksumErrors)
	}
	if s.Truncations > 0 {
		result += fmt.Sprintf("Truncated Frames:%8d\n", s.Truncations)
	}
	if s.StrayBytes > 0 {
		result += fmt.Sprintf("Stray Bytes:     %8d\n", s.StrayBytes)
	}
	if s.InboundDropped > 0 {
		result += fmt.Sprintf("Inbound Dropped: %8d\n", s.InboundDropped)
	}
	if s.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d\n", s.WriteErrors)
	}
	if s.CallbackPanics > 0 {
		result += fmt.Sprintf("Callback Panics: %8d\n", s.CallbackPanics)
	}

	result += fmt.Sprintf("Message Rate:    %8.1f msgs/sec\n", s.MessageRate())
	result += "======================================\n"

	return result
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() Stats {
	return Stats{
		Started:        l.started,
		MessagesIn:     l.stats.messagesIn.Load(),
		MessagesOut:    l.stats.messagesOut.Load(),
		BytesIn:        l.stats.bytesIn.Load(),
		BytesOut:       l.stats.bytesOut.Load(),
		ChecksumErrors: l.stats.checksumErrors.Load(),
		Truncations:    l.stats.truncations.Load(),
		StrayBytes:     l.stats.strayBytes.Load(),
		InboundDropped: l.stats.inboundDropped.Load(),
		WriteErrors:    l.stats.writeErrors.Load(),
		CallbackPanics: l.stats.callbackPanics.Load(),
	}
}

// InboundByOpcode returns the inbound message counts keyed by opcode
// mnemonic. Frames with unmodeled opcodes aggregate under UNKNOWN.
func (l *Link) InboundByOpcode() map[string]uint64 {
	out := make(map[string]uint64)
	for op := 0; op < 256; op++ {
		if n := l.stats.inOpcodes[op].Load(); n > 0 {
			out[loconet.OpcodeName(byte(op))] += n
		}
	}
	return out
}
