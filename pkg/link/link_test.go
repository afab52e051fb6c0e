// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spoorlab/lnmon/pkg/loconet"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// collector is a subscriber that records messages in arrival order.
type collector struct {
	mu   sync.Mutex
	msgs []loconet.Message
}

func (c *collector) add(m loconet.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) at(i int) loconet.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs[i]
}

// recordingSink captures frames for inspection.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *recordingSink) WriteFrame(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, cp)
	return nil
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func mustEncode(t *testing.T, m loconet.Message) []byte {
	t.Helper()
	frame, err := loconet.Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return frame
}

func shutdownLink(t *testing.T, l *Link) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

// drainWrites consumes conn writes in the background until stop closes.
func drainWrites(conn *DummyConnection, stop chan struct{}) {
	go func() {
		for {
			select {
			case <-conn.Writes():
			case <-stop:
				return
			}
		}
	}()
}

// ============================================================================
// Dispatch
// ============================================================================

func TestLinkDeliversInWireOrder(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{})
	var got collector
	l.Subscribe(got.add)
	l.Start()
	defer shutdownLink(t, l)

	const count = 50
	var stream []byte
	for i := 0; i < count; i++ {
		stream = append(stream, mustEncode(t, loconet.LocoSpeed{Slot: uint8(i % 120), Speed: uint8(i % 128)})...)
	}
	conn.Feed(stream)

	waitFor(t, "all messages", func() bool { return got.len() == count })
	for i := 0; i < count; i++ {
		want := loconet.LocoSpeed{Slot: uint8(i % 120), Speed: uint8(i % 128)}
		if got.at(i) != want {
			t.Fatalf("message %d mismatch: expected %+v, got %+v", i, want, got.at(i))
		}
	}

	stats := l.Stats()
	if stats.MessagesIn != count {
		t.Errorf("MessagesIn mismatch: expected %d, got %d", count, stats.MessagesIn)
	}
	if stats.InboundDropped != 0 {
		t.Errorf("unexpected inbound drops: %d", stats.InboundDropped)
	}
}

func TestLinkSubscribersRunInRegistrationOrder(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{})

	var mu sync.Mutex
	var order []string
	var delivered int
	l.Subscribe(func(loconet.Message) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	l.Subscribe(func(loconet.Message) {
		mu.Lock()
		order = append(order, "second")
		delivered++
		mu.Unlock()
	})
	l.Start()
	defer shutdownLink(t, l)

	conn.Feed(mustEncode(t, loconet.PowerOn{}))
	waitFor(t, "both subscribers", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("callback order mismatch: %v", order)
	}
}

func TestLinkUnsubscribe(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{})
	var first, second collector
	tok := l.Subscribe(first.add)
	l.Subscribe(second.add)
	l.Unsubscribe(tok)
	l.Start()
	defer shutdownLink(t, l)

	conn.Feed(mustEncode(t, loconet.PowerOn{}))
	waitFor(t, "second subscriber", func() bool { return second.len() == 1 })
	if first.len() != 0 {
		t.Errorf("unsubscribed callback still ran %d times", first.len())
	}
}

func TestLinkSubscriberPanicIsContained(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{})
	l.Subscribe(func(loconet.Message) { panic("boom") })
	var got collector
	l.Subscribe(got.add)
	l.Start()
	defer shutdownLink(t, l)

	conn.Feed(mustEncode(t, loconet.PowerOn{}))
	conn.Feed(mustEncode(t, loconet.PowerOff{}))
	waitFor(t, "surviving subscriber", func() bool { return got.len() == 2 })

	if panics := l.Stats().CallbackPanics; panics != 2 {
		t.Errorf("CallbackPanics mismatch: expected 2, got %d", panics)
	}
}

func TestLinkDropsOldestWhenSubscriberStalls(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{InboundQueueSize: 4})
	gate := make(chan struct{})
	var got collector
	l.Subscribe(func(m loconet.Message) {
		<-gate
		got.add(m)
	})
	l.Start()
	defer shutdownLink(t, l)

	const count = 20
	var stream []byte
	for i := 0; i < count; i++ {
		stream = append(stream, mustEncode(t, loconet.LocoSpeed{Slot: 5, Speed: uint8(i)})...)
	}
	conn.Feed(stream)

	waitFor(t, "reader to ingest everything", func() bool {
		return l.Stats().MessagesIn == count
	})
	close(gate)

	waitFor(t, "delivery plus drops to cover the stream", func() bool {
		return uint64(got.len())+l.Stats().InboundDropped == count
	})
	if dropped := l.Stats().InboundDropped; dropped == 0 {
		t.Error("expected inbound drops under a stalled subscriber")
	}

	// The survivors must still be in order.
	for i := 1; i < got.len(); i++ {
		prev := got.at(i - 1).(loconet.LocoSpeed)
		cur := got.at(i).(loconet.LocoSpeed)
		if cur.Speed <= prev.Speed {
			t.Errorf("out of order delivery: speed %d after %d", cur.Speed, prev.Speed)
		}
	}
}

// ============================================================================
// Send Path
// ============================================================================

func TestLinkSendWritesFrame(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{})
	l.Start()

	if err := l.Send(loconet.PowerOn{}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case frame := <-conn.Writes():
		if !bytes.Equal(frame, []byte{0x83, 0x7C}) {
			t.Errorf("frame mismatch: got [% x]", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame never reached the transport")
	}

	waitFor(t, "outbound count", func() bool { return l.Stats().MessagesOut == 1 })
	shutdownLink(t, l)
}

func TestLinkSendRejectsBadArguments(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{})
	l.Start()
	defer shutdownLink(t, l)

	err := l.Send(loconet.LocoSpeed{Slot: 0x80})
	var argErr *loconet.ArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected *ArgumentError, got %v", err)
	}
}

func TestLinkSendBackpressure(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{SendQueueSize: 2})
	l.Start()

	// The transport consumes nothing, so the writer blocks on the first
	// frame and the queue fills with the next two.
	for i := 0; i < 3; i++ {
		if err := l.Send(loconet.LocoSpeed{Slot: 5, Speed: uint8(i)}); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	blocked := make(chan error, 1)
	go func() {
		blocked <- l.Send(loconet.LocoSpeed{Slot: 5, Speed: 99})
	}()

	select {
	case err := <-blocked:
		t.Fatalf("Send should block on a full queue, returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// Unstall the transport by consuming one frame; the blocked Send must
	// complete.
	select {
	case <-conn.Writes():
	case <-time.After(2 * time.Second):
		t.Fatal("writer never offered a frame")
	}
	select {
	case err := <-blocked:
		if err != nil {
			t.Fatalf("unblocked Send failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send still blocked after queue drained")
	}

	stop := make(chan struct{})
	drainWrites(conn, stop)
	defer close(stop)
	shutdownLink(t, l)
}

func TestLinkSendFailsAfterTransportLoss(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{})
	l.Start()

	conn.Close()
	waitFor(t, "link to notice the dead transport", func() bool {
		return errors.Is(l.Send(loconet.PowerOn{}), ErrClosed)
	})
	shutdownLink(t, l)
}

// ============================================================================
// Shutdown
// ============================================================================

func TestLinkShutdownDrainsQueuedFrames(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{SendQueueSize: 8})
	l.Start()

	for i := 0; i < 3; i++ {
		if err := l.Send(loconet.LocoSpeed{Slot: 7, Speed: uint8(i)}); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	received := make(chan int, 1)
	go func() {
		n := 0
		for {
			select {
			case <-conn.Writes():
				n++
				if n == 3 {
					received <- n
					return
				}
			case <-time.After(2 * time.Second):
				received <- n
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if n := <-received; n != 3 {
		t.Errorf("drained frame count mismatch: expected 3, got %d", n)
	}
}

func TestLinkShutdownTimesOutOnStalledTransport(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{SendQueueSize: 8})
	l.Start()

	// Nothing consumes writes, so the queue cannot drain.
	for i := 0; i < 4; i++ {
		if err := l.Send(loconet.LocoSpeed{Slot: 7, Speed: uint8(i)}); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := l.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	// The link must still be fully stopped.
	if err := l.Send(loconet.PowerOn{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after shutdown: expected ErrClosed, got %v", err)
	}
}

func TestLinkShutdownIdempotentAndConcurrent(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{})
	var got collector
	l.Subscribe(got.add)
	l.Start()

	conn.Feed(mustEncode(t, loconet.PowerOn{}))
	waitFor(t, "message delivery", func() bool { return got.len() == 1 })

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			errs[i] = l.Shutdown(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Shutdown %d failed: %v", i, err)
		}
	}
	if err := l.Send(loconet.PowerOn{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after shutdown: expected ErrClosed, got %v", err)
	}

	// A third call long after the fact is still safe.
	if err := l.Shutdown(context.Background()); err != nil {
		t.Errorf("repeated Shutdown failed: %v", err)
	}
}

// ============================================================================
// Capture and Stats
// ============================================================================

func TestLinkCapturesBothDirections(t *testing.T) {
	conn := NewDummyConnection()
	sink := &recordingSink{}
	l := New(conn, Config{Capture: sink})
	l.Start()

	stop := make(chan struct{})
	drainWrites(conn, stop)
	defer close(stop)

	conn.Feed(mustEncode(t, loconet.PowerOn{}))
	if err := l.Send(loconet.PowerOff{}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	waitFor(t, "both frames in capture", func() bool { return sink.len() == 2 })
	shutdownLink(t, l)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	seen := map[string]bool{}
	for _, f := range sink.frames {
		seen[fmt.Sprintf("% x", f)] = true
	}
	if !seen["83 7c"] || !seen["82 7d"] {
		t.Errorf("capture missing frames: %v", seen)
	}
}

// closableSink records whether the link closed it during shutdown.
type closableSink struct {
	recordingSink
	closeMu sync.Mutex
	closed  bool
}

func (c *closableSink) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	c.closed = true
	return nil
}

func (c *closableSink) wasClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

func TestLinkClosesCaptureOnShutdown(t *testing.T) {
	conn := NewDummyConnection()
	sink := &closableSink{}
	l := New(conn, Config{Capture: sink})
	l.Start()

	shutdownLink(t, l)
	if !sink.wasClosed() {
		t.Error("capture sink left open after shutdown")
	}
}

func TestLinkDoneSignalsTransportEnd(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{})
	l.Start()
	defer shutdownLink(t, l)

	select {
	case <-l.Done():
		t.Fatal("Done closed while the link was healthy")
	default:
	}

	conn.Close()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done did not close after transport EOF")
	}
}

func TestLinkFramingFaultsAreCounted(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{})
	var got collector
	l.Subscribe(got.add)
	l.Start()
	defer shutdownLink(t, l)

	// Stray bytes, a corrupted frame, then a healthy one.
	conn.Feed([]byte{0x01, 0x02})
	conn.Feed([]byte{0xA0, 0x05, 0x28, 0x73})
	conn.Feed(mustEncode(t, loconet.PowerOn{}))

	waitFor(t, "healthy frame delivery", func() bool { return got.len() == 1 })
	stats := l.Stats()
	if stats.ChecksumErrors != 1 {
		t.Errorf("ChecksumErrors mismatch: expected 1, got %d", stats.ChecksumErrors)
	}
	// Two leading strays plus the dropped frame's three trailing bytes.
	if stats.StrayBytes != 5 {
		t.Errorf("StrayBytes mismatch: expected 5, got %d", stats.StrayBytes)
	}
	if stats.MessagesIn != 1 {
		t.Errorf("MessagesIn mismatch: expected 1, got %d", stats.MessagesIn)
	}
}

func TestLinkInboundByOpcode(t *testing.T) {
	conn := NewDummyConnection()
	l := New(conn, Config{})
	var got collector
	l.Subscribe(got.add)
	l.Start()
	defer shutdownLink(t, l)

	conn.Feed(mustEncode(t, loconet.PowerOn{}))
	conn.Feed(mustEncode(t, loconet.LocoSpeed{Slot: 3, Speed: 48}))
	conn.Feed(mustEncode(t, loconet.LocoSpeed{Slot: 3, Speed: 50}))
	waitFor(t, "all deliveries", func() bool { return got.len() == 3 })

	byOp := l.InboundByOpcode()
	if byOp["GPON"] != 1 || byOp["LOCO_SPD"] != 2 {
		t.Errorf("per-opcode counts mismatch: %v", byOp)
	}
}
