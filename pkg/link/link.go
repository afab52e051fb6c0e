// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package link

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spoorlab/lnmon/pkg/loconet"
)

// ErrClosed is returned by Send once the link has shut down or the
// transport has failed.
var ErrClosed = errors.New("link: closed")

// Token identifies a subscription for Unsubscribe.
type Token uint64

// FrameSink receives every raw frame that crosses the link, both
// directions, in wire order per direction. Implementations must be safe
// for concurrent use; the reader and writer goroutines both call it.
type FrameSink interface {
	WriteFrame(frame []byte) error
}

// Config tunes a Link. The zero value is usable.
type Config struct {
	// Logger receives link diagnostics. Nil disables logging.
	Logger *zap.Logger
	// Capture receives every inbound and outbound frame. Nil disables
	// capture.
	Capture FrameSink
	// SendQueueSize bounds the outbound frame queue (default 32). A full
	// queue blocks Send, pushing backpressure onto the caller.
	SendQueueSize int
	// InboundQueueSize bounds the inbound message queue (default 64). A
	// full queue drops the oldest message and counts the loss.
	InboundQueueSize int
}

type observer struct {
	token Token
	fn    func(loconet.Message)
}

// Link owns a Connection and the three goroutines that service it: a
// reader that frames and decodes inbound bytes, a writer that drains the
// outbound queue, and a dispatcher that fans decoded messages out to
// subscribers in registration order.
type Link struct {
	conn    Connection
	log     *zap.Logger
	capture FrameSink
	started time.Time

	sendQ chan []byte
	inQ   chan loconet.Message

	obsMu     sync.Mutex
	observers []observer
	nextToken Token

	stats counters

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running     atomic.Bool
	dead        atomic.Bool
	closing     chan struct{}
	closingOnce sync.Once
	writerDone  chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// New assembles a Link around conn. Call Start to launch the worker
// goroutines and Shutdown to stop them; the Link owns conn and closes it
// on shutdown.
func New(conn Connection, cfg Config) *Link {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 32
	}
	if cfg.InboundQueueSize <= 0 {
		cfg.InboundQueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Link{
		conn:       conn,
		log:        cfg.Logger,
		capture:    cfg.Capture,
		started:    time.Now(),
		sendQ:      make(chan []byte, cfg.SendQueueSize),
		inQ:        make(chan loconet.Message, cfg.InboundQueueSize),
		ctx:        ctx,
		cancel:     cancel,
		closing:    make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// Start launches the reader, writer and dispatcher goroutines. It must be
// called exactly once.
func (l *Link) Start() {
	l.started = time.Now()
	l.running.Store(true)
	l.wg.Add(3)
	go l.readLoop()
	go l.writeLoop()
	go l.dispatchLoop()
	l.log.Debug("link started")
}

// Subscribe registers fn for every inbound message. Callbacks run on the
// dispatcher goroutine in registration order; a slow callback delays the
// ones behind it, and a panic is recovered and counted.
func (l *Link) Subscribe(fn func(loconet.Message)) Token {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	l.nextToken++
	l.observers = append(l.observers, observer{token: l.nextToken, fn: fn})
	return l.nextToken
}

// Unsubscribe removes a subscription. Unknown tokens are ignored. The
// callback may still receive messages already in flight on the dispatcher.
func (l *Link) Unsubscribe(tok Token) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	for i, o := range l.observers {
		if o.token == tok {
			l.observers = append(l.observers[:i], l.observers[i+1:]...)
			return
		}
	}
}

// Send encodes m and queues the frame for transmission. It fails fast
// with ErrClosed after shutdown or transport failure, returns any
// *loconet.ArgumentError from encoding, and otherwise blocks while the
// outbound queue is full.
func (l *Link) Send(m loconet.Message) error {
	if l.dead.Load() {
		return ErrClosed
	}
	frame, err := loconet.Encode(m)
	if err != nil {
		return err
	}
	select {
	case <-l.closing:
		return ErrClosed
	case l.sendQ <- frame:
		return nil
	}
}

// Done returns a channel that closes once the link stops accepting sends,
// whether from Shutdown, a transport failure, or end of a replayed
// capture.
func (l *Link) Done() <-chan struct{} {
	return l.closing
}

// Shutdown stops the link: new sends fail, queued frames drain until ctx
// expires, the transport closes, and all three goroutines are joined
// before it returns. Shutdown is idempotent; concurrent callers all block
// until the first invocation finishes and share its result, which is nil
// after a clean drain or the ctx error after a forced one.
func (l *Link) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() {
		l.shutdownErr = l.doShutdown(ctx)
	})
	return l.shutdownErr
}

func (l *Link) doShutdown(ctx context.Context) error {
	l.markDead()
	if !l.running.Load() {
		l.cancel()
		err := l.conn.Close()
		l.closeCapture()
		return err
	}

	// Give the writer until ctx expires to drain the outbound queue. The
	// writer closes writerDone once the queue is empty or the transport is
	// gone.
	var err error
	select {
	case <-l.writerDone:
	case <-ctx.Done():
		err = ctx.Err()
	}

	l.cancel()
	if cerr := l.conn.Close(); cerr != nil && err == nil {
		l.log.Debug("transport close", zap.Error(cerr))
	}
	l.wg.Wait()
	l.closeCapture()
	l.log.Debug("link stopped", zap.Uint64("messages_in", l.stats.messagesIn.Load()),
		zap.Uint64("messages_out", l.stats.messagesOut.Load()))
	return err
}

// closeCapture flushes and closes the capture sink if it owns resources.
// It runs after the worker goroutines have joined, so no more frames can
// arrive.
func (l *Link) closeCapture() {
	c, ok := l.capture.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		l.log.Warn("capture close failed", zap.Error(err))
	}
}

// markDead makes Send fail fast and tells the writer to drain and exit.
func (l *Link) markDead() {
	l.dead.Store(true)
	l.closingOnce.Do(func() { close(l.closing) })
}

func (l *Link) readLoop() {
	defer l.wg.Done()
	defer close(l.inQ)

	framer := loconet.NewFramer()
	buf := make([]byte, 256)
	for {
		n, err := l.conn.Read(buf)
		if n > 0 {
			l.stats.bytesIn.Add(uint64(n))
			for _, b := range buf[:n] {
				l.pushByte(framer, b)
			}
			l.stats.strayBytes.Store(framer.StrayBytes())
		}
		if err != nil {
			select {
			case <-l.ctx.Done():
				// Expected: Shutdown closed the transport under us.
			default:
				if errors.Is(err, io.EOF) {
					l.log.Info("transport closed by peer")
				} else {
					l.log.Error("transport read failed", zap.Error(err))
				}
			}
			l.markDead()
			return
		}
	}
}

func (l *Link) pushByte(framer *loconet.Framer, b byte) {
	frame, err := framer.PushByte(b)
	if err != nil {
		switch {
		case errors.Is(err, loconet.ErrBadChecksum):
			l.stats.checksumErrors.Add(1)
		case errors.Is(err, loconet.ErrTruncatedFrame), errors.Is(err, loconet.ErrBadLength):
			l.stats.truncations.Add(1)
		}
		l.log.Debug("framing fault", zap.Error(err))
		return
	}
	if frame == nil {
		return
	}

	l.writeCapture(frame)
	msg, err := loconet.Decode(frame)
	if err != nil {
		// The framer already validated the checksum, so this only fires
		// for frames the decoder finds structurally off.
		l.stats.checksumErrors.Add(1)
		l.log.Debug("decode fault", zap.Error(err))
		return
	}
	l.stats.messagesIn.Add(1)
	l.stats.inOpcodes[msg.Opcode()].Add(1)

	// Bounded inbound queue: drop the oldest message rather than stall
	// the reader behind a slow consumer.
	select {
	case l.inQ <- msg:
	default:
		select {
		case <-l.inQ:
			l.stats.inboundDropped.Add(1)
		default:
		}
		select {
		case l.inQ <- msg:
		default:
			l.stats.inboundDropped.Add(1)
		}
	}
}

func (l *Link) writeLoop() {
	defer l.wg.Done()
	defer close(l.writerDone)
	for {
		select {
		case frame := <-l.sendQ:
			if !l.writeFrame(frame) {
				return
			}
		case <-l.closing:
			// Drain whatever is queued, then exit.
			for {
				select {
				case frame := <-l.sendQ:
					if !l.writeFrame(frame) {
						return
					}
				case <-l.ctx.Done():
					return
				default:
					return
				}
			}
		case <-l.ctx.Done():
			return
		}
	}
}

// writeFrame puts one frame on the wire and reports whether the writer
// should keep going.
func (l *Link) writeFrame(frame []byte) bool {
	if _, err := l.conn.Write(frame); err != nil {
		l.stats.writeErrors.Add(1)
		select {
		case <-l.ctx.Done():
		default:
			l.log.Error("transport write failed", zap.Error(err))
		}
		l.markDead()
		return false
	}
	l.stats.messagesOut.Add(1)
	l.stats.bytesOut.Add(uint64(len(frame)))
	l.writeCapture(frame)
	return true
}

func (l *Link) writeCapture(frame []byte) {
	if l.capture == nil {
		return
	}
	if err := l.capture.WriteFrame(frame); err != nil {
		l.log.Warn("capture write failed", zap.Error(err))
	}
}

func (l *Link) dispatchLoop() {
	defer l.wg.Done()
	for msg := range l.inQ {
		l.obsMu.Lock()
		obs := make([]observer, len(l.observers))
		copy(obs, l.observers)
		l.obsMu.Unlock()

		for _, o := range obs {
			l.deliver(o, msg)
		}
	}
}

func (l *Link) deliver(o observer, msg loconet.Message) {
	defer func() {
		if r := recover(); r != nil {
			l.stats.callbackPanics.Add(1)
			l.log.Error("subscriber panicked",
				zap.Any("panic", r),
				zap.String("message", loconet.FormatMessage(msg)))
		}
	}()
	o.fn(msg)
}
