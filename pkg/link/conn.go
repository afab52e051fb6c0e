// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

// Package link drives a LocoNet connection: it frames inbound bytes into
// messages, fans them out to subscribers, and serializes outbound commands
// onto the wire. It also provides the Connection implementations the
// command layer opens (serial port, websocket bridge, in-memory dummy).
package link

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Connection provides a common interface for reading/writing raw LocoNet
// bytes from serial or WebSocket transports.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port.
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// OpenSerial opens a serial port to a LocoNet interface adapter such as a
// LocoBuffer. LocoNet adapters run 8N1.
func OpenSerial(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %v", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// WebSocketConnection wraps a WebSocket connection to a remote LocoNet
// bridge for byte-level reading.
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool // Track if connection has failed/closed
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	// Return immediately if connection is known to be closed
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// If we have buffered data, return it first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	// Read next message from WebSocket (non-recursive loop to avoid stack overflow)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			// Mark connection as closed to prevent further read attempts
			w.closed = true
			return 0, err
		}

		// LocoNet bytes travel in binary messages only
		if messageType != websocket.BinaryMessage {
			continue
		}

		// Buffer the message and return what fits
		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenWebSocket connects to a remote LocoNet bridge over WebSocket with
// HTTP Basic auth.
func OpenWebSocket(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// DummyConnection is an in-memory Connection for tests and the --dummy
// flag. Reads block until bytes arrive through Feed; each Write blocks
// until its bytes are received from Writes. Close fails both directions.
type DummyConnection struct {
	in      chan []byte
	pending []byte
	writes  chan []byte

	once   sync.Once
	closed chan struct{}
}

// NewDummyConnection returns an open DummyConnection.
func NewDummyConnection() *DummyConnection {
	return &DummyConnection{
		in:     make(chan []byte, 16),
		writes: make(chan []byte),
		closed: make(chan struct{}),
	}
}

// Feed queues raw bytes for delivery to Read. Bytes fed after Close are
// dropped.
func (d *DummyConnection) Feed(p []byte) {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case d.in <- cp:
	case <-d.closed:
	}
}

// Writes exposes the written byte chunks in order. The channel is
// unbuffered: a Write does not return until its chunk is received, which
// lets tests exercise a stalled peer.
func (d *DummyConnection) Writes() <-chan []byte {
	return d.writes
}

func (d *DummyConnection) Read(p []byte) (int, error) {
	if len(d.pending) > 0 {
		n := copy(p, d.pending)
		d.pending = d.pending[n:]
		return n, nil
	}
	select {
	case data := <-d.in:
		n := copy(p, data)
		d.pending = data[n:]
		return n, nil
	case <-d.closed:
		return 0, io.EOF
	}
}

func (d *DummyConnection) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case d.writes <- cp:
		return len(p), nil
	case <-d.closed:
		return 0, io.ErrClosedPipe
	}
}

func (d *DummyConnection) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}
