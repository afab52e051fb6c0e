// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

// Package capture records raw LocoNet traffic to a byte stream and plays
// it back with the original pacing. A capture is nothing but concatenated
// frames; wall-clock CAPTURE_TS frames interleaved by the Writer carry the
// timing that the Player later restores.
package capture

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spoorlab/lnmon/pkg/loconet"
)

// Writer appends frames to a capture stream. With timestamps enabled,
// each frame is preceded by a CAPTURE_TS frame holding the wall-clock time
// of the write. It is safe for concurrent use; the link's reader and
// writer both feed it.
type Writer struct {
	mu    sync.Mutex
	buf   *bufio.Writer
	file  io.Closer // nil when wrapping a caller-owned stream
	stamp bool
	now   func() time.Time
}

// NewWriter wraps an open stream. The caller keeps ownership of w; Close
// only flushes.
func NewWriter(w io.Writer, timestamps bool) *Writer {
	return &Writer{buf: bufio.NewWriter(w), stamp: timestamps, now: time.Now}
}

// Create opens path for appending and returns a Writer that owns the file.
func Create(path string, timestamps bool) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	w := NewWriter(f, timestamps)
	w.file = f
	return w, nil
}

// WriteFrame appends one frame, stamping it with the current time when
// timestamps are enabled. Timestamp frames pass through unstamped so a
// replayed stream does not accumulate a second timeline.
func (w *Writer) WriteFrame(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stamp && len(frame) > 0 && frame[0] != loconet.OpcTimestamp {
		ts, err := loconet.Encode(loconet.NewTimestamp(w.now()))
		if err != nil {
			return err
		}
		if _, err := w.buf.Write(ts); err != nil {
			return err
		}
	}
	_, err := w.buf.Write(frame)
	return err
}

// Flush pushes buffered bytes to the underlying stream.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}

// Close flushes and, when the Writer owns the file, closes it.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	ferr := w.buf.Flush()
	if w.file != nil {
		if cerr := w.file.Close(); ferr == nil {
			ferr = cerr
		}
	}
	return ferr
}
