// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Spoorlab

package cmd

import (
	"fmt"

	"github.com/spoorlab/lnmon/pkg/capture"
	"github.com/spoorlab/lnmon/pkg/layout"
	"github.com/spoorlab/lnmon/pkg/link"
)

// openLink builds the Connection selected by the configuration (serial,
// replay or dummy), wraps it in a started Link and returns a description
// for the banner line. The caller owns the Link and must Shutdown it.
func openLink() (*link.Link, string, error) {
	var (
		conn link.Connection
		desc string
		err  error
	)

	switch {
	case cfg.Replay:
		conn, err = capture.Open(cfg.CaptureFile, cfg.Fast)
		if err != nil {
			return nil, "", fmt.Errorf("open capture file: %w", err)
		}
		pace := "recorded pace"
		if cfg.Fast {
			pace = "fast"
		}
		desc = fmt.Sprintf("Replay: %s (%s)", cfg.CaptureFile, pace)

	case cfg.Dummy:
		dummy := link.NewDummyConnection()
		// Nothing answers a dummy connection; swallow outbound frames so
		// command paths stay callable.
		go func() {
			for range dummy.Writes() {
			}
		}()
		conn = dummy
		desc = "Dummy: no hardware attached"

	default:
		conn, err = link.OpenSerial(cfg.Port, cfg.Baud)
		if err != nil {
			return nil, "", err
		}
		desc = fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, cfg.Baud)
	}

	lcfg := link.Config{Logger: logger.Named("link")}
	if cfg.Capture && !cfg.Replay {
		sink, err := capture.Create(cfg.CaptureFile, cfg.Timestamp)
		if err != nil {
			conn.Close()
			return nil, "", fmt.Errorf("create capture file: %w", err)
		}
		lcfg.Capture = sink
		desc += fmt.Sprintf(", capturing to %s", cfg.CaptureFile)
	}

	l := link.New(conn, lcfg)
	l.Start()
	return l, desc, nil
}

// attachKeeper hangs a layout mirror off the link's message stream.
func attachKeeper(l *link.Link) *layout.Scrollkeeper {
	sk := layout.New(l, layout.Options{Logger: logger.Named("layout")})
	l.Subscribe(sk.OnMessage)
	return sk
}
