// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Spoorlab

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spoorlab/lnmon/pkg/config"
	"github.com/spoorlab/lnmon/pkg/logging"
)

// Resolved per invocation by the root PersistentPreRunE, before any
// subcommand runs.
var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lnmon",
	Short: "LocoNet bus monitor",
	Long: `lnmon - monitor, record, replay and drive a LocoNet model railroad bus.

Decodes the traffic between throttles, stationary decoders and the command
station, keeps a live mirror of slots, switches and sensors, and can publish
that mirror over HTTP for other tools.

Connection modes:
  Serial:  --port /dev/ttyACM0 [--baud 57600]   (the default)
  Replay:  --replay [--fast]                     reads the capture file
  Dummy:   --dummy                               idle in-memory connection

Every flag can also be set through an LNMON_* environment variable or an
lnmon.yaml in the working directory; flags win over both. Recording is
enabled with --capture and lands in the capture file (--capture-file),
optionally with interleaved wall-clock timestamps (--timestamp) so a later
--replay reproduces the original pacing.`,
	Version:       "1.4.0",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.LogLevel, cfg.LogFile)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()

	// Connection flags. No variable binding: the values flow through the
	// configuration layer so environment and file settings merge in.
	pf.StringP("port", "p", config.DefaultPort, "Serial port device")
	pf.IntP("baud", "b", config.DefaultBaud, "Baud rate (serial only)")
	pf.BoolP("replay", "r", false, "Replay the capture file instead of opening a port")
	pf.Bool("fast", false, "Replay without the recorded pauses")
	pf.Bool("dummy", false, "Use an idle in-memory connection (no hardware)")

	// Capture flags
	pf.BoolP("capture", "c", false, "Record all bus traffic to the capture file")
	pf.StringP("capture-file", "f", config.DefaultCaptureFile, "Capture file to write or replay")
	pf.BoolP("timestamp", "t", false, "Interleave timestamp frames when capturing")

	// Logging flags
	pf.String("log-file", "", "Also log to this file (JSON, rotated)")
	pf.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn or error")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
