// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Spoorlab
//
// lnmon - LocoNet Bus Monitor
//
// A CLI tool for monitoring, recording, replaying and driving the LocoNet
// bus of a model railroad.

package main

import (
	"os"

	"github.com/spoorlab/lnmon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
